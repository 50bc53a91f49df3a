package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/dogtracker/dogtracker/internal/cache"
	"github.com/dogtracker/dogtracker/internal/config"
	"github.com/dogtracker/dogtracker/internal/gateway"
	"github.com/dogtracker/dogtracker/internal/netmon"
	"github.com/dogtracker/dogtracker/internal/outbox"
	"github.com/dogtracker/dogtracker/internal/plan"
	"github.com/dogtracker/dogtracker/internal/store"
	"github.com/dogtracker/dogtracker/internal/tui"
)

var (
	version   = "0.1.0"
	buildTime = "dev"
)

// App holds all the runtime components
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   *store.Store
	Cache   *cache.Cache
	Outbox  *outbox.Outbox
	Monitor *netmon.Monitor
	Gateway *gateway.Gateway
	Plans   *plan.Store
	Judge   *plan.Judge
}

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("dogtracker", flag.ExitOnError)
	configPath := fs.String("config", "dogtracker.json", "Path to config file")
	showVersion := fs.Bool("version", false, "Show version")
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		return 1
	}

	if *showVersion {
		fmt.Printf("dogtracker v%s (built %s)\n", version, buildTime)
		return 0
	}

	args := fs.Args()
	if len(args) == 0 {
		usage()
		return 1
	}

	app, err := newApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer app.Store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.dispatch(ctx, stop, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: dogtracker [--config path] <command>")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  status                         show network state and pending outbox")
	fmt.Fprintln(os.Stderr, "  flush                          replay queued mutations now")
	fmt.Fprintln(os.Stderr, "  get <path>                     GET an API path (cache fallback applies)")
	fmt.Fprintln(os.Stderr, "  plan <session> <op> [...]      manage a session's plan queue")
	fmt.Fprintln(os.Stderr, "  judge <session> submit|skip    judge the front plan item")
	fmt.Fprintln(os.Stderr, "  watch [session]                live status view")
}

func newApp(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.LogLevel)

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	apiBase, err := resolveAPIBase(st, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	client := gateway.NewHTTPClient()
	c := cache.New(st.DB(), logger)

	ob := outbox.New(st.DB(), client, logger)
	ob.SetReplayTimeout(time.Duration(cfg.Probe.ReplayTimeoutSeconds) * time.Second)

	mon := netmon.New(st, client, ob, logger)
	mon.SetInterval(time.Duration(cfg.Probe.IntervalSeconds) * time.Second)
	mon.SetProbeTimeout(time.Duration(cfg.Probe.TimeoutSeconds) * time.Second)
	ob.SetSink(mon)

	gw := gateway.New(apiBase, client, c, ob, mon, logger)
	gw.SetUnauthorizedHandler(func() {
		logger.Warn("session expired, log in again")
	})

	plans := plan.NewStore(st.DB(), logger)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Store:   st,
		Cache:   c,
		Outbox:  ob,
		Monitor: mon,
		Gateway: gw,
		Plans:   plans,
		Judge:   plan.NewJudge(plans, gw, logger),
	}, nil
}

// resolveAPIBase prefers the locally persisted setting; the config
// value seeds it on first run.
func resolveAPIBase(st *store.Store, cfg *config.Config) (string, error) {
	if v := os.Getenv("DOGTRACKER_API_BASE"); v != "" {
		if err := st.PutSetting("api_base", v); err != nil {
			return "", err
		}
		return v, nil
	}
	if saved, ok, err := st.GetSetting("api_base"); err != nil {
		return "", err
	} else if ok {
		return saved, nil
	}
	if err := st.PutSetting("api_base", cfg.APIBase); err != nil {
		return "", err
	}
	return cfg.APIBase, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func (a *App) dispatch(ctx context.Context, stop context.CancelFunc, args []string) error {
	switch args[0] {
	case "status":
		return a.cmdStatus()
	case "flush":
		return a.Outbox.Flush(ctx, a.Gateway.Base())
	case "get":
		if len(args) < 2 {
			return fmt.Errorf("usage: get <path>")
		}
		payload, err := a.Gateway.Do(ctx, gateway.Get(args[1]))
		if err != nil {
			return err
		}
		fmt.Println(string(payload))
		return nil
	case "plan":
		return a.cmdPlan(args[1:])
	case "judge":
		return a.cmdJudge(ctx, args[1:])
	case "watch":
		return a.cmdWatch(ctx, stop, args[1:])
	default:
		usage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func (a *App) cmdStatus() error {
	state := a.Monitor.State()
	fmt.Printf("api base: %s\n", a.Gateway.Base())
	fmt.Printf("online:   %v\n", state.Online)
	fmt.Printf("syncing:  %v\n", state.Syncing)
	fmt.Printf("queued:   %d\n", state.Queued)

	entries, err := a.Outbox.Entries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("  %s %s (queued %s)\n", e.Method, e.Path, e.EnqueuedAt.Format(time.RFC3339))
	}
	return nil
}

func (a *App) cmdPlan(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: plan <session> list|add|remove|up|down|pop|clear|save-template|apply-template|templates")
	}
	sessionID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid session id %q", args[0])
	}
	op := args[1]
	rest := args[2:]

	switch op {
	case "list":
		items, err := a.Plans.Items(sessionID)
		if err != nil {
			return err
		}
		for i, it := range items {
			fmt.Printf("%2d. dog %d  exercise %d  behavior %d\n",
				i+1, it.DogID, it.ExerciseID, it.PlannedBehaviorID)
		}
		return nil
	case "add":
		fs := flag.NewFlagSet("plan add", flag.ContinueOnError)
		dog := fs.Int64("dog", 0, "dog id")
		exercise := fs.Int64("exercise", 0, "exercise id")
		behavior := fs.Int64("behavior", 0, "planned behavior id")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		_, err := a.Plans.Append(sessionID, plan.Item{
			DogID:             *dog,
			ExerciseID:        *exercise,
			PlannedBehaviorID: *behavior,
		})
		return err
	case "remove", "up", "down":
		if len(rest) < 1 {
			return fmt.Errorf("usage: plan <session> %s <index>", op)
		}
		idx, err := strconv.Atoi(rest[0])
		if err != nil {
			return fmt.Errorf("invalid index %q", rest[0])
		}
		idx-- // 1-based on the CLI
		switch op {
		case "remove":
			return a.Plans.Remove(sessionID, idx)
		case "up":
			return a.Plans.MoveUp(sessionID, idx)
		default:
			return a.Plans.MoveDown(sessionID, idx)
		}
	case "pop":
		item, ok, err := a.Plans.PopFront(sessionID)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("queue empty")
			return nil
		}
		fmt.Printf("popped dog %d exercise %d behavior %d\n",
			item.DogID, item.ExerciseID, item.PlannedBehaviorID)
		return nil
	case "clear":
		return a.Plans.Clear(sessionID)
	case "save-template":
		if len(rest) < 1 {
			return fmt.Errorf("usage: plan <session> save-template <name>")
		}
		return a.Plans.SaveTemplate(rest[0], sessionID)
	case "apply-template":
		if len(rest) < 1 {
			return fmt.Errorf("usage: plan <session> apply-template <name>")
		}
		return a.Plans.ApplyTemplate(rest[0], sessionID)
	case "templates":
		templates, err := a.Plans.Templates()
		if err != nil {
			return err
		}
		for _, t := range templates {
			fmt.Printf("%s (%d items)\n", t.Name, len(t.Items))
		}
		return nil
	default:
		return fmt.Errorf("unknown plan op: %s", op)
	}
}

func (a *App) cmdJudge(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: judge <session> submit|skip")
	}
	sessionID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid session id %q", args[0])
	}

	switch args[1] {
	case "skip":
		item, ok, err := a.Judge.Skip(sessionID)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("queue empty")
			return nil
		}
		fmt.Printf("skipped dog %d\n", item.DogID)
		return nil
	case "submit":
		fs := flag.NewFlagSet("judge submit", flag.ContinueOnError)
		outcome := fs.String("outcome", "success", "success|partial|fail")
		score := fs.Int("score", -1, "score 0-10 (omit for none)")
		exhibited := fs.Int64("exhibited", 0, "exhibited behavior id")
		freeText := fs.String("text", "", "exhibited free text")
		notes := fs.String("notes", "", "notes")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		res := plan.Result{
			Outcome:           *outcome,
			ExhibitedFreeText: *freeText,
			Notes:             *notes,
		}
		if *score >= 0 {
			res.Score = score
		}
		if *exhibited != 0 {
			res.ExhibitedBehaviorID = exhibited
		}
		sub, err := a.Judge.Submit(ctx, sessionID, res)
		if err != nil {
			return err
		}
		out, _ := json.Marshal(sub)
		fmt.Println(string(out))
		return nil
	default:
		return fmt.Errorf("unknown judge op: %s", args[1])
	}
}

func (a *App) cmdWatch(ctx context.Context, stop context.CancelFunc, args []string) error {
	var sessionID int64
	if len(args) > 0 {
		var err error
		sessionID, err = strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session id %q", args[0])
		}
	}

	a.Monitor.Start(ctx, a.Gateway.Base())
	defer a.Monitor.Stop()

	p := tea.NewProgram(tui.New(a.Monitor, a.Outbox, a.Plans, sessionID))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := p.Run()
		stop() // TUI exited, wind everything down
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		p.Quit()
		return nil
	})
	return g.Wait()
}
