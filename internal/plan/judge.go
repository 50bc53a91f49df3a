package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dogtracker/dogtracker/internal/gateway"
	"github.com/dogtracker/dogtracker/internal/types"
)

// Result is the judged outcome applied to the front queue item.
type Result struct {
	Outcome             string
	Score               *int
	ExhibitedBehaviorID *int64
	ExhibitedFreeText   string
	Notes               string
}

// Judge consumes a session's plan queue one item at a time, turning
// front items into submitted rounds through the gateway.
type Judge struct {
	plans    *Store
	gw       *gateway.Gateway
	validate *validator.Validate
	logger   *slog.Logger
}

// NewJudge creates a Judge over the plan store and gateway.
func NewJudge(plans *Store, gw *gateway.Gateway, logger *slog.Logger) *Judge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Judge{
		plans:    plans,
		gw:       gw,
		validate: validator.New(),
		logger:   logger,
	}
}

// Submit judges the front item of the session's queue: it validates
// the round locally, POSTs it through the gateway and pops the item.
// Acceptance into the outbox counts as submitted; the queue does not
// wait for server confirmation beyond what the gateway guarantees.
//
// An item missing its dog, exercise or planned behavior is refused
// locally and stays at the front of the queue.
func (j *Judge) Submit(ctx context.Context, sessionID int64, res Result) (types.RoundSubmission, error) {
	items, err := j.plans.Items(sessionID)
	if err != nil {
		return types.RoundSubmission{}, err
	}
	if len(items) == 0 {
		return types.RoundSubmission{}, fmt.Errorf("judge: session %d has no planned items", sessionID)
	}
	front := items[0]

	now := time.Now().UTC().Format(time.RFC3339)
	sub := types.RoundSubmission{
		DogID:               front.DogID,
		ExerciseID:          front.ExerciseID,
		PlannedBehaviorID:   front.PlannedBehaviorID,
		Outcome:             res.Outcome,
		Score:               res.Score,
		ExhibitedBehaviorID: res.ExhibitedBehaviorID,
		ExhibitedFreeText:   res.ExhibitedFreeText,
		Notes:               res.Notes,
		StartedAt:           now,
		EndedAt:             now,
	}
	if err := j.validate.Struct(sub); err != nil {
		return types.RoundSubmission{}, fmt.Errorf("judge: incomplete round: %w", err)
	}

	body, err := json.Marshal(sub)
	if err != nil {
		return types.RoundSubmission{}, fmt.Errorf("judge: marshal round: %w", err)
	}
	path := fmt.Sprintf("/sessions/%d/rounds", sessionID)
	if _, err := j.gw.Do(ctx, gateway.Mutate("POST", path, body)); err != nil {
		// Auth failures and server rejections keep the item pending;
		// connectivity failures were already absorbed by the outbox.
		return types.RoundSubmission{}, err
	}

	if _, _, err := j.plans.PopFront(sessionID); err != nil {
		return types.RoundSubmission{}, err
	}
	j.logger.Info("round submitted",
		"session_id", sessionID,
		"dog_id", sub.DogID,
		"exercise_id", sub.ExerciseID,
		"outcome", sub.Outcome)
	return sub, nil
}

// Skip advances past the front item without submitting a round.
func (j *Judge) Skip(sessionID int64) (Item, bool, error) {
	return j.plans.PopFront(sessionID)
}
