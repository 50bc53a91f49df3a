// Package plan maintains the per-session queue of planned training
// items and its judging workflow. The queue order is the training
// order. Queues live only in the local database; they are authoritative
// until items are submitted through the gateway as rounds.
package plan

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Item is one planned (dog, exercise, behavior) tuple. IDs are unique
// per entry: the same dog can appear any number of times.
type Item struct {
	ID                string `json:"id"`
	DogID             int64  `json:"dog_id"`
	ExerciseID        int64  `json:"exercise_id,omitempty"`
	PlannedBehaviorID int64  `json:"planned_behavior_id,omitempty"`
}

// Patch holds field edits for one queue item; nil fields are left as-is.
type Patch struct {
	DogID             *int64
	ExerciseID        *int64
	PlannedBehaviorID *int64
}

// TemplateItem is the behavioral shape of a queue item, with no dog
// binding. Templates are global, not session-scoped.
type TemplateItem struct {
	ExerciseID        int64 `json:"exercise_id,omitempty"`
	PlannedBehaviorID int64 `json:"planned_behavior_id,omitempty"`
}

// Template is a named, reusable list of exercise/behavior pairs.
type Template struct {
	Name  string         `json:"name"`
	Items []TemplateItem `json:"items"`
}

// Store persists plan queues and templates.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates a Store over the shared local database.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Items returns the session's queue in training order. Missing or
// unreadable rows yield an empty queue.
func (s *Store) Items(sessionID int64) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(sessionID)
}

// Append adds an item to the end of the session's queue and returns it
// with its assigned ID.
func (s *Store) Append(sessionID int64, item Item) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	items, err := s.load(sessionID)
	if err != nil {
		return Item{}, err
	}
	items = append(items, item)
	if err := s.save(sessionID, items); err != nil {
		return Item{}, err
	}
	return item, nil
}

// Remove deletes the item at idx.
func (s *Store) Remove(sessionID int64, idx int) error {
	return s.edit(sessionID, func(items []Item) ([]Item, error) {
		if idx < 0 || idx >= len(items) {
			return nil, fmt.Errorf("plan: index %d out of range [0, %d)", idx, len(items))
		}
		return append(items[:idx], items[idx+1:]...), nil
	})
}

// MoveUp swaps the item at idx with its predecessor.
func (s *Store) MoveUp(sessionID int64, idx int) error {
	return s.edit(sessionID, func(items []Item) ([]Item, error) {
		if idx <= 0 || idx >= len(items) {
			return items, nil
		}
		items[idx-1], items[idx] = items[idx], items[idx-1]
		return items, nil
	})
}

// MoveDown swaps the item at idx with its successor.
func (s *Store) MoveDown(sessionID int64, idx int) error {
	return s.edit(sessionID, func(items []Item) ([]Item, error) {
		if idx < 0 || idx >= len(items)-1 {
			return items, nil
		}
		items[idx], items[idx+1] = items[idx+1], items[idx]
		return items, nil
	})
}

// Update patches the fields of the item at idx.
func (s *Store) Update(sessionID int64, idx int, patch Patch) error {
	return s.edit(sessionID, func(items []Item) ([]Item, error) {
		if idx < 0 || idx >= len(items) {
			return nil, fmt.Errorf("plan: index %d out of range [0, %d)", idx, len(items))
		}
		if patch.DogID != nil {
			items[idx].DogID = *patch.DogID
		}
		if patch.ExerciseID != nil {
			items[idx].ExerciseID = *patch.ExerciseID
		}
		if patch.PlannedBehaviorID != nil {
			items[idx].PlannedBehaviorID = *patch.PlannedBehaviorID
		}
		return items, nil
	})
}

// PopFront removes and returns the front item. Both submitting a round
// and skipping pop the front; they differ only in whether a round call
// is made.
func (s *Store) PopFront(sessionID int64) (Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(sessionID)
	if err != nil {
		return Item{}, false, err
	}
	if len(items) == 0 {
		return Item{}, false, nil
	}
	front := items[0]
	if err := s.save(sessionID, items[1:]); err != nil {
		return Item{}, false, err
	}
	return front, true, nil
}

// Clear empties the session's queue.
func (s *Store) Clear(sessionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(sessionID, nil)
}

// SaveTemplate stores the session queue's behavioral shape under name,
// dropping the dog bindings. An existing template with that name is
// replaced.
func (s *Store) SaveTemplate(name string, sessionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(sessionID)
	if err != nil {
		return err
	}
	shape := make([]TemplateItem, len(items))
	for i, it := range items {
		shape[i] = TemplateItem{ExerciseID: it.ExerciseID, PlannedBehaviorID: it.PlannedBehaviorID}
	}
	raw, err := json.Marshal(shape)
	if err != nil {
		return fmt.Errorf("plan: marshal template: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO templates(name, items) VALUES(?, ?)
		 ON CONFLICT(name) DO UPDATE SET items = excluded.items`,
		name, string(raw),
	)
	if err != nil {
		return fmt.Errorf("plan: save template: %w", err)
	}
	return nil
}

// Templates lists all saved templates.
func (s *Store) Templates() ([]Template, error) {
	rows, err := s.db.Query(`SELECT name, items FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("plan: list templates: %w", err)
	}
	defer rows.Close()

	var templates []Template
	for rows.Next() {
		var t Template
		var raw string
		if err := rows.Scan(&t.Name, &raw); err != nil {
			return nil, fmt.Errorf("plan: scan template: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &t.Items); err != nil {
			s.logger.Warn("skipping unreadable template", "name", t.Name, "error", err)
			continue
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// ApplyTemplate appends the named template's items to the session's
// queue. Templates carry no dog binding; appended items need a dog set
// via Update before they can be judged.
func (s *Store) ApplyTemplate(name string, sessionID int64) error {
	var raw string
	err := s.db.QueryRow(`SELECT items FROM templates WHERE name = ?`, name).Scan(&raw)
	if err == sql.ErrNoRows {
		return fmt.Errorf("plan: no template named %q", name)
	}
	if err != nil {
		return fmt.Errorf("plan: load template: %w", err)
	}
	var shape []TemplateItem
	if err := json.Unmarshal([]byte(raw), &shape); err != nil {
		return fmt.Errorf("plan: parse template %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(sessionID)
	if err != nil {
		return err
	}
	for _, t := range shape {
		items = append(items, Item{
			ID:                uuid.New().String(),
			ExerciseID:        t.ExerciseID,
			PlannedBehaviorID: t.PlannedBehaviorID,
		})
	}
	return s.save(sessionID, items)
}

func (s *Store) edit(sessionID int64, fn func([]Item) ([]Item, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(sessionID)
	if err != nil {
		return err
	}
	items, err = fn(items)
	if err != nil {
		return err
	}
	return s.save(sessionID, items)
}

func (s *Store) load(sessionID int64) ([]Item, error) {
	var raw string
	err := s.db.QueryRow(`SELECT items FROM plans WHERE session_id = ?`, sessionID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("plan: load queue: %w", err)
	}
	var items []Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.logger.Warn("unreadable plan queue, treating as empty", "session_id", sessionID, "error", err)
		return nil, nil
	}
	return items, nil
}

func (s *Store) save(sessionID int64, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("plan: marshal queue: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO plans(session_id, items) VALUES(?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET items = excluded.items`,
		sessionID, string(raw),
	)
	if err != nil {
		return fmt.Errorf("plan: save queue: %w", err)
	}
	return nil
}
