// Package types holds the JSON resource shapes exposed by the dogtracker API.
package types

// Skill is a trainable skill grouping one or more behaviors.
type Skill struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Behavior is a concrete behavior belonging to a skill.
type Behavior struct {
	ID          int64   `json:"id"`
	SkillID     int64   `json:"skill_id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Exercise is a training exercise a round is performed within.
type Exercise struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Dog is a dog under training.
type Dog struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Callname  *string `json:"callname,omitempty"`
	Birthdate *string `json:"birthdate,omitempty"`
}

// Session is a single training session.
type Session struct {
	ID        int64   `json:"id"`
	StartedAt string  `json:"started_at"`
	EndedAt   *string `json:"ended_at"`
	Location  *string `json:"location,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// Round is a logged attempt of a dog performing a planned behavior
// during an exercise within a session.
type Round struct {
	ID                  int64   `json:"id"`
	SessionID           int64   `json:"session_id"`
	RoundNumber         int64   `json:"round_number"`
	DogID               int64   `json:"dog_id"`
	ExerciseID          int64   `json:"exercise_id"`
	PlannedBehaviorID   int64   `json:"planned_behavior_id"`
	ExhibitedBehaviorID *int64  `json:"exhibited_behavior_id,omitempty"`
	ExhibitedFreeText   *string `json:"exhibited_free_text,omitempty"`
	Outcome             string  `json:"outcome"`
	Score               *int    `json:"score,omitempty"`
	Notes               *string `json:"notes,omitempty"`
	StartedAt           *string `json:"started_at,omitempty"`
	EndedAt             *string `json:"ended_at,omitempty"`
}

// RoundSubmission is the payload POSTed to /sessions/{id}/rounds.
// A round needs a dog, an exercise and a planned behavior; the judging
// workflow refuses partial submissions locally instead of sending them.
type RoundSubmission struct {
	DogID               int64   `json:"dog_id" validate:"required"`
	ExerciseID          int64   `json:"exercise_id" validate:"required"`
	PlannedBehaviorID   int64   `json:"planned_behavior_id" validate:"required"`
	Outcome             string  `json:"outcome" validate:"required,oneof=success partial fail"`
	Score               *int    `json:"score,omitempty" validate:"omitempty,min=0,max=10"`
	ExhibitedBehaviorID *int64  `json:"exhibited_behavior_id,omitempty"`
	ExhibitedFreeText   string  `json:"exhibited_free_text,omitempty"`
	Notes               string  `json:"notes,omitempty"`
	StartedAt           string  `json:"started_at,omitempty"`
	EndedAt             string  `json:"ended_at,omitempty"`
}

// User is the authenticated trainer account.
type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedAt string `json:"created_at"`
}
