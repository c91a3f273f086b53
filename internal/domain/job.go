package domain

import "time"

// JobState enumerates the job lifecycle.
type JobState string

const (
	StateCreating     JobState = "creating"
	StatePreviewReady JobState = "preview_ready"
	StatePicking      JobState = "picking"
	StateFinalizing   JobState = "finalizing"
	StateDone         JobState = "done"
	StateError        JobState = "error"
)

// transitions lists every permitted move. Self loops on finalizing and done
// cover dispatch retries and duplicate callbacks.
var transitions = map[JobState][]JobState{
	StateCreating:     {StatePreviewReady, StateError, StateDone},
	StatePreviewReady: {StatePicking, StateFinalizing, StateError, StateDone},
	StatePicking:      {StateFinalizing, StateDone},
	StateFinalizing:   {StateFinalizing, StateDone, StateError},
	StateDone:         {StateDone},
}

// CanTransition reports whether the graph allows moving from s to next.
func (s JobState) CanTransition(next JobState) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Finalizable reports whether a finalize request may proceed past the state
// check. Whether a finalizing job is re-dispatched is decided by the lock.
func (s JobState) Finalizable() bool {
	switch s {
	case StatePreviewReady, StatePicking, StateFinalizing:
		return true
	default:
		return false
	}
}

// Pickable reports whether the pick set may still change.
func (s JobState) Pickable() bool {
	return s == StatePreviewReady || s == StatePicking
}

// Terminal reports whether no further transition is possible except
// idempotent ones.
func (s JobState) Terminal() bool {
	return s == StateError || s == StateDone
}

// Valid reports whether s is a known state.
func (s JobState) Valid() bool {
	_, ok := transitions[s]
	return ok || s == StateError
}

// Prompt holds the three free-text fields a requester supplies.
type Prompt struct {
	Subject string `json:"subject"`
	Theme   string `json:"theme"`
	Style   string `json:"style"`
}

// AcquisitionMeta records how the preview set was produced.
type AcquisitionMeta struct {
	Profile      string `json:"profile"`
	RawCount     int    `json:"raw_count"`
	PreviewCount int    `json:"preview_count"`
	Attempts     int    `json:"attempts"`
}

// Job is the durable record for one request, from prompt to finalized assets.
type Job struct {
	ID                  string           `json:"id"`
	Prompt              Prompt           `json:"prompt"`
	TargetCount         int              `json:"target_count"`
	RequesterRef        string           `json:"requester_ref,omitempty"`
	State               JobState         `json:"state"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	LastError           string           `json:"last_error,omitempty"`
	Acquisition         *AcquisitionMeta `json:"acquisition,omitempty"`
	Picks               []int            `json:"picks,omitempty"`
	WantCaption         bool             `json:"want_caption,omitempty"`
	FinalizeRequestedAt *time.Time       `json:"finalize_requested_at,omitempty"`
	CompletedAt         *time.Time       `json:"completed_at,omitempty"`
}

// Advance moves the job to next if the graph allows it.
func (j *Job) Advance(next JobState) error {
	if !j.State.CanTransition(next) {
		return &StateConflictError{Op: "move to " + string(next), State: j.State}
	}
	j.State = next
	return nil
}

// Fail moves the job to error and records msg.
func (j *Job) Fail(msg string) error {
	if err := j.Advance(StateError); err != nil {
		return err
	}
	j.LastError = msg
	return nil
}

// NewJobSpec is the input to job creation.
type NewJobSpec struct {
	Prompt       Prompt
	TargetCount  int
	RequesterRef string
}
