package domain

import "time"

// FinalResult is what the render collaborator hands back through the callback.
type FinalResult struct {
	URLs        []string  `json:"urls"`
	Caption     string    `json:"caption"`
	CompletedAt time.Time `json:"completed_at"`
}
