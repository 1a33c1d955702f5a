package model

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewULID returns a time-sortable identifier used for steps, timings,
// checkpoints and artifacts. IDs from one process are strictly increasing.
func NewULID() string {
	return ulid.Make().String()
}

// NewUUID returns a random identifier used for runs, features and threads
func NewUUID() string {
	return uuid.New().String()
}
