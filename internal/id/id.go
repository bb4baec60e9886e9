package id

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a job id: a random UUID without dashes, safe as an object key
// segment and as an asynq task id.
func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Valid reports whether s looks like an id produced by New.
func Valid(s string) bool {
	if len(s) != 32 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
