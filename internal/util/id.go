package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a short random job identifier: the first 12 hex characters
// of a UUIDv4 with the dashes removed. Collision odds are acceptable for a
// single-process queue of short-lived jobs.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
