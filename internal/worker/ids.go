package worker

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeNow is overridden in tests.
var timeNow = time.Now

// NewMessageID mints a message id of the form "<ts>-<rand>" (spec.md §3).
func NewMessageID() string {
	ts := timeNow().Format("20060102-150405")
	return fmt.Sprintf("%s-%s", ts, uuid.New().String()[:8])
}
