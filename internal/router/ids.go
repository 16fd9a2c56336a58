package router

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeNow is overridden in tests.
var timeNow = time.Now

// newRouterMessageID mints a message id for router-originated messages,
// mirroring router.py's new_id("router-") prefix convention.
func newRouterMessageID() string {
	ts := timeNow().Format("20060102-150405")
	return fmt.Sprintf("router-%s-%s", ts, uuid.New().String()[:8])
}
