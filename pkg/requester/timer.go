package requester

import (
	"time"

	"github.com/google/uuid"
)

// TimerId is an opaque handle for a scheduled timer.
type TimerId = uuid.UUID

// Timer is the host timer capability: schedule a callback after a delay,
// or cancel a pending one. Retry backoff (§4.7) and playlist refresh
// (§4.9) both go through it. Implementations live in pkg/host.
type Timer interface {
	After(d time.Duration, reason string, fn func()) TimerId
	Clear(id TimerId)
}
