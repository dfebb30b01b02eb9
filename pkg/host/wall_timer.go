package host

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aminofox/hlsplay/pkg/requester"
)

// WallTimer is a requester.Timer backed by real wall-clock time via
// time.AfterFunc, the host timer capability for a non-browser CLI host.
type WallTimer struct {
	mu     sync.Mutex
	timers map[requester.TimerId]*time.Timer
}

// NewWallTimer creates a WallTimer.
func NewWallTimer() *WallTimer {
	return &WallTimer{timers: make(map[requester.TimerId]*time.Timer)}
}

// After schedules fn to run after d and returns its timer id.
func (w *WallTimer) After(d time.Duration, reason string, fn func()) requester.TimerId {
	id := uuid.New()

	t := time.AfterFunc(d, func() {
		w.mu.Lock()
		delete(w.timers, id)
		w.mu.Unlock()
		fn()
	})

	w.mu.Lock()
	w.timers[id] = t
	w.mu.Unlock()

	return id
}

// Clear cancels a pending timer, tolerating an id that has already fired
// or was never scheduled.
func (w *WallTimer) Clear(id requester.TimerId) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[id]; ok {
		t.Stop()
		delete(w.timers, id)
	}
}
