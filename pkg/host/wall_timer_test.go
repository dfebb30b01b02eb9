package host

import (
	"testing"
	"time"
)

func TestWallTimerFires(t *testing.T) {
	w := NewWallTimer()
	done := make(chan struct{})
	w.After(10*time.Millisecond, "test", func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestWallTimerClearPreventsFire(t *testing.T) {
	w := NewWallTimer()
	fired := false
	id := w.After(50*time.Millisecond, "test", func() { fired = true })
	w.Clear(id)

	time.Sleep(100 * time.Millisecond)
	if fired {
		t.Errorf("cleared timer fired anyway")
	}
}

func TestWallTimerClearUnknownIdIsNoop(t *testing.T) {
	w := NewWallTimer()
	w.Clear([16]byte{9}) // never scheduled; must not panic
}
