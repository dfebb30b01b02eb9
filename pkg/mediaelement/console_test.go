package mediaelement

import (
	"testing"
	"time"

	"github.com/aminofox/hlsplay/pkg/logger"
	"github.com/aminofox/hlsplay/pkg/playlist"
)

func newConsole(t *testing.T) *ConsoleMediaElement {
	t.Helper()
	return NewConsoleMediaElement(logger.NewDefaultLogger(logger.ErrorLevel, "text"), 4)
}

func TestConsoleMediaElementRequiresAttach(t *testing.T) {
	c := newConsole(t)
	if _, err := c.CreateSourceBuffer(playlist.MediaTypeVideo, "video/mp4"); err != ErrNoMediaSourceAttached {
		t.Fatalf("CreateSourceBuffer() before attach = %v, want ErrNoMediaSourceAttached", err)
	}
}

func TestConsoleMediaElementAppendMarksBuffered(t *testing.T) {
	c := newConsole(t)
	if err := c.AttachMediaSource(); err != nil {
		t.Fatalf("AttachMediaSource() error = %v", err)
	}

	id, err := c.CreateSourceBuffer(playlist.MediaTypeVideo, "video/mp4; codecs=\"avc1.64001f\"")
	if err != nil {
		t.Fatalf("CreateSourceBuffer() error = %v", err)
	}

	if _, err := c.CreateSourceBuffer(playlist.MediaTypeVideo, "video/mp4"); err != ErrAlreadyCreatedWithSameType {
		t.Fatalf("second CreateSourceBuffer(video) = %v, want ErrAlreadyCreatedWithSameType", err)
	}

	if err := c.Append(id, []byte("fmp4-bytes")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := c.Append(id, []byte("fmp4-bytes")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	obs := c.Observe()
	r, ok := obs.Buffered[playlist.MediaTypeVideo].RangeFor(2)
	if !ok || r.End != 8 {
		t.Fatalf("buffered range = %+v, %v, want [0,8) after two 4s appends", r, ok)
	}
}

func TestConsoleMediaElementObserveAdvancesThroughBufferedMedia(t *testing.T) {
	c := newConsole(t)
	_ = c.AttachMediaSource()
	id, err := c.CreateSourceBuffer(playlist.MediaTypeVideo, "video/mp4")
	if err != nil {
		t.Fatalf("CreateSourceBuffer() error = %v", err)
	}
	_ = c.Append(id, []byte("bytes")) // buffered [0,4)

	c.Observe() // stamp the clock
	time.Sleep(20 * time.Millisecond)
	obs := c.Observe()

	if obs.Position <= 0 {
		t.Errorf("Position = %v, want it to advance through buffered media", obs.Position)
	}
	if obs.Position > 4 {
		t.Errorf("Position = %v, must not outrun the buffered end at 4", obs.Position)
	}
}

func TestConsoleMediaElementObservePinsWithoutBufferedData(t *testing.T) {
	c := newConsole(t)
	_ = c.AttachMediaSource()
	if _, err := c.CreateSourceBuffer(playlist.MediaTypeVideo, "video/mp4"); err != nil {
		t.Fatalf("CreateSourceBuffer() error = %v", err)
	}

	c.Observe()
	time.Sleep(20 * time.Millisecond)
	if got := c.Observe().Position; got != 0 {
		t.Errorf("Position = %v, want 0 while nothing is buffered", got)
	}
}

func TestConsoleMediaElementRemoveTrims(t *testing.T) {
	c := newConsole(t)
	_ = c.AttachMediaSource()
	id, _ := c.CreateSourceBuffer(playlist.MediaTypeVideo, "video/mp4")
	_ = c.Append(id, []byte("a")) // [0,4)
	_ = c.Append(id, []byte("b")) // [0,8)

	if err := c.Remove(id, 0, 4); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	obs := c.Observe()
	if _, ok := obs.Buffered[playlist.MediaTypeVideo].RangeFor(2); ok {
		t.Errorf("range at 2 should be evicted")
	}
	if _, ok := obs.Buffered[playlist.MediaTypeVideo].RangeFor(6); !ok {
		t.Errorf("range at 6 should survive the eviction")
	}
}

func TestConsoleMediaElementEmptyMime(t *testing.T) {
	c := newConsole(t)
	_ = c.AttachMediaSource()
	if _, err := c.CreateSourceBuffer(playlist.MediaTypeAudio, ""); err != ErrEmptyMimeType {
		t.Fatalf("CreateSourceBuffer() with empty mime = %v, want ErrEmptyMimeType", err)
	}
}
