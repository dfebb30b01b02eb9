package mediaelement

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aminofox/hlsplay/pkg/logger"
	"github.com/aminofox/hlsplay/pkg/playlist"
	"github.com/aminofox/hlsplay/pkg/timeranges"
)

// defaultSecondsPerAppend approximates a typical HLS segment duration.
const defaultSecondsPerAppend = 4.0

// ConsoleMediaElement is a MediaElement for hosts without a real
// MediaSource: it logs every operation and simulates playback so a full
// dispatcher session can run end to end from the command line. Each
// Append marks the next secondsPerAppend slice of that buffer's timeline
// as buffered, and Observe advances the playback position with wall-clock
// time (scaled by the playback rate) through whatever is contiguously
// buffered on every track. The per-append duration is an approximation —
// the element cannot see segment timestamps inside the bytes it is
// handed — but it is enough to keep a session progressing and reporting
// plausible positions.
type ConsoleMediaElement struct {
	log              logger.Logger
	secondsPerAppend float64

	mu          sync.Mutex
	attached    bool
	buffers     map[SourceBufferId]playlist.MediaType
	buffered    map[playlist.MediaType]*timeranges.TimeRanges
	appendEnd   map[playlist.MediaType]float64
	position    float64
	rate        float64
	lastObserve time.Time
}

// NewConsoleMediaElement creates a ConsoleMediaElement logging through l.
// secondsPerAppend is how much timeline each appended segment is assumed
// to cover; zero or negative selects the default of 4s.
func NewConsoleMediaElement(l logger.Logger, secondsPerAppend float64) *ConsoleMediaElement {
	if secondsPerAppend <= 0 {
		secondsPerAppend = defaultSecondsPerAppend
	}
	return &ConsoleMediaElement{
		log:              l,
		secondsPerAppend: secondsPerAppend,
		buffers:          make(map[SourceBufferId]playlist.MediaType),
		buffered:         make(map[playlist.MediaType]*timeranges.TimeRanges),
		appendEnd:        make(map[playlist.MediaType]float64),
		rate:             1.0,
	}
}

func (c *ConsoleMediaElement) AttachMediaSource() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = true
	c.log.Info("media source attached")
	return nil
}

func (c *ConsoleMediaElement) CreateSourceBuffer(mediaType playlist.MediaType, codecsMime string) (SourceBufferId, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached {
		return SourceBufferId{}, ErrNoMediaSourceAttached
	}
	if codecsMime == "" {
		return SourceBufferId{}, ErrEmptyMimeType
	}
	for _, mt := range c.buffers {
		if mt == mediaType {
			return SourceBufferId{}, ErrAlreadyCreatedWithSameType
		}
	}

	id := uuid.New()
	c.buffers[id] = mediaType
	c.buffered[mediaType] = timeranges.New()
	c.appendEnd[mediaType] = c.position
	c.log.Info("source buffer created", logger.String("media_type", mediaType.String()), logger.String("codecs", codecsMime))
	return id, nil
}

// Append marks the next slice of the buffer's timeline as buffered.
func (c *ConsoleMediaElement) Append(id SourceBufferId, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	mt, ok := c.buffers[id]
	if !ok {
		return ErrNoMediaSourceAttached
	}

	start := c.appendEnd[mt]
	end := start + c.secondsPerAppend
	c.buffered[mt].Add(start, end)
	c.appendEnd[mt] = end

	c.log.Debug("appended bytes", logger.String("media_type", mt.String()),
		logger.Int("bytes", len(data)), logger.Float64("buffered_to", end))
	return nil
}

func (c *ConsoleMediaElement) Remove(id SourceBufferId, start, end float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	mt, ok := c.buffers[id]
	if !ok {
		return ErrNoMediaSourceAttached
	}
	if tr, ok := c.buffered[mt]; ok && start <= 0 {
		tr.TrimBefore(end)
	}
	c.log.Debug("removed buffered range", logger.String("media_type", mt.String()),
		logger.Float64("start", start), logger.Float64("end", end))
	return nil
}

func (c *ConsoleMediaElement) EndOfStream(kind EndOfStreamKind) {
	c.log.Info("end of stream", logger.Int("kind", int(kind)))
}

// Seek jumps the simulated clock; subsequent appends buffer forward from
// the new position.
func (c *ConsoleMediaElement) Seek(position float64) {
	c.mu.Lock()
	c.position = position
	for mt := range c.appendEnd {
		c.appendEnd[mt] = position
	}
	c.mu.Unlock()
	c.log.Info("seek", logger.Float64("position", position))
}

func (c *ConsoleMediaElement) SetPlaybackRate(rate float64) {
	c.mu.Lock()
	c.rate = rate
	c.mu.Unlock()
	c.log.Info("playback rate changed", logger.Float64("rate", rate))
}

// Observe advances the simulated playback position by the wall-clock time
// elapsed since the previous observation, scaled by the playback rate and
// clamped so the position never outruns what is contiguously buffered on
// every track, then reports the current snapshot.
func (c *ConsoleMediaElement) Observe() Observation {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if !c.lastObserve.IsZero() {
		advanced := c.position + c.rate*now.Sub(c.lastObserve).Seconds()
		if limit := c.playableEndLocked(); advanced > limit {
			advanced = limit
		}
		if advanced > c.position {
			c.position = advanced
		}
	}
	c.lastObserve = now

	buffered := make(map[playlist.MediaType]*timeranges.TimeRanges, len(c.buffered))
	for mt, tr := range c.buffered {
		buffered[mt] = tr
	}
	return Observation{Position: c.position, Buffered: buffered}
}

// playableEndLocked returns how far playback can advance: the minimum,
// across tracks, of the end of the buffered range containing the current
// position. A track with no data at the position pins playback in place.
func (c *ConsoleMediaElement) playableEndLocked() float64 {
	if len(c.buffered) == 0 {
		return c.position
	}
	end := -1.0
	for _, tr := range c.buffered {
		r, ok := tr.RangeFor(c.position)
		if !ok {
			return c.position
		}
		if end < 0 || r.End < end {
			end = r.End
		}
	}
	return end
}
