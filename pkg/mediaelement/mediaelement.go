// Package mediaelement defines the thin typed facade the control plane
// uses to drive the host media element: attach a MediaSource, create
// source buffers, push bytes, observe buffered ranges, seek, and change
// playback rate.
package mediaelement

import (
	"github.com/google/uuid"

	"github.com/aminofox/hlsplay/pkg/playlist"
	"github.com/aminofox/hlsplay/pkg/timeranges"
)

// SourceBufferId is an opaque handle to a host-owned source buffer.
type SourceBufferId = uuid.UUID

// CreationError enumerates why CreateSourceBuffer can fail.
type CreationError int

const (
	ErrEmptyMimeType CreationError = iota
	ErrNoMediaSourceAttached
	ErrMediaSourceIsClosed
	ErrQuotaExceeded
	ErrCantPlayType
	ErrAlreadyCreatedWithSameType
	ErrCreationUnknown
)

func (e CreationError) Error() string {
	switch e {
	case ErrEmptyMimeType:
		return "empty mime type"
	case ErrNoMediaSourceAttached:
		return "no media source attached"
	case ErrMediaSourceIsClosed:
		return "media source is closed"
	case ErrQuotaExceeded:
		return "quota exceeded"
	case ErrCantPlayType:
		return "cannot play type"
	case ErrAlreadyCreatedWithSameType:
		return "source buffer already created with the same type"
	default:
		return "unknown source buffer creation error"
	}
}

// EndOfStreamKind is the reason end_of_stream was called.
type EndOfStreamKind int

const (
	EndOfStreamEnded EndOfStreamKind = iota
	EndOfStreamNetworkError
	EndOfStreamDecodeError
)

// Observation is a single snapshot delivered by MediaElement.Observe: the
// host's current playback position and, per media type, the buffered
// ranges of its source buffer.
type Observation struct {
	Position float64
	Buffered map[playlist.MediaType]*timeranges.TimeRanges
}

// MediaElement is the collaborator interface the dispatcher drives.
// Every method corresponds 1:1 to a host capability; no method blocks.
// Results that can't complete synchronously arrive back through the
// dispatcher's own event callbacks, matching the host-driven concurrency
// model.
type MediaElement interface {
	AttachMediaSource() error
	CreateSourceBuffer(mediaType playlist.MediaType, codecsMime string) (SourceBufferId, error)
	Append(id SourceBufferId, data []byte) error
	Remove(id SourceBufferId, start, end float64) error
	EndOfStream(kind EndOfStreamKind)
	Seek(position float64)
	SetPlaybackRate(rate float64)
	Observe() Observation
}
