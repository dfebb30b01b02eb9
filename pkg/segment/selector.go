// Package segment implements the per-media-type cursor over a live
// Media Playlist's segment list, bounded by a buffer goal.
package segment

import "github.com/aminofox/hlsplay/pkg/playlist"

// InitStatus tracks whether the initialization segment has been handed to
// the caller and validated by a successful source-buffer append.
type InitStatus int

const (
	InitUnreturned InitStatus = iota
	InitNone
	InitReturned
	InitValidated
)

// ResultKind discriminates the variant returned by NextSegment.
type ResultKind int

const (
	ResultNothing ResultKind = iota
	ResultInitSegment
	ResultMediaSegment
)

// Result is the tagged-union return value of Selector.NextSegment.
type Result struct {
	Kind        ResultKind
	Init        *playlist.MediaInitializationSegment
	MediaSegment *playlist.SegmentInfo
}

// Selector is a cursor over one media type's segment list: base_position,
// buffer_goal, and the returned/validated watermarks.
type Selector struct {
	basePosition float64
	bufferGoal   float64

	lastReturnedStart  *float64
	lastValidatedStart *float64
	initStatus         InitStatus
	lastValidatedInit  InitStatus
}

// New creates a Selector with the given buffer goal, starting at position 0.
func New(bufferGoal float64) *Selector {
	return &Selector{bufferGoal: bufferGoal}
}

// NextSegment is a three-step lookup: first the init
// segment (once), then the next media segment within [cursor, base+goal),
// else Nothing.
func (s *Selector) NextSegment(mp *playlist.MediaPlaylist) Result {
	if s.initStatus == InitUnreturned {
		if mp.Init != nil {
			s.initStatus = InitReturned
			return Result{Kind: ResultInitSegment, Init: mp.Init}
		}
		s.initStatus = InitNone
	}

	maxPos := s.basePosition + s.bufferGoal
	for i := range mp.Segments {
		seg := &mp.Segments[i]
		if s.lastReturnedStart != nil {
			// A returned segment is consumed: the cursor advances strictly
			// past it, or every evaluation would re-request the same one.
			if seg.Start <= *s.lastReturnedStart {
				continue
			}
		} else if seg.Start < s.basePosition {
			continue
		}
		if seg.Start >= maxPos {
			break
		}
		start := seg.Start
		s.lastReturnedStart = &start
		return Result{Kind: ResultMediaSegment, MediaSegment: seg}
	}

	return Result{Kind: ResultNothing}
}

// ValidateInit records that the init segment append succeeded.
func (s *Selector) ValidateInit() {
	s.lastValidatedInit = InitValidated
	if s.initStatus == InitReturned {
		s.initStatus = InitValidated
	}
}

// ValidateMedia records that the media segment starting at start was
// successfully appended.
func (s *Selector) ValidateMedia(start float64) {
	s.lastValidatedStart = &start
}

// Rollback restores the returned-cursor and init status to the last
// validated values, used when a request fails terminally or the rendition
// changes underneath the selector.
func (s *Selector) Rollback() {
	s.lastReturnedStart = s.lastValidatedStart
	s.initStatus = s.lastValidatedInit
}

// ResetPosition rebases the cursor to p and clears the returned/validated
// watermarks. Used on a host seek, which must call ResetPosition and then
// re-issue NextSegment.
func (s *Selector) ResetPosition(p float64) {
	s.basePosition = p
	s.lastReturnedStart = nil
	s.lastValidatedStart = nil
	s.initStatus = InitUnreturned
	s.lastValidatedInit = InitUnreturned
}

// UpdateBasePosition advances the base position (e.g. from a playback
// observation) without touching the returned/validated watermarks.
func (s *Selector) UpdateBasePosition(p float64) {
	s.basePosition = p
}

// SetBufferGoal changes how far ahead of the base position NextSegment is
// willing to return segments.
func (s *Selector) SetBufferGoal(goal float64) {
	s.bufferGoal = goal
}

// BasePosition returns the selector's current base position.
func (s *Selector) BasePosition() float64 {
	return s.basePosition
}

// NextReturnedStart returns the start time that the next successful
// NextSegment call would resume from, or the base position if no segment
// has been returned yet. Exposed so the rollback invariant is checkable:
// after Rollback, it equals the last validated start.
func (s *Selector) NextReturnedStart() float64 {
	if s.lastReturnedStart != nil {
		return *s.lastReturnedStart
	}
	return s.basePosition
}
