// Package dispatcher implements the top-level Stopped→Loading→
// AwaitingSegments→Playing state machine that ties the playlist store,
// adaptive selector, segment selectors, requester, and media element
// together.
package dispatcher

import (
	"bytes"
	stderrors "errors"
	"sync"
	"time"

	"github.com/aminofox/hlsplay/pkg/adaptive"
	"github.com/aminofox/hlsplay/pkg/errors"
	"github.com/aminofox/hlsplay/pkg/logger"
	"github.com/aminofox/hlsplay/pkg/mediaelement"
	"github.com/aminofox/hlsplay/pkg/playlist"
	"github.com/aminofox/hlsplay/pkg/requester"
	"github.com/aminofox/hlsplay/pkg/segment"
	"github.com/aminofox/hlsplay/pkg/store"
	"github.com/aminofox/hlsplay/pkg/timeranges"
	"github.com/aminofox/hlsplay/pkg/urlutil"
)

// ReadyState is the dispatcher's top-level state.
type ReadyState int

const (
	StateStopped ReadyState = iota
	StateLoading
	StateAwaitingSegments
	StatePlaying
)

func (s ReadyState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateLoading:
		return "loading"
	case StateAwaitingSegments:
		return "awaiting-segments"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// TickReason enumerates the host playback-observation reasons that must
// round-trip through the dispatcher.
type TickReason int

const (
	TickInit TickReason = iota
	TickSeeking
	TickSeeked
	TickRegularInterval
	TickLoadedData
	TickLoadedMetadata
	TickCanPlay
	TickCanPlayThrough
	TickEnded
	TickPause
	TickPlay
	TickRateChange
	TickStalled
)

var tickReasonNames = map[TickReason]string{
	TickInit:            "Init",
	TickSeeking:         "Seeking",
	TickSeeked:          "Seeked",
	TickRegularInterval: "RegularInterval",
	TickLoadedData:      "LoadedData",
	TickLoadedMetadata:  "LoadedMetadata",
	TickCanPlay:         "CanPlay",
	TickCanPlayThrough:  "CanPlayThrough",
	TickEnded:           "Ended",
	TickPause:           "Pause",
	TickPlay:            "Play",
	TickRateChange:      "RateChange",
	TickStalled:         "Stalled",
}

func (r TickReason) String() string {
	if name, ok := tickReasonNames[r]; ok {
		return name
	}
	return "Unknown"
}

// TickReasonFromString parses the name produced by TickReason.String,
// completing the round-trip the host bindings rely on.
func TickReasonFromString(s string) (TickReason, bool) {
	for r, name := range tickReasonNames {
		if name == s {
			return r, true
		}
	}
	return 0, false
}

// mediaTypes is the fixed set of media types the dispatcher drives
// pipelines for; subtitles/closed-captions are out of scope for segment
// fetching.
var mediaTypes = []playlist.MediaType{playlist.MediaTypeVideo, playlist.MediaTypeAudio}

// quotaEvictionKeep is how many seconds of media behind the playback
// position survive a QuotaExceeded eviction.
const quotaEvictionKeep = 30.0

// Dispatcher is the core orchestrator. A browser host would serialize
// every entrypoint and callback onto one thread; here the Requester and
// Timer collaborators deliver fetch/timer completions from their own
// goroutines, so mu guards all dispatcher state.
type Dispatcher struct {
	mu sync.Mutex

	log       logger.Logger
	requester *requester.Requester
	media     mediaelement.MediaElement
	selector  *adaptive.AdaptiveQualitySelector
	timer     requester.Timer

	store            *store.Store
	segSelectors     map[playlist.MediaType]*segment.Selector
	sourceBufs       map[playlist.MediaType]mediaelement.SourceBufferId
	buffered         map[playlist.MediaType]*timeranges.TimeRanges
	refreshTimers    map[store.PermanentId]requester.TimerId
	loadedMP         map[store.PermanentId]bool
	refreshHighWater map[store.PermanentId]int64
	lastRefreshDelay map[store.PermanentId]time.Duration
	failedVariants   map[int]bool

	state        ReadyState
	bufferGoal   float64
	lastPosition float64
	eosSignaled  bool

	onStateChange func(ReadyState)
	onTick        func(TickReason, float64)
}

// New creates a Dispatcher wiring the given collaborators.
func New(req *requester.Requester, media mediaelement.MediaElement, timer requester.Timer, log logger.Logger) *Dispatcher {
	d := &Dispatcher{
		log:              log,
		requester:        req,
		media:            media,
		timer:            timer,
		selector:         adaptive.NewAdaptiveQualitySelector(adaptive.DefaultSafetyFactor),
		segSelectors:     make(map[playlist.MediaType]*segment.Selector),
		sourceBufs:       make(map[playlist.MediaType]mediaelement.SourceBufferId),
		buffered:         make(map[playlist.MediaType]*timeranges.TimeRanges),
		refreshTimers:    make(map[store.PermanentId]requester.TimerId),
		loadedMP:         make(map[store.PermanentId]bool),
		refreshHighWater: make(map[store.PermanentId]int64),
		lastRefreshDelay: make(map[store.PermanentId]time.Duration),
		failedVariants:   make(map[int]bool),
		bufferGoal:       30,
	}
	for _, mt := range mediaTypes {
		d.segSelectors[mt] = segment.New(d.bufferGoal)
		d.buffered[mt] = timeranges.New()
	}

	req.OnPlaylistFinished(d.handlePlaylistOutcome)
	req.OnSegmentFinished(d.handleSegmentOutcome)

	return d
}

// SetPlayerID tags every log line from this dispatcher with the host's
// player id.
func (d *Dispatcher) SetPlayerID(id string) {
	if d.log != nil {
		d.log = d.log.With(logger.String("player_id", id))
	}
}

// OnStateChange registers a callback invoked whenever ReadyState changes,
// used by pkg/hostbridge to mirror transitions for observability.
func (d *Dispatcher) OnStateChange(fn func(ReadyState)) {
	d.onStateChange = fn
}

// OnTickObserved registers a callback invoked for every playback tick the
// host feeds in, after the dispatcher has acted on it. Observability only.
func (d *Dispatcher) OnTickObserved(fn func(TickReason, float64)) {
	d.onTick = fn
}

// ReadyState returns the current top-level state.
func (d *Dispatcher) ReadyState() ReadyState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Dispatcher) setState(s ReadyState) {
	if d.state == s {
		return
	}
	d.state = s
	if d.log != nil {
		d.log.Info("ready state changed", logger.String("state", s.String()))
	}
	if d.onStateChange != nil {
		d.onStateChange(s)
	}
}

// SetBufferGoal changes the buffer goal applied to every media type's
// segment selector.
func (d *Dispatcher) SetBufferGoal(goal float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bufferGoal = goal
	for _, sel := range d.segSelectors {
		sel.SetBufferGoal(goal)
	}
}

// SetRequestPolicy overrides the retry/backoff/timeout policy for one
// request category class.
func (d *Dispatcher) SetRequestPolicy(class requester.PolicyClass, p requester.Policy) {
	d.requester.SetPolicy(class, p)
}

// SetWantedSpeed forwards a playback-rate change to the media element.
func (d *Dispatcher) SetWantedSpeed(rate float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.media.SetPlaybackRate(rate)
}

// LockVariant overrides adaptive selection with a fixed variant index.
func (d *Dispatcher) LockVariant(index int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selector.Lock(index)
}

// UnlockVariant resumes estimator-driven variant selection.
func (d *Dispatcher) UnlockVariant() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selector.Unlock()
}

// MinimumPosition returns the earliest position at which every active
// pipeline has buffered data, or 0 when nothing is buffered yet.
func (d *Dispatcher) MinimumPosition() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	pos := 0.0
	for _, mt := range mediaTypes {
		tr, ok := d.buffered[mt]
		if !ok || tr.Len() == 0 {
			continue
		}
		if start := tr.At(0).Start; start > pos {
			pos = start
		}
	}
	return pos
}

// MaximumPosition returns the duration of the loaded content, or 0 if
// nothing is loaded yet.
func (d *Dispatcher) MaximumPosition() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.store == nil {
		return 0
	}
	dur, ok := d.store.CurrentDuration()
	if !ok {
		return 0
	}
	return dur
}

// Buffered returns a copy of the buffered ranges tracked for one media
// type.
func (d *Dispatcher) Buffered(mt playlist.MediaType) []timeranges.Range {
	d.mu.Lock()
	defer d.mu.Unlock()
	tr, ok := d.buffered[mt]
	if !ok {
		return nil
	}
	return tr.Ranges()
}

// LoadContent starts loading a new Multivariant Playlist.
func (d *Dispatcher) LoadContent(url urlutil.Url) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.setState(StateLoading)

	if err := d.media.AttachMediaSource(); err != nil {
		d.fail(errors.ErrCodeMediaSourceAttach, "attach media source", err)
		return
	}

	d.requester.FetchPlaylist(url, requester.Category{Kind: requester.CategoryMultivariant})
}

// Stop aborts all pending requests, cancels every timer, clears the
// playlist store and selectors, and transitions to Stopped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// stopLocked is Stop's body, callable from LoadContent while mu is
// already held (Stop itself is a host entrypoint, so it cannot reuse the
// public Stop without double-locking the non-reentrant mutex).
func (d *Dispatcher) stopLocked() {
	d.requester.AbortAll()
	for _, id := range d.refreshTimers {
		d.timer.Clear(id)
	}
	d.refreshTimers = make(map[store.PermanentId]requester.TimerId)
	d.loadedMP = make(map[store.PermanentId]bool)
	d.refreshHighWater = make(map[store.PermanentId]int64)
	d.lastRefreshDelay = make(map[store.PermanentId]time.Duration)
	d.failedVariants = make(map[int]bool)

	if d.store != nil {
		d.store.Clear()
		d.store = nil
	}
	for _, sel := range d.segSelectors {
		sel.ResetPosition(0)
	}
	for _, tr := range d.buffered {
		tr.Clear()
	}
	d.selector.Reset()
	d.sourceBufs = make(map[playlist.MediaType]mediaelement.SourceBufferId)
	d.lastPosition = 0
	d.eosSignaled = false

	d.setState(StateStopped)
}

// fail logs a fatal error and transitions to Stopped after best-effort
// cleanup.
func (d *Dispatcher) fail(code errors.ErrorCode, message string, cause error) {
	if d.log != nil {
		d.log.Error(message, logger.Err(errors.Wrap(code, message, cause)))
	}
	d.requester.AbortAll()
	for _, id := range d.refreshTimers {
		d.timer.Clear(id)
	}
	d.refreshTimers = make(map[store.PermanentId]requester.TimerId)
	d.refreshHighWater = make(map[store.PermanentId]int64)
	d.lastRefreshDelay = make(map[store.PermanentId]time.Duration)
	d.setState(StateStopped)
}

// networkErrCode maps a settled fetch failure onto the coded taxonomy.
func networkErrCode(err error) errors.ErrorCode {
	var statusErr *requester.StatusError
	if stderrors.As(err, &statusErr) {
		return errors.ErrCodeNetworkStatus
	}
	var timeoutErr *requester.TimeoutError
	if stderrors.As(err, &timeoutErr) {
		return errors.ErrCodeNetworkTimeout
	}
	return errors.ErrCodeNetworkExhausted
}

func (d *Dispatcher) handlePlaylistOutcome(o requester.Outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A fetch settling after stop() or a fatal error must not restart the
	// machine.
	if d.state == StateStopped {
		return
	}
	if d.store == nil && o.Category.Kind != requester.CategoryMultivariant {
		return
	}

	if o.Category.Kind == requester.CategoryMultivariant {
		d.handleMultivariantOutcome(o)
		return
	}
	d.handleMediaPlaylistOutcome(o)
}

func (d *Dispatcher) handleMultivariantOutcome(o requester.Outcome) {
	if o.Err != nil {
		d.fail(networkErrCode(o.Err), "fetch multivariant playlist", o.Err)
		return
	}

	mvp, err := playlist.ParseMultivariantPlaylist(bytes.NewReader(o.Data), o.URL)
	if err != nil {
		d.fail(errors.ErrCodeMultivariantFatal, "parse multivariant playlist", err)
		return
	}
	if len(mvp.Variants) == 0 {
		d.fail(errors.ErrCodeNoFallbackRendition, "multivariant playlist has no variants", nil)
		return
	}

	d.store = store.New(mvp)

	bandwidths := make([]int, len(mvp.Variants))
	for i, v := range mvp.Variants {
		bandwidths[i] = v.Bandwidth
	}
	idx := d.selector.SelectVariant(bandwidths)
	if err := d.store.UpdateVariant(idx); err != nil {
		d.fail(errors.ErrCodeNoFallbackRendition, "select initial variant", err)
		return
	}

	d.requestActiveMediaPlaylists()
}

func (d *Dispatcher) requestActiveMediaPlaylists() {
	for _, mt := range mediaTypes {
		id := d.idFor(mt)
		if id == nil {
			continue
		}
		if d.loadedMP[*id] || d.requester.HasPendingMediaPlaylist(*id) {
			continue
		}
		url, ok := d.store.CurrentRequestURL(mt)
		if !ok {
			continue
		}
		d.requester.FetchPlaylist(url, requester.Category{Kind: requester.CategoryMediaPlaylist, Id: *id, MediaType: mt})
	}
}

func (d *Dispatcher) idFor(mt playlist.MediaType) *store.PermanentId {
	if mt == playlist.MediaTypeAudio {
		return d.store.CurrentAudioId()
	}
	return d.store.CurrentVideoId()
}

func (d *Dispatcher) handleMediaPlaylistOutcome(o requester.Outcome) {
	if o.Err != nil {
		d.handleMediaPlaylistFailure(o)
		return
	}

	mp, err := d.store.UpdateMediaPlaylist(o.Category.Id, o.Data, o.URL)
	if err != nil {
		d.handleMediaPlaylistFailure(requester.Outcome{Category: o.Category, Err: err})
		return
	}
	d.loadedMP[o.Category.Id] = true

	d.scheduleRefresh(o.Category.Id, o.Category.MediaType, mp)
	d.evaluateSegmentLoop()
	d.maybeEnterAwaitingSegments()
}

// handleMediaPlaylistFailure treats the failure as terminal for that
// rendition: the dispatcher falls back to the lowest variant that has not
// failed yet, and only declares a global fatal error when no fallback
// variant remains.
func (d *Dispatcher) handleMediaPlaylistFailure(o requester.Outcome) {
	cur := d.idFor(o.Category.MediaType)
	if cur == nil || *cur != o.Category.Id {
		if d.log != nil {
			d.log.Warn("dropping stale media playlist failure",
				logger.String("media_type", o.Category.MediaType.String()), logger.Err(o.Err))
		}
		return
	}

	if d.log != nil {
		d.log.Error("media playlist failed",
			logger.String("media_type", o.Category.MediaType.String()), logger.Err(o.Err))
	}

	if o.Category.Id.Kind == store.IdKindVariant {
		d.failedVariants[o.Category.Id.Index] = true
		if idx, ok := d.fallbackVariant(); ok {
			if d.log != nil {
				d.log.Warn("falling back to another variant", logger.Int("variant", idx))
			}
			if err := d.store.UpdateVariant(idx); err == nil {
				for _, sel := range d.segSelectors {
					sel.Rollback()
				}
				d.requestActiveMediaPlaylists()
				return
			}
		}
	}

	d.fail(errors.ErrCodeNoFallbackRendition, "no renditions left to play", o.Err)
}

// fallbackVariant returns the lowest-bandwidth variant index that has not
// failed yet.
func (d *Dispatcher) fallbackVariant() (int, bool) {
	mvp := d.store.Multivariant()
	if mvp == nil {
		return 0, false
	}
	for i := range mvp.Variants {
		if !d.failedVariants[i] {
			return i, true
		}
	}
	return 0, false
}

// scheduleRefresh arms the next reload timer for a live Media Playlist
// per RFC 8216 §6.3.4: the first reload after install waits the full
// TargetDuration; a reload that observed no new segment halves the
// previous wait (floored at 1s); a reload that did observe a new segment
// resets the wait back to TargetDuration.
func (d *Dispatcher) scheduleRefresh(id store.PermanentId, mt playlist.MediaType, mp *playlist.MediaPlaylist) {
	if cur := d.idFor(mt); cur == nil || *cur != id {
		// The rendition switched while this reload was in flight; a stale
		// id must not keep a refresh cycle alive.
		return
	}

	highWater := mp.MediaSequence + int64(len(mp.Segments))
	prevHighWater, hadPrev := d.refreshHighWater[id]
	d.refreshHighWater[id] = highWater

	if !mp.IsLive() {
		delete(d.lastRefreshDelay, id)
		return
	}

	full := secondsToDuration(mp.TargetDuration)
	delay := full
	if hadPrev && highWater == prevHighWater {
		if prev, ok := d.lastRefreshDelay[id]; ok {
			delay = prev / 2
			if delay < time.Second {
				delay = time.Second
			}
		}
	}
	d.lastRefreshDelay[id] = delay

	d.refreshTimers[id] = d.timer.After(delay, "refresh", func() {
		d.refreshMediaPlaylist(id, mt)
	})
}

func (d *Dispatcher) refreshMediaPlaylist(id store.PermanentId, mt playlist.MediaType) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.refreshTimers, id)
	if d.store == nil {
		return
	}
	url, ok := d.urlForId(id)
	if !ok {
		return
	}
	if d.requester.HasPendingMediaPlaylist(id) {
		return
	}
	d.requester.FetchPlaylist(url, requester.Category{Kind: requester.CategoryMediaPlaylist, Id: id, MediaType: mt})
}

func (d *Dispatcher) urlForId(id store.PermanentId) (urlutil.Url, bool) {
	mvp := d.store.Multivariant()
	if mvp == nil {
		return urlutil.Url{}, false
	}
	switch id.Kind {
	case store.IdKindVariant:
		if id.Index < 0 || id.Index >= len(mvp.Variants) {
			return urlutil.Url{}, false
		}
		return mvp.Variants[id.Index].URL, true
	case store.IdKindMediaTag:
		if id.Index < 0 || id.Index >= len(mvp.Media) {
			return urlutil.Url{}, false
		}
		m := mvp.Media[id.Index]
		if m.URI == nil {
			return urlutil.Url{}, false
		}
		return *m.URI, true
	}
	return urlutil.Url{}, false
}

// maybeEnterAwaitingSegments transitions Loading→AwaitingSegments once
// every active media type has its Media Playlist loaded and its source
// buffer created.
func (d *Dispatcher) maybeEnterAwaitingSegments() {
	if d.state != StateLoading {
		return
	}
	for _, mt := range mediaTypes {
		id := d.idFor(mt)
		if id == nil {
			continue
		}
		if d.store.CurrentMediaPlaylist(mt) == nil {
			return
		}
		if _, ok := d.sourceBufs[mt]; !ok {
			return
		}
	}
	d.setState(StateAwaitingSegments)
	d.maybeEnterPlaying()
}

// maybeEnterPlaying transitions AwaitingSegments→Playing once every
// active pipeline has a buffered range crossing the playback position.
func (d *Dispatcher) maybeEnterPlaying() {
	if d.state != StateAwaitingSegments {
		return
	}
	for _, mt := range mediaTypes {
		id := d.idFor(mt)
		if id == nil {
			continue
		}
		tr, ok := d.buffered[mt]
		if !ok {
			return
		}
		if _, ok := tr.RangeFor(d.lastPosition); !ok {
			return
		}
	}
	d.setState(StatePlaying)
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return time.Second
	}
	return time.Duration(s * float64(time.Second))
}

// evaluateSegmentLoop drives the per-media-type segment pump: ensure a
// source buffer exists, then ask each active rendition's selector for its
// next unit of work. At most one segment request per media type is kept
// in flight. When every active pipeline has drained an end-listed
// playlist, end-of-stream is signaled exactly once.
func (d *Dispatcher) evaluateSegmentLoop() {
	active := 0
	drained := 0

	for _, mt := range mediaTypes {
		id := d.idFor(mt)
		if id == nil {
			continue
		}
		mp := d.store.CurrentMediaPlaylist(mt)
		if mp == nil {
			continue
		}
		active++
		if _, ok := d.sourceBufs[mt]; !ok {
			if err := d.ensureSourceBuffer(mt); err != nil {
				d.fail(errors.ErrCodeSourceBufferCreation, "create source buffer", err)
				return
			}
		}
		if d.requester.HasPendingSegment(mt) {
			continue
		}

		result := d.segSelectors[mt].NextSegment(mp)
		switch result.Kind {
		case segment.ResultInitSegment:
			d.requester.FetchInitSegment(mt, result.Init.URI)
		case segment.ResultMediaSegment:
			seg := result.MediaSegment
			d.requester.FetchMediaSegment(mt, seg.URI, seg.Start, seg.Start+seg.Duration)
		case segment.ResultNothing:
			if mp.EndList {
				drained++
			}
		}
	}

	if active > 0 && drained == active && !d.eosSignaled {
		d.eosSignaled = true
		d.media.EndOfStream(mediaelement.EndOfStreamEnded)
	}
}

// ensureSourceBuffer creates the host source buffer for mt, deriving a
// MIME type from the current variant's CODECS attribute. The control
// plane has no independent codec negotiation for the audio rendition; it
// reuses the combined variant's codec string, which is an acceptable
// simplification for a single-audio-group stream.
func (d *Dispatcher) ensureSourceBuffer(mt playlist.MediaType) error {
	id, err := d.media.CreateSourceBuffer(mt, d.mimeFor(mt))
	if err != nil {
		return err
	}
	d.sourceBufs[mt] = id
	return nil
}

func (d *Dispatcher) mimeFor(mt playlist.MediaType) string {
	kind := "video"
	if mt == playlist.MediaTypeAudio {
		kind = "audio"
	}

	codecs := ""
	if idx, ok := d.store.CurrentVariantIndex(); ok {
		if mvp := d.store.Multivariant(); mvp != nil && idx < len(mvp.Variants) {
			codecs = mvp.Variants[idx].Codecs
		}
	}
	if codecs == "" {
		return kind + "/mp4"
	}
	return kind + `/mp4; codecs="` + codecs + `"`
}

func (d *Dispatcher) handleSegmentOutcome(o requester.Outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateStopped || d.store == nil {
		return
	}

	if o.Err != nil {
		d.handleSegmentFailure(o)
		return
	}

	sbID, ok := d.sourceBufs[o.Category.MediaType]
	if !ok {
		return
	}
	if err := d.media.Append(sbID, o.Data); err != nil {
		if !d.retryAppendAfterEviction(sbID, o.Category.MediaType, o.Data, err) {
			d.fail(errors.ErrCodeQuotaExceeded, "append segment", err)
			return
		}
	}

	sel := d.segSelectors[o.Category.MediaType]
	switch o.Category.Kind {
	case requester.CategoryInitSegment:
		sel.ValidateInit()
	case requester.CategoryMediaSegment:
		sel.ValidateMedia(o.Category.Start)
		if tr, ok := d.buffered[o.Category.MediaType]; ok {
			tr.Add(o.Category.Start, o.Category.End)
		}
		d.selector.AddMetric(o.DurationMs, uint32(len(o.Data)))
		d.reconsiderVariant()
	}

	d.maybeEnterPlaying()
	d.evaluateSegmentLoop()
}

// retryAppendAfterEviction handles a QuotaExceeded append: evict
// everything buffered more than quotaEvictionKeep seconds behind the
// playback position and retry the append once.
func (d *Dispatcher) retryAppendAfterEviction(sbID mediaelement.SourceBufferId, mt playlist.MediaType, data []byte, appendErr error) bool {
	ce, ok := appendErr.(mediaelement.CreationError)
	if !ok || ce != mediaelement.ErrQuotaExceeded {
		return false
	}
	evictEnd := d.lastPosition - quotaEvictionKeep
	if evictEnd <= 0 {
		return false
	}
	if d.log != nil {
		d.log.Warn("quota exceeded, evicting old media", logger.Float64("before", evictEnd))
	}
	if err := d.media.Remove(sbID, 0, evictEnd); err != nil {
		return false
	}
	if tr, ok := d.buffered[mt]; ok {
		tr.TrimBefore(evictEnd)
	}
	return d.media.Append(sbID, data) == nil
}

// handleSegmentFailure rolls the affected selector back to its last
// validated watermark and reports the terminal failure: the Requester has
// already exhausted the retry policy by the time a failed outcome reaches
// the dispatcher, so this stops playback.
func (d *Dispatcher) handleSegmentFailure(o requester.Outcome) {
	if sel, ok := d.segSelectors[o.Category.MediaType]; ok {
		sel.Rollback()
	}
	d.fail(networkErrCode(o.Err), "segment fetch failed", o.Err)
}

// reconsiderVariant re-runs adaptive variant selection against the latest
// bandwidth estimate and, if it picks a different variant, aborts the
// stale pending segment requests and rewinds the affected selectors so
// the next evaluateSegmentLoop resumes from the last validated position.
// Source buffers are kept: the host buffer accepts the new rendition's
// fMP4 as long as the media type is unchanged.
func (d *Dispatcher) reconsiderVariant() {
	changed, err := d.store.UpdateBandwidth(func(bandwidths []int) int {
		idx := d.selector.SelectVariant(bandwidths)
		if d.failedVariants[idx] {
			if cur, ok := d.store.CurrentVariantIndex(); ok {
				return cur
			}
		}
		return idx
	})
	if err != nil || len(changed) == 0 {
		return
	}

	for _, mt := range changed {
		mt := mt
		d.requester.AbortSegments(func(c requester.Category) bool { return c.MediaType == mt })
		if sel, ok := d.segSelectors[mt]; ok {
			sel.Rollback()
		}
	}
	d.requestActiveMediaPlaylists()
}

// Seek rebases every active selector to position p, discards in-flight
// segment requests whose target range no longer intersects the new
// buffering window, and re-drives the segment loop.
func (d *Dispatcher) Seek(p float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seekLocked(p)
}

func (d *Dispatcher) seekLocked(p float64) {
	d.lastPosition = p
	d.eosSignaled = false
	for _, sel := range d.segSelectors {
		sel.ResetPosition(p)
	}

	windowEnd := p + d.bufferGoal
	d.requester.AbortSegments(func(c requester.Category) bool {
		if c.Kind == requester.CategoryInitSegment {
			return false
		}
		return c.End <= p || c.Start >= windowEnd
	})

	if d.store != nil {
		d.evaluateSegmentLoop()
	}
}

// OnPlaybackTick feeds a host playback observation into the dispatcher.
// A Seeking observation is the channel through which the host reports a
// seek, so it drives the full seek behavior. An Ended observation, or any
// observation before a Multivariant Playlist is loaded, only records the
// position; other reasons advance the base position and re-evaluate the
// segment loop.
func (d *Dispatcher) OnPlaybackTick(reason TickReason, position float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	defer func() {
		if d.onTick != nil {
			d.onTick(reason, position)
		}
	}()

	if d.store == nil {
		d.lastPosition = position
		return
	}

	if reason == TickEnded {
		d.lastPosition = position
		return
	}

	if reason == TickSeeking {
		d.seekLocked(position)
		return
	}

	d.lastPosition = position
	for _, sel := range d.segSelectors {
		sel.UpdateBasePosition(position)
	}
	d.maybeEnterPlaying()
	d.evaluateSegmentLoop()
}
