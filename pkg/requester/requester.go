// Package requester issues playlist and segment fetches through the host
// Fetcher capability, tracks pending requests, and enforces per-category
// retry/backoff/timeout policy.
package requester

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aminofox/hlsplay/pkg/logger"
	"github.com/aminofox/hlsplay/pkg/playlist"
	"github.com/aminofox/hlsplay/pkg/store"
	"github.com/aminofox/hlsplay/pkg/urlutil"
)

// RequestId is an opaque handle identifying one in-flight or retrying
// fetch. Owned linearly: once a request finishes or is aborted, its id is
// dropped from every pending list.
type RequestId = uuid.UUID

// Fetcher is the host capability the Requester issues fetches through.
// Implementations live in pkg/host.
type Fetcher interface {
	Fetch(ctx context.Context, url urlutil.Url) ([]byte, error)
}

// CategoryKind discriminates the four request categories.
type CategoryKind int

const (
	CategoryMultivariant CategoryKind = iota
	CategoryMediaPlaylist
	CategoryInitSegment
	CategoryMediaSegment
)

// Category is the tagged request classification carried by every pending
// entry; only the fields relevant to Kind are meaningful.
type Category struct {
	Kind      CategoryKind
	Id        store.PermanentId
	MediaType playlist.MediaType
	Start     float64
	End       float64
}

// Outcome is delivered to a completion callback once a fetch settles.
type Outcome struct {
	Id         RequestId
	URL        urlutil.Url
	Category   Category
	Data       []byte
	Err        error
	DurationMs float64
}

// pending is one tracked fetch.
type pending struct {
	id       RequestId
	url      urlutil.Url
	category Category
	attempts int
	cancel   context.CancelFunc
}

// Requester tracks two independent FIFOs — playlists and segments — and
// enforces a retry/backoff/timeout policy per category. Fetch
// completions and retry timers arrive from whichever goroutine the
// Fetcher/Timer collaborator runs them on, so mu guards every field below.
type Requester struct {
	mu sync.Mutex

	fetcher Fetcher
	timer   Timer
	log     logger.Logger

	policies map[PolicyClass]Policy

	pendingPlaylists []*pending
	pendingSegments  []*pending

	onPlaylistDone func(Outcome)
	onSegmentDone  func(Outcome)
}

// New creates a Requester with the default per-category policy.
func New(fetcher Fetcher, timer Timer, log logger.Logger) *Requester {
	return &Requester{
		fetcher:  fetcher,
		timer:    timer,
		log:      log,
		policies: defaultPolicies(),
	}
}

// OnPlaylistFinished registers the callback invoked, on the goroutine that
// ran the fetch rather than the one that issued it, whenever a playlist
// fetch concludes, successfully or not.
func (r *Requester) OnPlaylistFinished(fn func(Outcome)) {
	r.onPlaylistDone = fn
}

// OnSegmentFinished registers the equivalent callback for segment fetches.
func (r *Requester) OnSegmentFinished(fn func(Outcome)) {
	r.onSegmentDone = fn
}

// SetPolicy overrides the retry/backoff/timeout policy for one category
// class at runtime.
func (r *Requester) SetPolicy(class PolicyClass, p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[class] = p
}

// FetchPlaylist issues a Multivariant or Media Playlist fetch and returns
// its request id.
func (r *Requester) FetchPlaylist(url urlutil.Url, category Category) RequestId {
	p := &pending{id: uuid.New(), url: url, category: category}
	r.mu.Lock()
	r.pendingPlaylists = append(r.pendingPlaylists, p)
	r.mu.Unlock()
	r.issue(p, true)
	return p.id
}

// FetchInitSegment issues an init-segment fetch for the given media type.
func (r *Requester) FetchInitSegment(mediaType playlist.MediaType, url urlutil.Url) RequestId {
	p := &pending{id: uuid.New(), url: url, category: Category{Kind: CategoryInitSegment, MediaType: mediaType}}
	r.mu.Lock()
	r.pendingSegments = append(r.pendingSegments, p)
	r.mu.Unlock()
	r.issue(p, false)
	return p.id
}

// FetchMediaSegment issues a media-segment fetch.
func (r *Requester) FetchMediaSegment(mediaType playlist.MediaType, url urlutil.Url, start, end float64) RequestId {
	p := &pending{id: uuid.New(), url: url, category: Category{Kind: CategoryMediaSegment, MediaType: mediaType, Start: start, End: end}}
	r.mu.Lock()
	r.pendingSegments = append(r.pendingSegments, p)
	r.mu.Unlock()
	r.issue(p, false)
	return p.id
}

// AbortSegments cancels and removes every pending segment request matching
// predicate.
func (r *Requester) AbortSegments(predicate func(Category) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.pendingSegments[:0]
	for _, p := range r.pendingSegments {
		if predicate(p.category) {
			if p.cancel != nil {
				p.cancel()
			}
			continue
		}
		kept = append(kept, p)
	}
	r.pendingSegments = kept
}

// AbortAll cancels and clears every pending playlist and segment request.
func (r *Requester) AbortAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pendingPlaylists {
		if p.cancel != nil {
			p.cancel()
		}
	}
	for _, p := range r.pendingSegments {
		if p.cancel != nil {
			p.cancel()
		}
	}
	r.pendingPlaylists = nil
	r.pendingSegments = nil
}

// HasPendingMediaPlaylist reports whether a Media Playlist request for id
// is already in flight, used to enforce "at most one pending Media
// Playlist request per id".
func (r *Requester) HasPendingMediaPlaylist(id store.PermanentId) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pendingPlaylists {
		if p.category.Kind == CategoryMediaPlaylist && p.category.Id == id {
			return true
		}
	}
	return false
}

// HasPendingSegment reports whether a segment request of mediaType is
// already in flight, used to enforce "at most one pending segment request
// per media type".
func (r *Requester) HasPendingSegment(mediaType playlist.MediaType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pendingSegments {
		if p.category.MediaType == mediaType &&
			(p.category.Kind == CategoryInitSegment || p.category.Kind == CategoryMediaSegment) {
			return true
		}
	}
	return false
}

func (r *Requester) policyFor(kind CategoryKind) Policy {
	switch kind {
	case CategoryMultivariant, CategoryMediaPlaylist:
		return r.policies[PolicyPlaylist]
	default:
		return r.policies[PolicySegment]
	}
}

func (r *Requester) issue(p *pending, isPlaylist bool) {
	r.mu.Lock()
	policy := r.policyFor(p.category.Kind)
	p.attempts++
	attempts := p.attempts
	ctx, cancel := context.WithTimeout(context.Background(), policy.Timeout)
	p.cancel = cancel
	r.mu.Unlock()

	go func() {
		defer cancel()

		started := time.Now()
		data, err := r.fetcher.Fetch(ctx, p.url)
		elapsed := time.Since(started)
		outcome := Outcome{Id: p.id, URL: p.url, Category: p.category, Data: data, Err: err, DurationMs: float64(elapsed.Microseconds()) / 1000}

		if err == nil {
			r.complete(p, isPlaylist, outcome)
			return
		}

		if ctx.Err() == context.Canceled {
			// Aborted by AbortAll/AbortSegments; the pending entry is gone
			// already and the caller no longer wants an answer.
			if r.log != nil {
				r.log.Debug("aborted request settled", logger.String("url", p.url.String()))
			}
			return
		}

		if !isRetryable(err) || attempts > policy.MaxRetry {
			r.complete(p, isPlaylist, outcome)
			return
		}

		delay := backoffDelay(policy, attempts)
		if r.log != nil {
			r.log.Warn("retrying request", logger.String("url", p.url.String()),
				logger.Int("attempt", attempts), logger.Duration("delay", delay))
		}
		r.timer.After(delay, "retry", func() {
			if !r.tracked(p, isPlaylist) {
				return
			}
			r.issue(p, isPlaylist)
		})
	}()
}

// tracked reports whether p is still in its pending list; an entry aborted
// while waiting out a retry backoff must not be re-issued.
func (r *Requester) tracked(p *pending, isPlaylist bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.pendingSegments
	if isPlaylist {
		list = r.pendingPlaylists
	}
	for _, q := range list {
		if q == p {
			return true
		}
	}
	return false
}

// complete removes the settled entry from its pending list and delivers
// the outcome. A completion whose id is no longer tracked (aborted, then
// settled late) is dropped with a warning rather than surfaced;
// cancellation is best-effort.
func (r *Requester) complete(p *pending, isPlaylist bool, outcome Outcome) {
	r.mu.Lock()
	var found bool
	if isPlaylist {
		found = r.removePlaylist(p.id)
	} else {
		found = r.removeSegment(p.id)
	}
	r.mu.Unlock()

	if !found {
		if r.log != nil {
			r.log.Warn("dropping completion for unknown request", logger.String("url", p.url.String()))
		}
		return
	}

	if isPlaylist {
		if r.onPlaylistDone != nil {
			r.onPlaylistDone(outcome)
		}
		return
	}
	if r.onSegmentDone != nil {
		r.onSegmentDone(outcome)
	}
}

func (r *Requester) removePlaylist(id RequestId) bool {
	for i, p := range r.pendingPlaylists {
		if p.id == id {
			r.pendingPlaylists = append(r.pendingPlaylists[:i], r.pendingPlaylists[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Requester) removeSegment(id RequestId) bool {
	for i, p := range r.pendingSegments {
		if p.id == id {
			r.pendingSegments = append(r.pendingSegments[:i], r.pendingSegments[i+1:]...)
			return true
		}
	}
	return false
}
