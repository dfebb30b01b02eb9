package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aminofox/hlsplay/pkg/mediaelement"
	"github.com/aminofox/hlsplay/pkg/playlist"
	"github.com/aminofox/hlsplay/pkg/requester"
	"github.com/aminofox/hlsplay/pkg/store"
	"github.com/aminofox/hlsplay/pkg/timeranges"
	"github.com/aminofox/hlsplay/pkg/urlutil"
)

const masterM3U8 = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1000000,CODECS="avc1.4d401f"
low.m3u8
`

const mediaM3U8 = `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:6.0,
seg0.ts
#EXTINF:6.0,
seg1.ts
#EXT-X-ENDLIST
`

// fakeFetcher serves canned bytes keyed by the URL's basename and records
// every requested name in order.
type fakeFetcher struct {
	mu        sync.Mutex
	data      map[string][]byte
	requested []string
}

func newFakeFetcher() *fakeFetcher { return &fakeFetcher{data: make(map[string][]byte)} }

func (f *fakeFetcher) set(name, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[name] = []byte(body)
}

func (f *fakeFetcher) Fetch(_ context.Context, url urlutil.Url) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, url.Filename())
	if b, ok := f.data[url.Filename()]; ok {
		return b, nil
	}
	return nil, &requester.StatusError{Status: 404}
}

func (f *fakeFetcher) requestedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requested))
	copy(out, f.requested)
	return out
}

// fakeTimer never fires automatically; the happy-path VOD test never needs
// a refresh or retry timer to elapse.
type fakeTimer struct{}

func (fakeTimer) After(time.Duration, string, func()) requester.TimerId { return uuid.New() }
func (fakeTimer) Clear(requester.TimerId)                               {}

// fakeMediaElement is a minimal in-memory mediaelement.MediaElement.
type fakeMediaElement struct {
	mu         sync.Mutex
	attached   bool
	buffers    map[playlist.MediaType]mediaelement.SourceBufferId
	appended   int
	endOfSteam []mediaelement.EndOfStreamKind
}

func newFakeMediaElement() *fakeMediaElement {
	return &fakeMediaElement{buffers: make(map[playlist.MediaType]mediaelement.SourceBufferId)}
}

func (m *fakeMediaElement) AttachMediaSource() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached = true
	return nil
}

func (m *fakeMediaElement) CreateSourceBuffer(mt playlist.MediaType, _ string) (mediaelement.SourceBufferId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.buffers[mt] = id
	return id, nil
}

func (m *fakeMediaElement) Append(mediaelement.SourceBufferId, []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended++
	return nil
}

func (m *fakeMediaElement) Remove(mediaelement.SourceBufferId, float64, float64) error { return nil }

func (m *fakeMediaElement) EndOfStream(kind mediaelement.EndOfStreamKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endOfSteam = append(m.endOfSteam, kind)
}

func (m *fakeMediaElement) Seek(float64)             {}
func (m *fakeMediaElement) SetPlaybackRate(float64)  {}
func (m *fakeMediaElement) Observe() mediaelement.Observation {
	return mediaelement.Observation{Buffered: map[playlist.MediaType]*timeranges.TimeRanges{}}
}

func (m *fakeMediaElement) appendedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appended
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// recordingTimer captures every scheduled delay by reason, letting tests
// assert on the refresh schedule without a real clock.
type recordingTimer struct {
	mu      sync.Mutex
	delays  []time.Duration
	reasons []string
}

func (rt *recordingTimer) After(d time.Duration, reason string, _ func()) requester.TimerId {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.delays = append(rt.delays, d)
	rt.reasons = append(rt.reasons, reason)
	return uuid.New()
}

func (rt *recordingTimer) Clear(requester.TimerId) {}

func (rt *recordingTimer) refreshDelays() []time.Duration {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var out []time.Duration
	for i, r := range rt.reasons {
		if r == "refresh" {
			out = append(out, rt.delays[i])
		}
	}
	return out
}

func newTestDispatcher(fetcher *fakeFetcher) (*Dispatcher, *fakeMediaElement) {
	fetcher.set("seg0.ts", "seg0-bytes")
	fetcher.set("seg1.ts", "seg1-bytes")

	req := requester.New(fetcher, fakeTimer{}, nil)
	media := newFakeMediaElement()
	d := New(req, media, fakeTimer{}, nil)
	d.SetBufferGoal(60)
	return d, media
}

func TestLoadContentReachesPlayingOnVODStream(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.set("master.m3u8", masterM3U8)
	fetcher.set("low.m3u8", mediaM3U8)

	d, media := newTestDispatcher(fetcher)
	d.LoadContent(urlutil.New("https://cdn.example.com/master.m3u8"))

	waitFor(t, time.Second, func() bool { return d.ReadyState() == StatePlaying })
	waitFor(t, time.Second, func() bool { return media.appendedCount() >= 2 })

	if got := d.MaximumPosition(); got != 12 {
		t.Errorf("MaximumPosition() = %v, want 12", got)
	}
}

func TestLoadContentFailsFatallyOnUnparseableMultivariant(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.set("master.m3u8", "not a playlist at all")

	d, _ := newTestDispatcher(fetcher)
	d.LoadContent(urlutil.New("https://cdn.example.com/master.m3u8"))

	waitFor(t, time.Second, func() bool { return d.ReadyState() == StateStopped })
}

func TestStopClearsStoreAndAbortsRequests(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.set("master.m3u8", masterM3U8)
	fetcher.set("low.m3u8", mediaM3U8)

	d, _ := newTestDispatcher(fetcher)
	d.LoadContent(urlutil.New("https://cdn.example.com/master.m3u8"))
	waitFor(t, time.Second, func() bool { return d.ReadyState() == StatePlaying })

	d.Stop()
	if d.ReadyState() != StateStopped {
		t.Fatalf("ReadyState() = %v, want Stopped", d.ReadyState())
	}
	if d.MaximumPosition() != 0 {
		t.Errorf("MaximumPosition() after Stop = %v, want 0", d.MaximumPosition())
	}
}

func TestSeekResetsSelectorsWithoutChangingState(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.set("master.m3u8", masterM3U8)
	fetcher.set("low.m3u8", mediaM3U8)

	d, _ := newTestDispatcher(fetcher)
	d.LoadContent(urlutil.New("https://cdn.example.com/master.m3u8"))
	waitFor(t, time.Second, func() bool { return d.ReadyState() == StatePlaying })

	d.Seek(6)
	if d.ReadyState() != StatePlaying {
		t.Errorf("ReadyState() after Seek = %v, want Playing", d.ReadyState())
	}
}

// TestSegmentTerminalFailureStops: once the requester
// has exhausted its retry policy, a terminal segment failure stops the
// dispatcher.
func TestSegmentTerminalFailureStops(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.set("master.m3u8", masterM3U8)
	fetcher.set("low.m3u8", mediaM3U8)
	// seg0.ts / seg1.ts deliberately absent: every segment fetch 404s.

	req := requester.New(fetcher, fakeTimer{}, nil)
	d := New(req, newFakeMediaElement(), fakeTimer{}, nil)
	d.SetBufferGoal(60)

	d.LoadContent(urlutil.New("https://cdn.example.com/master.m3u8"))
	waitFor(t, time.Second, func() bool { return d.ReadyState() == StateStopped })
}

// TestSeekRequestsSegmentAtOrAfterPosition: after a seek the
// next segment fetched starts at or after the new position.
func TestSeekRequestsSegmentAtOrAfterPosition(t *testing.T) {
	longMedia := "#EXTM3U\n#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:0\n"
	for i := 0; i < 10; i++ {
		longMedia += "#EXTINF:6.0,\nseg" + string(rune('0'+i)) + ".ts\n"
	}
	longMedia += "#EXT-X-ENDLIST\n"

	fetcher := newFakeFetcher()
	fetcher.set("master.m3u8", masterM3U8)
	fetcher.set("low.m3u8", longMedia)
	for i := 0; i < 10; i++ {
		fetcher.set("seg"+string(rune('0'+i))+".ts", "bytes")
	}

	req := requester.New(fetcher, fakeTimer{}, nil)
	d := New(req, newFakeMediaElement(), fakeTimer{}, nil)
	d.SetBufferGoal(12)

	d.LoadContent(urlutil.New("https://cdn.example.com/master.m3u8"))
	waitFor(t, time.Second, func() bool { return d.ReadyState() == StatePlaying })

	d.Seek(45)
	waitFor(t, time.Second, func() bool {
		for _, name := range fetcher.requestedNames() {
			if name == "seg8.ts" { // first segment starting at or after 45s
				return true
			}
		}
		return false
	})

	for _, name := range fetcher.requestedNames() {
		if name == "seg5.ts" || name == "seg6.ts" {
			t.Errorf("segment %s before the seek window was requested", name)
		}
	}
}

// quotaMediaElement fails the first Append with ErrQuotaExceeded and
// succeeds afterwards, recording Remove calls.
type quotaMediaElement struct {
	fakeMediaElement
	failedOnce bool
	removed    [][2]float64
}

func (m *quotaMediaElement) Append(id mediaelement.SourceBufferId, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.failedOnce {
		m.failedOnce = true
		return mediaelement.ErrQuotaExceeded
	}
	m.appended++
	return nil
}

func (m *quotaMediaElement) Remove(_ mediaelement.SourceBufferId, start, end float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, [2]float64{start, end})
	return nil
}

func TestQuotaExceededEvictsThenRetriesAppend(t *testing.T) {
	fetcher := newFakeFetcher()
	req := requester.New(fetcher, fakeTimer{}, nil)
	media := &quotaMediaElement{fakeMediaElement: *newFakeMediaElement()}
	d := New(req, media, fakeTimer{}, nil)

	sbID := uuid.New()
	media.failedOnce = true // the failing first append already happened
	d.lastPosition = 40
	d.buffered[playlist.MediaTypeVideo].Add(0, 40)

	ok := d.retryAppendAfterEviction(sbID, playlist.MediaTypeVideo, []byte("bytes"), mediaelement.ErrQuotaExceeded)
	if !ok {
		t.Fatalf("retryAppendAfterEviction() = false, want eviction + successful retry")
	}
	if len(media.removed) != 1 || media.removed[0][1] != 10 {
		t.Errorf("removed ranges = %v, want one removal up to 10 (40 - 30)", media.removed)
	}
	ranges := d.Buffered(playlist.MediaTypeVideo)
	if len(ranges) != 1 || ranges[0].Start != 10 {
		t.Errorf("buffered after eviction = %v, want [{10 40}]", ranges)
	}
}

func TestQuotaExceededWithNothingToEvictIsTerminal(t *testing.T) {
	fetcher := newFakeFetcher()
	req := requester.New(fetcher, fakeTimer{}, nil)
	media := &quotaMediaElement{fakeMediaElement: *newFakeMediaElement()}
	d := New(req, media, fakeTimer{}, nil)

	// Playback has not advanced past the eviction horizon.
	if d.retryAppendAfterEviction(uuid.New(), playlist.MediaTypeVideo, nil, mediaelement.ErrQuotaExceeded) {
		t.Fatalf("retryAppendAfterEviction() = true, want false when nothing is evictable")
	}
}

func TestTickReasonRoundTrip(t *testing.T) {
	reasons := []TickReason{
		TickInit, TickSeeking, TickSeeked, TickRegularInterval, TickLoadedData,
		TickLoadedMetadata, TickCanPlay, TickCanPlayThrough, TickEnded,
		TickPause, TickPlay, TickRateChange, TickStalled,
	}
	for _, r := range reasons {
		got, ok := TickReasonFromString(r.String())
		if !ok || got != r {
			t.Errorf("TickReasonFromString(%q) = %v, %v, want %v", r.String(), got, ok, r)
		}
	}
	if _, ok := TickReasonFromString("NotATickReason"); ok {
		t.Errorf("TickReasonFromString should reject unknown names")
	}
}

// TestLiveMediaPlaylistSchedulesRefreshPerRFC8216: a live Media
// Playlist's first reload waits TargetDuration; a reload that observes no
// new segment halves the wait.
func TestLiveMediaPlaylistSchedulesRefreshPerRFC8216(t *testing.T) {
	const liveMaster = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1000000,CODECS="avc1.4d401f"
live.m3u8
`
	const liveMedia = `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:6.0,
seg0.ts
`
	fetcher := newFakeFetcher()
	fetcher.set("master.m3u8", liveMaster)
	fetcher.set("live.m3u8", liveMedia)
	fetcher.set("seg0.ts", "seg0-bytes")

	rt := &recordingTimer{}
	req := requester.New(fetcher, rt, nil)
	media := newFakeMediaElement()
	d := New(req, media, rt, nil)
	d.SetBufferGoal(60)

	d.LoadContent(urlutil.New("https://cdn.example.com/master.m3u8"))
	waitFor(t, time.Second, func() bool { return len(rt.refreshDelays()) >= 1 })

	delays := rt.refreshDelays()
	if delays[0] != 6*time.Second {
		t.Fatalf("first refresh delay = %v, want 6s", delays[0])
	}

	var id store.PermanentId
	for pid := range d.refreshTimers {
		id = pid
	}
	mp := d.store.CurrentMediaPlaylist(playlist.MediaTypeVideo)
	d.scheduleRefresh(id, playlist.MediaTypeVideo, mp)

	delays = rt.refreshDelays()
	if got := delays[len(delays)-1]; got != 3*time.Second {
		t.Fatalf("no-new-segment refresh delay = %v, want 3s (half of 6s)", got)
	}
}
