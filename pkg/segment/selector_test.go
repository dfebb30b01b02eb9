package segment

import (
	"strings"
	"testing"

	"github.com/aminofox/hlsplay/pkg/playlist"
	"github.com/aminofox/hlsplay/pkg/urlutil"
)

func mustParse(t *testing.T, text string) *playlist.MediaPlaylist {
	t.Helper()
	mp, err := playlist.ParseMediaPlaylist(strings.NewReader(text), urlutil.New("https://cdn.example.com/v.m3u8"))
	if err != nil {
		t.Fatalf("ParseMediaPlaylist() error = %v", err)
	}
	return mp
}

const threeSegmentPlaylist = `#EXTM3U
#EXT-X-TARGETDURATION:4
#EXT-X-MAP:URI="init.mp4"
#EXTINF:4.0,
seg0.mp4
#EXTINF:4.0,
seg1.mp4
#EXTINF:4.0,
seg2.mp4
#EXT-X-ENDLIST
`

func TestNextSegmentReturnsInitThenMedia(t *testing.T) {
	mp := mustParse(t, threeSegmentPlaylist)
	s := New(12)

	r := s.NextSegment(mp)
	if r.Kind != ResultInitSegment {
		t.Fatalf("first NextSegment() kind = %v, want ResultInitSegment", r.Kind)
	}

	r = s.NextSegment(mp)
	if r.Kind != ResultMediaSegment || r.MediaSegment.Start != 0 {
		t.Fatalf("second NextSegment() = %+v, want media segment at 0", r)
	}

	r = s.NextSegment(mp)
	if r.Kind != ResultMediaSegment || r.MediaSegment.Start != 4 {
		t.Fatalf("third NextSegment() = %+v, want media segment at 4", r)
	}
}

func TestNextSegmentStopsAtBufferGoal(t *testing.T) {
	mp := mustParse(t, threeSegmentPlaylist)
	s := New(4) // only the segment at start=0 fits within [0,4)
	s.NextSegment(mp) // init
	r := s.NextSegment(mp)
	if r.Kind != ResultMediaSegment || r.MediaSegment.Start != 0 {
		t.Fatalf("NextSegment() = %+v, want segment at 0", r)
	}
	if r := s.NextSegment(mp); r.Kind != ResultNothing {
		t.Fatalf("NextSegment() = %+v, want ResultNothing past the buffer goal", r)
	}
}

func TestNextSegmentZeroBufferGoalOnlyInitSegment(t *testing.T) {
	mp := mustParse(t, threeSegmentPlaylist)
	s := New(0)

	if r := s.NextSegment(mp); r.Kind != ResultInitSegment {
		t.Fatalf("first NextSegment() = %+v, want ResultInitSegment", r)
	}
	if r := s.NextSegment(mp); r.Kind != ResultNothing {
		t.Fatalf("second NextSegment() = %+v, want ResultNothing (buffer_goal=0)", r)
	}
}

func TestNextSegmentNoInitSegmentSetsNone(t *testing.T) {
	text := "#EXTM3U\n#EXT-X-TARGETDURATION:4\n#EXTINF:4.0,\na.mp4\n"
	mp := mustParse(t, text)
	s := New(10)

	r := s.NextSegment(mp)
	if r.Kind != ResultMediaSegment {
		t.Fatalf("NextSegment() = %+v, want a media segment when there is no init segment", r)
	}
}

func TestRollbackRestoresValidatedWatermark(t *testing.T) {
	mp := mustParse(t, threeSegmentPlaylist)
	s := New(12)

	s.NextSegment(mp) // init
	s.ValidateInit()

	r := s.NextSegment(mp) // segment at 0
	s.ValidateMedia(r.MediaSegment.Start)

	s.NextSegment(mp) // segment at 4, returned but not validated

	s.Rollback()
	if got := s.NextReturnedStart(); got != 0 {
		t.Errorf("NextReturnedStart() after rollback = %v, want 0 (last validated)", got)
	}
}

func TestNextSegmentAfterSeekStartsAtOrAfterPosition(t *testing.T) {
	mp := mustParse(t, threeSegmentPlaylist)
	s := New(30)
	s.NextSegment(mp) // init
	s.NextSegment(mp) // segment at 0

	s.ResetPosition(5)
	s.NextSegment(mp) // init reissued after the seek

	r := s.NextSegment(mp)
	if r.Kind != ResultMediaSegment || r.MediaSegment.Start != 8 {
		t.Fatalf("NextSegment() after seek to 5 = %+v, want segment at 8", r)
	}
}

func TestResetPositionClearsWatermarks(t *testing.T) {
	mp := mustParse(t, threeSegmentPlaylist)
	s := New(12)
	s.NextSegment(mp)
	s.NextSegment(mp)

	s.ResetPosition(45)
	if got := s.BasePosition(); got != 45 {
		t.Errorf("BasePosition() = %v, want 45", got)
	}
	if got := s.NextReturnedStart(); got != 45 {
		t.Errorf("NextReturnedStart() after seek = %v, want base position 45", got)
	}

	r := s.NextSegment(mp)
	if r.Kind != ResultInitSegment {
		t.Fatalf("NextSegment() after seek = %+v, want init segment reissued", r)
	}
}
