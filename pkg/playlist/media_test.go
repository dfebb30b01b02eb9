package playlist

import (
	"strings"
	"testing"

	"github.com/aminofox/hlsplay/pkg/urlutil"
)

const sampleMediaPlaylist = `#EXTM3U
#EXT-X-TARGETDURATION:4
#EXT-X-MEDIA-SEQUENCE:0
#EXT-X-MAP:URI="init.mp4"
#EXTINF:4.0,
seg0.mp4
#EXTINF:4.0,
seg1.mp4
#EXTINF:4.0,
seg2.mp4
#EXT-X-ENDLIST
`

func TestParseMediaPlaylistVOD(t *testing.T) {
	base := urlutil.New("https://cdn.example.com/live/v.m3u8")
	mp, err := ParseMediaPlaylist(strings.NewReader(sampleMediaPlaylist), base)
	if err != nil {
		t.Fatalf("ParseMediaPlaylist() error = %v", err)
	}

	if mp.TargetDuration != 4 {
		t.Errorf("TargetDuration = %v, want 4", mp.TargetDuration)
	}
	if !mp.EndList {
		t.Errorf("EndList = false, want true")
	}
	if mp.IsLive() {
		t.Errorf("IsLive() = true, want false (EndList set)")
	}
	if mp.Init == nil || mp.Init.URI.String() != "https://cdn.example.com/live/init.mp4" {
		t.Fatalf("Init = %+v", mp.Init)
	}

	if len(mp.Segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(mp.Segments))
	}

	wantStarts := []float64{0, 4, 8}
	for i, s := range mp.Segments {
		if s.Start != wantStarts[i] {
			t.Errorf("segment %d start = %v, want %v", i, s.Start, wantStarts[i])
		}
		if s.Duration != 4 {
			t.Errorf("segment %d duration = %v, want 4", i, s.Duration)
		}
	}

	if got := mp.Duration(); got != 12 {
		t.Errorf("Duration() = %v, want 12", got)
	}
}

func TestParseMediaPlaylistByteRangeContinuation(t *testing.T) {
	text := `#EXTM3U
#EXT-X-TARGETDURATION:4
#EXTINF:4.0,
#EXT-X-BYTERANGE:1000@0
seg.mp4
#EXTINF:4.0,
#EXT-X-BYTERANGE:500
seg.mp4
`
	base := urlutil.New("https://cdn.example.com/v.m3u8")
	mp, err := ParseMediaPlaylist(strings.NewReader(text), base)
	if err != nil {
		t.Fatalf("ParseMediaPlaylist() error = %v", err)
	}
	if len(mp.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(mp.Segments))
	}
	if mp.Segments[1].ByteRange.Offset != 1000 {
		t.Errorf("continuation offset = %d, want 1000 (end of first range)", mp.Segments[1].ByteRange.Offset)
	}
}

func TestParseMediaPlaylistDiscontinuity(t *testing.T) {
	text := `#EXTM3U
#EXT-X-TARGETDURATION:4
#EXTINF:4.0,
a.mp4
#EXT-X-DISCONTINUITY
#EXTINF:4.0,
b.mp4
`
	base := urlutil.New("https://cdn.example.com/v.m3u8")
	mp, err := ParseMediaPlaylist(strings.NewReader(text), base)
	if err != nil {
		t.Fatalf("ParseMediaPlaylist() error = %v", err)
	}
	if mp.Segments[0].Discontinuity {
		t.Errorf("first segment should not be marked discontinuous")
	}
	if !mp.Segments[1].Discontinuity {
		t.Errorf("second segment should be marked discontinuous")
	}
}

func TestMediaPlaylistSegmentAt(t *testing.T) {
	base := urlutil.New("https://cdn.example.com/v.m3u8")
	mp, err := ParseMediaPlaylist(strings.NewReader(sampleMediaPlaylist), base)
	if err != nil {
		t.Fatalf("ParseMediaPlaylist() error = %v", err)
	}

	seg, ok := mp.SegmentAt(5)
	if !ok || seg.Start != 4 {
		t.Fatalf("SegmentAt(5) = %+v, %v, want segment starting at 4", seg, ok)
	}

	if _, ok := mp.SegmentAt(100); ok {
		t.Errorf("SegmentAt(100) should not find a segment past the end")
	}
}

func TestParseMediaPlaylistLiveNoEndList(t *testing.T) {
	text := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXTINF:6.0,
a.mp4
`
	base := urlutil.New("https://cdn.example.com/v.m3u8")
	mp, err := ParseMediaPlaylist(strings.NewReader(text), base)
	if err != nil {
		t.Fatalf("ParseMediaPlaylist() error = %v", err)
	}
	if !mp.IsLive() {
		t.Errorf("IsLive() = false, want true (no EXT-X-ENDLIST)")
	}
}
