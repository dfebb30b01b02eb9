// Package playlist parses HLS Multivariant and Media Playlists into the
// structured models the rest of the control plane works against.
package playlist

import "github.com/aminofox/hlsplay/pkg/urlutil"

// MediaType identifies which rendition kind a playlist or segment belongs
// to.
type MediaType int

const (
	MediaTypeVideo MediaType = iota
	MediaTypeAudio
	MediaTypeSubtitles
	MediaTypeClosedCaptions
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	case MediaTypeSubtitles:
		return "subtitles"
	case MediaTypeClosedCaptions:
		return "closed-captions"
	default:
		return "unknown"
	}
}

// Resolution is the WxH attribute value on EXT-X-STREAM-INF.
type Resolution struct {
	Width  int
	Height int
}

// ByteRange is an explicit sub-range of a resource, as carried by
// EXT-X-BYTERANGE and the BYTERANGE attribute of EXT-X-MAP.
type ByteRange struct {
	Length int64
	Offset int64
	// HasOffset is false when the range continues from the previous one,
	// per the EXT-X-BYTERANGE grammar ("o" is optional).
	HasOffset bool
}

// VariantStream is a single EXT-X-STREAM-INF entry.
type VariantStream struct {
	Bandwidth   int
	Resolution  *Resolution
	FrameRate   *float64
	Codecs      string
	AudioGroup  string
	VideoGroup  string
	SubsGroup   string
	CCGroup     string
	URL         urlutil.Url
	MediaPlaylist *MediaPlaylist

	// originalIndex records parse order, used only as the stable
	// tiebreaker for equal-bandwidth variants.
	originalIndex int
}

// OriginalIndex returns the pre-sort parse order of the variant, used as a
// deterministic tiebreaker when bandwidths are equal.
func (v *VariantStream) OriginalIndex() int {
	return v.originalIndex
}

// MediaTag is a single EXT-X-MEDIA entry.
type MediaTag struct {
	Type          MediaType
	GroupID       string
	Name          string
	Language      string
	AssocLanguage string
	Channels      string
	Autoselect    bool
	Default       bool
	URI           *urlutil.Url
	MediaPlaylist *MediaPlaylist
}

// MultivariantPlaylist is the top-level HLS manifest.
type MultivariantPlaylist struct {
	Variants []*VariantStream
	Media    []*MediaTag

	Version               int
	IndependentSegments   bool
}

// SegmentInfo is one media segment entry in a Media Playlist.
type SegmentInfo struct {
	URI           urlutil.Url
	Start         float64
	Duration      float64
	ByteRange     *ByteRange
	Discontinuity bool
	Title         string
}

// MediaInitializationSegment is the resource referenced by EXT-X-MAP.
type MediaInitializationSegment struct {
	URI       urlutil.Url
	ByteRange *ByteRange
}

// MediaPlaylist is a per-rendition HLS manifest listing media segments.
type MediaPlaylist struct {
	TargetDuration float64
	MediaSequence  int64
	Init           *MediaInitializationSegment
	Segments       []SegmentInfo
	EndList        bool
}

// Duration returns the sum of every segment's duration.
func (p *MediaPlaylist) Duration() float64 {
	var total float64
	for _, s := range p.Segments {
		total += s.Duration
	}
	return total
}

// IsLive reports whether the playlist may still grow.
func (p *MediaPlaylist) IsLive() bool {
	return !p.EndList
}

// SegmentAt returns the segment whose [Start, Start+Duration) interval
// contains the given position, if any.
func (p *MediaPlaylist) SegmentAt(start float64) (*SegmentInfo, bool) {
	for i := range p.Segments {
		s := &p.Segments[i]
		if start >= s.Start && start < s.Start+s.Duration {
			return s, true
		}
	}
	return nil, false
}
