package playlist

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/aminofox/hlsplay/pkg/urlutil"
)

// ParseMediaPlaylist reads a Media Playlist line by line, resolving
// relative segment/init-segment URIs against playlistURL.
// Segment start times are assigned cumulatively starting at 0, and byte
// ranges without an explicit offset continue from the end of the previous
// EXT-X-BYTERANGE, whichever URI that range belonged to.
func ParseMediaPlaylist(r io.Reader, playlistURL urlutil.Url) (*MediaPlaylist, error) {
	base := urlutil.New(playlistURL.Pathname())

	out := &MediaPlaylist{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	var pendingDuration *float64
	var pendingTitle string
	var pendingByteRange *ByteRange
	var pendingDiscontinuity bool
	var cursor float64
	var lastByteRangeEnd int64

	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}

		switch {
		case text == "#EXTM3U":
			continue
		case strings.HasPrefix(text, "#EXT-X-TARGETDURATION:"):
			v, err := strconv.ParseFloat(strings.TrimSpace(text[len("#EXT-X-TARGETDURATION:"):]), 64)
			if err != nil {
				return nil, newParseError(ErrInvalidInteger, line)
			}
			out.TargetDuration = v
		case strings.HasPrefix(text, "#EXT-X-MEDIA-SEQUENCE:"):
			v, err := strconv.ParseInt(strings.TrimSpace(text[len("#EXT-X-MEDIA-SEQUENCE:"):]), 10, 64)
			if err != nil {
				return nil, newParseError(ErrInvalidInteger, line)
			}
			out.MediaSequence = v
		case text == "#EXT-X-ENDLIST":
			out.EndList = true
		case strings.HasPrefix(text, "#EXT-X-DISCONTINUITY"):
			pendingDiscontinuity = true
		case strings.HasPrefix(text, "#EXT-X-MAP:"):
			m, err := parseMapTag(text[len("#EXT-X-MAP:"):], base, line)
			if err != nil {
				return nil, err
			}
			out.Init = m
		case strings.HasPrefix(text, "#EXT-X-BYTERANGE:"):
			br, err := parseByteRangeValue(text[len("#EXT-X-BYTERANGE:"):], lastByteRangeEnd, line)
			if err != nil {
				return nil, err
			}
			pendingByteRange = br
			lastByteRangeEnd = br.Offset + br.Length
		case strings.HasPrefix(text, "#EXTINF:"):
			d, title, err := parseExtInf(text[len("#EXTINF:"):], line)
			if err != nil {
				return nil, err
			}
			pendingDuration = &d
			pendingTitle = title
		case strings.HasPrefix(text, "#EXT-X-PROGRAM-DATE-TIME:"):
			continue
		case strings.HasPrefix(text, "#EXT"):
			continue
		case strings.HasPrefix(text, "#"):
			continue
		default:
			if pendingDuration == nil {
				continue
			}
			uri := urlutil.New(strings.TrimSpace(text))
			if !uri.IsAbsolute() {
				uri = urlutil.FromRelative(base, uri)
			}

			seg := SegmentInfo{
				URI:           uri,
				Start:         cursor,
				Duration:      *pendingDuration,
				ByteRange:     pendingByteRange,
				Discontinuity: pendingDiscontinuity,
				Title:         pendingTitle,
			}
			out.Segments = append(out.Segments, seg)
			cursor += *pendingDuration

			pendingDuration = nil
			pendingTitle = ""
			pendingByteRange = nil
			pendingDiscontinuity = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, newParseError(ErrReadLine, line)
	}

	return out, nil
}

func parseExtInf(value string, line int) (float64, string, error) {
	parts := strings.SplitN(value, ",", 2)
	d, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, "", newParseError(ErrInvalidInteger, line)
	}
	title := ""
	if len(parts) == 2 {
		title = parts[1]
	}
	return d, title, nil
}

func parseByteRangeValue(value string, lastEnd int64, line int) (*ByteRange, error) {
	parts := strings.SplitN(strings.TrimSpace(value), "@", 2)
	length, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, newParseError(ErrInvalidInteger, line)
	}
	if len(parts) == 2 {
		offset, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, newParseError(ErrInvalidInteger, line)
		}
		return &ByteRange{Length: length, Offset: offset, HasOffset: true}, nil
	}
	return &ByteRange{Length: length, Offset: lastEnd, HasOffset: false}, nil
}

func parseMapTag(attrText string, base urlutil.Url, line int) (*MediaInitializationSegment, error) {
	attrs := parseAttributes(attrText)

	uriStr, ok := attrs.get("URI")
	if !ok {
		return nil, newParseError(ErrMissingUriAfterVariant, line)
	}
	uri := urlutil.New(uriStr)
	if !uri.IsAbsolute() {
		uri = urlutil.FromRelative(base, uri)
	}

	m := &MediaInitializationSegment{URI: uri}
	if raw, ok := attrs.get("BYTERANGE"); ok {
		br, err := parseByteRangeValue(raw, 0, line)
		if err != nil {
			return nil, err
		}
		m.ByteRange = br
	}
	return m, nil
}
