package playlist

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/aminofox/hlsplay/pkg/urlutil"
)

// ParseMultivariantPlaylist reads a Multivariant Playlist line by line,
// resolving any relative variant/media URIs against playlistURL.
// Parsing is tolerant: unrecognized #EXT-X-* tags are
// skipped, but a handful of structural errors are fatal per the taxonomy
// in §4.4.
func ParseMultivariantPlaylist(r io.Reader, playlistURL urlutil.Url) (*MultivariantPlaylist, error) {
	base := urlutil.New(playlistURL.Pathname())

	out := &MultivariantPlaylist{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	nextVariantIdx := 0

	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}

		switch {
		case text == "#EXTM3U":
			continue
		case strings.HasPrefix(text, "#EXT-X-VERSION:"):
			if n, err := strconv.Atoi(strings.TrimSpace(text[len("#EXT-X-VERSION:"):])); err == nil {
				out.Version = n
			}
		case text == "#EXT-X-INDEPENDENT-SEGMENTS":
			out.IndependentSegments = true
		case strings.HasPrefix(text, "#EXT-X-STREAM-INF:"):
			if !scanner.Scan() {
				return nil, newParseError(ErrMissingUriAfterVariant, line+1)
			}
			line++
			uriLine := strings.TrimSpace(scanner.Text())
			if uriLine == "" {
				return nil, newParseError(ErrMissingUriAfterVariant, line)
			}

			variant, err := parseVariantStream(text[len("#EXT-X-STREAM-INF:"):], line-1)
			if err != nil {
				return nil, err
			}

			variantURL := urlutil.New(uriLine)
			if !variantURL.IsAbsolute() {
				variantURL = urlutil.FromRelative(base, variantURL)
			}
			variant.URL = variantURL
			variant.originalIndex = nextVariantIdx
			nextVariantIdx++
			out.Variants = append(out.Variants, variant)
		case strings.HasPrefix(text, "#EXT-X-MEDIA:"):
			media, err := parseMediaTag(text[len("#EXT-X-MEDIA:"):], base, line)
			if err != nil {
				return nil, err
			}
			out.Media = append(out.Media, media)
		case strings.HasPrefix(text, "#EXT"):
			// unknown #EXT-X-* tag, tolerated
			continue
		case strings.HasPrefix(text, "#"):
			continue
		default:
			// a bare URI outside of any recognized tag; ignored at the
			// multivariant level
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, newParseError(ErrReadLine, line)
	}

	sort.SliceStable(out.Variants, func(i, j int) bool {
		return out.Variants[i].Bandwidth < out.Variants[j].Bandwidth
	})

	return out, nil
}

func parseVariantStream(attrText string, line int) (*VariantStream, error) {
	attrs := parseAttributes(attrText)

	bandwidth, ok, err := attrs.getInt("BANDWIDTH", line)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newParseError(ErrMissingBandwidth, line)
	}

	v := &VariantStream{Bandwidth: bandwidth}
	v.Resolution = attrs.getResolution("RESOLUTION")

	if fr, ok, err := attrs.getFloat("FRAME-RATE", line); err != nil {
		return nil, err
	} else if ok {
		v.FrameRate = &fr
	}

	if codecs, ok := attrs.get("CODECS"); ok {
		v.Codecs = codecs
	}
	if audio, ok := attrs.get("AUDIO"); ok {
		v.AudioGroup = audio
	}
	if video, ok := attrs.get("VIDEO"); ok {
		v.VideoGroup = video
	}
	if subs, ok := attrs.get("SUBTITLES"); ok {
		v.SubsGroup = subs
	}
	if cc, ok := attrs.get("CLOSED-CAPTIONS"); ok {
		v.CCGroup = cc
	}

	return v, nil
}

func parseMediaTag(attrText string, base urlutil.Url, line int) (*MediaTag, error) {
	attrs := parseAttributes(attrText)

	typeStr, ok := attrs.get("TYPE")
	if !ok {
		return nil, newParseError(ErrMissingMediaType, line)
	}

	groupID, ok := attrs.get("GROUP-ID")
	if !ok {
		return nil, newParseError(ErrMissingMediaGroupId, line)
	}

	name, ok := attrs.get("NAME")
	if !ok {
		return nil, newParseError(ErrMissingMediaName, line)
	}

	m := &MediaTag{
		Type:       mediaTypeFromTag(typeStr),
		GroupID:    groupID,
		Name:       name,
		Autoselect: attrs.getBool("AUTOSELECT"),
		Default:    attrs.getBool("DEFAULT"),
	}
	if lang, ok := attrs.get("LANGUAGE"); ok {
		m.Language = lang
	}
	if assoc, ok := attrs.get("ASSOC-LANGUAGE"); ok {
		m.AssocLanguage = assoc
	}
	if ch, ok := attrs.get("CHANNELS"); ok {
		m.Channels = ch
	}
	if uri, ok := attrs.get("URI"); ok {
		u := urlutil.New(uri)
		if !u.IsAbsolute() {
			u = urlutil.FromRelative(base, u)
		}
		m.URI = &u
	}

	return m, nil
}

func mediaTypeFromTag(s string) MediaType {
	switch s {
	case "AUDIO":
		return MediaTypeAudio
	case "SUBTITLES":
		return MediaTypeSubtitles
	case "CLOSED-CAPTIONS":
		return MediaTypeClosedCaptions
	default:
		return MediaTypeVideo
	}
}
