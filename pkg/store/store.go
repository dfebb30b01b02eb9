// Package store owns the parsed Multivariant Playlist tree and resolves
// "current" variant, audio track, and URLs on behalf of the dispatcher.
package store

import (
	"bytes"
	"strings"

	"github.com/aminofox/hlsplay/pkg/errors"
	"github.com/aminofox/hlsplay/pkg/playlist"
	"github.com/aminofox/hlsplay/pkg/urlutil"
)

// IdKind distinguishes the two ways a MediaPlaylist can be addressed.
type IdKind int

const (
	IdKindVariant IdKind = iota
	IdKindMediaTag
)

// PermanentId is a stable identifier of a specific rendition: either a
// variant index or a media tag index. It stays meaningful across playlist
// refreshes, since a refresh installs the new MediaPlaylist on the same
// variant or media tag entry rather than replacing that entry.
type PermanentId struct {
	Kind  IdKind
	Index int
}

var errNotFound = errors.New(errors.ErrCodeNotFound, "media playlist target not found")

// Store owns a MultivariantPlaylist plus the currently-selected variant
// index and the permanent ids of the currently-selected audio and video
// playlists.
type Store struct {
	mvp *playlist.MultivariantPlaylist

	currentVariant int
	hasVariant     bool
	currentVideo   *PermanentId
	currentAudio   *PermanentId
}

// New wraps a parsed MultivariantPlaylist.
func New(mvp *playlist.MultivariantPlaylist) *Store {
	return &Store{mvp: mvp}
}

// Multivariant returns the owned playlist tree.
func (s *Store) Multivariant() *playlist.MultivariantPlaylist {
	return s.mvp
}

// Clear detaches the owned playlist tree and resets selection state.
func (s *Store) Clear() {
	s.mvp = nil
	s.hasVariant = false
	s.currentVideo = nil
	s.currentAudio = nil
}

// CurrentVariantIndex returns the sorted index of the selected variant.
func (s *Store) CurrentVariantIndex() (int, bool) {
	return s.currentVariant, s.hasVariant
}

// CurrentVideoId returns the permanent id of the currently-selected video
// rendition.
func (s *Store) CurrentVideoId() *PermanentId {
	return s.currentVideo
}

// CurrentAudioId returns the permanent id of the currently-selected audio
// rendition.
func (s *Store) CurrentAudioId() *PermanentId {
	return s.currentAudio
}

// UpdateVariant sets the current variant to sorted index i, and
// recomputes the current video/audio ids from it.
//
// If the variant codecs list contains a video codec (or carries no CODECS
// attribute at all, in which case video presence cannot be ruled out), the
// video id becomes VariantIndex(i). If the variant references an AUDIO
// group, the best matching MediaTag is selected: among tags of type Audio
// whose GroupID matches and Autoselect is true, prefer Default, else the
// first encountered; ties broken by parse order. If no match, the audio id
// is cleared.
func (s *Store) UpdateVariant(i int) error {
	if s.mvp == nil || i < 0 || i >= len(s.mvp.Variants) {
		return errNotFound
	}

	s.currentVariant = i
	s.hasVariant = true

	v := s.mvp.Variants[i]
	if hasVideoCodec(v.Codecs) {
		s.currentVideo = &PermanentId{Kind: IdKindVariant, Index: i}
	} else {
		s.currentVideo = nil
	}

	if v.AudioGroup == "" {
		s.currentAudio = nil
		return nil
	}

	idx, ok := s.bestAudioMatch(v.AudioGroup)
	if !ok {
		s.currentAudio = nil
		return nil
	}
	s.currentAudio = &PermanentId{Kind: IdKindMediaTag, Index: idx}
	return nil
}

func (s *Store) bestAudioMatch(groupID string) (int, bool) {
	bestIdx := -1
	bestDefault := false
	for i, m := range s.mvp.Media {
		if m.Type != playlist.MediaTypeAudio || m.GroupID != groupID || !m.Autoselect {
			continue
		}
		if bestIdx == -1 {
			bestIdx = i
			bestDefault = m.Default
			continue
		}
		if !bestDefault && m.Default {
			bestIdx = i
			bestDefault = true
		}
	}
	if bestIdx == -1 {
		return 0, false
	}
	return bestIdx, true
}

func hasVideoCodec(codecs string) bool {
	if codecs == "" {
		return true
	}
	for _, c := range strings.Split(codecs, ",") {
		c = strings.TrimSpace(c)
		if strings.HasPrefix(c, "avc1") || strings.HasPrefix(c, "avc3") ||
			strings.HasPrefix(c, "hvc1") || strings.HasPrefix(c, "hev1") ||
			strings.HasPrefix(c, "vp09") || strings.HasPrefix(c, "av01") {
			return true
		}
	}
	return false
}

// UpdateMediaPlaylist parses bytes as a Media Playlist and installs it
// under the rendition referenced by id.
func (s *Store) UpdateMediaPlaylist(id PermanentId, data []byte, url urlutil.Url) (*playlist.MediaPlaylist, error) {
	mp, err := playlist.ParseMediaPlaylist(bytes.NewReader(data), url)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePlaylistParse, "media playlist parse failed", err)
	}

	switch id.Kind {
	case IdKindVariant:
		if id.Index < 0 || id.Index >= len(s.mvp.Variants) {
			return nil, errNotFound
		}
		s.mvp.Variants[id.Index].MediaPlaylist = mp
	case IdKindMediaTag:
		if id.Index < 0 || id.Index >= len(s.mvp.Media) {
			return nil, errNotFound
		}
		s.mvp.Media[id.Index].MediaPlaylist = mp
	}
	return mp, nil
}

// mediaPlaylistFor resolves a PermanentId to its owned MediaPlaylist, if
// loaded.
func (s *Store) mediaPlaylistFor(id *PermanentId) *playlist.MediaPlaylist {
	if id == nil || s.mvp == nil {
		return nil
	}
	switch id.Kind {
	case IdKindVariant:
		if id.Index < 0 || id.Index >= len(s.mvp.Variants) {
			return nil
		}
		return s.mvp.Variants[id.Index].MediaPlaylist
	case IdKindMediaTag:
		if id.Index < 0 || id.Index >= len(s.mvp.Media) {
			return nil
		}
		return s.mvp.Media[id.Index].MediaPlaylist
	}
	return nil
}

// urlFor resolves a PermanentId to the URL its rendition should be fetched
// from.
func (s *Store) urlFor(id *PermanentId) (urlutil.Url, bool) {
	if id == nil || s.mvp == nil {
		return urlutil.Url{}, false
	}
	switch id.Kind {
	case IdKindVariant:
		if id.Index < 0 || id.Index >= len(s.mvp.Variants) {
			return urlutil.Url{}, false
		}
		return s.mvp.Variants[id.Index].URL, true
	case IdKindMediaTag:
		if id.Index < 0 || id.Index >= len(s.mvp.Media) {
			return urlutil.Url{}, false
		}
		m := s.mvp.Media[id.Index]
		if m.URI == nil {
			return urlutil.Url{}, false
		}
		return *m.URI, true
	}
	return urlutil.Url{}, false
}

// CurrentMediaPlaylist returns the currently-loaded MediaPlaylist for the
// given media type.
func (s *Store) CurrentMediaPlaylist(mt playlist.MediaType) *playlist.MediaPlaylist {
	return s.mediaPlaylistFor(s.idFor(mt))
}

// CurrentRequestURL returns the URL the current rendition of the given
// media type should be fetched from.
func (s *Store) CurrentRequestURL(mt playlist.MediaType) (urlutil.Url, bool) {
	return s.urlFor(s.idFor(mt))
}

func (s *Store) idFor(mt playlist.MediaType) *PermanentId {
	switch mt {
	case playlist.MediaTypeAudio:
		return s.currentAudio
	default:
		return s.currentVideo
	}
}

// CurrentDuration returns the minimum of the loaded audio/video durations
// when both are loaded, whichever is loaded when only one is, or false
// when neither is loaded.
func (s *Store) CurrentDuration() (float64, bool) {
	video := s.mediaPlaylistFor(s.currentVideo)
	audio := s.mediaPlaylistFor(s.currentAudio)

	switch {
	case video != nil && audio != nil:
		return min(video.Duration(), audio.Duration()), true
	case video != nil:
		return video.Duration(), true
	case audio != nil:
		return audio.Duration(), true
	default:
		return 0, false
	}
}

// UpdateBandwidth recomputes the target variant from selectVariant (an
// AdaptiveQualitySelector.SelectVariant closure over the store's ascending
// bandwidth list), switches to it if it differs from the current variant,
// and returns the set of media types whose permanent id changed as a
// result so callers can abort and rebuild the affected segment pipelines.
func (s *Store) UpdateBandwidth(selectVariant func(bandwidthsAscending []int) int) ([]playlist.MediaType, error) {
	if s.mvp == nil || len(s.mvp.Variants) == 0 {
		return nil, errNotFound
	}

	bandwidths := make([]int, len(s.mvp.Variants))
	for i, v := range s.mvp.Variants {
		bandwidths[i] = v.Bandwidth
	}

	target := selectVariant(bandwidths)
	if s.hasVariant && target == s.currentVariant {
		return nil, nil
	}

	prevVideo, prevAudio := s.currentVideo, s.currentAudio
	if err := s.UpdateVariant(target); err != nil {
		return nil, err
	}

	var changed []playlist.MediaType
	if !samePermanentId(prevVideo, s.currentVideo) {
		changed = append(changed, playlist.MediaTypeVideo)
	}
	if !samePermanentId(prevAudio, s.currentAudio) {
		changed = append(changed, playlist.MediaTypeAudio)
	}
	return changed, nil
}

func samePermanentId(a, b *PermanentId) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
