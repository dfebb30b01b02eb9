// Package urlutil implements the opaque Url value used throughout the
// playback control plane: absolute/relative resolution and the small set
// of accessors (domain, pathname, filename, extension) that the
// Multivariant/Media Playlist parser needs to resolve segment and
// rendition URIs.
package urlutil

import "strings"

// Url is an immutable string-backed URL value.
type Url struct {
	raw string
}

// New wraps a raw URL string.
func New(raw string) Url {
	return Url{raw: raw}
}

// String returns the underlying URL text.
func (u Url) String() string {
	return u.raw
}

// IsAbsolute reports whether the URL has a scheme of the form
// "[A-Za-z]+://".
func (u Url) IsAbsolute() bool {
	return isAbsolute(u.raw)
}

// DomainName returns the scheme+host prefix of an absolute URL (e.g.
// "https://cdn.example.com" for "https://cdn.example.com/a/b.m3u8"), or
// the empty string if the URL is not absolute.
func (u Url) DomainName() string {
	d, ok := domainName(u.raw)
	if !ok {
		return ""
	}
	return d
}

// Pathname returns everything up to (not including) the last path
// segment, with any query string or fragment stripped first.
func (u Url) Pathname() string {
	stripped := stripQueryAndFragment(u.raw)
	idx := strings.LastIndexByte(stripped, '/')
	if idx < 0 {
		return stripped
	}
	return stripped[:idx]
}

// Filename returns the last path segment, with any query string or
// fragment stripped first.
func (u Url) Filename() string {
	stripped := stripQueryAndFragment(u.raw)
	idx := strings.LastIndexByte(stripped, '/')
	if idx < 0 {
		return stripped
	}
	return stripped[idx+1:]
}

// Extension returns the filename's extension (without the leading dot),
// or the empty string if there is none.
func (u Url) Extension() string {
	name := u.Filename()
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return ""
	}
	return name[idx+1:]
}

// FromRelative resolves rel against base, a directory pathname such as
// Pathname returns:
//   - rel absolute: returned unchanged.
//   - rel starts with "/": grafted onto base's domain when base is
//     absolute, else concatenated onto base with exactly one "/" between.
//   - rel otherwise relative: appended to the whole of base with exactly
//     one "/" between; a file name at the end of base is kept, not replaced.
func FromRelative(base Url, rel Url) Url {
	if rel.IsAbsolute() {
		return rel
	}
	if base.raw == "" {
		return rel
	}

	if strings.HasPrefix(rel.raw, "/") {
		if domain, ok := domainName(base.raw); ok {
			return Url{raw: domain + rel.raw}
		}
		if strings.HasSuffix(base.raw, "/") {
			return Url{raw: base.raw + rel.raw[1:]}
		}
		return Url{raw: base.raw + rel.raw}
	}

	if strings.HasSuffix(base.raw, "/") {
		return Url{raw: base.raw + rel.raw}
	}
	return Url{raw: base.raw + "/" + rel.raw}
}

func isAbsolute(raw string) bool {
	offset := 0
	for {
		if len(raw) < offset+1 {
			return false
		}
		c := raw[offset]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
			offset++
			continue
		}
		if c == ':' {
			if offset == 0 {
				return false
			}
			offset++
			break
		}
		return false
	}
	if len(raw) < offset+2 {
		return false
	}
	return raw[offset:offset+2] == "//"
}

// domainName returns the "scheme://host" prefix of an absolute URL.
func domainName(raw string) (string, bool) {
	if !isAbsolute(raw) {
		return "", false
	}
	firstSlash := strings.IndexByte(raw, '/')
	if firstSlash < 0 || firstSlash == 0 || firstSlash >= len(raw)-2 || raw[firstSlash+1] != '/' {
		return "", false
	}
	rest := raw[firstSlash+2:]
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return raw[:idx+firstSlash+2], true
	}
	return raw, true
}

func stripQueryAndFragment(raw string) string {
	if idx := strings.IndexByte(raw, '#'); idx >= 0 {
		raw = raw[:idx]
	}
	if idx := strings.IndexByte(raw, '?'); idx >= 0 {
		raw = raw[:idx]
	}
	return raw
}
