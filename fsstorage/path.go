package fsstorage

import (
	"errors"
	"net/url"
	"strings"
)

// parseReference accepts either a URL-encoded path starting with "/" or a
// path-part sequence whose first element is empty (mirroring what net/url
// would hand back for an absolute path), and returns validated path parts.
func parseReference(reference any) ([]string, error) {
	switch v := reference.(type) {
	case string:
		return parseStringPath(v)
	case []string:
		return parseArrayPath(v)
	default:
		return nil, &PathError{Kind: KindStorageError, Err: errors.New("fsstorage: reference must be a string or []string")}
	}
}

func parseStringPath(s string) ([]string, error) {
	if !strings.HasPrefix(s, "/") {
		return nil, &PathError{Kind: KindStorageError, Path: s, Err: errors.New("fsstorage: path must start with \"/\"")}
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, &PathError{Kind: KindMalformedPath, Path: s, Err: err}
	}

	rawParts := strings.Split(u.EscapedPath(), "/")
	parts := make([]string, len(rawParts))
	for i, raw := range rawParts {
		dec, err := url.PathUnescape(raw)
		if err != nil {
			return nil, &PathError{Kind: KindMalformedPath, Path: s, Err: err}
		}
		if dec == "." || dec == ".." {
			return nil, &PathError{Kind: KindNotNormalized, Path: s}
		}
		parts[i] = dec
	}

	search := ""
	if u.RawQuery != "" {
		search = "?" + u.RawQuery
	}
	if u.EscapedPath()+search != s {
		return nil, &PathError{Kind: KindNotNormalized, Path: s}
	}
	return parts, nil
}

func parseArrayPath(parts []string) ([]string, error) {
	if len(parts) == 0 || parts[0] != "" {
		return nil, &PathError{Kind: KindInvalidPath, Err: errors.New("fsstorage: array path must start with an empty element")}
	}
	for _, p := range parts {
		if p == "." || p == ".." {
			return nil, &PathError{Kind: KindInvalidPath, Err: errors.New("fsstorage: path element \"" + p + "\" not allowed")}
		}
	}
	return parts, nil
}

// forbidden is the character class that may never appear in a path element,
// matching the reserved/forbidden filename characters across the common
// filesystems plus C0 and C1 control ranges.
func forbidden(r rune) bool {
	switch r {
	case '/', '?', '<', '>', '\\', ':', '*', '|', '"':
		return true
	}
	return r <= 0x1F || (r >= 0x80 && r <= 0x9F)
}

func containsForbidden(s string) bool {
	for _, r := range s {
		if forbidden(r) {
			return true
		}
	}
	return false
}

// validateParts applies the shared validation rules to path parts already
// accepted by parseStringPath/parseArrayPath: slash placement, forbidden
// characters, and the ignore pattern. parts[0] is always "" (the leading
// slash); validation starts at parts[1].
func validateParts(parts []string, ignore matcher) error {
	for i := 1; i < len(parts); i++ {
		p := parts[i]
		if p == "" {
			if i != len(parts)-1 {
				return &PathError{Kind: KindConsecutiveSlashes, Path: joinParts(parts)}
			}
			continue // trailing slash, checked after the loop
		}
		if containsForbidden(p) {
			return &PathError{Kind: KindForbiddenCharacter, Path: p}
		}
		if ignore.MatchString(p) {
			return &PathError{Kind: KindIgnoredFile, Path: p}
		}
	}
	if len(parts) > 1 && parts[len(parts)-1] == "" {
		return &PathError{Kind: KindTrailingSlash, Path: joinParts(parts)}
	}
	return nil
}

func joinParts(parts []string) string {
	return strings.Join(parts, "/")
}

// matcher is the subset of *regexp.Regexp that the ignore pattern needs,
// kept narrow so tests can supply a fake without importing regexp.
type matcher interface {
	MatchString(string) bool
}
