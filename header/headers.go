package header

import "strings"

// Headers is a read-only view over request headers: a mapping from
// lower-cased header name to a single value. For a header sent on several
// lines, net/http.Header.Get returns only the first of them.
type Headers interface {
	// Get returns the header value for name (case-insensitive), or "" if
	// absent.
	Get(name string) string
}

// MapHeaders is the simplest Headers implementation, backed by a map keyed
// by canonical lower-case header name.
type MapHeaders map[string]string

// Get implements Headers.
func (m MapHeaders) Get(name string) string {
	return m[strings.ToLower(name)]
}

// Note: net/http.Header already satisfies Headers (it has a Get(string)
// string method), so callers on top of net/http can pass r.Header directly.
