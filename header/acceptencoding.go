package header

import (
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Coding is one parsed Accept-Encoding entry.
type Coding struct {
	Name string
	Q    float64 // 0..1, up to three decimal places of precision per RFC 9110 §12.4.2
}

// aliases normalizes legacy encoding names still seen on the wire.
var aliases = map[string]string{
	"x-gzip":     "gzip",
	"x-compress": "compress",
}

// ParseAcceptEncoding parses an Accept-Encoding header value into an ordered
// list of (encoding, qvalue) pairs. If any entry fails to match the grammar
//
//	token = [-!#$%&'*+.^_`|~A-Za-z0-9]+
//	qvalue = 0(.ddd?d?)? | 1(.000?)?
//	entry = token ( *;*q=qvalue )?
//
// the whole header is rejected and ok is false, so callers fall back to
// identity-only rather than guess at a malformed preference list.
func ParseAcceptEncoding(s string) (codings []Coding, ok bool) {
	s = trimOWS(s)
	if s == "" {
		return nil, false
	}
	for _, part := range strings.Split(s, ",") {
		part = trimOWS(part)
		if part == "" {
			continue
		}
		name, rest, _ := strings.Cut(part, ";")
		name = trimOWS(name)
		if !isToken(name) {
			return nil, false
		}
		q := 1.0
		rest = trimOWS(rest)
		if rest != "" {
			qs, has := strings.CutPrefix(rest, "q=")
			if !has {
				qs, has = strings.CutPrefix(rest, "Q=")
			}
			if !has {
				return nil, false
			}
			qs = trimOWS(qs)
			val, valid := parseQValue(qs)
			if !valid {
				return nil, false
			}
			q = val
		}
		if alias, isAlias := aliases[strings.ToLower(name)]; isAlias {
			name = alias
		}
		codings = append(codings, Coding{Name: name, Q: q})
	}
	return codings, true
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !httpguts.IsTokenRune(r) {
			return false
		}
	}
	return true
}

// parseQValue parses "0", "0.d", "0.dd", "0.ddd", "1", "1.0", "1.00", "1.000".
func parseQValue(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	switch s[0] {
	case '0':
		if len(s) == 1 {
			return 0, true
		}
	case '1':
		if len(s) == 1 {
			return 1, true
		}
	default:
		return 0, false
	}
	if s[1] != '.' {
		return 0, false
	}
	digits := s[2:]
	if len(digits) == 0 || len(digits) > 3 {
		return 0, false
	}
	for _, d := range digits {
		if d < '0' || d > '9' {
			return 0, false
		}
	}
	if s[0] == '1' {
		for _, d := range digits {
			if d != '0' {
				return 0, false
			}
		}
		return 1, true
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	div := 1.0
	for range digits {
		div *= 10
	}
	return float64(n) / div, true
}
