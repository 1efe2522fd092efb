// Package freshness implements the conditional-GET decision table: deciding
// 200/304/412 from If-Match, If-None-Match, If-Modified-Since,
// If-Unmodified-Since, the current ETag, and Last-Modified.
package freshness

import (
	"time"

	"github.com/sendstream-go/sendstream/header"
)

// Result is the outcome of evaluating preconditions against a request.
type Result int

const (
	// OK means no precondition failed; proceed with 200 (or, for
	// range/body selection, whatever status the caller computes next).
	OK Result = iota
	// NotModified means emit 304 with no body.
	NotModified
	// PreconditionFailed means emit 412 Precondition Failed.
	PreconditionFailed
)

// Evaluate implements the conditional-request precedence rule:
//
//  1. If-Match present and no etag, or (If-Match != "*" and no strong
//     match) → 412.
//  2. Else if If-Unmodified-Since present, lastModified known, and
//     lastModified > If-Unmodified-Since → 412.
//  3. If-None-Match present and (etag present and (If-None-Match == "*" or
//     any weak match)) → 304 for GET/HEAD, 412 otherwise.
//  4. Else if If-Modified-Since present, isGetOrHead, lastModified known,
//     and lastModified <= If-Modified-Since → 304.
//  5. Otherwise OK.
//
// If-Match is authoritative over If-Unmodified-Since, and If-None-Match over
// If-Modified-Since, whenever both members of a pair are present — the date
// check only runs in the "else" branch below, deliberately, since a stale
// cache that still knows the current strong ETag shouldn't be bounced on a
// clock skew.
func Evaluate(isGetOrHead bool, headers header.Headers, etag header.ETag, lastModified string) Result {
	ifMatch := headers.Get("if-match")
	if ifMatch != "" {
		list := header.ParseETagList(ifMatch)
		if etag == "" || !list.MatchesStrong(etag) {
			return PreconditionFailed
		}
	} else if ius := headers.Get("if-unmodified-since"); ius != "" && lastModified != "" {
		if t, err := header.ParseTime(ius); err == nil {
			if lm, err := header.ParseTime(lastModified); err == nil {
				if lm.Truncate(time.Second).After(t.Truncate(time.Second)) {
					return PreconditionFailed
				}
			}
		}
	}

	if inm := headers.Get("if-none-match"); inm != "" {
		list := header.ParseETagList(inm)
		if etag != "" && (list.Wildcard || list.MatchesWeak(etag)) {
			if isGetOrHead {
				return NotModified
			}
			return PreconditionFailed
		}
	} else if ims := headers.Get("if-modified-since"); ims != "" && isGetOrHead && lastModified != "" {
		if t, err := header.ParseTime(ims); err == nil {
			if lm, err := header.ParseTime(lastModified); err == nil {
				if !lm.Truncate(time.Second).After(t.Truncate(time.Second)) {
					return NotModified
				}
			}
		}
	}

	return OK
}
