// Package rangeset implements Range header parsing, overlap coalescing, and
// multipart/byteranges envelope sizing for partial-content responses.
package rangeset

import (
	"errors"
	"io"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sendstream-go/sendstream/header"
	"github.com/sendstream-go/sendstream/storage"
)

// ErrInvalidRange means the Range header was present but malformed; the
// caller should ignore it and serve the full body.
var ErrInvalidRange = errors.New("rangeset: invalid range")

// ErrNoOverlap means every requested range lies entirely outside the
// entity; the caller should serve 416 Range Not Satisfiable.
var ErrNoOverlap = errors.New("rangeset: no overlap")

// Parse parses a "Range: bytes=..." header value against an entity of the
// given size, returning the requested byte ranges in request order. An
// absent header (empty string) returns (nil, nil): no range was requested.
func Parse(s string, size int64) ([]storage.Range, error) {
	if s == "" {
		return nil, nil
	}
	const prefix = "bytes="
	if !strings.HasPrefix(s, prefix) {
		return nil, ErrInvalidRange
	}
	if size == 0 {
		return nil, nil
	}

	var ranges []storage.Range
	noOverlap := false
	for _, part := range strings.Split(s[len(prefix):], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		startStr, endStr, ok := strings.Cut(part, "-")
		if !ok {
			return nil, ErrInvalidRange
		}
		startStr, endStr = strings.TrimSpace(startStr), strings.TrimSpace(endStr)

		var r storage.Range
		if startStr == "" {
			if endStr == "" || endStr[0] == '-' {
				return nil, ErrInvalidRange
			}
			suffix, err := strconv.ParseInt(endStr, 10, 64)
			if err != nil || suffix < 0 {
				return nil, ErrInvalidRange
			}
			if suffix == 0 {
				// A zero-length suffix requests nothing, and overlaps
				// nothing, per RFC 9110 section 14.1.2.
				noOverlap = true
				continue
			}
			if suffix > size {
				suffix = size
			}
			r.Start = size - suffix
			r.End = size - 1
		} else {
			start, err := strconv.ParseInt(startStr, 10, 64)
			if err != nil || start < 0 {
				return nil, ErrInvalidRange
			}
			if start >= size {
				noOverlap = true
				continue
			}
			r.Start = start
			if endStr == "" {
				r.End = size - 1
			} else {
				end, err := strconv.ParseInt(endStr, 10, 64)
				if err != nil || start > end {
					return nil, ErrInvalidRange
				}
				if end >= size {
					end = size - 1
				}
				r.End = end
			}
		}
		ranges = append(ranges, r)
	}
	if len(ranges) == 0 {
		if noOverlap {
			return nil, ErrNoOverlap
		}
		return nil, nil
	}
	return ranges, nil
}

// IfRangeFresh evaluates the If-Range gate: a Range header is honored only
// when the client's cached representation is still current. A strong ETag
// form must byte-match the current etag; a date form must equal
// lastModified at second resolution (sub-second precision doesn't survive
// the wire, so exact millisecond comparison would always fail here). Either
// side missing the information needed to compare counts as not-fresh, which
// causes the caller to ignore the Range header and serve the whole body.
func IfRangeFresh(ifRange string, etag header.ETag, lastModified string) bool {
	if ifRange == "" {
		return true
	}
	if strings.HasPrefix(ifRange, `"`) || strings.HasPrefix(ifRange, `W/"`) {
		return header.StrongMatch(header.ETag(ifRange), etag)
	}
	if lastModified == "" {
		return false
	}
	want, err := header.ParseTime(ifRange)
	if err != nil {
		return false
	}
	got, err := header.ParseTime(lastModified)
	if err != nil {
		return false
	}
	return want.Truncate(time.Second).Equal(got.Truncate(time.Second))
}

// Coalesce sorts ranges by start offset and merges any that overlap or are
// directly adjacent, so a client requesting "0-99,50-149" or "0-9,10-19"
// gets one part instead of two.
func Coalesce(ranges []storage.Range) []storage.Range {
	if len(ranges) < 2 {
		return ranges
	}
	sorted := make([]storage.Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	merged := sorted[:1]
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Sum returns the total byte length spanned by ranges.
func Sum(ranges []storage.Range) int64 {
	var total int64
	for _, r := range ranges {
		total += r.Length()
	}
	return total
}

// PartHeader builds the per-part MIME header for a multipart/byteranges
// body part.
func PartHeader(r storage.Range, contentType string, size int64) textproto.MIMEHeader {
	h := textproto.MIMEHeader{}
	h.Set("Content-Range", header.FormatContentRange(r.Start, r.End, size))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return h
}

// NewBoundary returns a fresh MIME multipart boundary string, the same
// generator mime/multipart uses internally.
func NewBoundary() string {
	return multipart.NewWriter(io.Discard).Boundary()
}

// EnvelopeSize computes the exact encoded size of a multipart/byteranges
// body for ranges against an entity of the given size and content type,
// using boundary as the multipart boundary. This must match byte-for-byte
// what a multipart.Writer configured with the same boundary would produce,
// since it becomes the response's Content-Length.
func EnvelopeSize(ranges []storage.Range, boundary, contentType string, size int64) int64 {
	var w countingWriter
	mw := multipart.NewWriter(&w)
	_ = mw.SetBoundary(boundary)
	for _, r := range ranges {
		_, _ = mw.CreatePart(PartHeader(r, contentType, size))
		w += countingWriter(r.Length())
	}
	_ = mw.Close()
	return int64(w)
}

type countingWriter int64

func (w *countingWriter) Write(p []byte) (int, error) {
	*w += countingWriter(len(p))
	return len(p), nil
}
