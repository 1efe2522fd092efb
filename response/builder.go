// Package response implements the top-level response-preparation state
// machine: given a storage backend, a reference, and an incoming request,
// it runs the method gate, opens the entity, evaluates conditional-GET and
// range headers, negotiates the body plan, and produces a Prepared response
// ready to stream to a transport.
package response

import (
	"context"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/sendstream-go/sendstream/freshness"
	"github.com/sendstream-go/sendstream/header"
	"github.com/sendstream-go/sendstream/rangeset"
	"github.com/sendstream-go/sendstream/storage"
	"github.com/sendstream-go/sendstream/stream"
)

// Request is the minimal view of an incoming request Prepare needs.
type Request struct {
	Method  string
	Headers header.Headers
}

// Prepared is the outcome of Prepare: a status, a header set, and a body
// ready to stream. Kind and Err are set on non-normal outcomes so a caller
// can log or branch without string-matching the status code.
type Prepared struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	Info       *storage.Info
	Kind       Kind
	Err        error
}

// Builder prepares responses against one storage backend.
type Builder struct {
	Backend storage.Backend

	// MimeTypeLookup resolves a file name to a MIME type. Defaults to
	// stdlib mime.TypeByExtension when nil.
	MimeTypeLookup func(fileName string) string
}

// NewBuilder returns a Builder over backend with default MIME lookup.
func NewBuilder(backend storage.Backend) *Builder {
	return &Builder{Backend: backend}
}

func (b *Builder) mimeType(fileName string) string {
	if fileName == "" {
		return ""
	}
	if b.MimeTypeLookup != nil {
		return b.MimeTypeLookup(fileName)
	}
	ext := path.Ext(fileName)
	if ext == "" {
		return ""
	}
	t := mime.TypeByExtension(ext)
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

// Prepare runs the full response-preparation algorithm against reference.
// The only error it returns is ErrMissingMethod; every other failure mode
// (404, 405, 412, 416) is represented as a normal Prepared value with Kind
// set accordingly, per the policy that storage errors never escape to the
// caller unexamined.
func (b *Builder) Prepare(ctx context.Context, reference any, req Request, opts Options) (*Prepared, error) {
	if req.Method == "" {
		return nil, ErrMissingMethod
	}

	// 1. Method gate.
	allowed := opts.allowedMethods()
	if !containsFold(allowed, req.Method) {
		h := http.Header{}
		h.Set("Allow", strings.Join(allowed, ", "))
		return plainTextResultForMethod(http.StatusMethodNotAllowed, h, KindMethodNotAllowed, nil, req.Method), nil
	}
	isGetOrHead := req.Method == "GET" || req.Method == "HEAD"

	// 2. Open storage.
	info, err := b.Backend.Open(ctx, reference, req.Headers)
	if err != nil {
		return plainTextResultForMethod(http.StatusNotFound, http.Header{}, KindNotFound, err, req.Method), nil
	}

	closeStorage := func() {
		_ = b.Backend.Close(ctx, info)
	}

	h := http.Header{}

	// 3. Cache-Control / Last-Modified / ETag / Vary.
	computedCC := info.CacheControl
	if computedCC == "" {
		computedCC = "public, max-age=0"
	}
	cacheControl, omitCC := opts.CacheControl.Resolve(computedCC)
	if !omitCC {
		h.Set("Cache-Control", cacheControl)
	}

	lastModified := info.LastModified
	if lastModified == "" && info.HasMTime {
		lastModified = header.FormatTime(time.UnixMilli(info.MTimeMs).UTC())
	}
	lastModified, omitLM := opts.LastModified.Resolve(lastModified)

	etagStr := info.ETag
	if etagStr == "" && info.HasSize && info.HasMTime {
		etagStr = string(header.Generate(info.Size, info.MTimeMs, info.ContentEncoding, opts.WeakETags))
	}
	etagStr, omitETag := opts.ETag.Resolve(etagStr)
	etag := header.ETag(etagStr)

	if info.Vary != "" {
		h.Set("Vary", info.Vary)
	}

	// 4. Forced status code: skip conditional GET and range entirely.
	if opts.StatusCode != 0 {
		if !omitLM {
			h.Set("Last-Modified", lastModified)
		}
		if !omitETag {
			h.Set("ETag", etagStr)
		}
		b.applyContentEncoding(h, info)
		b.applyContentType(h, info, opts)
		b.applyContentDisposition(h, info, opts)
		h.Set("Accept-Ranges", "none")
		if req.Method == "HEAD" {
			closeStorage()
			h.Set("Content-Length", sizeOrZero(info))
			return &Prepared{StatusCode: opts.StatusCode, Header: h, Body: http.NoBody, Info: &info, Kind: KindOK}, nil
		}
		body, err := b.Backend.CreateReadableStream(ctx, info, nil, true)
		if err != nil {
			closeStorage()
			return plainTextResultForMethod(http.StatusInternalServerError, http.Header{}, KindNotFound, err, req.Method), nil
		}
		if info.HasSize {
			h.Set("Content-Length", strconv.FormatInt(info.Size, 10))
		}
		return &Prepared{StatusCode: opts.StatusCode, Header: h, Body: body, Info: &info, Kind: KindOK}, nil
	}

	// 5. Freshness.
	result := freshness.Evaluate(isGetOrHead, req.Headers, etag, lastModified)
	if result == freshness.NotModified {
		closeStorage()
		if !omitETag {
			h.Set("ETag", etagStr)
		}
		if !omitLM {
			h.Set("Last-Modified", lastModified)
		}
		return &Prepared{StatusCode: http.StatusNotModified, Header: h, Body: http.NoBody, Info: &info, Kind: KindOK}, nil
	}
	if result == freshness.PreconditionFailed {
		closeStorage()
		return plainTextResultForMethod(http.StatusPreconditionFailed, h, KindPreconditionFailed, nil, req.Method), nil
	}

	if !omitLM {
		h.Set("Last-Modified", lastModified)
	}
	if !omitETag {
		h.Set("ETag", etagStr)
	}

	// 6. Content-Encoding.
	b.applyContentEncoding(h, info)

	// 7. Content-Type.
	b.applyContentType(h, info, opts)

	// 8. Content-Disposition.
	b.applyContentDisposition(h, info, opts)

	// 9. Range resolution.
	rangeDisabled := opts.maxRanges() <= 0 || !isGetOrHead
	var ranges []storage.Range
	var rangeErr error
	if !info.HasSize {
		// No Accept-Ranges, no Range, whole body of unknown length.
	} else if rangeDisabled {
		h.Set("Accept-Ranges", "none")
	} else {
		h.Set("Accept-Ranges", "bytes")
		rangeHeader := req.Headers.Get("range")
		ifRange := req.Headers.Get("if-range")
		allow := rangeHeader != ""
		if allow && ifRange != "" {
			allow = rangeset.IfRangeFresh(ifRange, etag, lastModified)
		}
		if allow {
			ranges, rangeErr = rangeset.Parse(rangeHeader, info.Size)
			if rangeErr == rangeset.ErrNoOverlap {
				closeStorage()
				rh := http.Header{}
				rh.Set("Content-Range", header.FormatUnsatisfiableContentRange(info.Size))
				return plainTextResultForMethod(http.StatusRequestedRangeNotSatisfiable, rh, KindRangeNotSatisfiable, nil, req.Method), nil
			}
			if rangeErr != nil {
				// Malformed Range: fall back to whole body.
				ranges = nil
			} else {
				ranges = rangeset.Coalesce(ranges)
				if len(ranges) > opts.maxRanges() {
					ranges = nil
				}
			}
		}
	}

	// 10. Body selection.
	if req.Method == "HEAD" {
		closeStorage()
		switch {
		case len(ranges) == 1:
			h.Set("Content-Range", header.FormatContentRange(ranges[0].Start, ranges[0].End, info.Size))
			h.Set("Content-Length", strconv.FormatInt(ranges[0].Length(), 10))
			return &Prepared{StatusCode: http.StatusPartialContent, Header: h, Body: http.NoBody, Info: &info, Kind: KindOK}, nil
		case len(ranges) > 1:
			return b.headMultiRange(h, info, ranges)
		default:
			if info.HasSize {
				h.Set("Content-Length", strconv.FormatInt(info.Size, 10))
			}
			return &Prepared{StatusCode: http.StatusOK, Header: h, Body: http.NoBody, Info: &info, Kind: KindOK}, nil
		}
	}

	switch {
	case len(ranges) == 1:
		r := ranges[0]
		if r.End < r.Start {
			closeStorage()
			return &Prepared{StatusCode: http.StatusOK, Header: h, Body: http.NoBody, Info: &info, Kind: KindOK}, nil
		}
		body, err := b.Backend.CreateReadableStream(ctx, info, &r, true)
		if err != nil {
			closeStorage()
			return plainTextResultForMethod(http.StatusInternalServerError, http.Header{}, KindNotFound, err, req.Method), nil
		}
		h.Set("Content-Range", header.FormatContentRange(r.Start, r.End, info.Size))
		h.Set("Content-Length", strconv.FormatInt(r.Length(), 10))
		return &Prepared{StatusCode: http.StatusPartialContent, Header: h, Body: body, Info: &info, Kind: KindOK}, nil

	case len(ranges) > 1:
		contentType := h.Get("Content-Type")
		boundary := rangeset.NewBoundary()
		parts, err := b.multipartParts(ctx, info, ranges, contentType, boundary)
		if err != nil {
			closeStorage()
			return plainTextResultForMethod(http.StatusInternalServerError, http.Header{}, KindNotFound, err, req.Method), nil
		}
		size := rangeset.EnvelopeSize(ranges, boundary, contentType, info.Size)
		h.Set("Content-Type", "multipart/byteranges; boundary="+boundary)
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		body := stream.NewMultiStream(parts, func() error { closeStorage(); return nil })
		return &Prepared{StatusCode: http.StatusPartialContent, Header: h, Body: body, Info: &info, Kind: KindOK}, nil

	default:
		body, err := b.Backend.CreateReadableStream(ctx, info, nil, true)
		if err != nil {
			closeStorage()
			return plainTextResultForMethod(http.StatusInternalServerError, http.Header{}, KindNotFound, err, req.Method), nil
		}
		if info.HasSize {
			h.Set("Content-Length", strconv.FormatInt(info.Size, 10))
		}
		return &Prepared{StatusCode: http.StatusOK, Header: h, Body: body, Info: &info, Kind: KindOK}, nil
	}
}

func (b *Builder) headMultiRange(h http.Header, info storage.Info, ranges []storage.Range) (*Prepared, error) {
	contentType := h.Get("Content-Type")
	boundary := rangeset.NewBoundary()
	size := rangeset.EnvelopeSize(ranges, boundary, contentType, info.Size)
	h.Set("Content-Type", "multipart/byteranges; boundary="+boundary)
	h.Set("Content-Length", strconv.FormatInt(size, 10))
	return &Prepared{StatusCode: http.StatusPartialContent, Header: h, Body: http.NoBody, Info: &info, Kind: KindOK}, nil
}

// multipartParts builds the ordered buffer/range-stream parts of a
// multipart/byteranges body: for each range, a literal header-buffer part
// (boundary + per-part MIME header) followed by a range-backed reader part
// with auto-close disabled (the MultiStream's onDone closes storage once,
// after the last part), plus a literal closing-boundary footer.
func (b *Builder) multipartParts(ctx context.Context, info storage.Info, ranges []storage.Range, contentType, boundary string) ([]stream.Part, error) {
	parts := make([]stream.Part, 0, len(ranges)*2+1)
	for _, r := range ranges {
		var buf strings.Builder
		buf.WriteString("\r\n--")
		buf.WriteString(boundary)
		buf.WriteString("\r\n")
		if contentType != "" {
			buf.WriteString("content-type: ")
			buf.WriteString(contentType)
			buf.WriteString("\r\n")
		}
		buf.WriteString("content-range: ")
		buf.WriteString(header.FormatContentRange(r.Start, r.End, info.Size))
		buf.WriteString("\r\n\r\n")
		parts = append(parts, stream.Part{Data: []byte(buf.String())})

		rr := r
		rs, err := b.Backend.CreateReadableStream(ctx, info, &rr, false)
		if err != nil {
			return nil, err
		}
		parts = append(parts, stream.Part{Reader: rs, Close: rs.Close})
	}
	parts = append(parts, stream.Part{Data: []byte("\r\n--" + boundary + "--")})
	return parts, nil
}

func (b *Builder) applyContentEncoding(h http.Header, info storage.Info) {
	if info.ContentEncoding != "" && info.ContentEncoding != "identity" {
		h.Set("Content-Encoding", info.ContentEncoding)
	}
}

func (b *Builder) applyContentType(h http.Header, info storage.Info, opts Options) {
	mimeType := info.MimeType
	if mimeType == "" {
		mimeType = b.mimeType(info.FileName)
	}
	mimeType, omitMime := opts.MimeType.Resolve(mimeType)
	if omitMime {
		return
	}
	charset := info.MimeTypeCharset
	charset, omitCharset := opts.MimeTypeCharset.Resolve(charset)
	if !omitCharset && charset != "" {
		mimeType += "; charset=" + charset
	}
	h.Set("Content-Type", mimeType)
	h.Set("X-Content-Type-Options", "nosniff")
}

func (b *Builder) applyContentDisposition(h http.Header, info storage.Info, opts Options) {
	if opts.ContentDispositionType.Suppressed() {
		return
	}
	dispType := info.ContentDispositionType
	dispType, omitType := opts.ContentDispositionType.Resolve(dispType)
	if omitType {
		dispType = "inline"
	}
	filename := info.ContentDispositionFilename
	if filename == "" {
		filename = info.FileName
	}
	filename, omitName := opts.ContentDispositionFilename.Resolve(filename)
	if omitName {
		filename = ""
	}
	if dispType == "" && filename == "" {
		return
	}
	h.Set("Content-Disposition", formatContentDisposition(dispType, filename))
}

// plainTextResultForMethod builds an error-response body equal to the
// status reason phrase, except for HEAD requests, which never carry a body
// regardless of status code.
func plainTextResultForMethod(status int, h http.Header, kind Kind, err error, method string) *Prepared {
	if h == nil {
		h = http.Header{}
	}
	text := http.StatusText(status)
	h.Set("Content-Type", "text/plain; charset=UTF-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Length", strconv.Itoa(len(text)))
	body := io.ReadCloser(io.NopCloser(strings.NewReader(text)))
	if method == "HEAD" {
		body = http.NoBody
	}
	return &Prepared{StatusCode: status, Header: h, Body: body, Kind: kind, Err: err}
}

func sizeOrZero(info storage.Info) string {
	if info.HasSize {
		return strconv.FormatInt(info.Size, 10)
	}
	return "0"
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
