// Package storage defines the abstract contract that decouples the response
// builder from any specific content backend: opening
// a reference, creating a readable byte stream over it (optionally over a
// byte range), and closing it. Concrete backends — a filesystem adapter, an
// in-memory store, anything else — implement Backend; this package never
// inspects what a Reference actually is.
package storage

import (
	"context"
	"io"

	"github.com/sendstream-go/sendstream/header"
)

// Range is a half-open-inclusive byte range [Start, End] to read from an
// entity, 0 <= Start <= End < size.
type Range struct {
	Start, End int64
}

// Length returns the number of bytes in the range.
func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// Info is the envelope produced by opening a reference. AttachedData is
// backend-specific and is round-tripped back to
// CreateReadableStream and Close unexamined by the response builder.
type Info struct {
	AttachedData any

	FileName string
	HasMTime bool
	MTimeMs  int64
	HasSize  bool
	Size     int64

	// Vary is the header name this entity's representation depends on,
	// e.g. "Accept-Encoding" when a pre-compressed variant was chosen.
	Vary string

	// ContentEncoding is the encoding label of the opened variant. Empty
	// or "identity" means no Content-Encoding header is emitted.
	ContentEncoding string

	// Precomputed header values; a zero value means "let the response
	// builder compute it" (the builder distinguishes "absent" from
	// "explicitly empty" one layer up, in its Options).
	ETag                       string
	LastModified               string
	MimeType                   string
	MimeTypeCharset            string
	CacheControl               string
	ContentDispositionType     string
	ContentDispositionFilename string
}

// Backend is the storage contract consumed by the response builder.
type Backend interface {
	// Open resolves reference to an entity, optionally inspecting headers
	// (e.g. Accept-Encoding, to pick a pre-compressed variant). It must set
	// Info.Vary when the choice it made depends on a request header.
	Open(ctx context.Context, reference any, headers header.Headers) (Info, error)

	// CreateReadableStream opens a byte stream over the entity described by
	// info. If r is nil, the full body is produced. If r is non-nil, exactly
	// those bytes are produced. autoClose tells the stream whether to call
	// Close on end-of-stream.
	CreateReadableStream(ctx context.Context, info Info, r *Range, autoClose bool) (io.ReadCloser, error)

	// Close releases the entity. It is called exactly once per successful
	// Open, regardless of which exit path the response took.
	Close(ctx context.Context, info Info) error
}
