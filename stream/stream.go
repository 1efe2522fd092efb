// Package stream implements the read-side primitives the response builder
// composes a body out of: a single in-memory buffer, and an ordered
// concatenation of parts (buffers and range-backed readers) with guaranteed
// one-shot teardown regardless of how far the read got.
package stream

import (
	"bytes"
	"errors"
	"io"
)

// BufferStream is an io.ReadCloser over a single owned byte slice. Close is
// a no-op beyond marking the stream closed; it exists so BufferStream can
// stand in wherever an io.ReadCloser body is expected.
type BufferStream struct {
	r      *bytes.Reader
	closed bool
}

// NewBufferStream wraps data for sequential reading.
func NewBufferStream(data []byte) *BufferStream {
	return &BufferStream{r: bytes.NewReader(data)}
}

func (s *BufferStream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return s.r.Read(p)
}

// Close marks the stream closed. Safe to call more than once.
func (s *BufferStream) Close() error {
	s.closed = true
	return nil
}

// Part is one piece of a MultiStream's body: either literal bytes (a
// multipart boundary/header line, or a whole small buffer) or a reader
// sourced from a backend, paired with the teardown it owns.
type Part struct {
	// Data, when non-nil, is read in full before moving to the next part.
	Data []byte
	// Reader, when Data is nil, is read until EOF.
	Reader io.Reader
	// Close, if non-nil, is called exactly once when this part is fully
	// consumed or when the MultiStream is closed early, whichever comes
	// first.
	Close func() error
}

// MultiStream concatenates Parts in order, presenting them as a single
// io.Reader, and guarantees every part still holding a Close callback gets
// it invoked exactly once — whether the stream is read to EOF or abandoned
// partway through (a client disconnect, a write error upstream).
//
// This is a pull-based alternative to feeding an io.Pipe from a writer
// goroutine: the response builder drives reads itself, so there is no
// second goroutine to leak or synchronize with on early close.
type MultiStream struct {
	parts  []Part
	cur    int
	reader io.Reader
	onDone func() error
	closed bool
}

// NewMultiStream builds a MultiStream over parts. onDone, if non-nil, runs
// once, from the first Close call, after every remaining per-part Close
// callback, and its error is joined with theirs. Reading to EOF alone does
// not run it.
func NewMultiStream(parts []Part, onDone func() error) *MultiStream {
	return &MultiStream{parts: parts, onDone: onDone}
}

func (m *MultiStream) Read(p []byte) (int, error) {
	if m.closed {
		return 0, io.ErrClosedPipe
	}
	for {
		if m.cur >= len(m.parts) {
			return 0, io.EOF
		}
		if m.reader == nil {
			part := m.parts[m.cur]
			if part.Data != nil {
				m.reader = bytes.NewReader(part.Data)
			} else {
				m.reader = part.Reader
			}
		}
		n, err := m.reader.Read(p)
		if err == io.EOF {
			closeErr := m.closeCurrentPart()
			m.cur++
			m.reader = nil
			if closeErr != nil && n == 0 {
				return n, closeErr
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (m *MultiStream) closeCurrentPart() error {
	if m.cur >= len(m.parts) {
		return nil
	}
	closeFn := m.parts[m.cur].Close
	if closeFn == nil {
		return nil
	}
	return closeFn()
}

// Close tears down every remaining unclosed part plus onDone, joining any
// errors encountered. Safe to call more than once; subsequent calls are
// no-ops.
func (m *MultiStream) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for ; m.cur < len(m.parts); m.cur++ {
		if err := m.closeCurrentPart(); err != nil {
			errs = append(errs, err)
		}
	}
	if m.onDone != nil {
		if err := m.onDone(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
