// Package memstorage implements an in-memory storage.Backend: entities are
// plain byte slices registered up front, with gzip/zstd/brotli variants
// precomputed once at construction so serving a request never pays a
// compression cost.
package memstorage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/sendstream-go/sendstream/encoding"
	"github.com/sendstream-go/sendstream/header"
	"github.com/sendstream-go/sendstream/storage"
)

// Entity is one piece of content to register with a Store.
type Entity struct {
	Name     string // lookup key, also used as storage.Info.FileName
	Data     []byte
	MTimeMs  int64
	MimeType string
}

type variant struct {
	data []byte
	etag header.ETag
}

type entry struct {
	Entity
	variants map[string]variant // keyed by encoding name, "identity" always present
}

// Store is a storage.Backend over entities registered at construction.
// References passed to Open must be the Entity's Name.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New builds a Store and precomputes every entity's compressed variants
// concurrently. It returns an error if any compressor fails.
func New(entities []Entity) (*Store, error) {
	s := &Store{entries: make(map[string]*entry, len(entities))}
	var g errgroup.Group
	results := make([]*entry, len(entities))
	for i, e := range entities {
		i, e := i, e
		g.Go(func() error {
			built, err := buildEntry(e)
			if err != nil {
				return fmt.Errorf("memstorage: precompute %q: %w", e.Name, err)
			}
			results[i] = built
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, e := range results {
		s.entries[e.Name] = e
	}
	return s, nil
}

func buildEntry(e Entity) (*entry, error) {
	en := &entry{Entity: e, variants: make(map[string]variant, 4)}

	baseEtag := header.Generate(int64(len(e.Data)), e.MTimeMs, "", false)

	identity := make([]byte, len(e.Data))
	copy(identity, e.Data)
	en.variants[encoding.Identity] = variant{data: identity, etag: baseEtag}

	for _, coding := range []string{"gzip", "zstd", "br"} {
		compressed, err := compress(e.Data, coding)
		if err != nil {
			return nil, err
		}
		en.variants[coding] = variant{
			data: compressed,
			etag: header.Generate(int64(len(e.Data)), e.MTimeMs, coding, false),
		}
	}
	return en, nil
}

func compress(data []byte, coding string) ([]byte, error) {
	var buf bytes.Buffer
	switch coding {
	case "gzip":
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "zstd":
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "br":
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("memstorage: unknown coding %q", coding)
	}
	return buf.Bytes(), nil
}

// attached is the handle Open returns via storage.Info.AttachedData.
type attached struct {
	data []byte
}

// Open implements storage.Backend. reference must be a string naming a
// registered Entity.
func (s *Store) Open(ctx context.Context, reference any, headers header.Headers) (storage.Info, error) {
	name, ok := reference.(string)
	if !ok {
		return storage.Info{}, fmt.Errorf("memstorage: reference must be a string, got %T", reference)
	}
	s.mu.RLock()
	en, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return storage.Info{}, fmt.Errorf("memstorage: %q: not found", name)
	}

	candidates := make([]encoding.Candidate, 0, len(en.variants))
	order := 0
	for _, name := range []string{"br", "zstd", "gzip"} {
		if _, ok := en.variants[name]; ok {
			candidates = append(candidates, encoding.Candidate{Name: name, Order: order})
			order++
		}
	}
	negotiated := encoding.Negotiate(headers.Get("accept-encoding"), candidates)

	var chosen string
	for _, c := range negotiated {
		if _, ok := en.variants[c.Name]; ok {
			chosen = c.Name
			break
		}
	}
	if chosen == "" {
		chosen = encoding.Identity
	}
	v := en.variants[chosen]

	info := storage.Info{
		AttachedData:    &attached{data: v.data},
		FileName:        en.Name,
		HasMTime:        true,
		MTimeMs:         en.MTimeMs,
		HasSize:         true,
		Size:            int64(len(v.data)),
		MimeType:        en.MimeType,
		ETag:            string(v.etag),
		ContentEncoding: chosen,
	}
	if len(en.variants) > 1 {
		info.Vary = "Accept-Encoding"
	}
	return info, nil
}

// CreateReadableStream implements storage.Backend.
func (s *Store) CreateReadableStream(ctx context.Context, info storage.Info, r *storage.Range, autoClose bool) (io.ReadCloser, error) {
	a, ok := info.AttachedData.(*attached)
	if !ok {
		return nil, fmt.Errorf("memstorage: invalid attached data")
	}
	data := a.data
	if r != nil {
		data = data[r.Start : r.End+1]
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Close implements storage.Backend. In-memory entries need no release step.
func (s *Store) Close(ctx context.Context, info storage.Info) error {
	return nil
}
