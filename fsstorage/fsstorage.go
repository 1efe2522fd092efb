// Package fsstorage implements storage.Backend over a directory tree:
// request paths are parsed and validated the way a URL path is, then
// resolved beneath a root directory, with an optional set of regex-driven
// content-encoding mappings for serving pre-compressed variants (a
// "foo.json" request transparently opening "foo.json.gz" when the client
// accepts gzip and the uncompressed file doesn't win negotiation).
package fsstorage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/sendstream-go/sendstream/encoding"
	"github.com/sendstream-go/sendstream/header"
	"github.com/sendstream-go/sendstream/storage"
)

// defaultIgnorePattern hides dotfiles, matching the convention most static
// file servers in the pack use (no dotfile serves by default).
var defaultIgnorePattern = regexp.MustCompile(`^\.`)

// EncodingMapping pairs a regex matched against a resolved filesystem path
// with the ordered set of pre-compressed variants to try: for each
// candidate, Match.ReplaceAllString(resolved, candidate.Template) computes
// the alternate file to open.
type EncodingMapping struct {
	Match    *regexp.Regexp
	Variants []encoding.Candidate
}

// Store is a storage.Backend rooted at a directory on disk.
type Store struct {
	root      string
	ignore    matcher
	encodings []EncodingMapping
}

// Option configures a Store constructed with New.
type Option func(*Store)

// WithIgnorePattern overrides the default leading-dot ignore pattern.
func WithIgnorePattern(pattern *regexp.Regexp) Option {
	return func(s *Store) { s.ignore = pattern }
}

// WithEncodings registers content-encoding mappings, tried in order against
// each resolved path; the first mapping whose regex matches is used.
func WithEncodings(mappings []EncodingMapping) Option {
	return func(s *Store) { s.encodings = mappings }
}

// New creates a Store rooted at root. The root is not validated to exist;
// a missing root simply makes every Open fail with KindDoesNotExist.
func New(root string, opts ...Option) *Store {
	s := &Store{root: root, ignore: defaultIgnorePattern}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type fileHandle struct {
	file *os.File
}

// Open implements storage.Backend. reference is either a URL-encoded
// string path or a []string of path parts, both starting with an empty
// leading element the way an absolute URL path splits.
func (s *Store) Open(ctx context.Context, reference any, headers header.Headers) (storage.Info, error) {
	parts, err := parseReference(reference)
	if err != nil {
		return storage.Info{}, err
	}
	if err := validateParts(parts, s.ignore); err != nil {
		return storage.Info{}, err
	}

	fileName := ""
	if len(parts) > 1 {
		fileName = parts[len(parts)-1]
	}
	resolved := filepath.Join(append([]string{s.root}, parts[1:]...)...)

	for _, mapping := range s.encodings {
		if mapping.Match.MatchString(resolved) {
			return s.openEncoded(resolved, mapping, headers, fileName)
		}
	}
	return s.openPlain(resolved, fileName)
}

func (s *Store) openPlain(resolved, fileName string) (storage.Info, error) {
	f, st, err := statOpen(resolved)
	if err != nil {
		return storage.Info{}, err
	}
	if st.IsDir() {
		f.Close()
		return storage.Info{}, &PathError{Kind: KindIsDirectory, Path: resolved}
	}
	return infoFor(f, st, fileName, ""), nil
}

func (s *Store) openEncoded(resolved string, mapping EncodingMapping, headers header.Headers, fileName string) (storage.Info, error) {
	negotiated := encoding.Negotiate(headers.Get("accept-encoding"), mapping.Variants)

	for _, cand := range negotiated {
		target := resolved
		if cand.Template != "" && cand.Template != "$&" {
			target = mapping.Match.ReplaceAllString(resolved, cand.Template)
		}
		f, st, err := statOpen(target)
		if err != nil {
			continue // try the next encoding
		}
		if st.IsDir() {
			f.Close()
			if cand.Name == encoding.Identity {
				return storage.Info{}, &PathError{Kind: KindIsDirectory, Path: target}
			}
			continue
		}
		info := infoFor(f, st, fileName, cand.Name)
		info.Vary = "Accept-Encoding"
		return info, nil
	}
	return storage.Info{}, &PathError{Kind: KindDoesNotExist, Path: resolved}
}

func statOpen(path string) (*os.File, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, &PathError{Kind: KindDoesNotExist, Path: path, Err: err}
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, &PathError{Kind: KindDoesNotExist, Path: path, Err: err}
	}
	return f, st, nil
}

func infoFor(f *os.File, st os.FileInfo, fileName, contentEncoding string) storage.Info {
	return storage.Info{
		AttachedData:    &fileHandle{file: f},
		FileName:        fileName,
		HasMTime:        true,
		MTimeMs:         st.ModTime().UnixMilli(),
		HasSize:         true,
		Size:            st.Size(),
		ContentEncoding: contentEncoding,
	}
}

// CreateReadableStream implements storage.Backend.
func (s *Store) CreateReadableStream(ctx context.Context, info storage.Info, r *storage.Range, autoClose bool) (io.ReadCloser, error) {
	fh, ok := info.AttachedData.(*fileHandle)
	if !ok {
		return nil, fmt.Errorf("fsstorage: invalid attached data")
	}
	var reader io.Reader = fh.file
	if r != nil {
		reader = io.NewSectionReader(fh.file, r.Start, r.Length())
	}
	return &fileStream{reader: reader, file: fh.file, autoClose: autoClose}, nil
}

// Close implements storage.Backend.
func (s *Store) Close(ctx context.Context, info storage.Info) error {
	fh, ok := info.AttachedData.(*fileHandle)
	if !ok || fh.file == nil {
		return nil
	}
	return fh.file.Close()
}

// fileStream wraps the open file (or a range view over it via
// io.SectionReader, which uses ReadAt so concurrent range parts over one
// *os.File never race on a shared offset). When autoClose is set it closes
// the file at most once, on EOF or on an explicit Close call, whichever comes
// first; without autoClose it never closes the file, leaving that to
// Store.Close.
type fileStream struct {
	reader    io.Reader
	file      *os.File
	autoClose bool
	closed    bool
}

func (fs *fileStream) Read(p []byte) (int, error) {
	n, err := fs.reader.Read(p)
	if err == io.EOF && fs.autoClose && !fs.closed {
		fs.closed = true
		fs.file.Close()
	}
	return n, err
}

func (fs *fileStream) Close() error {
	if fs.closed {
		return nil
	}
	fs.closed = true
	if fs.autoClose {
		return fs.file.Close()
	}
	return nil
}
