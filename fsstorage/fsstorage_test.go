package fsstorage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/sendstream-go/sendstream/encoding"
	"github.com/sendstream-go/sendstream/header"
	"github.com/sendstream-go/sendstream/storage"
)

func kindOf(t *testing.T, err error) ErrorKind {
	t.Helper()
	pe, ok := err.(*PathError)
	if !ok {
		t.Fatalf("expected *PathError, got %T (%v)", err, err)
	}
	return pe.Kind
}

func TestParseStringPathBasic(t *testing.T) {
	parts, err := parseStringPath("/a/b/c.txt")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"", "a", "b", "c.txt"}
	if len(parts) != len(want) {
		t.Fatalf("got %v", parts)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Fatalf("got %v want %v", parts, want)
		}
	}
}

func TestParseStringPathRejectsNonSlash(t *testing.T) {
	_, err := parseStringPath("a/b")
	if err == nil {
		t.Fatal("expected error")
	}
	if kindOf(t, err) != KindStorageError {
		t.Fatalf("got kind %v", kindOf(t, err))
	}
}

func TestParseStringPathNotNormalizedDotDot(t *testing.T) {
	_, err := parseStringPath("/a/../b")
	if err == nil {
		t.Fatal("expected error")
	}
	if kindOf(t, err) != KindNotNormalized {
		t.Fatalf("got kind %v", kindOf(t, err))
	}
}

func TestParseStringPathNotNormalizedEncodedDotDot(t *testing.T) {
	// %2e is an encoded "." segment; decoding it yields a dot segment that
	// would not have been written that way by a normalized client.
	_, err := parseStringPath("/a/%2e%2e/b")
	if err == nil {
		t.Fatal("expected error")
	}
	if kindOf(t, err) != KindNotNormalized {
		t.Fatalf("got kind %v", kindOf(t, err))
	}
}

func TestParseArrayPathRejectsMissingLeadingEmpty(t *testing.T) {
	_, err := parseArrayPath([]string{"a", "b"})
	if err == nil {
		t.Fatal("expected error")
	}
	if kindOf(t, err) != KindInvalidPath {
		t.Fatalf("got kind %v", kindOf(t, err))
	}
}

func TestParseArrayPathRejectsDotDot(t *testing.T) {
	_, err := parseArrayPath([]string{"", "a", "..", "b"})
	if err == nil {
		t.Fatal("expected error")
	}
	if kindOf(t, err) != KindInvalidPath {
		t.Fatalf("got kind %v", kindOf(t, err))
	}
}

func TestValidateConsecutiveSlashes(t *testing.T) {
	err := validateParts([]string{"", "a", "", "b"}, defaultIgnorePattern)
	if err == nil {
		t.Fatal("expected error")
	}
	if kindOf(t, err) != KindConsecutiveSlashes {
		t.Fatalf("got kind %v", kindOf(t, err))
	}
}

func TestValidateTrailingSlash(t *testing.T) {
	err := validateParts([]string{"", "a", "b", ""}, defaultIgnorePattern)
	if err == nil {
		t.Fatal("expected error")
	}
	if kindOf(t, err) != KindTrailingSlash {
		t.Fatalf("got kind %v", kindOf(t, err))
	}
}

func TestValidateForbiddenCharacter(t *testing.T) {
	err := validateParts([]string{"", "a:b"}, defaultIgnorePattern)
	if err == nil {
		t.Fatal("expected error")
	}
	if kindOf(t, err) != KindForbiddenCharacter {
		t.Fatalf("got kind %v", kindOf(t, err))
	}
}

func TestValidateIgnoredFile(t *testing.T) {
	err := validateParts([]string{"", ".hidden"}, defaultIgnorePattern)
	if err == nil {
		t.Fatal("expected error")
	}
	if kindOf(t, err) != KindIgnoredFile {
		t.Fatalf("got kind %v", kindOf(t, err))
	}
}

func TestValidateForbiddenBeforeIgnore(t *testing.T) {
	// ".a:b" matches both the ignore pattern and the forbidden class;
	// forbidden-character must win.
	err := validateParts([]string{"", ".a:b"}, defaultIgnorePattern)
	if kindOf(t, err) != KindForbiddenCharacter {
		t.Fatalf("got kind %v, want forbidden-character precedence", kindOf(t, err))
	}
}

func TestOpenPlainFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(dir)
	info, err := s.Open(context.Background(), "/hello.txt", header.MapHeaders{})
	if err != nil {
		t.Fatal(err)
	}
	if info.Size != 11 || info.FileName != "hello.txt" {
		t.Fatalf("got %+v", info)
	}
	rc, err := s.CreateReadableStream(context.Background(), info, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "hello world" {
		t.Fatalf("got %q", data)
	}
}

func TestOpenDirectoryError(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	s := New(dir)
	_, err := s.Open(context.Background(), "/sub", header.MapHeaders{})
	if err == nil || kindOf(t, err) != KindIsDirectory {
		t.Fatalf("got %v", err)
	}
}

func TestOpenDoesNotExist(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Open(context.Background(), "/missing.txt", header.MapHeaders{})
	if err == nil || kindOf(t, err) != KindDoesNotExist {
		t.Fatalf("got %v", err)
	}
}

func TestOpenEncodedGzipAlternate(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "gzip.json"), []byte(`{"plain":true}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "gzip.json.gz"), []byte("not really gzipped, just a stand-in"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(dir, WithEncodings([]EncodingMapping{
		{
			Match: regexp.MustCompile(`(.+\.json)$`),
			Variants: []encoding.Candidate{
				{Name: "gzip", Order: 0, Template: "$1.gz"},
				{Name: "br", Order: 1, Template: "$1.br"},
			},
		},
	}))

	info, err := s.Open(context.Background(), "/gzip.json", header.MapHeaders{"accept-encoding": "gzip, deflate"})
	if err != nil {
		t.Fatal(err)
	}
	if info.ContentEncoding != "gzip" {
		t.Fatalf("got encoding %q", info.ContentEncoding)
	}
	if info.Vary != "Accept-Encoding" {
		t.Fatalf("expected Vary to be set")
	}
	rc, err := s.CreateReadableStream(context.Background(), info, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "not really gzipped, just a stand-in" {
		t.Fatalf("opened the wrong file: %q", data)
	}
}

func TestOpenEncodedFallsBackToIdentity(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "plain.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(dir, WithEncodings([]EncodingMapping{
		{
			Match: regexp.MustCompile(`(.+\.json)$`),
			Variants: []encoding.Candidate{
				{Name: "gzip", Order: 0, Template: "$1.gz"},
			},
		},
	}))

	info, err := s.Open(context.Background(), "/plain.json", header.MapHeaders{"accept-encoding": "gzip"})
	if err != nil {
		t.Fatal(err)
	}
	if info.ContentEncoding != encoding.Identity {
		t.Fatalf("got encoding %q, want identity fallback since .gz is missing", info.ContentEncoding)
	}
}

func TestOpenEncodedSingleVariantSetsVary(t *testing.T) {
	// A mapping with exactly one configured variant must still set Vary
	// once that non-identity variant is actually chosen: the header
	// reflects whether negotiation ran over a configured mapping, not how
	// many variants were configured.
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "solo.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "solo.json.gz"), []byte("gzipped stand-in"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(dir, WithEncodings([]EncodingMapping{
		{
			Match: regexp.MustCompile(`(.+\.json)$`),
			Variants: []encoding.Candidate{
				{Name: "gzip", Order: 0, Template: "$1.gz"},
			},
		},
	}))

	info, err := s.Open(context.Background(), "/solo.json", header.MapHeaders{"accept-encoding": "gzip"})
	if err != nil {
		t.Fatal(err)
	}
	if info.ContentEncoding != "gzip" {
		t.Fatalf("got encoding %q", info.ContentEncoding)
	}
	if info.Vary != "Accept-Encoding" {
		t.Fatalf("expected Vary to be set for a non-identity encoding, even with a single configured variant")
	}
}

func TestRangeReadOverFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "nums.txt"), []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(dir)
	info, err := s.Open(context.Background(), "/nums.txt", header.MapHeaders{})
	if err != nil {
		t.Fatal(err)
	}
	rc, err := s.CreateReadableStream(context.Background(), info, &storage.Range{Start: 2, End: 4}, true)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "234" {
		t.Fatalf("got %q", data)
	}
}
