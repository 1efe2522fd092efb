package header

import "testing"

func TestParseAcceptEncoding(t *testing.T) {
	tests := []struct {
		in   string
		want []Coding
	}{
		{"gzip", []Coding{{"gzip", 1}}},
		{"gzip;q=0.5, br;q=0.8", []Coding{{"gzip", 0.5}, {"br", 0.8}}},
		{"x-gzip", []Coding{{"gzip", 1}}},
		{"*", []Coding{{"*", 1}}},
		{"gzip;q=1.000", []Coding{{"gzip", 1}}},
	}
	for _, tt := range tests {
		got, ok := ParseAcceptEncoding(tt.in)
		if !ok {
			t.Errorf("%q: expected ok", tt.in)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("%q: got %+v want %+v", tt.in, got, tt.want)
			continue
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("%q: got %+v want %+v", tt.in, got, tt.want)
			}
		}
	}
}

func TestParseAcceptEncodingInvalid(t *testing.T) {
	invalid := []string{
		"gzip;q=2",
		"gzip;q=1.1",
		"gzip;q=",
		"gzip;weight=1",
		";q=1",
	}
	for _, in := range invalid {
		if _, ok := ParseAcceptEncoding(in); ok {
			t.Errorf("%q: expected rejection", in)
		}
	}
}

func TestParseAcceptEncodingEmpty(t *testing.T) {
	if _, ok := ParseAcceptEncoding(""); ok {
		t.Error("empty header should not be ok")
	}
}
