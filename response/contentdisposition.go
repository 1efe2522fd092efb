package response

import (
	"net/url"
	"strings"
)

// formatContentDisposition renders a Content-Disposition header value per
// RFC 6266: a plain quoted filename when it is entirely printable ASCII,
// and an additional filename*=UTF-8''<pct-encoded> parameter when it isn't
// (so legacy clients still get a usable ASCII fallback).
func formatContentDisposition(dispType, filename string) string {
	if dispType == "" {
		dispType = "inline"
	}
	if filename == "" {
		return dispType
	}
	var b strings.Builder
	b.WriteString(dispType)
	b.WriteString(`; filename="`)
	b.WriteString(quoteFilename(filename))
	b.WriteByte('"')
	if !isASCIIPrintable(filename) {
		b.WriteString(`; filename*=UTF-8''`)
		b.WriteString(url.PathEscape(filename))
	}
	return b.String()
}

func quoteFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isASCIIPrintable(s string) bool {
	for _, r := range s {
		if r < 0x20 || r > 0x7E {
			return false
		}
	}
	return true
}
