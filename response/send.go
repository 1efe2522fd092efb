package response

import (
	"errors"
	"io"
	"net/http"
	"strings"
)

// Send writes the status line, headers, and body to w, then closes Body.
// A write failure caused by the peer closing the connection partway
// through the body is reported as ErrPrematureClose; with
// opts.IgnorePrematureClose (the recommended default, see
// DefaultSendOptions) that specific failure is swallowed and Send returns
// nil, while any other error still propagates.
func (p *Prepared) Send(w http.ResponseWriter, opts SendOptions) error {
	dst := w.Header()
	for k, v := range p.Header {
		dst[k] = v
	}
	w.WriteHeader(p.StatusCode)

	if p.Body == nil || p.Body == http.NoBody {
		return nil
	}
	defer p.Body.Close()

	_, err := io.Copy(w, p.Body)
	if err == nil {
		return nil
	}
	if isPrematureClose(err) {
		if opts.IgnorePrematureClose {
			return nil
		}
		return ErrPrematureClose
	}
	return err
}

// isPrematureClose reports whether err represents the peer closing the
// connection before the body was fully written, the one write-error class
// Send's IgnorePrematureClose option can suppress. net/http doesn't export
// a sentinel for this, so the well-known OS-level error strings are
// matched the way the standard library's own internal code does.
func isPrematureClose(err error) bool {
	if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, http.ErrHandlerTimeout) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "client disconnected")
}
