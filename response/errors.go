package response

import "errors"

// Kind labels why Prepare produced a non-2xx/3xx-normal result, so a caller
// can branch on it without string-matching status text.
type Kind int

const (
	// KindOK means the response is a normal success path (200, 206, 304).
	KindOK Kind = iota
	KindMethodNotAllowed
	KindNotFound
	KindPreconditionFailed
	KindRangeNotSatisfiable
)

// ErrPrematureClose marks a write that failed because the peer closed the
// connection before the body was fully sent. Send can be told to swallow
// this specific class via SendOptions.IgnorePrematureClose.
var ErrPrematureClose = errors.New("response: premature close")

// ErrMissingMethod is returned by Prepare when the request carries no HTTP
// method at all — a transport-layer defect, not a condition this library
// can turn into a status code.
var ErrMissingMethod = errors.New("response: request has no method")
