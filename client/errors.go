package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	v1 "weddingdesk/pkg/api/v1"
	"weddingdesk/pkg/constraints"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindUnauthenticated: no usable session; the caller should send the user to login.
	KindUnauthenticated
	// KindSessionExpired: the refresh failed and the session has been cleared.
	KindSessionExpired
	// KindForbidden: authenticated but not allowed. The session is kept.
	KindForbidden
	KindNetwork
	KindTimeout
	KindValidation
	KindServer
	KindDecode
	// KindCanceled: the caller's context was canceled before a response arrived.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindSessionExpired:
		return "session_expired"
	case KindForbidden:
		return "forbidden"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	case KindDecode:
		return "decode"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is the normalized failure returned by every Client call.
type Error struct {
	Kind    Kind
	Op      string // e.g. "GET /costumes"
	Status  int    // 0 when no response was received
	Code    string // machine code from the error body
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind, and on Code when the target sets one, so callers can
// write errors.Is(err, client.ErrForbidden).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

var (
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrSessionExpired  = &Error{Kind: KindSessionExpired}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrNetwork         = &Error{Kind: KindNetwork}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrServer          = &Error{Kind: KindServer}
	ErrCanceled        = &Error{Kind: KindCanceled}

	ErrInvalidCredentials = &Error{Kind: KindUnauthenticated, Code: constraints.CodeInvalidCredentials}
	ErrAccountLocked      = &Error{Kind: KindForbidden, Code: constraints.CodeAccountLocked}
	ErrInsufficientRole   = &Error{Kind: KindForbidden, Code: constraints.CodeInsufficientRole}
)

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func responseError(op string, status int, body []byte) *Error {
	e := &Error{Op: op, Status: status}

	var eb v1.ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		e.Code = eb.Error
		e.Message = eb.Message
		e.Fields = eb.Errors
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
		if len(e.Message) > 256 || strings.HasPrefix(e.Message, "{") {
			e.Message = ""
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindUnauthenticated
	case status == http.StatusForbidden:
		e.Kind = KindForbidden
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e.Kind = KindValidation
	default:
		e.Kind = KindServer
	}
	return e
}

func transportError(op string, err error) *Error {
	kind := KindNetwork
	var ne net.Error
	switch {
	case errors.Is(err, context.Canceled):
		kind = KindCanceled
	case errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()):
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
