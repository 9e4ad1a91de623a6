package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Kind classifies a failed call. The first group comes from the HTTP status,
// the second from the transport.
type Kind int

const (
	KindUnknown Kind = iota

	KindValidation // 400
	KindAuth       // 401, 403
	KindNotFound   // 404
	KindConflict   // 409
	KindServer     // 500
	KindUnexpected // any other non-2xx

	KindTimeout
	KindConnRefused
	KindDNS
	KindNetwork
	KindMalformed // 2xx with a body that is not the expected JSON
	KindCanceled  // caller's context was cancelled
)

var kindNames = map[Kind]string{
	KindUnknown:     "unknown",
	KindValidation:  "validation",
	KindAuth:        "auth",
	KindNotFound:    "not_found",
	KindConflict:    "conflict",
	KindServer:      "server",
	KindUnexpected:  "unexpected_status",
	KindTimeout:     "timeout",
	KindConnRefused: "connection_refused",
	KindDNS:         "dns",
	KindNetwork:     "network",
	KindMalformed:   "malformed_response",
	KindCanceled:    "canceled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Transient reports whether a retry might succeed without changing input.
func (k Kind) Transient() bool {
	switch k {
	case KindTimeout, KindConnRefused, KindDNS, KindNetwork, KindMalformed:
		return true
	}
	return false
}

// Error is the only error type the client returns for a completed or
// attempted call.
type Error struct {
	Kind   Kind
	Status int    // HTTP status, 0 for transport failures
	Detail string // server-provided detail, if any
	Err    error  // underlying cause, if any
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("apiclient: ")
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the text shown to a user: the server's detail when present,
// otherwise a generic line for the kind.
func (e *Error) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	switch e.Kind {
	case KindValidation:
		return "The request was rejected as invalid."
	case KindAuth:
		return "Authentication failed. Please sign in again."
	case KindNotFound:
		return "The requested resource was not found."
	case KindConflict:
		return "The resource already exists."
	case KindServer:
		return "Server error. Please try again later."
	case KindTimeout:
		return "The server took too long to respond. Check your connection and try again."
	case KindConnRefused:
		return "Could not connect to the server. Check that the backend is running."
	case KindDNS:
		return "Could not resolve the server address. Check the API URL."
	case KindNetwork:
		return "Network error. Check your connection and try again."
	case KindMalformed:
		return "The server sent an unexpected response."
	case KindCanceled:
		return "The request was cancelled."
	}
	if e.Status != 0 {
		return fmt.Sprintf("Unexpected response from server (HTTP %d).", e.Status)
	}
	return "Unexpected error."
}

func kindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

func IsAuth(err error) bool      { return kindOf(err) == KindAuth }
func IsNotFound(err error) bool  { return kindOf(err) == KindNotFound }
func IsConflict(err error) bool  { return kindOf(err) == KindConflict }
func IsTransient(err error) bool { return kindOf(err).Transient() }

// IsConnection reports whether the call never produced an interpretable
// response.
func IsConnection(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == 0 || apiErr.Kind == KindMalformed
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest:
		return KindValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusInternalServerError:
		return KindServer
	}
	return KindUnexpected
}

// statusError builds the error for a non-2xx response.
func statusError(status int, body []byte) *Error {
	return &Error{
		Kind:   kindForStatus(status),
		Status: status,
		Detail: parseDetail(body),
	}
}

// transportError classifies a failure to get any response at all.
func transportError(err error) *Error {
	var (
		dnsErr *net.DNSError
		netErr net.Error
	)

	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCanceled, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: err}
	case errors.As(err, &dnsErr):
		return &Error{Kind: KindDNS, Err: err}
	case errors.Is(err, syscall.ECONNREFUSED):
		return &Error{Kind: KindConnRefused, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}

// parseDetail extracts a human message from an error body. The backend
// sends {"detail": "..."} for handled errors and {"detail": [{"msg": ...}]}
// for request validation failures; some routes use "message" instead.
func parseDetail(body []byte) string {
	var env struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}

	if len(env.Detail) > 0 {
		var s string
		if err := json.Unmarshal(env.Detail, &s); err == nil {
			return s
		}

		var list []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(env.Detail, &list); err == nil {
			msgs := make([]string, 0, len(list))
			for _, item := range list {
				if item.Msg != "" {
					msgs = append(msgs, item.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
	}

	return env.Message
}
