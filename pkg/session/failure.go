package session

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/iotrac/pkg/apiclient"
)

type FailureKind int

const (
	// FailLocal means the input failed a client-side rule. No network call
	// was made.
	FailLocal FailureKind = iota + 1

	// FailRejected means the backend answered and said no.
	FailRejected

	// FailConnection means no interpretable response arrived: timeout,
	// refused connection, DNS failure, or a garbled body.
	FailConnection

	// FailBusy means another authentication call is still in flight.
	FailBusy
)

func (k FailureKind) String() string {
	switch k {
	case FailLocal:
		return "local"
	case FailRejected:
		return "rejected"
	case FailConnection:
		return "connection"
	case FailBusy:
		return "busy"
	}
	return fmt.Sprintf("failure(%d)", int(k))
}

// Failure is the error every Session operation returns for an expected
// failure.
type Failure struct {
	Kind    FailureKind
	Message string

	// Fields maps form field names to messages for local validation
	// failures that concern more than one field.
	Fields map[string]string

	Err error
}

func (f *Failure) Error() string { return f.Message }
func (f *Failure) Unwrap() error { return f.Err }

var (
	// ErrBusy is wrapped by every FailBusy failure.
	ErrBusy = errors.New("session: another authentication request is in progress")

	ErrResendTooSoon   = errors.New("please wait before requesting another code")
	ErrNotSignedIn     = errors.New("session expired, please sign in again")
	ErrNoRefreshToken  = errors.New("session: no refresh token")
	ErrInvalidTOTPSeed = errors.New("session: invalid TOTP provisioning data")
)

func localFailure(err error) *Failure {
	return &Failure{Kind: FailLocal, Message: err.Error(), Err: err}
}

func busyFailure() *Failure {
	return &Failure{Kind: FailBusy, Message: "Please wait for the current request to finish.", Err: ErrBusy}
}

// remoteFailure converts an apiclient error. fallback replaces the generic
// per-kind text when the server rejected the call without a detail message.
func remoteFailure(err error, fallback string) *Failure {
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) {
		return &Failure{Kind: FailConnection, Message: "Connection error.", Err: err}
	}

	if apiclient.IsConnection(err) || apiErr.Kind == apiclient.KindCanceled {
		return &Failure{Kind: FailConnection, Message: apiErr.Message(), Err: err}
	}

	msg := apiErr.Detail
	if msg == "" && apiErr.Kind != apiclient.KindServer {
		msg = fallback
	}
	if msg == "" {
		msg = apiErr.Message()
	}
	return &Failure{Kind: FailRejected, Message: msg, Err: err}
}

// invalidResponse is a 2xx whose body lacked the fields the flow needs.
func invalidResponse(what string) *Failure {
	return &Failure{
		Kind:    FailRejected,
		Message: "Invalid response from server.",
		Err:     fmt.Errorf("session: %s missing from response", what),
	}
}
