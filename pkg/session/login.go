package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/iotrac/pkg/tokenstore"
	"github.com/aussiebroadwan/iotrac/pkg/validate"
)

// LoginResult is LoginAuthenticated or LoginSecondFactor.
type LoginResult interface {
	isLoginResult()
}

// LoginAuthenticated means the session now holds a token pair and user.
type LoginAuthenticated struct {
	User tokenstore.User

	// NeedsTOTPSetup is set when the session landed in AwaitingTOTPSetup.
	NeedsTOTPSetup bool
}

// LoginSecondFactor means the password was accepted and a code is needed.
type LoginSecondFactor struct {
	TempToken string
	Channel   Channel
	Message   string
}

func (LoginAuthenticated) isLoginResult() {}
func (LoginSecondFactor) isLoginResult()  {}

// authResponse covers every shape the auth endpoints answer with. Older
// backend revisions use camelCase for the 2FA fields.
type authResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	User         *tokenstore.User `json:"user"`

	Requires2FA      bool   `json:"requires_2fa"`
	Requires2FACamel bool   `json:"requires2FA"`
	RequiresTOTP     bool   `json:"requires_totp"`
	TempToken        string `json:"temp_token"`
	TempTokenCamel   string `json:"tempToken"`

	Message string `json:"message"`
}

func (r authResponse) tempToken() string {
	if r.TempToken != "" {
		return r.TempToken
	}
	return r.TempTokenCamel
}

func (r authResponse) hasFinalTokens() bool {
	return r.AccessToken != "" && r.RefreshToken != "" && r.User != nil
}

type messageResponse struct {
	Message string `json:"message"`
}

// Login checks the credentials locally, then with the backend. On success
// the session is either Authenticated (and persisted) or waiting for a
// second factor; on failure it returns to the state it was in.
func (s *Session) Login(ctx context.Context, email, password string) (LoginResult, error) {
	ctx = s.operation(ctx, "login")
	email = strings.TrimSpace(email)
	if err := validate.Email(email); err != nil {
		return nil, localFailure(err)
	}
	if err := validate.LoginPassword(password); err != nil {
		return nil, localFailure(err)
	}

	if !s.acquire() {
		return nil, busyFailure()
	}
	defer s.release()

	prev := s.currentState()
	s.setState(LoggingIn)

	var resp authResponse
	err := s.client.DoPublic(ctx, http.MethodPost, "/auth/login",
		map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		s.setState(prev)
		return nil, remoteFailure(err, "Login failed.")
	}

	switch {
	case resp.Requires2FA || resp.Requires2FACamel || resp.RequiresTOTP:
		temp := resp.tempToken()
		if temp == "" {
			s.setState(prev)
			return nil, invalidResponse("temp_token")
		}

		channel := ChannelEmailCode
		msg := "A verification code was sent to your email."
		if resp.RequiresTOTP {
			channel = ChannelTOTP
			msg = "Enter the code from your authenticator app."
		}

		s.update(func() {
			s.pending = &PendingChallenge{TempToken: temp, Channel: channel}
			s.state = AwaitingSecondFactor
		})
		s.log(ctx).Info("second factor required", "channel", string(channel))
		return LoginSecondFactor{TempToken: temp, Channel: channel, Message: msg}, nil

	case resp.hasFinalTokens():
		landing := s.landingState(resp.User, false)
		if err := s.commit(ctx, resp.AccessToken, resp.RefreshToken, resp.User, landing); err != nil {
			s.setState(prev)
			return nil, err
		}
		s.log(ctx).Info("logged in", "user_id", resp.User.ID)
		return LoginAuthenticated{User: *resp.User, NeedsTOTPSetup: landing == AwaitingTOTPSetup}, nil
	}

	s.setState(prev)
	return nil, invalidResponse("tokens")
}

// Verify2FA submits the emailed (or authenticator) code. tempToken may be
// empty to use the pending challenge. On failure the state and the pending
// challenge are left as they were so the user can retry or resend.
func (s *Session) Verify2FA(ctx context.Context, code, tempToken string) (LoginAuthenticated, error) {
	ctx = s.operation(ctx, "verify_2fa")
	code = strings.TrimSpace(code)
	if err := validate.Code(code); err != nil {
		return LoginAuthenticated{}, localFailure(err)
	}

	tempToken = s.challengeToken(tempToken)
	if tempToken == "" {
		return LoginAuthenticated{}, localFailure(validate.ErrEmptyTempToken)
	}

	if !s.acquire() {
		return LoginAuthenticated{}, busyFailure()
	}
	defer s.release()

	var resp authResponse
	err := s.client.DoPublic(ctx, http.MethodPost, "/auth/2fa/verify",
		map[string]string{"code": code, "temp_token": tempToken}, &resp)
	if err != nil {
		return LoginAuthenticated{}, remoteFailure(err, "Invalid 2FA code.")
	}
	if !resp.hasFinalTokens() {
		return LoginAuthenticated{}, invalidResponse("tokens")
	}

	landing := s.landingState(resp.User, true)
	if err := s.commit(ctx, resp.AccessToken, resp.RefreshToken, resp.User, landing); err != nil {
		return LoginAuthenticated{}, err
	}

	s.log(ctx).Info("second factor verified", "user_id", resp.User.ID)
	return LoginAuthenticated{User: *resp.User, NeedsTOTPSetup: landing == AwaitingTOTPSetup}, nil
}

// Resend2FA asks the backend to send a new code for the challenge. Calls
// are throttled locally.
func (s *Session) Resend2FA(ctx context.Context, tempToken string) (string, error) {
	ctx = s.operation(ctx, "resend_2fa")
	tempToken = s.challengeToken(tempToken)
	if tempToken == "" {
		return "", localFailure(validate.ErrEmptyTempToken)
	}
	if !s.resend2FA.AllowN(s.now(), 1) {
		return "", localFailure(ErrResendTooSoon)
	}

	var resp messageResponse
	err := s.client.DoPublic(ctx, http.MethodPost, "/auth/2fa/resend",
		map[string]string{"temp_token": tempToken}, &resp)
	if err != nil {
		return "", remoteFailure(err, "Could not resend the code.")
	}

	if resp.Message == "" {
		resp.Message = "A new code was sent."
	}
	return resp.Message, nil
}

// CancelChallenge abandons a pending second factor or TOTP enrolment.
func (s *Session) CancelChallenge() {
	s.update(func() {
		switch s.state {
		case AwaitingSecondFactor:
			s.pending = nil
			s.state = Anonymous
		case AwaitingTOTPSetup:
			if s.accessToken != "" && s.user != nil {
				s.state = Authenticated
			} else {
				s.state = Anonymous
			}
		}
	})
}

func (s *Session) challengeToken(explicit string) string {
	explicit = strings.TrimSpace(explicit)
	if explicit != "" {
		return explicit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return s.pending.TempToken
	}
	return ""
}
