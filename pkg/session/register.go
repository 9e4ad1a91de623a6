package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/iotrac/pkg/tokenstore"
	"github.com/aussiebroadwan/iotrac/pkg/validate"
)

type RegisterInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	FullName        string
	Phone           string
}

type registerRequest struct {
	Email           string          `json:"email"`
	Password        string          `json:"password"`
	ConfirmPassword string          `json:"confirm_password"`
	FullName        string          `json:"full_name"`
	Phone           string          `json:"phone,omitempty"`
	Role            tokenstore.Role `json:"role"`
}

// fieldOrder decides which message a multi-field validation failure leads
// with.
var fieldOrder = []string{"password", "confirm_password", "email", "full_name"}

// Register creates an account. It does not sign the user in: the backend
// sends a verification code to the email address first. The returned string
// is the backend's acknowledgement.
func (s *Session) Register(ctx context.Context, in RegisterInput) (string, error) {
	ctx = s.operation(ctx, "register")
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)

	if fields := validate.Registration(validate.RegisterInput{
		Email:           in.Email,
		Password:        in.Password,
		ConfirmPassword: in.ConfirmPassword,
		FullName:        in.FullName,
	}); fields != nil {
		f := &Failure{Kind: FailLocal, Fields: fields}
		for _, name := range fieldOrder {
			if msg, ok := fields[name]; ok {
				f.Message = msg
				break
			}
		}
		return "", f
	}

	if !s.acquire() {
		return "", busyFailure()
	}
	defer s.release()

	confirm := in.ConfirmPassword
	if confirm == "" {
		confirm = in.Password
	}

	var resp messageResponse
	err := s.client.DoPublic(ctx, http.MethodPost, "/auth/register", registerRequest{
		Email:           in.Email,
		Password:        in.Password,
		ConfirmPassword: confirm,
		FullName:        in.FullName,
		Phone:           strings.TrimSpace(in.Phone),
		Role:            tokenstore.RoleUser,
	}, &resp)
	if err != nil {
		return "", remoteFailure(err, "Registration failed.")
	}

	if resp.Message == "" {
		resp.Message = "Account created. Check your email for the verification code."
	}
	return resp.Message, nil
}

// VerifyEmail confirms the address with the code sent after registration.
func (s *Session) VerifyEmail(ctx context.Context, email, code string) (string, error) {
	ctx = s.operation(ctx, "verify_email")
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	if err := validate.Email(email); err != nil {
		return "", localFailure(err)
	}
	if err := validate.Code(code); err != nil {
		return "", localFailure(err)
	}

	var resp messageResponse
	err := s.client.DoPublic(ctx, http.MethodPost, "/auth/verify-email",
		map[string]string{"email": email, "code": code}, &resp)
	if err != nil {
		return "", remoteFailure(err, "Invalid verification code.")
	}

	if resp.Message == "" {
		resp.Message = "Email verified. You can now sign in."
	}
	return resp.Message, nil
}

// ResendVerifyEmail asks for a new verification code. Calls are throttled
// locally.
func (s *Session) ResendVerifyEmail(ctx context.Context, email string) (string, error) {
	ctx = s.operation(ctx, "resend_verify_email")
	email = strings.TrimSpace(email)
	if err := validate.Email(email); err != nil {
		return "", localFailure(err)
	}
	if !s.resendEmail.AllowN(s.now(), 1) {
		return "", localFailure(ErrResendTooSoon)
	}

	var resp messageResponse
	err := s.client.DoPublic(ctx, http.MethodPost, "/auth/verify-email/resend",
		map[string]string{"email": email}, &resp)
	if err != nil {
		return "", remoteFailure(err, "Could not resend the verification code.")
	}

	if resp.Message == "" {
		resp.Message = "A new verification code was sent."
	}
	return resp.Message, nil
}
