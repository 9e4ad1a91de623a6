package session

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/iotrac/pkg/tokenstore"
	"github.com/aussiebroadwan/iotrac/pkg/validate"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPSetup is what an authenticator app needs to enrol.
type TOTPSetup struct {
	ProvisioningURI string // otpauth:// URI, render as a QR code
	QRCodeURL       string // image URL from the backend, if it sent one
	Secret          string // base32 secret for manual entry
	Issuer          string
	Account         string
}

type totpSetupResponse struct {
	QRCodeURL       string `json:"qr_code_url"`
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	OTPAuthURL      string `json:"otpauth_url"`
}

// SetupTOTP starts authenticator enrolment for the signed-in user and moves
// the session to AwaitingTOTPSetup.
func (s *Session) SetupTOTP(ctx context.Context) (TOTPSetup, error) {
	ctx = s.operation(ctx, "totp_setup")
	snap := s.Snapshot()
	if snap.AccessToken == "" {
		return TOTPSetup{}, localFailure(ErrNotSignedIn)
	}

	var resp totpSetupResponse
	if err := s.client.Do(ctx, http.MethodPost, "/auth/totp/setup", struct{}{}, &resp); err != nil {
		return TOTPSetup{}, remoteFailure(err, "Could not start authenticator setup.")
	}

	account := ""
	if snap.User != nil {
		account = snap.User.Email
	}

	setup, err := s.parseTOTPSetup(resp, account)
	if err != nil {
		return TOTPSetup{}, &Failure{Kind: FailRejected, Message: "Invalid response from server.", Err: err}
	}

	s.setState(AwaitingTOTPSetup)
	return setup, nil
}

// parseTOTPSetup prefers an otpauth:// URI from the backend and otherwise
// builds one from the bare secret.
func (s *Session) parseTOTPSetup(resp totpSetupResponse, account string) (TOTPSetup, error) {
	uri := firstNonEmpty(resp.ProvisioningURI, resp.OTPAuthURL)
	if uri == "" && strings.HasPrefix(resp.QRCodeURL, "otpauth://") {
		uri = resp.QRCodeURL
	}

	if uri == "" {
		if resp.Secret == "" {
			return TOTPSetup{}, fmt.Errorf("%w: neither uri nor secret present", ErrInvalidTOTPSeed)
		}
		uri = buildOTPAuthURI(s.totpIssuer, account, resp.Secret)
	}

	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return TOTPSetup{}, fmt.Errorf("%w: %v", ErrInvalidTOTPSeed, err)
	}
	if key.Type() != "totp" {
		return TOTPSetup{}, fmt.Errorf("%w: type %q", ErrInvalidTOTPSeed, key.Type())
	}

	secret := firstNonEmpty(resp.Secret, key.Secret())
	if _, err := totp.GenerateCode(secret, s.now()); err != nil {
		return TOTPSetup{}, fmt.Errorf("%w: %v", ErrInvalidTOTPSeed, err)
	}

	return TOTPSetup{
		ProvisioningURI: key.URL(),
		QRCodeURL:       resp.QRCodeURL,
		Secret:          secret,
		Issuer:          key.Issuer(),
		Account:         key.AccountName(),
	}, nil
}

func buildOTPAuthURI(issuer, account, secret string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + issuer + ":" + account,
		RawQuery: v.Encode(),
	}
	return u.String()
}

// VerifyTOTP completes enrolment with a code from the authenticator app,
// exchanges it for a new token pair, and reconciles the profile. If the
// profile cannot be fetched the previous user is kept.
func (s *Session) VerifyTOTP(ctx context.Context, code string) (LoginAuthenticated, error) {
	ctx = s.operation(ctx, "totp_verify")
	code = strings.TrimSpace(code)
	if err := validate.Code(code); err != nil {
		return LoginAuthenticated{}, localFailure(err)
	}

	snap := s.Snapshot()
	if snap.AccessToken == "" {
		return LoginAuthenticated{}, localFailure(ErrNotSignedIn)
	}

	if !s.acquire() {
		return LoginAuthenticated{}, busyFailure()
	}
	defer s.release()

	// Sent with the stored token and no refresh: a 401 here means a wrong
	// code, not an expired session.
	var resp authResponse
	err := s.client.DoWithToken(ctx, snap.AccessToken, http.MethodPost, "/auth/totp/verify",
		map[string]string{"code": code}, &resp)
	if err != nil {
		return LoginAuthenticated{}, remoteFailure(err, "Invalid code.")
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return LoginAuthenticated{}, invalidResponse("tokens")
	}

	user := snap.User
	var me tokenstore.User
	if err := s.client.DoWithToken(ctx, resp.AccessToken, http.MethodGet, "/auth/me", nil, &me); err != nil {
		s.log(ctx).Warn("failed to reconcile profile after TOTP setup", "error", err.Error())
	} else {
		user = &me
	}
	if resp.User != nil && user == nil {
		user = resp.User
	}
	if user == nil {
		return LoginAuthenticated{}, invalidResponse("user")
	}

	if err := s.commit(ctx, resp.AccessToken, resp.RefreshToken, user, Authenticated); err != nil {
		return LoginAuthenticated{}, err
	}

	s.log(ctx).Info("authenticator enrolled", "user_id", user.ID)
	return LoginAuthenticated{User: *user}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
