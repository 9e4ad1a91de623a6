package testbackend

import (
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/iotrac/pkg/iotrac"
	"github.com/aussiebroadwan/iotrac/pkg/tokenstore"
)

// UserOption tweaks an account created by AddUser.
type UserOption func(*account)

// Unverified leaves the account's email unverified; login answers 403
// until VerifyEmail succeeds.
func Unverified() UserOption {
	return func(a *account) { a.verified = false }
}

// WithEmail2FA makes login answer with an email-code challenge.
func WithEmail2FA() UserOption {
	return func(a *account) { a.user.TwoFAEnabled = true }
}

// WithTOTP enrols the account in TOTP with a fresh secret.
func WithTOTP() UserOption {
	return func(a *account) {
		key, err := totp.Generate(totp.GenerateOpts{Issuer: TOTPIssuer, AccountName: a.user.Email})
		if err != nil {
			panic(err)
		}
		a.totpSecret = key.Secret()
		a.user.TOTPEnabled = true
	}
}

func WithRole(r tokenstore.Role) UserOption {
	return func(a *account) { a.user.Role = r }
}

// AddUser creates a verified account and returns its public profile.
func (b *Backend) AddUser(email, password string, opts ...UserOption) tokenstore.User {
	b.mu.Lock()
	defer b.mu.Unlock()

	acc := b.addAccount(tokenstore.User{
		Email:    email,
		FullName: "Test User",
		Role:     tokenstore.RoleUser,
	}, password)
	acc.verified = true
	for _, opt := range opts {
		opt(acc)
	}
	return acc.user
}

// IssueTokens signs the user in directly and returns a fresh token pair.
func (b *Backend) IssueTokens(email string) (access, refresh string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acc := b.accountByEmail(email)
	if acc == nil {
		return "", ""
	}
	return b.issueTokens(acc.user.ID)
}

// EmailCode returns the outstanding email verification code.
func (b *Backend) EmailCode(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if acc := b.accountByEmail(email); acc != nil {
		return acc.emailCode
	}
	return ""
}

// ChallengeCode returns the emailed code for a pending 2FA challenge.
func (b *Backend) ChallengeCode(tempToken string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.challenges[tempToken]; ok {
		return ch.code
	}
	return ""
}

// TOTPCode generates the current code for the account's enrolled secret,
// or for the pending one while enrolment is in progress.
func (b *Backend) TOTPCode(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	acc := b.accountByEmail(email)
	if acc == nil {
		return ""
	}
	secret := acc.totpSecret
	if acc.pendingTOTP != "" {
		secret = acc.pendingTOTP
	}
	if secret == "" {
		return ""
	}
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		return ""
	}
	return code
}

// ExpireAccessTokens invalidates every issued access token.
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.access)
}

// RevokeRefreshTokens invalidates every issued refresh token.
func (b *Backend) RevokeRefreshTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.refresh)
}

// FailNext makes the next request to route ("METHOD /path") answer with
// status and detail. Calls queue.
func (b *Backend) FailNext(route string, status int, detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = append(b.failures[route], failure{status: status, detail: detail})
}

// Hits counts requests matched for route ("METHOD /path").
func (b *Backend) Hits(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[route]
}

// TotalHits counts every matched request.
func (b *Backend) TotalHits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// SetAssistant switches the /ai/query endpoint between answering and 503.
func (b *Backend) SetAssistant(up bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.assistantUp = up
}

// SetBareTOTPSecret makes TOTP setup return an image URL instead of an
// otpauth:// URI, so clients must build the URI from the secret.
func (b *Backend) SetBareTOTPSecret(bare bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bareTOTP = bare
}

// AddDevice registers a device directly.
func (b *Backend) AddDevice(t iotrac.DeviceType, ip string) iotrac.Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.addDevice(t, ip)
}

// AddLog records a command log entry for a registered device.
func (b *Backend) AddLog(deviceID int64, command, status string) iotrac.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	dev, ok := b.devices[deviceID]
	if !ok {
		return iotrac.LogEntry{}
	}
	return b.appendLog(dev, command, status)
}

// SetProtection sets the global protection flag.
func (b *Backend) SetProtection(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.protection = on
}

// UserByEmail returns the current profile for email.
func (b *Backend) UserByEmail(email string) (tokenstore.User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acc := b.accountByEmail(strings.TrimSpace(email))
	if acc == nil {
		return tokenstore.User{}, false
	}
	return acc.user, true
}
