package testbackend

import (
	"net/http"
	"strings"

	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/iotrac/pkg/cryptox"
	"github.com/aussiebroadwan/iotrac/pkg/tokenstore"
)

// TOTPIssuer is the issuer the fake backend puts in provisioning URIs.
const TOTPIssuer = "IOTRAC"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	acc := b.accountByEmail(req.Email)
	if acc == nil || acc.password != req.Password {
		writeDetail(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if !acc.verified {
		writeDetail(w, http.StatusForbidden, "Email not verified")
		return
	}

	switch {
	case acc.totpSecret != "":
		temp := b.newChallenge(acc.user.ID, "totp", "")
		writeJSON(w, http.StatusOK, map[string]any{
			"requires_2fa":  true,
			"requires_totp": true,
			"temp_token":    temp,
			"message":       "Enter the code from your authenticator app",
		})
	case acc.user.TwoFAEnabled:
		code, _ := cryptox.GenerateDigits(6)
		temp := b.newChallenge(acc.user.ID, "email-code", code)
		writeJSON(w, http.StatusOK, map[string]any{
			"requires_2fa": true,
			"temp_token":   temp,
			"message":      "A verification code was sent to your email",
		})
	default:
		b.writeSession(w, acc, "pwd")
	}
}

type verify2FARequest struct {
	Code      string `json:"code"`
	TempToken string `json:"temp_token"`
}

func (b *Backend) verify2FA(w http.ResponseWriter, r *http.Request) {
	var req verify2FARequest
	if !decodeBody(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.challenges[req.TempToken]
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid or expired temporary token")
		return
	}
	acc := b.accounts[ch.userID]

	valid := req.Code == ch.code
	if ch.channel == "totp" {
		valid = totp.Validate(req.Code, acc.totpSecret)
	}
	if !valid {
		writeDetail(w, http.StatusBadRequest, "Invalid 2FA code")
		return
	}

	delete(b.challenges, req.TempToken)
	second := "mfa"
	if ch.channel == "totp" {
		second = "otp"
	}
	b.writeSession(w, acc, "pwd", second)
}

func (b *Backend) resend2FA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TempToken string `json:"temp_token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.challenges[req.TempToken]
	if !ok {
		writeDetail(w, http.StatusBadRequest, "Invalid temporary token")
		return
	}
	if ch.channel == "email-code" {
		ch.code, _ = cryptox.GenerateDigits(6)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "A new code was sent to your email"})
}

type registerRequest struct {
	Email           string          `json:"email"`
	Password        string          `json:"password"`
	ConfirmPassword string          `json:"confirm_password"`
	FullName        string          `json:"full_name"`
	Phone           string          `json:"phone"`
	Role            tokenstore.Role `json:"role"`
}

func (b *Backend) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var problems []string
	if req.Email == "" {
		problems = append(problems, "email: field required")
	}
	if len(req.Password) < 8 {
		problems = append(problems, "password: ensure this value has at least 8 characters")
	}
	if req.Password != req.ConfirmPassword {
		problems = append(problems, "Passwords do not match")
	}
	if strings.TrimSpace(req.FullName) == "" {
		problems = append(problems, "full_name: field required")
	}
	if len(problems) > 0 {
		writeDetailList(w, http.StatusBadRequest, problems...)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.accountByEmail(req.Email) != nil {
		writeDetail(w, http.StatusConflict, "Email already registered")
		return
	}

	role := req.Role
	if !role.Valid() {
		role = tokenstore.RoleUser
	}
	acc := b.addAccount(tokenstore.User{
		Email:    req.Email,
		FullName: req.FullName,
		Phone:    req.Phone,
		Role:     role,
	}, req.Password)
	acc.emailCode, _ = cryptox.GenerateDigits(6)

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "Registration successful. Check your email for the verification code.",
	})
}

func (b *Backend) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	acc := b.accountByEmail(req.Email)
	if acc == nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	if acc.verified {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Email already verified"})
		return
	}
	if acc.emailCode == "" || acc.emailCode != req.Code {
		writeDetail(w, http.StatusBadRequest, "Invalid verification code")
		return
	}

	acc.verified = true
	acc.emailCode = ""
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully"})
}

func (b *Backend) resendVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	acc := b.accountByEmail(req.Email)
	if acc == nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	if acc.verified {
		writeDetail(w, http.StatusBadRequest, "Email already verified")
		return
	}

	acc.emailCode, _ = cryptox.GenerateDigits(6)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Verification code sent"})
}

func (b *Backend) refreshTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	fp := cryptox.FingerprintToken(req.RefreshToken)
	id, ok := b.refresh[fp]
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	delete(b.refresh, fp)
	access, refresh := b.issueTokens(id)
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
	})
}

func (b *Backend) me(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, ok := b.accounts[userID(r)]
	if !ok {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, acc.user)
}

func (b *Backend) logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.refresh, cryptox.FingerprintToken(req.RefreshToken))
	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	delete(b.access, cryptox.FingerprintToken(token))

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (b *Backend) totpSetup(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acc := b.accounts[userID(r)]
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      TOTPIssuer,
		AccountName: acc.user.Email,
	})
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Could not generate TOTP secret")
		return
	}
	acc.pendingTOTP = key.Secret()

	qr := key.URL()
	if b.bareTOTP {
		qr = b.URL + "/auth/totp/qr.png"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"qr_code_url": qr,
		"secret":      key.Secret(),
	})
}

func (b *Backend) totpVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	acc := b.accounts[userID(r)]
	if acc.pendingTOTP == "" {
		writeDetail(w, http.StatusBadRequest, "TOTP setup has not been started")
		return
	}
	if !totp.Validate(req.Code, acc.pendingTOTP) {
		writeDetail(w, http.StatusUnauthorized, "Invalid TOTP code")
		return
	}

	acc.totpSecret = acc.pendingTOTP
	acc.pendingTOTP = ""
	acc.user.TOTPEnabled = true

	access, refresh := b.issueTokens(acc.user.ID, "pwd", "otp")
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
	})
}

// writeSession issues a token pair and writes the login success body.
// Callers hold b.mu.
func (b *Backend) writeSession(w http.ResponseWriter, acc *account, amr ...string) {
	access, refresh := b.issueTokens(acc.user.ID, amr...)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
		"user":          acc.user,
	})
}

func (b *Backend) newChallenge(id int64, channel, code string) string {
	temp := "tmp_" + cryptox.MustGenerateToken(cryptox.TokenSize128)
	b.challenges[temp] = &challenge{userID: id, channel: channel, code: code}
	return temp
}

func (b *Backend) accountByEmail(email string) *account {
	id, ok := b.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil
	}
	return b.accounts[id]
}

func (b *Backend) addAccount(u tokenstore.User, password string) *account {
	b.nextUserID++
	u.ID = b.nextUserID
	acc := &account{user: u, password: password}
	b.accounts[u.ID] = acc
	b.byEmail[strings.ToLower(u.Email)] = u.ID
	return acc
}
