// Package testbackend is an in-process fake of the IOTRAC HTTP API. It
// implements the auth lifecycle (login, second factor, TOTP, refresh,
// registration) and the device endpoints closely enough to drive the
// client packages end to end in tests.
package testbackend

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/aussiebroadwan/iotrac/pkg/cryptox"
	"github.com/aussiebroadwan/iotrac/pkg/iotrac"
	"github.com/aussiebroadwan/iotrac/pkg/slogx"
	"github.com/aussiebroadwan/iotrac/pkg/tokenstore"
)

type account struct {
	user        tokenstore.User
	password    string
	verified    bool
	emailCode   string
	totpSecret  string
	pendingTOTP string
}

type challenge struct {
	userID  int64
	channel string
	code    string
}

type failure struct {
	status int
	detail string
}

// Backend holds all fake server state. The zero value is not usable; use
// New or Start.
type Backend struct {
	// URL is set by Start.
	URL string

	logger      *slog.Logger
	now         func() time.Time
	resendLimit RateLimitConfig
	accessTTL   time.Duration
	signer      signer
	router      *mux.Router

	mu           sync.Mutex
	nextUserID   int64
	nextDeviceID int64
	nextLogID    int64
	accounts     map[int64]*account
	byEmail      map[string]int64
	access       map[string]int64
	refresh      map[string]int64
	challenges   map[string]*challenge
	devices      map[int64]*iotrac.Device
	protection   bool
	logs         []iotrac.LogEntry
	hits         map[string]int
	total        int
	failures     map[string][]failure
	assistantUp  bool
	bareTOTP     bool
}

type Option func(*Backend)

func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithAccessTTL sets the exp claim of issued access tokens relative to
// issue time.
func WithAccessTTL(ttl time.Duration) Option {
	return func(b *Backend) { b.accessTTL = ttl }
}

// WithResendLimit overrides DefaultResendLimit for the resend endpoints.
func WithResendLimit(c RateLimitConfig) Option {
	return func(b *Backend) { b.resendLimit = c }
}

func New(opts ...Option) *Backend {
	b := &Backend{
		logger:      slogx.Discard(),
		now:         time.Now,
		resendLimit: DefaultResendLimit,
		accessTTL:   DefaultAccessTTL,
		signer:      newSigner(),
		accounts:    make(map[int64]*account),
		byEmail:     make(map[string]int64),
		access:      make(map[string]int64),
		refresh:     make(map[string]int64),
		challenges:  make(map[string]*challenge),
		devices:     make(map[int64]*iotrac.Device),
		hits:        make(map[string]int),
		failures:    make(map[string][]failure),
		protection:  true,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.router = b.routes()
	return b
}

// Start serves a new Backend on a local listener for the lifetime of tb.
func Start(tb testing.TB, opts ...Option) *Backend {
	tb.Helper()

	b := New(opts...)
	srv := httptest.NewServer(b)
	tb.Cleanup(srv.Close)
	b.URL = srv.URL
	return b
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.router.ServeHTTP(w, r)
}

func (b *Backend) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(b.instrument)

	resend := rateLimit(b.resendLimit)

	r.HandleFunc("/auth/login", b.login).Methods(http.MethodPost)
	r.HandleFunc("/auth/2fa/verify", b.verify2FA).Methods(http.MethodPost)
	r.Handle("/auth/2fa/resend", resend(http.HandlerFunc(b.resend2FA))).Methods(http.MethodPost)
	r.HandleFunc("/auth/register", b.register).Methods(http.MethodPost)
	r.HandleFunc("/auth/verify-email", b.verifyEmail).Methods(http.MethodPost)
	r.Handle("/auth/verify-email/resend", resend(http.HandlerFunc(b.resendVerifyEmail))).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", b.refreshTokens).Methods(http.MethodPost)
	r.HandleFunc("/", b.root).Methods(http.MethodGet)
	r.HandleFunc("/ai/query", b.aiQuery).Methods(http.MethodPost)

	authed := r.NewRoute().Subrouter()
	authed.Use(b.requireBearer)
	authed.HandleFunc("/auth/me", b.me).Methods(http.MethodGet)
	authed.HandleFunc("/auth/logout", b.logout).Methods(http.MethodPost)
	authed.HandleFunc("/auth/totp/setup", b.totpSetup).Methods(http.MethodPost)
	authed.HandleFunc("/auth/totp/verify", b.totpVerify).Methods(http.MethodPost)

	authed.HandleFunc("/status", b.status).Methods(http.MethodGet)
	authed.HandleFunc("/toggle_protection", b.toggleProtection).Methods(http.MethodPost)
	authed.HandleFunc("/logs", b.listLogs).Methods(http.MethodGet)
	authed.HandleFunc("/command", b.command).Methods(http.MethodPost)
	authed.HandleFunc("/devices", b.listDevices).Methods(http.MethodGet)
	authed.HandleFunc("/device/register", b.registerDevice).Methods(http.MethodPost)
	authed.HandleFunc("/devices/{id:[0-9]+}", b.getDevice).Methods(http.MethodGet)
	authed.HandleFunc("/devices/{id:[0-9]+}", b.deleteDevice).Methods(http.MethodDelete)
	authed.HandleFunc("/devices/{id:[0-9]+}/protection", b.deviceProtection).Methods(http.MethodGet)
	authed.HandleFunc("/devices/{id:[0-9]+}/protection/toggle", b.toggleDeviceProtection).Methods(http.MethodPost)

	return r
}

// instrument counts hits per "METHOD /path" and serves queued failures.
func (b *Backend) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		b.mu.Lock()
		b.hits[key]++
		b.total++
		var f *failure
		if queued := b.failures[key]; len(queued) > 0 {
			f = &queued[0]
			b.failures[key] = queued[1:]
		}
		b.mu.Unlock()

		b.logger.Debug("fake backend request", "route", key)

		if f != nil {
			writeDetail(w, f.status, f.detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxKey struct{}

func (b *Backend) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		b.mu.Lock()
		id, found := b.access[cryptox.FingerprintToken(token)]
		b.mu.Unlock()
		if !found {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		if err := b.verifyAccess(token); err != nil {
			b.logger.Debug("access token rejected", "error", err)
			writeDetail(w, http.StatusUnauthorized, "Token has expired")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(ctxKey{}).(int64)
	return id
}

// issueTokens mints a signed access token and an opaque refresh token.
// Callers hold b.mu.
func (b *Backend) issueTokens(id int64, amr ...string) (access, refresh string) {
	access = b.signAccess(id, amr...)
	refresh = "rt_" + cryptox.MustGenerateToken(cryptox.TokenSize256)
	b.access[cryptox.FingerprintToken(access)] = id
	b.refresh[cryptox.FingerprintToken(refresh)] = id
	return access, refresh
}
