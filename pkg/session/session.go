package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/iotrac/pkg/apiclient"
	"github.com/aussiebroadwan/iotrac/pkg/slogx"
	"github.com/aussiebroadwan/iotrac/pkg/tokenstore"
	"golang.org/x/time/rate"
)

type State int

const (
	Anonymous State = iota
	LoggingIn
	AwaitingSecondFactor
	AwaitingTOTPSetup
	Authenticated
	RefreshingToken
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case LoggingIn:
		return "logging_in"
	case AwaitingSecondFactor:
		return "awaiting_second_factor"
	case AwaitingTOTPSetup:
		return "awaiting_totp_setup"
	case Authenticated:
		return "authenticated"
	case RefreshingToken:
		return "refreshing_token"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Channel string

const (
	ChannelEmailCode Channel = "email-code"
	ChannelTOTP      Channel = "totp"
)

// PendingChallenge is the state between a password check and the second
// factor. It is never persisted.
type PendingChallenge struct {
	TempToken string
	Channel   Channel
}

// Snapshot is a copy of the session at one instant.
type Snapshot struct {
	State           State
	IsAuthenticated bool
	User            *tokenstore.User
	AccessToken     string
	RefreshToken    string

	// IsLoading is true until LoadPersisted has run.
	IsLoading bool

	// Busy is true while Login, Verify2FA, VerifyTOTP or Register runs.
	Busy bool

	Pending *PendingChallenge
}

// Client is the part of apiclient.Client the session uses.
type Client interface {
	DoPublic(ctx context.Context, method, path string, body, out any) error
	Do(ctx context.Context, method, path string, body, out any) error
	Get(ctx context.Context, path string, out any) error
	DoWithToken(ctx context.Context, token, method, path string, body, out any) error
	SetToken(token string)
	SetRefresher(r apiclient.Refresher)
}

const (
	DefaultResendInterval = 30 * time.Second
	logoutTimeout         = 5 * time.Second
)

type Session struct {
	client      Client
	store       tokenstore.Store
	logger      *slog.Logger
	now         func() time.Time
	requireTOTP bool
	totpIssuer  string

	resend2FA   *rate.Limiter
	resendEmail *rate.Limiter

	busy      atomic.Bool
	refreshMu sync.Mutex

	mu           sync.Mutex
	state        State
	user         *tokenstore.User
	accessToken  string
	refreshToken string
	loading      bool
	pending      *PendingChallenge

	notifyMu  sync.Mutex
	observers map[int]func(Snapshot)
	nextObs   int
}

type options struct {
	logger      *slog.Logger
	now         func() time.Time
	resendEvery time.Duration
	resendBurst int
	requireTOTP bool
	totpIssuer  string
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithClock overrides the time source used by the resend throttles.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithResendLimit allows burst resend requests per interval for each of the
// 2FA and email-verification resend operations.
func WithResendLimit(interval time.Duration, burst int) Option {
	return func(o *options) {
		o.resendEvery = interval
		o.resendBurst = burst
	}
}

// WithRequireTOTP also sends logins that needed no second factor to
// AwaitingTOTPSetup when the account has no TOTP device enrolled yet. Off by
// default. Verify2FA lands there for such accounts either way.
func WithRequireTOTP(require bool) Option { return func(o *options) { o.requireTOTP = require } }

// WithTOTPIssuer names the issuer used when the backend sends a bare secret
// and the provisioning URI has to be built locally.
func WithTOTPIssuer(issuer string) Option { return func(o *options) { o.totpIssuer = issuer } }

// New returns an empty session (Anonymous, IsLoading) and registers it as
// client's refresher. Call LoadPersisted to restore a saved login.
func New(client Client, store tokenstore.Store, opts ...Option) *Session {
	o := options{
		now:         time.Now,
		resendEvery: DefaultResendInterval,
		resendBurst: 1,
		totpIssuer:  "IOTRAC",
	}
	for _, opt := range opts {
		opt(&o)
	}

	limit := rate.Inf
	if o.resendEvery > 0 {
		limit = rate.Every(o.resendEvery)
	}

	s := &Session{
		client:      client,
		store:       store,
		logger:      slogx.OrDefault(o.logger).With("component", "session"),
		now:         o.now,
		requireTOTP: o.requireTOTP,
		totpIssuer:  o.totpIssuer,
		resend2FA:   rate.NewLimiter(limit, o.resendBurst),
		resendEmail: rate.NewLimiter(limit, o.resendBurst),
		state:       Anonymous,
		loading:     true,
		observers:   make(map[int]func(Snapshot)),
	}

	client.SetRefresher(s.refreshForClient)
	return s
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:           s.state,
		IsAuthenticated: s.accessToken != "" && s.user != nil,
		AccessToken:     s.accessToken,
		RefreshToken:    s.refreshToken,
		IsLoading:       s.loading,
		Busy:            s.busy.Load(),
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	if s.pending != nil {
		p := *s.pending
		snap.Pending = &p
	}
	return snap
}

// Subscribe registers fn to receive a Snapshot after every committed change,
// in commit order. fn runs synchronously and must not call back into
// operations that change the session.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.notifyMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.notifyMu.Lock()
			delete(s.observers, id)
			s.notifyMu.Unlock()
		})
	}
}

// update applies fn under the state lock and then notifies observers. The
// notify lock is taken before the state lock is released so observers see
// changes in the order they were made.
func (s *Session) update(fn func()) {
	s.mu.Lock()
	fn()
	snap := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()

	defer s.notifyMu.Unlock()
	for _, obs := range s.observers {
		obs(snap)
	}
}

// operation scopes ctx to one session operation. The client's transport
// logs each request it sends under that operation.
func (s *Session) operation(ctx context.Context, op string) context.Context {
	return slogx.WithOperation(slogx.WithContext(ctx, s.logger), op)
}

func (s *Session) log(ctx context.Context) *slog.Logger {
	return slogx.FromContextOr(ctx, s.logger)
}

func (s *Session) setState(state State) {
	s.update(func() { s.state = state })
}

func (s *Session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// acquire sets the busy flag; false means another operation holds it.
func (s *Session) acquire() bool {
	if !s.busy.CompareAndSwap(false, true) {
		return false
	}
	s.update(func() {})
	return true
}

func (s *Session) release() {
	s.busy.Store(false)
	s.update(func() {})
}

// commit persists the credentials and only then installs them in memory and
// on the client.
func (s *Session) commit(ctx context.Context, access, refresh string, user *tokenstore.User, state State) error {
	creds := tokenstore.Credentials{AccessToken: access, RefreshToken: refresh, User: user}
	if err := s.store.Save(ctx, creds); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}

	u := *user
	s.update(func() {
		s.accessToken = access
		s.refreshToken = refresh
		s.user = &u
		s.pending = nil
		s.state = state
		s.client.SetToken(access)
	})
	return nil
}

// landingState is where a completed login ends up. An account without an
// authenticator is sent to enrolment after an emailed code, and after any
// login when requireTOTP is set.
func (s *Session) landingState(user *tokenstore.User, secondFactor bool) State {
	if !user.TOTPEnabled && (secondFactor || s.requireTOTP) {
		return AwaitingTOTPSetup
	}
	return Authenticated
}

// LoadPersisted restores the session from the store. The session is
// authenticated afterwards iff both an access token and a user were saved.
// IsLoading is false afterwards whatever the outcome.
func (s *Session) LoadPersisted(ctx context.Context) error {
	creds, err := s.store.Load(ctx)
	if err != nil {
		s.update(func() { s.loading = false })
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	s.update(func() {
		s.loading = false
		if creds.AccessToken == "" || creds.User == nil {
			return
		}
		s.accessToken = creds.AccessToken
		s.refreshToken = creds.RefreshToken
		s.user = creds.User
		s.state = Authenticated
		s.client.SetToken(creds.AccessToken)
	})
	return nil
}

// ApplyAuthTokens installs a token pair and user obtained outside the
// session's own flows.
func (s *Session) ApplyAuthTokens(ctx context.Context, access, refresh string, user tokenstore.User) error {
	if access == "" {
		return errors.New("session: access token is required")
	}
	return s.commit(ctx, access, refresh, &user, Authenticated)
}

// ClearAuth drops the credentials from the store and memory without any
// network call. Memory is cleared even if the store fails.
func (s *Session) ClearAuth(ctx context.Context) error {
	err := s.store.Clear(ctx)
	if err != nil {
		s.log(ctx).Warn("failed to clear token store", slog.String("error", err.Error()))
		err = fmt.Errorf("failed to clear credentials: %w", err)
	}

	s.update(func() {
		s.accessToken = ""
		s.refreshToken = ""
		s.user = nil
		s.pending = nil
		s.state = Anonymous
		s.loading = false
		s.client.SetToken("")
	})
	return err
}

// Logout tells the backend to revoke the refresh token, ignoring any
// failure, then clears local credentials.
func (s *Session) Logout(ctx context.Context) error {
	ctx = s.operation(ctx, "logout")
	snap := s.Snapshot()
	if snap.AccessToken != "" && snap.RefreshToken != "" {
		lctx, cancel := context.WithTimeout(ctx, logoutTimeout)
		err := s.client.DoWithToken(lctx, snap.AccessToken, http.MethodPost, "/auth/logout",
			map[string]string{"refresh_token": snap.RefreshToken}, nil)
		cancel()
		if err != nil {
			s.log(ctx).Debug("server-side logout failed", slog.String("error", err.Error()))
		}
	}
	return s.ClearAuth(ctx)
}
