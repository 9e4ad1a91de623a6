package session_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/iotrac/internal/testbackend"
	"github.com/aussiebroadwan/iotrac/pkg/apiclient"
	"github.com/aussiebroadwan/iotrac/pkg/session"
	"github.com/aussiebroadwan/iotrac/pkg/slogx"
	"github.com/aussiebroadwan/iotrac/pkg/tokenstore"
	"github.com/aussiebroadwan/iotrac/pkg/validate"
)

const (
	testEmail    = "ana@example.com"
	testPassword = "Sup3r$ecret"
)

type harness struct {
	sess    *session.Session
	backend *testbackend.Backend
	store   *tokenstore.Memory
	client  *apiclient.Client
}

func newHarness(t *testing.T, opts ...session.Option) *harness {
	t.Helper()

	backend := testbackend.Start(t)
	client := apiclient.New(backend.URL, apiclient.WithLogger(slogx.Discard()))
	store := tokenstore.NewMemory()
	sess := session.New(client, store, append([]session.Option{session.WithLogger(slogx.Discard())}, opts...)...)
	require.NoError(t, sess.LoadPersisted(context.Background()))

	return &harness{sess: sess, backend: backend, store: store, client: client}
}

func (h *harness) login(t *testing.T) tokenstore.User {
	t.Helper()
	h.backend.AddUser(testEmail, testPassword)
	res, err := h.sess.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	ok, isAuth := res.(session.LoginAuthenticated)
	require.True(t, isAuth)
	return ok.User
}

func requireFailure(t *testing.T, err error, kind session.FailureKind) *session.Failure {
	t.Helper()
	var f *session.Failure
	require.ErrorAs(t, err, &f)
	require.Equal(t, kind, f.Kind, "message: %s", f.Message)
	return f
}

func TestLogoutIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.sess.Logout(ctx))
	require.NoError(t, h.sess.Logout(ctx))

	snap := h.sess.Snapshot()
	require.Equal(t, session.Anonymous, snap.State)
	require.False(t, snap.IsAuthenticated)
	require.Zero(t, h.backend.TotalHits())

	creds, err := h.store.Load(ctx)
	require.NoError(t, err)
	require.True(t, creds.IsZero())
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)
	refresh := h.sess.Snapshot().RefreshToken

	require.NoError(t, h.sess.Logout(ctx))
	require.Equal(t, 1, h.backend.Hits("POST /auth/logout"))
	require.Empty(t, h.client.Token())

	// The revoked token can no longer be exchanged.
	require.NoError(t, h.sess.ApplyAuthTokens(ctx, "stale", refresh, tokenstore.User{ID: 1, Email: testEmail}))
	require.False(t, h.sess.RefreshAuthToken(ctx))
	require.Equal(t, session.Anonymous, h.sess.Snapshot().State)
}

func TestLogoutSucceedsWhenBackendUnreachable(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)
	h.backend.FailNext("POST /auth/logout", 500, "boom")

	require.NoError(t, h.sess.Logout(ctx))
	require.False(t, h.sess.Snapshot().IsAuthenticated)
}

func TestLoginPersistsCredentials(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	user := h.login(t)
	require.Equal(t, testEmail, user.Email)

	snap := h.sess.Snapshot()
	require.Equal(t, session.Authenticated, snap.State)
	require.True(t, snap.IsAuthenticated)
	require.NotEmpty(t, snap.AccessToken)
	require.NotEmpty(t, snap.RefreshToken)
	require.Equal(t, snap.AccessToken, h.client.Token())

	creds, err := h.store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, snap.AccessToken, creds.AccessToken)
	require.Equal(t, snap.RefreshToken, creds.RefreshToken)
	require.Equal(t, user, *creds.User)
}

func TestLoginEmailSecondFactor(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.backend.AddUser(testEmail, testPassword, testbackend.WithEmail2FA())

	res, err := h.sess.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	challenge, ok := res.(session.LoginSecondFactor)
	require.True(t, ok)
	require.Equal(t, session.ChannelEmailCode, challenge.Channel)
	require.NotEmpty(t, challenge.TempToken)

	snap := h.sess.Snapshot()
	require.Equal(t, session.AwaitingSecondFactor, snap.State)
	require.False(t, snap.IsAuthenticated)
	require.Equal(t, challenge.TempToken, snap.Pending.TempToken)

	creds, err := h.store.Load(ctx)
	require.NoError(t, err)
	require.True(t, creds.IsZero(), "nothing is persisted before the second factor")

	code := h.backend.ChallengeCode(challenge.TempToken)
	wrong := []byte(code)
	wrong[5] = '0' + (wrong[5]-'0'+1)%10

	_, err = h.sess.Verify2FA(ctx, string(wrong), "")
	f := requireFailure(t, err, session.FailRejected)
	require.Equal(t, "Invalid 2FA code", f.Message)
	require.Equal(t, session.AwaitingSecondFactor, h.sess.Snapshot().State)

	done, err := h.sess.Verify2FA(ctx, code, "")
	require.NoError(t, err)
	require.Equal(t, testEmail, done.User.Email)
	require.True(t, done.NeedsTOTPSetup, "no authenticator enrolled yet")

	snap = h.sess.Snapshot()
	require.Equal(t, session.AwaitingTOTPSetup, snap.State)
	require.True(t, snap.IsAuthenticated)
	require.Nil(t, snap.Pending)

	creds, err = h.store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, snap.AccessToken, creds.AccessToken)
}

func TestLoginTOTPSecondFactor(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.backend.AddUser(testEmail, testPassword, testbackend.WithTOTP())

	res, err := h.sess.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	challenge, ok := res.(session.LoginSecondFactor)
	require.True(t, ok)
	require.Equal(t, session.ChannelTOTP, challenge.Channel)

	done, err := h.sess.Verify2FA(ctx, h.backend.TOTPCode(testEmail), challenge.TempToken)
	require.NoError(t, err)
	require.True(t, done.User.TOTPEnabled)
	require.Equal(t, session.Authenticated, h.sess.Snapshot().State)
}

func TestLoginRejected(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.AddUser(testEmail, testPassword)

	_, err := h.sess.Login(context.Background(), testEmail, "Wrong$pass1")
	f := requireFailure(t, err, session.FailRejected)
	require.Equal(t, "Invalid email or password", f.Message)
	require.True(t, apiclient.IsAuth(err))

	snap := h.sess.Snapshot()
	require.Equal(t, session.Anonymous, snap.State)
	require.False(t, snap.Busy)
}

func TestLoginUnverifiedEmail(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.AddUser(testEmail, testPassword, testbackend.Unverified())

	_, err := h.sess.Login(context.Background(), testEmail, testPassword)
	f := requireFailure(t, err, session.FailRejected)
	require.Equal(t, "Email not verified", f.Message)
}

func TestLoginLocalValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	for _, tc := range []struct {
		name, email, password string
	}{
		{"empty email", "", testPassword},
		{"bad email", "not-an-email", testPassword},
		{"empty password", testEmail, ""},
		{"short password", testEmail, "short"},
	} {
		_, err := h.sess.Login(ctx, tc.email, tc.password)
		requireFailure(t, err, session.FailLocal)
	}
	require.Zero(t, h.backend.TotalHits())
}

func TestLoginConnectionFailure(t *testing.T) {
	t.Parallel()

	client := apiclient.New("http://127.0.0.1:1", apiclient.WithLogger(slogx.Discard()))
	sess := session.New(client, tokenstore.NewMemory(), session.WithLogger(slogx.Discard()))

	_, err := sess.Login(context.Background(), testEmail, testPassword)
	f := requireFailure(t, err, session.FailConnection)
	require.True(t, apiclient.IsTransient(f))
	require.Equal(t, session.Anonymous, sess.Snapshot().State)
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.Save(ctx, tokenstore.Credentials{AccessToken: "A"}))

	require.False(t, h.sess.RefreshAuthToken(ctx))
	require.Equal(t, session.Anonymous, h.sess.Snapshot().State)
	require.Zero(t, h.backend.TotalHits())

	creds, err := h.store.Load(ctx)
	require.NoError(t, err)
	require.True(t, creds.IsZero())
}

func TestRefreshRotatesTokens(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	user := h.login(t)
	before := h.sess.Snapshot()

	require.True(t, h.sess.RefreshAuthToken(ctx))

	after := h.sess.Snapshot()
	require.Equal(t, session.Authenticated, after.State)
	require.NotEqual(t, before.AccessToken, after.AccessToken)
	require.NotEqual(t, before.RefreshToken, after.RefreshToken)
	require.Equal(t, user, *after.User)
	require.Equal(t, after.AccessToken, h.client.Token())

	creds, err := h.store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, after.AccessToken, creds.AccessToken)
	require.Equal(t, after.RefreshToken, creds.RefreshToken)
}

func TestRefreshRejectedSignsOut(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)
	h.backend.RevokeRefreshTokens()

	require.False(t, h.sess.RefreshAuthToken(ctx))
	require.Equal(t, session.Anonymous, h.sess.Snapshot().State)

	creds, err := h.store.Load(ctx)
	require.NoError(t, err)
	require.True(t, creds.IsZero())
}

func TestExpiredAccessTokenIsRefreshedTransparently(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	user := h.login(t)
	old := h.sess.Snapshot().AccessToken
	h.backend.ExpireAccessTokens()

	me, err := h.sess.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, user.ID, me.ID)
	require.Equal(t, 1, h.backend.Hits("POST /auth/refresh"))
	require.Equal(t, 2, h.backend.Hits("GET /auth/me"))

	snap := h.sess.Snapshot()
	require.NotEqual(t, old, snap.AccessToken)

	creds, err := h.store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, snap.AccessToken, creds.AccessToken)
}

func TestConcurrentExpiredRequestsShareOneRefresh(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)
	h.backend.ExpireAccessTokens()

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out map[string]any
			errs <- h.client.Get(ctx, "/status", &out)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, h.backend.Hits("POST /auth/refresh"))
}

func TestRegisterWeakPassword(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.sess.Register(context.Background(), session.RegisterInput{
		Email:    testEmail,
		Password: "weak",
		FullName: "Ana",
	})
	f := requireFailure(t, err, session.FailLocal)
	require.Equal(t, validate.ErrWeakPassword.Error(), f.Message)
	require.Contains(t, f.Fields, "password")
	require.Zero(t, h.backend.TotalHits())
}

func TestRegisterMismatchedPasswords(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.sess.Register(context.Background(), session.RegisterInput{
		Email:           testEmail,
		Password:        testPassword,
		ConfirmPassword: testPassword + "x",
		FullName:        "Ana",
	})
	f := requireFailure(t, err, session.FailLocal)
	require.Equal(t, "passwords do not match", f.Message)
	require.Zero(t, h.backend.TotalHits())
}

func TestRegisterVerifyAndLogin(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	msg, err := h.sess.Register(ctx, session.RegisterInput{
		Email:    testEmail,
		Password: testPassword,
		FullName: "Ana Souza",
		Phone:    "+55 11 99999-0000",
	})
	require.NoError(t, err)
	require.NotEmpty(t, msg)
	require.Equal(t, session.Anonymous, h.sess.Snapshot().State)

	_, err = h.sess.Login(ctx, testEmail, testPassword)
	requireFailure(t, err, session.FailRejected)

	_, err = h.sess.VerifyEmail(ctx, testEmail, h.backend.EmailCode(testEmail))
	require.NoError(t, err)

	res, err := h.sess.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	done, ok := res.(session.LoginAuthenticated)
	require.True(t, ok)
	require.Equal(t, "Ana Souza", done.User.FullName)
	require.Equal(t, tokenstore.RoleUser, done.User.Role)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.AddUser(testEmail, testPassword)

	_, err := h.sess.Register(context.Background(), session.RegisterInput{
		Email:    testEmail,
		Password: testPassword,
		FullName: "Ana",
	})
	f := requireFailure(t, err, session.FailRejected)
	require.Equal(t, "Email already registered", f.Message)
	require.True(t, apiclient.IsConflict(err))
}

func TestResendIsThrottled(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	h := newHarness(t, session.WithClock(clock))
	ctx := context.Background()
	h.backend.AddUser(testEmail, testPassword, testbackend.WithEmail2FA())

	res, err := h.sess.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	temp := res.(session.LoginSecondFactor).TempToken

	_, err = h.sess.Resend2FA(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, h.backend.ChallengeCode(temp))

	_, err = h.sess.Resend2FA(ctx, "")
	f := requireFailure(t, err, session.FailLocal)
	require.ErrorIs(t, f, session.ErrResendTooSoon)
	require.Equal(t, 1, h.backend.Hits("POST /auth/2fa/resend"))

	advance(session.DefaultResendInterval)
	_, err = h.sess.Resend2FA(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 2, h.backend.Hits("POST /auth/2fa/resend"))

	_, err = h.sess.Verify2FA(ctx, h.backend.ChallengeCode(temp), "")
	require.NoError(t, err)
}

func TestCancelChallenge(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.AddUser(testEmail, testPassword, testbackend.WithEmail2FA())

	_, err := h.sess.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	h.sess.CancelChallenge()
	snap := h.sess.Snapshot()
	require.Equal(t, session.Anonymous, snap.State)
	require.Nil(t, snap.Pending)
}

func TestBusyGuard(t *testing.T) {
	t.Parallel()

	client := newBlockingClient()
	sess := session.New(client, tokenstore.NewMemory(), session.WithLogger(slogx.Discard()))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := sess.Login(ctx, testEmail, testPassword)
		done <- err
	}()
	<-client.entered

	require.True(t, sess.Snapshot().Busy)
	require.Equal(t, session.LoggingIn, sess.Snapshot().State)

	_, err := sess.Login(ctx, testEmail, testPassword)
	f := requireFailure(t, err, session.FailBusy)
	require.ErrorIs(t, f, session.ErrBusy)

	_, err = sess.Register(ctx, session.RegisterInput{Email: testEmail, Password: testPassword, FullName: "Ana"})
	requireFailure(t, err, session.FailBusy)

	close(client.release)
	requireFailure(t, <-done, session.FailConnection)
	require.False(t, sess.Snapshot().Busy)
	require.Equal(t, 1, client.calls())
}

func TestObserversSeeCommitOrder(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.AddUser(testEmail, testPassword)

	var mu sync.Mutex
	var states []session.State
	unsubscribe := h.sess.Subscribe(func(s session.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if len(states) == 0 || states[len(states)-1] != s.State {
			states = append(states, s.State)
		}
	})

	_, err := h.sess.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	mu.Lock()
	require.Equal(t, []session.State{session.Anonymous, session.LoggingIn, session.Authenticated}, states)
	mu.Unlock()

	unsubscribe()
	unsubscribe()
	require.NoError(t, h.sess.ClearAuth(context.Background()))

	mu.Lock()
	require.Len(t, states, 3)
	mu.Unlock()
}

func TestLoadPersisted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	user := &tokenstore.User{ID: 7, Email: testEmail, Role: tokenstore.RoleAdmin}

	t.Run("restores a saved login", func(t *testing.T) {
		store := tokenstore.NewMemory()
		require.NoError(t, store.Save(ctx, tokenstore.Credentials{AccessToken: "A", RefreshToken: "R", User: user}))
		client := apiclient.New("http://127.0.0.1:1")
		sess := session.New(client, store, session.WithLogger(slogx.Discard()))
		require.True(t, sess.Snapshot().IsLoading)

		require.NoError(t, sess.LoadPersisted(ctx))
		snap := sess.Snapshot()
		require.False(t, snap.IsLoading)
		require.Equal(t, session.Authenticated, snap.State)
		require.Equal(t, *user, *snap.User)
		require.Equal(t, "A", client.Token())
	})

	t.Run("token without user stays anonymous", func(t *testing.T) {
		store := tokenstore.NewMemory()
		require.NoError(t, store.Save(ctx, tokenstore.Credentials{AccessToken: "A"}))
		sess := session.New(apiclient.New("http://127.0.0.1:1"), store, session.WithLogger(slogx.Discard()))

		require.NoError(t, sess.LoadPersisted(ctx))
		require.Equal(t, session.Anonymous, sess.Snapshot().State)
		require.False(t, sess.Snapshot().IsAuthenticated)
	})

	t.Run("unavailable store starts signed out", func(t *testing.T) {
		store := tokenstore.Guard(&brokenStore{err: tokenstore.ErrUnavailable}, slogx.Discard())
		sess := session.New(apiclient.New("http://127.0.0.1:1"), store, session.WithLogger(slogx.Discard()))

		require.NoError(t, sess.LoadPersisted(ctx))
		snap := sess.Snapshot()
		require.False(t, snap.IsLoading)
		require.Equal(t, session.Anonymous, snap.State)
	})

	t.Run("corrupt store is reported", func(t *testing.T) {
		store := tokenstore.Guard(&brokenStore{err: tokenstore.ErrCorrupt}, slogx.Discard())
		sess := session.New(apiclient.New("http://127.0.0.1:1"), store, session.WithLogger(slogx.Discard()))

		require.ErrorIs(t, sess.LoadPersisted(ctx), tokenstore.ErrCorrupt)
		require.False(t, sess.Snapshot().IsLoading)
	})
}

func TestClearAuthClearsMemoryWhenStoreFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := &brokenStore{err: tokenstore.ErrUnavailable, saveOK: true}
	client := apiclient.New("http://127.0.0.1:1")
	sess := session.New(client, store, session.WithLogger(slogx.Discard()))
	require.NoError(t, sess.ApplyAuthTokens(ctx, "A", "R", tokenstore.User{ID: 1, Email: testEmail}))

	err := sess.ClearAuth(ctx)
	require.ErrorIs(t, err, tokenstore.ErrUnavailable)

	snap := sess.Snapshot()
	require.Equal(t, session.Anonymous, snap.State)
	require.Empty(t, snap.AccessToken)
	require.Empty(t, client.Token())
}

func TestApplyAuthTokensFailsWhenStoreFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sess := session.New(apiclient.New("http://127.0.0.1:1"), &brokenStore{err: tokenstore.ErrUnavailable},
		session.WithLogger(slogx.Discard()))

	err := sess.ApplyAuthTokens(ctx, "A", "R", tokenstore.User{ID: 1})
	require.ErrorIs(t, err, tokenstore.ErrUnavailable)
	require.False(t, sess.Snapshot().IsAuthenticated, "memory only changes after a successful write")
}

// brokenStore fails Load and Clear with err, and Save too unless saveOK.
type brokenStore struct {
	err    error
	saveOK bool
}

func (b *brokenStore) Save(context.Context, tokenstore.Credentials) error {
	if b.saveOK {
		return nil
	}
	return b.err
}
func (b *brokenStore) Load(context.Context) (tokenstore.Credentials, error) {
	return tokenstore.Credentials{}, b.err
}
func (b *brokenStore) Clear(context.Context) error { return b.err }
func (b *brokenStore) Close() error                { return nil }

// blockingClient parks every public call until release is closed, then
// fails it with a connection error.
type blockingClient struct {
	entered chan struct{}
	release chan struct{}

	mu sync.Mutex
	n  int
}

func newBlockingClient() *blockingClient {
	return &blockingClient{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (c *blockingClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (c *blockingClient) DoPublic(ctx context.Context, method, path string, body, out any) error {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	c.entered <- struct{}{}
	<-c.release
	return &apiclient.Error{Kind: apiclient.KindConnRefused, Err: errors.New("connection refused")}
}

func (c *blockingClient) Do(ctx context.Context, method, path string, body, out any) error {
	return c.DoPublic(ctx, method, path, body, out)
}

func (c *blockingClient) Get(ctx context.Context, path string, out any) error {
	return c.DoPublic(ctx, "GET", path, nil, out)
}

func (c *blockingClient) DoWithToken(ctx context.Context, _, method, path string, body, out any) error {
	return c.DoPublic(ctx, method, path, body, out)
}

func (c *blockingClient) SetToken(string)                  {}
func (c *blockingClient) SetRefresher(apiclient.Refresher) {}

func TestAccessTokenNearExpiryIsRefreshedBeforeUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// Shorter than apiclient.ExpiryLeeway, so every token looks stale.
	backend := testbackend.Start(t, testbackend.WithAccessTTL(10*time.Second))
	backend.AddUser(testEmail, testPassword)
	client := apiclient.New(backend.URL, apiclient.WithLogger(slogx.Discard()))
	sess := session.New(client, tokenstore.NewMemory(), session.WithLogger(slogx.Discard()))
	require.NoError(t, sess.LoadPersisted(ctx))

	_, err := sess.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	old := sess.Snapshot().AccessToken

	exp, ok := apiclient.TokenExpiry(old)
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Second), exp, 5*time.Second)

	_, err = sess.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, backend.Hits("POST /auth/refresh"))
	require.Equal(t, 1, backend.Hits("GET /auth/me"))
	require.NotEqual(t, old, sess.Snapshot().AccessToken)
}

func TestRequestsAreLoggedUnderTheirOperation(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := newHarness(t, session.WithLogger(logger))
	h.login(t)
	require.True(t, h.sess.RefreshAuthToken(context.Background()))

	var login, refresh bool
	for _, line := range strings.Split(buf.String(), "\n") {
		if !strings.Contains(line, "msg=http_request") {
			continue
		}
		login = login || strings.Contains(line, "op=login") && strings.Contains(line, "path=/auth/login")
		refresh = refresh || strings.Contains(line, "op=refresh") && strings.Contains(line, "path=/auth/refresh")
	}
	require.True(t, login, buf.String())
	require.True(t, refresh, buf.String())
}
