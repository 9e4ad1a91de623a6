package tokenstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/aussiebroadwan/iotrac/pkg/slogx"
	"github.com/aussiebroadwan/iotrac/pkg/tokenstore"
	"github.com/stretchr/testify/require"
)

func testUser() *tokenstore.User {
	return &tokenstore.User{
		ID:           1,
		Email:        "user@x.com",
		FullName:     "Test User",
		Role:         tokenstore.RoleUser,
		TwoFAEnabled: true,
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := tokenstore.NewMemory()
	want := tokenstore.Credentials{AccessToken: "A", RefreshToken: "R", User: testUser()}
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))

	got, err = s.Load(ctx)
	require.NoError(t, err)
	require.True(t, got.IsZero())

	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Save(ctx, want), tokenstore.ErrClosed)
}

func TestEncodeOmitsAbsentFields(t *testing.T) {
	t.Parallel()

	kv, err := tokenstore.Encode(tokenstore.Credentials{AccessToken: "A"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{tokenstore.KeyAccessToken: "A"}, kv)
}

func TestDecodeCorruptUser(t *testing.T) {
	t.Parallel()

	_, err := tokenstore.Decode(map[string]string{tokenstore.KeyUser: "{not json"})
	require.ErrorIs(t, err, tokenstore.ErrCorrupt)
}

func TestUserLegacyTwoFAField(t *testing.T) {
	t.Parallel()

	var u tokenstore.User
	require.NoError(t, json.Unmarshal([]byte(`{"id":7,"email":"a@b.co","full_name":"A","role":"admin","is_2fa_enabled":true}`), &u))
	require.Equal(t, int64(7), u.ID)
	require.Equal(t, tokenstore.RoleAdmin, u.Role)
	require.True(t, u.TwoFAEnabled)
	require.True(t, u.Role.Valid())
	require.False(t, tokenstore.Role("root").Valid())
}

type brokenStore struct {
	tokenstore.Store
	err error
}

func (b brokenStore) Load(context.Context) (tokenstore.Credentials, error) {
	return tokenstore.Credentials{AccessToken: "stale"}, b.err
}

func TestGuard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unavailable medium reads as absent", func(t *testing.T) {
		s := tokenstore.Guard(brokenStore{err: fmt.Errorf("%w: disk gone", tokenstore.ErrUnavailable)}, slogx.Discard())
		c, err := s.Load(ctx)
		require.NoError(t, err)
		require.True(t, c.IsZero())
	})

	t.Run("corruption still surfaces", func(t *testing.T) {
		s := tokenstore.Guard(brokenStore{err: tokenstore.ErrCorrupt}, slogx.Discard())
		_, err := s.Load(ctx)
		require.ErrorIs(t, err, tokenstore.ErrCorrupt)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		boom := errors.New("boom")
		s := tokenstore.Guard(brokenStore{err: boom}, slogx.Discard())
		_, err := s.Load(ctx)
		require.ErrorIs(t, err, boom)
	})
}
