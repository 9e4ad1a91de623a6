package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/iotrac/pkg/cryptox"
	"github.com/aussiebroadwan/iotrac/pkg/tokenstore"
	"github.com/aussiebroadwan/iotrac/pkg/tokenstore/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, sealer cryptox.Sealer) (*sqlite.Store, string) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "tokens.db")
	s, err := sqlite.NewStore(dsn, sealer)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dsn
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, _ := newTestStore(t, nil)

	want := tokenstore.Credentials{
		AccessToken:  "A",
		RefreshToken: "R",
		User:         &tokenstore.User{ID: 1, Email: "user@x.com", FullName: "Test", Role: tokenstore.RoleUser},
	}
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)

	// Saving a record without a refresh token removes the old one.
	require.NoError(t, s.Save(ctx, tokenstore.Credentials{AccessToken: "B"}))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, tokenstore.Credentials{AccessToken: "B"}, got)
}

func TestClearIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, _ := newTestStore(t, nil)
	require.NoError(t, s.Save(ctx, tokenstore.Credentials{AccessToken: "A", RefreshToken: "R"}))
	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func TestReopenAppliesMigrationsOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sealer, err := cryptox.NewKeyfileSealer([]byte("k"))
	require.NoError(t, err)

	s, dsn := newTestStore(t, sealer)
	require.NoError(t, s.Save(ctx, tokenstore.Credentials{AccessToken: "A"}))
	require.NoError(t, s.Close())

	reopened, err := sqlite.NewStore(dsn, sealer)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "A", got.AccessToken)

	wrong, err := cryptox.NewKeyfileSealer([]byte("other"))
	require.NoError(t, err)
	mismatched, err := sqlite.NewStore(dsn, wrong)
	require.NoError(t, err)
	defer mismatched.Close()

	_, err = mismatched.Load(ctx)
	require.ErrorIs(t, err, tokenstore.ErrCorrupt)
}
