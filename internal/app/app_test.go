package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/iotrac/internal/testbackend"
	"github.com/aussiebroadwan/iotrac/pkg/session"
	"github.com/aussiebroadwan/iotrac/pkg/slogx"
)

func testConfig(t *testing.T, url, driver string) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		APIURL:         url,
		Timeout:        5 * time.Second,
		Output:         "table",
		StoreDriver:    driver,
		StorePath:      filepath.Join(dir, "credentials"),
		Seal:           SealKeyfile,
		SealKeyFile:    filepath.Join(dir, "seal.key"),
		ResendInterval: time.Second,
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestApplicationRestoresLoginAcrossRuns(t *testing.T) {
	backend := testbackend.Start(t)
	backend.AddUser("op@example.com", "Sup3r$ecret")
	ctx := context.Background()

	for _, driver := range []string{StoreFile, StoreSQLite} {
		t.Run(driver, func(t *testing.T) {
			cfg := testConfig(t, backend.URL, driver)

			first, err := New(ctx, cfg, WithLogger(slogx.Discard()))
			require.NoError(t, err)
			_, err = first.Session().Login(ctx, "op@example.com", "Sup3r$ecret")
			require.NoError(t, err)
			require.NoError(t, first.Close())

			second, err := New(ctx, cfg, WithLogger(slogx.Discard()))
			require.NoError(t, err)
			defer second.Close()

			snap := second.Session().Snapshot()
			require.Equal(t, session.Authenticated, snap.State)
			require.Equal(t, "op@example.com", snap.User.Email)

			_, err = second.Service().Devices(ctx)
			require.NoError(t, err)
		})
	}
}

func TestApplicationMemoryStore(t *testing.T) {
	backend := testbackend.Start(t)
	cfg := testConfig(t, backend.URL, StoreMemory)

	a, err := New(context.Background(), cfg, WithLogger(slogx.Discard()))
	require.NoError(t, err)
	defer a.Close()

	snap := a.Session().Snapshot()
	require.False(t, snap.IsLoading)
	require.Equal(t, session.Anonymous, snap.State)
}
