package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/mfme-labs/kapsel/internal/core/domain"
)

func TestConfigStoreStartsEmpty(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	cfg := store.Config()
	assert.Empty(t, cfg.DataDir)
	assert.Zero(t, cfg.MaxPayloadBytes)
}

func TestConfigStoreUpdatePersists(t *testing.T) {
	dir := t.TempDir()

	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Update(func(c *Config) {
		c.DataDir = "/var/kapsel"
		c.MaxPayloadBytes = 1024
		c.Upload.RemoteRoot = "backups"
		c.Upload.ReconcileInterval = "12h"
		c.Google.ClientID = "cid"
	}))

	// A fresh store over the same directory sees the saved values.
	reloaded, err := NewConfigStore(dir)
	require.NoError(t, err)
	cfg := reloaded.Config()
	assert.Equal(t, "/var/kapsel", cfg.DataDir)
	assert.Equal(t, int64(1024), cfg.MaxPayloadBytes)
	assert.Equal(t, "backups", cfg.Upload.RemoteRoot)
	assert.Equal(t, "cid", cfg.Google.ClientID)
	assert.Equal(t, 12*time.Hour, cfg.ReconcileInterval(time.Hour))
}

func TestConfigStoreFilePermissions(t *testing.T) {
	dir := t.TempDir()

	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Update(func(c *Config) {
		c.Google.ClientSecret = "hush"
	}))

	info, err := os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfigStoreRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"),
		[]byte("not = [valid toml"), 0600))

	_, err := NewConfigStore(dir)
	assert.Error(t, err)
}

func TestDurationAccessorsFallBack(t *testing.T) {
	var cfg Config
	assert.Equal(t, 24*time.Hour, cfg.ReconcileInterval(24*time.Hour))
	assert.Equal(t, 30*time.Second, cfg.BackoffBase(30*time.Second))

	cfg.Upload.BackoffBase = "garbage"
	assert.Equal(t, 30*time.Second, cfg.BackoffBase(30*time.Second))

	cfg.Upload.BackoffBase = "-5s"
	assert.Equal(t, 30*time.Second, cfg.BackoffBase(30*time.Second))

	cfg.Upload.BackoffMax = "90m"
	assert.Equal(t, 90*time.Minute, cfg.BackoffMax(time.Hour))
}

func TestTokenStoreRoundtrip(t *testing.T) {
	store, err := NewTokenStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load()
	assert.ErrorIs(t, err, domain.ErrNoAccount)

	token := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(token))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "access", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)
	assert.True(t, got.Expiry.Equal(token.Expiry))

	require.NoError(t, store.Clear())
	_, err = store.Load()
	assert.ErrorIs(t, err, domain.ErrNoAccount)

	// Clearing twice is harmless.
	assert.NoError(t, store.Clear())
}

func TestPersistingTokenSourceSavesRotatedToken(t *testing.T) {
	store, err := NewTokenStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save(&oauth2.Token{AccessToken: "stale"}))

	rotated := &oauth2.Token{AccessToken: "fresh"}
	source := &persistingTokenSource{
		store: store,
		inner: oauth2.StaticTokenSource(rotated),
		last:  &oauth2.Token{AccessToken: "stale"},
	}

	got, err := source.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.AccessToken)

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "fresh", persisted.AccessToken)
}
