package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	viper.Reset()
	cfg = nil
	t.Cleanup(func() {
		viper.Reset()
		cfg = nil
	})
	return home
}

func TestDefaults(t *testing.T) {
	home := setup(t)
	require.NoError(t, Init(""))

	c := Get()
	assert.Equal(t, "https://archive.org", c.Archive.BaseURL)
	assert.Equal(t, 120*time.Second, c.Loan.RenewInterval)
	assert.Equal(t, 30*time.Second, c.Loan.RenewTimeout)
	assert.Equal(t, filepath.Join(home, "Downloads", "archive"), c.Downloads.Path)
	assert.Equal(t, time.Second, c.Downloads.Delay)
	assert.Equal(t, 3, c.Network.RetryAttempts)
	assert.Equal(t, 2.0, c.Network.RetryMultiplier)
	assert.Equal(t, "info", c.Log.Level)
	assert.False(t, c.PDF.Enabled)

	assert.Equal(t, filepath.Join(home, ".config", "archivedl", "archivedl.db"), GetDBPath())
}

func TestConfigFileAndEnv(t *testing.T) {
	home := setup(t)
	path := filepath.Join(home, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
archive:
  email: reader@example.org
loan:
  renew_interval: 90s
downloads:
  scale: 2
  path: /srv/books
`), 0644))
	t.Setenv("ARCHIVEDL_PDF_ENABLED", "true")

	require.NoError(t, Init(path))
	c := Get()
	assert.Equal(t, "reader@example.org", c.Archive.Email)
	assert.Equal(t, 90*time.Second, c.Loan.RenewInterval)
	assert.Equal(t, 2, c.Downloads.Scale)
	assert.Equal(t, "/srv/books", c.Downloads.Path)
	assert.True(t, c.PDF.Enabled)
}

func TestSet(t *testing.T) {
	home := setup(t)
	require.NoError(t, Init(""))

	require.NoError(t, Set("downloads.scale", "4"))
	assert.FileExists(t, filepath.Join(home, ".config", "archivedl", "config.yaml"))
	assert.Equal(t, 4, Get().Downloads.Scale)
	assert.Equal(t, "4", GetValue("downloads.scale"))
}

func TestPassword(t *testing.T) {
	t.Setenv("ARCHIVEDL_PASSWORD", "s3cret")
	assert.Equal(t, "s3cret", Password())
}

func TestExpandPath(t *testing.T) {
	home := setup(t)
	assert.Equal(t, filepath.Join(home, "x"), ExpandPath("~/x"))
	assert.Equal(t, "/abs", ExpandPath("/abs"))
}
