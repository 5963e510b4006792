package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"followreq/pkg/model"
)

func TestNewConfig_Defaults(t *testing.T) {
	c := NewConfig()
	assert.Equal(t, 5*time.Minute, c.Cache.TTL)
	assert.Equal(t, 5, c.Limits.PerMinute)
	assert.Equal(t, 60, c.Limits.PerHour)
	assert.Equal(t, 100, c.Fetch.ChunkSize)
	assert.Equal(t, 1, c.Fetch.ChunkConcurrency)
	assert.Equal(t, 10, c.Session.MaxAttempts)
	assert.Equal(t, time.Second, c.Session.Interval)
	assert.Equal(t, 30*time.Second, c.API.Timeout)
	assert.Empty(t, c.Journal.Dsn, "empty selects a private in-memory journal")
	assert.NoError(t, c.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "followreq.yaml")
	yml := `
api:
  base_url: http://127.0.0.1:9999/api/v1
cache:
  ttl: 90s
limits:
  per_minute: 3
filter:
  none_of:
    - field: followed
      value: "true"
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("FOLLOWREQ_LISTEN", "127.0.0.1:9000")
	t.Setenv("FOLLOWREQ_CHUNK_CONCURRENCY", "4")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999/api/v1", c.API.BaseURL)
	assert.Equal(t, 90*time.Second, c.Cache.TTL)
	assert.Equal(t, 3, c.Limits.PerMinute)
	assert.Equal(t, 60, c.Limits.PerHour, "unset keys keep defaults")
	assert.Equal(t, "127.0.0.1:9000", c.Server.Listen)
	assert.Equal(t, 4, c.Fetch.ChunkConcurrency)
	require.Len(t, c.Filter.NoneOf, 1)
	assert.Equal(t, model.FieldFollowed, c.Filter.NoneOf[0].Field)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("cache: [1, 2"), 0o600))
	_, err = Load(bad)
	assert.Error(t, err)

	t.Setenv("FOLLOWREQ_CACHE_TTL", "soon")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := NewConfig()
	c.Limits.PerHour = 0
	assert.Error(t, c.Validate())

	c = NewConfig()
	c.API.BaseURL = ""
	assert.Error(t, c.Validate())

	c = NewConfig()
	c.Fetch.ChunkConcurrency = 0
	require.NoError(t, c.Validate())
	assert.Equal(t, 1, c.Fetch.ChunkConcurrency)
}
