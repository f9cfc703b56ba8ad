package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/newsroom-builder/internal/jsonl"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Fetch.Workers)
	assert.Equal(t, 3, cfg.Fetch.Tries)
	assert.Equal(t, 2*time.Second, cfg.Fetch.Sleep)
	assert.InDelta(t, 1.5, cfg.Fetch.Multiplier, 1e-9)
	assert.Equal(t, 200, cfg.Fetch.SuccessStatus)
	assert.Equal(t, runtime.NumCPU(), cfg.Extract.Workers)
	assert.Equal(t, 20*runtime.NumCPU(), cfg.Extract.ChunkSize)
	assert.Equal(t, 10*time.Second, cfg.Metrics.ProgressInterval)
	assert.True(t, cfg.Store.FastRead)

	codec, err := cfg.Store.StoreCodec()
	require.NoError(t, err)
	assert.Equal(t, jsonl.Gzip(9), codec)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  development: true
fetch:
  workers: 4
  sleep: 500ms
  rate_limit_rps: 2.5
extract:
  chunk_size: 7
store:
  codec: xz
  level: 9
publish:
  backend: gcs
  bucket: newsroom
  project_id: proj
  topic: runs
`), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 4, cfg.Fetch.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.Fetch.Sleep)
	assert.InDelta(t, 2.5, cfg.Fetch.RateLimitRPS, 1e-9)
	assert.Equal(t, 7, cfg.Extract.ChunkSize)
	assert.Equal(t, "runs", cfg.Publish.Topic)

	codec, err := cfg.Store.StoreCodec()
	require.NoError(t, err)
	assert.Equal(t, jsonl.XZ(), codec)
}

func TestFlagsOverrideFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fetch:\n  workers: 4\n  tries: 5\n"), 0o600))

	fs := pflag.NewFlagSet("scrape", pflag.ContinueOnError)
	fs.Int("workers", 16, "")
	fs.Int("tries", 3, "")
	require.NoError(t, BindFlag(fs, "workers", "fetch.workers"))
	require.NoError(t, BindFlag(fs, "tries", "fetch.tries"))
	require.NoError(t, fs.Parse([]string{"--workers", "2"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Fetch.Workers, "changed flag wins")
	assert.Equal(t, 5, cfg.Fetch.Tries, "unchanged flag leaves the file value")

	require.Error(t, BindFlag(fs, "missing", "fetch.workers"))
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fetch:\n  workers: 0\nstore:\n  codec: rar\npublish:\n  backend: s3\n"), 0o600))
	_, err = Load(path, nil)
	require.Error(t, err)
	for _, fragment := range []string{"fetch.workers", "store.codec", "publish.backend"} {
		assert.Contains(t, err.Error(), fragment)
	}
}

func TestValidatePublishRequirements(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", nil)
	require.NoError(t, err)

	cfg.Publish.Topic = "runs"
	require.ErrorContains(t, cfg.Validate(), "publish.project_id")

	cfg.Publish.ProjectID = "proj"
	cfg.Publish.Backend = "gcs"
	require.ErrorContains(t, cfg.Validate(), "publish.bucket")

	cfg.Publish.Bucket = "b"
	require.NoError(t, cfg.Validate())
}

func TestStoreCodecLevels(t *testing.T) {
	t.Parallel()

	_, err := StoreConfig{Codec: "gzip", Level: 12}.StoreCodec()
	require.ErrorIs(t, err, jsonl.ErrInvalidCodec)

	c, err := StoreConfig{Codec: "ZSTD", Level: 19}.StoreCodec()
	require.NoError(t, err)
	assert.Equal(t, jsonl.Zstd(19), c)

	c, err = StoreConfig{Codec: "none", Level: 9}.StoreCodec()
	require.NoError(t, err)
	assert.Equal(t, jsonl.None(), c)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("NEWSROOM_PUBLISH_TOPIC", "env-topic")
	t.Setenv("NEWSROOM_PUBLISH_PROJECT_ID", "env-project")
	t.Setenv("NEWSROOM_FETCH_TRIES", "6")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "env-topic", cfg.Publish.Topic)
	assert.Equal(t, "env-project", cfg.Publish.ProjectID)
	assert.Equal(t, 6, cfg.Fetch.Tries)
}
