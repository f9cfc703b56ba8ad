package app_test

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsroom-builder/internal/app"
	"github.com/JakeFAU/newsroom-builder/internal/dataset"
	"github.com/JakeFAU/newsroom-builder/internal/jsonl"
	"github.com/JakeFAU/newsroom-builder/internal/storage"
)

// MockPublisher mocks dataset.Publisher.
type MockPublisher struct {
	mock.Mock
}

// Publish satisfies dataset.Publisher.
func (m *MockPublisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	args := m.Called(ctx, topic, payload)
	return args.String(0), args.Error(1)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "newsroom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewWiresServices(t *testing.T) {
	t.Parallel()

	outDir := t.TempDir()
	cfgPath := writeConfig(t, `
metrics:
  addr: 127.0.0.1:0
publish:
  backend: local
  local_dir: `+outDir+`
  project_id: proj
  topic: runs
`)
	pub := &MockPublisher{}
	ctx := context.Background()
	a, err := app.New(ctx, app.Options{ConfigPath: cfgPath, Logger: zap.NewNop(), Publisher: pub})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	assert.Equal(t, "runs", a.Config().Publish.Topic)
	assert.Same(t, pub, a.Publisher())

	resp, err := http.Get("http://" + a.MetricsAddr() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get("http://" + a.MetricsAddr() + "/progress")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"stages":[]}`, string(body))

	f, err := a.Fetcher()
	require.NoError(t, err)
	assert.NotNil(t, f)

	blobs, err := a.BlobStore(ctx)
	require.NoError(t, err)
	src := filepath.Join(t.TempDir(), "dataset.jsonl")
	require.NoError(t, os.WriteFile(src, []byte("{}\n"), 0o600))
	uri, err := storage.Upload(ctx, blobs, src, "dataset.jsonl")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"+outDir))
}

func TestRunnerPublishesSummaries(t *testing.T) {
	t.Parallel()

	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, "runs", mock.Anything).Return("msg-1", nil).Once()

	cfgPath := writeConfig(t, "publish:\n  project_id: proj\n  topic: runs\n")
	a, err := app.New(context.Background(), app.Options{ConfigPath: cfgPath, Logger: zap.NewNop(), Publisher: pub})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	dir := t.TempDir()
	archive, err := a.OpenStore(filepath.Join(dir, "archive.jsonl.gz"), jsonl.Gzip(0))
	require.NoError(t, err)
	require.NoError(t, jsonl.AppendMany(archive, []dataset.ArchiveRecord{{Archive: "http://web.archive.org/web/2016id_/http://example.com/a"}}))
	ds, err := a.OpenStore(filepath.Join(dir, "dataset.jsonl.gz"), jsonl.Gzip(0))
	require.NoError(t, err)

	cfg := a.Config()
	_, err = a.Runner().Extract(context.Background(), stageOptions(archive, ds, cfg.Extract.Workers, cfg.Extract.ChunkSize))
	require.NoError(t, err)
	pub.AssertExpectations(t)
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), app.Options{
		ConfigPath: writeConfig(t, "fetch:\n  workers: -1\n"),
		Logger:     zap.NewNop(),
	})
	require.Error(t, err)

	_, err = app.New(context.Background(), app.Options{
		ConfigPath: writeConfig(t, "metrics:\n  addr: 256.0.0.1:bad\n"),
		Logger:     zap.NewNop(),
	})
	require.Error(t, err)
}

func TestNilAppClose(t *testing.T) {
	t.Parallel()

	var a *app.App
	require.NoError(t, a.Close(context.Background()))
}
