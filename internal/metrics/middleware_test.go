package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418"))
	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/teapot")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.InDelta(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418")), 1e-9)
	assert.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}

func TestServerServesMetricsAndHealth(t *testing.T) {
	srv, err := Start("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, srv.Shutdown(context.Background())) }()

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	ObserveChunk("server-test")
	resp, err = http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Contains(t, string(body), "newsroom_chunks_total")
}

func TestNewRouterMounts(t *testing.T) {
	t.Parallel()

	h := NewRouter(func(r chi.Router) {
		r.Get("/extra", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/extra", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestStartWithoutAddrIsDisabled(t *testing.T) {
	t.Parallel()

	srv, err := Start("", nil)
	require.NoError(t, err)
	assert.Nil(t, srv)
	assert.Empty(t, srv.Addr())
	assert.NoError(t, srv.Shutdown(context.Background()))
}
