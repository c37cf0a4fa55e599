package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fargraph/go-fargraph/pkg/queue"
)

type fakeAdmin struct {
	paused  []string
	resumed []string
	drained []string
}

func (a *fakeAdmin) Stats(_ context.Context) ([]queue.QueueStats, error) {
	return []queue.QueueStats{
		{Queue: queue.QueueBackfill, Pending: 3},
		{Queue: queue.QueueRealtime},
		{Queue: queue.QueueEvents, Paused: true},
	}, nil
}

func (a *fakeAdmin) Pause(_ context.Context, q string) error {
	a.paused = append(a.paused, q)
	return nil
}

func (a *fakeAdmin) Resume(_ context.Context, q string) error {
	a.resumed = append(a.resumed, q)
	return nil
}

func (a *fakeAdmin) Drain(_ context.Context, q string) error {
	a.drained = append(a.drained, q)
	return nil
}

func (a *fakeAdmin) Close() error { return nil }

func testRouter(admin queue.Admin) http.Handler {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	return ConfiguredRouter(metricsHandler, admin, "adminpass").Handler()
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	testRouter(&fakeAdmin{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestVersion(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	testRouter(&fakeAdmin{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "git_commit")
}

func TestQueueStats(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	testRouter(&fakeAdmin{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queues/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats []queue.QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Len(t, stats, 3)
	require.Equal(t, 3, stats[0].Pending)
}

func TestPauseRequiresAuth(t *testing.T) {
	t.Parallel()

	admin := &fakeAdmin{}
	router := testRouter(admin)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/queues/backfill/pause", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, admin.paused)

	req := httptest.NewRequest(http.MethodPost, "/queues/backfill/pause", nil)
	req.SetBasicAuth("ops", "adminpass")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"backfill"}, admin.paused)
}

func TestResume(t *testing.T) {
	t.Parallel()

	admin := &fakeAdmin{}
	router := testRouter(admin)

	req := httptest.NewRequest(http.MethodPost, "/queues/events/resume", nil)
	req.SetBasicAuth("ops", "adminpass")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"events"}, admin.resumed)
}

func TestDrainRequiresAuth(t *testing.T) {
	t.Parallel()

	admin := &fakeAdmin{}
	router := testRouter(admin)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/queues/backfill/drain", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, admin.drained)

	req := httptest.NewRequest(http.MethodPost, "/queues/backfill/drain", nil)
	req.SetBasicAuth("ops", "adminpass")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"backfill"}, admin.drained)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	testRouter(&fakeAdmin{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# metrics")
}
