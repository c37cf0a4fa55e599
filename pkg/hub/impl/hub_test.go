package impl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fargraph/go-fargraph/pkg/hub"
)

func fastOpts() []hub.Option {
	return []hub.Option{
		hub.WithMaxRetries(2),
		hub.WithRetryBaseDelay(time.Millisecond),
		hub.WithRequestTimeout(time.Second * 2),
	}
}

func TestFallbackOnServerError(t *testing.T) {
	t.Parallel()

	var primaryHits, secondaryHits int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&primaryHits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&secondaryHits, 1)
		_, _ = w.Write([]byte(`{"version": "1.0"}`))
	}))
	defer secondary.Close()

	client, err := New([]hub.Endpoint{{URL: primary.URL}, {URL: secondary.URL}}, fastOpts()...)
	require.NoError(t, err)

	info, err := client.Info(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `{"version": "1.0"}`, string(info))
	require.EqualValues(t, 1, atomic.LoadInt32(&primaryHits))
	require.EqualValues(t, 1, atomic.LoadInt32(&secondaryHits))

	// The primary is favored again after a success, even one served by a
	// fallback endpoint.
	_, err = client.Info(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&primaryHits))
}

func TestAllEndpointsDownReturnsErrHubUnavailable(t *testing.T) {
	t.Parallel()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	client, err := New([]hub.Endpoint{{URL: down.URL}}, fastOpts()...)
	require.NoError(t, err)

	_, err = client.Info(context.Background())
	require.ErrorIs(t, err, hub.ErrHubUnavailable)
}

func TestRateLimitedEndpointIsSidelined(t *testing.T) {
	t.Parallel()

	var primaryHits int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&primaryHits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer secondary.Close()

	client, err := New([]hub.Endpoint{{URL: primary.URL}, {URL: secondary.URL}}, fastOpts()...)
	require.NoError(t, err)

	_, err = client.Info(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&primaryHits))

	// The rate-limited primary stays sidelined during its cooldown.
	_, err = client.Info(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&primaryHits))
}

func TestNotFoundIsAnEmptyResult(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, err := New([]hub.Endpoint{{URL: server.URL}}, fastOpts()...)
	require.NoError(t, err)

	events, err := client.Events(context.Background(), 0, 100)
	require.NoError(t, err)
	require.Empty(t, events)

	page, err := client.MessagesByFid(context.Background(), 1, hub.KindCasts, hub.PageOpts{})
	require.NoError(t, err)
	require.Empty(t, page.Messages)
	require.Empty(t, page.NextPageToken)
}

func TestGetAllMessagesFollowsPagination(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/castsByFid", r.URL.Path)
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{
				"messages": [{"hash": "0x01", "data": {"type": "MESSAGE_TYPE_CAST_ADD", "fid": 1, "timestamp": 1, "castAddBody": {"text": "a"}}}],
				"nextPageToken": "next"
			}`))
			return
		}
		require.Equal(t, "next", r.URL.Query().Get("pageToken"))
		_, _ = w.Write([]byte(`{
			"messages": [{"hash": "0x02", "data": {"type": "MESSAGE_TYPE_CAST_ADD", "fid": 1, "timestamp": 2, "castAddBody": {"text": "b"}}}],
			"nextPageToken": ""
		}`))
	}))
	defer server.Close()

	client, err := New([]hub.Endpoint{{URL: server.URL}}, fastOpts()...)
	require.NoError(t, err)

	msgs, err := client.GetAllMessagesByFid(context.Background(), 1, hub.KindCasts)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "a", msgs[0].Data.CastAddBody.Text)
	require.Equal(t, "b", msgs[1].Data.CastAddBody.Text)
}

func TestLinksQueryFiltersFollows(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/linksByFid", r.URL.Path)
		require.Equal(t, "follow", r.URL.Query().Get("link_type"))
		_, _ = w.Write([]byte(`{"messages": [], "nextPageToken": ""}`))
	}))
	defer server.Close()

	client, err := New([]hub.Endpoint{{URL: server.URL}}, fastOpts()...)
	require.NoError(t, err)

	_, err = client.MessagesByFid(context.Background(), 1, hub.KindLinks, hub.PageOpts{})
	require.NoError(t, err)
}

func TestEndpointHeadersAreSent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, err := New(
		[]hub.Endpoint{{URL: server.URL, Headers: map[string]string{"x-api-key": "secret"}}},
		fastOpts()...,
	)
	require.NoError(t, err)

	_, err = client.Info(context.Background())
	require.NoError(t, err)
}

func TestClampPageSize(t *testing.T) {
	t.Parallel()

	require.Equal(t, 100, clampPageSize(0))
	require.Equal(t, 100, clampPageSize(-5))
	require.Equal(t, 1000, clampPageSize(5000))
	require.Equal(t, 42, clampPageSize(42))
}
