package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsweaver/newsweaver/internal/config"
	"github.com/newsweaver/newsweaver/internal/metrics"
	"github.com/newsweaver/newsweaver/internal/models"
)

func testPolicy() config.DeliveryConfig {
	return config.DeliveryConfig{
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		Timeout:     2 * time.Second,
	}
}

func testClient(baseURL string) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(baseURL, "test-key", testPolicy(), logger, nil)
}

func articlePayload() models.ArticlePayload {
	return models.ArticlePayload{
		PayloadMeta: models.PayloadMeta{SourceFileID: 42, URL: "https://example.com/a", Mimetype: "text/html"},
		Title:       "headline",
		Content:     "body",
		Language:    "en",
	}
}

func TestDeliverPostsToKindEndpoint(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := testClient(srv.URL).Deliver(context.Background(), articlePayload())
	require.NoError(t, err)

	assert.Equal(t, "/api/articles", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, float64(42), gotBody["source_file_id"])
	assert.Equal(t, "headline", gotBody["title"])
}

func TestDeliverConflictIsSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	err := testClient(srv.URL).Deliver(context.Background(), articlePayload())
	require.NoError(t, err, "409 means the record already exists, which is the idempotent outcome")
	assert.Equal(t, int32(1), hits.Load())
}

func TestDeliverTransportErrorExhaustsAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediately: every POST is a connection error

	client := testClient(srv.URL)
	var sleeps int
	client.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}

	err := client.Deliver(context.Background(), articlePayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 2, sleeps, "no backoff sleep after the final attempt")
}

func TestDeliverRecoversMidRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 2 {
			// Drop the connection to look like a transport failure.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := testClient(srv.URL).Deliver(context.Background(), articlePayload())
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestDeliverRejectionConsumesAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	var sleeps int
	client.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}

	err := client.Deliver(context.Background(), articlePayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(3), hits.Load())
	assert.Zero(t, sleeps, "backoff applies to transport errors only")
}

func TestDeliverRecordsAttemptAndFailureMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediately: every POST is a connection error

	collector, err := metrics.NewCollector()
	require.NoError(t, err)
	client := NewClient(srv.URL, "test-key", testPolicy(), slog.New(slog.NewTextHandler(io.Discard, nil)), collector)
	client.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	require.Error(t, client.Deliver(context.Background(), articlePayload()))

	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	assert.Contains(t, body, "newsweaver_pipeline_delivery_attempts_total 3")
	assert.Contains(t, body, "newsweaver_pipeline_delivery_failures_total 1")
}

func TestDeliverHonorsContextDuringBackoff(t *testing.T) {
	client := testClient("http://127.0.0.1:1")
	client.policy.Backoff = 10 * time.Second
	client.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := client.Deliver(ctx, articlePayload())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
