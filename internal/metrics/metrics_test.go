package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveAttempt("single", false)
	m.ObserveAttempt("single", true)
	m.ObserveAttempt("chunked", true)
	m.ObserveChunk(true)
	m.ObserveChunk(false)
	m.ObserveChunk(false)
	m.ObserveUnit("chunked", true, 3*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("single", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("chunked", "succeeded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChunksTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnitsTotal.WithLabelValues("succeeded")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TranslateDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveAttempt("single", true)
	m.ObserveChunk(true)
	m.ObserveUnit("single", false, time.Second)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveUnit("single", false, time.Second)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `codetran_units_total{status="failed"} 1`))
}

func TestServe_StopsOnCancel(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, "127.0.0.1:0", nil) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
