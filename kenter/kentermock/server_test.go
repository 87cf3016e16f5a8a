package kentermock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/kenter-mqtt/auth"
	"github.com/kilianp07/kenter-mqtt/core/model"
	"github.com/kilianp07/kenter-mqtt/infra/logger"
	"github.com/kilianp07/kenter-mqtt/kenter"
)

func newFetcher(t *testing.T) (*Server, *kenter.Fetcher) {
	t.Helper()
	s := NewWithRegistry("", prometheus.NewRegistry())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	tokens := auth.NewClientCred(auth.Conf{ClientID: "id", ClientSecret: "secret", AuthURL: ts.URL + TokenPath})
	client := kenter.NewClient(ts.URL, 5*time.Second, logger.NopLogger{})
	retry := kenter.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
	return s, kenter.NewFetcher(client, tokens, retry, logger.NopLogger{})
}

var query = model.MeteringQuery{ConnectionID: "c1", MeteringPointID: "mp1"}

func TestFetchGeneratedDay(t *testing.T) {
	s, f := newFetcher(t)
	day := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)

	ms, err := f.Fetch(context.Background(), query, day)
	require.NoError(t, err)
	require.Len(t, ms, 192)
	assert.Equal(t, "consumption", ms[0].Channel)
	assert.Equal(t, day, ms[0].Timestamp)
	assert.Equal(t, "feedin", ms[191].Channel)
	assert.Equal(t, 1, s.TokenRequests())
	assert.Equal(t, 1, s.DayRequests())
	assert.Equal(t, 1.0, testutil.ToFloat64(s.total.WithLabelValues("day", "200")))
}

func TestExpiredTokenRefreshedOnce(t *testing.T) {
	s, f := newFetcher(t)
	day := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)
	_, err := f.Fetch(context.Background(), query, day)
	require.NoError(t, err)

	s.Expire()
	_, err = f.Fetch(context.Background(), query, day)
	require.NoError(t, err)
	assert.Equal(t, 2, s.TokenRequests())
	assert.Equal(t, 3, s.DayRequests())
}

func TestTransientFailureRetried(t *testing.T) {
	s, f := newFetcher(t)
	s.FailNext(http.StatusServiceUnavailable)

	_, err := f.Fetch(context.Background(), query, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, s.DayRequests())
	assert.Equal(t, 1.0, testutil.ToFloat64(s.total.WithLabelValues("day", "503")))
}

func TestTokenRequiresClientCredentialsGrant(t *testing.T) {
	s := NewWithRegistry("", prometheus.NewRegistry())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.PostForm(ts.URL+TokenPath, map[string][]string{"grant_type": {"password"}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartStopsOnCancel(t *testing.T) {
	s := NewWithRegistry("127.0.0.1:0", prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
