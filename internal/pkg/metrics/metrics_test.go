package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveAttempt(t *testing.T) {
	m := New()

	m.ObserveAttempt("repository", "succeeded", 12*time.Second)
	m.ObserveAttempt("repository", "succeeded", 14*time.Second)
	m.ObserveAttempt("custom", "timeout", 210*time.Second)
	m.ObservePolls(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("repository", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("custom", "timeout")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.AttemptDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ConfirmationPolls))

	expected := `
# HELP cpeer_agent_upgrade_attempts_total Total number of agent upgrade attempts by mode and outcome.
# TYPE cpeer_agent_upgrade_attempts_total counter
cpeer_agent_upgrade_attempts_total{mode="custom",outcome="timeout"} 1
cpeer_agent_upgrade_attempts_total{mode="repository",outcome="succeeded"} 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(expected), "cpeer_agent_upgrade_attempts_total"))
}

func TestPush(t *testing.T) {
	var (
		path string
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.ObserveAttempt("repository", "failed", time.Second)

	require.NoError(t, m.Push(context.Background(), srv.URL, "cpeer_agent_upgrade", "001"))
	assert.Equal(t, "/metrics/job/cpeer_agent_upgrade/agent/001", path)
	assert.NotEmpty(t, body)
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "cpeer_agent_upgrade", "")
	assert.Error(t, err)
}
