package alertwebhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kcenon/dbcore/logging"
	"github.com/kcenon/dbcore/monitor"
)

func testLogger(t *testing.T) *logging.Logger {
	return logging.NewLogger(zaptest.NewLogger(t).Sugar(), time.Second)
}

func TestClient_PostSendsExpectedPayload(t *testing.T) {
	var gotAuth bool
	var got payload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/alerts", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		gotAuth = ok && user == "u" && pass == "p"
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Username: "u", Password: "p"})
	require.NoError(t, err)

	alert := monitor.Alert{Kind: monitor.SlowQuery, Message: "slow", Timestamp: time.Now()}
	require.NoError(t, client.Post(context.Background(), alert))
	require.True(t, gotAuth)
	require.Equal(t, "slow_query", got.Kind)
	require.Equal(t, "slow", got.Message)
}

func TestClient_PostReturnsErrorOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	err = client.Post(context.Background(), monitor.Alert{Kind: monitor.HighLatency})
	require.Error(t, err)
}

func TestHandler_DeliversAlertAsynchronously(t *testing.T) {
	delivered := make(chan payload, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		delivered <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	handler := NewHandler(client, testLogger(t))
	handler.AlertHandler()(monitor.Alert{Kind: monitor.PoolExhaustion, Message: "full", Timestamp: time.Now()})

	select {
	case p := <-delivered:
		require.Equal(t, "pool_exhaustion", p.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("alert was not delivered within timeout")
	}
}
