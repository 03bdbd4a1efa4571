package logging_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/G14MB0/conductor/internal/config"
	"github.com/G14MB0/conductor/internal/logging"
)

func TestNewWithoutRemoteLoggingWritesOnlyToStdout(t *testing.T) {
	log, err := logging.New(&config.GlobalConfig{}, zapcore.InfoLevel, true)
	require.NoError(t, err)
	require.NotNil(t, log)
	log.Info("hello")
}

func TestNewShipsRecordsToRemoteTarget(t *testing.T) {
	var mu sync.Mutex
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		received = body
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	enabled := true
	cfg := &config.GlobalConfig{
		RemoteLogging: &config.RemoteLoggingConfig{
			Target:  server.URL,
			Method:  "POST",
			Enabled: &enabled,
		},
	}

	log, err := logging.New(cfg, zapcore.InfoLevel, true)
	require.NoError(t, err)
	log.Info("remote message", zap.String("node_id", "n1"))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := received
		mu.Unlock()
		if got != nil {
			assert.Equal(t, "remote message", got["message"])
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("remote logging endpoint never received a request")
}

func TestNewSkipsRemoteCoreWhenDisabled(t *testing.T) {
	disabled := false
	cfg := &config.GlobalConfig{
		RemoteLogging: &config.RemoteLoggingConfig{
			Target:  "http://127.0.0.1:0",
			Enabled: &disabled,
		},
	}
	log, err := logging.New(cfg, zapcore.InfoLevel, true)
	require.NoError(t, err)
	log.Info("should not attempt remote delivery")
}

func TestNodeLoggerAddsNodeIDField(t *testing.T) {
	base, err := logging.New(&config.GlobalConfig{}, zapcore.InfoLevel, true)
	require.NoError(t, err)
	scoped := logging.NodeLogger(base, "sum-node")
	assert.NotNil(t, scoped)
	scoped.Info("scoped message")
}
