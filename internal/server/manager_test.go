package server

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/BaSui01/naya/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func newTestManager(t *testing.T, handler http.Handler) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	m := NewManager("relay", handler, cfg, zap.NewNop())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Zero(t, cfg.WriteTimeout, "streaming responses must not be cut off")
	assert.Equal(t, 120*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestConfigFrom(t *testing.T) {
	sc := config.DefaultServerConfig()
	sc.HTTPPort = 8081
	sc.MetricsPort = 9191
	sc.ShutdownTimeout = 5 * time.Second
	sc.TLSCertFile = "cert.pem"
	sc.TLSKeyFile = "key.pem"

	cfg := ConfigFrom(sc)
	assert.Equal(t, ":8081", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "cert.pem", cfg.TLSCertFile)
	assert.Zero(t, cfg.WriteTimeout)

	mc := MetricsConfigFrom(sc)
	assert.Equal(t, ":9191", mc.Addr)
	assert.Empty(t, mc.TLSCertFile)
	assert.Positive(t, mc.WriteTimeout)
}

func TestManager_StartAndShutdown(t *testing.T) {
	m := newTestManager(t, okHandler())
	assert.False(t, m.IsRunning())

	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())
	assert.NotEqual(t, "127.0.0.1:0", m.Addr())

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

func TestManager_DoubleStart(t *testing.T) {
	m := newTestManager(t, okHandler())
	require.NoError(t, m.Start())
	assert.ErrorContains(t, m.Start(), "already started")
}

func TestManager_StartAfterShutdown(t *testing.T) {
	m := newTestManager(t, okHandler())
	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))
	assert.ErrorIs(t, m.Start(), ErrServerClosed)
}

func TestManager_ListenError(t *testing.T) {
	first := newTestManager(t, okHandler())
	require.NoError(t, first.Start())

	cfg := DefaultConfig()
	cfg.Addr = first.Addr()
	second := NewManager("relay", okHandler(), cfg, nil)
	assert.ErrorContains(t, second.Start(), "failed to listen")
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	m := newTestManager(t, okHandler())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, m.IsRunning, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, m.IsRunning())

	select {
	case err := <-m.Errors():
		t.Fatalf("unexpected async error: %v", err)
	default:
	}
}

func TestManager_ShutdownWaitsForStream(t *testing.T) {
	started := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		close(started)
		time.Sleep(100 * time.Millisecond)
		_, _ = io.WriteString(w, "data: [DONE]\n")
	})
	m := newTestManager(t, handler)
	require.NoError(t, m.Start())

	bodyCh := make(chan string, 1)
	go func() {
		resp, err := http.Get("http://" + m.Addr() + "/")
		if err != nil {
			bodyCh <- err.Error()
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		bodyCh <- string(b)
	}()

	<-started
	require.NoError(t, m.Shutdown(context.Background()))

	select {
	case body := <-bodyCh:
		assert.Equal(t, "data: [DONE]\n", body)
	case <-time.After(5 * time.Second):
		t.Fatal("stream was not drained")
	}
}

func TestNewManager_TLSUsesHardenedConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TLSCertFile, cfg.TLSKeyFile = "cert.pem", "key.pem"
	m := NewManager("relay", okHandler(), cfg, nil)
	require.NotNil(t, m.server.TLSConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), m.server.TLSConfig.MinVersion)

	plain := NewManager("metrics", okHandler(), DefaultConfig(), nil)
	assert.Nil(t, plain.server.TLSConfig)
}
