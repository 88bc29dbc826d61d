// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cityops/data-api/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testManagerConfig() config.Config {
	cfg := config.Defaults()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.MetricsListen = ""
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	cfg := testManagerConfig()
	m, err := NewManager(cfg, okHandler(), nil)
	require.NoError(t, err)
	return m
}

func TestStartAndGracefulShutdown(t *testing.T) {
	m := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
}

func TestShutdownHooksRunLIFO(t *testing.T) {
	m := newTestManager(t)

	var mu sync.Mutex
	var order []string
	hook := func(name string) ShutdownHook {
		return func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	m.RegisterShutdownHook("store", hook("store"))
	m.RegisterShutdownHook("cache", hook("cache"))
	m.RegisterShutdownHook("tracer", hook("tracer"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"tracer", "cache", "store"}, order)
}

func TestShutdownBeforeStart(t *testing.T) {
	m, err := NewManager(testManagerConfig(), okHandler(), nil)
	require.NoError(t, err)

	assert.ErrorIs(t, m.Shutdown(context.Background()), ErrNotStarted)
}

func TestNewManagerRequiresHandler(t *testing.T) {
	_, err := NewManager(testManagerConfig(), nil, nil)
	assert.Error(t, err)
}

func TestServerFailureStopsManager(t *testing.T) {
	// occupy a port so ListenAndServe fails immediately
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	cfg := testManagerConfig()
	cfg.ListenAddr = ln.Addr().String()

	m, err := NewManager(cfg, okHandler(), nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- m.Start(context.Background()) }()

	select {
	case err := <-done:
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "api server")
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not report the bind failure")
	}
}
