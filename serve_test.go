package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anduleh/save-to-google-photos/internal/config"
	"github.com/anduleh/save-to-google-photos/internal/server"
	"github.com/anduleh/save-to-google-photos/internal/trigger"
)

func uploadableConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.ClientID = "client"
	cfg.TokenPath = filepath.Join(t.TempDir(), "token.json")
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.HistoryEnabled = false

	return cfg
}

// newTestDaemon builds a daemon whose config is re-read through resolve.
func newTestDaemon(t *testing.T, cfgPath string, resolve func() (*config.Config, error)) *daemon {
	t.Helper()

	cfg := uploadableConfig(t)

	client := newHTTPClient(cfg)

	handler, err := buildHandler(cfg, client, nil, quietLogger())
	require.NoError(t, err)

	d := newDaemon(&CLIContext{Cfg: cfg, CfgPath: cfgPath, Logger: quietLogger()},
		&session{handler: handler, client: client, logger: quietLogger()})
	d.resolve = resolve

	return d
}

func TestDaemon_ReloadSwapsConfigAndHandler(t *testing.T) {
	next := func() (*config.Config, error) {
		cfg := uploadableConfig(t)
		cfg.AllowedOrigins = []string{"new-extension-id"}
		cfg.Description = "reloaded"

		return cfg, nil
	}

	d := newTestDaemon(t, "", next)
	before := d.handler.current.Load()

	assert.Empty(t, d.origins())

	d.reload("test")

	assert.Equal(t, []string{"new-extension-id"}, d.origins())
	assert.Equal(t, "reloaded", d.holder.Config().Description)
	assert.Equal(t, uint64(1), d.holder.Generation())
	assert.NotSame(t, before, d.handler.current.Load())
}

func TestDaemon_ReloadKeepsConfigOnError(t *testing.T) {
	tests := []struct {
		name    string
		resolve func() (*config.Config, error)
	}{
		{"invalid file", func() (*config.Config, error) {
			return nil, errors.New("config validation failed")
		}},
		{"client id removed", func() (*config.Config, error) {
			cfg := config.DefaultConfig()
			cfg.AllowedOrigins = []string{"should-not-apply"}

			return cfg, nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDaemon(t, "", tt.resolve)
			cfgBefore := d.holder.Config()
			handlerBefore := d.handler.current.Load()

			d.reload("test")

			assert.Same(t, cfgBefore, d.holder.Config())
			assert.Same(t, handlerBefore, d.handler.current.Load())
		})
	}
}

func TestDaemon_ReloadKeepsClientWhenTimeoutsUnchanged(t *testing.T) {
	d := newTestDaemon(t, "", func() (*config.Config, error) {
		cfg := uploadableConfig(t)
		cfg.Description = "reloaded"

		return cfg, nil
	})
	before := d.client

	d.reload("test")

	assert.Same(t, before, d.client)
}

func TestDaemon_ReloadClosesReplacedClientIdleConns(t *testing.T) {
	var closed atomic.Int32

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateClosed {
			closed.Add(1)
		}
	}
	srv.Start()
	t.Cleanup(srv.Close)

	d := newTestDaemon(t, "", func() (*config.Config, error) {
		cfg := uploadableConfig(t)
		cfg.DataTimeout = "1m"

		return cfg, nil
	})
	before := d.client

	// Leave one pooled keep-alive connection on the current client.
	resp, err := before.Get(srv.URL) //nolint:noctx // test
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	d.reload("test")

	assert.NotSame(t, before, d.client)
	assert.Eventually(t, func() bool { return closed.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestDaemon_ConcurrentReloads(t *testing.T) {
	var n atomic.Int32

	d := newTestDaemon(t, "", func() (*config.Config, error) {
		cfg := uploadableConfig(t)
		cfg.DataTimeout = (time.Duration(n.Add(1)) * time.Minute).String()

		return cfg, nil
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			d.reload("test")
		}()
	}

	wg.Wait()

	connect, data := d.holder.Config().Timeouts()
	tr, ok := d.client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, connect, tr.TLSHandshakeTimeout)
	assert.Equal(t, data, tr.ResponseHeaderTimeout, "client matches the config that won")
}

func TestDaemon_WatchReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("# initial\n"), 0o600))

	var reloads atomic.Int32

	d := newTestDaemon(t, cfgPath, func() (*config.Config, error) {
		reloads.Add(1)
		return uploadableConfig(t), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- d.watchConfig(ctx) }()

	// Writes before the watcher is registered are not seen; keep writing,
	// slower than the debounce, until a reload lands.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(cfgPath, []byte("# changed\n"), 0o600)
		return reloads.Load() > 0
	}, 5*time.Second, 2*reloadDebounce)

	// Let any pending debounce fire, then check that a sibling file in the
	// same directory does not trigger reloads.
	time.Sleep(2 * reloadDebounce)
	settled := reloads.Load()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600))
	time.Sleep(2 * reloadDebounce)
	assert.Equal(t, settled, reloads.Load())

	cancel()
	require.NoError(t, <-done)
}

func TestIsConfigChange(t *testing.T) {
	path := "/etc/save/config.toml"

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"write", fsnotify.Event{Name: path, Op: fsnotify.Write}, true},
		{"create after rename", fsnotify.Event{Name: path, Op: fsnotify.Create}, true},
		{"remove", fsnotify.Event{Name: path, Op: fsnotify.Remove}, false},
		{"chmod", fsnotify.Event{Name: path, Op: fsnotify.Chmod}, false},
		{"other file", fsnotify.Event{Name: "/etc/save/config.toml.swp", Op: fsnotify.Write}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isConfigChange(tt.ev, path))
		})
	}
}

func TestDaemon_RunServesUntilCanceled(t *testing.T) {
	d := newTestDaemon(t, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)

	go func() {
		done <- d.run(ctx, func(a net.Addr) { addrCh <- a })
	}()

	var addr net.Addr
	select {
	case addr = <-addrCh:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr.String() + server.HealthPath) //nolint:noctx // test
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestDaemon_RunFailsOnNonLoopbackAddr(t *testing.T) {
	d := newTestDaemon(t, "", nil)

	cfg := *d.holder.Config()
	cfg.ListenAddr = "0.0.0.0:0"
	d.holder.Swap(&cfg)

	err := d.run(context.Background(), nil)
	assert.ErrorIs(t, err, server.ErrNotLoopback)
}

func TestSwitchHandler_ForwardsToCurrent(t *testing.T) {
	cfg := uploadableConfig(t)

	h, err := buildHandler(cfg, newHTTPClient(cfg), nil, quietLogger())
	require.NoError(t, err)

	sw := &switchHandler{}
	sw.current.Store(h)

	out, err := sw.Handle(context.Background(), trigger.Event{MenuItemID: "not-ours"})
	require.NoError(t, err)
	assert.Nil(t, out)
}
