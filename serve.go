package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/anduleh/save-to-google-photos/internal/config"
	"github.com/anduleh/save-to-google-photos/internal/server"
	"github.com/anduleh/save-to-google-photos/internal/trigger"
)

// reloadDebounce coalesces the burst of events editors produce on save.
const reloadDebounce = 300 * time.Millisecond

const (
	watchErrInitBackoff = time.Second
	watchErrMaxBackoff  = 30 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the localhost endpoint for the browser extension",
		Long: "Listens on listen_addr for context-menu clicks from the browser\n" +
			"extension and uploads each clicked image or video. The config file is\n" +
			"reloaded when it changes or on SIGHUP ('save-to-google-photos reload').",
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "loopback address to listen on (overrides config)")
	cmd.Flags().String("description", "", "media item description (overrides config)")
	cmd.Flags().String("album", "", "album id to add items to (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	release, err := acquirePIDFile(config.PIDFilePath())
	if err != nil {
		return err
	}
	defer release()

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	s, err := newSession(ctx, cc, cc.Cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	d := newDaemon(cc, s)

	return d.run(ctx, func(addr net.Addr) {
		cc.Statusf("Listening on ws://%s%s\n", addr, server.TriggerPath)
	})
}

// switchHandler forwards to the current trigger handler. A reload swaps the
// handler without touching connections or in-flight uploads.
type switchHandler struct {
	current atomic.Pointer[trigger.Handler]
}

func (h *switchHandler) Handle(ctx context.Context, ev trigger.Event) (*trigger.Outcome, error) {
	return h.current.Load().Handle(ctx, ev)
}

// daemon is the serve process: the trigger server plus config reloading.
type daemon struct {
	holder    *config.Holder
	handler   *switchHandler
	session   *session
	overrides config.CLIOverrides
	logger    *slog.Logger

	// reloadMu serializes reloads from SIGHUP and the file watcher and
	// guards client, the HTTP client behind the current handler.
	reloadMu sync.Mutex
	client   *http.Client

	// resolve re-reads the configuration. Replaced in tests.
	resolve func() (*config.Config, error)
}

func newDaemon(cc *CLIContext, s *session) *daemon {
	d := &daemon{
		holder:    config.NewHolder(cc.Cfg, cc.CfgPath),
		handler:   &switchHandler{},
		session:   s,
		overrides: cc.Overrides,
		logger:    cc.Logger,
		client:    s.client,
	}

	d.handler.current.Store(s.handler)

	d.resolve = func() (*config.Config, error) {
		cfg, _, err := config.Resolve(config.ReadEnvOverrides(), d.overrides)
		return cfg, err
	}

	return d
}

// origins returns allowed_origins from the current config.
func (d *daemon) origins() []string {
	return d.holder.AllowedOrigins()
}

// run serves until ctx is canceled. The server, SIGHUP listener and config
// file watcher share one errgroup; a fatal server error stops the others.
func (d *daemon) run(ctx context.Context, ready func(net.Addr)) error {
	srv := server.New(d.handler, d.origins, d.logger)
	addr := d.holder.Config().ListenAddr

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe(gctx, addr, ready)
	})

	g.Go(func() error {
		sighup := reloadSignals(gctx)

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-sighup:
				d.reload("SIGHUP")
			}
		}
	})

	g.Go(func() error {
		return d.watchConfig(gctx)
	})

	return g.Wait()
}

// reload re-reads the configuration and swaps in a handler built from it.
// An invalid file keeps the running config.
func (d *daemon) reload(reason string) {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()

	old := d.holder.Config()

	cfg, err := d.resolve()
	if err != nil {
		d.logger.Error("config reload failed, keeping current config",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)

		return
	}

	client := d.client
	if client == nil || timeoutsChanged(old, cfg) {
		client = newHTTPClient(cfg)
	}

	handler, err := buildHandler(cfg, client, d.session.recorder(), d.logger)
	if err != nil {
		if client != d.client {
			client.CloseIdleConnections()
		}

		d.logger.Error("config reload failed, keeping current config",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)

		return
	}

	warnRestartRequired(d.logger, old, cfg)

	_, gen := d.holder.Swap(cfg)
	d.handler.current.Store(handler)

	// Connections still carrying in-flight uploads go back to the old pool
	// when done and expire after idleConnTimeout.
	if replaced := d.client; replaced != nil && replaced != client {
		replaced.CloseIdleConnections()
	}

	d.client = client

	d.logger.Info("config reloaded",
		slog.String("reason", reason),
		slog.String("path", d.holder.Path()),
		slog.Uint64("generation", gen),
		slog.Int("allowed_origins", len(cfg.AllowedOrigins)),
	)
}

// timeoutsChanged reports whether the HTTP client must be rebuilt for cfg.
func timeoutsChanged(old, cfg *config.Config) bool {
	oldConnect, oldData := old.Timeouts()
	connect, data := cfg.Timeouts()

	return oldConnect != connect || oldData != data
}

// warnRestartRequired logs settings that only take effect on restart.
func warnRestartRequired(logger *slog.Logger, old, cfg *config.Config) {
	if old.ListenAddr != cfg.ListenAddr {
		logger.Warn("listen_addr changed; restart serve to apply",
			slog.String("current", old.ListenAddr),
			slog.String("configured", cfg.ListenAddr),
		)
	}

	if old.HistoryEnabled != cfg.HistoryEnabled || old.HistoryPath != cfg.HistoryPath {
		logger.Warn("history settings changed; restart serve to apply")
	}

	if old.LogLevel != cfg.LogLevel || old.LogFormat != cfg.LogFormat {
		logger.Warn("logging settings changed; restart serve to apply")
	}
}

// watchConfig reloads when the config file is written, created or replaced.
// The parent directory is watched because editors save by rename.
func (d *daemon) watchConfig(ctx context.Context) error {
	path := d.holder.Path()
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Warn("config watcher unavailable, use SIGHUP to reload", slog.String("error", err.Error()))
		return nil
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		d.logger.Warn("cannot watch config directory, use SIGHUP to reload",
			slog.String("dir", filepath.Dir(path)),
			slog.String("error", err.Error()),
		)

		return nil
	}

	return d.watchLoop(ctx, watcher, filepath.Clean(path))
}

func (d *daemon) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string) error {
	debounce := time.NewTimer(reloadDebounce)
	debounce.Stop()

	defer debounce.Stop()

	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !isConfigChange(ev, path) {
				continue
			}

			debounce.Reset(reloadDebounce)
			errBackoff = watchErrInitBackoff

		case <-debounce.C:
			d.reload("file changed")

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			d.logger.Warn("config watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if err := sleepCtx(ctx, errBackoff); err != nil {
				return nil
			}

			errBackoff = min(errBackoff*2, watchErrMaxBackoff)
		}
	}
}

// isConfigChange reports whether ev touched the config file with a change
// worth reloading. Removal alone is ignored: the rename half of an atomic
// save is followed by a Create.
func isConfigChange(ev fsnotify.Event, path string) bool {
	if filepath.Clean(ev.Name) != path {
		return false
	}

	return slices.ContainsFunc([]fsnotify.Op{fsnotify.Write, fsnotify.Create}, ev.Has)
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

var _ server.Handler = (*switchHandler)(nil)
