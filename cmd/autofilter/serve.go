package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/autofilter/autofilter/internal/assets"
	"github.com/autofilter/autofilter/internal/bridge"
	"github.com/autofilter/autofilter/internal/config"
	"github.com/autofilter/autofilter/internal/coordinator"
	"github.com/autofilter/autofilter/internal/detector"
	"github.com/autofilter/autofilter/internal/events"
	"github.com/autofilter/autofilter/internal/favorites"
	"github.com/autofilter/autofilter/internal/handlers"
	"github.com/autofilter/autofilter/internal/idutil"
	"github.com/autofilter/autofilter/internal/notify"
	"github.com/autofilter/autofilter/internal/settings"
)

func newServeCmd(cfg *config.RuntimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: drive Chrome, scan listing pages and serve the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.Port, "port", cfg.Port, "listen port")
	f.StringVar(&cfg.CdpURL, "cdp-url", cfg.CdpURL, "attach to a running Chrome instead of launching one")
	f.BoolVar(&cfg.Headless, "headless", cfg.Headless, "launch Chrome headless")
	f.StringSliceVar(&cfg.Pages, "page", cfg.Pages, "listing page to monitor (repeatable)")
	f.BoolVar(&cfg.Overlay, "overlay", cfg.Overlay, "draw cooldown badges on monitored pages")
	f.DurationVar(&cfg.ScanInterval, "scan-interval", cfg.ScanInterval, "minimum time between scans of a page")
	f.DurationVar(&cfg.TabCreateTimeout, "create-timeout", cfg.TabCreateTimeout, "give up on a tab that takes longer to open")
	return cmd
}

func runServe(parent context.Context, cfg *config.RuntimeConfig) error {
	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := settings.Open(cfg.SettingsPath())
	if err != nil {
		return err
	}
	store.Watch()

	pageScript := ""
	if cfg.Overlay {
		pageScript = assets.OverlayScript
	}
	b, err := bridge.Start(cfg, pageScript)
	if err != nil {
		slog.Error("chrome failed to start",
			"err", err,
			"hint", "delete the profile directory or set CDP_URL to attach to a running Chrome",
			"profile", cfg.ProfileDir,
		)
		return err
	}
	defer b.Close()
	tabs := b.TabManager

	hub := events.NewHub(nil)
	notifier := notify.NewChrome(tabs)
	coord := coordinator.New(coordinator.Config{
		Settings:      store,
		Host:          tabs,
		Notifier:      notifier,
		Events:        hub,
		CreateTimeout: cfg.TabCreateTimeout,
	})

	if err := tabs.WatchTargets(ctx, coord.HandleTabRemoved); err != nil {
		slog.Warn("tab close events unavailable, relying on reconcile", "err", err)
	}
	go tabs.CleanStaleTabs(ctx, cfg.ReconcileEvery, func(listedAt time.Time, live []bridge.Tab) {
		coord.Reconcile(listedAt, liveTabs(live))
	})
	go runSweeper(ctx, coord, cfg.SweepInterval)
	go forwardSettings(ctx, store, hub)

	favs, closeFavs, err := openFavorites(ctx, cfg, tabs)
	if err != nil {
		return err
	}
	defer closeFavs()

	if len(cfg.Pages) == 0 {
		slog.Info("no listing pages configured; only API opens will be served", "hint", "set AUTOFILTER_PAGES or --page")
	}
	detector.StartPages(ctx, tabs, cfg.Pages, coord, store, detector.Config{
		Interval: cfg.ScanInterval,
		Overlay:  cfg.Overlay,
	})

	h := &handlers.Handlers{
		Coordinator: coord,
		Settings:    store,
		Favorites:   favs,
		Events:      hub,
		Browser:     tabs,
		Config:      cfg,
		Version:     version,
	}
	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("autofilter listening", "addr", cfg.ListenAddr(), "cdp", cfg.CdpURL, "pages", len(cfg.Pages))
	if cfg.Token != "" {
		slog.Info("auth enabled")
	} else {
		slog.Info("auth disabled (set AUTOFILTER_TOKEN to enable)")
	}
	go runStartupHealthCheck(ctx, cfg)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	// An attached browser outlives the daemon; leave no offscreen tab behind.
	if id := notifier.TabID(); id != "" {
		if err := tabs.CloseTab(shutdownCtx, id); err != nil {
			slog.Debug("close offscreen tab", "err", err)
		}
	}
	return nil
}

func liveTabs(tabs []bridge.Tab) []coordinator.LiveTab {
	out := make([]coordinator.LiveTab, len(tabs))
	for i, t := range tabs {
		out[i] = coordinator.LiveTab{ID: t.ID, URL: t.URL}
	}
	return out
}

func runSweeper(ctx context.Context, coord *coordinator.Coordinator, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := coord.Sweep(); n > 0 {
				slog.Debug("expired cooldowns dropped", "count", n)
			}
		}
	}
}

// forwardSettings announces settings changes, including edits made to the
// file by hand, to event subscribers.
func forwardSettings(ctx context.Context, store *settings.Store, hub *events.Hub) {
	ch, unsubscribe := store.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			hub.Publish(events.Event{Type: events.SettingsChanged})
		}
	}
}

func openFavorites(ctx context.Context, cfg *config.RuntimeConfig, tabs favorites.TabOpener) (*favorites.Service, func(), error) {
	userID := idutil.InstallationID(cfg.StateDir)
	if cfg.DatabaseURL == "" {
		slog.Info("favorites kept in memory", "user", userID)
		return favorites.NewService(favorites.NewMemoryStore(), tabs, userID), func() {}, nil
	}

	pool, err := favorites.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect favorites database: %w", err)
	}
	if err := favorites.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate favorites database: %w", err)
	}
	slog.Info("favorites stored in postgres", "db", config.MaskDSN(cfg.DatabaseURL), "user", userID)
	return favorites.NewService(favorites.NewPostgresStore(pool), tabs, userID), pool.Close, nil
}

func runStartupHealthCheck(ctx context.Context, cfg *config.RuntimeConfig) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(500 * time.Millisecond):
	}
	var health map[string]any
	if err := newAPIClient(cfg.BaseURL(), cfg.Token).get(ctx, "/health", &health); err != nil {
		slog.Error("startup health check failed", "err", err)
		return
	}
	if health["status"] == "ok" {
		slog.Info("startup health check passed", "tabs", health["tabs"])
	} else {
		slog.Warn("startup health check: browser not reachable", "status", health["status"])
	}
}
