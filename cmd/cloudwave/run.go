package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/k0kubun/go-ansi"
	zlog "github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/osa030/cloudwave/internal/api/httpapi"
	"github.com/osa030/cloudwave/internal/app/notification"
	"github.com/osa030/cloudwave/internal/app/refresh"
	"github.com/osa030/cloudwave/internal/app/scheduler"
	"github.com/osa030/cloudwave/internal/domain/track"
	"github.com/osa030/cloudwave/internal/infra/config"
	"github.com/osa030/cloudwave/internal/infra/connectivity"
	"github.com/osa030/cloudwave/internal/infra/metrics"
	"github.com/osa030/cloudwave/internal/infra/soundcloud"
	"github.com/osa030/cloudwave/internal/infra/storage"
	"github.com/osa030/cloudwave/internal/infra/watcher"
)

// components are the pieces shared by the daemon and the one-shot commands.
type components struct {
	store   *storage.Manager
	client  *soundcloud.Client
	checker connectivity.Checker
}

func newComponents(ctx context.Context, cfg *config.Config, offline bool) (*components, error) {
	store, err := storage.NewManager(cfg.StorePath(), cfg.SoundwavePath())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create storage manager")
	}

	client, err := soundcloud.New(ctx, soundcloud.Config{
		BaseURL:        cfg.SoundCloud.BaseURL,
		ConsumerKey:    cfg.SoundCloud.ConsumerKey,
		ClientID:       cfg.SoundCloud.ClientID,
		ClientSecret:   cfg.SoundCloud.ClientSecret,
		TokenURL:       cfg.SoundCloud.TokenURL,
		ConnectTimeout: cfg.SoundCloud.ConnectTimeout,
		ReadTimeout:    cfg.SoundCloud.ReadTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create SoundCloud client")
	}

	var checker connectivity.Checker
	if offline {
		checker = connectivity.NewStatic(false)
	} else {
		chain, err := connectivity.NewChainFromConfig(cfg.Connectivity)
		if err != nil {
			return nil, errors.Wrap(err, "invalid connectivity config")
		}
		checker = chain
	}

	return &components{store: store, client: client, checker: checker}, nil
}

// runDaemon runs the scheduler, connectivity gate, store watcher and status API
// until SIGINT or SIGTERM.
func runDaemon(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := newComponents(ctx, cfg, false)
	if err != nil {
		return err
	}

	m := metrics.New()
	notifier := notification.NewManager()
	defer notifier.Close()

	orch := refresh.New(cfg.Artist.Name, c.store, c.client, c.checker,
		refresh.WithMetrics(m),
		refresh.WithBroadcaster(notifier),
	)

	go orch.Gate().Run(ctx, cfg.Connectivity.PollInterval)

	storeWatcher, err := watcher.New(c.store.StorePath(), watcher.DefaultDebounce)
	if err != nil {
		return err
	}
	if err := storeWatcher.Start(ctx); err != nil {
		return err
	}
	defer storeWatcher.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-storeWatcher.Events():
				notifier.Broadcast(notification.NewEvent(notification.EventStoreChanged, ev))
			}
		}
	}()

	sched := scheduler.New(cfg.Schedule.InitialDelay, cfg.Schedule.Interval, func(ctx context.Context) {
		orch.Trigger(ctx)
	})
	sched.Start(ctx)
	defer sched.Stop()

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	var server *http.Server
	if !cfg.Server.Disabled {
		api := httpapi.New(ctx, orch, c.store, notifier,
			httpapi.WithAdminToken(cfg.Admin.Token),
			httpapi.WithMetrics(m),
		)
		server = api.NewHTTPServer(cfg.Server.Addr)
		if cfg.Admin.Token == "" {
			zlog.Warn().Msg("admin token not configured, refresh and cancel endpoints are disabled")
		}

		go func() {
			zlog.Info().Msgf("Starting status API: addr=%s", cfg.Server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErrCh <- err
			}
		}()
	}

	zlog.Info().Msgf("cloudwave started: artist=%s interval=%s", cfg.Artist.Name, cfg.Schedule.Interval)

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	// Abort a running download before waiting on the scheduler
	orch.Cancel()
	cancel()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Msgf("Failed to shutdown server: %v", err)
		}
	}

	zlog.Info().Msg("cloudwave stopped")
	return runErr
}

// runRefresh runs a single cycle in the foreground.
func runRefresh(cfg *config.Config, progress, offline bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := newComponents(ctx, cfg, offline)
	if err != nil {
		return err
	}

	var opts []refresh.Option
	var bar *progressbar.ProgressBar
	if progress {
		opts = append(opts, refresh.WithProgress(func(written, total int64) {
			if bar == nil {
				bar = newDownloadBar(total)
			}
			_ = bar.Set64(written)
		}))
	}

	orch := refresh.New(cfg.Artist.Name, c.store, c.client, c.checker, opts...)
	res := orch.Trigger(ctx)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	switch res.State {
	case refresh.StateCompleted:
		if res.TrackChanged && res.Track != nil {
			fmt.Printf("Track changed: %s (%s)\n", res.Track.Title, res.Track.PermalinkURL)
		} else {
			fmt.Printf("Track list updated for %s\n", cfg.Artist.Name)
		}
		return nil
	case refresh.StateWaitingForConnectivity:
		fmt.Println("Network unavailable, nothing changed")
		return nil
	default:
		if res.Err == nil {
			return errors.Newf("refresh ended in state %s", res.State)
		}
		return errors.Wrapf(res.Err, "refresh failed at %s", res.Step)
	}
}

func newDownloadBar(total int64) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		total,
		progressbar.OptionSetWriter(ansi.NewAnsiStderr()),
		// Same values as progressbar.ThemeASCII (v3.16+), which is unavailable in v3.15.
		progressbar.OptionSetTheme(progressbar.Theme{Saucer: "=", SaucerHead: ">", SaucerPadding: ".", BarStart: "[", BarEnd: "]"}),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Downloading soundwave..."),
		progressbar.OptionThrottle(65*time.Millisecond),
	)
}

// runShow prints the persisted store.
func runShow(cfg *config.Config, out io.Writer) error {
	store, err := storage.NewManager(cfg.StorePath(), cfg.SoundwavePath())
	if err != nil {
		return err
	}

	s, err := store.Load()
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Fprintf(out, "No track store at %s\n", store.StorePath())
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Artist: %s\n", s.ArtistName)
	fmt.Fprintf(out, "Tracks: %d\n", len(s.Tracks))
	for i, t := range s.Tracks {
		fmt.Fprintf(out, "  %s %3d  %-12d %s%s\n", marker(s, i), i, t.ID, t.Title, cachedSuffix(store, t))
	}
	return nil
}

func marker(s *track.Store, i int) string {
	switch i {
	case s.CurrentTrackIndex:
		return ">"
	case s.NextRandomIndex:
		return "+"
	default:
		return " "
	}
}

func cachedSuffix(store *storage.Manager, t track.Track) string {
	if store.HasImage(t.ID) {
		return "  [cached]"
	}
	return ""
}

// runReset deletes the persisted store so the next cycle refetches the artist.
func runReset(cfg *config.Config) error {
	store, err := storage.NewManager(cfg.StorePath(), cfg.SoundwavePath())
	if err != nil {
		return err
	}
	if err := store.Delete(); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", store.StorePath())
	return nil
}
