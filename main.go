package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/csrf"
	"github.com/robfig/cron/v3"

	"github.com/payback159/raidsplit/pkg/app"
	"github.com/payback159/raidsplit/pkg/backend"
	"github.com/payback159/raidsplit/pkg/config"
	"github.com/payback159/raidsplit/pkg/handlers"
	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/security"
	"github.com/payback159/raidsplit/pkg/session"
	"github.com/payback159/raidsplit/pkg/storage"
	"github.com/payback159/raidsplit/pkg/web"
)

func main() {
	logging.InitLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.LogCritical("Failed to load configuration", err)
		os.Exit(1)
	}
	logging.SetLevel(cfg.LogLevel)

	if err := run(cfg); err != nil {
		logging.LogCritical("Server stopped with error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	client := backend.NewClient(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout(),
	})
	checkBackend(client)

	sessions := session.NewStore(cfg.SessionTTL(), func(id string, s *app.Shell) {
		s.Close()
	})
	newShell := func(id string) (*app.Shell, error) {
		return app.New(db.Namespace(id), client), nil
	}

	templates, err := web.Templates()
	if err != nil {
		return err
	}

	limiter := security.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateBurst)
	h := handlers.NewHandler(templates, sessions, newShell, cfg.IsProduction())

	var handler http.Handler = h.Routes(limiter)
	if cfg.IsProduction() {
		handler = csrf.Protect([]byte(cfg.CSRFKey), csrf.Secure(true), csrf.Path("/"))(handler)
	}

	jobs, err := startHousekeeping(cfg, sessions, limiter, db)
	if err != nil {
		return err
	}
	defer func() { <-jobs.Stop().Done() }()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logging.LogInfo("Server starting",
			"addr", cfg.ListenAddr,
			"env", cfg.Env,
			"backend", client.BaseURL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logging.LogInfo("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogError("Graceful shutdown failed", err)
	}

	sessions.Range(func(id string, _ *app.Shell) {
		sessions.Delete(id)
	})
	return nil
}

// checkBackend logs whether the splitter backend answers. The console still
// starts when it does not.
func checkBackend(client *backend.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := client.DBStatus(ctx)
	if err != nil {
		logging.LogWarn("Backend not reachable at startup",
			"backend", client.BaseURL(),
			"error", err.Error())
		return
	}
	logging.LogInfo("Backend reachable",
		"backend", client.BaseURL(),
		"db_status", status.Status)
}

// startHousekeeping schedules session expiry, rate limiter cleanup and the
// purge of stale persisted state
func startHousekeeping(cfg config.Config, sessions *session.Store[*app.Shell], limiter *security.RateLimiter, db *storage.SQLite) (*cron.Cron, error) {
	c := cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)))

	_, err := c.AddFunc(cfg.HousekeepingSchedule, func() {
		expired := sessions.CleanupExpired()
		stale := limiter.CleanupStale(cfg.SessionTTL())

		purged, err := db.PurgeOlderThan(time.Now().Add(-cfg.StateRetention()))
		if err != nil {
			logging.LogError("Failed to purge stale state", err)
		}

		logging.LogSystemStats(
			"sessions", sessions.GetSessionCount(),
			"expired_sessions", expired,
			"rate_limiters", limiter.Count(),
			"stale_limiters", stale,
			"purged_entries", purged)
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	logging.LogInfo("Housekeeping scheduled", "cron", cfg.HousekeepingSchedule)
	return c, nil
}
