// Package main is the entry point for the lobby daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arenahall/lobbyd/internal/ability"
	"github.com/arenahall/lobbyd/internal/config"
	"github.com/arenahall/lobbyd/internal/cooldown"
	"github.com/arenahall/lobbyd/internal/countdown"
	"github.com/arenahall/lobbyd/internal/domain"
	"github.com/arenahall/lobbyd/internal/guard"
	"github.com/arenahall/lobbyd/internal/ipc"
	"github.com/arenahall/lobbyd/internal/lobby"
	"github.com/arenahall/lobbyd/internal/notify"
	"github.com/arenahall/lobbyd/internal/sched"
	"github.com/arenahall/lobbyd/internal/session"
	"github.com/arenahall/lobbyd/internal/store"
	"github.com/arenahall/lobbyd/internal/telemetry"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to configuration JSON or YAML file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("lobbyd %s (commit=%s, built=%s)\n", version, commit, date)
		os.Exit(0)
	}

	// --config flag > LOBBYD_CONFIG > config file next to exe or in cwd > env only.
	var (
		cfg *config.Config
		err error
	)
	if path := config.Resolve(*configPath); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		fatal(fmt.Sprintf("load config: %v", err))
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		fatal(err.Error())
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, "lobbyd", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown", "err", err)
		}
	}()

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	journal, err := store.OpenJournal(ctx, db)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	scheduler := sched.New(
		sched.WithLogger(logger),
		sched.WithTickInterval(cfg.TickInterval()),
	)

	registry := ability.Defaults(cooldown.NewLedger())
	for id, wait := range cfg.AbilityCooldowns() {
		if err := registry.SetCooldown(id, wait); err != nil {
			return fmt.Errorf("ability %s: %w", id, err)
		}
	}

	hub := notify.NewHub(cfg.NotifyTimeout(), logger)

	g := guard.NewGuard(guard.Config{RateLimitPerMinute: cfg.RateLimitPerMinute})
	sweep := scheduler.Ticks(time.Minute)
	scheduler.Every(sweep, sweep, func() error {
		if n := g.Sweep(); n > 0 {
			logger.Debug("rate buckets swept", "dropped", n)
		}
		return nil
	})

	coord, err := lobby.New(lobbyConfig(cfg), session.NewMachine(logger), scheduler, registry, hub,
		lobby.WithJournal(journal),
		lobby.WithEffectSink(logSink{log: logger}),
		lobby.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("wire coordinator: %w", err)
	}
	defer coord.Close()

	srv := ipc.NewServer(&ipc.Handler{
		Coordinator: coord,
		Events:      journal,
		Hub:         hub,
		Guard:       g,
		Log:         logger,
	}, cfg.ListenAddr)

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return scheduler.Run(gctx)
	})
	eg.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		scheduler.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Nothing needs loading before recruiting opens.
	if err := coord.Ready(ctx); err != nil {
		logger.Error("open recruiting", "err", err)
	}
	logger.Info("lobbyd listening",
		"url", formatListenURL(cfg.ListenAddr),
		"session", journal.SessionID(),
		"minimum_participants", cfg.MinimumParticipants,
	)

	return eg.Wait()
}

func lobbyConfig(cfg *config.Config) lobby.Config {
	return lobby.Config{
		MinimumParticipants: cfg.MinimumParticipants,
		Countdown: countdown.ChainSpec{
			Total:    cfg.Countdown.TotalSec,
			FarStep:  cfg.Countdown.FarStepSec,
			NearStep: cfg.Countdown.NearStepSec,
			NearFrom: cfg.Countdown.NearFromSec,
		},
		StartingDelay: cfg.StartingDelay(),
		RearmOnJoin:   cfg.RearmOnJoin,
		Messages: lobby.Messages{
			Countdown:    cfg.Messages.Countdown,
			Joined:       cfg.Messages.Joined,
			Quit:         cfg.Messages.Quit,
			InProgress:   cfg.Messages.InProgress,
			LoginLoading: cfg.Messages.LoginLoading,
			Started:      cfg.Messages.Started,
		},
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// logSink records ability effects until a world simulation consumes them.
type logSink struct {
	log *slog.Logger
}

func (s logSink) Apply(_ context.Context, eff domain.Effect) error {
	s.log.Info("effect", "capability", eff.Capability, "participant", eff.Actor, "kind", eff.Kind, "velocity", eff.Velocity)
	return nil
}

// formatListenURL turns a listen address such as ":9810" into a URL.
func formatListenURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func fatal(msg string) {
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", msg)
	os.Exit(1)
}
