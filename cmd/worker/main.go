// worker reaps expired and revoked sessions older than SESSION_RETENTION.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"storeguard/backend/internal/config"
	"storeguard/backend/internal/db"
	"storeguard/backend/internal/logger"
	sessionrepo "storeguard/backend/internal/session/repository"
	"storeguard/backend/internal/telemetry"
	otelsetup "storeguard/backend/internal/telemetry/otel"
)

// Reaper is the slice of the session repository the worker needs.
type Reaper interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type globals struct {
	cfg    *config.Config
	log    zerolog.Logger
	reaper Reaper
}

type onceCmd struct{}

func (onceCmd) Run(ctx context.Context, g *globals) error {
	_, err := sweep(ctx, g)
	return err
}

type runCmd struct {
	Interval time.Duration `help:"Sweep interval; defaults to SWEEP_INTERVAL."`
}

func (c runCmd) Run(ctx context.Context, g *globals) error {
	interval := c.Interval
	if interval <= 0 {
		interval = g.cfg.Sweep()
	}
	g.log.Info().Dur("interval", interval).Dur("retention", g.cfg.Retention()).Msg("session reaper started")
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := sweep(ctx, g); err != nil && ctx.Err() == nil {
			g.log.Error().Err(err).Msg("sweep failed")
		}
		select {
		case <-ctx.Done():
			g.log.Info().Msg("session reaper stopped")
			return nil
		case <-t.C:
		}
	}
}

func sweep(ctx context.Context, g *globals) (int64, error) {
	before := time.Now().Add(-g.cfg.Retention())
	n, err := g.reaper.DeleteExpired(ctx, before)
	if err != nil {
		return 0, err
	}
	telemetry.Add(ctx, telemetry.GetMetrics().SessionsReapedTotal, n)
	g.log.Info().Int64("deleted", n).Time("before", before).Msg("sessions reaped")
	return n, nil
}

var cli struct {
	Run  runCmd  `cmd:"" default:"1" help:"Reap sessions periodically until interrupted."`
	Once onceCmd `cmd:"" help:"Reap once and exit."`
}

func main() {
	kctx := kong.Parse(&cli, kong.Name("worker"), kong.Description("Background maintenance for storeguard."))

	cfg, err := config.Load()
	kctx.FatalIfErrorf(err)
	log := logger.Setup(cfg.LogLevel, cfg.LogPretty)
	if cfg.DatabaseURL == "" {
		kctx.Fatalf("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: cfg.ServiceName + "-worker",
		Logger:      log,
	})
	kctx.FatalIfErrorf(err)
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(sctx)
	}()

	pool, err := db.OpenPool(ctx, db.PoolConfig{ConnString: cfg.DatabaseURL}, log)
	kctx.FatalIfErrorf(err)
	defer pool.Close()

	g := &globals{cfg: cfg, log: log, reaper: sessionrepo.NewPostgresRepository(pool, time.Now)}
	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.FatalIfErrorf(kctx.Run(g))
}
