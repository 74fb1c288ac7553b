// Command server runs the storeguard gRPC API: session lifecycle and tenant-scoped data access.
package main

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"

	"storeguard/backend/internal/audit"
	auditrepo "storeguard/backend/internal/audit/repository"
	"storeguard/backend/internal/config"
	"storeguard/backend/internal/credential"
	"storeguard/backend/internal/db"
	"storeguard/backend/internal/gate"
	"storeguard/backend/internal/grant/engine"
	grantrepo "storeguard/backend/internal/grant/repository"
	healthcheck "storeguard/backend/internal/health"
	"storeguard/backend/internal/lifecycle"
	"storeguard/backend/internal/logger"
	"storeguard/backend/internal/security"
	"storeguard/backend/internal/seed"
	"storeguard/backend/internal/server"
	sessionrepo "storeguard/backend/internal/session/repository"
	"storeguard/backend/internal/store"
	"storeguard/backend/internal/store/memory"
	"storeguard/backend/internal/store/postgres"
	"storeguard/backend/internal/telemetry"
	otelsetup "storeguard/backend/internal/telemetry/otel"
	userrepo "storeguard/backend/internal/user/repository"
)

// shutdownDrain is how long health reports NOT_SERVING before the listener stops.
const shutdownDrain = 2 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.Setup(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

// repos groups the persistence backends, Postgres or in-memory.
type repos struct {
	pool     *pgxpool.Pool
	engine   store.Engine
	sessions sessionrepo.Repository
	users    userrepo.Repository
	grants   grantrepo.Repository
	audit    auditrepo.Repository
}

func openRepos(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repos, error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set; using in-memory stores (development only)")
		return &repos{
			engine:   memory.New(),
			sessions: sessionrepo.NewMemoryRepository(time.Now),
			users:    userrepo.NewMemoryRepository(),
			grants:   grantrepo.NewMemoryRepository(),
			audit:    auditrepo.NewMemoryRepository(),
		}, nil
	}
	pool, err := db.OpenPool(ctx, db.PoolConfig{ConnString: cfg.DatabaseURL}, log)
	if err != nil {
		return nil, err
	}
	return &repos{
		pool:     pool,
		engine:   postgres.New(pool),
		sessions: sessionrepo.NewPostgresRepository(pool, time.Now),
		users:    userrepo.NewPostgresRepository(pool),
		grants:   grantrepo.NewPostgresRepository(pool),
		audit:    auditrepo.NewPostgresRepository(pool),
	}, nil
}

func signingKeys(cfg *config.Config, log zerolog.Logger) (crypto.Signer, crypto.PublicKey, error) {
	if cfg.JWTPrivateKey != "" || cfg.JWTPublicKey != "" {
		return security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	}
	if cfg.IsProduction() {
		return nil, nil, errors.New("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required in production")
	}
	log.Warn().Msg("JWT keys not set; using an ephemeral ES256 key, tokens will not survive a restart")
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return k, k.Public(), nil
}

func newResolver(ctx context.Context, cfg *config.Config, src engine.AssignmentSource) (engine.Resolver, error) {
	if cfg.GrantEngine == config.GrantEngineOPA {
		return engine.NewOPAResolver(ctx, src)
	}
	return engine.NewTableResolver(src), nil
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	providers, err := otelsetup.NewProviders(ctx, otelsetup.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: cfg.ServiceName,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(sctx)
	}()
	metrics := telemetry.GetMetrics()

	r, err := openRepos(ctx, cfg, log)
	if err != nil {
		return err
	}
	if r.pool != nil {
		defer r.pool.Close()
	} else if _, err := seed.Apply(ctx, seed.Deps{
		Users:  r.users,
		Grants: r.grants,
		Hasher: security.NewHasher(cfg.BcryptCost),
		Logger: log,
	}); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	signer, pub, err := signingKeys(cfg, log)
	if err != nil {
		return err
	}
	tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(),
		security.WithClockSkew(cfg.ClockSkew()),
		security.WithVerifyTimeout(cfg.VerifyWait()),
	)

	verifier := &credential.Chain{
		Password: credential.NewPasswordVerifier(r.users, security.NewHasher(cfg.BcryptCost)),
	}
	if cfg.OIDCIssuerURL != "" {
		oidcVerifier, err := credential.NewOIDCVerifier(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID, r.users)
		if err != nil {
			return fmt.Errorf("oidc: %w", err)
		}
		verifier.External = oidcVerifier
	}

	grants, err := newResolver(ctx, cfg, r.grants)
	if err != nil {
		return fmt.Errorf("grant engine: %w", err)
	}

	mgr := lifecycle.NewManager(r.sessions, tokens, verifier, lifecycle.Config{
		RefreshTTL:         cfg.RefreshTTL(),
		MaxSessionsPerUser: cfg.MaxSessionsPerUser,
		GraceWindow:        cfg.GraceWindow(),
		RefreshTimeout:     cfg.RefreshWait(),
		ReuseGrace:         cfg.ReuseGrace(),
	},
		lifecycle.WithLogger(log.With().Str("component", "lifecycle").Logger()),
		lifecycle.WithStoreAccess(grants),
		lifecycle.WithMetrics(metrics),
	)

	auditLog := audit.NewLogger(r.audit, log.With().Str("component", "audit").Logger(),
		audit.WithEmitter(otelsetup.NewAuditEmitter(providers.LoggerProvider)),
	)
	g := gate.New(r.engine, grants, auditLog,
		gate.WithResponder(mgr),
		gate.WithDenialPolicy(cfg.DenialThreshold, cfg.DenialWindowDuration()),
		gate.WithGrantTimeout(cfg.GrantWait()),
		gate.WithLogger(log.With().Str("component", "gate").Logger()),
		gate.WithMetrics(metrics),
	)

	hs := health.NewServer()
	var pinger healthcheck.Pinger
	if r.pool != nil {
		pinger = r.pool
	}
	checker := healthcheck.NewChecker(hs, log, server.ServiceNames(), healthcheck.PingProbe("postgres", pinger))
	go checker.Run(ctx, 10*time.Second)

	srv := server.New(server.Deps{
		Sessions:      mgr,
		Data:          g,
		Tokens:        tokens,
		SessionActive: mgr.SessionActive,
		Health:        hs,
		Logger:        log,
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.GRPCAddr).Str("grant_engine", cfg.GrantEngine).Msg("gRPC server listening")
		serveErr <- srv.Serve(lis)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down gRPC server")
	checker.Shutdown()
	time.Sleep(shutdownDrain)
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("graceful stop timed out; forcing")
		srv.Stop()
	}
	log.Info().Msg("gRPC server stopped")
	// Let in-flight audit mirror emits finish before the OTel providers shut down.
	time.Sleep(telemetry.ShutdownDrainDuration)
	return nil
}
