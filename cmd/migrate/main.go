// migrate applies or rolls back the embedded schema migrations.
package main

import (
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"storeguard/backend/internal/config"
	"storeguard/backend/internal/db/migrate"
	"storeguard/backend/internal/logger"
)

type globals struct {
	dsn string
	log zerolog.Logger
}

type upCmd struct{}

func (upCmd) Run(g *globals) error {
	if err := migrate.Run(g.dsn, migrate.Up); err != nil {
		return err
	}
	g.log.Info().Msg("migrations applied")
	return nil
}

type downCmd struct{}

func (downCmd) Run(g *globals) error {
	if err := migrate.Run(g.dsn, migrate.Down); err != nil {
		return err
	}
	g.log.Info().Msg("migrations rolled back")
	return nil
}

type versionCmd struct{}

func (versionCmd) Run(g *globals) error {
	v, dirty, err := migrate.Version(g.dsn)
	if err != nil {
		return err
	}
	fmt.Printf("version %d dirty=%t\n", v, dirty)
	return nil
}

var cli struct {
	Up      upCmd      `cmd:"" default:"1" help:"Apply all pending migrations."`
	Down    downCmd    `cmd:"" help:"Roll back every migration."`
	Version versionCmd `cmd:"" help:"Print the current schema version."`
}

func main() {
	kctx := kong.Parse(&cli, kong.Name("migrate"), kong.Description("Manage the storeguard database schema."))

	cfg, err := config.Load()
	kctx.FatalIfErrorf(err)
	if cfg.DatabaseURL == "" {
		kctx.Fatalf("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}
	g := &globals{dsn: cfg.DatabaseURL, log: logger.Setup(cfg.LogLevel, cfg.LogPretty)}
	kctx.FatalIfErrorf(kctx.Run(g))
}
