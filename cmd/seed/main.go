// seed inserts development sample data into Postgres. Idempotent: skips if the dev owner exists.
package main

import (
	"context"
	"fmt"
	"os"

	"storeguard/backend/internal/config"
	"storeguard/backend/internal/db"
	grantrepo "storeguard/backend/internal/grant/repository"
	"storeguard/backend/internal/logger"
	"storeguard/backend/internal/security"
	"storeguard/backend/internal/seed"
	userrepo "storeguard/backend/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.Setup(cfg.LogLevel, cfg.LogPretty)
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}
	if cfg.IsProduction() {
		log.Fatal().Msg("refusing to seed a production database")
	}

	ctx := context.Background()
	pool, err := db.OpenPool(ctx, db.PoolConfig{ConnString: cfg.DatabaseURL}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	defer pool.Close()

	applied, err := seed.Apply(ctx, seed.Deps{
		Users:  userrepo.NewPostgresRepository(pool),
		Grants: grantrepo.NewPostgresRepository(pool),
		Stores: seed.NewPostgresStores(pool),
		Hasher: security.NewHasher(cfg.BcryptCost),
		Logger: log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("seed")
	}
	if applied {
		fmt.Printf("Dev logins (password %s): %s, %s, %s\n", seed.DevPassword, seed.OwnerEmail, seed.VendorEmail, seed.AdminEmail)
	}
}
