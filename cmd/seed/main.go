// Package main provides a CLI tool for seeding a backend from a fixture file.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"docgate/internal/config"
	appctx "docgate/internal/core/context"
	"docgate/internal/domain/auth"
	"docgate/internal/infrastructure/fixtures"
	"docgate/internal/infrastructure/storage/mongo"
	"docgate/internal/infrastructure/storage/postgres"
	"docgate/pkg/logger"
)

const (
	fixturesFlag = "fixtures"
	tokenFlag    = "token"
	timeoutFlag  = "timeout"
)

func main() {
	if err := newSeedCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newSeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a fixture file into the configured backend",
		Long: `The seed command migrates the configured backend and upserts the settings,
schemas, apps, documents and eligibility grants of a fixture file into it.`,
		RunE: runSeed,
		Args: cobra.NoArgs,
	}

	flags := cmd.Flags()
	flags.String(fixturesFlag, "", "fixture file to load (defaults to FIXTURES_PATH)")
	flags.String(tokenFlag, "", "print an access token for this user id after seeding")
	flags.Duration(timeoutFlag, 5*time.Minute, "bound on the whole seeding run")

	return cmd
}

func runSeed(cmd *cobra.Command, _ []string) error {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	logger.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	path, _ := flags.GetString(fixturesFlag)
	tokenFor, _ := flags.GetString(tokenFlag)
	timeout, _ := flags.GetDuration(timeoutFlag)

	if path == "" {
		path = cfg.FixturesPath
	}
	if path == "" {
		return fmt.Errorf("a fixture file is required: pass --%s or set FIXTURES_PATH", fixturesFlag)
	}

	file, err := fixtures.Load(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	switch cfg.Backend {
	case config.BackendPostgres:
		err = seedPostgres(ctx, cfg, file)
	case config.BackendMongo:
		err = seedMongo(ctx, cfg, file)
	default:
		return fmt.Errorf("backend %q cannot be seeded; the memory backend reads FIXTURES_PATH at startup", cfg.Backend)
	}
	if err != nil {
		log.Errorw("seeding failed", "backend", cfg.Backend, "error", err)
		return err
	}

	log.Infow("seeding completed successfully", "backend", cfg.Backend, "types", file.Types())

	if tokenFor == "" {
		return nil
	}
	jwtConfig := auth.DefaultJWTConfig(cfg.JWTSecret)
	jwtConfig.Issuer = cfg.JWTIssuer
	token, expires, err := auth.NewJWTService(jwtConfig).GenerateAccessToken(appctx.Caller{UserID: tokenFor})
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	log.Infow("access token issued", "user_id", tokenFor, "expires_at", expires)
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func seedPostgres(ctx context.Context, cfg *config.Config, file *fixtures.File) error {
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}
	return postgres.Seed(ctx, pool.Pool, file)
}

func seedMongo(ctx context.Context, cfg *config.Config, file *fixtures.File) error {
	db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
	if err != nil {
		return err
	}
	defer func() { _ = mongo.Disconnect(db) }()

	return mongo.Seed(ctx, db, file)
}
