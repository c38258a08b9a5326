package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/c21501/rfc-service/internal/config"
	"github.com/c21501/rfc-service/internal/logging"
)

var envFile string

func main() {
	root := &cobra.Command{
		Use:   "rfcd",
		Short: "RFC lifecycle service",
		Long:  "Tracks Request for Change records through approval and execution, synchronized with a Planka board.",
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "Path to .env file")

	root.AddCommand(serveCmd(), seedCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// connectDatabase opens a pgx pool and waits for the database to accept
// connections, retrying with exponential backoff so the service survives
// starting before its database does.
func connectDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	err = backoff.Retry(func() error {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			logger.Warn("database not ready, retrying", "error", pingErr)
			return pingErr
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	return pool, nil
}
