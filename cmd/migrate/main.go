package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pendingMigrations returns the files not yet recorded in the ledger, sorted
// by name so numbered migrations apply in order.
func pendingMigrations(files []string, applied map[string]bool) []string {
	pending := []string{}
	for _, file := range files {
		if !applied[filepath.Base(file)] {
			pending = append(pending, file)
		}
	}
	sort.Strings(pending)
	return pending
}

func appliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	applied := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, file string) error {
	content, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, string(content)); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, filepath.Base(file)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = "migrations"
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Error("failed to connect", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		logger.Error("failed to list migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		logger.Error("failed to read migration ledger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	pending := pendingMigrations(files, applied)
	if len(pending) == 0 {
		logger.Info("no pending migrations")
		return
	}
	for _, file := range pending {
		if err := applyMigration(ctx, pool, file); err != nil {
			logger.Error("failed to apply migration", slog.String("file", file), slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("applied migration", slog.String("file", file))
	}
}
