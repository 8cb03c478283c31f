package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/target/cashier/config"
	"github.com/target/cashier/internal/migrate"
)

// The archive sees one upsert per finished job plus the periodic prune, so a small pool is enough.
const (
	archiveMaxOpenConns    = 4
	archiveMaxIdleConns    = 2
	archiveConnMaxLifetime = 30 * time.Minute
	archivePingTimeout     = 5 * time.Second
)

// ConnectArchive opens the Postgres database that holds finished job outcomes.
func ConnectArchive(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", archiveDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open job archive: %w", err)
	}
	db.SetMaxOpenConns(archiveMaxOpenConns)
	db.SetMaxIdleConns(archiveMaxIdleConns)
	db.SetConnMaxLifetime(archiveConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, archivePingTimeout)
	defer cancel()
	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close job archive: %w", closeErr))
		}
		return nil, fmt.Errorf("ping job archive: %w", pingErr)
	}

	if logger != nil {
		logger.InfoContext(ctx, "job archive connected",
			"host", cfg.Host,
			"port", cfg.Port,
			"database", cfg.Name,
			"retention", cfg.ArchiveRetention,
		)
	}
	return db, nil
}

// MigrateArchive applies the embedded job_outcomes migrations.
func MigrateArchive(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db); err != nil {
		return fmt.Errorf("migrate job archive: %w", err)
	}
	if logger != nil {
		versions, err := migrate.Versions()
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "job archive schema ready", "migrations", len(versions))
	}
	return nil
}

// archiveDSN builds the connection URL; url.URL escapes credentials.
func archiveDSN(cfg config.DBConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	q := u.Query()
	q.Set("sslmode", cfg.SSLMode)
	q.Set("application_name", "cashier")
	u.RawQuery = q.Encode()
	return u.String()
}
