// Package dbclient opens the document store named by the configuration.
package dbclient

import (
	"context"
	"fmt"
	"log/slog"

	"canvas/internal/config"
	"canvas/internal/domain"
	"canvas/internal/secret"
	"canvas/internal/storage"
)

// Open returns the domain.Store for cfg.Driver. When cfg.PasswordKey is set
// the password is read from secrets and injected into the DSN.
func Open(ctx context.Context, cfg config.Store, secrets secret.SecretStore, logger *slog.Logger) (domain.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	password, err := lookupPassword(cfg, secrets)
	if err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case "sqlite":
		if password != "" {
			logger.Warn("store.password_key ignored for sqlite")
		}
		return openSQL(storage.SQLite, cfg.DSN, cfg, logger)
	case "mysql":
		dsn, err := buildMySQLDSN(cfg.DSN, password)
		if err != nil {
			return nil, err
		}
		return openSQL(storage.MySQL, dsn, cfg, logger)
	case "postgres":
		dsn, err := buildPostgresDSN(cfg.DSN, password)
		if err != nil {
			return nil, err
		}
		return openSQL(storage.Postgres, dsn, cfg, logger)
	case "mongodb":
		uri, err := mongoURI(cfg.DSN, password)
		if err != nil {
			return nil, err
		}
		store, err := storage.OpenMongo(ctx, uri, mongoDatabase(cfg.DSN, cfg.Database), cfg.PollInterval, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}

func lookupPassword(cfg config.Store, secrets secret.SecretStore) (string, error) {
	if cfg.PasswordKey == "" {
		return "", nil
	}
	if secrets == nil {
		return "", fmt.Errorf("read store password: no secret store")
	}
	v, err := secrets.Get(cfg.PasswordKey)
	if err != nil {
		return "", fmt.Errorf("read store password: %w", err)
	}
	if v == nil {
		return "", fmt.Errorf("read store password: secret %q not found (set %s)", cfg.PasswordKey, secret.EnvName(cfg.PasswordKey))
	}
	return string(v), nil
}

func openSQL(dialect storage.Dialect, dsn string, cfg config.Store, logger *slog.Logger) (domain.Store, error) {
	db, err := storage.Open(dialect, dsn)
	if err != nil {
		return nil, err
	}
	return storage.NewStore(db, cfg.PollInterval, logger), nil
}
