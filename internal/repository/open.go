package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/stroke-risk-server/internal/domain"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Open returns the configured run store behind a circuit breaker. The
// "none" driver disables auditing and returns nil.
func Open(ctx context.Context, cfg domain.StorageConfig, logger *logrus.Logger) (domain.RunRepository, error) {
	var (
		store domain.RunRepository
		err   error
	)

	switch strings.ToLower(cfg.Driver) {
	case DriverNone, "":
		logger.Info("Run auditing disabled")
		return nil, nil
	case DriverSQLite:
		store, err = NewSQLiteStore(cfg.SQLitePath)
	case DriverPostgres:
		store, err = NewPostgresStoreFromURL(ctx, cfg.PostgresURL, cfg.MaxOpenConns, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s run store: %w", cfg.Driver, err)
	}

	logger.WithField("driver", cfg.Driver).Info("Run store ready")
	return NewGuardedStore(store, cfg.BreakerFailures, cfg.BreakerTimeout, logger), nil
}
