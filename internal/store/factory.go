package store

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pkddi-mcp-server/internal/domain"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Open returns the store selected by config. A nil Store with a nil error means
// persistence is disabled. PostgreSQL schemas are migrated first when
// config.AutoMigrate is set.
func Open(config domain.StoreConfig, logger *logrus.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(config.Driver)) {
	case "", DriverNone:
		return nil, nil
	case DriverSQLite:
		if config.DSN == "" {
			return nil, fmt.Errorf("store.dsn is required for the sqlite driver")
		}
		s, err := NewSQLiteStore(config.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		if config.DSN == "" {
			return nil, fmt.Errorf("store.dsn is required for the postgres driver")
		}
		if config.AutoMigrate {
			if err := MigratePostgres(config.DSN, logger); err != nil {
				return nil, fmt.Errorf("failed to migrate run store: %w", err)
			}
		}
		s, err := NewPostgresStoreFromURL(config.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", config.Driver)
	}
}
