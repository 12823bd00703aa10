package store

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewMigrator returns a migrate instance over the embedded migrations.
// Callers own Close.
func NewMigrator(databaseURL string, log logrus.FieldLogger) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("migration init: %w", err)
	}
	if log != nil {
		m.Log = &migrateLogger{log: log}
	}
	return m, nil
}

// Migrate applies every pending up migration.
func Migrate(databaseURL string, log logrus.FieldLogger) error {
	m, err := NewMigrator(databaseURL, log)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// the pgx/v5 driver registers itself under the pgx5 scheme
func migrateURL(u string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(u, prefix) {
			return "pgx5://" + strings.TrimPrefix(u, prefix)
		}
	}
	return u
}

type migrateLogger struct {
	log logrus.FieldLogger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.log.Infof(strings.TrimSpace(format), v...)
}

func (l *migrateLogger) Verbose() bool { return false }
