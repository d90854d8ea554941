// Package migration creates the schema on startup so a fresh install is
// usable without manual steps.
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	alertdomain "github.com/moneyradar/moneyradar/internal/alert/domain"
	catalogdomain "github.com/moneyradar/moneyradar/internal/catalog/domain"
	experimentdomain "github.com/moneyradar/moneyradar/internal/experiment/domain"
	revenuedomain "github.com/moneyradar/moneyradar/internal/revenue/domain"
	scoredomain "github.com/moneyradar/moneyradar/internal/score/domain"
	subscriptiondomain "github.com/moneyradar/moneyradar/internal/subscription/domain"
	usagedomain "github.com/moneyradar/moneyradar/internal/usage/domain"
	"gorm.io/gorm"
)

//go:embed sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"

// RunMigrations applies the embedded SQL migrations against postgres.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Closing the migrator would close the shared *sql.DB.

	return nil
}

// AutoMigrate is the schema path for sqlite and mysql, where the embedded
// postgres migrations do not apply.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&catalogdomain.Product{},
		&catalogdomain.Plan{},
		&subscriptiondomain.Subscription{},
		&usagedomain.UsageRecord{},
		&revenuedomain.RevenueEvent{},
		&revenuedomain.MRRSnapshot{},
		&alertdomain.Alert{},
		&scoredomain.CustomerScore{},
		&experimentdomain.Experiment{},
	)
}
