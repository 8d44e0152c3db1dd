// Package app wires configuration, storage and services for the server and
// the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/fiche-cuisine/internal/config"
	"github.com/iliyamo/fiche-cuisine/internal/database"
	"github.com/iliyamo/fiche-cuisine/internal/repository"
	"github.com/iliyamo/fiche-cuisine/internal/service"
	"github.com/iliyamo/fiche-cuisine/internal/zenchef"
)

// App holds the shared dependencies of one process.
type App struct {
	Config       config.Config
	DB           *sqlx.DB
	Reservations *repository.ReservationRepo
	MenuItems    *repository.MenuItemRepo
	Settings     *repository.SettingRepo
	Ledger       *repository.IdempotencyRepo
	Sync         *service.SyncService
}

// New opens the database described by cfg, applies the schema and builds
// the repositories and the sync service. publisher may be nil.
func New(ctx context.Context, cfg config.Config, publisher service.EventPublisher) (*App, error) {
	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DBDriver, err)
	}
	if err := database.ApplySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.WithField("driver", cfg.DBDriver).Info("database ready")

	a := &App{
		Config:       cfg,
		DB:           db,
		Reservations: repository.NewReservationRepo(db),
		MenuItems:    repository.NewMenuItemRepo(db),
		Settings:     repository.NewSettingRepo(db),
		Ledger:       repository.NewIdempotencyRepo(db),
	}
	client := zenchef.NewClient(cfg.ZenchefBaseURL, zenchef.WithTimeout(cfg.ZenchefTimeout))
	a.Sync = service.NewSyncService(client, a.Reservations, a.Ledger, publisher, cfg.Location)
	return a, nil
}

// Publisher returns the broker publisher for cfg, or nil when no broker is
// configured.
func Publisher(cfg config.Config) service.EventPublisher {
	if cfg.RabbitURL == "" {
		return nil
	}
	return service.NewAMQPPublisher(cfg.RabbitURL)
}

// Close releases the database.
func (a *App) Close() error { return a.DB.Close() }
