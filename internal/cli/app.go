package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"reebill/internal/audit"
	"reebill/internal/config"
	"reebill/internal/eventbus"
	"reebill/internal/observability/metrics"
	"reebill/internal/reebill/application"
	reebillpostgres "reebill/internal/reebill/infrastructure/postgres"
	"reebill/internal/reebill/infrastructure/renewable"
	"reebill/internal/reebill/interfaces"
	utilbillapp "reebill/internal/utilbill/application"
	utilbillpostgres "reebill/internal/utilbill/infrastructure/postgres"
	"reebill/internal/utilbill/infrastructure/rateclass"
	"reebill/migrations"
)

// app is the wired set of services a billing command runs against.
type app struct {
	db        *sql.DB
	catalog   *rateclass.Catalog
	utilBills *utilbillapp.Service
	reeBills  *application.Service
}

func loadCatalog(cfg config.Config) (*rateclass.Catalog, error) {
	if cfg.RateClassCatalog == "" {
		return rateclass.Default(), nil
	}
	return rateclass.Load(cfg.RateClassCatalog)
}

// errNoDatabase is returned by commands that work on stored bills when no
// database is configured.
var errNoDatabase = errors.New("no database configured: set DATABASE_URL or database_url to work with stored bills " +
	"(use \"reebill compute FILE\" for a bill without storage)")

// newApp wires the postgres repositories, the event bus and both services.
func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	if cfg.DatabaseURL == "" {
		return nil, errNoDatabase
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	a := &app{db: db, catalog: catalog}
	utilBillRepo := utilbillpostgres.NewUtilBillRepository(db)
	reeBillRepo := reebillpostgres.NewReeBillRepository(db)
	paymentRepo := reebillpostgres.NewPaymentRepository(db)
	metrics.Init(a.db, logger)

	bus := eventbus.NewInMemoryBus()
	publisher, err := interfaces.NewBusPublisher(bus)
	if err != nil {
		a.Close()
		return nil, err
	}
	logged := interfaces.NewLoggingPublisher(logger)
	eventbus.SubscribeTyped(bus, logged.PublishChargesComputed)
	eventbus.SubscribeTyped(bus, logged.PublishReeBillIssued)

	a.utilBills, err = utilbillapp.NewService(utilBillRepo, catalog,
		utilbillapp.WithPublisher(publisher),
		utilbillapp.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []application.Option{
		application.WithPublisher(publisher),
		application.WithLogger(logger),
		application.WithRates(application.Rates{Discount: cfg.DiscountRate, LateCharge: cfg.LateChargeRate}),
		application.WithWorkers(cfg.ComputeWorkers),
	}
	if cfg.RenewableEnergyFile != "" {
		src, err := renewable.Load(cfg.RenewableEnergyFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, application.WithRenewableSource(src))
	}
	a.reeBills, err = application.NewService(reeBillRepo, utilBillRepo, paymentRepo, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	interfaces.SubscribeRecompute(bus, a.reeBills, logger)

	interfaces.SubscribeAudit(bus, audit.NewRepository(db), auditActor(), logger)
	return a, nil
}

func auditActor() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "reebill"
}

// Close releases the database connection, if any.
func (a *app) Close() {
	if a == nil || a.db == nil {
		return
	}
	_ = a.db.Close()
}
