package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aprovatas/margind/internal/config"
	"github.com/aprovatas/margind/internal/database"
	"github.com/aprovatas/margind/internal/events"
	"github.com/aprovatas/margind/internal/modules/buyingpower"
	"github.com/aprovatas/margind/internal/modules/journal"
	"github.com/aprovatas/margind/internal/modules/portfolio"
	"github.com/aprovatas/margind/internal/modules/securities"
	"github.com/aprovatas/margind/internal/scheduler"
	"github.com/aprovatas/margind/internal/server"
	"github.com/aprovatas/margind/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New(logger.Config{Level: "info", Pretty: true})
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().
		Str("account_currency", cfg.AccountCurrency).
		Msg("Starting margind")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Event bus
	bus := events.NewBus()
	eventManager := events.NewManager(bus, log)

	// Registries and the accounting core
	pairRegistry := securities.NewPropertiesRegistry()
	directory := securities.NewDirectory(log)

	journalRepo := journal.NewRepository(db.Conn(), log)
	portfolioManager := portfolio.NewManager(portfolio.Config{
		AccountCurrency: cfg.AccountCurrency,
		Events:          eventManager,
		Journal:         journalRepo,
		Log:             log,
	})

	// Buying-power models are registered per security as securities are
	// added; the registry starts empty. The factory stamps each new model
	// with the configured defaults.
	models := buyingpower.NewModelRegistry()
	modelFactory := func(strategy buyingpower.VenueStrategy, leverage float64) (buyingpower.Model, error) {
		if leverage == 0 {
			leverage = cfg.DefaultLeverage
		}
		base, err := buyingpower.NewSecurityMarginModel(buyingpower.Config{
			Leverage:                       leverage,
			RequiredFreeBuyingPowerPercent: cfg.FreeBuyingPowerPercent,
			Converter:                      portfolioManager.SettledCashBook(),
			Models:                         models,
			Log:                            log,
		})
		if err != nil {
			return nil, err
		}
		if strategy == "" || strategy == buyingpower.VenueStandard {
			return base, nil
		}
		return buyingpower.NewVenueModel(strategy, base, nil, log)
	}

	// Scheduler and periodic jobs
	sched := scheduler.New(log)
	if err := registerJobs(sched, cfg, portfolioManager, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Port:               cfg.Port,
		DevMode:            cfg.DevMode,
		Log:                log,
		PortfolioHandler:   portfolio.NewHandler(portfolioManager, log),
		BuyingPowerHandler: buyingpower.NewHandler(portfolioManager, directory, models, eventManager, log),
		JournalHandler:     journal.NewHandler(journalRepo, log),
		SetupHandler:       server.NewSetupHandlers(directory, pairRegistry, portfolioManager, models, modelFactory, log),
		SystemHandler:      server.NewSystemHandlers(log),
		EventsStream:       server.NewEventsStreamHandler(bus, log),
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Conversion-pair discovery for any currencies seeded at startup
	if err := portfolioManager.SettledCashBook().EnsureCurrencyDataFeeds(directory, pairRegistry); err != nil {
		log.Error().Err(err).Msg("Currency feed discovery failed")
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, pm *portfolio.Manager, db *database.DB) error {
	if err := sched.AddJob(cfg.SettlementScanSchedule, &scheduler.SettlementScanJob{Portfolio: pm}); err != nil {
		return err
	}
	if err := sched.AddJob(cfg.TradingDayRollSchedule, &scheduler.TradingDayRollJob{Portfolio: pm}); err != nil {
		return err
	}
	return sched.AddJob("0 0 * * * *", &scheduler.WALCheckpointJob{DB: db})
}
