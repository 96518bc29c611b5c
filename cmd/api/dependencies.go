package api

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/FACorreiaa/loci-proximity-api/internal/domain/city"
	"github.com/FACorreiaa/loci-proximity-api/internal/domain/discover"
	"github.com/FACorreiaa/loci-proximity-api/internal/domain/poi"
	"github.com/FACorreiaa/loci-proximity-api/internal/provider"
	"github.com/FACorreiaa/loci-proximity-api/pkg/config"
	"github.com/FACorreiaa/loci-proximity-api/pkg/db"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	Provider provider.Client

	// Repositories
	CityRepo city.Repository
	POIRepo  poi.Repository

	// Services
	CityService     city.Service
	DiscoverService discover.Service
	POIService      poi.Service

	// Handlers
	DiscoverHandler *discover.Handler
	POIHandler      *poi.Handler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	deps.initRepositories()
	deps.initServices()
	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) initRepositories() {
	d.CityRepo = city.NewCityRepository(d.DB.Pool, d.Logger)
	d.POIRepo = poi.NewRepository(d.DB.Pool, d.Logger)
	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices() {
	pc := d.Config.Provider
	d.Provider = provider.NewGoogleClient(provider.Config{
		APIKey:            pc.APIKey,
		BaseURL:           pc.BaseURL,
		Language:          pc.Language,
		RequestsPerSecond: pc.RequestsPerSecond,
		Burst:             pc.Burst,
		Timeout:           pc.Timeout,
		CacheTTL:          pc.CacheTTL,
	}, d.Logger)

	cityService := city.NewCityService(d.CityRepo, d.Provider, pc.Language, d.Logger)
	d.CityService = cityService
	d.DiscoverService = discover.NewServiceImpl(cityService, d.Logger)
	d.POIService = poi.NewServiceImpl(d.POIRepo, cityService, d.CityRepo, d.Provider, poi.Config{
		Language:          pc.Language,
		BackfillDelay:     d.Config.Resolver.BackfillDelay,
		DetailConcurrency: d.Config.Resolver.DetailConcurrency,
	}, d.Logger)

	d.Logger.Info("services initialized")
}

func (d *Dependencies) initHandlers() {
	d.DiscoverHandler = discover.NewHandler(d.DiscoverService, d.CityService, d.Logger)
	d.POIHandler = poi.NewHandler(d.POIService, d.Logger)
	d.Logger.Info("handlers initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
