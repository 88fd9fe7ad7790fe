package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	temporalsdkclient "go.temporal.io/sdk/client"

	redisclient "github.com/civiclens/civiclens-backend/internal/clients/redis"
	"github.com/civiclens/civiclens-backend/internal/data/db"
	"github.com/civiclens/civiclens-backend/internal/data/repos"
	"github.com/civiclens/civiclens-backend/internal/geo"
	"github.com/civiclens/civiclens-backend/internal/importers"
	"github.com/civiclens/civiclens-backend/internal/jobs"
	"github.com/civiclens/civiclens-backend/internal/jobs/pipeline/document_process"
	"github.com/civiclens/civiclens-backend/internal/jobs/pipeline/event_pull"
	"github.com/civiclens/civiclens-backend/internal/jobs/pipeline/image_vision"
	"github.com/civiclens/civiclens-backend/internal/jobs/pipeline/proposal_enrich"
	"github.com/civiclens/civiclens-backend/internal/jobs/pipeline/proposal_fetch"
	jobrt "github.com/civiclens/civiclens-backend/internal/jobs/runtime"
	"github.com/civiclens/civiclens-backend/internal/platform/gcp"
	"github.com/civiclens/civiclens-backend/internal/platform/localmedia"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
	"github.com/civiclens/civiclens-backend/internal/platform/observability"
	"github.com/civiclens/civiclens-backend/internal/services"
	"github.com/civiclens/civiclens-backend/internal/temporalx"
	"github.com/civiclens/civiclens-backend/internal/temporalx/temporalworker"
)

type Repos struct {
	Proposals  repos.ProposalRepo
	Documents  repos.DocumentRepo
	Images     repos.ImageRepo
	Attributes repos.AttributeRepo
	Events     repos.EventRepo
	Parcels    repos.ParcelRepo
	JobRuns    repos.JobRunRepo
}

type Services struct {
	Notifier   services.JobNotifier
	Jobs       services.JobService
	Hooks      services.Hooks
	Store      services.DocumentStore
	Thumbs     services.Thumbnailer
	Venues     services.VenueClient
	Scheduler  services.Scheduler
	Geocoder   geo.Geocoder
	Importers  *importers.Registry
	Normalizer *importers.Normalizer
	Handlers   *jobrt.Registry
}

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Services Services

	Temporal temporalsdkclient.Client
	Runner   *temporalworker.Runner
	Fallback *jobs.Worker

	cache        redisclient.Cache
	bus          redisclient.JobBus
	vision       gcp.Vision
	cancel       context.CancelFunc
	traceCleanup func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig(log)

	traceCleanup := observability.Init(context.Background(), log, observability.Config{
		ServiceName: "civiclens-worker",
		Environment: logMode,
		Version:     os.Getenv("APP_VERSION"),
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	reposet := wireRepos(theDB, log)

	a := &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		traceCleanup: traceCleanup,
	}
	if err := a.wireServices(); err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}

func wireRepos(theDB *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Proposals:  repos.NewProposalRepo(theDB, log),
		Documents:  repos.NewDocumentRepo(theDB, log),
		Images:     repos.NewImageRepo(theDB, log),
		Attributes: repos.NewAttributeRepo(theDB, log),
		Events:     repos.NewEventRepo(theDB, log),
		Parcels:    repos.NewParcelRepo(theDB, log),
		JobRuns:    repos.NewJobRunRepo(theDB, log),
	}
}

func (a *App) wireServices() error {
	log := a.Log
	cfg := a.Cfg

	cache, err := redisclient.NewCache(log)
	if err != nil {
		return fmt.Errorf("init redis cache: %w", err)
	}
	a.cache = cache

	bus, err := redisclient.NewJobBus(log)
	if err != nil {
		return fmt.Errorf("init redis job bus: %w", err)
	}
	a.bus = bus

	buckets, err := gcp.NewBucketService(log)
	if err != nil {
		return fmt.Errorf("init gcs buckets: %w", err)
	}

	if cfg.VisionEnabled {
		vision, err := gcp.NewVision(log)
		if err != nil {
			log.Warn("Vision init failed; logo screening disabled", "error", err)
		} else {
			a.vision = vision
		}
	}
	visionActive := a.vision != nil

	tc, err := temporalx.NewClient(log)
	if err != nil {
		return fmt.Errorf("init temporal: %w", err)
	}
	a.Temporal = tc

	notifier := services.NewJobNotifier(log, bus)
	jobSvc := services.NewJobService(a.DB, log, a.Repos.JobRuns, notifier, tc, temporalx.LoadConfig().TaskQueue)
	hooks := services.NewHooks(log, jobSvc, visionActive)
	store := services.NewDocumentStore(log, buckets)
	thumbs := services.NewThumbnailer(log, cfg.ThumbnailDim)

	var venues services.VenueClient
	if cfg.FoursquareClientID != "" && cfg.FoursquareSecret != "" {
		venues = services.NewFoursquareClient(log, cfg.FoursquareClientID, cfg.FoursquareSecret)
	}

	var geocoder geo.Geocoder
	switch cfg.GeocoderBackend {
	case "arcgis":
		geocoder = geo.NewArcGISGeocoder(log, cfg.ArcGISClientID, cfg.ArcGISSecret, cfg.RegionBounds)
	default:
		geocoder = geo.NewGoogleGeocoder(log, cfg.GoogleAPIKey, cfg.RegionBounds)
	}

	registry := importers.NewRegistry()
	regions := map[string]bool{}
	var regionNames []string
	for _, f := range cfg.ProposalFeeds {
		registry.AddProposalImporter(importers.NewPortalImporter(log, f.Name, f.RegionName, f.URL))
		if !regions[f.RegionName] {
			regions[f.RegionName] = true
			regionNames = append(regionNames, f.RegionName)
		}
	}
	for _, f := range cfg.EventFeeds {
		registry.AddEventImporter(importers.NewPortalEventImporter(log, f.Name, f.RegionName, f.URL))
		if !regions[f.RegionName] {
			regions[f.RegionName] = true
			regionNames = append(regionNames, f.RegionName)
		}
	}

	normalizer := importers.NewNormalizer(log, a.Repos.Proposals, a.Repos.Documents, a.Repos.Attributes, a.Repos.Events, hooks)

	media := localmedia.New(log)
	if err := media.AssertReady(context.Background()); err != nil {
		log.Warn("PDF tooling not fully available; document processing may fail", "error", err)
	}

	handlers := jobrt.NewRegistry()
	pipelines := []jobrt.Handler{
		proposal_fetch.New(a.DB, log, registry, normalizer, a.Repos.Proposals, geocoder),
		event_pull.New(a.DB, log, registry, normalizer, a.Repos.Events),
		document_process.New(a.DB, log, a.Repos.Documents, a.Repos.Images, a.Repos.Attributes, store, media, thumbs, hooks, cfg.TextEncoding),
		proposal_enrich.New(a.DB, log, a.Repos.Proposals, a.Repos.Images, a.Repos.Attributes, a.Repos.Parcels, venues, hooks, cfg.GoogleAPIKey, cfg.StreetViewSecret),
		image_vision.New(a.DB, log, a.Repos.Images, a.Repos.Proposals, store, cache, a.vision),
	}
	for _, p := range pipelines {
		if err := handlers.Register(p); err != nil {
			return fmt.Errorf("register job handler: %w", err)
		}
	}

	scheduler := services.NewScheduler(log, jobSvc, regionNames)

	a.Services = Services{
		Notifier:   notifier,
		Jobs:       jobSvc,
		Hooks:      hooks,
		Store:      store,
		Thumbs:     thumbs,
		Venues:     venues,
		Scheduler:  scheduler,
		Geocoder:   geocoder,
		Importers:  registry,
		Normalizer: normalizer,
		Handlers:   handlers,
	}

	if tc != nil {
		runner, err := temporalworker.NewRunner(log, tc, a.DB, a.Repos.JobRuns, handlers, notifier, scheduler)
		if err != nil {
			return fmt.Errorf("init temporal worker: %w", err)
		}
		a.Runner = runner
	} else {
		log.Warn("Temporal not configured; falling back to database-claim worker, periodic imports will not fire")
		a.Fallback = jobs.NewWorker(a.DB, log, a.Repos.JobRuns, handlers, notifier)
	}

	return nil
}

// Start launches the Temporal worker and makes sure the periodic import
// schedules exist. Without a Temporal client the database-claim fallback
// worker runs instead.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Runner == nil {
		if a.Fallback != nil {
			a.Fallback.Start(ctx)
		}
		return nil
	}
	if err := a.Runner.Start(ctx); err != nil {
		return fmt.Errorf("start temporal worker: %w", err)
	}
	if err := temporalx.EnsureSchedules(ctx, a.Temporal, a.Log); err != nil {
		a.Log.Warn("Schedule registration failed; periodic imports will not fire", "error", err)
	}
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Temporal != nil {
		a.Temporal.Close()
	}
	if a.vision != nil {
		a.vision.Close()
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.traceCleanup != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.traceCleanup(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
