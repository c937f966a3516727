// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gridrank/internal/api"
	"github.com/JakeFAU/gridrank/internal/auth"
	"github.com/JakeFAU/gridrank/internal/cache"
	"github.com/JakeFAU/gridrank/internal/clock/system"
	"github.com/JakeFAU/gridrank/internal/config"
	collyfetcher "github.com/JakeFAU/gridrank/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/gridrank/internal/fetcher/headless"
	"github.com/JakeFAU/gridrank/internal/gridrank"
	"github.com/JakeFAU/gridrank/internal/hash/sha256"
	"github.com/JakeFAU/gridrank/internal/headless/detector"
	"github.com/JakeFAU/gridrank/internal/id/uuid"
	"github.com/JakeFAU/gridrank/internal/leadsearch"
	"github.com/JakeFAU/gridrank/internal/logging"
	"github.com/JakeFAU/gridrank/internal/policy/ratelimit"
	"github.com/JakeFAU/gridrank/internal/provider/google"
	memorypublisher "github.com/JakeFAU/gridrank/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/gridrank/internal/publisher/pubsub"
	"github.com/JakeFAU/gridrank/internal/scan"
	"github.com/JakeFAU/gridrank/internal/siteintel"
	gcsstorage "github.com/JakeFAU/gridrank/internal/storage/gcs"
	localstorage "github.com/JakeFAU/gridrank/internal/storage/local"
	memorystorage "github.com/JakeFAU/gridrank/internal/storage/memory"
	pgstore "github.com/JakeFAU/gridrank/internal/storage/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	apiServer *api.Server
	scans     *scan.Service
	leads     *leadsearch.Service
	ready     func(context.Context) error

	scanStore *pgstore.ScanStore
	blobs     *gcsstorage.BlobStore
	publisher *gcppublisher.Publisher
	renderer  *headlessfetcher.Renderer
}

// caches are the process-local TTL caches shared by all requests.
type caches struct {
	geocode   *cache.Cache[*gridrank.GeoPoint]
	details   *cache.Cache[*gridrank.PlaceDetails]
	site      *cache.Cache[gridrank.SiteIntel]
	pageSpeed *cache.Cache[gridrank.PageSpeedSnapshot]
	gridScan  *cache.Cache[scan.Result]
}

// Build creates the application's dependencies. A nil logger builds one from
// cfg.Logging.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		var err error
		logger, err = newLogger(cfg)
		if err != nil {
			return nil, err
		}
	}
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.Bool("auth_enabled", cfg.Auth.Enabled),
		zap.Bool("google_configured", cfg.Google.APIKey != ""),
	)

	clock := system.New()
	c, err := setupCaches(cfg)
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Google.RequestsPerSecond,
		DefaultBurst: cfg.Google.Burst,
	})

	places, err := google.NewPlaces(google.Config{
		APIKey:         cfg.Google.APIKey,
		BaseURL:        cfg.Google.BaseURL,
		GeocodeTimeout: seconds(cfg.Google.GeocodeTimeoutSeconds),
		SearchTimeout:  seconds(cfg.Google.SearchTimeoutSeconds),
		DetailsTimeout: seconds(cfg.Google.DetailsTimeoutSeconds),
	}, google.Caches{Geocode: c.geocode, Details: c.details}, limiter, logger.Named("places"))
	if err != nil {
		return nil, fmt.Errorf("places init failed: %w", err)
	}
	if !places.Configured() {
		logger.Warn("google.api_key is empty; scans and lead searches will fail with a configuration error")
	}
	pageSpeed, err := google.NewPageSpeed(ctx, google.PageSpeedConfig{
		APIKey:  cfg.Google.PageSpeedKey(),
		BaseURL: cfg.Google.PageSpeedBaseURL,
		Timeout: seconds(cfg.Google.PageSpeedTimeoutSeconds),
		Clock:   clock,
	}, c.pageSpeed, limiter, logger.Named("pagespeed"))
	if err != nil {
		return nil, fmt.Errorf("pagespeed init failed: %w", err)
	}

	analyzer, err := setupSiteIntel(app, c.site, clock)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	store, err := setupScanStore(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	blobs, err := setupBlobStore(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	app.scans, err = scan.New(scan.Config{
		Concurrency:      cfg.Scan.Concurrency,
		BatchMax:         cfg.Scan.BatchMax,
		ListDefaultLimit: cfg.Scan.ListDefaultLimit,
		ListMaxLimit:     cfg.Scan.ListMaxLimit,
		ArchivePrefix:    cfg.Storage.Prefix,
		Topic:            cfg.PubSub.TopicName,
	}, scan.Deps{
		Geocoder:  places,
		Searcher:  places,
		Details:   places,
		Store:     store,
		Blobs:     blobs,
		Publisher: publisher,
		Hasher:    sha256.New(),
		IDs:       uuid.NewUUIDGenerator(),
		Clock:     clock,
		Cache:     c.gridScan,
	}, logger.Named("scan"))
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("scan service init failed: %w", err)
	}

	app.leads, err = leadsearch.New(places, places, analyzer, pageSpeed, logger.Named("leadsearch"))
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("lead search init failed: %w", err)
	}

	var verifier *auth.Manager
	if cfg.Auth.Enabled {
		verifier, err = auth.New(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		if err != nil {
			app.closeInfrastructure()
			return nil, fmt.Errorf("auth init failed: %w", err)
		}
		logger.Info("bearer token auth enabled", zap.String("issuer", cfg.Auth.Issuer))
	}

	app.apiServer = api.NewServer(
		api.Config{RequestTimeout: cfg.RequestTimeout()},
		api.Deps{Scans: app.scans, Leads: app.leads, Auth: verifier, Ready: app.ready},
		logger.Named("api"),
	)
	return app, nil
}

// Scans exposes the scan service for one-shot CLI use.
func (a *App) Scans() *scan.Service {
	return a.scans
}

// Handler returns the HTTP handler of the API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the HTTP server and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases external clients and flushes the logger.
func (a *App) Close() {
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
	// stderr/stdout sinks report EINVAL on sync
	_ = a.logger.Sync()
}

func (a *App) closeInfrastructure() {
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.blobs != nil {
		if err := a.blobs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.scanStore != nil {
		a.scanStore.Close()
	}
}

func setupCaches(cfg *config.Config) (caches, error) {
	var (
		c   caches
		err error
	)
	if c.geocode, err = cache.New[*gridrank.GeoPoint](cache.Config{Name: "geocode", TTL: cfg.Cache.GeocodeTTL}); err != nil {
		return c, err
	}
	if c.details, err = cache.New[*gridrank.PlaceDetails](cache.Config{Name: "place_details", TTL: cfg.Cache.PlaceDetailsTTL}); err != nil {
		return c, err
	}
	if c.site, err = cache.New[gridrank.SiteIntel](cache.Config{Name: "website_intel", TTL: cfg.Cache.WebsiteIntelTTL}); err != nil {
		return c, err
	}
	if c.pageSpeed, err = cache.New[gridrank.PageSpeedSnapshot](cache.Config{Name: "pagespeed", TTL: cfg.Cache.PageSpeedTTL}); err != nil {
		return c, err
	}
	if c.gridScan, err = cache.New[scan.Result](cache.Config{Name: "grid_scan", TTL: cfg.Cache.GridScanTTL}); err != nil {
		return c, err
	}
	return c, nil
}

func setupSiteIntel(app *App, site *cache.Cache[gridrank.SiteIntel], clock gridrank.Clock) (*siteintel.Analyzer, error) {
	cfg := app.cfg
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Site.UserAgent,
		Timeout:      time.Duration(cfg.Site.TimeoutMs) * time.Millisecond,
		MaxBodyBytes: cfg.Site.MaxBodyBytes,
	})
	opts := []siteintel.Option{siteintel.WithLogger(app.logger.Named("siteintel"))}
	if cfg.Headless.Enabled {
		renderer, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Site.UserAgent,
			NavigationTimeout: seconds(cfg.Headless.NavTimeoutSec),
			MaxBodyBytes:      cfg.Site.MaxBodyBytes,
		})
		if err != nil {
			app.logger.Warn("headless renderer init failed, continuing without promotion", zap.Error(err))
		} else {
			app.renderer = renderer
			opts = append(opts, siteintel.WithRenderer(renderer, detector.NewHeuristic(cfg.Headless.PromotionThresh)))
			app.logger.Info("headless promotion enabled", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		}
	}
	analyzer, err := siteintel.New(probe, site, clock, opts...)
	if err != nil {
		return nil, fmt.Errorf("site intel init failed: %w", err)
	}
	return analyzer, nil
}

func setupScanStore(ctx context.Context, app *App) (gridrank.ScanStore, error) {
	db := app.cfg.DB
	if db.DSN == "" {
		app.logger.Warn("no db.dsn configured, persisting scans in memory")
		return memorystorage.NewScanStore(), nil
	}
	if db.Migrate {
		if err := pgstore.Migrate(db.DSN, app.logger.Named("migrate")); err != nil {
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
	}
	store, err := pgstore.NewScanStore(ctx, pgstore.Config{
		DSN:      db.DSN,
		Table:    db.Table,
		MaxConns: db.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("scan store init failed: %w", err)
	}
	app.scanStore = store
	app.ready = store.Ping
	app.logger.Info("postgres scan store initialized", zap.String("table", db.Table))
	return store, nil
}

func setupBlobStore(ctx context.Context, app *App) (gridrank.BlobStore, error) {
	st := app.cfg.Storage
	switch {
	case st.GCSBucket != "":
		blobs, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: st.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.blobs = blobs
		app.logger.Info("archiving scans to GCS", zap.String("bucket", st.GCSBucket))
		return blobs, nil
	case st.LocalDir != "":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: st.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("archiving scans to local directory", zap.String("path", st.LocalDir))
		return blobs, nil
	default:
		app.logger.Info("archiving scans in memory")
		return memorystorage.NewBlobStore(), nil
	}
}

func setupPublisher(ctx context.Context, app *App) (gridrank.Publisher, error) {
	ps := app.cfg.PubSub
	if ps.ProjectID == "" || ps.TopicName == "" {
		app.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	publisher, err := gcppublisher.New(ctx, ps.ProjectID, ps.TopicName, app.logger.Named("pubsub"))
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.publisher = publisher
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", ps.ProjectID),
		zap.String("topic", ps.TopicName),
	)
	return publisher, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
