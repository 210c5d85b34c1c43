package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"gorm.io/gorm"

	"github.com/gilkh/livret/internal/auth"
	"github.com/gilkh/livret/internal/config"
	"github.com/gilkh/livret/internal/database"
	"github.com/gilkh/livret/internal/export"
	"github.com/gilkh/livret/internal/handlers"
	"github.com/gilkh/livret/internal/logging"
	"github.com/gilkh/livret/internal/middleware"
	"github.com/gilkh/livret/internal/mongostore"
	"github.com/gilkh/livret/internal/pollers"
	"github.com/gilkh/livret/internal/rendering"
	"github.com/gilkh/livret/internal/storage"
	"github.com/gilkh/livret/internal/validation"
)

const dbTypeMongo = "mongodb"

// app is the assembled export pipeline shared by serve, render and batch.
type app struct {
	render config.RenderSettings
	server config.ServerSettings

	// db is nil when reading from MongoDB.
	db      *gorm.DB
	source  export.Source
	tokens  *auth.Tokens
	fetcher *storage.Fetcher
	images  *storage.ImageCache
	pool    *rendering.BrowserPool
	html    *rendering.HTMLRenderer
	metrics *rendering.RenderMetrics
	exports *export.Service
	batch   *export.BatchWriter
	monitor *rendering.MonitoringService

	// checks are pinged by the dependency job while serving.
	checks  []pollers.Check
	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	a := &app{
		render:  config.LoadRenderSettings(),
		server:  config.LoadServerSettings(),
		metrics: &rendering.RenderMetrics{},
	}
	if err := a.openSource(ctx); err != nil {
		return nil, err
	}
	if err := a.openImages(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.tokens = auth.NewTokens(a.server.JWTSecret, a.server.RenderTokenTTL)
	a.buildBackends()
	return a, nil
}

func (a *app) openSource(ctx context.Context) error {
	if a.server.DBType == dbTypeMongo {
		store, disconnect, err := mongostore.Connect(ctx, a.server.MongoURI, a.server.MongoDatabase)
		if err != nil {
			return err
		}
		a.source = store
		a.checks = append(a.checks, pollers.Check{Name: "mongodb", Ping: store.Ping})
		a.closers = append(a.closers, func() error { return disconnect(context.Background()) })
		return nil
	}

	if err := database.Initialize(); err != nil {
		return err
	}
	a.db = database.GetDB()
	store := database.NewStore(a.db)
	a.source = store
	a.checks = append(a.checks, pollers.Check{Name: a.server.DBType, Ping: store.Ping})
	a.closers = append(a.closers, database.Close)
	return nil
}

// openImages builds the fetcher and its cache tiers. Redis and GCS are
// optional; a Redis that cannot be reached is fatal since it was asked for.
func (a *app) openImages(ctx context.Context) error {
	opts := storage.FetcherOptions{
		Uploads:       storage.NewFilesystemBackend(a.render.UploadsDir),
		PublicBaseURL: a.render.PublicBaseURL,
		Timeout:       a.render.ImageFetchTimeout,
	}
	if a.render.GCSBucket != "" || a.render.GCSCredentials != "" {
		gcs, err := storage.NewGCSClient(ctx, a.render.GCSCredentials)
		if err != nil {
			logging.WarnWithComponent(logging.ComponentAssets, "GCS unavailable, gs:// images will fail", "error", err)
		} else {
			opts.GCS = gcs
			a.closers = append(a.closers, gcs.Close)
		}
	}
	a.fetcher = storage.NewFetcher(opts)

	tiers := []storage.Tier{storage.NewMemoryTier(512)}
	if a.render.RedisURL != "" {
		redisTier, err := storage.NewRedisTier(ctx, a.render.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to open image cache: %w", err)
		}
		tiers = append(tiers, redisTier)
		a.checks = append(a.checks, pollers.Check{Name: "redis", Ping: redisTier.Ping})
		a.closers = append(a.closers, redisTier.Close)
	}
	a.images = storage.NewImageCache(a.fetcher, a.render.ImageCacheTTL, tiers...)
	return nil
}

func (a *app) buildBackends() {
	icons := rendering.IconURLs{EmojiCDN: a.render.EmojiCDNURL, FlagCDN: a.render.FlagCDNURL}

	vector := rendering.NewVectorBackend(rendering.VectorOptions{
		Images:          a.images,
		QRServiceURL:    a.render.QRServiceURL,
		QRLocalFallback: a.render.QRLocalFallback,
		Icons:           icons,
		FontPath:        a.render.FontPath,
		FontBoldPath:    a.render.FontBoldPath,
	})

	a.pool = rendering.NewBrowserPool(rendering.BrowserOptions{
		ExecPath:    a.render.ChromePath,
		MaxTabs:     a.render.BrowserMaxTabs,
		MaxLifetime: a.render.BrowserMaxLifetime,
	})
	a.closers = append(a.closers, a.pool.Close)

	raster := rendering.NewRasterBackend(rendering.RasterOptions{
		Pool:         a.pool,
		PageURL:      a.pageURL,
		Mode:         a.render.RasterMode,
		Format:       a.render.RasterFormat,
		Quality:      a.render.RasterQuality,
		Scale:        a.render.RasterScale,
		ReadyTimeout: a.render.ReadyTimeout,
	})

	a.html = rendering.NewHTMLRenderer(rendering.HTMLOptions{
		Images:          a.images,
		QRServiceURL:    a.render.QRServiceURL,
		QRLocalFallback: a.render.QRLocalFallback,
		Icons:           icons,
	})

	var def, other rendering.Backend = vector, raster
	if a.render.Backend == rendering.BackendRaster {
		def, other = raster, vector
	}
	a.exports = export.NewService(a.source, def, export.Options{
		LevelOrder: a.render.LevelOrder,
		Metrics:    a.metrics,
	}, other)
	a.batch = export.NewBatchWriter(a.exports, a.render.BatchConcurrency)
	a.monitor = rendering.NewMonitoringService(def, a.pool, a.metrics)

	logging.InfoWithComponent(logging.ComponentStartup, "Export pipeline ready",
		"backend", def.Name(), "source", a.server.DBType, "batch_concurrency", a.render.BatchConcurrency)
}

// pageURL is the signed render page the raster back end navigates to.
func (a *app) pageURL(assignmentID string) (string, error) {
	token, err := a.tokens.RenderToken(assignmentID)
	if err != nil {
		return "", err
	}
	return a.render.PublicBaseURL + "/render/assignments/" + url.PathEscape(assignmentID) + "?token=" + url.QueryEscape(token), nil
}

// handlers wires the HTTP layer. Write routes exist only for relational
// databases.
func (a *app) handlers(passwordLimiter, exportLimiter *middleware.KeyedLimiter) *handlers.Handlers {
	h := &handlers.Handlers{
		Export:        a.exports,
		Batch:         a.batch,
		HTML:          a.html,
		Monitor:       a.monitor,
		Tokens:        a.tokens,
		Gate:          auth.NewPasswordGate(passwordLimiter),
		Validator:     validation.NewTemplateValidator(a.render.LevelOrder),
		ExportLimiter: exportLimiter,
	}
	if a.db != nil {
		h.Templates = database.NewTemplateService(a.db)
		h.Assign = database.NewAssignmentService(a.db)
		h.Signatures = database.NewSignatureService(a.db, a.fetcher)
		h.Promotions = database.NewPromotionService(a.db)
	}
	return h
}

// Close releases everything in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
