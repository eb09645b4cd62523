package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/recophone/api/internal/handlers"
	"github.com/recophone/api/internal/payments"
	"github.com/recophone/api/internal/platform/auth"
	"github.com/recophone/api/internal/platform/config"
	"github.com/recophone/api/internal/platform/database"
	"github.com/recophone/api/internal/platform/idempotency"
	"github.com/recophone/api/internal/platform/jobs"
	"github.com/recophone/api/internal/platform/mail"
	"github.com/recophone/api/internal/platform/observability"
	"github.com/recophone/api/internal/platform/pdf"
	"github.com/recophone/api/internal/platform/storage"
	"github.com/recophone/api/internal/repositories"
	"github.com/recophone/api/internal/repositories/gormrepo"
	"github.com/recophone/api/internal/services"
)

// Services bundles the service layer handed to the HTTP handlers. Optional services stay nil
// when their configuration is absent.
type Services struct {
	Catalog      *services.CatalogService
	Products     *services.ProductCatalogService
	Geocode      *services.GeocodeService
	Distance     *services.DistanceService
	Travel       *services.TravelFeeCalculator
	Counters     services.CounterService
	Delivery     *services.DocumentDeliveryService
	Finalization *services.FinalizationService
	Sessions     *services.QuoteSessionService
	Checkout     *services.CheckoutService
	Webhooks     *services.StripeWebhookService
	AdminAuth    *services.AdminAuthService
	Documents    *services.DocumentBrowserService
	Ledger       *services.QuoteLedgerService
	System       services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Build        services.BuildInfo
	Repositories repositories.Registry
	Services     Services

	logger      *zap.Logger
	db          *gorm.DB
	store       storage.DocumentStore
	mailer      mail.Sender
	renderer    *pdf.Generator
	idempotency *idempotency.GormStore
	cookies     auth.Cookies
	closers     []func(context.Context) error
}

// NewContainer constructs the runtime dependencies. The returned container owns the database,
// storage and Pub/Sub clients; call Close to release them.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, build services.BuildInfo) (c *Container, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c = &Container{Config: cfg, Build: build, logger: logger}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	models := append(gormrepo.Models(), &idempotency.KeyModel{})
	c.db, err = database.Open(ctx, cfg.Database, logger.Named("database"), models...)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func(context.Context) error { return database.Close(c.db) })

	registry, err := gormrepo.NewRegistry(c.db)
	if err != nil {
		return nil, fmt.Errorf("build repository registry: %w", err)
	}
	c.Repositories = registry
	c.idempotency = idempotency.NewGormStore(c.db)

	if c.store, err = c.buildDocumentStore(ctx); err != nil {
		return nil, err
	}
	if c.mailer, err = c.buildMailer(); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Schedule.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load schedule timezone: %w", err)
	}
	builder, err := pdf.NewBuilder(loc)
	if err != nil {
		return nil, fmt.Errorf("build pdf templates: %w", err)
	}
	c.renderer = pdf.NewGenerator(builder, pdf.NewChromeRenderer(cfg.PDF.ChromePath, cfg.PDF.Timeout))

	var events services.EventPublisher
	if publisher, err := c.buildPublisher(ctx); err != nil {
		return nil, err
	} else if publisher != nil {
		events = publisher
	}

	if err := c.buildQuoteServices(ctx, loc, events); err != nil {
		return nil, err
	}
	if err := c.buildPaymentServices(events); err != nil {
		return nil, err
	}
	if err := c.buildAdminServices(); err != nil {
		return nil, err
	}

	system, err := c.buildSystemService()
	if err != nil {
		return nil, fmt.Errorf("build system service: %w", err)
	}
	c.Services.System = system
	return c, nil
}

func (c *Container) eventLogger(name string) services.Logger {
	return observability.EventLogger(c.logger.Named(name), name+" log")
}

func (c *Container) buildDocumentStore(ctx context.Context) (storage.DocumentStore, error) {
	docs := c.Config.Documents
	switch docs.Backend {
	case "memory":
		return storage.NewMemoryStore(docs.PublicBaseURL), nil
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init storage client: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		store, err := storage.NewGCSStore(client, docs.GCSBucket, storage.WithSignedURLExpiry(docs.SignedURLTTL))
		if err != nil {
			return nil, fmt.Errorf("init gcs document store: %w", err)
		}
		return store, nil
	default:
		if strings.TrimSpace(docs.FTP.Host) == "" {
			c.logger.Warn("documents: ftp host not configured, using in-memory store")
			return storage.NewMemoryStore(docs.PublicBaseURL), nil
		}
		store, err := storage.NewFTPStore(docs.FTP, docs.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("init ftp document store: %w", err)
		}
		return store, nil
	}
}

func (c *Container) buildMailer() (mail.Sender, error) {
	if strings.TrimSpace(c.Config.SMTP.Host) == "" {
		c.logger.Warn("mail: smtp host not configured, messages are logged only")
		return mail.NewLogSender(c.logger.Named("mail")), nil
	}
	sender, err := mail.NewSMTPSender(c.Config.SMTP)
	if err != nil {
		return nil, fmt.Errorf("init smtp sender: %w", err)
	}
	return sender, nil
}

func (c *Container) buildPublisher(ctx context.Context) (*jobs.PubSubEventPublisher, error) {
	events := c.Config.Events
	if strings.TrimSpace(events.Topic) == "" {
		return nil, nil
	}
	if strings.TrimSpace(events.ProjectID) == "" {
		return nil, errors.New("events: project id is required when a topic is set")
	}
	client, err := pubsub.NewClient(ctx, events.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	publisher, err := jobs.NewPubSubEventPublisher(client.Topic(events.Topic))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	c.closers = append(c.closers, func(context.Context) error {
		publisher.Stop()
		return client.Close()
	})
	return publisher, nil
}

func (c *Container) buildQuoteServices(ctx context.Context, loc *time.Location, events services.EventPublisher) error {
	cfg := c.Config
	svc := &c.Services

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Source: services.FileCatalogSource(cfg.Catalog.Path),
		Clock:  time.Now,
		Logger: c.eventLogger("catalog"),
	})
	if err != nil {
		return fmt.Errorf("build catalog service: %w", err)
	}
	if _, err := catalog.Reload(ctx); err != nil {
		c.logger.Warn("catalog: initial load failed", zap.String("path", cfg.Catalog.Path), zap.Error(err))
	}
	svc.Catalog = catalog

	svc.Products, err = services.NewProductCatalogService(services.ProductCatalogServiceDeps{
		FeedURL: cfg.Catalog.ProductFeedURL,
		TTL:     cfg.Catalog.ProductFeedTTL,
		Clock:   time.Now,
		Logger:  c.eventLogger("products"),
	})
	if err != nil {
		return fmt.Errorf("build product catalog: %w", err)
	}

	svc.Geocode, err = services.NewGeocodeService(services.GeocodeServiceDeps{
		BaseURL:   cfg.Geo.GeocodeBaseURL,
		UserAgent: cfg.Geo.UserAgent,
		Country:   cfg.Geo.Country,
		Timeout:   cfg.Geo.Timeout,
		CacheSize: cfg.Geo.CacheSize,
		CacheTTL:  cfg.Geo.CacheTTL,
		Clock:     time.Now,
		Logger:    c.eventLogger("geocode"),
	})
	if err != nil {
		return fmt.Errorf("build geocode service: %w", err)
	}

	svc.Distance, err = services.NewDistanceService(services.DistanceServiceDeps{
		BaseURL:   cfg.Geo.RoutingBaseURL,
		UserAgent: cfg.Geo.UserAgent,
		Timeout:   cfg.Travel.RoutingTimeout,
		Logger:    c.eventLogger("distance"),
	})
	if err != nil {
		return fmt.Errorf("build distance service: %w", err)
	}

	svc.Travel, err = services.NewTravelFeeCalculator(services.TravelFeeCalculatorDeps{
		Geocoder:       svc.Geocode,
		Router:         svc.Distance,
		Origin:         cfg.Travel.Origin,
		FreeRadiusKm:   cfg.Travel.FreeKm,
		RatePerKm:      cfg.Travel.RatePerKm,
		CacheTTL:       cfg.Travel.CacheTTL,
		RoutingTimeout: cfg.Travel.RoutingTimeout,
		Clock:          time.Now,
		Logger:         c.eventLogger("travel"),
	})
	if err != nil {
		return fmt.Errorf("build travel fee calculator: %w", err)
	}

	svc.Counters, err = services.NewCounterService(services.CounterServiceDeps{
		Repository: c.Repositories.Counters(),
		Logger:     c.eventLogger("counters"),
	})
	if err != nil {
		return fmt.Errorf("build counter service: %w", err)
	}

	svc.Delivery, err = services.NewDocumentDeliveryService(services.DocumentDeliveryServiceDeps{
		Renderer: c.renderer,
		Store:    c.store,
		Mailer:   c.mailer,
		From:     cfg.SMTP.From,
		CopyTo:   cfg.SMTP.CopyTo,
		Logger:   c.eventLogger("delivery"),
	})
	if err != nil {
		return fmt.Errorf("build document delivery: %w", err)
	}

	svc.Finalization, err = services.NewFinalizationService(services.FinalizationServiceDeps{
		Counters: svc.Counters,
		Delivery: svc.Delivery,
		Quotes:   c.Repositories.Quotes(),
		Events:   events,
		Location: loc,
		Timeout:  cfg.Quote.FinalizeTimeout,
		Clock:    time.Now,
		Logger:   c.eventLogger("finalize"),
	})
	if err != nil {
		return fmt.Errorf("build finalization service: %w", err)
	}

	svc.Sessions, err = services.NewQuoteSessionService(services.QuoteSessionServiceDeps{
		Catalog:   catalog,
		Schedule:  services.NewScheduleResolver(loc, cfg.Schedule.BlockedDates, time.Now),
		Travel:    svc.Travel,
		Finalizer: svc.Finalization,
		TTL:       cfg.Quote.SessionTTL,
		Debounce:  cfg.Travel.Debounce,
		Clock:     time.Now,
		Logger:    c.eventLogger("quote"),
	})
	if err != nil {
		return fmt.Errorf("build quote session service: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error {
		svc.Sessions.Close()
		return nil
	})

	svc.Ledger, err = services.NewQuoteLedgerService(c.Repositories.Quotes())
	if err != nil {
		return fmt.Errorf("build quote ledger: %w", err)
	}
	return nil
}

func (c *Container) buildPaymentServices(events services.EventPublisher) error {
	psp := c.Config.PSP
	if strings.TrimSpace(psp.StripeAPIKey) == "" {
		c.logger.Warn("payments: stripe api key not configured, checkout disabled")
		return nil
	}
	provider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        psp.StripeAPIKey,
		WebhookSecret: psp.StripeWebhookSecret,
		Logger:        payments.StripeLogger(c.eventLogger("stripe")),
		Clock:         time.Now,
	})
	if err != nil {
		return fmt.Errorf("init stripe provider: %w", err)
	}

	c.Services.Checkout, err = services.NewCheckoutService(services.CheckoutServiceDeps{
		Payments:   provider,
		Products:   c.Services.Products,
		PlanPrices: psp.PlanPrices,
		SiteURL:    psp.SiteURL,
		Clock:      time.Now,
		Logger:     c.eventLogger("checkout"),
	})
	if err != nil {
		return fmt.Errorf("build checkout service: %w", err)
	}

	if strings.TrimSpace(psp.StripeWebhookSecret) == "" {
		c.logger.Warn("payments: stripe webhook secret not configured, webhooks disabled")
		return nil
	}
	c.Services.Webhooks, err = services.NewStripeWebhookService(services.StripeWebhookServiceDeps{
		Payments:      provider,
		Events:        c.Repositories.WebhookEvents(),
		Subscriptions: c.Repositories.Subscriptions(),
		Checkouts:     c.Repositories.CheckoutPayments(),
		Tx:            c.Repositories,
		Publisher:     events,
		Clock:         time.Now,
		Logger:        c.eventLogger("webhook"),
	})
	if err != nil {
		return fmt.Errorf("build stripe webhook service: %w", err)
	}
	return nil
}

func (c *Container) buildAdminServices() error {
	admin := c.Config.Admin
	var err error
	c.Services.Documents, err = services.NewDocumentBrowserService(services.DocumentBrowserServiceDeps{
		Store:  c.store,
		Logger: c.eventLogger("documents"),
	})
	if err != nil {
		return fmt.Errorf("build document browser: %w", err)
	}

	if admin.Email == "" {
		c.logger.Warn("admin: account not configured, admin routes disabled")
		return nil
	}
	credentials, err := auth.NewCredentials(admin)
	if err != nil {
		return fmt.Errorf("admin credentials: %w", err)
	}
	secret, err := auth.SessionSecret(admin)
	if err != nil {
		return fmt.Errorf("admin session secret: %w", err)
	}
	sessions, err := auth.NewSessions(secret, admin.SessionTTL, time.Now)
	if err != nil {
		return fmt.Errorf("admin sessions: %w", err)
	}
	c.Services.AdminAuth, err = services.NewAdminAuthService(services.AdminAuthServiceDeps{
		Credentials: credentials,
		Sessions:    sessions,
		Logger:      c.eventLogger("admin"),
	})
	if err != nil {
		return fmt.Errorf("build admin auth service: %w", err)
	}
	c.cookies = auth.Cookies{Name: admin.CookieName, Secure: !c.Config.Security.IsLocal()}
	return nil
}

func (c *Container) buildSystemService() (services.SystemService, error) {
	checks := []repositories.DependencyCheck{
		{
			Name:    "database",
			Timeout: 1500 * time.Millisecond,
			Check:   c.Repositories.Ping,
		},
		{
			Name:     "documents",
			Timeout:  3 * time.Second,
			Optional: true,
			Check:    c.store.Ping,
		},
	}
	if pinger, ok := c.mailer.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "smtp",
			Timeout:  3 * time.Second,
			Optional: true,
			Check:    pinger.Ping,
		})
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	deps := services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
		Build:            c.Build,
	}
	if c.Services.Catalog != nil {
		deps.Catalog = c.Services.Catalog
	}
	if c.Services.Sessions != nil {
		deps.Sessions = c.Services.Sessions
	}
	return services.NewSystemService(deps)
}

// Router assembles the HTTP surface on top of the container's services.
func (c *Container) Router() http.Handler {
	cfg := c.Config
	svc := c.Services
	logger := c.logger

	idem := idempotency.Middleware(
		c.idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	projectID := strings.TrimSpace(cfg.Server.ProjectID)
	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(projectID),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthBuildInfo(c.Build),
			handlers.WithHealthSystemService(svc.System),
		)),
	}

	public := handlers.NewPublicHandlers(svc.Catalog, svc.Geocode, svc.Distance,
		handlers.WithGeocodeRateLimit(cfg.RateLimits.GeocodePerMinute),
		handlers.WithDistanceRateLimit(cfg.RateLimits.DistancePerMinute),
		handlers.WithProductCatalog(svc.Products),
	)
	opts = append(opts, handlers.WithPublicRoutes(public.Routes))

	quotes := handlers.NewQuoteHandlers(svc.Sessions,
		handlers.WithQuoteDelivery(svc.Delivery),
		handlers.WithConfirmMiddlewares(idem),
	)
	opts = append(opts, handlers.WithQuoteRoutes(quotes.Routes))
	opts = append(opts, handlers.WithDocumentRoutes(handlers.NewDocumentHandlers(c.renderer).Routes))

	if svc.Checkout != nil {
		checkout := handlers.NewCheckoutHandlers(svc.Checkout)
		opts = append(opts, handlers.WithCheckoutRoutes(func(r chi.Router) {
			r.Use(idem)
			checkout.Routes(r)
		}))
	}
	if svc.Webhooks != nil {
		opts = append(opts, handlers.WithWebhookRoutes(handlers.NewWebhookHandlers(svc.Webhooks).Routes))
	}
	if svc.AdminAuth != nil {
		admin := handlers.NewAdminHandlers(svc.AdminAuth, c.cookies,
			handlers.WithAdminDocuments(svc.Documents),
			handlers.WithAdminLedger(svc.Ledger),
			handlers.WithLoginRateLimit(cfg.RateLimits.LoginPerMinute),
		)
		opts = append(opts, handlers.WithAdminRoutes(admin.Routes))
	}

	return handlers.NewRouter(opts...)
}

// Run drives background work until ctx is cancelled: the quote session sweep and the
// idempotency key cleanup.
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Services.Sessions.Run(ctx, c.Config.Quote.SweepInterval)
	})
	g.Go(func() error {
		c.runIdempotencyCleanup(ctx)
		return nil
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Container) runIdempotencyCleanup(ctx context.Context) {
	cfg := c.Config.Idempotency
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	cleanupLogger := c.logger.Named("idempotency")
	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := c.idempotency.CleanupExpired(runCtx, time.Now().UTC(), cfg.CleanupBatchSize)
			cancel()
			if err != nil {
				cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
				continue
			}
			if removed > 0 {
				cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close releases resources in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
