package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/recophone/api/internal/platform/textutil"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 60 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultDatabaseDriver      = "sqlite"
	defaultDatabaseDSN         = "recophone.db"
	defaultCatalogPath         = "data/catalog.json"
	defaultProductFeedTTL      = 5 * time.Minute
	defaultSessionTTL          = 2 * time.Hour
	defaultSweepInterval       = 5 * time.Minute
	defaultFinalizeTimeout     = 90 * time.Second
	defaultTravelOrigin        = "Rte de Saussin 38/23a, 5190 Jemeppe-sur-Sambre, Belgique"
	defaultTravelFreeKm        = 15.0
	defaultTravelRatePerKm     = 3.5
	defaultTravelCacheTTL      = 15 * time.Minute
	defaultTravelRoutingWait   = 4 * time.Second
	defaultTravelDebounce      = 600 * time.Millisecond
	defaultGeocodeBaseURL      = "https://nominatim.openstreetmap.org"
	defaultGeocodeUserAgent    = "recophone-devis/1.0 (contact: admin@recophone.be)"
	defaultGeocodeCountry      = "be"
	defaultGeocodeTimeout      = 4 * time.Second
	defaultGeocodeCacheSize    = 500
	defaultGeocodeCacheTTL     = 24 * time.Hour
	defaultRoutingBaseURL      = "https://router.project-osrm.org"
	defaultScheduleTimeZone    = "Europe/Brussels"
	defaultDocumentsBackend    = "ftp"
	defaultFTPPort             = 21
	defaultFTPTimeout          = 15 * time.Second
	defaultSignedURLTTL        = 7 * 24 * time.Hour
	defaultSMTPPort            = 587
	defaultPDFTimeout          = 30 * time.Second
	defaultSiteURL             = "https://recophone.be"
	defaultAdminCookieName     = "rp_session"
	defaultAdminSessionTTL     = 7 * 24 * time.Hour
	defaultRateGeocode         = 30
	defaultRateDistance        = 60
	defaultRateLogin           = 10
	defaultSecurityEnvironment = "local"
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyInterval = time.Hour
	defaultIdempotencyBatch    = 200
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Catalog     CatalogConfig
	Quote       QuoteConfig
	Travel      TravelConfig
	Geo         GeoConfig
	Schedule    ScheduleConfig
	Documents   DocumentsConfig
	SMTP        SMTPConfig
	PDF         PDFConfig
	PSP         PSPConfig
	Admin       AdminConfig
	Events      EventsConfig
	RateLimits  RateLimitConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	ProjectID    string
}

// DatabaseConfig selects the gorm dialect. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver        string
	DSN           string
	Debug         bool
	RunMigrations bool
}

// CatalogConfig points at the repair catalog JSON file and the refurbished-device feed.
// An empty ProductFeedURL serves an empty storefront.
type CatalogConfig struct {
	Path           string
	ProductFeedURL string
	ProductFeedTTL time.Duration
}

// QuoteConfig controls wizard sessions and finalization.
type QuoteConfig struct {
	SessionTTL      time.Duration
	SweepInterval   time.Duration
	FinalizeTimeout time.Duration
}

// TravelConfig holds the at-home travel fee parameters.
type TravelConfig struct {
	Origin         string
	FreeKm         float64
	RatePerKm      float64
	CacheTTL       time.Duration
	RoutingTimeout time.Duration
	Debounce       time.Duration
}

// GeoConfig configures the Nominatim and OSRM upstreams.
type GeoConfig struct {
	GeocodeBaseURL string
	UserAgent      string
	Country        string
	Timeout        time.Duration
	CacheSize      int
	CacheTTL       time.Duration
	RoutingBaseURL string
}

// ScheduleConfig configures appointment scheduling.
type ScheduleConfig struct {
	TimeZone     string
	BlockedDates []string
}

// DocumentsConfig selects where generated PDFs are stored. Backend is "ftp", "gcs" or, locally, "memory".
type DocumentsConfig struct {
	Backend       string
	PublicBaseURL string
	FTP           FTPConfig
	GCSBucket     string
	SignedURLTTL  time.Duration
}

// FTPConfig holds FTP(S) connection settings.
type FTPConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Secure        bool
	TLSServerName string
	TLSInsecure   bool
	BaseDir       string
	Timeout       time.Duration
}

// SMTPConfig holds outgoing mail settings. Secure means implicit TLS (port 465).
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Secure   bool
	From     string
	CopyTo   string
}

// PDFConfig configures the headless Chrome renderer.
type PDFConfig struct {
	ChromePath string
	Timeout    time.Duration
}

// PSPConfig collects Stripe settings.
type PSPConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
	PlanPrices          map[string]string
	SiteURL             string
}

// AdminConfig configures the single admin account and its session cookie.
type AdminConfig struct {
	Email           string
	Name            string
	PasswordHash    string
	PasswordHashB64 string
	AuthSecret      string
	AuthSecretB64   string
	AuthSecretHex   string
	CookieName      string
	SessionTTL      time.Duration
}

// EventsConfig enables Pub/Sub publication when Topic is set.
type EventsConfig struct {
	ProjectID string
	Topic     string
}

// RateLimitConfig lists per-IP limits in requests per minute.
type RateLimitConfig struct {
	GeocodePerMinute  int
	DistancePerMinute int
	LoginPerMinute    int
}

// SecurityConfig groups deployment-level security settings.
type SecurityConfig struct {
	Environment string
}

// IsLocal reports whether the service runs on a developer machine.
func (s SecurityConfig) IsLocal() bool {
	return s.Environment == "" || s.Environment == "local" || s.Environment == "test"
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

// WithEnvFile overrides the .env file path. An empty path disables the file.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that win over every other source.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "PSP.StripeAPIKey") that must resolve to a value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets causes Load to panic when required secrets are missing.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) {
		o.panicOnMissingSecrets = true
	}
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// EnvironmentValues returns the merged environment (dotenv < OS env < explicit map) so callers
// can build dependencies such as the secret fetcher before calling Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	dotEnv, err := readDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(dotEnv))
	for k, v := range dotEnv {
		values[k] = v
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if ok && strings.TrimSpace(key) != "" {
				values[key] = value
			}
		}
	}
	for k, v := range options.envMap {
		values[k] = v
	}
	return values, nil
}

// Load assembles the configuration from defaults, the .env file, the environment and secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	values, err := EnvironmentValues(opts...)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ProjectID:    stringWithDefault(lookup, "API_GCP_PROJECT_ID", ""),
		},
		Database: DatabaseConfig{
			Driver:        strings.ToLower(stringWithDefault(lookup, "API_DATABASE_DRIVER", defaultDatabaseDriver)),
			DSN:           stringWithDefault(lookup, "API_DATABASE_DSN", defaultDatabaseDSN),
			Debug:         boolWithDefault(lookup, "API_DATABASE_DEBUG", false),
			RunMigrations: boolWithDefault(lookup, "API_DATABASE_RUN_MIGRATIONS", true),
		},
		Catalog: CatalogConfig{
			Path:           stringWithDefault(lookup, "API_CATALOG_PATH", defaultCatalogPath),
			ProductFeedURL: stringWithDefault(lookup, "API_PRODUCT_FEED_URL", ""),
			ProductFeedTTL: durationWithDefault(lookup, "API_PRODUCT_FEED_TTL", defaultProductFeedTTL),
		},
		Quote: QuoteConfig{
			SessionTTL:      durationWithDefault(lookup, "API_QUOTE_SESSION_TTL", defaultSessionTTL),
			SweepInterval:   durationWithDefault(lookup, "API_QUOTE_SWEEP_INTERVAL", defaultSweepInterval),
			FinalizeTimeout: durationWithDefault(lookup, "API_QUOTE_FINALIZE_TIMEOUT", defaultFinalizeTimeout),
		},
		Travel: TravelConfig{
			Origin:         stringWithDefault(lookup, "API_TRAVEL_ORIGIN", defaultTravelOrigin),
			FreeKm:         floatWithDefault(lookup, "API_TRAVEL_FREE_KM", defaultTravelFreeKm),
			RatePerKm:      floatWithDefault(lookup, "API_TRAVEL_RATE_PER_KM", defaultTravelRatePerKm),
			CacheTTL:       durationWithDefault(lookup, "API_TRAVEL_CACHE_TTL", defaultTravelCacheTTL),
			RoutingTimeout: durationWithDefault(lookup, "API_TRAVEL_ROUTING_TIMEOUT", defaultTravelRoutingWait),
			Debounce:       durationWithDefault(lookup, "API_TRAVEL_DEBOUNCE", defaultTravelDebounce),
		},
		Geo: GeoConfig{
			GeocodeBaseURL: stringWithDefault(lookup, "API_GEOCODE_BASE_URL", defaultGeocodeBaseURL),
			UserAgent:      stringWithDefault(lookup, "API_GEOCODE_USER_AGENT", defaultGeocodeUserAgent),
			Country:        strings.ToLower(stringWithDefault(lookup, "API_GEOCODE_COUNTRY", defaultGeocodeCountry)),
			Timeout:        durationWithDefault(lookup, "API_GEOCODE_TIMEOUT", defaultGeocodeTimeout),
			CacheSize:      intWithDefault(lookup, "API_GEOCODE_CACHE_SIZE", defaultGeocodeCacheSize),
			CacheTTL:       durationWithDefault(lookup, "API_GEOCODE_CACHE_TTL", defaultGeocodeCacheTTL),
			RoutingBaseURL: stringWithDefault(lookup, "API_ROUTING_BASE_URL", defaultRoutingBaseURL),
		},
		Schedule: ScheduleConfig{
			TimeZone:     stringWithDefault(lookup, "API_SCHEDULE_TIMEZONE", defaultScheduleTimeZone),
			BlockedDates: csvWithDefault(lookup, "API_SCHEDULE_BLOCKED_DATES"),
		},
		Documents: DocumentsConfig{
			Backend:       strings.ToLower(stringWithDefault(lookup, "API_DOCUMENTS_BACKEND", defaultDocumentsBackend)),
			PublicBaseURL: strings.TrimRight(stringWithDefault(lookup, "API_DOCUMENTS_PUBLIC_BASE_URL", ""), "/"),
			GCSBucket:     stringWithDefault(lookup, "API_DOCUMENTS_GCS_BUCKET", ""),
			SignedURLTTL:  durationWithDefault(lookup, "API_DOCUMENTS_SIGNED_URL_TTL", defaultSignedURLTTL),
			FTP: FTPConfig{
				Host:          strings.TrimSuffix(strings.TrimSpace(stringWithDefault(lookup, "API_FTP_HOST", "")), "."),
				Port:          intWithDefault(lookup, "API_FTP_PORT", defaultFTPPort),
				User:          strings.TrimSpace(stringWithDefault(lookup, "API_FTP_USER", "")),
				Password:      stringWithDefault(lookup, "API_FTP_PASSWORD", ""),
				Secure:        boolWithDefault(lookup, "API_FTP_SECURE", true),
				TLSServerName: stringWithDefault(lookup, "API_FTP_TLS_SERVERNAME", ""),
				TLSInsecure:   boolWithDefault(lookup, "API_FTP_TLS_INSECURE", false),
				BaseDir:       stringWithDefault(lookup, "API_FTP_BASE_DIR", "/"),
				Timeout:       durationWithDefault(lookup, "API_FTP_TIMEOUT", defaultFTPTimeout),
			},
		},
		SMTP: SMTPConfig{
			Host:     stringWithDefault(lookup, "API_SMTP_HOST", ""),
			Port:     intWithDefault(lookup, "API_SMTP_PORT", defaultSMTPPort),
			User:     stringWithDefault(lookup, "API_SMTP_USER", ""),
			Password: stringWithDefault(lookup, "API_SMTP_PASSWORD", ""),
			Secure:   boolWithDefault(lookup, "API_SMTP_SECURE", false),
			From:     stringWithDefault(lookup, "API_SMTP_FROM", ""),
			CopyTo:   stringWithDefault(lookup, "API_SMTP_COPY_TO", ""),
		},
		PDF: PDFConfig{
			ChromePath: stringWithDefault(lookup, "API_PDF_CHROME_PATH", ""),
			Timeout:    durationWithDefault(lookup, "API_PDF_TIMEOUT", defaultPDFTimeout),
		},
		PSP: PSPConfig{
			StripeAPIKey:        stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			StripeWebhookSecret: stringWithDefault(lookup, "API_PSP_STRIPE_WEBHOOK_SECRET", ""),
			PlanPrices:          mapWithDefault(lookup, "API_PSP_STRIPE_PLAN_PRICES"),
			SiteURL:             strings.TrimRight(stringWithDefault(lookup, "API_SITE_URL", defaultSiteURL), "/"),
		},
		Admin: AdminConfig{
			Email:           strings.TrimSpace(stringWithDefault(lookup, "ADMIN_EMAIL", "")),
			Name:            stringWithDefault(lookup, "ADMIN_NAME", "Admin"),
			PasswordHash:    strings.TrimSpace(stringWithDefault(lookup, "ADMIN_PASSWORD_HASH", "")),
			PasswordHashB64: strings.TrimSpace(stringWithDefault(lookup, "ADMIN_PASSWORD_HASH_B64", "")),
			AuthSecret:      strings.TrimSpace(stringWithDefault(lookup, "AUTH_SECRET", "")),
			AuthSecretB64:   strings.TrimSpace(stringWithDefault(lookup, "AUTH_SECRET_B64", "")),
			AuthSecretHex:   strings.TrimSpace(stringWithDefault(lookup, "AUTH_SECRET_HEX", "")),
			CookieName:      stringWithDefault(lookup, "AUTH_COOKIE_NAME", defaultAdminCookieName),
			SessionTTL:      durationWithDefault(lookup, "AUTH_SESSION_TTL", defaultAdminSessionTTL),
		},
		Events: EventsConfig{
			ProjectID: stringWithDefault(lookup, "API_EVENTS_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "API_EVENTS_TOPIC", ""),
		},
		RateLimits: RateLimitConfig{
			GeocodePerMinute:  intWithDefault(lookup, "API_RATELIMIT_GEOCODE_PER_MIN", defaultRateGeocode),
			DistancePerMinute: intWithDefault(lookup, "API_RATELIMIT_DISTANCE_PER_MIN", defaultRateDistance),
			LoginPerMinute:    intWithDefault(lookup, "API_RATELIMIT_LOGIN_PER_MIN", defaultRateLogin),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatch),
		},
	}

	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.User
	}
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Server.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
		{"PSP.StripeWebhookSecret", &cfg.PSP.StripeWebhookSecret},
		{"SMTP.Password", &cfg.SMTP.Password},
		{"Documents.FTP.Password", &cfg.Documents.FTP.Password},
		{"Admin.AuthSecret", &cfg.Admin.AuthSecret},
		{"Admin.PasswordHash", &cfg.Admin.PasswordHash},
		{"Database.DSN", &cfg.Database.DSN},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var invalid []string
	check := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}

	check(cfg.Server.Port != "", "Server.Port")
	check(cfg.Database.Driver == "sqlite" || cfg.Database.Driver == "postgres", "Database.Driver")
	check(cfg.Database.DSN != "", "Database.DSN")
	check(cfg.Catalog.Path != "", "Catalog.Path")
	check(cfg.Quote.SessionTTL > 0, "Quote.SessionTTL")
	check(cfg.Quote.SweepInterval > 0, "Quote.SweepInterval")
	check(cfg.Travel.FreeKm >= 0, "Travel.FreeKm")
	check(cfg.Travel.RatePerKm > 0, "Travel.RatePerKm")
	check(cfg.Geo.CacheSize > 0, "Geo.CacheSize")
	_, tzErr := time.LoadLocation(cfg.Schedule.TimeZone)
	check(tzErr == nil, "Schedule.TimeZone")
	for _, date := range cfg.Schedule.BlockedDates {
		_, err := time.Parse(time.DateOnly, date)
		check(err == nil, "Schedule.BlockedDates")
	}
	switch cfg.Documents.Backend {
	case "ftp":
		if !cfg.Security.IsLocal() {
			check(cfg.Documents.FTP.Host != "", "Documents.FTP.Host")
			check(cfg.Documents.FTP.User != "", "Documents.FTP.User")
		}
	case "gcs":
		check(cfg.Documents.GCSBucket != "", "Documents.GCSBucket")
	case "memory":
		check(cfg.Security.IsLocal(), "Documents.Backend")
	default:
		invalid = append(invalid, "Documents.Backend")
	}
	if !cfg.Security.IsLocal() {
		check(cfg.SMTP.Host != "", "SMTP.Host")
		check(cfg.Admin.Email != "", "Admin.Email")
		check(cfg.Admin.AuthSecret != "" || cfg.Admin.AuthSecretB64 != "" || cfg.Admin.AuthSecretHex != "", "Admin.AuthSecret")
		check(cfg.Admin.PasswordHash != "" || cfg.Admin.PasswordHashB64 != "", "Admin.PasswordHash")
	}
	check(strings.TrimSpace(cfg.Idempotency.Header) != "", "Idempotency.Header")
	check(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	check(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	check(cfg.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")

	if len(invalid) > 0 {
		return &ValidationError{fields: dedupe(invalid)}
	}
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, _ := lookup(key)
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// mapWithDefault parses "k1=v1,k2=v2". Keys are lower-cased.
func mapWithDefault(lookup func(string) (string, bool), key string) map[string]string {
	raw, _ := lookup(key)
	return textutil.ParsePairs(raw)
}
