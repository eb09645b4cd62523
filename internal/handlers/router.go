package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/recophone/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type middlewareFunc = func(http.Handler) http.Handler

const (
	defaultAPIPrefix = "/api/v1"
	defaultTimeout   = 60 * time.Second

	groupPublic    = "public"
	groupQuotes    = "quotes"
	groupDocuments = "documents"
	groupCheckout  = "checkout"
	groupAdmin     = "admin"
	groupWebhooks  = "webhooks"
)

// apiGroups lists the route groups under /api/v1 in mount order. The public group has no prefix.
var apiGroups = []struct {
	name   string
	prefix string
}{
	{groupPublic, ""},
	{groupQuotes, "/quotes"},
	{groupDocuments, "/documents"},
	{groupCheckout, "/checkout"},
	{groupAdmin, "/admin"},
	{groupWebhooks, "/webhooks"},
}

// publicPaths answer 501 when the public group has no registrar.
var publicPaths = []string{"/catalog", "/products", "/geocode", "/distance"}

type routeGroup struct {
	registrar   RouteRegistrar
	middlewares []middlewareFunc
}

type routerConfig struct {
	middlewares []middlewareFunc
	health      *HealthHandlers
	groups      map[string]*routeGroup
}

func (c *routerConfig) group(name string) *routeGroup {
	g, ok := c.groups[name]
	if !ok {
		g = &routeGroup{}
		c.groups[name] = g
	}
	return g
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

// NewRouter builds the chi router: probes at the root, feature groups under /api/v1.
// A group without a registrar answers 501 not_implemented.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []middlewareFunc{middleware.RequestID, middleware.RealIP, middleware.Timeout(defaultTimeout)},
		groups:      make(map[string]*routeGroup, len(apiGroups)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	use(r, cfg.middlewares)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})
	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(defaultAPIPrefix, func(api chi.Router) {
		for _, spec := range apiGroups {
			g := cfg.group(spec.name)
			name := spec.name
			mount := func(sub chi.Router) {
				use(sub, g.middlewares)
				switch {
				case g.registrar != nil:
					g.registrar(sub)
				case spec.prefix == "":
					for _, path := range publicPaths {
						sub.HandleFunc(path, notImplemented(name))
					}
				default:
					sub.HandleFunc("/*", notImplemented(name))
					sub.HandleFunc("/", notImplemented(name))
				}
			}
			if spec.prefix == "" {
				api.Group(mount)
			} else {
				api.Route(spec.prefix, mount)
			}
		}
	})
	return r
}

func use(r chi.Router, mws []middlewareFunc) {
	for _, mw := range mws {
		if mw != nil {
			r.Use(mw)
		}
	}
}

func notImplemented(group string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", group+" routes not implemented", http.StatusNotImplemented))
	}
}

func withRegistrar(group string, reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.group(group).registrar = reg
	}
}

func withGroupMiddlewares(group string, mw []middlewareFunc) Option {
	return func(cfg *routerConfig) {
		g := cfg.group(group)
		g.middlewares = append(g.middlewares, mw...)
	}
}

// WithMiddlewares appends global middleware, applied before routing.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithPublicRoutes mounts catalog, geocode and distance at the API root.
func WithPublicRoutes(reg RouteRegistrar) Option { return withRegistrar(groupPublic, reg) }

func WithPublicMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return withGroupMiddlewares(groupPublic, mw)
}

// WithQuoteRoutes mounts the wizard session endpoints under /quotes.
func WithQuoteRoutes(reg RouteRegistrar) Option { return withRegistrar(groupQuotes, reg) }

// WithDocumentRoutes mounts on-demand PDF rendering under /documents.
func WithDocumentRoutes(reg RouteRegistrar) Option { return withRegistrar(groupDocuments, reg) }

func WithCheckoutRoutes(reg RouteRegistrar) Option { return withRegistrar(groupCheckout, reg) }

func WithAdminRoutes(reg RouteRegistrar) Option { return withRegistrar(groupAdmin, reg) }

func WithWebhookRoutes(reg RouteRegistrar) Option { return withRegistrar(groupWebhooks, reg) }

func WithWebhookMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return withGroupMiddlewares(groupWebhooks, mw)
}
