package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	phoneverify "github.com/MrEthical07/phoneverify"
	"github.com/MrEthical07/phoneverify/middleware"
)

// Options tunes the router. The zero value is usable.
type Options struct {
	Logger *slog.Logger
	// TrustForwarded reads the client address from X-Forwarded-For.
	TrustForwarded bool
	// RealmHeader names the header selecting the realm. Default "X-Realm".
	RealmHeader  string
	DefaultRealm string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Health is called by /healthz; nil reports healthy.
	Health         func(ctx context.Context) error
	RequestTimeout time.Duration
}

// Handler serves the verification endpoints.
type Handler struct {
	engine *phoneverify.Engine
	logger *slog.Logger
}

// NewRouter returns a router exposing engine.
//
//	POST /v1/codes                      request a code
//	GET  /v1/codes/pending              remaining lifetime of the live code
//	POST /v1/codes/validate             check a code without consuming it
//	POST /v1/codes/{recordID}/consume   consume a validated code
//	POST /v1/codes/verify               validate and consume
//	POST /v1/phone-bindings             bind a verified number (proof required)
func NewRouter(engine *phoneverify.Engine, opts Options) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	realmHeader := opts.RealmHeader
	if realmHeader == "" {
		realmHeader = "X-Realm"
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	h := &Handler{engine: engine, logger: logger}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", healthz(opts.Health))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(timeout))
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(middleware.SourceAddress(opts.TrustForwarded))
		r.Use(middleware.Realm(realmHeader, opts.DefaultRealm))

		r.Post("/codes", h.RequestCode)
		r.Get("/codes/pending", h.Pending)
		r.Post("/codes/validate", h.Validate)
		r.Post("/codes/verify", h.Verify)
		r.Post("/codes/{recordID}/consume", h.Consume)

		if engine.Config().Proof.Enabled {
			r.With(middleware.RequireProof(engine, phoneverify.PurposeVerify)).
				Post("/phone-bindings", h.BindPhone)
		}
	})

	return r
}

func healthz(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, map[string]string{"status": "unavailable"})
				return
			}
		}
		render.JSON(w, r, map[string]string{"status": "ok"})
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
