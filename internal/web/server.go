package web

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/csrf"

	"github.com/vitrine-shop/vitrine/internal/api"
	"github.com/vitrine-shop/vitrine/internal/app"
	"github.com/vitrine-shop/vitrine/internal/config"
	"github.com/vitrine-shop/vitrine/internal/errors"
	"github.com/vitrine-shop/vitrine/internal/metrics"
	"github.com/vitrine-shop/vitrine/internal/storage"
	"github.com/vitrine-shop/vitrine/internal/vision"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Deps are the collaborators the server wires together.
type Deps struct {
	// Facade is the configured backend the UI reads and writes.
	Facade *storage.Facade

	// Mirror serves the REST API under /api. Nil disables the API.
	Mirror *storage.Facade

	Analyzer vision.Analyzer
	Logger   *slog.Logger
}

// NewServer creates and configures the HTTP server for the Vitrine UI and
// REST API.
func NewServer(deps Deps, cfg *config.Config, version string) (*http.Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// Create sub-FS for templates (strip "templates/" prefix)
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}

	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	renderer := NewRenderer(templateSub, version, logger)
	h := newHandlers(deps, cfg, renderer, logger)

	key, err := csrfKey(cfg.SessionKey)
	if err != nil {
		return nil, err
	}
	port := strconv.Itoa(cfg.Port)
	protect := csrf.Protect(key,
		csrf.Secure(cfg.CookieSecure),
		csrf.Path("/"),
		csrf.TrustedOrigins([]string{cfg.Addr(), "localhost:" + port, "127.0.0.1:" + port}),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			renderer.renderError(w, r, &errors.VitrineError{
				Code:    errors.ErrUnauthorized,
				Status:  http.StatusForbidden,
				Message: "פג תוקף הטופס, יש לרענן את הדף",
				Cause:   csrf.FailureReason(r),
			})
		})),
	)

	mux := http.NewServeMux()
	if deps.Mirror != nil {
		mux.Handle("/api/", http.StripPrefix("/api", api.NewHandler(deps.Mirror, api.Options{
			MaxBodyBytes: cfg.MaxBodyBytes,
			Token:        cfg.APIToken,
			Logger:       logger,
		})))
	}
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))
	mux.Handle("/", protect(h.routes()))

	handler := loggingMiddleware(logger,
		securityHeaders(
			recoverPanics(renderer, logger,
				metrics.InstrumentHandler(mux))))

	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// newHandlers builds the UI handlers with one controller per session.
func newHandlers(deps Deps, cfg *config.Config, renderer *Renderer, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts := app.Options{
		MaxImageWidth:          cfg.MaxImageWidth,
		LoginAttemptsPerMinute: cfg.LoginAttemptsPerMinute,
		Logger:                 logger,
	}
	newController := func() *app.Controller {
		return app.NewController(deps.Facade, deps.Analyzer, opts)
	}
	return &Handlers{
		sessions:     newSessionManager(newCookieStore(cfg.SessionKey, cfg.CookieSecure), newController, logger),
		renderer:     renderer,
		maxBodyBytes: cfg.MaxBodyBytes,
		logger:       logger,
	}
}

// csrfKey derives the 32-byte CSRF key from the session key, or generates
// one when no session key is configured.
func csrfKey(sessionKey string) ([]byte, error) {
	if sessionKey != "" {
		sum := sha256.Sum256([]byte("csrf:" + sessionKey))
		return sum[:], nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate csrf key: %w", err)
	}
	return key, nil
}

// securityHeaders adds security-related HTTP headers to all responses.
// Photos and logos are inline data URLs and the accent color is an inline
// style, hence img-src data: and style-src 'unsafe-inline'.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy",
			"default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; form-action 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs one line per request.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
		)
	})
}

// recoverPanics turns a panicking handler into the generic failure page,
// which offers a reload.
func recoverPanics(renderer *Renderer, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.Error("panic serving request", "path", r.URL.Path, "panic", v)
				renderer.renderError(w, r, errors.NewInternal(fmt.Errorf("panic: %v", v)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *slog.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("vitrine running", "url", "http://"+srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
