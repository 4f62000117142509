// Package api serves the REST surface of the relational mirror. The remote
// storage backend is its client.
package api

import (
	"crypto/subtle"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/vitrine-shop/vitrine/internal/catalog"
	"github.com/vitrine-shop/vitrine/internal/errors"
	"github.com/vitrine-shop/vitrine/internal/storage"
)

// Options configures the API handler.
type Options struct {
	// MaxBodyBytes caps request bodies; 0 means no limit.
	MaxBodyBytes int64

	// Token, when set, must be presented as a bearer token on every route
	// except /health.
	Token string

	Logger *slog.Logger
}

type handlers struct {
	facade *storage.Facade
	opts   Options
	logger *slog.Logger
}

// NewHandler returns the API routes, rooted at "/". Mount it under a
// prefix with http.StripPrefix.
func NewHandler(facade *storage.Facade, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &handlers{facade: facade, opts: opts, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /profile", h.handleGetProfile)
	mux.HandleFunc("POST /profile", h.handleSaveProfile)
	mux.HandleFunc("GET /items", h.handleListItems)
	mux.HandleFunc("POST /items", h.handleSaveItem)
	mux.HandleFunc("DELETE /items/{id}", h.handleDeleteItem)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		h.renderError(w, r, &errors.VitrineError{
			Code:    errors.ErrNotFound,
			Status:  http.StatusNotFound,
			Message: "no such endpoint: " + r.Method + " " + r.URL.Path,
		})
	})

	return h.sameOrigin(h.requireToken(mux))
}

// sameOrigin refuses requests a browser sent on behalf of another site.
// Programmatic clients send no Origin and pass through.
func (h *handlers) sameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Sec-Fetch-Site") == "cross-site" {
			h.renderError(w, r, errors.NewForbidden("cross-origin request refused"))
			return
		}
		if origin := r.Header.Get("Origin"); origin != "" {
			u, err := url.Parse(origin)
			if err != nil || !strings.EqualFold(u.Host, r.Host) {
				h.renderError(w, r, errors.NewForbidden("cross-origin request refused"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requireToken rejects requests without the configured bearer token.
func (h *handlers) requireToken(next http.Handler) http.Handler {
	if h.opts.Token == "" {
		return next
	}
	want := []byte(h.opts.Token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
			h.renderError(w, r, errors.NewUnauthorized("missing or invalid API token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealth handles GET /health. Counting items proves the store is
// reachable.
func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := h.facade.CountItems(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"backend": h.facade.Engine(),
		"items":   n,
	})
}

// handleGetProfile handles GET /profile. Responds with null before setup.
func (h *handlers) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.facade.GetProfile(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, p)
}

// handleSaveProfile handles POST /profile: full replace of the singleton.
func (h *handlers) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var p catalog.Profile
	if err := h.decode(w, r, &p); err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.facade.SaveProfile(r.Context(), p); err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"message": "Profile saved"})
}

// handleListItems handles GET /items: newest first.
func (h *handlers) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.facade.GetItems(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, items)
}

// handleSaveItem handles POST /items: upsert by id.
func (h *handlers) handleSaveItem(w http.ResponseWriter, r *http.Request) {
	var item catalog.Item
	if err := h.decode(w, r, &item); err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.facade.SaveItem(r.Context(), item); err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"message": "Item saved",
		"id":      item.ID,
	})
}

// handleDeleteItem handles DELETE /items/{id}. Unknown ids succeed.
func (h *handlers) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.facade.DeleteItem(r.Context(), id); err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"message": "Item deleted"})
}

// decode reads a JSON body into v, enforcing the content type and the body
// limit.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) error {
	contentType := r.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || mediaType != "application/json" {
		return errors.NewUnsupportedMedia(contentType)
	}
	body := r.Body
	if h.opts.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return errors.NewPayloadTooLarge(maxErr.Limit)
		}
		return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// renderError writes the structured JSON error. Server-side failures are
// reported as 500 so clients treat them as transport errors.
func (h *handlers) renderError(w http.ResponseWriter, r *http.Request, err error) {
	vErr := errors.Wrap(err)
	status := vErr.Status
	if status >= 500 {
		status = http.StatusInternalServerError
		h.logger.Error("api request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	renderJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    string(vErr.Code),
			"message": vErr.Message,
			"status":  status,
		},
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
