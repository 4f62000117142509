package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/vitrine-shop/vitrine/internal/app"
	"github.com/vitrine-shop/vitrine/internal/catalog"
	"github.com/vitrine-shop/vitrine/internal/errors"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title         string
	Version       string
	Store         catalog.Profile // redacted
	HasStore      bool
	Accent        template.CSS
	Authenticated bool
	Flash         *app.Flash
	CSRFField     template.HTML
}

// ScreenData is the template data for every screen of the app.
type ScreenData struct {
	PageData
	Screen app.Screen

	// Storefront and dashboard listing.
	Items     []catalog.Item
	Query     catalog.Query
	Total     int
	SoldCount int

	// Product page.
	Selected    *catalog.Item
	Analysis    catalog.Analysis
	Analyzed    bool
	Description template.HTML
	ContactLink string

	// Details form. NoPending is set when the screen was reached without
	// a draft.
	Pending   *app.Pending
	Details   app.DetailsForm
	NoPending bool

	// Setup form.
	Setup  app.SetupForm
	Colors []string

	// Delete confirmation.
	ConfirmItem *catalog.Item
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	logger    *slog.Logger
}

var pages = map[string]string{
	string(app.ScreenSetup):      "setup.html",
	string(app.ScreenLogin):      "login.html",
	string(app.ScreenDashboard):  "dashboard.html",
	string(app.ScreenScan):       "scan.html",
	string(app.ScreenDetails):    "details.html",
	string(app.ScreenLegal):      "legal.html",
	string(app.ScreenStorefront): "storefront.html",
	string(app.ScreenProduct):    "product.html",
	"error":                      "error.html",
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	funcMap := template.FuncMap{
		"imgSrc":      imgSrc,
		"typeLabel":   func(t catalog.ItemType) string { return t.Label() },
		"statusLabel": statusLabel,
		"formatDate":  formatDate,
		"hasPrefix":   strings.HasPrefix,
	}

	// Parse layout as the base template
	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
		logger:    logger,
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.renderPageStatus(w, req, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
// For HTMX requests, only the "content" block is rendered to avoid duplicating the layout.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.logger.Error("template not found", "template", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	block := "layout"
	if req != nil && req.Header.Get("HX-Request") == "true" {
		block = "content"
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		r.logger.Error("template execution failed", "template", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	vErr := errors.Wrap(err)
	status := vErr.Status
	message := vErr.Message
	if status >= 500 {
		r.logger.Error("request failed", "method", req.Method, "path", req.URL.Path, "error", err)
		message = "אירעה שגיאה בלתי צפויה"
	}

	// HTMX request: return HTML fragment
	if req.Header.Get("HX-Request") == "true" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, `<div class="error-message">%s</div>`, template.HTMLEscapeString(message))
		return
	}

	// JSON request
	if strings.Contains(req.Header.Get("Accept"), "application/json") {
		renderJSON(w, status, map[string]any{
			"error": map[string]any{
				"code":    string(vErr.Code),
				"message": message,
				"status":  status,
			},
		})
		return
	}

	// Full error page
	r.renderPageStatus(w, req, status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("שגיאה %d", status),
			Version: r.version,
			Accent:  accentCSS(""),
		},
		StatusCode: status,
		Message:    message,
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark. Raw HTML in
// the source is dropped.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

var hexColorRegex = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// accentCSS returns a theme color that is safe to place in a style
// attribute.
func accentCSS(color string) template.CSS {
	if !hexColorRegex.MatchString(color) {
		color = catalog.DefaultThemeColor
	}
	return template.CSS("--accent: " + color)
}

// imgSrc marks inline image data URLs as safe for src attributes.
// Anything else is dropped.
func imgSrc(s string) template.URL {
	if strings.HasPrefix(s, "data:image/") {
		return template.URL(s)
	}
	return ""
}

func statusLabel(s catalog.ItemStatus) string {
	if s.OrDefault() == catalog.StatusSold {
		return "נמכר"
	}
	return "זמין"
}

// formatDate formats Unix milliseconds as "02/01/2006" UTC.
func formatDate(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format("02/01/2006")
}
