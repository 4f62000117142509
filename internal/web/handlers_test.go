package web

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/vitrine-shop/vitrine/internal/catalog"
	"github.com/vitrine-shop/vitrine/internal/config"
	"github.com/vitrine-shop/vitrine/internal/errors"
	"github.com/vitrine-shop/vitrine/internal/storage"
)

const adminPassword = "hunter2"

type stubAnalyzer struct {
	analysis catalog.Analysis
	colors   []string
}

func (s stubAnalyzer) AnalyzeItem(_ context.Context, _, _ string, _ catalog.ItemType, credential string) (catalog.Analysis, error) {
	if credential == "" {
		return catalog.Analysis{}, errors.NewMissingCredential()
	}
	return s.analysis, nil
}

func (s stubAnalyzer) AnalyzeLogoColors(context.Context, string, string) []string {
	return s.colors
}

type testEnv struct {
	h      *Handlers
	facade *storage.Facade
}

func setupTest(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	backend, err := storage.NewLocalBackend(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	facade := storage.NewFacade(backend, nil)

	cfg := config.DefaultConfig()
	cfg.MaxImageWidth = 0
	cfg.LoginAttemptsPerMinute = 0
	if mutate != nil {
		mutate(cfg)
	}

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		t.Fatalf("template sub-FS: %v", err)
	}
	renderer := NewRenderer(templateSub, "test", nil)

	analyzer := stubAnalyzer{
		analysis: catalog.Analysis{
			ItemName:        "חצי שקל 1986",
			Year:            "1986",
			Origin:          "ישראל",
			Anomalies:       []string{},
			ConfidenceScore: 90,
		},
		colors: []string{"#112233", "#445566"},
	}
	h := newHandlers(Deps{Facade: facade, Analyzer: analyzer}, cfg, renderer, nil)
	return &testEnv{h: h, facade: facade}
}

// seedStore saves a complete profile and returns it.
func seedStore(t *testing.T, env *testEnv) catalog.Profile {
	t.Helper()
	hash, err := catalog.HashPassword(adminPassword)
	require.NoError(t, err)
	p := catalog.Profile{
		StoreName:     "מטבעות הגליל",
		OwnerName:     "דנה",
		Email:         "shop@example.com",
		Password:      hash,
		APIKey:        "key",
		TermsAccepted: true,
	}
	require.NoError(t, env.facade.SaveProfile(context.Background(), p))
	return p
}

func seedItem(t *testing.T, env *testEnv, id, name string, createdAt int64) catalog.Item {
	t.Helper()
	item := catalog.Item{
		ID:        id,
		Type:      catalog.ItemTypeCoin,
		Status:    catalog.StatusAvailable,
		Analysis:  &catalog.Analysis{ItemName: name, Year: "1949", Anomalies: []string{}},
		UserPrice: "120",
		CreatedAt: createdAt,
	}
	require.NoError(t, env.facade.SaveItem(context.Background(), item))
	return item
}

// browser replays the session cookie between requests.
type browser struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func newBrowser(t *testing.T, env *testEnv) *browser {
	return &browser{t: t, handler: env.h.routes(), cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest("GET", path, nil))
}

func (b *browser) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

// page returns the body of the current screen.
func (b *browser) page() string {
	b.t.Helper()
	rec := b.get("/")
	if rec.Code != http.StatusOK {
		b.t.Fatalf("GET / status = %d, want 200", rec.Code)
	}
	return rec.Body.String()
}

func (b *browser) login() {
	b.t.Helper()
	b.post("/navigate", url.Values{"screen": {"dashboard"}})
	rec := b.post("/login", url.Values{"password": {adminPassword}})
	if rec.Code != http.StatusSeeOther {
		b.t.Fatalf("POST /login status = %d, want 303", rec.Code)
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// --- Screens ---

func TestIndex_NoProfileShowsSetup(t *testing.T) {
	env := setupTest(t, nil)
	b := newBrowser(t, env)

	body := b.page()
	assert.Contains(t, body, `action="/setup"`)
	assert.Contains(t, body, `dir="rtl"`)
	assert.Contains(t, b.cookies, sessionName)
}

func TestSetup_FirstRunSignsInAndSaves(t *testing.T) {
	env := setupTest(t, nil)
	b := newBrowser(t, env)
	b.page()

	rec := b.post("/setup", url.Values{
		"store_name":  {"בולים ועוד"},
		"owner_name":  {"אבי"},
		"email":       {"avi@example.com"},
		"password":    {"s3cret"},
		"api_key":     {"k"},
		"theme_color": {"#dc2626"},
		"terms":       {"1"},
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("POST /setup status = %d, want 303; body = %s", rec.Code, rec.Body.String())
	}

	body := b.page()
	assert.Contains(t, body, "ניהול מלאי", "lands on the dashboard")
	assert.Contains(t, body, "--accent: #dc2626")

	p, err := env.facade.GetProfile(context.Background())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "בולים ועוד", p.StoreName)
	assert.True(t, catalog.CheckPassword(p.Password, "s3cret"))
	assert.NotEqual(t, "s3cret", p.Password)
}

func TestSetup_RejectedFormKeepsInputWithoutSecrets(t *testing.T) {
	env := setupTest(t, nil)
	b := newBrowser(t, env)
	b.page()

	rec := b.post("/setup", url.Values{
		"store_name": {"חנות"},
		"owner_name": {"רותם"},
		"password":   {"s3cret"},
		"api_key":    {"top-secret-key"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	assert.Contains(t, body, `value="רותם"`)
	assert.NotContains(t, body, "top-secret-key")
	assert.Contains(t, body, "flash-error")

	p, err := env.facade.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSuggestColors_RendersSwatches(t *testing.T) {
	env := setupTest(t, nil)
	b := newBrowser(t, env)
	b.page()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("store_name", "חנות"))
	require.NoError(t, mw.WriteField("api_key", "k"))
	part, err := mw.CreateFormFile("logo", "logo.png")
	require.NoError(t, err)
	_, _ = part.Write(pngBytes(t))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/setup/colors", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := b.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	html := rec.Body.String()
	assert.Contains(t, html, `value="#112233"`)
	assert.Contains(t, html, `value="#445566"`)
	assert.Contains(t, html, `name="logo_data"`, "uploaded logo is carried to the next submit")
	assert.NotContains(t, html, `value="k"`)
}

func TestDeepLink_FirstVisitOpensProduct(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	item := seedItem(t, env, "01HZX", "לירה ישראלית", 1000)
	b := newBrowser(t, env)

	rec := b.get("/?item=" + item.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "לירה ישראלית")
	assert.Contains(t, body, "mailto:shop@example.com")

	b.post("/back", nil)
	assert.Contains(t, b.page(), `name="q"`, "back from a deep link lands on the storefront")
}

func TestDeepLink_UnknownItemFallsBackToStorefront(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	b := newBrowser(t, env)

	body := b.get("/?item=missing").Body.String()
	assert.Contains(t, body, `name="q"`)
}

func TestStorefront_Filter(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	seedItem(t, env, "a", "פרוטה", 1000)
	seedItem(t, env, "b", "לירה", 2000)
	b := newBrowser(t, env)
	b.page()

	body := b.get("/?q=" + url.QueryEscape("פרוטה")).Body.String()
	assert.Contains(t, body, "פרוטה")
	assert.NotContains(t, body, `href="/items/b"`)

	body = b.get("/?type=STAMP").Body.String()
	assert.Contains(t, body, "לא נמצאו פריטים")
}

func TestProductRoute_RedirectsAndShowsItem(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	seedItem(t, env, "a", "פרוטה", 1000)
	b := newBrowser(t, env)
	b.page()

	rec := b.get("/items/a")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc := rec.Header().Get("Location")
	if loc != "/?item=a" {
		t.Fatalf("Location = %q, want %q", loc, "/?item=a")
	}
	assert.Contains(t, b.get(loc).Body.String(), "יצירת קשר לרכישה")

	// A visitor with a session keeps the product as the current screen.
	b.post("/navigate", url.Values{"screen": {"storefront"}})
	b.get(b.get("/items/a").Header().Get("Location"))
	assert.Contains(t, b.page(), "יצירת קשר לרכישה")
}

func TestDashboard_RequiresLogin(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	seedItem(t, env, "a", "פרוטה", 1000)
	b := newBrowser(t, env)
	b.page()

	b.post("/navigate", url.Values{"screen": {"dashboard"}})
	assert.Contains(t, b.page(), `action="/login"`)

	b.post("/login", url.Values{"password": {"wrong"}})
	body := b.page()
	assert.Contains(t, body, `action="/login"`)
	assert.Contains(t, body, "flash-error")

	b.post("/login", url.Values{"password": {adminPassword}})
	body = b.page()
	assert.Contains(t, body, "ניהול מלאי")
	assert.Contains(t, body, "פרוטה")

	b.post("/logout", nil)
	assert.Contains(t, b.page(), `name="q"`)
}

func TestScan_AnalyzeThenSave(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	b := newBrowser(t, env)
	b.page()
	b.login()
	b.post("/navigate", url.Values{"screen": {"scan"}})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("type", "COIN"))
	require.NoError(t, mw.WriteField("action", "analyze"))
	for _, side := range []string{"front", "back"} {
		part, err := mw.CreateFormFile(side, side+".png")
		require.NoError(t, err)
		_, _ = part.Write(pngBytes(t))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest("POST", "/scan", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := b.do(req)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	page := b.page()
	assert.Contains(t, page, `action="/details"`)
	assert.Contains(t, page, `value="חצי שקל 1986"`)
	assert.Contains(t, page, "data:image/png;base64,")

	rec = b.post("/details", url.Values{
		"action":     {"save"},
		"item_name":  {"חצי שקל 1986"},
		"year":       {"1986"},
		"user_price": {"45"},
		"status":     {"AVAILABLE"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, b.page(), "הפריט נשמר בהצלחה")

	items, err := env.facade.GetItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "45", items[0].UserPrice)
	assert.NotZero(t, items[0].CreatedAt)
}

func TestScan_MissingPhotoFlashes(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	b := newBrowser(t, env)
	b.page()
	b.login()
	b.post("/navigate", url.Values{"screen": {"scan"}})

	b.post("/scan", url.Values{"type": {"COIN"}})
	body := b.page()
	assert.Contains(t, body, "חובה להעלות תמונה של שני הצדדים")
	assert.Contains(t, body, `action="/scan"`)
}

func TestScan_NonImageUploadFlashes(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	b := newBrowser(t, env)
	b.page()
	b.login()
	b.post("/navigate", url.Values{"screen": {"scan"}})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("front", "notes.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte("plain text, not a photo"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest("POST", "/scan", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	b.do(req)

	assert.Contains(t, b.page(), "הקובץ שהועלה אינו תמונה")
}

func TestDetails_RejectedSaveKeepsTypedValues(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	seedItem(t, env, "a", "פרוטה", 1000)
	b := newBrowser(t, env)
	b.page()
	b.login()
	b.post("/items/a/edit", nil)

	rec := b.post("/details", url.Values{
		"action":     {"save"},
		"item_name":  {"שם חדש"},
		"user_price": {""},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `value="שם חדש"`)
	assert.Contains(t, body, "יש להזין מחיר")
}

func TestDetails_WithoutDraftShowsNotice(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	b := newBrowser(t, env)
	b.page()
	b.login()

	b.post("/navigate", url.Values{"screen": {"details"}})
	assert.Contains(t, b.page(), "אין פריט בעריכה")
}

func TestDeleteFlow(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	seedItem(t, env, "a", "פרוטה", 1000)
	b := newBrowser(t, env)
	b.page()
	b.login()

	b.post("/items/a/delete", nil)
	assert.Contains(t, b.page(), `action="/delete/confirm"`)

	b.post("/delete/cancel", nil)
	assert.NotContains(t, b.page(), `action="/delete/confirm"`)

	b.post("/items/a/delete", nil)
	b.post("/delete/confirm", nil)

	items, err := env.facade.GetItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Contains(t, b.page(), "עדיין אין פריטים במלאי")
}

func TestToggleStatus(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	seedItem(t, env, "a", "פרוטה", 1000)
	b := newBrowser(t, env)
	b.page()
	b.login()

	b.post("/items/a/toggle", nil)
	item, ok, err := env.facade.FindItem(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, catalog.StatusSold, item.Status)
	assert.Contains(t, b.page(), "סימון כזמין")
}

func TestAdminPostsWithoutLoginAreRefused(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	seedItem(t, env, "a", "פרוטה", 1000)
	b := newBrowser(t, env)
	b.page()

	b.post("/items/a/toggle", nil)
	b.post("/items/a/delete", nil)
	b.post("/delete/confirm", nil)

	item, ok, err := env.facade.FindItem(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, catalog.StatusAvailable, item.Status)
	assert.Contains(t, b.page(), `action="/login"`)
}

func TestFlashDismiss(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	b := newBrowser(t, env)
	b.page()

	b.post("/navigate", url.Values{"screen": {"nowhere"}})
	assert.Contains(t, b.page(), "flash-error")

	b.post("/flash/dismiss", nil)
	assert.NotContains(t, b.page(), "flash-error")
}

func TestBodyLimit_Flashes(t *testing.T) {
	env := setupTest(t, func(c *config.Config) { c.MaxBodyBytes = 64 })
	seedStore(t, env)
	b := newBrowser(t, env)
	b.page()
	b.login()

	b.post("/details", url.Values{"description": {strings.Repeat("א", 200)}})
	assert.Contains(t, b.page(), "request body exceeds 64 bytes")
}

func TestHtmxReturnsContentOnly(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	b := newBrowser(t, env)
	b.page()

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("HX-Request", "true")
	rec := b.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<!DOCTYPE html>")
	assert.Contains(t, rec.Body.String(), `name="q"`)
}

func TestUnknownRoute(t *testing.T) {
	env := setupTest(t, nil)
	b := newBrowser(t, env)

	rec := b.get("/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "הדף המבוקש לא נמצא")
}

// --- Error rendering ---

func TestErrorRendering(t *testing.T) {
	env := setupTest(t, nil)
	r := env.h.renderer

	t.Run("htmx fragment", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("HX-Request", "true")
		rec := httptest.NewRecorder()
		r.renderError(rec, req, errors.NewNotFound("x"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), `class="error-message"`)
	})

	t.Run("json", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Accept", "text/html, application/json")
		rec := httptest.NewRecorder()
		r.renderError(rec, req, errors.NewStorageFailure("get items", context.DeadlineExceeded))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		body := rec.Body.String()
		assert.Equal(t, "STORAGE_FAILURE", gjson.Get(body, "error.code").String())
		assert.Equal(t, "אירעה שגיאה בלתי צפויה", gjson.Get(body, "error.message").String())
	})

	t.Run("full page offers reload", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		rec := httptest.NewRecorder()
		r.renderError(rec, req, errors.NewInternal(context.Canceled))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), `href="/reload"`)
		assert.NotContains(t, rec.Body.String(), "context canceled")
	})
}

// --- Server wiring ---

func TestNewServer_Wiring(t *testing.T) {
	env := setupTest(t, nil)
	cfg := config.DefaultConfig()
	srv, err := NewServer(Deps{Facade: env.facade, Mirror: env.facade, Analyzer: stubAnalyzer{}}, cfg, "test")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", gjson.Get(rec.Body.String(), "status").String())
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "img-src 'self' data:")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/static/style.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Form posts without a CSRF token are refused.
	req := httptest.NewRequest("POST", "/logout", nil)
	req.Header.Set("Referer", "https://"+cfg.Addr()+"/")
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestNewServer_APIRefusesCrossSiteWrites(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	srv, err := NewServer(Deps{Facade: env.facade, Mirror: env.facade, Analyzer: stubAnalyzer{}}, config.DefaultConfig(), "test")
	require.NoError(t, err)

	body := `{"storeName":"pwned","password":"attacker","apiKey":"x"}`
	for _, tc := range []struct {
		name, contentType string
		want              int
	}{
		{"simple form post", "text/plain", http.StatusForbidden},
		{"json from another site", "application/json", http.StatusForbidden},
	} {
		req := httptest.NewRequest("POST", "/api/profile", strings.NewReader(body))
		req.Header.Set("Content-Type", tc.contentType)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, tc.name)
	}

	req := httptest.NewRequest("POST", "/api/profile", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code, "non-JSON body without an Origin")

	p, err := env.facade.GetProfile(context.Background())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NotEqual(t, "pwned", p.StoreName)
}

func TestNewServer_NoMirrorDisablesAPI(t *testing.T) {
	env := setupTest(t, nil)
	srv, err := NewServer(Deps{Facade: env.facade, Analyzer: stubAnalyzer{}}, config.DefaultConfig(), "test")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoverPanics(t *testing.T) {
	env := setupTest(t, nil)
	h := recoverPanics(env.h.renderer, env.h.logger, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/reload"`)
}

// --- Helpers ---

func TestAccentCSS(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"#dc2626", "--accent: #dc2626"},
		{"#abc", "--accent: #abc"},
		{"", "--accent: " + catalog.DefaultThemeColor},
		{"red; background: url(x)", "--accent: " + catalog.DefaultThemeColor},
	}
	for _, tt := range tests {
		if got := string(accentCSS(tt.in)); got != tt.want {
			t.Errorf("accentCSS(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestImgSrc(t *testing.T) {
	if got := imgSrc("data:image/png;base64,AAAA"); got != "data:image/png;base64,AAAA" {
		t.Errorf("imgSrc(data URL) = %q", got)
	}
	for _, in := range []string{"javascript:alert(1)", "https://example.com/a.png", "data:text/html;base64,AAAA"} {
		if got := imgSrc(in); got != "" {
			t.Errorf("imgSrc(%q) = %q, want empty", in, got)
		}
	}
}

func TestFormatDate(t *testing.T) {
	if got := formatDate(0); got != "" {
		t.Errorf("formatDate(0) = %q, want empty", got)
	}
	if got := formatDate(1700000000000); got != "14/11/2023" {
		t.Errorf("formatDate = %q, want 14/11/2023", got)
	}
}

func TestSessionEviction(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	m := env.h.sessions

	b := newBrowser(t, env)
	b.post("/navigate", url.Values{"screen": {"storefront"}})
	require.Equal(t, 1, m.count())

	now := m.now()
	m.now = func() time.Time { return now.Add(sessionIdleTimeout + time.Minute) }

	newBrowser(t, env).post("/navigate", url.Values{"screen": {"storefront"}})
	assert.Equal(t, 1, m.count(), "idle session evicted, new one kept")
}

func TestAnonymousViewsKeepNoSession(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	seedItem(t, env, "a", "פרוטה", 1000)
	h := env.h.routes()

	for i := 0; i < 200; i++ {
		for _, path := range []string{"/", "/?item=a", "/reload"} {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
			if rec.Code >= 400 {
				t.Fatalf("GET %s status = %d", path, rec.Code)
			}
			assert.Empty(t, rec.Result().Cookies(), "GET %s sets no session cookie", path)
		}
	}
	if got := env.h.sessions.count(); got != 0 {
		t.Fatalf("live sessions = %d, want 0", got)
	}
}

func TestSessionLimitEvictsLeastRecentlyUsed(t *testing.T) {
	env := setupTest(t, nil)
	seedStore(t, env)
	m := env.h.sessions
	m.limit = 2

	base := m.now()
	tick := 0
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first := newBrowser(t, env)
	first.post("/navigate", url.Values{"screen": {"login"}})
	second := newBrowser(t, env)
	second.post("/navigate", url.Values{"screen": {"login"}})
	first.page() // first is now the most recently used

	newBrowser(t, env).post("/navigate", url.Values{"screen": {"storefront"}})
	assert.Equal(t, 2, m.count())

	assert.Contains(t, first.page(), `action="/login"`, "recently used session survives")
	assert.NotContains(t, second.page(), `action="/login"`, "oldest session was dropped")
}
