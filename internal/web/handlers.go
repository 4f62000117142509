package web

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/csrf"

	"github.com/vitrine-shop/vitrine/internal/app"
	"github.com/vitrine-shop/vitrine/internal/catalog"
	"github.com/vitrine-shop/vitrine/internal/errors"
	"github.com/vitrine-shop/vitrine/internal/images"
)

// multipartMemory is how much of an upload is held in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

var screenTitles = map[app.Screen]string{
	app.ScreenSetup:      "הגדרת החנות",
	app.ScreenLogin:      "כניסת מנהל",
	app.ScreenDashboard:  "ניהול מלאי",
	app.ScreenScan:       "סריקת פריט",
	app.ScreenDetails:    "פרטי פריט",
	app.ScreenLegal:      "תנאי שימוש",
	app.ScreenStorefront: "קטלוג",
	app.ScreenProduct:    "פריט",
}

// Handlers contains HTTP route handlers for the web UI. Every POST maps to
// one controller operation and redirects back to "/".
type Handlers struct {
	sessions     *sessionManager
	renderer     *Renderer
	maxBodyBytes int64
	logger       *slog.Logger
}

// routes registers the UI routes.
func (h *Handlers) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.HandleIndex)
	mux.HandleFunc("GET /items/{id}", h.HandleProduct)
	mux.HandleFunc("GET /reload", h.HandleReload)
	mux.HandleFunc("POST /navigate", h.HandleNavigate)
	mux.HandleFunc("POST /back", h.HandleBack)
	mux.HandleFunc("POST /flash/dismiss", h.HandleDismissFlash)
	mux.HandleFunc("POST /login", h.HandleLogin)
	mux.HandleFunc("POST /logout", h.HandleLogout)
	mux.HandleFunc("POST /setup", h.HandleSetup)
	mux.HandleFunc("POST /setup/colors", h.HandleSuggestColors)
	mux.HandleFunc("POST /scan", h.HandleScan)
	mux.HandleFunc("POST /details", h.HandleDetails)
	mux.HandleFunc("POST /items/{id}/edit", h.HandleEdit)
	mux.HandleFunc("POST /items/{id}/toggle", h.HandleToggle)
	mux.HandleFunc("POST /items/{id}/delete", h.HandleRequestDelete)
	mux.HandleFunc("POST /delete/confirm", h.HandleConfirmDelete)
	mux.HandleFunc("POST /delete/cancel", h.HandleCancelDelete)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		h.renderer.renderError(w, r, &errors.VitrineError{
			Code:    errors.ErrNotFound,
			Status:  http.StatusNotFound,
			Message: "הדף המבוקש לא נמצא",
		})
	})
	return mux
}

// controller returns the session's controller, rendering an error page
// when the session cannot be established.
func (h *Handlers) controller(w http.ResponseWriter, r *http.Request) (*app.Controller, bool) {
	ctrl, err := h.sessions.controller(w, r, r.URL.Query().Get("item"))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInternal(err))
		return nil, false
	}
	return ctrl, true
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleIndex handles GET /: render the session's current screen.
// ?item=<id> opens a product page; ?q= and ?type= filter the storefront.
// Visitors without a session see a fresh view that is not kept.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("item"))
	ctrl, ok := h.sessions.lookup(r)
	if !ok {
		h.renderScreen(w, r, h.sessions.transient(r.Context(), id).State(), nil)
		return
	}
	if id != "" {
		_ = ctrl.ViewProduct(r.Context(), id)
	}
	h.renderScreen(w, r, ctrl.State(), nil)
}

// HandleProduct handles GET /items/{id}: open the product page.
func (h *Handlers) HandleProduct(w http.ResponseWriter, r *http.Request) {
	target := "/?item=" + url.QueryEscape(r.PathValue("id"))
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleReload handles GET /reload: rebuild the view state from the backend.
func (h *Handlers) HandleReload(w http.ResponseWriter, r *http.Request) {
	if ctrl, ok := h.sessions.lookup(r); ok {
		_ = ctrl.Load(r.Context(), "")
	}
	redirectHome(w, r)
}

// HandleNavigate handles POST /navigate: move to the screen in "screen".
func (h *Handlers) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	screen, valid := app.ParseScreen(r.FormValue("screen"))
	if !valid {
		ctrl.Report(errors.NewInvalidRequest("מסך לא מוכר"))
		redirectHome(w, r)
		return
	}
	_ = ctrl.Navigate(r.Context(), screen)
	redirectHome(w, r)
}

// HandleBack handles POST /back.
func (h *Handlers) HandleBack(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	ctrl.Back()
	redirectHome(w, r)
}

// HandleDismissFlash handles POST /flash/dismiss.
func (h *Handlers) HandleDismissFlash(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	ctrl.DismissFlash()
	redirectHome(w, r)
}

// HandleLogin handles POST /login.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	_ = ctrl.Login(r.Context(), r.FormValue("password"))
	redirectHome(w, r)
}

// HandleLogout handles POST /logout.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	ctrl.Logout()
	redirectHome(w, r)
}

// HandleSetup handles POST /setup: save the store profile. A rejected
// form is rendered again with what was typed, minus the secrets.
func (h *Handlers) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	form, err := h.setupForm(w, r)
	if err != nil {
		ctrl.Report(err)
		redirectHome(w, r)
		return
	}
	if err := ctrl.SubmitSetup(r.Context(), form); err != nil {
		form.Password = ""
		form.APIKey = ""
		h.renderScreen(w, r, ctrl.State(), &form)
		return
	}
	redirectHome(w, r)
}

// HandleSuggestColors handles POST /setup/colors: suggest accent colors
// for the uploaded logo and render the setup form again.
func (h *Handlers) HandleSuggestColors(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	form, err := h.setupForm(w, r)
	if err != nil {
		ctrl.Report(err)
		redirectHome(w, r)
		return
	}
	if form.Logo == "" {
		ctrl.Report(errors.NewInvalidRequest("יש להעלות לוגו כדי לקבל הצעות צבע"))
	} else {
		colors := ctrl.SuggestColors(r.Context(), form.Logo, form.APIKey)
		if len(colors) > 0 {
			form.ThemeColor = colors[0]
		}
	}
	form.Password = ""
	form.APIKey = ""
	h.renderScreen(w, r, ctrl.State(), &form)
}

// HandleScan handles POST /scan: analyze both photos, or open the details
// form without analysis when action=skip.
func (h *Handlers) HandleScan(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	if err := h.parseForm(w, r); err != nil {
		ctrl.Report(err)
		redirectHome(w, r)
		return
	}

	front, err := upload(r, "front", "front_data")
	if err != nil {
		ctrl.Report(err)
		redirectHome(w, r)
		return
	}
	back, err := upload(r, "back", "back_data")
	if err != nil {
		ctrl.Report(err)
		redirectHome(w, r)
		return
	}

	form := app.ScanForm{Type: r.FormValue("type"), Front: front, Back: back}
	if r.FormValue("action") == "skip" {
		_ = ctrl.SkipAnalysis(r.Context(), form)
	} else {
		_ = ctrl.SubmitScan(r.Context(), form)
	}
	redirectHome(w, r)
}

// HandleDetails handles POST /details: save, re-analyze or cancel the
// pending draft depending on "action".
func (h *Handlers) HandleDetails(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	if err := h.parseForm(w, r); err != nil {
		ctrl.Report(err)
		redirectHome(w, r)
		return
	}

	switch r.FormValue("action") {
	case "cancel":
		ctrl.CancelDetails()
	case "reanalyze":
		_ = ctrl.Reanalyze(r.Context())
	default:
		form := app.DetailsForm{
			ItemName:            r.FormValue("item_name"),
			Year:                r.FormValue("year"),
			Origin:              r.FormValue("origin"),
			ConditionGrade:      r.FormValue("condition_grade"),
			EstimatedValueRange: r.FormValue("estimated_value_range"),
			Description:         r.FormValue("description"),
			Anomalies:           r.FormValue("anomalies"),
			UserPrice:           r.FormValue("user_price"),
			Status:              r.FormValue("status"),
		}
		if err := ctrl.SaveDetails(r.Context(), form); err != nil {
			h.renderDetails(w, r, ctrl.State(), form)
			return
		}
	}
	redirectHome(w, r)
}

// HandleEdit handles POST /items/{id}/edit.
func (h *Handlers) HandleEdit(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	_ = ctrl.EditItem(r.Context(), r.PathValue("id"))
	redirectHome(w, r)
}

// HandleToggle handles POST /items/{id}/toggle: flip available/sold.
func (h *Handlers) HandleToggle(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	_ = ctrl.ToggleStatus(r.Context(), r.PathValue("id"))
	redirectHome(w, r)
}

// HandleRequestDelete handles POST /items/{id}/delete: ask for confirmation.
func (h *Handlers) HandleRequestDelete(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	_ = ctrl.RequestDelete(r.PathValue("id"))
	redirectHome(w, r)
}

// HandleConfirmDelete handles POST /delete/confirm.
func (h *Handlers) HandleConfirmDelete(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	_ = ctrl.ConfirmDelete(r.Context())
	redirectHome(w, r)
}

// HandleCancelDelete handles POST /delete/cancel.
func (h *Handlers) HandleCancelDelete(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	ctrl.CancelDelete()
	redirectHome(w, r)
}

// parseForm parses a urlencoded or multipart body within the size limit.
func (h *Handlers) parseForm(w http.ResponseWriter, r *http.Request) error {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(multipartMemory)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return errors.NewPayloadTooLarge(maxErr.Limit)
		}
		return errors.NewInvalidRequest("invalid form data")
	}
	return nil
}

// setupForm reads the setup fields. The logo is a new upload, else the
// data URL carried in logo_data, else nothing when logo_reset is set.
func (h *Handlers) setupForm(w http.ResponseWriter, r *http.Request) (app.SetupForm, error) {
	if err := h.parseForm(w, r); err != nil {
		return app.SetupForm{}, err
	}
	logo, err := upload(r, "logo", "logo_data")
	if err != nil {
		return app.SetupForm{}, err
	}
	if r.FormValue("logo_reset") != "" {
		logo = ""
	}
	theme := r.FormValue("theme_color")
	if pick := r.FormValue("theme_pick"); pick != "" {
		theme = pick
	}
	if r.FormValue("theme_reset") != "" {
		theme = catalog.DefaultThemeColor
	}
	return app.SetupForm{
		StoreName:     r.FormValue("store_name"),
		OwnerName:     r.FormValue("owner_name"),
		Email:         r.FormValue("email"),
		Phone:         r.FormValue("phone"),
		Address:       r.FormValue("address"),
		Logo:          logo,
		ThemeColor:    theme,
		Password:      r.FormValue("password"),
		APIKey:        r.FormValue("api_key"),
		TermsAccepted: r.FormValue("terms") != "",
	}, nil
}

// upload reads an image file field as a data URL, falling back to a data
// URL already carried in fallbackField.
func upload(r *http.Request, field, fallbackField string) (string, error) {
	file, header, err := r.FormFile(field)
	if stderrors.Is(err, http.ErrMissingFile) {
		return imgSrcString(r.FormValue(fallbackField)), nil
	}
	if err != nil {
		return "", errors.NewInvalidRequest("invalid upload: " + field)
	}
	defer file.Close()

	dataURL, err := images.FromReader(file, header.Header.Get("Content-Type"))
	if err != nil {
		return "", errors.NewInvalidRequest("הקובץ שהועלה אינו תמונה")
	}
	if dataURL == "" {
		return imgSrcString(r.FormValue(fallbackField)), nil
	}
	return dataURL, nil
}

// imgSrcString keeps only image data URLs.
func imgSrcString(s string) string {
	return string(imgSrc(strings.TrimSpace(s)))
}

// pageData builds the fields every page shares.
func (h *Handlers) pageData(r *http.Request, s app.State) PageData {
	pd := PageData{
		Title:         screenTitles[s.Screen],
		Version:       h.renderer.version,
		Accent:        accentCSS(""),
		Authenticated: s.Authenticated,
		Flash:         s.Flash,
		CSRFField:     csrf.TemplateField(r),
	}
	if s.Profile != nil {
		pd.Store = s.Profile.Redacted()
		pd.HasStore = true
		pd.Accent = accentCSS(s.Profile.Accent())
	}
	return pd
}

// renderScreen renders the current screen. setup, when non-nil, replaces
// the setup form prefilled from the stored profile.
func (h *Handlers) renderScreen(w http.ResponseWriter, r *http.Request, s app.State, setup *app.SetupForm) {
	data := ScreenData{PageData: h.pageData(r, s), Screen: s.Screen}

	switch s.Screen {
	case app.ScreenStorefront:
		data.Query = catalog.Query{
			Search: r.URL.Query().Get("q"),
			Type:   catalog.ParseTypeFilter(r.URL.Query().Get("type")),
		}
		data.Items = catalog.Storefront(s.Items, data.Query)
		data.Total = len(s.Items)

	case app.ScreenDashboard:
		data.Items = s.Items
		data.Total = len(s.Items)
		for _, item := range s.Items {
			if item.Sold() {
				data.SoldCount++
			}
		}
		if s.ConfirmDelete != "" {
			if item, ok := s.FindItem(s.ConfirmDelete); ok {
				data.ConfirmItem = &item
			}
		}

	case app.ScreenProduct:
		if s.Selected != nil {
			data.Selected = s.Selected
			data.Title = s.Selected.DisplayName()
			data.Analysis, data.Analyzed = s.Selected.Identification()
			data.Description = renderMarkdown(data.Analysis.Description)
			if s.Profile != nil {
				data.ContactLink = catalog.ContactLink(*s.Profile, *s.Selected)
			}
		}

	case app.ScreenDetails:
		if s.Pending == nil {
			data.NoPending = true
		} else {
			data.Pending = s.Pending
			data.Details = app.DetailsFormFrom(s.Pending.Item)
		}

	case app.ScreenSetup:
		if setup != nil {
			data.Setup = *setup
		} else {
			data.Setup = app.SetupFormFrom(s.Profile)
		}
		data.Colors = s.Colors
	}

	h.renderer.renderPage(w, r, string(s.Screen), data)
}

// renderDetails renders the details screen with a rejected form's values.
func (h *Handlers) renderDetails(w http.ResponseWriter, r *http.Request, s app.State, form app.DetailsForm) {
	if s.Screen != app.ScreenDetails || s.Pending == nil {
		h.renderScreen(w, r, s, nil)
		return
	}
	data := ScreenData{
		PageData: h.pageData(r, s),
		Screen:   s.Screen,
		Pending:  s.Pending,
		Details:  form,
	}
	h.renderer.renderPage(w, r, string(s.Screen), data)
}
