package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vitrine-shop/vitrine/internal/catalog"
	"github.com/vitrine-shop/vitrine/internal/errors"
	"github.com/vitrine-shop/vitrine/internal/images"
	"github.com/vitrine-shop/vitrine/internal/storage"
	"github.com/vitrine-shop/vitrine/internal/vision"
)

// Options configures a Controller.
type Options struct {
	// MaxImageWidth downscales uploaded photos wider than this; 0 keeps
	// them as uploaded.
	MaxImageWidth int

	// LoginAttemptsPerMinute limits password attempts; 0 disables the limit.
	LoginAttemptsPerMinute int

	Logger *slog.Logger
}

// Controller owns one session's State and performs the effects behind each
// action. Operations are serialized: a second call waits until the first
// has finished, so no two writes from one session overlap.
//
// Every operation that fails records a Failed action (a flash) before
// returning the error; the current screen is left unchanged.
type Controller struct {
	mu    sync.Mutex
	state State

	facade        *storage.Facade
	analyzer      vision.Analyzer
	limiter       *rate.Limiter
	maxImageWidth int
	logger        *slog.Logger
}

// NewController creates a controller in the Initial state. Call Load
// before rendering.
func NewController(facade *storage.Facade, analyzer vision.Analyzer, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if n := opts.LoginAttemptsPerMinute; n > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	}
	return &Controller{
		state:         Initial(),
		facade:        facade,
		analyzer:      analyzer,
		limiter:       limiter,
		maxImageWidth: opts.MaxImageWidth,
		logger:        logger,
	}
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Snapshot()
}

// dispatch applies a. Callers hold c.mu.
func (c *Controller) dispatch(a Action) {
	c.state = Update(c.state, a)
}

// fail records err as a flash and returns it.
func (c *Controller) fail(err error) error {
	c.dispatch(Failed{Err: err})
	return err
}

func (c *Controller) requireAdmin() error {
	if !c.state.Authenticated {
		c.dispatch(Navigate{To: ScreenDashboard})
		return c.fail(errors.NewUnauthorized("נדרשת התחברות"))
	}
	return nil
}

// Load reads the profile and items and resolves the initial screen.
// deepLink is an optional item id to open on the product page.
func (c *Controller) Load(ctx context.Context, deepLink string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	profile, err := c.facade.GetProfile(ctx)
	if err != nil {
		c.dispatch(Loaded{Err: err})
		return err
	}
	items, err := c.facade.GetItems(ctx)
	if err != nil {
		c.dispatch(Loaded{Err: err})
		return err
	}
	c.dispatch(Loaded{Profile: profile, Items: items, DeepLink: strings.TrimSpace(deepLink)})
	return nil
}

// Navigate moves to the requested screen. Moving to a listing screen
// re-reads the items first; a failed read is flashed but does not block
// the move.
func (c *Controller) Navigate(ctx context.Context, to Screen) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var refreshErr error
	if to == ScreenDashboard || to == ScreenStorefront {
		refreshErr = c.refreshItems(ctx)
	}
	c.dispatch(Navigate{To: to})
	if refreshErr != nil {
		return c.fail(refreshErr)
	}
	return nil
}

func (c *Controller) refreshItems(ctx context.Context) error {
	items, err := c.facade.GetItems(ctx)
	if err != nil {
		return err
	}
	c.dispatch(ItemsRefreshed{Items: items})
	return nil
}

// SubmitSetup saves the profile from the setup form and signs the admin in.
// Once a complete profile exists only an authenticated admin may change it.
func (c *Controller) SubmitSetup(ctx context.Context, form SetupForm) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.facade.GetProfile(ctx)
	if err != nil {
		return c.fail(err)
	}
	if current != nil && !current.NeedsSetup() && !c.state.Authenticated {
		return c.fail(errors.NewUnauthorized("נדרשת התחברות לעריכת פרטי החנות"))
	}

	if form.Logo != "" {
		logo, err := images.Normalize(form.Logo, c.maxImageWidth)
		if err != nil {
			return c.fail(errors.NewInvalidRequest("קובץ הלוגו אינו תמונה תקינה"))
		}
		form.Logo = logo
	}

	profile, err := form.Profile(current)
	if err != nil {
		return c.fail(err)
	}
	if err := c.facade.SaveProfile(ctx, profile); err != nil {
		return c.fail(err)
	}

	saved, err := c.facade.GetProfile(ctx)
	if err != nil {
		return c.fail(err)
	}
	if saved == nil {
		saved = &profile
	}
	if err := c.refreshItems(ctx); err != nil {
		return c.fail(err)
	}
	c.dispatch(ProfileSaved{Profile: *saved})
	c.logger.Info("store profile saved", "store", saved.StoreName)
	return nil
}

// SuggestColors asks the AI service for accent colors matching a logo.
// credential falls back to the stored one when blank. It never fails.
func (c *Controller) SuggestColors(ctx context.Context, logo, credential string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.TrimSpace(credential) == "" && c.state.Profile != nil {
		credential = c.state.Profile.APIKey
	}
	colors := c.analyzer.AnalyzeLogoColors(ctx, logo, credential)
	c.dispatch(ColorsSuggested{Colors: colors})
	return colors
}

// Login checks password against the stored profile.
func (c *Controller) Login(ctx context.Context, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.limiter.Allow() {
		c.logger.Warn("login rate limited")
		return c.fail(errors.NewRateLimited("login"))
	}

	profile, err := c.facade.GetProfile(ctx)
	if err != nil {
		return c.fail(err)
	}
	if profile == nil || profile.NeedsSetup() {
		c.state.Profile = profile
		c.dispatch(Navigate{To: ScreenSetup})
		return c.fail(errors.NewMissingPassword())
	}
	if !catalog.CheckPassword(profile.Password, password) {
		c.logger.Warn("login failed")
		return c.fail(errors.NewUnauthorized("סיסמה שגויה"))
	}

	items, err := c.facade.GetItems(ctx)
	if err != nil {
		return c.fail(err)
	}
	c.dispatch(LoginSucceeded{Profile: profile, Items: items})
	c.logger.Info("admin logged in")
	return nil
}

// Logout ends the admin session and returns to the storefront.
func (c *Controller) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatch(LoggedOut{})
}

// scanImages validates the form and downscales both photos.
func (c *Controller) scanImages(form ScanForm) (catalog.ItemType, string, string, error) {
	itemType, err := form.Validate()
	if err != nil {
		return "", "", "", err
	}
	front, err := images.Normalize(form.Front, c.maxImageWidth)
	if err != nil {
		return "", "", "", errors.NewInvalidRequest("תמונת החזית אינה תקינה")
	}
	back, err := images.Normalize(form.Back, c.maxImageWidth)
	if err != nil {
		return "", "", "", errors.NewInvalidRequest("תמונת הגב אינה תקינה")
	}
	return itemType, front, back, nil
}

// SubmitScan analyzes both photos and opens the details form on the new
// draft. On failure the session stays on the scan screen and nothing is
// stored.
func (c *Controller) SubmitScan(ctx context.Context, form ScanForm) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireAdmin(); err != nil {
		return err
	}
	itemType, front, back, err := c.scanImages(form)
	if err != nil {
		return c.fail(err)
	}

	analysis, err := c.analyzer.AnalyzeItem(ctx, front, back, itemType, c.credential())
	if err != nil {
		return c.fail(err)
	}

	c.dispatch(AnalysisReady{Draft: catalog.Item{
		ID:         catalog.NewItemID(),
		Type:       itemType,
		Status:     catalog.StatusAvailable,
		FrontImage: front,
		BackImage:  back,
		Analysis:   &analysis,
	}})
	return nil
}

// SkipAnalysis opens the details form on a new draft with no analysis, for
// manual entry.
func (c *Controller) SkipAnalysis(ctx context.Context, form ScanForm) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireAdmin(); err != nil {
		return err
	}
	itemType, front, back, err := c.scanImages(form)
	if err != nil {
		return c.fail(err)
	}

	c.dispatch(AnalysisReady{Draft: catalog.Item{
		ID:         catalog.NewItemID(),
		Type:       itemType,
		Status:     catalog.StatusAvailable,
		FrontImage: front,
		BackImage:  back,
	}})
	return nil
}

// Reanalyze runs the analysis again on the pending draft's photos and
// replaces its analysis fields.
func (c *Controller) Reanalyze(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireAdmin(); err != nil {
		return err
	}
	if c.state.Pending == nil {
		return c.fail(errors.NewNoPendingContext())
	}

	draft := c.state.Pending.Item
	analysis, err := c.analyzer.AnalyzeItem(ctx, draft.FrontImage, draft.BackImage, draft.Type, c.credential())
	if err != nil {
		return c.fail(err)
	}
	draft.Analysis = &analysis
	c.dispatch(AnalysisReady{Draft: draft})
	return nil
}

func (c *Controller) credential() string {
	if c.state.Profile == nil {
		return ""
	}
	return c.state.Profile.APIKey
}

// EditItem opens the details form on an existing item.
func (c *Controller) EditItem(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireAdmin(); err != nil {
		return err
	}
	item, ok, err := c.facade.FindItem(ctx, id)
	if err != nil {
		return c.fail(err)
	}
	if !ok {
		return c.fail(errors.NewNotFound(id))
	}
	c.dispatch(EditRequested{Item: item})
	return nil
}

// SaveDetails applies the form to the pending draft, stores it and returns
// to the dashboard.
func (c *Controller) SaveDetails(ctx context.Context, form DetailsForm) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireAdmin(); err != nil {
		return err
	}
	if c.state.Pending == nil {
		return c.fail(errors.NewNoPendingContext())
	}

	item, err := form.Apply(c.state.Pending.Item)
	if err != nil {
		return c.fail(err)
	}
	if err := c.facade.SaveItem(ctx, item); err != nil {
		return c.fail(err)
	}
	items, err := c.facade.GetItems(ctx)
	if err != nil {
		return c.fail(err)
	}
	c.dispatch(DetailsSaved{Items: items})
	return nil
}

// CancelDetails discards the pending draft.
func (c *Controller) CancelDetails() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatch(DetailsCancelled{})
}

// RequestDelete starts the confirmation step for id.
func (c *Controller) RequestDelete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireAdmin(); err != nil {
		return err
	}
	if _, ok := c.state.FindItem(id); !ok {
		return c.fail(errors.NewNotFound(id))
	}
	c.dispatch(DeleteRequested{ID: id})
	return nil
}

// ConfirmDelete deletes the item awaiting confirmation.
func (c *Controller) ConfirmDelete(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireAdmin(); err != nil {
		return err
	}
	id := c.state.ConfirmDelete
	if id == "" {
		return c.fail(errors.NewInvalidRequest("אין פריט הממתין למחיקה"))
	}
	if err := c.facade.DeleteItem(ctx, id); err != nil {
		return c.fail(err)
	}
	items, err := c.facade.GetItems(ctx)
	if err != nil {
		return c.fail(err)
	}
	c.dispatch(ItemDeleted{ID: id, Items: items})
	return nil
}

// CancelDelete abandons the confirmation step.
func (c *Controller) CancelDelete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatch(DeleteCancelled{})
}

// ToggleStatus flips an item between available and sold.
func (c *Controller) ToggleStatus(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireAdmin(); err != nil {
		return err
	}
	if _, err := c.facade.ToggleStatus(ctx, id); err != nil {
		return c.fail(err)
	}
	if err := c.refreshItems(ctx); err != nil {
		return c.fail(err)
	}
	return nil
}

// ViewProduct opens the product page for id from a fresh listing.
func (c *Controller) ViewProduct(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok, err := c.facade.FindItem(ctx, id)
	if err != nil {
		return c.fail(err)
	}
	if !ok {
		return c.fail(errors.NewNotFound(id))
	}
	c.dispatch(ProductSelected{Item: item})
	return nil
}

// Back leaves the current screen.
func (c *Controller) Back() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatch(Back{})
}

// Report records an error raised outside the controller, such as an
// unreadable upload, as a flash.
func (c *Controller) Report(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatch(Failed{Err: err})
}

// DismissFlash clears the alert.
func (c *Controller) DismissFlash() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatch(FlashDismissed{})
}
