// Package app holds the view-state machine that drives the admin and public
// workflows: an explicit State, enumerated actions, a pure Update reducer
// and a Controller that performs the side effects for one session.
package app

import (
	"github.com/vitrine-shop/vitrine/internal/catalog"
	"github.com/vitrine-shop/vitrine/internal/errors"
)

// Screen identifies the single current view.
type Screen string

const (
	ScreenSetup      Screen = "setup"
	ScreenLogin      Screen = "login"
	ScreenDashboard  Screen = "dashboard"
	ScreenScan       Screen = "scan"
	ScreenDetails    Screen = "details"
	ScreenLegal      Screen = "legal"
	ScreenStorefront Screen = "storefront"
	ScreenProduct    Screen = "product"
)

var allScreens = []Screen{
	ScreenSetup, ScreenLogin, ScreenDashboard, ScreenScan,
	ScreenDetails, ScreenLegal, ScreenStorefront, ScreenProduct,
}

// ParseScreen returns the screen named s.
func ParseScreen(s string) (Screen, bool) {
	for _, sc := range allScreens {
		if string(sc) == s {
			return sc, true
		}
	}
	return "", false
}

// RequiresAuth reports whether the screen is admin-only.
func (s Screen) RequiresAuth() bool {
	return s == ScreenDashboard || s == ScreenScan || s == ScreenDetails
}

// IsLeaf reports whether the screen is reachable from both admin and public
// contexts and returns to where it was opened from.
func (s Screen) IsLeaf() bool {
	return s == ScreenLegal || s == ScreenProduct
}

// PendingKind tells a brand-new draft from an existing item being edited.
type PendingKind string

const (
	PendingNew  PendingKind = "new"
	PendingEdit PendingKind = "edit"
)

// Pending is the single in-progress edit or analysis context.
type Pending struct {
	Kind PendingKind
	// Item is the draft. For new drafts the id is assigned at scan time and
	// CreatedAt is stamped when saved.
	Item catalog.Item
}

// FlashKind classifies a dismissible alert.
type FlashKind string

const (
	FlashError FlashKind = "error"
	FlashInfo  FlashKind = "info"
)

// Flash is a dismissible alert shown above the current screen.
type Flash struct {
	Kind    FlashKind
	Message string
	// Code is set for error flashes.
	Code errors.ErrorCode
}

// Blocking reports whether the flash is a configuration error the admin
// has to fix before continuing.
func (f Flash) Blocking() bool {
	return f.Code == errors.ErrMissingPassword || f.Code == errors.ErrMissingCredential
}

// State is one session's view state. It is rebuilt from the backend on
// every Load.
type State struct {
	Screen        Screen
	Authenticated bool

	// Profile and Items are the last values read through the façade.
	Profile *catalog.Profile
	Items   []catalog.Item

	// Pending is non-nil only while Screen is ScreenDetails.
	Pending *Pending

	// Selected is the item shown on ScreenProduct.
	Selected *catalog.Item

	// Return is where Back leads from a leaf screen.
	Return Screen

	// LoginTarget is the guarded screen that sent the session to login.
	LoginTarget Screen

	// ConfirmDelete is the id of an item awaiting delete confirmation.
	ConfirmDelete string

	Flash *Flash

	// Colors are accent suggestions for the setup form.
	Colors []string
}

// Initial is the state before Load has run.
func Initial() State {
	return State{Screen: ScreenStorefront}
}

// ProfileComplete reports whether a profile with a password exists.
func (s State) ProfileComplete() bool {
	return s.Profile != nil && !s.Profile.NeedsSetup()
}

// Snapshot returns a copy that shares no slices with s.
func (s State) Snapshot() State {
	if s.Items != nil {
		s.Items = append([]catalog.Item(nil), s.Items...)
	}
	if s.Colors != nil {
		s.Colors = append([]string(nil), s.Colors...)
	}
	return s
}

// FindItem looks up id in the cached item list.
func (s State) FindItem(id string) (catalog.Item, bool) {
	for _, item := range s.Items {
		if item.ID == id {
			return item, true
		}
	}
	return catalog.Item{}, false
}
