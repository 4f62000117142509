package app

import "github.com/vitrine-shop/vitrine/internal/catalog"

// Action is one of the enumerated events the reducer understands.
type Action interface {
	isAction()
}

// Loaded carries the profile and items read at startup. DeepLink is an
// optional item id requested by the visitor.
type Loaded struct {
	Profile  *catalog.Profile
	Items    []catalog.Item
	DeepLink string
	Err      error
}

// Navigate asks for a screen change; guards may redirect it.
type Navigate struct {
	To Screen
}

// LoginSucceeded carries the profile and items re-read after a login.
type LoginSucceeded struct {
	Profile *catalog.Profile
	Items   []catalog.Item
}

type LoggedOut struct{}

// ProfileSaved completes setup or a settings edit.
type ProfileSaved struct {
	Profile catalog.Profile
}

type ItemsRefreshed struct {
	Items []catalog.Item
}

// AnalysisReady opens the details form on a new draft, or refreshes the
// draft's analysis when it is already being edited.
type AnalysisReady struct {
	Draft catalog.Item
}

// EditRequested opens the details form on an existing item.
type EditRequested struct {
	Item catalog.Item
}

// DetailsSaved carries the item list re-read after the save.
type DetailsSaved struct {
	Items []catalog.Item
}

type DetailsCancelled struct{}

// DeleteRequested starts the confirmation step for an item.
type DeleteRequested struct {
	ID string
}

type DeleteCancelled struct{}

// ItemDeleted carries the item list re-read after the delete.
type ItemDeleted struct {
	ID    string
	Items []catalog.Item
}

type ProductSelected struct {
	Item catalog.Item
}

type Back struct{}

// Failed reports an error from an effect. The screen does not change.
type Failed struct {
	Err error
}

type FlashDismissed struct{}

type ColorsSuggested struct {
	Colors []string
}

func (Loaded) isAction()           {}
func (Navigate) isAction()         {}
func (LoginSucceeded) isAction()   {}
func (LoggedOut) isAction()        {}
func (ProfileSaved) isAction()     {}
func (ItemsRefreshed) isAction()   {}
func (AnalysisReady) isAction()    {}
func (EditRequested) isAction()    {}
func (DetailsSaved) isAction()     {}
func (DetailsCancelled) isAction() {}
func (DeleteRequested) isAction()  {}
func (DeleteCancelled) isAction()  {}
func (ItemDeleted) isAction()      {}
func (ProductSelected) isAction()  {}
func (Back) isAction()             {}
func (Failed) isAction()           {}
func (FlashDismissed) isAction()   {}
func (ColorsSuggested) isAction()  {}
