package app

import (
	"github.com/vitrine-shop/vitrine/internal/errors"
)

// Update returns the state that follows s after a. It performs no I/O.
//
// Invariants held by every returned state:
//   - exactly one Screen is current;
//   - Pending is non-nil only on ScreenDetails;
//   - admin screens are never current while unauthenticated;
//   - without a complete profile only setup and legal are reachable.
func Update(s State, a Action) State {
	switch a := a.(type) {
	case Loaded:
		next := Initial()
		if a.Err != nil {
			next.Screen = ScreenSetup
			next.Flash = flashFor(a.Err)
			return next
		}
		next.Profile = a.Profile
		next.Items = a.Items
		if !next.ProfileComplete() {
			next.Screen = ScreenSetup
			return next
		}
		if a.DeepLink != "" {
			if item, ok := next.FindItem(a.DeepLink); ok {
				next.Selected = &item
				next.Screen = ScreenProduct
				next.Return = ScreenStorefront
			}
		}
		return next

	case Navigate:
		return s.goTo(a.To)

	case LoginSucceeded:
		s.Authenticated = true
		s.Profile = a.Profile
		s.Items = a.Items
		s.Flash = nil
		target := s.LoginTarget
		s.LoginTarget = ""
		if target == "" || target == ScreenLogin {
			target = ScreenDashboard
		}
		return s.goTo(target)

	case LoggedOut:
		s.Authenticated = false
		s.LoginTarget = ""
		s.Colors = nil
		return s.goTo(ScreenStorefront)

	case ProfileSaved:
		p := a.Profile
		s.Profile = &p
		s.Authenticated = true
		s.Colors = nil
		s.Flash = nil
		return s.goTo(ScreenDashboard)

	case ItemsRefreshed:
		s.Items = a.Items
		if s.Selected != nil {
			if item, ok := s.FindItem(s.Selected.ID); ok {
				s.Selected = &item
			}
		}
		return s

	case AnalysisReady:
		kind := PendingNew
		if s.Pending != nil && s.Pending.Item.ID == a.Draft.ID {
			kind = s.Pending.Kind
		}
		s.Pending = &Pending{Kind: kind, Item: a.Draft}
		s.Flash = nil
		return s.goTo(ScreenDetails)

	case EditRequested:
		s.Pending = &Pending{Kind: PendingEdit, Item: a.Item}
		return s.goTo(ScreenDetails)

	case DetailsSaved:
		s.Pending = nil
		s.Items = a.Items
		s.Flash = &Flash{Kind: FlashInfo, Message: "הפריט נשמר בהצלחה"}
		return s.goTo(ScreenDashboard)

	case DetailsCancelled:
		s.Pending = nil
		return s.goTo(ScreenDashboard)

	case DeleteRequested:
		if !s.Authenticated {
			return s.goTo(ScreenDashboard)
		}
		s.ConfirmDelete = a.ID
		return s

	case DeleteCancelled:
		s.ConfirmDelete = ""
		return s

	case ItemDeleted:
		s.ConfirmDelete = ""
		s.Items = a.Items
		if s.Pending != nil && s.Pending.Item.ID == a.ID {
			s.Pending = nil
			return s.goTo(ScreenDashboard)
		}
		if s.Selected != nil && s.Selected.ID == a.ID {
			s.Selected = nil
			if s.Screen == ScreenProduct {
				return s.back()
			}
		}
		return s

	case ProductSelected:
		item := a.Item
		next := s.goTo(ScreenProduct)
		if next.Screen == ScreenProduct {
			next.Selected = &item
		}
		return next

	case Back:
		return s.back()

	case Failed:
		s.Flash = flashFor(a.Err)
		return s

	case FlashDismissed:
		s.Flash = nil
		return s

	case ColorsSuggested:
		s.Colors = a.Colors
		return s
	}
	return s
}

// goTo moves to the requested screen after applying the guards.
func (s State) goTo(to Screen) State {
	if _, ok := ParseScreen(string(to)); !ok {
		to = ScreenStorefront
	}

	switch {
	case !s.ProfileComplete() && to != ScreenSetup && to != ScreenLegal:
		to = ScreenSetup
	case to.RequiresAuth() && !s.Authenticated:
		s.LoginTarget = to
		to = ScreenLogin
	case to == ScreenSetup && s.ProfileComplete() && !s.Authenticated:
		s.LoginTarget = ScreenSetup
		to = ScreenLogin
	case to == ScreenLogin && s.Authenticated:
		to = ScreenDashboard
	}

	if to.IsLeaf() && !s.Screen.IsLeaf() {
		s.Return = s.Screen
	}
	if to != ScreenDetails {
		s.Pending = nil
	}
	if to != ScreenProduct {
		s.Selected = nil
	}
	if to != s.Screen {
		s.ConfirmDelete = ""
	}
	s.Screen = to
	return s
}

// back resolves the Back action for the current screen.
func (s State) back() State {
	home := ScreenStorefront
	if s.Authenticated {
		home = ScreenDashboard
	}

	switch s.Screen {
	case ScreenLegal, ScreenProduct:
		target := s.Return
		s.Return = ""
		if target == "" || target.IsLeaf() || target == ScreenDetails {
			target = home
		}
		if (target.RequiresAuth() || target == ScreenLogin) && !s.Authenticated {
			target = ScreenStorefront
		}
		return s.goTo(target)
	case ScreenScan, ScreenDetails:
		return s.goTo(ScreenDashboard)
	case ScreenSetup:
		return s.goTo(home)
	}
	return s.goTo(ScreenStorefront)
}

func flashFor(err error) *Flash {
	if err == nil {
		return nil
	}
	if vErr, ok := errors.As(err); ok {
		return &Flash{Kind: FlashError, Message: vErr.Message, Code: vErr.Code}
	}
	return &Flash{Kind: FlashError, Message: err.Error(), Code: errors.ErrInternal}
}
