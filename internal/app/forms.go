package app

import (
	"strings"

	"github.com/vitrine-shop/vitrine/internal/catalog"
	"github.com/vitrine-shop/vitrine/internal/errors"
)

// SetupForm is the store profile editor.
type SetupForm struct {
	StoreName  string
	OwnerName  string
	Email      string
	Phone      string
	Address    string
	Logo       string // data URL, empty for no logo
	ThemeColor string

	// Password and APIKey may be left blank when editing an existing
	// profile to keep the stored values.
	Password string
	APIKey   string

	TermsAccepted bool
}

// SetupFormFrom prefills the editor from an existing profile. Secrets are
// never echoed back.
func SetupFormFrom(p *catalog.Profile) SetupForm {
	if p == nil {
		return SetupForm{ThemeColor: catalog.DefaultThemeColor}
	}
	return SetupForm{
		StoreName:     p.StoreName,
		OwnerName:     p.OwnerName,
		Email:         p.Email,
		Phone:         p.Phone,
		Address:       p.Address,
		Logo:          p.LogoURL,
		ThemeColor:    p.Accent(),
		TermsAccepted: p.TermsAccepted,
	}
}

// Validate checks the form against the current profile (nil on first setup).
func (f SetupForm) Validate(current *catalog.Profile) error {
	if strings.TrimSpace(f.StoreName) == "" {
		return errors.NewInvalidRequest("יש להזין שם חנות")
	}
	if !f.TermsAccepted {
		return errors.NewInvalidRequest("יש לאשר את תנאי השימוש")
	}
	if strings.TrimSpace(f.Password) == "" && (current == nil || current.NeedsSetup()) {
		return errors.NewMissingPassword()
	}
	if strings.TrimSpace(f.APIKey) == "" && (current == nil || !current.HasCredential()) {
		return errors.NewMissingCredential()
	}
	return nil
}

// Profile builds the profile to store, hashing a new password and keeping
// the current secrets where the form left them blank.
func (f SetupForm) Profile(current *catalog.Profile) (catalog.Profile, error) {
	if err := f.Validate(current); err != nil {
		return catalog.Profile{}, err
	}

	p := catalog.Profile{
		StoreName:     strings.TrimSpace(f.StoreName),
		OwnerName:     strings.TrimSpace(f.OwnerName),
		Email:         strings.TrimSpace(f.Email),
		Phone:         strings.TrimSpace(f.Phone),
		Address:       strings.TrimSpace(f.Address),
		LogoURL:       f.Logo,
		ThemeColor:    strings.TrimSpace(f.ThemeColor),
		APIKey:        strings.TrimSpace(f.APIKey),
		TermsAccepted: f.TermsAccepted,
	}
	if p.ThemeColor == "" {
		p.ThemeColor = catalog.DefaultThemeColor
	}
	if p.APIKey == "" {
		p.APIKey = current.APIKey
	}

	if strings.TrimSpace(f.Password) == "" {
		p.Password = current.Password
		return p, nil
	}
	hash, err := catalog.HashPassword(f.Password)
	if err != nil {
		return catalog.Profile{}, errors.NewInternal(err)
	}
	p.Password = hash
	return p, nil
}

// ScanForm is the capture step: a type and both photos.
type ScanForm struct {
	Type  string
	Front string
	Back  string
}

// Validate parses the item type and checks both photos are present.
func (f ScanForm) Validate() (catalog.ItemType, error) {
	t, err := catalog.ParseItemType(f.Type)
	if err != nil {
		return "", errors.NewInvalidRequest("סוג פריט לא תקין")
	}
	if strings.TrimSpace(f.Front) == "" || strings.TrimSpace(f.Back) == "" {
		return "", errors.NewInvalidRequest("חובה להעלות תמונה של שני הצדדים")
	}
	return t, nil
}

// DetailsForm edits every analysis field plus price and status.
type DetailsForm struct {
	ItemName            string
	Year                string
	Origin              string
	ConditionGrade      string
	EstimatedValueRange string
	Description         string
	// Anomalies holds one note per line.
	Anomalies string
	UserPrice string
	Status    string
}

// DetailsFormFrom prefills the editor from a draft.
func DetailsFormFrom(item catalog.Item) DetailsForm {
	f := DetailsForm{
		UserPrice: item.UserPrice,
		Status:    string(item.CurrentStatus()),
	}
	if a, ok := item.Identification(); ok {
		f.ItemName = a.ItemName
		f.Year = a.Year
		f.Origin = a.Origin
		f.ConditionGrade = a.ConditionGrade
		f.EstimatedValueRange = a.EstimatedValueRange
		f.Description = a.Description
		f.Anomalies = strings.Join(a.Anomalies, "\n")
	}
	return f
}

func (f DetailsForm) hasAnalysis() bool {
	for _, v := range []string{f.ItemName, f.Year, f.Origin, f.ConditionGrade, f.EstimatedValueRange, f.Description, f.Anomalies} {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// Apply overrides the draft with the form values. The override, not the
// AI output, is what gets stored.
func (f DetailsForm) Apply(item catalog.Item) (catalog.Item, error) {
	price := strings.TrimSpace(f.UserPrice)
	if price == "" {
		return catalog.Item{}, errors.NewInvalidRequest("יש להזין מחיר")
	}
	status, err := catalog.ParseItemStatus(f.Status)
	if err != nil {
		return catalog.Item{}, errors.NewInvalidRequest(err.Error())
	}

	item.UserPrice = price
	item.Status = status

	if item.Analysis == nil && !f.hasAnalysis() {
		return item, nil
	}

	var a catalog.Analysis
	if item.Analysis != nil {
		a = *item.Analysis
	}
	a.ItemName = strings.TrimSpace(f.ItemName)
	a.Year = strings.TrimSpace(f.Year)
	a.Origin = strings.TrimSpace(f.Origin)
	a.ConditionGrade = strings.TrimSpace(f.ConditionGrade)
	a.EstimatedValueRange = strings.TrimSpace(f.EstimatedValueRange)
	a.Description = strings.TrimSpace(f.Description)
	a.Anomalies = splitLines(f.Anomalies)
	item.Analysis = &a
	return item, nil
}

func splitLines(s string) []string {
	lines := make([]string, 0)
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
