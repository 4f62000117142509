package catalog

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ItemType is the kind of collectible.
type ItemType string

const (
	ItemTypeCoin  ItemType = "COIN"
	ItemTypeStamp ItemType = "STAMP"
)

// ParseItemType accepts the canonical names in any case and the Hebrew
// labels used by stores created before the canonical names existed.
func ParseItemType(s string) (ItemType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "COIN", "מטבע":
		return ItemTypeCoin, nil
	case "STAMP", "בול":
		return ItemTypeStamp, nil
	}
	return "", fmt.Errorf("unknown item type %q", s)
}

// Valid reports whether t is a known type.
func (t ItemType) Valid() bool {
	return t == ItemTypeCoin || t == ItemTypeStamp
}

// Label returns the display label shown to shoppers.
func (t ItemType) Label() string {
	switch t {
	case ItemTypeCoin:
		return "מטבע"
	case ItemTypeStamp:
		return "בול"
	}
	return string(t)
}

// UnmarshalText normalizes legacy labels on decode. Empty or unknown values
// decode to the zero type so one foreign record does not hide the rest of
// the list; Valid reports false for them.
func (t *ItemType) UnmarshalText(b []byte) error {
	parsed, err := ParseItemType(string(b))
	if err != nil {
		*t = ""
		return nil
	}
	*t = parsed
	return nil
}

// ItemStatus is the sale status of an item.
type ItemStatus string

const (
	StatusAvailable ItemStatus = "AVAILABLE"
	StatusSold      ItemStatus = "SOLD"
)

// OrDefault maps an absent status to available.
func (s ItemStatus) OrDefault() ItemStatus {
	if s == StatusSold {
		return StatusSold
	}
	return StatusAvailable
}

// Toggle flips available and sold.
func (s ItemStatus) Toggle() ItemStatus {
	if s.OrDefault() == StatusSold {
		return StatusAvailable
	}
	return StatusSold
}

// ParseItemStatus parses a status name; empty means available.
func ParseItemStatus(s string) (ItemStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AVAILABLE":
		return StatusAvailable, nil
	case "SOLD":
		return StatusSold, nil
	}
	return "", fmt.Errorf("unknown item status %q", s)
}

// Analysis is the identification and valuation proposed by the AI service
// or entered by the admin.
type Analysis struct {
	ItemName            string   `json:"itemName"`
	Year                string   `json:"year"`
	Origin              string   `json:"origin"`
	ConditionGrade      string   `json:"conditionGrade"`
	Anomalies           []string `json:"anomalies"`
	EstimatedValueRange string   `json:"estimatedValueRange"`
	Description         string   `json:"description"`

	// ConfidenceScore is 0-100.
	ConfidenceScore float64 `json:"confidenceScore"`
}

// Item is a single collectible in the catalog.
type Item struct {
	// ID is a ULID for items created here; older items may carry UUIDs.
	ID string `json:"id"`

	Type ItemType `json:"type"`

	// Status is empty on records written before sale status existed.
	Status ItemStatus `json:"status,omitempty"`

	// FrontImage and BackImage are inline data URLs.
	FrontImage string `json:"frontImage"`
	BackImage  string `json:"backImage"`

	// Analysis is nil until the item has been analyzed or filled in by hand.
	Analysis *Analysis `json:"analysis"`

	// UserPrice is the asking price exactly as the admin typed it.
	UserPrice string `json:"userPrice"`

	// CreatedAt is Unix milliseconds.
	CreatedAt int64 `json:"createdAt"`
}

// Identification returns the analysis and whether the item has one.
func (i Item) Identification() (Analysis, bool) {
	if i.Analysis == nil {
		return Analysis{}, false
	}
	return *i.Analysis, true
}

// CurrentStatus returns the status with the absent case resolved.
func (i Item) CurrentStatus() ItemStatus {
	return i.Status.OrDefault()
}

// Sold reports whether the item has been sold.
func (i Item) Sold() bool {
	return i.CurrentStatus() == StatusSold
}

// DisplayName returns the analyzed name or a placeholder.
func (i Item) DisplayName() string {
	if a, ok := i.Identification(); ok && strings.TrimSpace(a.ItemName) != "" {
		return a.ItemName
	}
	return "פריט ללא זיהוי"
}

// Normalized returns a copy with status resolved.
func (i Item) Normalized() Item {
	i.Status = i.CurrentStatus()
	return i
}

// NewItemID generates a new ULID item id.
func NewItemID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NowMillis returns the current time in Unix milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
