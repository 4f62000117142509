package catalog

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// normalizeQuery trims, lowercases and collapses internal whitespace.
func normalizeQuery(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// TypeFilter restricts a storefront listing to one item type.
type TypeFilter string

const (
	FilterAll   TypeFilter = "ALL"
	FilterCoin  TypeFilter = TypeFilter(ItemTypeCoin)
	FilterStamp TypeFilter = TypeFilter(ItemTypeStamp)
)

// ParseTypeFilter parses a filter name; anything unknown means all.
func ParseTypeFilter(s string) TypeFilter {
	t, err := ParseItemType(s)
	if err != nil {
		return FilterAll
	}
	return TypeFilter(t)
}

// Query is a storefront search.
type Query struct {
	Search string
	Type   TypeFilter
}

// Matches reports whether item satisfies the query. Search text matches
// the analyzed name, year or origin.
func (q Query) Matches(item Item) bool {
	if q.Type != "" && q.Type != FilterAll && TypeFilter(item.Type) != q.Type {
		return false
	}

	term := normalizeQuery(q.Search)
	if term == "" {
		return true
	}
	a, ok := item.Identification()
	if !ok {
		return false
	}
	for _, field := range []string{a.ItemName, a.Year, a.Origin} {
		if strings.Contains(normalizeQuery(field), term) {
			return true
		}
	}
	return false
}

// Storefront filters items by q and orders available items before sold
// ones, keeping the incoming order within each group.
func Storefront(items []Item, q Query) []Item {
	result := make([]Item, 0, len(items))
	for _, item := range items {
		if q.Matches(item) {
			result = append(result, item)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return !result[i].Sold() && result[j].Sold()
	})
	return result
}

// SortNewestFirst orders items by CreatedAt descending, ties broken by id
// descending so the order is deterministic.
func SortNewestFirst(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt > items[j].CreatedAt
		}
		return items[i].ID > items[j].ID
	})
}

// ContactLink builds the mailto: link a shopper uses to ask about an item.
// Returns "" when the store has no email address.
func ContactLink(p Profile, item Item) string {
	if strings.TrimSpace(p.Email) == "" {
		return ""
	}

	a, _ := item.Identification()
	subject := fmt.Sprintf("התעניינות בפריט: %s", item.DisplayName())
	body := fmt.Sprintf("שלום %s,\n\nאני מעוניין לרכוש את הפריט \"%s\" (שנה: %s) שמוצע במחיר %s ₪.\n\nאנא צור איתי קשר.\n",
		p.OwnerName, item.DisplayName(), a.Year, item.UserPrice)

	// url.Values encodes spaces as "+", which mail clients show literally.
	v := url.Values{}
	v.Set("subject", subject)
	v.Set("body", body)
	query := strings.ReplaceAll(v.Encode(), "+", "%20")

	return "mailto:" + p.Email + "?" + query
}
