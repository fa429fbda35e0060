package menu

import (
	"errors"
	"strings"
)

// Sentinel errors returned by the menu pipeline. Callers match them with
// errors.Is; every one of them is recoverable.
var (
	ErrNetwork            = errors.New("menu source unreachable")
	ErrParse              = errors.New("malformed menu payload")
	ErrStorageUnavailable = errors.New("menu storage unavailable")
	ErrStorageWrite       = errors.New("menu storage write failed")
	ErrStorageRead        = errors.New("menu storage read failed")
)

const shortDescriptionLen = 50

// Item is a single dish on the menu.
type Item struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Category    string `json:"category"`
}

// ShortDescription truncates the description to 50 characters plus an ellipsis.
func (it Item) ShortDescription() string {
	r := []rune(it.Description)
	if len(r) <= shortDescriptionLen {
		return it.Description
	}
	return string(r[:shortDescriptionLen]) + "…"
}

// ImageURL resolves the image filename against baseURL.
func (it Item) ImageURL(baseURL string) string {
	if it.Image == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(it.Image, "/")
}

// Section is a group of items sharing a category.
type Section struct {
	Category string `json:"category"`
	Items    []Item `json:"items"`
}

// Sections groups items by category, keeping the order in which each
// category first appears.
func Sections(items []Item) []Section {
	index := make(map[string]int)
	var sections []Section
	for _, it := range items {
		i, ok := index[it.Category]
		if !ok {
			i = len(sections)
			index[it.Category] = i
			sections = append(sections, Section{Category: it.Category})
		}
		sections[i].Items = append(sections[i].Items, it)
	}
	return sections
}

// DistinctCategories returns the categories of items in first-seen order.
func DistinctCategories(items []Item) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, it := range items {
		if _, ok := seen[it.Category]; ok {
			continue
		}
		seen[it.Category] = struct{}{}
		out = append(out, it.Category)
	}
	return out
}
