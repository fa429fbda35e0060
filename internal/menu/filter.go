package menu

import (
	"strings"
)

// Predicate selects menu items by name substring and category.
// The zero value matches every item.
type Predicate struct {
	query      string // lowercased
	restrict   bool
	categories map[string]struct{}
}

// All returns the predicate that matches every item.
func All() Predicate {
	return Predicate{}
}

// BuildPredicate composes a case-insensitive name substring query with a
// category selection.
//
// A nil selection places no restriction on category. A non-nil, empty
// selection means every category was deselected and nothing matches.
func BuildPredicate(queryText string, selectedCategories []string) Predicate {
	p := Predicate{query: strings.ToLower(queryText)}
	if selectedCategories != nil {
		p.restrict = true
		p.categories = make(map[string]struct{}, len(selectedCategories))
		for _, c := range selectedCategories {
			p.categories[c] = struct{}{}
		}
	}
	return p
}

// Match reports whether it satisfies the predicate.
func (p Predicate) Match(it Item) bool {
	if p.restrict {
		if _, ok := p.categories[it.Category]; !ok {
			return false
		}
	}
	if p.query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(it.Name), p.query)
}

// where renders the category part of the predicate as a SQL condition.
// Name matching stays in Go so case folding is not limited to ASCII.
func (p Predicate) where() (string, []any) {
	if !p.restrict {
		return "", nil
	}
	if len(p.categories) == 0 {
		return "0", nil
	}
	placeholders := make([]string, 0, len(p.categories))
	args := make([]any, 0, len(p.categories))
	for c := range p.categories {
		placeholders = append(placeholders, "?")
		args = append(args, c)
	}
	return "category IN (" + strings.Join(placeholders, ", ") + ")", args
}

// FilterState is the per-session search text and category selection.
// The zero value has no query and no category restriction.
type FilterState struct {
	query    string
	known    bool
	order    []string
	selected map[string]bool
}

// NewFilterState returns a state with every category selected.
func NewFilterState(categories []string) *FilterState {
	f := &FilterState{}
	f.Reset(categories)
	return f
}

// Reset replaces the category set, selecting all of them. The query is kept.
func (f *FilterState) Reset(categories []string) {
	f.known = true
	f.order = append([]string(nil), categories...)
	f.selected = make(map[string]bool, len(categories))
	for _, c := range categories {
		f.selected[c] = true
	}
}

// SetQuery sets the search text.
func (f *FilterState) SetQuery(text string) {
	f.query = text
}

// Query returns the search text.
func (f *FilterState) Query() string {
	return f.query
}

// Toggle flips a category. ok is false when the category is unknown.
func (f *FilterState) Toggle(category string) (selected, ok bool) {
	cur, ok := f.selected[category]
	if !ok {
		return false, false
	}
	f.selected[category] = !cur
	return !cur, true
}

// Categories returns every known category in display order.
func (f *FilterState) Categories() []string {
	return append([]string(nil), f.order...)
}

// States returns a copy of the category selection.
func (f *FilterState) States() map[string]bool {
	out := make(map[string]bool, len(f.selected))
	for c, on := range f.selected {
		out[c] = on
	}
	return out
}

// Selected lists the selected categories in display order. It is nil until
// the category set is known.
func (f *FilterState) Selected() []string {
	if !f.known {
		return nil
	}
	out := make([]string, 0, len(f.order))
	for _, c := range f.order {
		if f.selected[c] {
			out = append(out, c)
		}
	}
	return out
}

// Predicate builds the predicate for the current state.
func (f *FilterState) Predicate() Predicate {
	return BuildPredicate(f.query, f.Selected())
}
