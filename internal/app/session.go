package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"little-lemon/internal/debounce"
	"little-lemon/internal/menu"
)

// Session is one user's view of the menu: the search text, the category
// selection and the items currently visible. Front-ends own their Session;
// nothing here is process-wide.
type Session struct {
	syncer *Syncer
	log    *slog.Logger

	mu         sync.Mutex
	filter     menu.FilterState
	searchText string
	visible    []menu.Item
	generation uint64
	onUpdate   func([]menu.Item, error)

	debouncer *debounce.Debouncer[string]
}

// NewSession creates a Session whose search input settles after quietPeriod.
func NewSession(syncer *Syncer, quietPeriod time.Duration, log *slog.Logger) *Session {
	s := &Session{
		syncer:  syncer,
		log:     log.With("component", "session"),
		visible: []menu.Item{},
	}
	s.debouncer = debounce.New(quietPeriod, s.applyQuery)
	return s
}

// OnUpdate registers fn to be called after every refresh of the visible
// items. It may be called from a timer goroutine.
func (s *Session) OnUpdate(fn func(items []menu.Item, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// EnsureMenuReady fills the cache if needed, selects every category and
// refreshes the visible items.
func (s *Session) EnsureMenuReady(ctx context.Context) (map[string]bool, error) {
	categories, err := s.syncer.EnsureMenuReady(ctx)
	if err != nil {
		s.notify(nil, err)
		return nil, err
	}

	s.mu.Lock()
	s.filter.Reset(categories)
	states := s.filter.States()
	s.mu.Unlock()

	if err := s.refresh(ctx); err != nil {
		return states, err
	}
	return states, nil
}

// SetSearchText records the raw input and schedules the query once typing
// has paused.
func (s *Session) SetSearchText(text string) {
	s.mu.Lock()
	s.searchText = text
	s.mu.Unlock()
	s.debouncer.Trigger(text)
}

// FlushSearch applies pending search text immediately.
func (s *Session) FlushSearch() bool {
	return s.debouncer.Flush()
}

// ToggleCategory flips a category and refreshes the visible items.
func (s *Session) ToggleCategory(ctx context.Context, category string) error {
	s.mu.Lock()
	_, ok := s.filter.Toggle(category)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown category %q", category)
	}
	return s.refresh(ctx)
}

// VisibleItems returns the items matching the current filter.
func (s *Session) VisibleItems() []menu.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]menu.Item(nil), s.visible...)
}

// CategoryStates returns the selection state of every category.
func (s *Session) CategoryStates() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.States()
}

// Categories returns the categories in display order.
func (s *Session) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.Categories()
}

// SearchText returns the latest raw input, applied or not.
func (s *Session) SearchText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchText
}

// Query returns the search text currently applied to the visible items.
func (s *Session) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.Query()
}

// Close cancels any pending search.
func (s *Session) Close() {
	s.debouncer.Stop()
}

func (s *Session) applyQuery(text string) {
	s.mu.Lock()
	s.filter.SetQuery(text)
	s.mu.Unlock()

	if err := s.refresh(context.Background()); err != nil {
		s.log.Error("Failed to apply search", "query", text, "error", err)
	}
}

// refresh queries the store with the current filter. Results of a refresh
// that was overtaken by a newer one are dropped.
func (s *Session) refresh(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	pred := s.filter.Predicate()
	s.mu.Unlock()

	items, err := s.syncer.Store().Query(ctx, pred)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return err
	}
	if err == nil {
		s.visible = items
	}
	s.mu.Unlock()

	s.notify(items, err)
	return err
}

func (s *Session) notify(items []menu.Item, err error) {
	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()
	if fn != nil {
		fn(items, err)
	}
}
