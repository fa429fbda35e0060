package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"little-lemon/internal/menu"
	"little-lemon/internal/metrics"
)

// Syncer populates the local menu cache on activation. The cache is filled
// once and never refreshed while it holds any rows. Concurrent activations
// are serialized, so a burst of first requests fetches the menu once.
type Syncer struct {
	mu           sync.Mutex
	store        *menu.Store
	fetcher      menu.Fetcher
	metricsStore *metrics.Store // optional
	log          *slog.Logger
}

// NewSyncer creates a Syncer. metricsStore may be nil.
func NewSyncer(store *menu.Store, fetcher menu.Fetcher, metricsStore *metrics.Store, log *slog.Logger) *Syncer {
	return &Syncer{
		store:        store,
		fetcher:      fetcher,
		metricsStore: metricsStore,
		log:          log.With("component", "syncer"),
	}
}

// Store returns the menu store the Syncer fills.
func (s *Syncer) Store() *menu.Store {
	return s.store
}

// EnsureMenuReady creates the schema, fetches and persists the menu if the
// store is empty, and returns the categories currently stored.
//
// Errors from the fetcher or the store are returned as is; the store is left
// as it was so the next activation can retry.
//
// A sync run is recorded only when the remote menu was requested or the
// activation failed.
func (s *Syncer) EnsureMenuReady(ctx context.Context) (categories []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	run := metrics.SyncRun{StartedAt: start.UTC()}
	defer func() {
		if !run.Fetched && err == nil {
			return
		}
		run.LatencyMS = time.Since(start).Milliseconds()
		if err != nil {
			run.Error = err.Error()
		}
		s.record(ctx, run)
	}()

	if err := s.store.CreateSchema(ctx); err != nil {
		return nil, err
	}

	empty, err := s.store.IsEmpty(ctx)
	if err != nil {
		return nil, err
	}

	if empty {
		run.Fetched = true
		s.log.Info("Menu cache empty, fetching remote menu")

		items, err := s.fetcher.FetchMenu(ctx)
		if err != nil {
			s.log.Error("Failed to fetch menu", "error", err)
			return nil, fmt.Errorf("failed to fetch menu: %w", err)
		}
		if err := s.store.BulkInsert(ctx, items); err != nil {
			s.log.Error("Failed to persist menu", "error", err)
			return nil, fmt.Errorf("failed to persist menu: %w", err)
		}
		s.log.Info("Menu cached", "items", len(items))
	}

	categories, err = s.store.Categories(ctx)
	if err != nil {
		return nil, err
	}

	if run.Fetched {
		if n, err := s.store.Count(ctx); err == nil {
			run.ItemCount = n
		}
	}
	return categories, nil
}

func (s *Syncer) record(ctx context.Context, run metrics.SyncRun) {
	if s.metricsStore == nil {
		return
	}
	if err := s.metricsStore.Record(context.WithoutCancel(ctx), run); err != nil {
		s.log.Warn("Failed to record sync run", "error", err)
	}
}
