package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"little-lemon/internal/config"
	"little-lemon/internal/database"
	"little-lemon/internal/logger"
	"little-lemon/internal/menu"
	"little-lemon/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock Fetcher ---
type mockFetcher struct {
	mu    sync.Mutex
	items []menu.Item
	err   error
	calls int
}

func (m *mockFetcher) FetchMenu(ctx context.Context) ([]menu.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]menu.Item(nil), m.items...), nil
}

func (m *mockFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type testEnv struct {
	db           *database.DB
	store        *menu.Store
	metricsStore *metrics.Store
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return testEnv{
		db:           db,
		store:        menu.NewStore(db.SQL),
		metricsStore: metrics.NewStore(db.SQL),
	}
}

func menuItems() []menu.Item {
	return []menu.Item{
		{ID: 1, Name: "Greek Salad", Price: "12.99", Description: "Crispy lettuce", Image: "greekSalad.jpg", Category: "starters"},
		{ID: 2, Name: "Pasta Primavera", Price: "18.5", Description: "Seasonal vegetables", Image: "pasta.jpg", Category: "mains"},
		{ID: 3, Name: "Bruschetta", Price: "7.99", Description: "Grilled bread", Image: "bruschetta.jpg", Category: "starters"},
		{ID: 4, Name: "Lemon Dessert", Price: "6.99", Description: "Grandma's recipe", Image: "lemonDessert.jpg", Category: "desserts"},
		{ID: 5, Name: "Grilled Fish", Price: "20", Description: "Catch of the day", Image: "grilledFish.jpg", Category: "mains"},
	}
}

func TestEnsureMenuReadyFetchesOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	fetcher := &mockFetcher{items: menuItems()}
	syncer := NewSyncer(env.store, fetcher, env.metricsStore, logger.Discard())

	categories, err := syncer.EnsureMenuReady(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"starters", "mains", "desserts"}, categories)
	assert.Equal(t, 1, fetcher.Calls())

	_, err = syncer.EnsureMenuReady(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.Calls(), "populated store must not be re-fetched")

	n, err := env.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n, "second activation must not insert")

	runs, err := env.metricsStore.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1, "cache hits are not recorded as sync runs")
	assert.True(t, runs[0].Fetched)
	assert.Equal(t, 5, runs[0].ItemCount)
}

func TestEnsureMenuReadyConcurrentFirstActivations(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	fetcher := &mockFetcher{items: menuItems()}
	syncer := NewSyncer(env.store, fetcher, env.metricsStore, logger.Discard())

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for n := 0; n < 20; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := syncer.EnsureMenuReady(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, fetcher.Calls())
	n, err := env.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n, "each dish is stored once")

	runs, err := env.metricsStore.Recent(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestEnsureMenuReadyPrepopulatedStore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.store.BulkInsert(ctx, menuItems()))

	fetcher := &mockFetcher{err: errors.New("must not be called")}
	syncer := NewSyncer(env.store, fetcher, nil, logger.Discard())

	_, err := syncer.EnsureMenuReady(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fetcher.Calls())
}

func TestEnsureMenuReadyFetchFailureLeavesStoreEmpty(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	fetcher := &mockFetcher{err: fmt.Errorf("%w: connection refused", menu.ErrNetwork)}
	syncer := NewSyncer(env.store, fetcher, env.metricsStore, logger.Discard())

	_, err := syncer.EnsureMenuReady(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, menu.ErrNetwork))

	empty, err := env.store.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	runs, err := env.metricsStore.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, "connection refused")

	// The next activation is the retry path.
	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.items = menuItems()
	fetcher.mu.Unlock()

	categories, err := syncer.EnsureMenuReady(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 3)
	assert.Equal(t, 2, fetcher.Calls())
}

func TestEnsureMenuReadyEmptyRemoteMenu(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	fetcher := &mockFetcher{items: []menu.Item{}}
	syncer := NewSyncer(env.store, fetcher, nil, logger.Discard())

	categories, err := syncer.EnsureMenuReady(ctx)
	require.NoError(t, err)
	assert.Empty(t, categories)

	empty, err := env.store.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestEnsureMenuReadyFromRemoteSource(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"menu":[{"name":"Greek Salad","price":12.99,"description":"...","image":"greekSalad.jpg","category":"starters"}]}`)
	}))
	defer server.Close()

	syncer := NewSyncer(env.store, menu.NewClient(&config.Config{MenuAPIURL: server.URL}), nil, logger.Discard())
	session := NewSession(syncer, config.DefaultSearchDebounce, logger.Discard())
	defer session.Close()

	states, err := session.EnsureMenuReady(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"starters": true}, states)

	items, err := env.store.Query(ctx, menu.All())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].ID)
	assert.Equal(t, "12.99", items[0].Price)
	assert.Equal(t, "starters", items[0].Category)
}

func TestEnsureMenuReadyParseError(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items": []}`)
	}))
	defer server.Close()

	syncer := NewSyncer(env.store, menu.NewClient(&config.Config{MenuAPIURL: server.URL}), nil, logger.Discard())

	_, err := syncer.EnsureMenuReady(ctx)
	assert.True(t, errors.Is(err, menu.ErrParse))
}
