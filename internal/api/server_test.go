package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"little-lemon/internal/app"
	"little-lemon/internal/config"
	"little-lemon/internal/database"
	"little-lemon/internal/logger"
	"little-lemon/internal/menu"
	"little-lemon/internal/metrics"
	"little-lemon/internal/profile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const menuJSON = `{"menu":[
	{"name":"Greek Salad","price":12.99,"description":"The famous greek salad of crispy lettuce, peppers, olives and our Chicago style feta cheese","image":"greekSalad.jpg","category":"starters"},
	{"name":"Pasta","price":18.99,"description":"Penne with fried aubergines","image":"pasta.jpg","category":"mains"},
	{"name":"Lemon Dessert","price":4.99,"description":"Traditional homemade Italian Lemon Ricotta Cake","image":"lemonDessert.jpg","category":"desserts"}
]}`

func newTestServer(t *testing.T, upstream http.HandlerFunc) http.Handler {
	t.Helper()
	source := httptest.NewServer(upstream)
	t.Cleanup(source.Close)

	dbPath := filepath.Join(t.TempDir(), "api.db")
	db, err := database.NewDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		MenuAPIURL:       source.URL,
		MenuImageBaseURL: "https://img.test/images",
		SearchDebounce:   config.DefaultSearchDebounce,
	}
	log := logger.Discard()
	metricsStore := metrics.NewStore(db.SQL)
	syncer := app.NewSyncer(menu.NewStore(db.SQL), menu.NewClient(cfg), metricsStore, log)
	a := app.NewApp(cfg, syncer, profile.NewStore(db.SQL), metricsStore, log)

	return NewServer(a, dbPath, log).Handler([]string{"http://app.test"})
}

func serveMenu(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, menuJSON)
}

func get(t *testing.T, h http.Handler, target string, v any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if v != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
	}
	return rec
}

func TestMenuEndpoint(t *testing.T) {
	h := newTestServer(t, serveMenu)

	var items []menuItemResponse
	rec := get(t, h, "/api/menu", &items)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, items, 3)
	assert.Equal(t, "12.99", items[0].Price)
	assert.Equal(t, "https://img.test/images/greekSalad.jpg", items[0].ImageURL)
	assert.True(t, strings.HasSuffix(items[0].ShortDescription, "…"))

	items = nil
	get(t, h, "/api/menu?q=LEMON&category=desserts&category=mains", &items)
	require.Len(t, items, 1)
	assert.Equal(t, "Lemon Dessert", items[0].Name)

	items = nil
	get(t, h, "/api/menu?category=", &items)
	assert.Empty(t, items)
}

func TestCategoriesAndSections(t *testing.T) {
	h := newTestServer(t, serveMenu)

	var states map[string]bool
	rec := get(t, h, "/api/categories", &states)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"starters": true, "mains": true, "desserts": true}, states)

	var sections []sectionResponse
	get(t, h, "/api/sections?category=starters&category=desserts", &sections)
	require.Len(t, sections, 2)
	assert.Equal(t, "starters", sections[0].Category)
	assert.Equal(t, "desserts", sections[1].Category)
}

func TestUpstreamFailure(t *testing.T) {
	h := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	rec := get(t, h, "/api/menu", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "menu source unreachable")
}

func TestProfileEndpoints(t *testing.T) {
	h := newTestServer(t, serveMenu)

	put := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := put(`{"first_name": "", "email": "tilly@littlelemon.test"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = put(`{"first_name": "Tilly", "last_name": "Lemon", "email": "tilly@littlelemon.test"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var p profile.Profile
	get(t, h, "/api/profile", &p)
	assert.True(t, p.LoggedIn)
	assert.Equal(t, "Tilly", p.FirstName)

	del := httptest.NewRecorder()
	h.ServeHTTP(del, httptest.NewRequest(http.MethodDelete, "/api/profile", nil))
	assert.Equal(t, http.StatusNoContent, del.Code)

	p = profile.Profile{}
	get(t, h, "/api/profile", &p)
	assert.False(t, p.LoggedIn)
}

func TestCORSAndHealth(t *testing.T) {
	h := newTestServer(t, serveMenu)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://app.test")
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://app.test", rec.Header().Get("Access-Control-Allow-Origin"))

	var health metrics.SysHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Positive(t, health.Goroutines)
}

func TestConcurrentFirstRequestsFetchOnce(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	h := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		serveMenu(w, r)
	})

	var wg sync.WaitGroup
	for n := 0; n < 20; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/menu", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		}()
	}
	wg.Wait()

	var items []menuItemResponse
	get(t, h, "/api/menu", &items)
	assert.Len(t, items, 3, "every dish is listed once")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, hits)
}
