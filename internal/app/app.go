package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"little-lemon/internal/config"
	"little-lemon/internal/menu"
	"little-lemon/internal/metrics"
	"little-lemon/internal/profile"
)

// App holds the application's dependencies.
type App struct {
	cfg          *config.Config
	syncer       *Syncer
	profileStore *profile.Store
	metricsStore *metrics.Store
	log          *slog.Logger
}

// NewApp creates and initializes a new App instance.
func NewApp(
	cfg *config.Config,
	syncer *Syncer,
	profileStore *profile.Store,
	metricsStore *metrics.Store,
	log *slog.Logger,
) *App {
	return &App{
		cfg:          cfg,
		syncer:       syncer,
		profileStore: profileStore,
		metricsStore: metricsStore,
		log:          log,
	}
}

// Config returns the application configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Syncer returns the menu cache controller.
func (a *App) Syncer() *Syncer {
	return a.syncer
}

// Profiles returns the profile store.
func (a *App) Profiles() *profile.Store {
	return a.profileStore
}

// NewSession starts a browsing session with the configured quiet period.
func (a *App) NewSession() *Session {
	return NewSession(a.syncer, a.cfg.SearchDebounce, a.log)
}

// SyncMenu makes sure the menu is cached and reports what is stored.
func (a *App) SyncMenu(ctx context.Context, w io.Writer) error {
	categories, err := a.syncer.EnsureMenuReady(ctx)
	if err != nil {
		return err
	}

	n, err := a.syncer.Store().Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Menu ready: %d items in %d categories.\n", n, len(categories))
	return nil
}

// PrintMenu lists the items matching query and categories, grouped by
// category. A nil categories slice means no category restriction.
func (a *App) PrintMenu(ctx context.Context, w io.Writer, query string, categories []string) error {
	if _, err := a.syncer.EnsureMenuReady(ctx); err != nil {
		return err
	}

	items, err := a.syncer.Store().Query(ctx, menu.BuildPredicate(query, categories))
	if err != nil {
		return err
	}

	PrintItems(w, items, a.cfg.MenuImageBaseURL)
	return nil
}

// PrintCategories lists the stored categories.
func (a *App) PrintCategories(ctx context.Context, w io.Writer) error {
	categories, err := a.syncer.EnsureMenuReady(ctx)
	if err != nil {
		return err
	}
	for _, c := range categories {
		fmt.Fprintf(w, "- %s\n", c)
	}
	return nil
}

// LogOut clears the stored profile.
func (a *App) LogOut(ctx context.Context) error {
	return a.profileStore.LogOut(ctx)
}

// CleanupMetrics removes sync records older than days.
func (a *App) CleanupMetrics(ctx context.Context, days int) (int64, error) {
	return a.metricsStore.Cleanup(ctx, days)
}

// RecentSyncs returns the latest sync runs, newest first.
func (a *App) RecentSyncs(ctx context.Context, limit int) ([]metrics.SyncRun, error) {
	return a.metricsStore.Recent(ctx, limit)
}

// PrintItems writes items grouped into sections.
func PrintItems(w io.Writer, items []menu.Item, imageBaseURL string) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No dishes match.")
		return
	}
	for _, section := range menu.Sections(items) {
		fmt.Fprintf(w, "\n=== %s ===\n", strings.ToUpper(section.Category))
		for _, it := range section.Items {
			fmt.Fprintf(w, "%-24s $%s\n", it.Name, it.Price)
			if d := it.ShortDescription(); d != "" {
				fmt.Fprintf(w, "    %s\n", d)
			}
			if u := it.ImageURL(imageBaseURL); u != "" {
				fmt.Fprintf(w, "    %s\n", u)
			}
		}
	}
}
