package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"little-lemon/internal/api"
	"little-lemon/internal/app"
	"little-lemon/internal/config"
	"little-lemon/internal/database"
	"little-lemon/internal/logger"
	"little-lemon/internal/menu"
	"little-lemon/internal/metrics"
	"little-lemon/internal/profile"
)

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.NewFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithWriter(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "cli"}, os.Stderr)
	slog.SetDefault(log)

	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		log.Error("Failed to initialize database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	metricsStore := metrics.NewStore(db.SQL)
	syncer := app.NewSyncer(menu.NewStore(db.SQL), menu.NewClient(cfg), metricsStore, log)
	application := app.NewApp(cfg, syncer, profile.NewStore(db.SQL), metricsStore, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, application, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		db.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, cmd string, args []string) error {
	switch cmd {
	case "sync":
		return a.SyncMenu(ctx, os.Stdout)
	case "list":
		listCmd := flag.NewFlagSet("list", flag.ExitOnError)
		query := listCmd.String("q", "", "Search text matched against dish names")
		var categories stringList
		listCmd.Var(&categories, "category", "Show only this category (repeatable)")
		listCmd.Parse(args)

		var selected []string
		if len(categories) > 0 {
			selected = categories
		}
		return a.PrintMenu(ctx, os.Stdout, *query, selected)
	case "categories":
		return a.PrintCategories(ctx, os.Stdout)
	case "browse":
		return browse(ctx, a, os.Stdin, os.Stdout)
	case "serve":
		return serve(ctx, a)
	case "logout":
		if err := a.LogOut(ctx); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	case "metrics-cleanup":
		cleanupCmd := flag.NewFlagSet("metrics-cleanup", flag.ExitOnError)
		days := cleanupCmd.Int("days", 30, "Keep records for the last N days")
		cleanupCmd.Parse(args)

		affected, err := a.CleanupMetrics(ctx, *days)
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		fmt.Printf("Successfully removed %d old sync records.\n", affected)
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// browse reads input lines as search keystrokes. Every line replaces the
// search text; results print once typing settles. ":toggle <category>"
// flips a category and ":quit" exits.
func browse(ctx context.Context, a *app.App, in io.Reader, out io.Writer) error {
	session := a.NewSession()
	defer session.Close()

	base := a.Config().MenuImageBaseURL
	session.OnUpdate(func(items []menu.Item, err error) {
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
		app.PrintItems(out, items, base)
		fmt.Fprint(out, "\n> ")
	})

	states, err := session.EnsureMenuReady(ctx)
	if err != nil {
		return err
	}
	printStates(out, session.Categories(), states)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == ":quit":
			return nil
		case strings.HasPrefix(line, ":toggle "):
			name := strings.TrimSpace(strings.TrimPrefix(line, ":toggle "))
			if err := session.ToggleCategory(ctx, name); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			printStates(out, session.Categories(), session.CategoryStates())
		default:
			session.SetSearchText(line)
		}
	}
	session.FlushSearch()
	return scanner.Err()
}

func printStates(w io.Writer, order []string, states map[string]bool) {
	fmt.Fprint(w, "Categories:")
	for _, c := range order {
		mark := " "
		if states[c] {
			mark = "x"
		}
		fmt.Fprintf(w, " [%s] %s", mark, c)
	}
	fmt.Fprintln(w)
}

func serve(ctx context.Context, a *app.App) error {
	cfg := a.Config()
	log := slog.Default()

	// Warm the cache so the first requests do not wait on the download
	warmCtx, cancelWarm := context.WithTimeout(ctx, cfg.FetchTimeout)
	if _, err := a.Syncer().EnsureMenuReady(warmCtx); err != nil {
		log.Warn("Menu not cached yet, will retry on first request", "error", err)
	}
	cancelWarm()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewServer(a, cfg.DatabasePath, log).Handler(cfg.CORSAllowedOrigins),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Menu API listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exiting")
	return nil
}

func printUsage() {
	fmt.Println("Usage: little-lemon <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  sync               Download the menu if it is not cached yet")
	fmt.Println("  list               Print the menu (-q text, -category name)")
	fmt.Println("  categories         Print the menu categories")
	fmt.Println("  browse             Search the menu interactively")
	fmt.Println("  serve              Serve the menu API over HTTP")
	fmt.Println("  logout             Clear the stored profile")
	fmt.Println("  metrics-cleanup    Remove old sync records")
}
