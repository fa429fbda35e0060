package menu

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"little-lemon/internal/database"
)

// Store is the SQLite-backed table of menu items.
type Store struct {
	db       *sql.DB
	migrated atomic.Bool
}

// NewStore creates a new Store on an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateSchema ensures the menu table exists. It is safe to call repeatedly;
// after the first success it returns without touching the database.
func (s *Store) CreateSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if s.migrated.Load() {
		return nil
	}
	if err := database.Migrate(s.db); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	s.migrated.Store(true)
	return nil
}

// BulkInsert persists items in one transaction, in slice order.
// Names are not deduplicated.
func (s *Store) BulkInsert(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrStorageWrite, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO menu_items (id, name, price, description, image, category)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare insert: %w", ErrStorageWrite, err)
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.ID, it.Name, it.Price, it.Description, it.Image, it.Category); err != nil {
			return fmt.Errorf("%w: failed to insert %q: %w", ErrStorageWrite, it.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit: %w", ErrStorageWrite, err)
	}
	return nil
}

// IsEmpty reports whether the table holds no rows.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM menu_items)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: %w", ErrStorageRead, err)
	}
	return !exists, nil
}

// Count returns the number of stored items.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM menu_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorageRead, err)
	}
	return n, nil
}

// Query returns the items matching p in insertion order.
func (s *Store) Query(ctx context.Context, p Predicate) ([]Item, error) {
	query := `SELECT id, name, price, description, image, category FROM menu_items`
	cond, args := p.where()
	if cond != "" {
		query += ` WHERE ` + cond
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageRead, err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Price, &it.Description, &it.Image, &it.Category); err != nil {
			return nil, fmt.Errorf("%w: failed to scan menu item: %w", ErrStorageRead, err)
		}
		if p.Match(it) {
			items = append(items, it)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageRead, err)
	}
	return items, nil
}

// Categories returns the distinct categories in the order they were first
// inserted.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category FROM menu_items
		GROUP BY category
		ORDER BY MIN(seq)`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageRead, err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("%w: failed to scan category: %w", ErrStorageRead, err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageRead, err)
	}
	return categories, nil
}
