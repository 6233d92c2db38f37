// Package store persists reviewed chapters. An ebook belongs to one owner;
// committing a batch replaces the ebook's chapter list atomically.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hazyhaar/ebookimport/dbopen"
	"github.com/hazyhaar/ebookimport/idgen"
)

var (
	// ErrForbidden is returned when the ebook belongs to another user.
	ErrForbidden = errors.New("store: ebook owned by another user")
	// ErrNotFound is returned when the ebook does not exist.
	ErrNotFound = errors.New("store: ebook not found")
)

// Ebook is an ebooks row.
type Ebook struct {
	ID        string `json:"id"`
	OwnerID   string `json:"-"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

// Chapter is a committed chapter.
type Chapter struct {
	ID        string `json:"id"`
	EbookID   string `json:"ebook_id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Order     int    `json:"order"`
	CreatedAt string `json:"created_at"`
}

// NewChapter is one entry of a batch to commit.
type NewChapter struct {
	Title   string
	Content string
	Order   int
}

// Store wraps the SQLite database holding ebooks and chapters.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// New wraps an open database. The schema must already be applied.
func New(db *sql.DB) *Store {
	return &Store{
		db:    db,
		newID: idgen.For(idgen.Chapter),
		now:   time.Now,
	}
}

// Open opens (or creates) the database at path and applies Schema.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// DB returns the underlying database, shared with the rate limiter.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// EnsureEbook returns the ebook, creating it for ownerID when absent.
// An ebook owned by someone else yields ErrForbidden.
func (s *Store) EnsureEbook(ctx context.Context, id, ownerID, title string) (*Ebook, error) {
	var e *Ebook
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		got, err := getEbook(ctx, tx, id)
		if err != nil {
			return err
		}
		if got != nil {
			if got.OwnerID != ownerID {
				return ErrForbidden
			}
			e = got
			return nil
		}
		e = &Ebook{ID: id, OwnerID: ownerID, Title: title, CreatedAt: s.timestamp()}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ebooks (id, owner_id, title, created_at) VALUES (?, ?, ?, ?)`,
			e.ID, e.OwnerID, e.Title, e.CreatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ensure ebook %s: %w", id, err)
	}
	return e, nil
}

// ReplaceChapters deletes the ebook's chapters and inserts chs in one
// transaction. Orders are re-densified to 0..n-1 following the requested
// order, ties keeping their input position.
func (s *Store) ReplaceChapters(ctx context.Context, ebookID, ownerID string, chs []NewChapter) ([]Chapter, error) {
	sorted := make([]NewChapter, len(chs))
	copy(sorted, chs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	var out []Chapter
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		out = out[:0]
		e, err := getEbook(ctx, tx, ebookID)
		if err != nil {
			return err
		}
		if e == nil {
			return ErrNotFound
		}
		if e.OwnerID != ownerID {
			return ErrForbidden
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM chapters WHERE ebook_id = ?`, ebookID); err != nil {
			return err
		}
		now := s.timestamp()
		for i, c := range sorted {
			ch := Chapter{
				ID:        s.newID(),
				EbookID:   ebookID,
				Title:     c.Title,
				Content:   c.Content,
				Order:     i,
				CreatedAt: now,
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO chapters (id, ebook_id, title, content, chapter_order, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
				ch.ID, ch.EbookID, ch.Title, ch.Content, ch.Order, ch.CreatedAt); err != nil {
				return err
			}
			out = append(out, ch)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace chapters of %s: %w", ebookID, err)
	}
	return out, nil
}

// ListChapters returns the ebook's chapters by order. Reading another
// user's ebook yields ErrForbidden, a missing one ErrNotFound.
func (s *Store) ListChapters(ctx context.Context, ebookID, ownerID string) ([]Chapter, error) {
	e, err := getEbook(ctx, s.db, ebookID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNotFound
	}
	if e.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ebook_id, title, content, chapter_order, created_at
		 FROM chapters WHERE ebook_id = ? ORDER BY chapter_order`, ebookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chapters := []Chapter{}
	for rows.Next() {
		var c Chapter
		if err := rows.Scan(&c.ID, &c.EbookID, &c.Title, &c.Content, &c.Order, &c.CreatedAt); err != nil {
			return nil, err
		}
		chapters = append(chapters, c)
	}
	return chapters, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getEbook(ctx context.Context, q queryer, id string) (*Ebook, error) {
	var e Ebook
	err := q.QueryRowContext(ctx,
		`SELECT id, owner_id, title, created_at FROM ebooks WHERE id = ?`, id).
		Scan(&e.ID, &e.OwnerID, &e.Title, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
