package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"schoollib/pkg/models"
)

var (
	ErrNotFound          = errors.New("book not found")
	ErrNoCopiesAvailable = errors.New("no copies available")
	ErrInvalidCapacity   = errors.New("total copies below outstanding loans")
	ErrBookInUse         = errors.New("book has outstanding loans")
	ErrValidation        = errors.New("invalid book input")
)

// Repo is the authority over per-book copy counts. All availability math
// happens here; nothing outside this package touches available_copies.
type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

type BookInput struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Category    string `json:"category"`
	TotalCopies int    `json:"total_copies"`
}

func (in *BookInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Category = strings.TrimSpace(in.Category)

	if in.Title == "" || in.Author == "" || in.Category == "" {
		return fmt.Errorf("%w: title, author and category are required", ErrValidation)
	}
	if in.TotalCopies < 1 {
		return fmt.Errorf("%w: total_copies must be >= 1", ErrValidation)
	}
	return nil
}

// AddBook creates a catalog entry with every copy available.
func (r *Repo) AddBook(ctx context.Context, in BookInput) (*models.Book, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	b := models.Book{
		ID:              uuid.NewString(),
		Title:           in.Title,
		Author:          in.Author,
		Category:        in.Category,
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO books (id, title, author, category, total_copies, available_copies)
		VALUES (?, ?, ?, ?, ?, ?)
	`, b.ID, b.Title, b.Author, b.Category, b.TotalCopies, b.AvailableCopies)
	if err != nil {
		return nil, fmt.Errorf("insert book: %w", err)
	}

	return r.Get(ctx, b.ID)
}

// UpdateBook replaces the editable fields and recomputes available_copies
// from the invariant available = total - outstanding. The recomputation
// runs in the same transaction as the outstanding count so a concurrent
// borrow cannot slip between the read and the write.
func (r *Repo) UpdateBook(ctx context.Context, id string, in BookInput) (*models.Book, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM books WHERE id = ?`, id).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: book %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("check book: %w", err)
	}

	outstanding, err := outstandingCountTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if in.TotalCopies < outstanding {
		return nil, fmt.Errorf("%w: %d copies requested, %d still lent out", ErrInvalidCapacity, in.TotalCopies, outstanding)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE books
		SET title = ?, author = ?, category = ?,
		    total_copies = ?, available_copies = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, in.Title, in.Author, in.Category, in.TotalCopies, in.TotalCopies-outstanding, id)
	if err != nil {
		return nil, fmt.Errorf("update book: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}

	return r.Get(ctx, id)
}

// RemoveBook deletes a catalog entry. Books with outstanding loans cannot
// be removed; returned loans do not block removal (they are history, not
// a live claim on a copy).
func (r *Repo) RemoveBook(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove: %w", err)
	}
	defer tx.Rollback()

	outstanding, err := outstandingCountTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if outstanding > 0 {
		return fmt.Errorf("%w: book %s has %d outstanding loans", ErrBookInUse, id, outstanding)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: book %s", ErrNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove: %w", err)
	}
	return nil
}

// ReserveCopy claims one copy for a borrow. The conditional UPDATE is the
// concurrency guard: with available_copies == 1 and two racing callers,
// exactly one row update succeeds and the other caller sees
// ErrNoCopiesAvailable.
func (r *Repo) ReserveCopy(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE books
		SET available_copies = available_copies - 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND available_copies > 0
	`, id)
	if err != nil {
		return fmt.Errorf("reserve copy: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}

	// Nothing updated: either the book is gone or every copy is out.
	var exists int
	err = r.DB.QueryRowContext(ctx, `SELECT 1 FROM books WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: book %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("check book: %w", err)
	}
	return fmt.Errorf("%w: book %s", ErrNoCopiesAvailable, id)
}

// ReleaseCopy gives a copy back, capped at total_copies so a stray double
// release can never inflate availability past capacity.
func (r *Repo) ReleaseCopy(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE books
		SET available_copies = MIN(available_copies + 1, total_copies),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("release copy: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: book %s", ErrNotFound, id)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (*models.Book, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, title, author, category, total_copies, available_copies, created_at, updated_at
		FROM books
		WHERE id = ?
	`, id)

	var b models.Book
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Category,
		&b.TotalCopies, &b.AvailableCopies, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: book %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &b, nil
}

type ListQuery struct {
	Q        string // keyword search in title/author
	Category string
	Limit    int
	Offset   int
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.Book, int, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	where := "1=1"
	args := []any{}
	if q.Q != "" {
		where += " AND (title LIKE ? OR author LIKE ?)"
		kw := "%" + q.Q + "%"
		args = append(args, kw, kw)
	}
	if q.Category != "" {
		where += " AND category = ?"
		args = append(args, q.Category)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM books WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, title, author, category, total_copies, available_copies, created_at, updated_at
		FROM books
		WHERE `+where+`
		ORDER BY title ASC
		LIMIT ? OFFSET ?
	`, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	out := make([]models.Book, 0, q.Limit)
	for rows.Next() {
		var b models.Book
		var created, updated time.Time
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Category,
			&b.TotalCopies, &b.AvailableCopies, &created, &updated); err != nil {
			return nil, 0, fmt.Errorf("scan book row: %w", err)
		}
		b.CreatedAt = created
		b.UpdatedAt = updated
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows err: %w", err)
	}

	return out, total, nil
}

// OutstandingCount reports how many copies of the book are currently lent
// out. The catalog only ever reads the aggregate; individual loans belong
// to the loan ledger.
func (r *Repo) OutstandingCount(ctx context.Context, bookID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM loans WHERE book_id = ? AND status = 'outstanding'
	`, bookID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count outstanding: %w", err)
	}
	return n, nil
}

func outstandingCountTx(ctx context.Context, tx *sql.Tx, bookID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM loans WHERE book_id = ? AND status = 'outstanding'
	`, bookID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count outstanding: %w", err)
	}
	return n, nil
}
