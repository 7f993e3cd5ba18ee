package loans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"schoollib/pkg/models"
	"schoollib/pkg/utils"
)

var (
	ErrNotFound        = errors.New("loan not found")
	ErrBookNotFound    = errors.New("book not found")
	ErrAlreadyReturned = errors.New("loan already returned")
	ErrValidation      = errors.New("invalid loan input")
)

// Ledger owns loan records and their two-state lifecycle: a loan is
// created outstanding and flips to returned exactly once. It never
// touches copy counts; that is the catalog's job and the circulation
// service keeps the two in step.
type Ledger struct {
	DB     *sql.DB
	Policy utils.LoanPolicy

	// Now is the clock used for "today"; tests override it.
	Now func() time.Time
}

func NewLedger(db *sql.DB, policy utils.LoanPolicy) *Ledger {
	return &Ledger{DB: db, Policy: policy, Now: time.Now}
}

func (l *Ledger) today() time.Time {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	return DateOnly(now)
}

// DateOnly truncates a timestamp to its UTC calendar date. All loan dates
// are stored at day granularity; fines count whole days.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type CreateInput struct {
	BookID        string
	BorrowerName  string
	BorrowerRole  string
	BorrowerGroup string
	BorrowDate    time.Time // zero value means today
}

// CreateLoan validates the request and writes an outstanding loan with a
// role-derived due date. It checks the book exists but does not reserve a
// copy; reservation belongs to the circulation service.
func (l *Ledger) CreateLoan(ctx context.Context, in CreateInput) (*models.Loan, error) {
	in.BookID = strings.TrimSpace(in.BookID)
	in.BorrowerName = strings.TrimSpace(in.BorrowerName)
	in.BorrowerRole = strings.TrimSpace(strings.ToLower(in.BorrowerRole))
	in.BorrowerGroup = strings.TrimSpace(in.BorrowerGroup)

	if in.BookID == "" {
		return nil, fmt.Errorf("%w: book id required", ErrValidation)
	}
	if in.BorrowerName == "" {
		return nil, fmt.Errorf("%w: borrower name required", ErrValidation)
	}
	if in.BorrowerRole != models.RoleStudent && in.BorrowerRole != models.RoleTeacher {
		return nil, fmt.Errorf("%w: borrower role must be student or teacher", ErrValidation)
	}

	today := l.today()
	borrow := today
	if !in.BorrowDate.IsZero() {
		borrow = DateOnly(in.BorrowDate)
	}
	if borrow.Before(today) {
		return nil, fmt.Errorf("%w: borrow date cannot be in the past", ErrValidation)
	}

	var exists int
	err := l.DB.QueryRowContext(ctx, `SELECT 1 FROM books WHERE id = ?`, in.BookID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrBookNotFound, in.BookID)
	}
	if err != nil {
		return nil, fmt.Errorf("check book: %w", err)
	}

	loan := models.Loan{
		ID:            uuid.NewString(),
		BookID:        in.BookID,
		BorrowerName:  in.BorrowerName,
		BorrowerRole:  in.BorrowerRole,
		BorrowerGroup: in.BorrowerGroup,
		BorrowDate:    borrow,
		DueDate:       borrow.AddDate(0, 0, LoanDays(l.Policy, in.BorrowerRole)),
		Status:        models.LoanOutstanding,
	}

	_, err = l.DB.ExecContext(ctx, `
		INSERT INTO loans (id, book_id, borrower_name, borrower_role, borrower_group,
		                   borrow_date, due_date, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, loan.ID, loan.BookID, loan.BorrowerName, loan.BorrowerRole, loan.BorrowerGroup,
		loan.BorrowDate, loan.DueDate, loan.Status)
	if err != nil {
		return nil, fmt.Errorf("insert loan: %w", err)
	}

	return l.Get(ctx, loan.ID)
}

// ReturnLoan closes a loan at most once. The conditional UPDATE on
// status='outstanding' is the idempotency guard: of two racing returns,
// one flips the row and the other gets ErrAlreadyReturned with the first
// caller's fine and return date left untouched.
//
// A nonzero unpaid fine does not block the return; it is recorded as
// owed. Callers wanting to require payment first must enforce that as
// policy above this state machine.
func (l *Ledger) ReturnLoan(ctx context.Context, loanID string, finePaid bool, returnedAt time.Time) (*models.Loan, error) {
	loan, err := l.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}

	if returnedAt.IsZero() {
		returnedAt = l.today()
	} else {
		returnedAt = DateOnly(returnedAt)
	}

	fine := Fine(l.Policy, loan.DueDate, returnedAt)

	res, err := l.DB.ExecContext(ctx, `
		UPDATE loans
		SET status = 'returned', return_date = ?, fine_amount = ?, fine_paid = ?
		WHERE id = ? AND status = 'outstanding'
	`, returnedAt, fine, finePaid, loanID)
	if err != nil {
		return nil, fmt.Errorf("return loan: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("%w: loan %s", ErrAlreadyReturned, loanID)
	}

	return l.Get(ctx, loanID)
}

func (l *Ledger) Get(ctx context.Context, id string) (*models.Loan, error) {
	row := l.DB.QueryRowContext(ctx, `
		SELECT id, book_id, borrower_name, borrower_role, borrower_group,
		       borrow_date, due_date, status, return_date, fine_amount, fine_paid, created_at
		FROM loans
		WHERE id = ?
	`, id)

	loan, err := scanLoan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return loan, nil
}

// ListOutstanding returns open loans, optionally filtered by book.
func (l *Ledger) ListOutstanding(ctx context.Context, bookID string) ([]models.Loan, error) {
	return l.list(ctx, models.LoanOutstanding, bookID)
}

// ListReturned returns the historical record, optionally filtered by book.
func (l *Ledger) ListReturned(ctx context.Context, bookID string) ([]models.Loan, error) {
	return l.list(ctx, models.LoanReturned, bookID)
}

func (l *Ledger) list(ctx context.Context, status, bookID string) ([]models.Loan, error) {
	query := `
		SELECT id, book_id, borrower_name, borrower_role, borrower_group,
		       borrow_date, due_date, status, return_date, fine_amount, fine_paid, created_at
		FROM loans
		WHERE status = ?`
	args := []any{status}
	if bookID != "" {
		query += ` AND book_id = ?`
		args = append(args, bookID)
	}
	query += ` ORDER BY borrow_date DESC, created_at DESC`

	rows, err := l.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	out := make([]models.Loan, 0, 16)
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan row: %w", err)
		}
		out = append(out, *loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var (
		loan     models.Loan
		returned sql.NullTime
	)
	if err := row.Scan(&loan.ID, &loan.BookID, &loan.BorrowerName, &loan.BorrowerRole,
		&loan.BorrowerGroup, &loan.BorrowDate, &loan.DueDate, &loan.Status,
		&returned, &loan.FineAmount, &loan.FinePaid, &loan.CreatedAt); err != nil {
		return nil, err
	}
	if returned.Valid {
		t := returned.Time
		loan.ReturnDate = &t
	}
	return &loan, nil
}
