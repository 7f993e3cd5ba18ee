package loans

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoollib/pkg/database"
	"schoollib/pkg/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func newTestLedger(t *testing.T, db *sql.DB) *Ledger {
	t.Helper()
	ledger := NewLedger(db, testPolicy)
	ledger.Now = func() time.Time { return day(0) }
	return ledger
}

func insertBook(t *testing.T, db *sql.DB, copies int) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO books (id, title, author, category, total_copies, available_copies)
		VALUES (?, 'Go Systems', 'A. Author', 'computing', ?, ?)
	`, id, copies, copies)
	require.NoError(t, err)
	return id
}

func TestCreateLoanDueDates(t *testing.T) {
	db := newTestDB(t)
	ledger := newTestLedger(t, db)
	bookID := insertBook(t, db, 3)
	ctx := context.Background()

	student, err := ledger.CreateLoan(ctx, CreateInput{
		BookID:        bookID,
		BorrowerName:  "Ravi Kumar",
		BorrowerRole:  models.RoleStudent,
		BorrowerGroup: "10-A",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LoanOutstanding, student.Status)
	assert.Equal(t, day(0), student.BorrowDate.UTC())
	assert.Equal(t, day(5), student.DueDate.UTC())
	assert.Equal(t, "10-A", student.BorrowerGroup)

	teacher, err := ledger.CreateLoan(ctx, CreateInput{
		BookID:        bookID,
		BorrowerName:  "Meera Nair",
		BorrowerRole:  models.RoleTeacher,
		BorrowerGroup: "Physics",
	})
	require.NoError(t, err)
	assert.Equal(t, day(20), teacher.DueDate.UTC())
}

func TestCreateLoanValidation(t *testing.T) {
	db := newTestDB(t)
	ledger := newTestLedger(t, db)
	bookID := insertBook(t, db, 1)

	tests := []struct {
		name    string
		in      CreateInput
		wantErr error
	}{
		{
			name:    "empty borrower name",
			in:      CreateInput{BookID: bookID, BorrowerName: "  ", BorrowerRole: models.RoleStudent},
			wantErr: ErrValidation,
		},
		{
			name:    "unknown role",
			in:      CreateInput{BookID: bookID, BorrowerName: "Ravi", BorrowerRole: "principal"},
			wantErr: ErrValidation,
		},
		{
			name:    "librarian cannot be a borrower",
			in:      CreateInput{BookID: bookID, BorrowerName: "Ravi", BorrowerRole: models.RoleLibrarian},
			wantErr: ErrValidation,
		},
		{
			name:    "borrow date in the past",
			in:      CreateInput{BookID: bookID, BorrowerName: "Ravi", BorrowerRole: models.RoleStudent, BorrowDate: day(-1)},
			wantErr: ErrValidation,
		},
		{
			name:    "unknown book",
			in:      CreateInput{BookID: "nope", BorrowerName: "Ravi", BorrowerRole: models.RoleStudent},
			wantErr: ErrBookNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.CreateLoan(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateLoanFutureBorrowDate(t *testing.T) {
	db := newTestDB(t)
	ledger := newTestLedger(t, db)
	bookID := insertBook(t, db, 1)

	loan, err := ledger.CreateLoan(context.Background(), CreateInput{
		BookID:       bookID,
		BorrowerName: "Ravi",
		BorrowerRole: models.RoleStudent,
		BorrowDate:   day(3),
	})
	require.NoError(t, err)
	assert.Equal(t, day(3), loan.BorrowDate.UTC())
	assert.Equal(t, day(8), loan.DueDate.UTC())
}

func TestReturnLoanComputesFine(t *testing.T) {
	db := newTestDB(t)
	ledger := newTestLedger(t, db)
	bookID := insertBook(t, db, 1)
	ctx := context.Background()

	loan, err := ledger.CreateLoan(ctx, CreateInput{
		BookID:       bookID,
		BorrowerName: "Ravi",
		BorrowerRole: models.RoleStudent,
	})
	require.NoError(t, err)

	returned, err := ledger.ReturnLoan(ctx, loan.ID, false, day(7))
	require.NoError(t, err)
	assert.Equal(t, models.LoanReturned, returned.Status)
	assert.Equal(t, 20, returned.FineAmount)
	assert.False(t, returned.FinePaid)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, day(7), returned.ReturnDate.UTC())
}

func TestReturnOnDueDateIsFree(t *testing.T) {
	db := newTestDB(t)
	ledger := newTestLedger(t, db)
	bookID := insertBook(t, db, 1)
	ctx := context.Background()

	loan, err := ledger.CreateLoan(ctx, CreateInput{
		BookID:       bookID,
		BorrowerName: "Ravi",
		BorrowerRole: models.RoleStudent,
	})
	require.NoError(t, err)

	returned, err := ledger.ReturnLoan(ctx, loan.ID, true, day(5))
	require.NoError(t, err)
	assert.Zero(t, returned.FineAmount)
	assert.True(t, returned.FinePaid)
}

func TestReturnLoanIdempotencyGuard(t *testing.T) {
	db := newTestDB(t)
	ledger := newTestLedger(t, db)
	bookID := insertBook(t, db, 1)
	ctx := context.Background()

	loan, err := ledger.CreateLoan(ctx, CreateInput{
		BookID:       bookID,
		BorrowerName: "Ravi",
		BorrowerRole: models.RoleStudent,
	})
	require.NoError(t, err)

	first, err := ledger.ReturnLoan(ctx, loan.ID, false, day(7))
	require.NoError(t, err)

	_, err = ledger.ReturnLoan(ctx, loan.ID, true, day(9))
	assert.ErrorIs(t, err, ErrAlreadyReturned)

	// the first return's record is untouched by the failed second attempt
	after, err := ledger.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, first.FineAmount, after.FineAmount)
	assert.Equal(t, first.FinePaid, after.FinePaid)
	require.NotNil(t, after.ReturnDate)
	assert.Equal(t, day(7), after.ReturnDate.UTC())
}

func TestReturnLoanConcurrentDoubleReturn(t *testing.T) {
	db := newTestDB(t)
	ledger := newTestLedger(t, db)
	bookID := insertBook(t, db, 1)
	ctx := context.Background()

	loan, err := ledger.CreateLoan(ctx, CreateInput{
		BookID:       bookID,
		BorrowerName: "Ravi",
		BorrowerRole: models.RoleStudent,
	})
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.ReturnLoan(ctx, loan.ID, false, day(6))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyReturned)
		}
	}
	assert.Equal(t, 1, successes, "exactly one return must win")
}

func TestReturnUnknownLoan(t *testing.T) {
	db := newTestDB(t)
	ledger := newTestLedger(t, db)

	_, err := ledger.ReturnLoan(context.Background(), "missing", false, day(1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListProjections(t *testing.T) {
	db := newTestDB(t)
	ledger := newTestLedger(t, db)
	bookA := insertBook(t, db, 2)
	bookB := insertBook(t, db, 2)
	ctx := context.Background()

	loanA, err := ledger.CreateLoan(ctx, CreateInput{BookID: bookA, BorrowerName: "Ravi", BorrowerRole: models.RoleStudent})
	require.NoError(t, err)
	_, err = ledger.CreateLoan(ctx, CreateInput{BookID: bookB, BorrowerName: "Meera", BorrowerRole: models.RoleTeacher})
	require.NoError(t, err)

	outstanding, err := ledger.ListOutstanding(ctx, "")
	require.NoError(t, err)
	assert.Len(t, outstanding, 2)

	onlyA, err := ledger.ListOutstanding(ctx, bookA)
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, loanA.ID, onlyA[0].ID)

	_, err = ledger.ReturnLoan(ctx, loanA.ID, true, day(2))
	require.NoError(t, err)

	outstanding, err = ledger.ListOutstanding(ctx, "")
	require.NoError(t, err)
	assert.Len(t, outstanding, 1)

	returned, err := ledger.ListReturned(ctx, "")
	require.NoError(t, err)
	require.Len(t, returned, 1)
	assert.Equal(t, loanA.ID, returned[0].ID)
}
