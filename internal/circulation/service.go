package circulation

import (
	"context"
	"fmt"
	"log"
	"time"

	"schoollib/internal/catalog"
	"schoollib/internal/loans"
	"schoollib/pkg/models"
)

// Service is the only entry point for borrowing and returning. It keeps
// the catalog's copy counts and the loan ledger in step: every
// outstanding loan corresponds to exactly one reserved copy.
type Service struct {
	Catalog *catalog.Repo
	Ledger  *loans.Ledger
}

func NewService(cat *catalog.Repo, ledger *loans.Ledger) *Service {
	return &Service{Catalog: cat, Ledger: ledger}
}

type BorrowRequest struct {
	BookID        string
	BorrowerName  string
	BorrowerRole  string
	BorrowerGroup string
	BorrowDate    time.Time // zero value means today
}

// Borrow reserves a copy, then writes the loan. If the loan write fails
// after the copy was reserved, the reservation is compensated by a
// release so no copy is ever stranded. A failed compensation is a real
// inconsistency; it is logged loudly and wrapped into the returned error
// for manual reconciliation.
func (s *Service) Borrow(ctx context.Context, req BorrowRequest) (*models.Loan, error) {
	if err := s.Catalog.ReserveCopy(ctx, req.BookID); err != nil {
		return nil, err
	}

	loan, err := s.Ledger.CreateLoan(ctx, loans.CreateInput{
		BookID:        req.BookID,
		BorrowerName:  req.BorrowerName,
		BorrowerRole:  req.BorrowerRole,
		BorrowerGroup: req.BorrowerGroup,
		BorrowDate:    req.BorrowDate,
	})
	if err != nil {
		if relErr := s.Catalog.ReleaseCopy(ctx, req.BookID); relErr != nil {
			log.Printf("[circulation] COMPENSATION FAILED: reserved copy of book %s not released after loan error (%v): %v",
				req.BookID, err, relErr)
			return nil, fmt.Errorf("loan failed and copy release failed for book %s: %w (release: %v)",
				req.BookID, err, relErr)
		}
		return nil, err
	}

	return loan, nil
}

// Return closes the loan, then releases the copy back to the catalog.
// The ledger goes first: if the loan is unknown or already returned,
// availability must not move.
func (s *Service) Return(ctx context.Context, loanID string, finePaid bool, returnedAt time.Time) (*models.Loan, error) {
	loan, err := s.Ledger.ReturnLoan(ctx, loanID, finePaid, returnedAt)
	if err != nil {
		return nil, err
	}

	if err := s.Catalog.ReleaseCopy(ctx, loan.BookID); err != nil {
		// The loan is closed but the copy was not released. Surface it;
		// the loan record itself is correct.
		log.Printf("[circulation] release after return failed: loan %s book %s: %v", loan.ID, loan.BookID, err)
		return loan, fmt.Errorf("loan %s returned but copy release failed for book %s: %w", loan.ID, loan.BookID, err)
	}

	return loan, nil
}
