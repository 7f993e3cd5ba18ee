package models

import "time"

// Borrower roles. Librarian is an operator role; it never appears on a loan.
const (
	RoleStudent   = "student"
	RoleTeacher   = "teacher"
	RoleLibrarian = "librarian"
)

// Loan states. A loan starts outstanding and is returned at most once;
// there are no other transitions.
const (
	LoanOutstanding = "outstanding"
	LoanReturned    = "returned"
)

type Loan struct {
	ID            string     `json:"id"`
	BookID        string     `json:"book_id"`
	BorrowerName  string     `json:"borrower_name"`
	BorrowerRole  string     `json:"borrower_role"`
	BorrowerGroup string     `json:"borrower_group"` // class-section for students, department for teachers
	BorrowDate    time.Time  `json:"borrow_date"`
	DueDate       time.Time  `json:"due_date"`
	Status        string     `json:"status"`
	ReturnDate    *time.Time `json:"return_date,omitempty"`
	FineAmount    int        `json:"fine_amount"`
	FinePaid      bool       `json:"fine_paid"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Overdue reports whether the loan is past due as of now.
// Returned loans are never overdue.
func (l Loan) Overdue(now time.Time) bool {
	return l.Status == LoanOutstanding && now.After(l.DueDate)
}
