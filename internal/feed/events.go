package feed

import "time"

const (
	EventLoanCreated  = "loan.created"
	EventLoanReturned = "loan.returned"
)

// WelcomeEvent is the first line every subscriber receives; it names the
// transport so mixed-transport dashboards can label their source.
type WelcomeEvent struct {
	Type      string    `json:"type"`
	Transport string    `json:"transport"`
	At        time.Time `json:"at"`
}

func NewWelcome(transport string) WelcomeEvent {
	return WelcomeEvent{Type: "welcome", Transport: transport, At: time.Now().UTC()}
}

// CirculationEvent is pushed to feed subscribers whenever circulation
// changes a book's availability, so admin screens can live-update.
type CirculationEvent struct {
	Type            string    `json:"type"`
	LoanID          string    `json:"loan_id,omitempty"`
	BookID          string    `json:"book_id"`
	BorrowerName    string    `json:"borrower_name,omitempty"`
	Status          string    `json:"status,omitempty"`
	FineAmount      int       `json:"fine_amount,omitempty"`
	AvailableCopies int       `json:"available_copies"`
	At              time.Time `json:"at"`
}
