package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"schoollib/internal/loans"
	"schoollib/pkg/database"
	"schoollib/pkg/utils"
)

// Prints outstanding loans with the fine each would accrue if returned
// today. Intended for the librarian desk at end of day.
func main() {
	var (
		bookID      = flag.String("book", "", "limit report to one book id")
		overdueOnly = flag.Bool("overdue-only", false, "show only loans past their due date")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := database.MustOpen(database.DefaultConfig())
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	policy := utils.LoadLoanPolicy()
	ledger := loans.NewLedger(db, policy)

	items, err := ledger.ListOutstanding(ctx, *bookID)
	if err != nil {
		log.Fatalf("list outstanding failed: %v", err)
	}

	today := loans.DateOnly(time.Now())
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LOAN\tBOOK\tBORROWER\tROLE\tGROUP\tDUE\tDAYS LATE\tFINE DUE")

	shown := 0
	for _, loan := range items {
		fine := loans.Fine(policy, loan.DueDate, today)
		if *overdueOnly && !loan.Overdue(today) {
			continue
		}
		daysLate := 0
		if fine > 0 {
			daysLate = fine / policy.FinePerDay
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			loan.ID, loan.BookID, loan.BorrowerName, loan.BorrowerRole, loan.BorrowerGroup,
			loan.DueDate.Format("2006-01-02"), daysLate, fine)
		shown++
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("write report: %v", err)
	}

	log.Printf("%d outstanding loans reported", shown)
}
