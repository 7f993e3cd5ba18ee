package loans

import (
	"time"

	"schoollib/pkg/models"
	"schoollib/pkg/utils"
)

// Fine computes the late fee for a loan returned at returnedAt against
// dueDate. Pure: same inputs, same fee, no clock, no state.
//
// A return on the due date itself costs nothing; every started day after
// it costs policy.FinePerDay.
func Fine(policy utils.LoanPolicy, dueDate, returnedAt time.Time) int {
	late := returnedAt.Sub(dueDate)
	if late <= 0 {
		return 0
	}

	daysLate := int(late / (24 * time.Hour))
	if late%(24*time.Hour) > 0 {
		daysLate++ // partial days count in full
	}
	return daysLate * policy.FinePerDay
}

// LoanDays is the role-dependent grace period in days.
func LoanDays(policy utils.LoanPolicy, role string) int {
	if role == models.RoleTeacher {
		return policy.TeacherLoanDays
	}
	return policy.StudentLoanDays
}
