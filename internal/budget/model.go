package budget

import (
	"time"
)

const DateLayout = "2006-01-02"

// REQUESTS START:
type ExpenseRequest struct {
	Description string
	Amount      float64
	Date        time.Time
	Category    string
}

// ExpenseList filters a list query. Nil bounds are absent.
type ExpenseList struct {
	StartDate *time.Time
	EndDate   *time.Time
}

// REQUESTS END:

// MODELS:

type Expense struct {
	ID          int64
	Description string
	Amount      float64
	Date        time.Time
	Category    string
	UserID      int64
}

// ExpenseChange is what a write reports to other instances so they can drop
// their cached copies.
type ExpenseChange struct {
	UserID    int64
	ExpenseID int64
	Action    string
}

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// TruncateDate drops the time of day, keeping the calendar date in UTC.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
