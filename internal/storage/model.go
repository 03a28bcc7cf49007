package storage

import (
	"fmt"
	"time"

	"github.com/fatali-fataliyev/expense_tracker/internal/budget"
)

// dbDate scans a calendar date column. MySQL hands back time.Time (or raw
// bytes without parseTime), SQLite stores dates as TEXT.
type dbDate struct {
	time.Time
}

func (d *dbDate) Scan(value any) error {
	switch v := value.(type) {
	case time.Time:
		d.Time = budget.TruncateDate(v)
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	case nil:
		return fmt.Errorf("date column is NULL")
	default:
		return fmt.Errorf("unsupported date column type %T", value)
	}
}

func (d *dbDate) parse(raw string) error {
	if len(raw) > len(budget.DateLayout) {
		raw = raw[:len(budget.DateLayout)]
	}
	parsed, err := time.Parse(budget.DateLayout, raw)
	if err != nil {
		return fmt.Errorf("invalid date value %q: %w", raw, err)
	}
	d.Time = parsed
	return nil
}

func formatDate(t time.Time) string {
	return t.Format(budget.DateLayout)
}

type dbUser struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
}
