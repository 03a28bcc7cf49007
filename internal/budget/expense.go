package budget

import (
	"context"
	"fmt"
	"math"
	"strings"

	appErrors "github.com/fatali-fataliyev/expense_tracker/customErrors"
	"github.com/fatali-fataliyev/expense_tracker/internal/auth"
	"github.com/fatali-fataliyev/expense_tracker/logging"
)

const (
	MAX_EXPENSE_AMOUNT_LIMIT       = 9999999999999.99
	MAX_EXPENSE_DESCRIPTION_LENGTH = 255
	MAX_EXPENSE_CATEGORY_LENGTH    = 255
)

func (req ExpenseRequest) Validate() error {
	if strings.TrimSpace(req.Description) == "" {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Expense description cannot be empty.",
		}
	}
	if len(req.Description) > MAX_EXPENSE_DESCRIPTION_LENGTH {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Expense description so long, maximum allowed length is: %d", MAX_EXPENSE_DESCRIPTION_LENGTH),
		}
	}
	if len(req.Category) > MAX_EXPENSE_CATEGORY_LENGTH {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Expense category so long, maximum allowed length is: %d", MAX_EXPENSE_CATEGORY_LENGTH),
		}
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || math.Abs(req.Amount) > MAX_EXPENSE_AMOUNT_LIMIT {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Expense amount is out of range, maximum allowed amount is: %.2f", MAX_EXPENSE_AMOUNT_LIMIT),
		}
	}
	if req.Date.IsZero() {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Expense date is required, expected format: YYYY-MM-DD",
		}
	}
	return nil
}

func (filters ExpenseList) Validate() error {
	if filters.StartDate != nil && filters.EndDate != nil && filters.StartDate.After(*filters.EndDate) {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "startDate cannot be after endDate",
		}
	}
	return nil
}

// GetFilteredExpenses lists the caller's expenses ordered by id. Both bounds
// are inclusive when given together; a single bound is exclusive.
func (bt *BudgetTracker) GetFilteredExpenses(ctx context.Context, caller auth.User, filters ExpenseList) ([]Expense, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	filters = normalizeFilters(filters)

	load := func(ctx context.Context) ([]Expense, error) {
		expenses, err := bt.storage.GetFilteredExpenses(ctx, caller.ID, filters)
		if err != nil {
			return nil, fmt.Errorf("failed to get expenses: %w", err)
		}
		logging.WithTrace(ctx).Debugf("found %d expenses for user %d", len(expenses), caller.ID)
		return expenses, nil
	}

	if bt.cache == nil {
		return load(ctx)
	}
	return bt.cache.List(ctx, caller.ID, filters, load)
}

func (bt *BudgetTracker) GetExpenseById(ctx context.Context, caller auth.User, expenseId int64) (Expense, error) {
	load := func(ctx context.Context) (Expense, error) {
		expense, err := bt.storage.GetExpenseById(ctx, caller.ID, expenseId)
		if err != nil {
			return Expense{}, fmt.Errorf("failed to get expense by id: %w", err)
		}
		return expense, nil
	}

	if bt.cache == nil {
		return load(ctx)
	}
	return bt.cache.Item(ctx, caller.ID, expenseId, load)
}

// SaveExpense always records the caller as the owner.
func (bt *BudgetTracker) SaveExpense(ctx context.Context, caller auth.User, req ExpenseRequest) (Expense, error) {
	if err := req.Validate(); err != nil {
		return Expense{}, err
	}

	expense := Expense{
		Description: strings.TrimSpace(req.Description),
		Amount:      roundCents(req.Amount),
		Date:        TruncateDate(req.Date),
		Category:    strings.TrimSpace(req.Category),
		UserID:      caller.ID,
	}

	created, err := bt.storage.SaveExpense(ctx, expense)
	if err != nil {
		return Expense{}, fmt.Errorf("failed to save expense: %w", err)
	}

	logging.WithTrace(ctx).Infof("expense %d created for user %d", created.ID, caller.ID)
	bt.afterWrite(ctx, ExpenseChange{UserID: caller.ID, ExpenseID: created.ID, Action: ActionCreated}, &created)
	return created, nil
}

func (bt *BudgetTracker) UpdateExpense(ctx context.Context, caller auth.User, expenseId int64, req ExpenseRequest) (Expense, error) {
	if err := req.Validate(); err != nil {
		return Expense{}, err
	}

	expense := Expense{
		ID:          expenseId,
		Description: strings.TrimSpace(req.Description),
		Amount:      roundCents(req.Amount),
		Date:        TruncateDate(req.Date),
		Category:    strings.TrimSpace(req.Category),
		UserID:      caller.ID,
	}

	updated, err := bt.storage.UpdateExpense(ctx, expense)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrExpenseNotFound) {
			logging.WithTrace(ctx).Warnf("expense %d not found for user %d", expenseId, caller.ID)
		}
		return Expense{}, fmt.Errorf("failed to update expense: %w", err)
	}

	logging.WithTrace(ctx).Infof("expense %d updated for user %d", updated.ID, caller.ID)
	bt.afterWrite(ctx, ExpenseChange{UserID: caller.ID, ExpenseID: updated.ID, Action: ActionUpdated}, &updated)
	return updated, nil
}

func (bt *BudgetTracker) DeleteExpense(ctx context.Context, caller auth.User, expenseId int64) error {
	if err := bt.storage.DeleteExpense(ctx, caller.ID, expenseId); err != nil {
		if appErrors.Is(err, appErrors.ErrExpenseNotFound) {
			logging.WithTrace(ctx).Warnf("expense %d not found for user %d", expenseId, caller.ID)
		}
		return fmt.Errorf("failed to delete expense: %w", err)
	}

	logging.WithTrace(ctx).Infof("expense %d deleted for user %d", expenseId, caller.ID)
	bt.afterWrite(ctx, ExpenseChange{UserID: caller.ID, ExpenseID: expenseId, Action: ActionDeleted}, nil)
	return nil
}

// InvalidateExpense drops cached state touched by a write made elsewhere.
func (bt *BudgetTracker) InvalidateExpense(change ExpenseChange) {
	if bt.cache == nil {
		return
	}
	bt.cache.Invalidate(change.UserID, change.ExpenseID)
}

func (bt *BudgetTracker) afterWrite(ctx context.Context, change ExpenseChange, current *Expense) {
	if bt.cache != nil {
		if current != nil {
			bt.cache.Put(*current)
		} else {
			bt.cache.Invalidate(change.UserID, change.ExpenseID)
		}
	}

	if bt.notifier == nil {
		return
	}
	if err := bt.notifier.NotifyExpenseChanged(ctx, change); err != nil {
		// Peers fall back to TTL expiry.
		logging.WithTrace(ctx).Warnf("failed to publish expense change %s for expense %d: %v", change.Action, change.ExpenseID, err)
	}
}

func normalizeFilters(filters ExpenseList) ExpenseList {
	var normalized ExpenseList
	if filters.StartDate != nil {
		start := TruncateDate(*filters.StartDate)
		normalized.StartDate = &start
	}
	if filters.EndDate != nil {
		end := TruncateDate(*filters.EndDate)
		normalized.EndDate = &end
	}
	return normalized
}

// roundCents keeps amounts at the two decimals every store persists.
func roundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}
