package storage

import (
	"context"
	"sort"
	"sync"

	appErrors "github.com/fatali-fataliyev/expense_tracker/customErrors"
	"github.com/fatali-fataliyev/expense_tracker/internal/auth"
	"github.com/fatali-fataliyev/expense_tracker/internal/budget"
)

// InMemoryStorage keeps everything in process memory. Used by tests and by
// STORAGE_TYPE=inmemory for throwaway runs.
type InMemoryStorage struct {
	mu            sync.RWMutex
	roles         map[auth.Role]bool
	users         []auth.User
	expenses      []budget.Expense
	nextUserID    int64
	nextExpenseID int64
}

var _ budget.Storage = (*InMemoryStorage)(nil)

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		roles:         make(map[auth.Role]bool),
		nextUserID:    1,
		nextExpenseID: 1,
	}
}

func (inMem *InMemoryStorage) GetStorageType() string {
	return "inmemory"
}

func (inMem *InMemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (inMem *InMemoryStorage) SeedRoles(ctx context.Context, roles []auth.Role) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, role := range roles {
		inMem.roles[role] = true
	}
	return nil
}

func (inMem *InMemoryStorage) GetRoleByName(ctx context.Context, role auth.Role) (auth.Role, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	if !inMem.roles[role] {
		return "", roleNotFound(role)
	}
	return role, nil
}

func (inMem *InMemoryStorage) SaveUser(ctx context.Context, newUser auth.User) (auth.User, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, user := range inMem.users {
		if user.UserName == newUser.UserName {
			return auth.User{}, usernameTaken()
		}
		if user.Email == newUser.Email {
			return auth.User{}, emailTaken()
		}
	}
	for _, role := range newUser.Roles {
		if !inMem.roles[role] {
			return auth.User{}, roleNotFound(role)
		}
	}

	newUser.ID = inMem.nextUserID
	newUser.Roles = append([]auth.Role(nil), newUser.Roles...)
	inMem.nextUserID++
	inMem.users = append(inMem.users, newUser)
	return newUser, nil
}

func (inMem *InMemoryStorage) IsUserExists(ctx context.Context, username string) (bool, error) {
	_, err := inMem.findUser(func(u auth.User) bool { return u.UserName == username })
	return err == nil, nil
}

func (inMem *InMemoryStorage) IsEmailExists(ctx context.Context, email string) (bool, error) {
	_, err := inMem.findUser(func(u auth.User) bool { return u.Email == email })
	return err == nil, nil
}

func (inMem *InMemoryStorage) GetUserByUsername(ctx context.Context, username string) (auth.User, error) {
	return inMem.findUser(func(u auth.User) bool { return u.UserName == username })
}

func (inMem *InMemoryStorage) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	return inMem.findUser(func(u auth.User) bool { return u.Email == email })
}

func (inMem *InMemoryStorage) GetUserById(ctx context.Context, userId int64) (auth.User, error) {
	return inMem.findUser(func(u auth.User) bool { return u.ID == userId })
}

func (inMem *InMemoryStorage) findUser(match func(auth.User) bool) (auth.User, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	for _, user := range inMem.users {
		if match(user) {
			user.Roles = append([]auth.Role(nil), user.Roles...)
			return user, nil
		}
	}
	return auth.User{}, userNotFound()
}

func (inMem *InMemoryStorage) SaveExpense(ctx context.Context, expense budget.Expense) (budget.Expense, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	expense.ID = inMem.nextExpenseID
	inMem.nextExpenseID++
	inMem.expenses = append(inMem.expenses, expense)
	return expense, nil
}

func (inMem *InMemoryStorage) GetExpenseById(ctx context.Context, userId int64, expenseId int64) (budget.Expense, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	for _, expense := range inMem.expenses {
		if expense.ID == expenseId && expense.UserID == userId {
			return expense, nil
		}
	}
	return budget.Expense{}, expenseNotFound()
}

func (inMem *InMemoryStorage) GetFilteredExpenses(ctx context.Context, userId int64, filters budget.ExpenseList) ([]budget.Expense, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	result := []budget.Expense{}
	for _, expense := range inMem.expenses {
		if expense.UserID != userId || !matchesDateFilter(expense, filters) {
			continue
		}
		result = append(result, expense)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func matchesDateFilter(expense budget.Expense, filters budget.ExpenseList) bool {
	switch {
	case filters.StartDate != nil && filters.EndDate != nil:
		return !expense.Date.Before(*filters.StartDate) && !expense.Date.After(*filters.EndDate)
	case filters.StartDate != nil:
		return expense.Date.After(*filters.StartDate)
	case filters.EndDate != nil:
		return expense.Date.Before(*filters.EndDate)
	default:
		return true
	}
}

func (inMem *InMemoryStorage) UpdateExpense(ctx context.Context, expense budget.Expense) (budget.Expense, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for i, existing := range inMem.expenses {
		if existing.ID == expense.ID && existing.UserID == expense.UserID {
			inMem.expenses[i].Description = expense.Description
			inMem.expenses[i].Amount = expense.Amount
			inMem.expenses[i].Date = expense.Date
			inMem.expenses[i].Category = expense.Category
			return inMem.expenses[i], nil
		}
	}
	return budget.Expense{}, expenseNotFound()
}

func (inMem *InMemoryStorage) DeleteExpense(ctx context.Context, userId int64, expenseId int64) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for i, expense := range inMem.expenses {
		if expense.ID == expenseId && expense.UserID == userId {
			inMem.expenses = append(inMem.expenses[:i], inMem.expenses[i+1:]...)
			return nil
		}
	}
	return expenseNotFound()
}

func usernameTaken() error {
	return appErrors.ErrorResponse{
		Code:    appErrors.ErrUsernameTaken,
		Message: "Error: Username is already taken!",
	}
}

func emailTaken() error {
	return appErrors.ErrorResponse{
		Code:    appErrors.ErrEmailTaken,
		Message: "Error: Email is already in use!",
	}
}

func roleNotFound(role auth.Role) error {
	return appErrors.ErrorResponse{
		Code:    appErrors.ErrRoleNotFound,
		Message: "Error: Role '" + role.String() + "' is not found.",
	}
}

func userNotFound() error {
	return appErrors.ErrorResponse{
		Code:    appErrors.ErrUserNotFound,
		Message: "User not found.",
	}
}

func expenseNotFound() error {
	return appErrors.ErrorResponse{
		Code:    appErrors.ErrExpenseNotFound,
		Message: "Expense not found.",
	}
}
