package budget

import (
	"context"
	"fmt"
	"strings"

	appErrors "github.com/fatali-fataliyev/expense_tracker/customErrors"
	"github.com/fatali-fataliyev/expense_tracker/internal/auth"
	"github.com/fatali-fataliyev/expense_tracker/logging"
)

type BudgetTracker struct {
	storage     Storage
	tokens      *auth.TokenManager
	cache       *ExpenseCache
	notifier    ChangeNotifier
	StorageType string
}

type Option func(bt *BudgetTracker)

// WithCache enables the read-through expense cache.
func WithCache(c *ExpenseCache) Option {
	return func(bt *BudgetTracker) {
		bt.cache = c
	}
}

// WithNotifier publishes every expense write so peers can invalidate.
func WithNotifier(n ChangeNotifier) Option {
	return func(bt *BudgetTracker) {
		bt.notifier = n
	}
}

func NewBudgetTracker(s Storage, tokens *auth.TokenManager, opts ...Option) BudgetTracker {
	bt := BudgetTracker{
		storage:     s,
		tokens:      tokens,
		StorageType: s.GetStorageType(),
	}
	for _, opt := range opts {
		opt(&bt)
	}
	return bt
}

type Storage interface {
	SeedRoles(ctx context.Context, roles []auth.Role) error
	GetRoleByName(ctx context.Context, role auth.Role) (auth.Role, error)
	SaveUser(ctx context.Context, newUser auth.User) (auth.User, error)
	IsUserExists(ctx context.Context, username string) (bool, error)
	IsEmailExists(ctx context.Context, email string) (bool, error)
	GetUserByUsername(ctx context.Context, username string) (auth.User, error)
	GetUserByEmail(ctx context.Context, email string) (auth.User, error)
	GetUserById(ctx context.Context, userId int64) (auth.User, error)
	SaveExpense(ctx context.Context, expense Expense) (Expense, error)
	GetExpenseById(ctx context.Context, userId int64, expenseId int64) (Expense, error)
	GetFilteredExpenses(ctx context.Context, userId int64, filters ExpenseList) ([]Expense, error)
	UpdateExpense(ctx context.Context, expense Expense) (Expense, error)
	DeleteExpense(ctx context.Context, userId int64, expenseId int64) error
	Ping(ctx context.Context) error
	GetStorageType() string
}

type ChangeNotifier interface {
	NotifyExpenseChanged(ctx context.Context, change ExpenseChange) error
}

// SeedRoles makes sure every role of the closed role set has a row. Safe to
// run on every start.
func (bt *BudgetTracker) SeedRoles(ctx context.Context) error {
	if err := bt.storage.SeedRoles(ctx, auth.AllRoles); err != nil {
		return fmt.Errorf("failed to seed roles: %w", err)
	}
	return nil
}

func (bt *BudgetTracker) SaveUser(ctx context.Context, newUser auth.NewUser) (auth.User, error) {
	if err := newUser.ValidateUserFields(); err != nil {
		return auth.User{}, err
	}

	isUserExists, err := bt.storage.IsUserExists(ctx, newUser.UserName)
	if err != nil {
		return auth.User{}, fmt.Errorf("failed to check username availability: %w", err)
	}
	if isUserExists {
		logging.WithTrace(ctx).Warnf("registration failed: username %s is already taken", newUser.UserName)
		return auth.User{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrUsernameTaken,
			Message: "Error: Username is already taken!",
		}
	}

	email := auth.NormalizeEmail(newUser.Email)
	isEmailTaken, err := bt.storage.IsEmailExists(ctx, email)
	if err != nil {
		return auth.User{}, fmt.Errorf("failed to check email availability: %w", err)
	}
	if isEmailTaken {
		logging.WithTrace(ctx).Warnf("registration failed: email %s is already in use", email)
		return auth.User{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrEmailTaken,
			Message: "Error: Email is already in use!",
		}
	}

	roles, err := bt.resolveRoles(ctx, newUser.Roles)
	if err != nil {
		return auth.User{}, err
	}

	hashedPassword, err := auth.HashPassword(newUser.PasswordPlain)
	if err != nil {
		return auth.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := auth.User{
		UserName:       newUser.UserName,
		Email:          email,
		PasswordHashed: hashedPassword,
		Roles:          roles,
	}

	saved, err := bt.storage.SaveUser(ctx, user)
	if err != nil {
		return auth.User{}, fmt.Errorf("failed to registration: %w", err)
	}

	logging.WithTrace(ctx).Infof("user %s registered successfully with id %d", saved.UserName, saved.ID)
	return saved, nil
}

func (bt *BudgetTracker) resolveRoles(ctx context.Context, requested []string) ([]auth.Role, error) {
	if len(requested) == 0 {
		requested = []string{auth.RoleUser.String()}
	}

	seen := make(map[auth.Role]bool, len(requested))
	roles := make([]auth.Role, 0, len(requested))
	for _, name := range requested {
		role, err := auth.ParseRole(name)
		if err != nil {
			return nil, err
		}

		stored, err := bt.storage.GetRoleByName(ctx, role)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve role %s: %w", role, err)
		}
		if seen[stored] {
			continue
		}
		seen[stored] = true
		roles = append(roles, stored)
	}
	return roles, nil
}

// SignIn resolves the identifier (email first when it looks like one, then
// username), checks the password and issues a token.
func (bt *BudgetTracker) SignIn(ctx context.Context, credentials auth.UserCredentialsPure) (auth.User, string, error) {
	if err := credentials.Validate(); err != nil {
		return auth.User{}, "", err
	}

	user, err := bt.findUserByIdentifier(ctx, strings.TrimSpace(credentials.Identifier))
	if err != nil {
		return auth.User{}, "", err
	}

	if !auth.ComparePasswords(user.PasswordHashed, credentials.PasswordPlain) {
		logging.WithTrace(ctx).Warnf("sign in failed for user id %d: bad credentials", user.ID)
		return auth.User{}, "", appErrors.ErrorResponse{
			Code:    appErrors.ErrBadCredentials,
			Message: "Invalid username or password",
		}
	}

	token, err := bt.tokens.Issue(user)
	if err != nil {
		return auth.User{}, "", fmt.Errorf("failed to generate token: %w", err)
	}

	logging.WithTrace(ctx).Infof("user %s authenticated successfully", user.UserName)
	return user, token, nil
}

func (bt *BudgetTracker) findUserByIdentifier(ctx context.Context, identifier string) (auth.User, error) {
	if auth.IsEmail(identifier) {
		user, err := bt.storage.GetUserByEmail(ctx, auth.NormalizeEmail(identifier))
		if err == nil {
			return user, nil
		}
		if !appErrors.Is(err, appErrors.ErrUserNotFound) {
			return auth.User{}, fmt.Errorf("failed to find user by email: %w", err)
		}
	}

	user, err := bt.storage.GetUserByUsername(ctx, identifier)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrUserNotFound) {
			return auth.User{}, appErrors.ErrorResponse{
				Code:    appErrors.ErrUserNotFound,
				Message: "User Not Found with username or email: " + identifier,
			}
		}
		return auth.User{}, fmt.Errorf("failed to find user by username: %w", err)
	}
	return user, nil
}

// ResolvePrincipal validates the bearer token and loads the user it names.
func (bt *BudgetTracker) ResolvePrincipal(ctx context.Context, token string) (auth.User, error) {
	userId, err := bt.tokens.Validate(token)
	if err != nil {
		return auth.User{}, err
	}

	user, err := bt.storage.GetUserById(ctx, userId)
	if err != nil {
		return auth.User{}, fmt.Errorf("failed to resolve token subject: %w", err)
	}
	return user, nil
}

func (bt *BudgetTracker) Ping(ctx context.Context) error {
	return bt.storage.Ping(ctx)
}
