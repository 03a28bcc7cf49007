package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	appErrors "github.com/fatali-fataliyev/expense_tracker/customErrors"
	"github.com/fatali-fataliyev/expense_tracker/internal/auth"
	"github.com/fatali-fataliyev/expense_tracker/internal/budget"
	"github.com/fatali-fataliyev/expense_tracker/internal/config"
	"github.com/fatali-fataliyev/expense_tracker/internal/contextutil"
	"github.com/fatali-fataliyev/expense_tracker/logging"
)

const (
	pingAttempts = 15
	pingInterval = 3 * time.Second
)

// --- INIT START --- //

// InitMySQL waits for the server, creates the database when missing, applies
// migrations and returns the application handle.
func InitMySQL(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	dsnConfig, err := mysql.ParseDSN(cfg.MySQLDSN())
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	dsnConfig.ParseTime = true
	dbname := dsnConfig.DBName
	if dbname == "" {
		return nil, fmt.Errorf("mysql dsn has no database name")
	}

	adminConfig := dsnConfig.Clone()
	adminConfig.DBName = ""

	logging.Logger.Info("Connecting to MySQL server for initialization...")
	adminDb, err := sql.Open("mysql", adminConfig.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open admin mysql handle: %w", err)
	}
	defer adminDb.Close()

	if err := waitForDatabase(ctx, adminDb); err != nil {
		return nil, err
	}

	var dbnameExistence string
	checkDbnameExistQuery := "SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?"
	err = adminDb.QueryRowContext(ctx, checkDbnameExistQuery, dbname).Scan(&dbnameExistence)
	if errors.Is(err, sql.ErrNoRows) {
		logging.Logger.Infof("Database '%s' does not exist, creating...", dbname)
		createDbSql := fmt.Sprintf("CREATE DATABASE `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci;", dbname)
		if _, err := adminDb.ExecContext(ctx, createDbSql); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}

	migrationConfig := dsnConfig.Clone()
	migrationConfig.MultiStatements = true
	logging.Logger.Info("Running migrations...")
	if err := RunMigrations("mysql", migrationConfig.FormatDSN()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logging.Logger.Info("Connecting to database...")
	db, err := sql.Open("mysql", dsnConfig.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database handle: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logging.Logger.Info("Connected to database successfully")
	return db, nil
}

// InitSQLite opens (or creates) the database file at path and applies
// migrations.
func InitSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := sqliteDSN(path)

	logging.Logger.Info("Running migrations...")
	if err := RunMigrations("sqlite", dsn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows one writer, serialize through a single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	logging.Logger.Infof("Connected to sqlite database %s", path)
	return db, nil
}

func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func waitForDatabase(ctx context.Context, db *sql.DB) error {
	for i := 0; i < pingAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			return nil
		}
		logging.Logger.Warnf("Database not ready, retrying... (%d/%d)", i+1, pingAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pingInterval):
		}
	}
	return fmt.Errorf("database unreachable after multiple attempts")
}

// --- INIT END --- //

// SQLStorage implements budget.Storage on MySQL or SQLite. The queries are
// written in the subset both dialects accept.
type SQLStorage struct {
	db     *sql.DB
	driver string
}

var _ budget.Storage = (*SQLStorage)(nil)

func NewSQLStorage(db *sql.DB, driver string) *SQLStorage {
	return &SQLStorage{
		db:     db,
		driver: driver,
	}
}

func (s *SQLStorage) GetStorageType() string {
	return s.driver
}

func (s *SQLStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStorage) SeedRoles(ctx context.Context, roles []auth.Role) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	for _, role := range roles {
		var id int64
		err := s.db.QueryRowContext(ctx, "SELECT id FROM roles WHERE name = ?", role.String()).Scan(&id)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			logging.Logger.Errorf("[TraceID=%s] | failed to check role in Storage.SeedRoles() function | Error: %v", traceID, err)
			return fmt.Errorf("failed to check role %s: %w", role, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO roles (name) VALUES (?)", role.String()); err != nil {
			if _, ok := duplicateEntry(err); ok {
				// another instance seeded it first
				continue
			}
			logging.Logger.Errorf("[TraceID=%s] | failed to insert role in Storage.SeedRoles() function | Error: %v", traceID, err)
			return fmt.Errorf("failed to insert role %s: %w", role, err)
		}
		logging.Logger.Infof("role %s seeded", role)
	}
	return nil
}

func (s *SQLStorage) GetRoleByName(ctx context.Context, role auth.Role) (auth.Role, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	var name string
	err := s.db.QueryRowContext(ctx, "SELECT name FROM roles WHERE name = ?", role.String()).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", roleNotFound(role)
		}
		logging.Logger.Errorf("[TraceID=%s] | failed to get role in Storage.GetRoleByName() function | Error: %v", traceID, err)
		return "", internalError("Failed to load role, try again later.")
	}
	return auth.Role(name), nil
}

func (s *SQLStorage) SaveUser(ctx context.Context, newUser auth.User) (auth.User, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to begin transaction in Storage.SaveUser() function | Error: %v", traceID, err)
		return auth.User{}, internalError("Failed to save user, try again later.")
	}
	defer tx.Rollback()

	query := "INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)"
	result, err := tx.ExecContext(ctx, query, newUser.UserName, newUser.Email, newUser.PasswordHashed)
	if err != nil {
		if message, ok := duplicateEntry(err); ok {
			if isEmailKey(message) {
				return auth.User{}, emailTaken()
			}
			return auth.User{}, usernameTaken()
		}
		logging.Logger.Errorf("[TraceID=%s] | failed to save user Storage.SaveUser(), Error: %v", traceID, err)
		return auth.User{}, internalError("Failed to save user, try again later.")
	}

	userId, err := result.LastInsertId()
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to read user id in Storage.SaveUser() function | Error: %v", traceID, err)
		return auth.User{}, internalError("Failed to save user, try again later.")
	}

	for _, role := range newUser.Roles {
		res, err := tx.ExecContext(ctx, "INSERT INTO user_roles (user_id, role_id) SELECT ?, id FROM roles WHERE name = ?", userId, role.String())
		if err != nil {
			logging.Logger.Errorf("[TraceID=%s] | failed to link role %s in Storage.SaveUser() function | Error: %v", traceID, role, err)
			return auth.User{}, internalError("Failed to save user, try again later.")
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return auth.User{}, roleNotFound(role)
		}
	}

	if err := tx.Commit(); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to commit in Storage.SaveUser() function | Error: %v", traceID, err)
		return auth.User{}, internalError("Failed to save user, try again later.")
	}

	newUser.ID = userId
	return newUser, nil
}

func (s *SQLStorage) IsUserExists(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", username)
}

func (s *SQLStorage) IsEmailExists(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, "SELECT COUNT(*) FROM users WHERE email = ?", email)
}

func (s *SQLStorage) exists(ctx context.Context, query string, arg any) (bool, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	var count int
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&count); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to check existence in Storage.exists() function | Error: %v", traceID, err)
		return false, internalError("Failed to check user, try again later.")
	}
	return count > 0, nil
}

func (s *SQLStorage) GetUserByUsername(ctx context.Context, username string) (auth.User, error) {
	return s.getUser(ctx, "username = ?", username)
}

func (s *SQLStorage) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.getUser(ctx, "email = ?", email)
}

func (s *SQLStorage) GetUserById(ctx context.Context, userId int64) (auth.User, error) {
	return s.getUser(ctx, "id = ?", userId)
}

func (s *SQLStorage) getUser(ctx context.Context, where string, arg any) (auth.User, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	var row dbUser
	query := "SELECT id, username, email, password_hash FROM users WHERE " + where
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&row.ID, &row.Username, &row.Email, &row.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.User{}, userNotFound()
		}
		logging.Logger.Errorf("[TraceID=%s] | failed to get user in Storage.getUser() function | Error: %v", traceID, err)
		return auth.User{}, internalError("Failed to load user, try again later.")
	}

	roles, err := s.userRoles(ctx, row.ID)
	if err != nil {
		return auth.User{}, err
	}

	return auth.User{
		ID:             row.ID,
		UserName:       row.Username,
		Email:          row.Email,
		PasswordHashed: row.PasswordHash,
		Roles:          roles,
	}, nil
}

func (s *SQLStorage) userRoles(ctx context.Context, userId int64) ([]auth.Role, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "SELECT r.name FROM roles r JOIN user_roles ur ON ur.role_id = r.id WHERE ur.user_id = ? ORDER BY r.id"
	rows, err := s.db.QueryContext(ctx, query, userId)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to get roles in Storage.userRoles() function | Error: %v", traceID, err)
		return nil, internalError("Failed to load user roles, try again later.")
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			logging.Logger.Errorf("[TraceID=%s] | failed to scan role in Storage.userRoles() function | Error: %v", traceID, err)
			return nil, internalError("Failed to load user roles, try again later.")
		}
		roles = append(roles, auth.Role(name))
	}
	if err := rows.Err(); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to iterate roles in Storage.userRoles() function | Error: %v", traceID, err)
		return nil, internalError("Failed to load user roles, try again later.")
	}
	return roles, nil
}

func (s *SQLStorage) SaveExpense(ctx context.Context, expense budget.Expense) (budget.Expense, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "INSERT INTO expenses (description, amount, expense_date, category, user_id) VALUES (?, ?, ?, ?, ?)"
	result, err := s.db.ExecContext(ctx, query, expense.Description, expense.Amount, formatDate(expense.Date), expense.Category, expense.UserID)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to save expense in Storage.SaveExpense() function | Error: %v", traceID, err)
		return budget.Expense{}, internalError("Failed to save the expense, try again later.")
	}

	expense.ID, err = result.LastInsertId()
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to read expense id in Storage.SaveExpense() function | Error: %v", traceID, err)
		return budget.Expense{}, internalError("Failed to save the expense, try again later.")
	}
	return expense, nil
}

const expenseColumns = "id, description, amount, expense_date, category, user_id"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (budget.Expense, error) {
	var expense budget.Expense
	var date dbDate
	if err := row.Scan(&expense.ID, &expense.Description, &expense.Amount, &date, &expense.Category, &expense.UserID); err != nil {
		return budget.Expense{}, err
	}
	expense.Date = date.Time
	return expense, nil
}

func (s *SQLStorage) GetExpenseById(ctx context.Context, userId int64, expenseId int64) (budget.Expense, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "SELECT " + expenseColumns + " FROM expenses WHERE id = ? AND user_id = ?"
	expense, err := scanExpense(s.db.QueryRowContext(ctx, query, expenseId, userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return budget.Expense{}, expenseNotFound()
		}
		logging.Logger.Errorf("[TraceID=%s] | failed to get expense in Storage.GetExpenseById() function | Error: %v", traceID, err)
		return budget.Expense{}, internalError("Failed to get the expense, try again later.")
	}
	return expense, nil
}

func (s *SQLStorage) GetFilteredExpenses(ctx context.Context, userId int64, filters budget.ExpenseList) ([]budget.Expense, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "SELECT " + expenseColumns + " FROM expenses WHERE user_id = ?"
	args := []any{userId}

	switch {
	case filters.StartDate != nil && filters.EndDate != nil:
		query += " AND expense_date >= ? AND expense_date <= ?"
		args = append(args, formatDate(*filters.StartDate), formatDate(*filters.EndDate))
	case filters.StartDate != nil:
		query += " AND expense_date > ?"
		args = append(args, formatDate(*filters.StartDate))
	case filters.EndDate != nil:
		query += " AND expense_date < ?"
		args = append(args, formatDate(*filters.EndDate))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to get filtered expenses in Storage.GetFilteredExpenses() function | Error: %v", traceID, err)
		return nil, internalError("Failed to get expenses, try again later.")
	}
	defer rows.Close()

	expenses := []budget.Expense{}
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			logging.Logger.Errorf("[TraceID=%s] | failed to scan row in Storage.GetFilteredExpenses() function | Error : %v", traceID, err)
			return nil, internalError("Failed to get expenses, try again later.")
		}
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to iterate rows in Storage.GetFilteredExpenses() function | Error : %v", traceID, err)
		return nil, internalError("Failed to get expenses, try again later.")
	}
	return expenses, nil
}

func (s *SQLStorage) UpdateExpense(ctx context.Context, expense budget.Expense) (budget.Expense, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to begin transaction in Storage.UpdateExpense() function | Error: %v", traceID, err)
		return budget.Expense{}, internalError("Failed to update the expense, try again later.")
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM expenses WHERE id = ? AND user_id = ?", expense.ID, expense.UserID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return budget.Expense{}, expenseNotFound()
		}
		logging.Logger.Errorf("[TraceID=%s] | failed to check expense in Storage.UpdateExpense() function | Error: %v", traceID, err)
		return budget.Expense{}, internalError("Failed to update the expense, try again later.")
	}

	query := "UPDATE expenses SET description = ?, amount = ?, expense_date = ?, category = ? WHERE id = ? AND user_id = ?"
	_, err = tx.ExecContext(ctx, query, expense.Description, expense.Amount, formatDate(expense.Date), expense.Category, expense.ID, expense.UserID)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to update expense in Storage.UpdateExpense() function | Error: %v", traceID, err)
		return budget.Expense{}, internalError("Failed to update the expense, try again later.")
	}

	updated, err := scanExpense(tx.QueryRowContext(ctx, "SELECT "+expenseColumns+" FROM expenses WHERE id = ?", expense.ID))
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to reload expense in Storage.UpdateExpense() function | Error: %v", traceID, err)
		return budget.Expense{}, internalError("Failed to update the expense, try again later.")
	}

	if err := tx.Commit(); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to commit in Storage.UpdateExpense() function | Error: %v", traceID, err)
		return budget.Expense{}, internalError("Failed to update the expense, try again later.")
	}
	return updated, nil
}

func (s *SQLStorage) DeleteExpense(ctx context.Context, userId int64, expenseId int64) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	result, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ? AND user_id = ?", expenseId, userId)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to delete expense in Storage.DeleteExpense() function | Error: %v", traceID, err)
		return internalError("Failed to delete the expense, try again later.")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to check affected rows in Storage.DeleteExpense() function | Error: %v", traceID, err)
		return internalError("Failed to delete the expense, try again later.")
	}
	if affected == 0 {
		return expenseNotFound()
	}
	return nil
}

// duplicateEntry reports whether err is a unique-key violation and returns
// the driver message naming the offending key.
func duplicateEntry(err error) (string, bool) {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return mysqlErr.Message, true
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return sqliteErr.Error(), true
	}
	return "", false
}

func isEmailKey(message string) bool {
	return strings.Contains(message, "users.email") || strings.HasSuffix(message, "key 'email'")
}

func internalError(message string) error {
	return appErrors.ErrorResponse{
		Code:    appErrors.ErrInternal,
		Message: message,
	}
}
