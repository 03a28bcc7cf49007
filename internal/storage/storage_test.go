package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	appErrors "github.com/fatali-fataliyev/expense_tracker/customErrors"
	"github.com/fatali-fataliyev/expense_tracker/internal/auth"
	"github.com/fatali-fataliyev/expense_tracker/internal/budget"
)

// StorageTestSuite runs the same checks against every budget.Storage.
type StorageTestSuite struct {
	suite.Suite
	newStorage func(t *testing.T) budget.Storage
	store      budget.Storage
	ctx        context.Context
}

func (suite *StorageTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.store = suite.newStorage(suite.T())
	require.NoError(suite.T(), suite.store.SeedRoles(suite.ctx, auth.AllRoles))
}

func TestSQLiteStorage(t *testing.T) {
	suite.Run(t, &StorageTestSuite{
		newStorage: func(t *testing.T) budget.Storage {
			db, err := InitSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
			require.NoError(t, err, "failed to create test database")
			t.Cleanup(func() { db.Close() })
			return NewSQLStorage(db, "sqlite")
		},
	})
}

func TestInMemoryStorage(t *testing.T) {
	suite.Run(t, &StorageTestSuite{
		newStorage: func(t *testing.T) budget.Storage {
			return NewInMemoryStorage()
		},
	})
}

func date(s string) time.Time {
	d, err := time.Parse(budget.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func datePtr(s string) *time.Time {
	d := date(s)
	return &d
}

func (suite *StorageTestSuite) saveUser(username string, roles ...auth.Role) auth.User {
	if len(roles) == 0 {
		roles = []auth.Role{auth.RoleUser}
	}
	user, err := suite.store.SaveUser(suite.ctx, auth.User{
		UserName:       username,
		Email:          username + "@example.com",
		PasswordHashed: "hash-" + username,
		Roles:          roles,
	})
	require.NoError(suite.T(), err)
	return user
}

func (suite *StorageTestSuite) saveExpense(owner auth.User, description string, day string) budget.Expense {
	expense, err := suite.store.SaveExpense(suite.ctx, budget.Expense{
		Description: description,
		Amount:      12.5,
		Date:        date(day),
		Category:    "food",
		UserID:      owner.ID,
	})
	require.NoError(suite.T(), err)
	return expense
}

func (suite *StorageTestSuite) TestSeedRolesIsIdempotent() {
	require.NoError(suite.T(), suite.store.SeedRoles(suite.ctx, auth.AllRoles))

	for _, role := range auth.AllRoles {
		found, err := suite.store.GetRoleByName(suite.ctx, role)
		require.NoError(suite.T(), err)
		assert.Equal(suite.T(), role, found)
	}
}

func (suite *StorageTestSuite) TestGetRoleByNameMissing() {
	_, err := suite.store.GetRoleByName(suite.ctx, auth.Role("ROLE_GHOST"))
	require.Error(suite.T(), err)
	assert.Equal(suite.T(), appErrors.ErrRoleNotFound, appErrors.CodeOf(err))
}

func (suite *StorageTestSuite) TestSaveAndLoadUser() {
	saved := suite.saveUser("alice", auth.RoleUser, auth.RoleAdmin)
	assert.NotZero(suite.T(), saved.ID)

	byName, err := suite.store.GetUserByUsername(suite.ctx, "alice")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), saved.ID, byName.ID)
	assert.Equal(suite.T(), "alice@example.com", byName.Email)
	assert.Equal(suite.T(), "hash-alice", byName.PasswordHashed)
	assert.ElementsMatch(suite.T(), []auth.Role{auth.RoleUser, auth.RoleAdmin}, byName.Roles)

	byEmail, err := suite.store.GetUserByEmail(suite.ctx, "alice@example.com")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), saved.ID, byEmail.ID)

	byId, err := suite.store.GetUserById(suite.ctx, saved.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "alice", byId.UserName)
}

func (suite *StorageTestSuite) TestUserExistence() {
	suite.saveUser("bob")

	exists, err := suite.store.IsUserExists(suite.ctx, "bob")
	require.NoError(suite.T(), err)
	assert.True(suite.T(), exists)

	exists, err = suite.store.IsUserExists(suite.ctx, "nobody")
	require.NoError(suite.T(), err)
	assert.False(suite.T(), exists)

	exists, err = suite.store.IsEmailExists(suite.ctx, "bob@example.com")
	require.NoError(suite.T(), err)
	assert.True(suite.T(), exists)
}

func (suite *StorageTestSuite) TestSaveUserDuplicates() {
	suite.saveUser("carol")

	_, err := suite.store.SaveUser(suite.ctx, auth.User{
		UserName: "carol", Email: "other@example.com", PasswordHashed: "x", Roles: []auth.Role{auth.RoleUser},
	})
	assert.Equal(suite.T(), appErrors.ErrUsernameTaken, appErrors.CodeOf(err))

	_, err = suite.store.SaveUser(suite.ctx, auth.User{
		UserName: "carol2", Email: "carol@example.com", PasswordHashed: "x", Roles: []auth.Role{auth.RoleUser},
	})
	assert.Equal(suite.T(), appErrors.ErrEmailTaken, appErrors.CodeOf(err))
}

func (suite *StorageTestSuite) TestSaveUserUnknownRole() {
	_, err := suite.store.SaveUser(suite.ctx, auth.User{
		UserName: "dave", Email: "dave@example.com", PasswordHashed: "x", Roles: []auth.Role{"ROLE_GHOST"},
	})
	assert.Equal(suite.T(), appErrors.ErrRoleNotFound, appErrors.CodeOf(err))

	exists, err := suite.store.IsUserExists(suite.ctx, "dave")
	require.NoError(suite.T(), err)
	assert.False(suite.T(), exists, "failed user insert must not leave a row behind")
}

func (suite *StorageTestSuite) TestGetUserMissing() {
	_, err := suite.store.GetUserById(suite.ctx, 4242)
	assert.Equal(suite.T(), appErrors.ErrUserNotFound, appErrors.CodeOf(err))

	_, err = suite.store.GetUserByUsername(suite.ctx, "ghost")
	assert.Equal(suite.T(), appErrors.ErrUserNotFound, appErrors.CodeOf(err))
}

func (suite *StorageTestSuite) TestSaveAndGetExpense() {
	owner := suite.saveUser("erin")
	created := suite.saveExpense(owner, "Lunch", "2023-01-15")
	assert.NotZero(suite.T(), created.ID)

	found, err := suite.store.GetExpenseById(suite.ctx, owner.ID, created.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Lunch", found.Description)
	assert.InDelta(suite.T(), 12.5, found.Amount, 0.001)
	assert.True(suite.T(), date("2023-01-15").Equal(found.Date), "got %s", found.Date)
	assert.Equal(suite.T(), "food", found.Category)
	assert.Equal(suite.T(), owner.ID, found.UserID)
}

func (suite *StorageTestSuite) TestExpenseIsScopedToOwner() {
	owner := suite.saveUser("frank")
	other := suite.saveUser("grace")
	created := suite.saveExpense(owner, "Taxi", "2023-02-01")

	_, err := suite.store.GetExpenseById(suite.ctx, other.ID, created.ID)
	assert.Equal(suite.T(), appErrors.ErrExpenseNotFound, appErrors.CodeOf(err))

	_, err = suite.store.UpdateExpense(suite.ctx, budget.Expense{
		ID: created.ID, UserID: other.ID, Description: "Hijack", Amount: 1, Date: date("2023-02-01"),
	})
	assert.Equal(suite.T(), appErrors.ErrExpenseNotFound, appErrors.CodeOf(err))

	err = suite.store.DeleteExpense(suite.ctx, other.ID, created.ID)
	assert.Equal(suite.T(), appErrors.ErrExpenseNotFound, appErrors.CodeOf(err))

	list, err := suite.store.GetFilteredExpenses(suite.ctx, other.ID, budget.ExpenseList{})
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), list)
}

func (suite *StorageTestSuite) TestFilteredExpenses() {
	owner := suite.saveUser("heidi")
	suite.saveExpense(owner, "a", "2023-01-01")
	suite.saveExpense(owner, "b", "2023-01-15")
	suite.saveExpense(owner, "c", "2023-01-31")

	tests := []struct {
		name    string
		filters budget.ExpenseList
		want    []string
	}{
		{"no filter", budget.ExpenseList{}, []string{"a", "b", "c"}},
		{"both bounds inclusive", budget.ExpenseList{StartDate: datePtr("2023-01-01"), EndDate: datePtr("2023-01-15")}, []string{"a", "b"}},
		{"start only exclusive", budget.ExpenseList{StartDate: datePtr("2023-01-01")}, []string{"b", "c"}},
		{"end only exclusive", budget.ExpenseList{EndDate: datePtr("2023-01-31")}, []string{"a", "b"}},
		{"same day range", budget.ExpenseList{StartDate: datePtr("2023-01-15"), EndDate: datePtr("2023-01-15")}, []string{"b"}},
		{"empty range", budget.ExpenseList{StartDate: datePtr("2024-01-01"), EndDate: datePtr("2024-02-01")}, []string{}},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			list, err := suite.store.GetFilteredExpenses(suite.ctx, owner.ID, tt.filters)
			require.NoError(suite.T(), err)
			got := []string{}
			for _, e := range list {
				got = append(got, e.Description)
			}
			assert.Equal(suite.T(), tt.want, got)
		})
	}
}

func (suite *StorageTestSuite) TestUpdateExpense() {
	owner := suite.saveUser("ivan")
	created := suite.saveExpense(owner, "Coffee", "2023-03-01")

	updated, err := suite.store.UpdateExpense(suite.ctx, budget.Expense{
		ID:          created.ID,
		UserID:      owner.ID,
		Description: "Tea",
		Amount:      3.25,
		Date:        date("2023-03-02"),
		Category:    "drinks",
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), created.ID, updated.ID)
	assert.Equal(suite.T(), "Tea", updated.Description)
	assert.InDelta(suite.T(), 3.25, updated.Amount, 0.001)
	assert.True(suite.T(), date("2023-03-02").Equal(updated.Date))
	assert.Equal(suite.T(), "drinks", updated.Category)
	assert.Equal(suite.T(), owner.ID, updated.UserID)
}

func (suite *StorageTestSuite) TestDeleteExpense() {
	owner := suite.saveUser("judy")
	created := suite.saveExpense(owner, "Gym", "2023-04-01")

	require.NoError(suite.T(), suite.store.DeleteExpense(suite.ctx, owner.ID, created.ID))

	_, err := suite.store.GetExpenseById(suite.ctx, owner.ID, created.ID)
	assert.Equal(suite.T(), appErrors.ErrExpenseNotFound, appErrors.CodeOf(err))

	err = suite.store.DeleteExpense(suite.ctx, owner.ID, created.ID)
	assert.Equal(suite.T(), appErrors.ErrExpenseNotFound, appErrors.CodeOf(err))
}

func (suite *StorageTestSuite) TestUsernamesAreCaseSensitive() {
	suite.saveUser("john")

	exists, err := suite.store.IsUserExists(suite.ctx, "John")
	require.NoError(suite.T(), err)
	assert.False(suite.T(), exists)

	_, err = suite.store.GetUserByUsername(suite.ctx, "JOHN")
	assert.Equal(suite.T(), appErrors.ErrUserNotFound, appErrors.CodeOf(err))

	other := suite.saveUser("John")
	assert.Equal(suite.T(), "John", other.UserName)
}

func TestMySQLUsernameColumnIsBinary(t *testing.T) {
	up, err := migrationsFS.ReadFile("migrations/mysql/000001_create_tables.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "username VARCHAR(20) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin")
}

func TestInitSQLiteRerunsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rerun.db")

	db, err := InitSQLite(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = InitSQLite(context.Background(), path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM expenses").Scan(&count))
	assert.Zero(t, count)
}

func TestDbDateScan(t *testing.T) {
	want := date("2023-01-15")

	tests := []struct {
		name  string
		value any
	}{
		{"time", time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"string", "2023-01-15"},
		{"bytes", []byte("2023-01-15")},
		{"datetime string", "2023-01-15 00:00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d dbDate
			require.NoError(t, d.Scan(tt.value))
			assert.True(t, want.Equal(d.Time), "got %s", d.Time)
		})
	}

	var d dbDate
	assert.Error(t, d.Scan(nil))
	assert.Error(t, d.Scan("15/01/2023"))
	assert.Error(t, d.Scan(42))
}

func TestIsEmailKey(t *testing.T) {
	assert.True(t, isEmailKey("Duplicate entry 'a@b.co' for key 'users.email'"))
	assert.True(t, isEmailKey("Duplicate entry 'a@b.co' for key 'email'"))
	assert.True(t, isEmailKey("constraint failed: UNIQUE constraint failed: users.email (2067)"))
	assert.False(t, isEmailKey("Duplicate entry 'email' for key 'users.username'"))
}
