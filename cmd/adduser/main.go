package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/fatali-fataliyev/expense_tracker/internal/auth"
	"github.com/fatali-fataliyev/expense_tracker/internal/budget"
	"github.com/fatali-fataliyev/expense_tracker/internal/config"
	"github.com/fatali-fataliyev/expense_tracker/internal/storage"
	"github.com/fatali-fataliyev/expense_tracker/logging"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	username := fs.String("user", "", "Username")
	email := fs.String("email", "", "Email")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	roles := fs.String("roles", "user", "Comma separated roles: user, mod, admin")
	storageType := fs.String("storage", config.StorageSQLite, "Storage type: sqlite or mysql")
	dbPath := fs.String("db", "expense_tracker.db", "Path to sqlite database file")
	dsn := fs.String("dsn", "", "MySQL DSN, e.g. user:pass@tcp(localhost:3306)/expense_tracker")

	if err := fs.Parse(args); err != nil {
		return err
	}

	var missing []string
	if *username == "" {
		missing = append(missing, "user")
	}
	if *email == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		fmt.Fprintln(stdout, "Usage: adduser -user <username> -email <email> [-password <password>] [-roles user,admin] [-storage sqlite|mysql] [-db <db_path>] [-dsn <mysql_dsn>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}

	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	logging.Logger.SetOutput(stderr)
	ctx := context.Background()

	store, closeStore, err := openStorage(ctx, *storageType, *dbPath, *dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer closeStore()

	bt := budget.NewBudgetTracker(store, nil)
	if err := bt.SeedRoles(ctx); err != nil {
		return err
	}

	user, err := bt.SaveUser(ctx, auth.NewUser{
		UserName:      *username,
		PasswordPlain: password,
		Email:         *email,
		Roles:         splitRoles(*roles),
	})
	if err != nil {
		return err
	}

	roleNames := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roleNames = append(roleNames, role.String())
	}
	fmt.Fprintf(stdout, "User %s created successfully with ID %d (%s)\n", user.UserName, user.ID, strings.Join(roleNames, ", "))
	return nil
}

func openStorage(ctx context.Context, storageType, dbPath, dsn string) (budget.Storage, func() error, error) {
	switch storageType {
	case config.StorageSQLite:
		// Allow overriding db path via env var when the flag keeps its default
		if path := os.Getenv("SQLITE_PATH"); path != "" && dbPath == "expense_tracker.db" {
			dbPath = path
		}
		db, err := storage.InitSQLite(ctx, dbPath)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewSQLStorage(db, config.StorageSQLite), db.Close, nil
	case config.StorageMySQL:
		if dsn == "" {
			dsn = os.Getenv("FULL_DSN")
		}
		if dsn == "" {
			return nil, nil, fmt.Errorf("mysql storage requires -dsn or FULL_DSN")
		}
		db, err := storage.InitMySQL(ctx, &config.Config{DB: config.DBConfig{FullDSN: dsn}})
		if err != nil {
			return nil, nil, err
		}
		return storage.NewSQLStorage(db, config.StorageMySQL), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type %q", storageType)
	}
}

func splitRoles(raw string) []string {
	var roles []string
	for _, role := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(role); trimmed != "" {
			roles = append(roles, trimmed)
		}
	}
	return roles
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// pipes and tests
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
