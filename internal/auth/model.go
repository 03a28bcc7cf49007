package auth

import (
	"fmt"
	"regexp"
	"strings"

	appErrors "github.com/fatali-fataliyev/expense_tracker/customErrors"
)

const (
	MIN_LENGTH_USERNAME = 3
	MAX_LENGTH_USERNAME = 20
	MAX_LENGTH_EMAIL    = 50
	MIN_PASSWORD_LENGTH = 6
	MAX_PASSWORD_LENGTH = 40
)

var (
	usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	emailRegex    = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,6}$`)
)

type User struct {
	ID             int64
	UserName       string
	PasswordHashed string
	Email          string
	Roles          []Role
}

func (u User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type NewUser struct {
	UserName      string
	PasswordPlain string
	Email         string
	Roles         []string
}

func (newUser NewUser) ValidateUserFields() error {
	if newUser.UserName == "" {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Username cannot be empty!",
		}
	}
	if len(newUser.UserName) < MIN_LENGTH_USERNAME || len(newUser.UserName) > MAX_LENGTH_USERNAME {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Username length must be between %d and %d", MIN_LENGTH_USERNAME, MAX_LENGTH_USERNAME),
		}
	}
	if !usernameRegex.MatchString(newUser.UserName) {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Username contains wrong characters, example username: john_doe",
		}
	}
	if newUser.Email == "" {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Email cannot be empty!",
		}
	}
	if len(newUser.Email) > MAX_LENGTH_EMAIL {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Email so long, maximum length is %d", MAX_LENGTH_EMAIL),
		}
	}
	if !IsEmail(newUser.Email) {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Invalid email format, example valid email: john.doe@gmail.com",
		}
	}
	if newUser.PasswordPlain == "" {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Password cannot be empty!",
		}
	}
	if len(newUser.PasswordPlain) < MIN_PASSWORD_LENGTH || len(newUser.PasswordPlain) > MAX_PASSWORD_LENGTH {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Password length must be between %d and %d", MIN_PASSWORD_LENGTH, MAX_PASSWORD_LENGTH),
		}
	}
	return nil
}

// IsEmail is a syntactic check only.
func IsEmail(identifier string) bool {
	return emailRegex.MatchString(identifier)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type UserCredentialsPure struct {
	Identifier    string
	PasswordPlain string
}

func (c UserCredentialsPure) Validate() error {
	if strings.TrimSpace(c.Identifier) == "" {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Username cannot be empty!",
		}
	}
	if c.PasswordPlain == "" {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Password cannot be empty!",
		}
	}
	return nil
}
