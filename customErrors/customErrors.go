package customErrors

import (
	"errors"
	"fmt"
)

const (
	ErrUsernameTaken   = "USERNAME TAKEN"
	ErrEmailTaken      = "EMAIL TAKEN"
	ErrRoleNotFound    = "ROLE NOT FOUND"
	ErrBadCredentials  = "BAD CREDENTIALS"
	ErrUserNotFound    = "USER NOT FOUND"
	ErrTokenInvalid    = "TOKEN INVALID"
	ErrTokenExpired    = "TOKEN EXPIRED"
	ErrExpenseNotFound = "EXPENSE NOT FOUND"
	ErrInvalidInput    = "INVALID INPUT"
	ErrInternal        = "INTERNAL"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ErrorResponse) Error() string {
	return fmt.Sprintf("code: %s, message: %s", e.Code, e.Message)
}

// CodeOf returns the code of the first ErrorResponse in err's chain,
// or ErrInternal when there is none.
func CodeOf(err error) string {
	var appErr ErrorResponse
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
