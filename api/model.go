package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/fatali-fataliyev/expense_tracker/customErrors"
	"github.com/fatali-fataliyev/expense_tracker/internal/auth"
	"github.com/fatali-fataliyev/expense_tracker/internal/budget"
)

const MAX_REQUEST_BODY_SIZE = 1 << 20

// REQUESTS START:
type SignUpRequest struct {
	UserName string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type SignInRequest struct {
	UserName string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ExpenseRequest is accepted on create and update. OwnerID is read but
// never trusted.
type ExpenseRequest struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
	Category    string  `json:"category"`
	OwnerID     *int64  `json:"owner_id,omitempty"`
}

//REQUESTS END:

//RESPONSES:

type MessageResponse struct {
	Message string `json:"message"`
}

type JwtResponse struct {
	Token    string   `json:"token"`
	Type     string   `json:"type"`
	ID       int64    `json:"id"`
	UserName string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

type ExpenseItem struct {
	ID          int64   `json:"id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
	Category    string  `json:"category"`
	OwnerID     int64   `json:"owner_id"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

func httpStatusFromError(err error) int {
	switch appErrors.CodeOf(err) {
	case appErrors.ErrUserNotFound, appErrors.ErrExpenseNotFound, appErrors.ErrRoleNotFound:
		return 404 // not found
	case appErrors.ErrBadCredentials, appErrors.ErrTokenInvalid, appErrors.ErrTokenExpired:
		return 401 // unauthorized
	case appErrors.ErrUsernameTaken, appErrors.ErrEmailTaken, appErrors.ErrInvalidInput:
		return 400 // bad request
	default:
		return 500 // internal error
	}
}

// clientError is the body sent for err. Anything not classified is
// replaced by a generic message.
func clientError(err error) appErrors.ErrorResponse {
	var appErr appErrors.ErrorResponse
	if httpStatusFromError(err) == 500 || !errors.As(err, &appErr) {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "An unexpected error occurred.",
		}
	}
	return appErr
}

func invalidInput(format string, args ...any) error {
	return appErrors.ErrorResponse{
		Code:    appErrors.ErrInvalidInput,
		Message: fmt.Sprintf(format, args...),
	}
}

func decodeBody(body io.Reader, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(body, MAX_REQUEST_BODY_SIZE))
	if err := decoder.Decode(dst); err != nil {
		return invalidInput("invalid request body: %s", err.Error())
	}
	return nil
}

func (req SignUpRequest) ToNewUser() auth.NewUser {
	return auth.NewUser{
		UserName:      strings.TrimSpace(req.UserName),
		PasswordPlain: req.Password,
		Email:         strings.TrimSpace(req.Email),
		Roles:         req.Roles,
	}
}

// ToCredentials prefers username when both fields are sent.
func (req SignInRequest) ToCredentials() auth.UserCredentialsPure {
	identifier := req.UserName
	if strings.TrimSpace(identifier) == "" {
		identifier = req.Email
	}
	return auth.UserCredentialsPure{
		Identifier:    identifier,
		PasswordPlain: req.Password,
	}
}

func (req ExpenseRequest) ToDomain() (budget.ExpenseRequest, error) {
	var date time.Time
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := parseDate(req.Date)
		if err != nil {
			return budget.ExpenseRequest{}, invalidInput("invalid expense date '%s', expected format: YYYY-MM-DD", req.Date)
		}
		date = parsed
	}
	return budget.ExpenseRequest{
		Description: req.Description,
		Amount:      req.Amount,
		Date:        date,
		Category:    req.Category,
	}, nil
}

func NewJwtResponse(user auth.User, token string) JwtResponse {
	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roles = append(roles, role.String())
	}
	return JwtResponse{
		Token:    token,
		Type:     "Bearer",
		ID:       user.ID,
		UserName: user.UserName,
		Email:    user.Email,
		Roles:    roles,
	}
}

func ExpenseToHttp(expense budget.Expense) ExpenseItem {
	return ExpenseItem{
		ID:          expense.ID,
		Description: expense.Description,
		Amount:      expense.Amount,
		Date:        expense.Date.Format(budget.DateLayout),
		Category:    expense.Category,
		OwnerID:     expense.UserID,
	}
}

func ExpensesToHttp(expenses []budget.Expense) []ExpenseItem {
	items := make([]ExpenseItem, 0, len(expenses))
	for _, expense := range expenses {
		items = append(items, ExpenseToHttp(expense))
	}
	return items
}

// ListValidateParams reads the optional startDate and endDate parameters.
func ListValidateParams(params url.Values) (budget.ExpenseList, error) {
	var filters budget.ExpenseList

	if raw := strings.TrimSpace(params.Get("startDate")); raw != "" {
		start, err := parseDate(raw)
		if err != nil {
			return budget.ExpenseList{}, invalidInput("invalid startDate '%s', expected format: YYYY-MM-DD", raw)
		}
		filters.StartDate = &start
	}
	if raw := strings.TrimSpace(params.Get("endDate")); raw != "" {
		end, err := parseDate(raw)
		if err != nil {
			return budget.ExpenseList{}, invalidInput("invalid endDate '%s', expected format: YYYY-MM-DD", raw)
		}
		filters.EndDate = &end
	}
	return filters, nil
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse(budget.DateLayout, strings.TrimSpace(raw))
}

func parseExpenseId(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidInput("invalid expense id '%s'", raw)
	}
	return id, nil
}
