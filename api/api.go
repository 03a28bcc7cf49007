package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/0xcafe-io/iz"

	appErrors "github.com/fatali-fataliyev/expense_tracker/customErrors"
	"github.com/fatali-fataliyev/expense_tracker/internal/auth"
	"github.com/fatali-fataliyev/expense_tracker/internal/budget"
	"github.com/fatali-fataliyev/expense_tracker/internal/contextutil"
	"github.com/fatali-fataliyev/expense_tracker/logging"
)

type Api struct {
	Service *budget.BudgetTracker
}

func NewApi(service *budget.BudgetTracker) *Api {
	return &Api{
		Service: service,
	}
}

// Handler wires every route behind the trace middleware.
func (api *Api) Handler() http.Handler {
	server := http.NewServeMux()

	// AUTH ENDPOINTS.
	server.HandleFunc("POST /auth/signup", iz.Bind(api.SignUpHandler)) // Create User
	server.HandleFunc("POST /auth/signin", iz.Bind(api.SignInHandler)) // Login User

	// EXPENSE ENDPOINTS.
	server.HandleFunc("GET /expenses", iz.Bind(api.GetFilteredExpensesHandler))   // Get Expenses with date filters
	server.HandleFunc("POST /expenses", iz.Bind(api.SaveExpenseHandler))          // Create Expense
	server.HandleFunc("GET /expenses/{id}", iz.Bind(api.GetExpenseByIdHandler))   // Get Expense by ID
	server.HandleFunc("PUT /expenses/{id}", iz.Bind(api.UpdateExpenseHandler))    // Update Expense
	server.HandleFunc("DELETE /expenses/{id}", iz.Bind(api.DeleteExpenseHandler)) // Delete Expense

	server.HandleFunc("GET /health", iz.Bind(api.HealthHandler))

	return TraceMiddleware(server)
}

func (api *Api) SignUpHandler(r *iz.Request) iz.Responder {
	var signUpReq SignUpRequest
	if err := decodeBody(r.Body, &signUpReq); err != nil {
		return errorResponse(r.Context(), err)
	}

	if _, err := api.Service.SaveUser(r.Context(), signUpReq.ToNewUser()); err != nil {
		return errorResponse(r.Context(), err)
	}

	return iz.Respond().Status(200).JSON(MessageResponse{Message: "User registered successfully!"})
}

func (api *Api) SignInHandler(r *iz.Request) iz.Responder {
	var signInReq SignInRequest
	if err := decodeBody(r.Body, &signInReq); err != nil {
		return errorResponse(r.Context(), err)
	}

	user, token, err := api.Service.SignIn(r.Context(), signInReq.ToCredentials())
	if err != nil {
		return errorResponse(r.Context(), err)
	}

	return iz.Respond().Status(200).JSON(NewJwtResponse(user, token))
}

func (api *Api) GetFilteredExpensesHandler(r *iz.Request) iz.Responder {
	caller, err := api.authorize(r)
	if err != nil {
		return errorResponse(r.Context(), err)
	}

	filters, err := ListValidateParams(r.URL.Query())
	if err != nil {
		return errorResponse(r.Context(), err)
	}

	expenses, err := api.Service.GetFilteredExpenses(r.Context(), caller, filters)
	if err != nil {
		return errorResponse(r.Context(), err)
	}
	return iz.Respond().Status(200).JSON(ExpensesToHttp(expenses))
}

func (api *Api) GetExpenseByIdHandler(r *iz.Request) iz.Responder {
	caller, err := api.authorize(r)
	if err != nil {
		return errorResponse(r.Context(), err)
	}

	expenseId, err := parseExpenseId(r.PathValue("id"))
	if err != nil {
		return errorResponse(r.Context(), err)
	}

	expense, err := api.Service.GetExpenseById(r.Context(), caller, expenseId)
	if err != nil {
		return errorResponse(r.Context(), err)
	}
	return iz.Respond().Status(200).JSON(ExpenseToHttp(expense))
}

func (api *Api) SaveExpenseHandler(r *iz.Request) iz.Responder {
	caller, err := api.authorize(r)
	if err != nil {
		return errorResponse(r.Context(), err)
	}

	var expenseReq ExpenseRequest
	if err := decodeBody(r.Body, &expenseReq); err != nil {
		return errorResponse(r.Context(), err)
	}
	if expenseReq.OwnerID != nil && *expenseReq.OwnerID != caller.ID {
		logging.WithTrace(r.Context()).Warnf("ignoring client owner_id %d, caller is %d", *expenseReq.OwnerID, caller.ID)
	}

	newExpense, err := expenseReq.ToDomain()
	if err != nil {
		return errorResponse(r.Context(), err)
	}

	created, err := api.Service.SaveExpense(r.Context(), caller, newExpense)
	if err != nil {
		return errorResponse(r.Context(), err)
	}
	return iz.Respond().Status(200).JSON(ExpenseToHttp(created))
}

func (api *Api) UpdateExpenseHandler(r *iz.Request) iz.Responder {
	caller, err := api.authorize(r)
	if err != nil {
		return errorResponse(r.Context(), err)
	}

	expenseId, err := parseExpenseId(r.PathValue("id"))
	if err != nil {
		return errorResponse(r.Context(), err)
	}

	var expenseReq ExpenseRequest
	if err := decodeBody(r.Body, &expenseReq); err != nil {
		return errorResponse(r.Context(), err)
	}

	changes, err := expenseReq.ToDomain()
	if err != nil {
		return errorResponse(r.Context(), err)
	}

	updated, err := api.Service.UpdateExpense(r.Context(), caller, expenseId, changes)
	if err != nil {
		return errorResponse(r.Context(), err)
	}
	return iz.Respond().Status(200).JSON(ExpenseToHttp(updated))
}

func (api *Api) DeleteExpenseHandler(r *iz.Request) iz.Responder {
	caller, err := api.authorize(r)
	if err != nil {
		return errorResponse(r.Context(), err)
	}

	expenseId, err := parseExpenseId(r.PathValue("id"))
	if err != nil {
		return errorResponse(r.Context(), err)
	}

	if err := api.Service.DeleteExpense(r.Context(), caller, expenseId); err != nil {
		return errorResponse(r.Context(), err)
	}
	return iz.Respond().Status(204).Text("")
}

func (api *Api) HealthHandler(r *iz.Request) iz.Responder {
	if err := api.Service.Ping(r.Context()); err != nil {
		logging.WithTrace(r.Context()).Errorf("health check failed: %v", err)
		return iz.Respond().Status(503).JSON(HealthResponse{Status: "unavailable", Storage: api.Service.StorageType})
	}
	return iz.Respond().Status(200).JSON(HealthResponse{Status: "ok", Storage: api.Service.StorageType})
}

// authorize resolves the bearer token of r to the calling user.
func (api *Api) authorize(r *iz.Request) (auth.User, error) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return auth.User{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrTokenInvalid,
			Message: "Authorization header with a Bearer token is required.",
		}
	}

	user, err := api.Service.ResolvePrincipal(r.Context(), strings.TrimSpace(token))
	if err != nil {
		if appErrors.Is(err, appErrors.ErrUserNotFound) {
			// token outlived its user
			return auth.User{}, appErrors.ErrorResponse{
				Code:    appErrors.ErrTokenInvalid,
				Message: "Invalid token, please login.",
			}
		}
		return auth.User{}, err
	}
	return user, nil
}

func errorResponse(ctx context.Context, err error) iz.Responder {
	status := httpStatusFromError(err)
	if status == 500 {
		logging.Logger.Errorf("[TraceID=%s] | request failed | Error: %v", contextutil.TraceIDFromContext(ctx), err)
	} else {
		logging.WithTrace(ctx).Debugf("request rejected with %d: %v", status, err)
	}
	return iz.Respond().Status(status).JSON(clientError(err))
}
