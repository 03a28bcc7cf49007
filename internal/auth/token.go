package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	appErrors "github.com/fatali-fataliyev/expense_tracker/customErrors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const TokenIssuer = "expense-tracker"

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates stateless HS256 bearer tokens.
type TokenManager struct {
	secret     []byte
	expiration time.Duration
	now        func() time.Time
}

func NewTokenManager(secret string, expiration time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		expiration: expiration,
		now:        time.Now,
	}
}

func (tm *TokenManager) Expiration() time.Duration {
	return tm.expiration
}

func (tm *TokenManager) Issue(user User) (string, error) {
	now := tm.now().UTC()
	claims := Claims{
		Username: user.UserName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    TokenIssuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expiration)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Validate checks signature and expiry and returns the subject user id.
func (tm *TokenManager) Validate(tokenString string) (int64, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, appErrors.ErrorResponse{
				Code:    appErrors.ErrTokenExpired,
				Message: "Your session expired, please login again.",
			}
		}
		return 0, appErrors.ErrorResponse{
			Code:    appErrors.ErrTokenInvalid,
			Message: "Invalid token, please login.",
		}
	}

	userId, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userId <= 0 {
		return 0, appErrors.ErrorResponse{
			Code:    appErrors.ErrTokenInvalid,
			Message: "Invalid token, please login.",
		}
	}
	return userId, nil
}
