package auth

import (
	"strings"
	"testing"
	"time"

	appErrors "github.com/fatali-fataliyev/expense_tracker/customErrors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenIssueAndValidate(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	token, err := tm.Issue(User{ID: 42, UserName: "john"})
	require.NoError(t, err)
	require.Equal(t, 3, len(strings.Split(token, ".")))

	userId, err := tm.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userId)
}

func TestTokenExpired(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Minute)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := tm.Issue(User{ID: 7, UserName: "john"})
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.Validate(token)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenExpired))
}

func TestTokenInvalid(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	other := NewTokenManager("ffffffffffffffffffffffffffffffff", time.Hour)

	foreign, err := other.Issue(User{ID: 7, UserName: "john"})
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "7",
		Issuer:    TokenIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-a-number",
		Issuer:    TokenIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not.a.token"},
		{name: "wrong signature", token: foreign},
		{name: "none algorithm", token: noneToken},
		{name: "non numeric subject", token: badSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tm.Validate(tt.token)
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, appErrors.ErrTokenInvalid))
		})
	}
}
