package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var hashCost = bcrypt.DefaultCost

// SetHashCost changes the bcrypt cost used by HashPassword. Tests lower it to
// bcrypt.MinCost.
func SetHashCost(cost int) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashCost = cost
}

func HashPassword(password string) (string, error) {
	if len(password) > MAX_PASSWORD_LENGTH {
		return "", fmt.Errorf("password longer than %d bytes", MAX_PASSWORD_LENGTH)
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedPassword), nil
}

// ComparePasswords reports whether plainPwd matches hashedPwd.
func ComparePasswords(hashedPwd string, plainPwd string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPwd), []byte(plainPwd)) == nil
}
