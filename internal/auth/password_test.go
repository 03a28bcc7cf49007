package auth

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	SetHashCost(bcrypt.MinCost)
	os.Exit(m.Run())
}

func TestHashPassword(t *testing.T) {
	plain := "messi10"

	hash, err := HashPassword(plain)
	require.NoError(t, err)
	require.NotEqual(t, plain, hash)

	require.True(t, ComparePasswords(hash, plain))
	require.False(t, ComparePasswords(hash, "ronaldo7"))
}

func TestHashPasswordSaltsEachCall(t *testing.T) {
	first, err := HashPassword("messi10")
	require.NoError(t, err)
	second, err := HashPassword("messi10")
	require.NoError(t, err)

	require.NotEqual(t, first, second)
}

func TestHashPasswordTooLong(t *testing.T) {
	_, err := HashPassword(string(make([]byte, MAX_PASSWORD_LENGTH+1)))
	require.Error(t, err)
}
