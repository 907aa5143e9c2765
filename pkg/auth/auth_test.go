package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)

	token, err := mgr.Generate(42, "dev@example.com", "Dev User")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := mgr.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "dev@example.com", claims.Email)
	assert.Equal(t, "Dev User", claims.Name)
	assert.Equal(t, "42", claims.Subject)
}

func TestValidateRejectsBadTokens(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)
	token, err := mgr.Generate(1, "a@b.c", "A")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "empty", token: ""},
		{name: "tampered", token: token + "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mgr.Validate(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-a", time.Hour).Generate(1, "a@b.c", "A")
	require.NoError(t, err)

	_, err = NewJWTManager("secret-b", time.Hour).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Nanosecond)
	token, err := mgr.Generate(1, "a@b.c", "A")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = mgr.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	assert.NotEqual(t, "hunter22", hash)

	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))
	assert.False(t, CheckPassword("not-a-hash", "hunter22"))
}
