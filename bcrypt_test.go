package library_test

import (
	"testing"

	"github.com/goliatone/go-library"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{
			name:     "Valid password",
			password: "securePassword123!",
		},
		{
			name:     "Empty password",
			password: "",
			wantErr:  library.ErrNoEmptyString,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := library.HashPassword(tt.password)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, hash)
			assert.NotEqual(t, tt.password, hash)
			assert.NoError(t, library.ComparePasswordAndHash(tt.password, hash))
		})
	}
}

func TestComparePasswordAndHash_Mismatch(t *testing.T) {
	hash, err := library.HashPassword("right-password")
	require.NoError(t, err)

	err = library.ComparePasswordAndHash("wrong-password", hash)
	assert.ErrorIs(t, err, library.ErrMismatchedHashAndPassword)
}

func TestHashPassword_Salted(t *testing.T) {
	a, err := library.HashPassword("same")
	require.NoError(t, err)
	b, err := library.HashPassword("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestBcryptHasher(t *testing.T) {
	var hasher library.PasswordAuthenticator = library.BcryptHasher{}

	hash, err := hasher.HashPassword("hunter22")
	require.NoError(t, err)
	assert.NoError(t, hasher.ComparePasswordAndHash("hunter22", hash))
}
