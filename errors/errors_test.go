package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassificationHelpers(t *testing.T) {
	assert.True(t, IsNotFound(ErrUserNotFound))
	assert.True(t, IsNotFound(fmt.Errorf("lookup: %w", ErrGroupNotFound)))
	assert.False(t, IsNotFound(ErrTokenInvalid))

	assert.True(t, IsConflict(ErrUniquenessConflict))
	assert.True(t, IsConflict(NewFieldConflict("email")))
	assert.False(t, IsConflict(ErrUserNotFound))

	assert.True(t, IsUnauthorized(ErrInvalidCredentials))
	assert.True(t, IsUnauthorized(ErrUserInactive))
	assert.False(t, IsUnauthorized(ErrTokenInvalid))

	assert.True(t, IsTokenInvalid(ErrTokenInvalid))
	assert.True(t, IsTokenInvalid(fmt.Errorf("reset: %w", ErrTokenInvalid)))
	assert.False(t, IsTokenInvalid(ErrInvalidCredentials))
}

func TestFieldConflict(t *testing.T) {
	err := NewFieldConflict("username")

	var fieldErr *FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "username", fieldErr.Field)
	assert.Contains(t, err.Error(), "username")
}
