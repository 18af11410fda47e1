package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	testCases := []struct {
		description string
		input       string
		expected    string
	}{
		{description: "mixed case & padding", input: "  Ada@Example.COM ", expected: "ada@example.com"},
		{description: "decomposed accent", input: "Jose\u0301@example.com", expected: "jos\u00e9@example.com"},
		{description: "already normalized", input: "alan@example.com", expected: "alan@example.com"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, NormalizeEmail(tc.input), tc.description)
	}
}

func TestFirstUserIsAdmin(t *testing.T) {
	InitializeTestDb()

	first := createTestUser(t, "ada", "Ada@Example.com")
	second := createTestUser(t, "alan", "alan@example.com")
	assert.Equal(t, "ada@example.com", first.Email)

	isAdmin, err := first.IsAdmin()
	require.Nil(t, err)
	assert.True(t, isAdmin)

	isAdmin, err = second.IsAdmin()
	require.Nil(t, err)
	assert.False(t, isAdmin)

	found, err := FindUserBy("email", "alan@example.com")
	require.Nil(t, err)
	assert.Empty(t, found.Password, "password is never selected")
}
