package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	SetSecret("unit-test-secret")
	t.Cleanup(func() { SetSecret("") })

	token, err := GenerateToken("operator")
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.User)
}

func TestValidateRejectsGarbage(t *testing.T) {
	SetSecret("unit-test-secret")
	t.Cleanup(func() { SetSecret("") })

	_, err := ValidateToken("not.a.token")
	assert.Error(t, err)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	SetSecret("first-secret")
	t.Cleanup(func() { SetSecret("") })

	token, err := GenerateToken("operator")
	require.NoError(t, err)

	SetSecret("second-secret")
	_, err = ValidateToken(token)
	assert.Error(t, err)
}

func TestNoSecretConfigured(t *testing.T) {
	SetSecret("")

	assert.False(t, Enabled())

	_, err := GenerateToken("operator")
	assert.Error(t, err)

	_, err = ValidateToken("anything")
	assert.Error(t, err)
}
