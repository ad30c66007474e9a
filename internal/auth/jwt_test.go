package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	token, exp, err := Issue("5", "student", "Ada", "biomark", "secret", time.Hour)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	claims, err := Parse(token, "secret", "biomark")
	require.NoError(t, err)
	assert.Equal(t, "5", claims.UserID)
	assert.Equal(t, "student", claims.Role)
	assert.Equal(t, "Ada", claims.Name)
}

func TestParseRejectsWrongKey(t *testing.T) {
	token, _, err := Issue("5", "student", "Ada", "biomark", "secret", time.Hour)
	require.NoError(t, err)

	_, err = Parse(token, "other-secret", "biomark")
	assert.Error(t, err)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	token, _, err := Issue("5", "student", "Ada", "someone-else", "secret", time.Hour)
	require.NoError(t, err)

	_, err = Parse(token, "secret", "biomark")
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	token, _, err := Issue("5", "student", "Ada", "biomark", "secret", -time.Minute)
	require.NoError(t, err)

	_, err = Parse(token, "secret", "biomark")
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-token", "secret", "biomark")
	assert.Error(t, err)
}
