package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tandem/internal/domain"
)

func TestIssueAndParse(t *testing.T) {
	token, err := IssueToken("s3cret", domain.PersonFrau, time.Hour, time.Now())
	require.NoError(t, err)

	person, err := ParseToken("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, domain.PersonFrau, person)
}

func TestParseRejects(t *testing.T) {
	token, err := IssueToken("s3cret", domain.PersonMann, time.Hour, time.Now())
	require.NoError(t, err)

	_, err = ParseToken("other", token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := IssueToken("s3cret", domain.PersonMann, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = ParseToken("s3cret", expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken("s3cret", "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken("", token)
	assert.True(t, errors.Is(err, ErrNoSecret))
}

func TestIssueValidates(t *testing.T) {
	_, err := IssueToken("", domain.PersonMann, 0, time.Now())
	assert.ErrorIs(t, err, ErrNoSecret)

	_, err = IssueToken("s3cret", domain.Person("KIND"), 0, time.Now())
	assert.True(t, domain.IsCode(err, domain.ErrCodeValidation))
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer")
	assert.False(t, ok)
}
