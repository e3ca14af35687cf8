package tokens

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssueValidateRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(0).WithClock(fixedClock(now))

	tok, exp, err := svc.Issue()
	require.NoError(t, err)
	assert.Equal(t, now.Add(DefaultTTL), exp)
	assert.NoError(t, svc.Validate(tok, tok, exp))
}

func TestIssueLengthAndAlphabet(t *testing.T) {
	svc := NewService(time.Hour)
	tok, _, err := svc.Issue()
	require.NoError(t, err)
	// 32 bytes base64url without padding
	assert.Len(t, tok, 43)
	assert.False(t, strings.ContainsAny(tok, "+/="))

	other, _, err := svc.Issue()
	require.NoError(t, err)
	assert.NotEqual(t, tok, other)
}

func TestValidateExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	svc := NewService(48 * time.Hour).WithClock(func() time.Time { return clock })

	tok, exp, err := svc.Issue()
	require.NoError(t, err)

	clock = now.Add(48 * time.Hour)
	assert.NoError(t, svc.Validate(tok, tok, exp), "expiry instant itself is still valid")

	clock = now.Add(48*time.Hour + time.Second)
	assert.ErrorIs(t, svc.Validate(tok, tok, exp), ErrTokenExpired)
}

func TestValidateInvalid(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	now := time.Now()

	tests := []struct {
		name   string
		token  string
		stored string
	}{
		{"mismatch", "abc", "abd"},
		{"empty stored", "abc", ""},
		{"empty token", "", "abc"},
		{"prefix", "ab", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Validate(tt.token, tt.stored, exp, now), ErrTokenInvalid)
		})
	}
}

func TestValidateMismatchBeforeExpiry(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	assert.ErrorIs(t, Validate("wrong", "right", past, time.Now()), ErrTokenInvalid)
}

func TestHashMatchesOnlyItsToken(t *testing.T) {
	svc := NewService(time.Hour)
	tok, _, err := svc.Issue()
	require.NoError(t, err)

	h := Hash(tok)
	assert.Len(t, h, 64)
	assert.NotContains(t, h, tok)
	assert.True(t, MatchesHash(tok, h))
	assert.False(t, MatchesHash(tok+"x", h))
	assert.False(t, MatchesHash("", h))
	assert.False(t, MatchesHash(tok, ""))
}
