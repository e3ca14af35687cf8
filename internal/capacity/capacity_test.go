package capacity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sourceFunc func(ctx context.Context, eventID int64) (int, error)

func (f sourceFunc) CountConfirmed(ctx context.Context, eventID int64) (int, error) {
	return f(ctx, eventID)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		limit      int
		confirmed  int
		reservable bool
		remaining  int
	}{
		{"unlimited zero", 0, 500, true, Unlimited},
		{"unlimited negative", -3, 2, true, Unlimited},
		{"free seats", 2, 1, true, 1},
		{"boundary full", 2, 2, false, 0},
		{"oversold", 2, 3, false, 0},
		{"empty", 1, 0, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.limit, tt.confirmed)
			assert.Equal(t, tt.reservable, d.Reservable)
			assert.Equal(t, tt.remaining, d.Remaining)
			if tt.reservable {
				assert.NoError(t, d.Err())
			} else {
				assert.ErrorIs(t, d.Err(), ErrCapacityExceeded)
			}
		})
	}
}

func TestCounterCheck(t *testing.T) {
	calls := 0
	c := NewCounter(sourceFunc(func(_ context.Context, eventID int64) (int, error) {
		calls++
		assert.Equal(t, int64(7), eventID)
		return 2, nil
	}))

	d, err := c.Check(context.Background(), 7, 2)
	require.NoError(t, err)
	assert.False(t, d.Reservable)
	assert.Equal(t, 1, calls)

	// unlimited events skip the count
	d, err = c.Check(context.Background(), 7, 0)
	require.NoError(t, err)
	assert.True(t, d.Reservable)
	assert.Equal(t, 1, calls)
}

func TestCounterCheckError(t *testing.T) {
	boom := errors.New("boom")
	c := NewCounter(sourceFunc(func(context.Context, int64) (int, error) { return 0, boom }))
	_, err := c.Check(context.Background(), 1, 5)
	assert.ErrorIs(t, err, boom)
}
