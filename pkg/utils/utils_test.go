package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, true, func() error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, time.Millisecond, false, func() error {
		calls++
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 5, time.Millisecond, false, func() error {
		calls++
		return Permanent(errors.New("bad request"))
	})
	assert.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, 1, calls)
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 3, time.Hour, false, func() error { return errors.New("boom") })
	assert.ErrorIs(t, err, context.Canceled)
}
