package utils

import (
	"context"
	"errors"
	"mmpay/src/types"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSplitAmount(t *testing.T) {
	commission, net, err := SplitAmountWithRate(1000, 500)
	assert.Nil(t, err)
	assert.Equal(t, int64(50), commission)
	assert.Equal(t, int64(950), net)
}

func TestSplitAmountRoundsDown(t *testing.T) {
	// 5% of 1019 is 50.95; the platform keeps 50, never 51.
	commission, net, err := SplitAmountWithRate(1019, 500)
	assert.Nil(t, err)
	assert.Equal(t, int64(50), commission)
	assert.Equal(t, int64(969), net)

	commission, net, err = SplitAmountWithRate(19, 500)
	assert.Nil(t, err)
	assert.Equal(t, int64(0), commission)
	assert.Equal(t, int64(19), net)
}

func TestSplitAmountConservation(t *testing.T) {
	for gross := int64(1); gross < 20000; gross++ {
		commission, net, err := SplitAmountWithRate(gross, 500)
		assert.Nil(t, err)
		assert.Equal(t, gross, commission+net, "split must conserve the gross amount")
		assert.Equal(t, gross*500/10000, commission)
		assert.Greater(t, net, int64(0))
		assert.GreaterOrEqual(t, commission, int64(0))
	}
}

func TestSplitAmountRejectsInvalid(t *testing.T) {
	_, _, err := SplitAmountWithRate(0, 500)
	assert.ErrorIs(t, err, types.ErrInvalidAmount)

	_, _, err = SplitAmountWithRate(-100, 500)
	assert.ErrorIs(t, err, types.ErrInvalidAmount)
}

func TestWithBackoffStopsOnNonRetryable(t *testing.T) {
	calls := 0
	fatal := errors.New("rejected")
	err := WithBackoff(context.Background(), "test", 5, time.Millisecond, func() error {
		calls++
		return fatal
	}, func(err error) bool { return false })
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestWithBackoffBoundedAttempts(t *testing.T) {
	calls := 0
	flaky := errors.New("unavailable")
	err := WithBackoff(context.Background(), "test", 3, time.Millisecond, func() error {
		calls++
		return flaky
	}, func(err error) bool { return true })
	assert.ErrorIs(t, err, flaky)
	assert.Equal(t, 3, calls)
}

func TestWithBackoffEventualSuccess(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), "test", 5, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("unavailable")
		}
		return nil
	}, func(err error) bool { return true })
	assert.Nil(t, err)
	assert.Equal(t, 3, calls)
}
