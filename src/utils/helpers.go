package utils

import (
	"context"
	"log"
	"mmpay/src/config"
	"mmpay/src/types"
	"os"
	"time"
)

func IsProd() bool {
	return os.Getenv("API_ENV") == "production"
}

// SplitAmount divides a gross amount into (commission, net) using the
// configured commission rate. Commission is rounded DOWN to the nearest
// minor currency unit; the gateway reconciles against these exact values,
// so the rounding direction must never change.
func SplitAmount(gross int64) (int64, int64, error) {
	return SplitAmountWithRate(gross, config.CommissionBps())
}

// SplitAmountWithRate is SplitAmount with an explicit rate in basis
// points. Pure: same inputs, same outputs, no side effects.
func SplitAmountWithRate(gross int64, bps int64) (commission int64, net int64, err error) {
	if gross <= 0 {
		return 0, 0, types.ErrInvalidAmount
	}
	commission = gross * bps / 10000
	net = gross - commission
	if net <= 0 {
		return 0, 0, types.ErrInvalidAmount
	}
	return commission, net, nil
}

// WithBackoff retries fn with capped exponential backoff. It stops early
// when fn succeeds, when fn reports the error is not retryable, or when
// the context is done. The gateway is a shared rate-limited resource, so
// attempts are bounded rather than blocking indefinitely.
func WithBackoff(ctx context.Context, label string, attempts int, base time.Duration, fn func() error, retryable func(error) bool) error {
	var err error
	delay := base
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		log.Printf("[%s] attempt %d/%d failed: %s\n", label, i+1, attempts, err.Error())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}
	return err
}
