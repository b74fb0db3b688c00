package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

var API_ENV = os.Getenv("API_ENV")

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

// CommissionBps returns the platform commission rate in basis points.
// Defaults to 500 (5%) when COMMISSION_BPS is unset or out of range.
func CommissionBps() int64 {
	v := os.Getenv("COMMISSION_BPS")
	if v == "" {
		return 500
	}
	bps, err := strconv.ParseInt(v, 10, 64)
	if err != nil || bps < 0 || bps >= 10000 {
		return 500
	}
	return bps
}

// SweepInterval is how often the reconciliation sweep re-checks stuck
// transactions against the gateway.
func SweepInterval() time.Duration {
	return getenvDuration("SWEEP_INTERVAL", 2*time.Minute)
}

// PendingTimeout is how long a transaction may sit in a *_PENDING status
// before the sweep polls the gateway for its real outcome.
func PendingTimeout() time.Duration {
	return getenvDuration("PENDING_TIMEOUT", 15*time.Minute)
}

// ReversalMaxAttempts caps reversal re-issues before a transaction is
// escalated to the manual review queue.
func ReversalMaxAttempts() int {
	v := os.Getenv("REVERSAL_MAX_ATTEMPTS")
	if v == "" {
		return 5
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 5
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
