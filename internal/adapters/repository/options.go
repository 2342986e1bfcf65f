package repository

import "time"

type options struct {
	now             func() time.Time
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
}

func defaultOptions() options {
	return options{now: time.Now}
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithClock replaces the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithPoolLimits bounds the SQL connection pool. Zero values keep the
// database/sql defaults.
func WithPoolLimits(maxOpen, maxIdle int, maxLifetime time.Duration) Option {
	return func(o *options) {
		o.maxOpenConns = maxOpen
		o.maxIdleConns = maxIdle
		o.connMaxLifetime = maxLifetime
	}
}
