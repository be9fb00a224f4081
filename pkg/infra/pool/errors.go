// Package pool provides worker pools built on ants.
package pool

import "errors"

var (
	// ErrPoolClosed is returned when submitting to a released pool.
	ErrPoolClosed = errors.New("pool is closed")

	// ErrInvalidPoolConfig is returned for an unusable configuration.
	ErrInvalidPoolConfig = errors.New("invalid pool config")

	// ErrPoolOverload is returned when a nonblocking pool is full.
	ErrPoolOverload = errors.New("pool is overloaded")
)
