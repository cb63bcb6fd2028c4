package services

import (
	"context"
	"time"
)

// Pacer decides how long the batch runner waits between two outbound calls.
type Pacer interface {
	Wait(ctx context.Context) error
}

// FixedDelay blocks for the same duration before every call after the first.
type FixedDelay struct {
	Delay time.Duration
}

func (p FixedDelay) Wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NoDelay never waits.
type NoDelay struct{}

func (NoDelay) Wait(ctx context.Context) error {
	return ctx.Err()
}
