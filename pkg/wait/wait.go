// Package wait provides the bounded poll used wherever the device needs
// time to settle: evaluate a condition at a fixed interval until it holds
// or the budget runs out.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/wxauto/wxprobe/pkg/core"
	"github.com/wxauto/wxprobe/pkg/logger"
)

// DefaultInterval is used when a Poll has no interval set.
const DefaultInterval = 500 * time.Millisecond

// Condition reports whether the awaited state holds. An error counts as
// "not yet" and is kept as the cause if the poll times out.
type Condition func(ctx context.Context) (bool, error)

// Poll describes one bounded wait.
type Poll struct {
	Interval    time.Duration
	Timeout     time.Duration
	Description string // used in log lines and the timeout error
}

var errNotYet = errors.New("condition not met")

// Until evaluates cond immediately and then every Interval until it returns
// true. It returns a core.ErrWaitTimeout when Timeout elapses first, and
// ctx.Err() when the parent context is cancelled. A zero Timeout evaluates
// the condition exactly once.
func (p Poll) Until(ctx context.Context, cond Condition) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	var (
		attempts int
		lastErr  error
	)

	if p.Timeout <= 0 {
		ok, err := cond(ctx)
		if ok && err == nil {
			return nil
		}
		return p.timeoutError(1, err)
	}

	pollCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	op := func() error {
		attempts++
		ok, err := cond(pollCtx)
		if err != nil {
			lastErr = err
			return err
		}
		if !ok {
			return errNotYet
		}
		return nil
	}

	notify := func(err error, next time.Duration) {
		logger.Debug("waiting for %s (attempt %d, next in %s): %v", p.describe(), attempts, next, err)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(interval), pollCtx)
	if err := backoff.RetryNotify(op, b, notify); err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return p.timeoutError(attempts, lastErr)
}

func (p Poll) timeoutError(attempts int, cause error) error {
	e := core.ErrWaitTimeout.
		WithMessage(fmt.Sprintf("timed out after %s waiting for %s", p.Timeout, p.describe())).
		WithDetails(map[string]interface{}{"attempts": attempts, "timeout": p.Timeout.String()})
	if cause != nil {
		return e.WithCause(cause)
	}
	return e
}

func (p Poll) describe() string {
	if p.Description == "" {
		return "condition"
	}
	return p.Description
}

// Sleep pauses for d unless ctx is cancelled first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
