// Package backoff provides retry delay strategies. All strategies are
// stateless and safe for concurrent use.
package backoff

import (
	"math"
	"time"

	"github.com/petrijr/flowgate/pkg/api"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry n (1-indexed): retry 1 is
	// the first retry after the initial failure.
	Delay(retry int) time.Duration
}

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

func (c Constant) Delay(_ int) time.Duration { return c.Interval }

// Linear grows the delay with the retry number: Initial * n, capped at Max
// when Max > 0.
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

func (l Linear) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := l.Initial * time.Duration(retry)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// Exponential doubles the delay each retry: Initial * 2^(n-1), capped at
// Max when Max > 0.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

func (e Exponential) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(retry-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// maxDelay keeps exponential growth from overflowing into absurd waits.
const maxDelay = time.Hour

// ForConfig returns the strategy selected by cfg. The default is linear
// with cfg.RetryBackoff as the unit, i.e. 1s, 2s, 3s...
func ForConfig(cfg api.Config) Strategy {
	switch cfg.BackoffStrategy {
	case api.BackoffConstant:
		return Constant{Interval: cfg.RetryBackoff}
	case api.BackoffExponential:
		return Exponential{Initial: cfg.RetryBackoff, Max: maxDelay}
	default:
		return Linear{Initial: cfg.RetryBackoff, Max: maxDelay}
	}
}
