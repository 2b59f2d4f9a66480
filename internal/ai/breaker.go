package ai

import (
	"sync"
	"time"
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker guards one generative backend. It is shared by every call site and
// must be constructed once and injected; there is no package-level instance.
//
// Closed -> Open after failureThreshold consecutive failures,
// Open -> HalfOpen after recoveryTimeout, HalfOpen admits exactly one trial
// call: success closes the breaker, failure re-opens it and restarts the
// timer.
type Breaker struct {
	mu               sync.Mutex
	state            BreakerState
	failureCount     int
	openedAt         time.Time
	trialInFlight    bool
	failureThreshold int
	recoveryTimeout  time.Duration
	now              func() time.Time
}

func NewBreaker(failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed. It returns ErrCircuitOpen while
// the breaker is open, and admits a single trial call once the recovery
// timeout has elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.recoveryTimeout {
			return ErrCircuitOpen
		}
		b.state = BreakerHalfOpen
		b.trialInFlight = true
		return nil
	default: // half-open
		if b.trialInFlight {
			return ErrCircuitOpen
		}
		b.trialInFlight = true
		return nil
	}
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.trialInFlight = false
	b.state = BreakerClosed
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerHalfOpen {
		b.trialInFlight = false
		b.open()
		return
	}
	b.failureCount++
	if b.failureCount >= b.failureThreshold {
		b.open()
	}
}

func (b *Breaker) open() {
	b.state = BreakerOpen
	b.failureCount = 0
	b.openedAt = b.now()
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
