package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/d60-Lab/feedgate/pkg/logger"
)

var (
	// ErrOpen is returned without attempting the call while the
	// breaker is open (or while a half-open probe is already in
	// flight).
	ErrOpen = errors.New("circuit open")
	// ErrTimeout is returned when a call outlives the per-call
	// timeout; the call's eventual result is discarded.
	ErrTimeout = errors.New("call timed out")
)

type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

type BreakerConfig struct {
	Timeout        time.Duration // per-call deadline, counted as failure
	ResetTimeout   time.Duration // open -> half-open cooldown
	ErrorThreshold float64       // trip when failures/total >= this
	Window         time.Duration // rolling window for the ratio
	MinRequests    int           // no tripping below this volume
	Clock          clock.Clock   // nil means wall clock
}

func (c *BreakerConfig) withDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = 0.5
	}
	if c.Window <= 0 {
		c.Window = 10 * time.Second
	}
	if c.MinRequests <= 0 {
		c.MinRequests = 5
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
}

const windowBuckets = 10

type bucket struct {
	start   time.Time
	success int
	failure int
}

// Breaker guards calls to one downstream service. Failure ratio is
// counted over a rolling bucketed window; once tripped, calls
// short-circuit until ResetTimeout elapses, then exactly one probe is
// admitted through the half-open gate.
type Breaker struct {
	name string
	cfg  BreakerConfig
	clk  clock.Clock

	mu       sync.Mutex
	state    State
	openedAt time.Time
	buckets  [windowBuckets]bucket

	probing atomic.Bool // half-open: single trial in flight
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	cfg.withDefaults()
	return &Breaker{name: name, cfg: cfg, clk: cfg.Clock}
}

// State reports the current state, applying the open -> half-open
// timer if it has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.clk.Now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.transition(StateHalfOpen)
	}
	return b.state
}

// Do runs fn under the breaker. The returned error is fn's own error,
// ErrTimeout, or ErrOpen (no call attempted).
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	callErr := b.call(ctx, fn)
	b.record(callErr == nil, probe)
	return callErr
}

// admit decides whether a call may proceed. In half-open state only
// the winner of the CAS on the probe flag gets through.
func (b *Breaker) admit() (probe bool, err error) {
	switch b.State() {
	case StateClosed:
		return false, nil
	case StateHalfOpen:
		if b.probing.CompareAndSwap(false, true) {
			return true, nil
		}
		return false, ErrOpen
	default:
		return false, ErrOpen
	}
}

// call runs fn with the per-call timeout. On timeout the inner
// context is cancelled and the (buffered) result channel is abandoned
// so a late completion never reaches the accounting.
func (b *Breaker) call(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(cctx) }()

	timer := b.clk.Timer(b.cfg.Timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrTimeout, b.cfg.Timeout)
	}
}

func (b *Breaker) record(ok, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		// Half-open trial decides the next state outright.
		if ok {
			b.reset()
			b.transition(StateClosed)
		} else {
			b.openedAt = b.clk.Now()
			b.transition(StateOpen)
		}
		b.probing.Store(false)
		return
	}

	if b.state != StateClosed {
		// Tripped by a concurrent call after this one was admitted;
		// its outcome no longer matters.
		return
	}

	cur := b.currentBucket()
	if ok {
		cur.success++
	} else {
		cur.failure++
	}

	success, failure := b.windowCounts()
	total := success + failure
	if total >= b.cfg.MinRequests &&
		float64(failure)/float64(total) >= b.cfg.ErrorThreshold {
		b.openedAt = b.clk.Now()
		b.transition(StateOpen)
	}
}

// currentBucket rotates the ring so each bucket covers Window/10.
func (b *Breaker) currentBucket() *bucket {
	now := b.clk.Now()
	span := b.cfg.Window / windowBuckets
	idx := int((now.UnixNano() / int64(span)) % windowBuckets)
	if idx < 0 {
		idx += windowBuckets
	}
	cur := &b.buckets[idx]
	if now.Sub(cur.start) >= span {
		*cur = bucket{start: now.Truncate(span)}
	}
	return cur
}

func (b *Breaker) windowCounts() (success, failure int) {
	now := b.clk.Now()
	for i := range b.buckets {
		if now.Sub(b.buckets[i].start) < b.cfg.Window {
			success += b.buckets[i].success
			failure += b.buckets[i].failure
		}
	}
	return success, failure
}

func (b *Breaker) reset() {
	b.buckets = [windowBuckets]bucket{}
}

// transition is the only place state changes; callers hold b.mu.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	logger.Warn("circuit breaker state change",
		zap.String("service", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
}
