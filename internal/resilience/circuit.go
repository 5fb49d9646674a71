package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// BreakerState is the current mode of a Breaker.
type BreakerState int

const (
	// BreakerClosed lets calls through; the provider is considered healthy.
	BreakerClosed BreakerState = iota
	// BreakerOpen short-circuits calls after repeated transient failures.
	BreakerOpen
	// BreakerHalfOpen admits probe calls to test whether the provider
	// recovered.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned when a call is short-circuited. It is not
// transient: retry envelopes stop instead of hammering a provider that is
// already known to be down.
var ErrBreakerOpen = eris.New("resilience: breaker open")

// BreakerConfig bounds one provider's breaker.
type BreakerConfig struct {
	// Threshold is the consecutive-failure count that opens the breaker.
	// Default: 5.
	Threshold int

	// Cooldown is how long the breaker stays open before admitting a
	// probe. Default: 30s.
	Cooldown time.Duration

	// HalfOpenProbes is how many probes must succeed before the breaker
	// closes again. Default: 1.
	HalfOpenProbes int

	// ShouldTrip decides which errors count toward the threshold. Nil
	// means IsTransient: permanent failures (bad input, auth) never open
	// the breaker.
	ShouldTrip func(err error) bool

	// OnStateChange observes transitions, for logging.
	OnStateChange func(from, to BreakerState)
}

// Breaker protects one external provider. Consecutive transient failures
// open it; after the cooldown a probe decides whether it closes again.
type Breaker struct {
	cfg   BreakerConfig
	mu    sync.Mutex
	state BreakerState

	failures    int
	lastFailure time.Time
	probeWins   int

	// nowFunc is swapped in tests to step through the cooldown.
	nowFunc func() time.Time
}

// NewBreaker builds a breaker, filling config defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	return &Breaker{
		cfg:     cfg,
		state:   BreakerClosed,
		nowFunc: time.Now,
	}
}

// Execute runs fn unless the breaker is open, recording the outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	b.record(err)
	return err
}

// ExecuteVal is Execute for calls returning a value.
func ExecuteVal[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.admit(); err != nil {
		return zero, err
	}

	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// State reports the effective state, accounting for an elapsed cooldown.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && b.nowFunc().Sub(b.lastFailure) >= b.cfg.Cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	old := b.state
	b.state = BreakerClosed
	b.failures = 0
	b.probeWins = 0
	if old != BreakerClosed && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(old, BreakerClosed)
	}
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.nowFunc().Sub(b.lastFailure) >= b.cfg.Cooldown {
			b.shift(BreakerHalfOpen)
			return nil
		}
		return ErrBreakerOpen
	default:
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	trips := b.cfg.ShouldTrip
	if trips == nil {
		trips = IsTransient
	}

	if err == nil || !trips(err) {
		switch b.state {
		case BreakerHalfOpen:
			b.probeWins++
			if b.probeWins >= b.cfg.HalfOpenProbes {
				b.shift(BreakerClosed)
				b.failures = 0
				b.probeWins = 0
			}
		case BreakerClosed:
			b.failures = 0
		}
		return
	}

	b.failures++
	b.lastFailure = b.nowFunc()

	switch b.state {
	case BreakerClosed:
		if b.failures >= b.cfg.Threshold {
			b.shift(BreakerOpen)
		}
	case BreakerHalfOpen:
		// A failed probe reopens immediately.
		b.shift(BreakerOpen)
		b.probeWins = 0
	}
}

func (b *Breaker) shift(to BreakerState) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}

// BreakerSet holds one breaker per named provider, created on first use.
type BreakerSet struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      BreakerConfig
}

// NewBreakerSet builds a registry sharing one config across providers.
func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	return &BreakerSet{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for a provider, creating it if needed.
func (s *BreakerSet) Get(provider string) *Breaker {
	s.mu.RLock()
	b, ok := s.breakers[provider]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.breakers[provider]; ok {
		return b
	}
	b = NewBreaker(s.cfg)
	s.breakers[provider] = b
	return b
}

// States snapshots every provider's effective state.
func (s *BreakerSet) States() map[string]BreakerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := make(map[string]BreakerState, len(s.breakers))
	for name, b := range s.breakers {
		states[name] = b.State()
	}
	return states
}
