package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Clock is the time source of the rate limiter
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock uses the wall clock
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RateLimiter enforces a minimum interval between requests to the same host
type RateLimiter struct {
	hostLastRequest   map[string]time.Time // hostname -> end of last request attempt
	hostLastRequestMu sync.Mutex
	jitterFraction    float64 // extra wait of up to this fraction of the interval
	clock             Clock
	rand              func() float64
	log               *logrus.Entry
}

// NewRateLimiter creates a RateLimiter. A nil clock means RealClock.
func NewRateLimiter(clock Clock, jitterFraction float64, log *logrus.Entry) *RateLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	return &RateLimiter{
		hostLastRequest: make(map[string]time.Time),
		jitterFraction:  jitterFraction,
		clock:           clock,
		rand:            rand.Float64,
		log:             log,
	}
}

// ApplyDelay blocks until minDelay has passed since the last request to host.
// Jitter only ever lengthens the wait. Returns ctx.Err() if cancelled while waiting.
func (rl *RateLimiter) ApplyDelay(ctx context.Context, host string, minDelay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if minDelay <= 0 {
		return nil
	}

	rl.hostLastRequestMu.Lock()
	lastReqTime, exists := rl.hostLastRequest[host]
	rl.hostLastRequestMu.Unlock()
	if !exists {
		return nil
	}

	elapsed := rl.clock.Now().Sub(lastReqTime)
	if elapsed >= minDelay {
		return nil
	}
	sleep := minDelay - elapsed
	if rl.jitterFraction > 0 {
		sleep += time.Duration(rl.rand() * rl.jitterFraction * float64(minDelay))
	}

	rl.log.WithFields(logrus.Fields{
		"host": host, "sleep": sleep, "required_delay": minDelay, "elapsed": elapsed,
	}).Debug("Rate limit applying sleep")

	select {
	case <-rl.clock.After(sleep):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateLastRequestTime records now as the last request time for host.
// Call it after the request attempt finishes.
func (rl *RateLimiter) UpdateLastRequestTime(host string) {
	now := rl.clock.Now()
	rl.hostLastRequestMu.Lock()
	rl.hostLastRequest[host] = now
	rl.hostLastRequestMu.Unlock()
}
