// Package ratelimit implements the token bucket rate limiter guarding
// governed_federation_call against runaway per-agent request volume.
//
// This is a [DOMAIN] extension beyond spec.md §4: the base specification
// does not mandate rate limiting, but every FederationClient in this
// corpus sits behind a cost-weighted budget, so the kernel wiring
// reserves a RATE_LIMITED sub-reason under FEDERATION_ERROR
// (see internal/kernel and SPEC_FULL.md §4.14) for callers who choose to
// wire a Bucket in front of their FederationClient.
//
// Cost model:
//   - T0_LOW:         cost 1
//   - T1_STANDARD:    cost 2
//   - T2_HIGH_STAKES:  cost 5
//   - T3_REGULATED:    cost 10
//
// Rationale: higher-risk-tier calls consume more budget, preventing a
// burst of high-stakes federation calls from starving ordinary traffic.
// Refill restores the bucket to full capacity on each period rather than
// incrementally, matching the teacher's containment-budget behavior.
//
// Invariants:
//   - tokens ∈ [0, capacity] at all times.
//   - Consume() is atomic under mutex.
//   - Refill goroutine runs for the lifetime of the Bucket.
//   - No external dependencies: a rate limiter is pure arithmetic over a
//     timer and a mutex: no library in this corpus offers a meaningfully
//     better token-bucket primitive than hand-rolling one (see DESIGN.md).
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/acip-dev/fck/internal/manifest"
)

// CostModel defines the token cost for each risk tier. Costs must be
// positive integers.
var CostModel = map[manifest.RiskTier]int{
	manifest.T0Low:        1,
	manifest.T1Standard:   2,
	manifest.T2HighStakes: 5,
	manifest.T3Regulated:  10,
}

// Bucket is a thread-safe token bucket for rate-limiting governed calls.
type Bucket struct {
	mu           sync.Mutex
	capacity     int
	tokens       int
	refillPeriod time.Duration

	consumedTotal atomic.Uint64
	refillCount   atomic.Uint64

	stop chan struct{}
}

// New creates a Bucket with the given capacity and starts the refill
// goroutine. capacity and refillPeriod must be > 0. Call Close() to
// stop the refill goroutine.
func New(capacity int, refillPeriod time.Duration) *Bucket {
	if capacity <= 0 {
		panic("ratelimit.Bucket: capacity must be > 0")
	}
	if refillPeriod <= 0 {
		panic("ratelimit.Bucket: refillPeriod must be > 0")
	}
	b := &Bucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		stop:         make(chan struct{}),
	}
	go b.refillLoop()
	return b
}

func (b *Bucket) refillLoop() {
	ticker := time.NewTicker(b.refillPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			b.tokens = b.capacity
			b.mu.Unlock()
			b.refillCount.Add(1)
		case <-b.stop:
			return
		}
	}
}

// Consume attempts to consume cost tokens from the bucket. Returns true
// if the tokens were available and consumed.
func (b *Bucket) Consume(cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens >= cost {
		b.tokens -= cost
		b.consumedTotal.Add(uint64(cost))
		return true
	}
	return false
}

// ConsumeForRiskTier consumes the standard cost for tier. Tiers without
// a defined cost are treated as free.
func (b *Bucket) ConsumeForRiskTier(tier manifest.RiskTier) bool {
	cost, ok := CostModel[tier]
	if !ok {
		return true
	}
	return b.Consume(cost)
}

// Remaining returns the current token count.
func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Capacity returns the maximum token capacity.
func (b *Bucket) Capacity() int { return b.capacity }

// ConsumedTotal returns the lifetime total of tokens consumed.
func (b *Bucket) ConsumedTotal() uint64 { return b.consumedTotal.Load() }

// RefillCount returns the number of refill cycles completed.
func (b *Bucket) RefillCount() uint64 { return b.refillCount.Load() }

// Close stops the refill goroutine. Safe to call once.
func (b *Bucket) Close() { close(b.stop) }
