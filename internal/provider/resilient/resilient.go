// Package resilient wraps any provider.Provider with retry, a per-agent
// circuit breaker, and conversation-store error surfacing. Two layers of
// retry exist in the system: this package retries transient I/O; the
// pipeline separately retries on semantic rejection (GATE says no) via
// RepeatPipeline. Keep them separate.
package resilient

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/routa-dev/routa/internal/common/logger"
	"github.com/routa-dev/routa/internal/provider"
	"github.com/routa-dev/routa/internal/routaerr"
	"github.com/routa-dev/routa/internal/store"
)

// BackoffPolicy configures exponential backoff with jitter.
type BackoffPolicy struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxAttempts int
}

// DefaultBackoff is 1s base delay, doubling, three attempts.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{BaseDelay: time.Second, Multiplier: 2, MaxAttempts: 3}
}

func (b BackoffPolicy) delay(attempt int) time.Duration {
	factor := math.Pow(b.Multiplier, float64(attempt))
	base := float64(b.BaseDelay) * factor
	jitter := 0.5 + jitterRand()*0.5 // [0.5, 1.0) of base, avoids thundering herd
	return time.Duration(base * jitter)
}

// jitterRand is overridable by tests; defaults to math/rand's automatically
// seeded global source, so concurrent retries spread out.
var jitterRand = rand.Float64

const (
	circuitFailureThreshold = 5
	circuitHalfOpenAfter    = 30 * time.Second
	defaultTurnTimeout      = 10 * time.Minute
)

type circuitState struct {
	mu              sync.Mutex
	consecutiveFail int
	openedAt        time.Time
	open            bool
}

func (c *circuitState) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFail = 0
	c.open = false
}

func (c *circuitState) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFail++
	if c.consecutiveFail >= circuitFailureThreshold {
		c.open = true
		c.openedAt = time.Now()
	}
}

// allow reports whether a call may proceed: closed, or open-but-past the
// half-open probe window (in which case the circuit is tentatively allowed
// through; recordSuccess/recordFailure decide whether it re-closes).
func (c *circuitState) allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return true
	}
	return time.Since(c.openedAt) >= circuitHalfOpenAfter
}

// Wrapper is a resilient provider.Provider decorator.
type Wrapper struct {
	inner         provider.Provider
	backoff       BackoffPolicy
	turnTimeout   time.Duration
	conversations store.ConversationStore
	log           *logger.Logger

	mu       sync.Mutex
	circuits map[string]*circuitState // keyed by agentID
}

var _ provider.Provider = (*Wrapper)(nil)

// New wraps inner with retry + circuit breaking. conversations receives the
// final ERROR message on exhausted retries (may be nil to skip that step).
func New(inner provider.Provider, conversations store.ConversationStore, log *logger.Logger) *Wrapper {
	return &Wrapper{
		inner:         inner,
		backoff:       DefaultBackoff(),
		turnTimeout:   defaultTurnTimeout,
		conversations: conversations,
		log:           log,
		circuits:      make(map[string]*circuitState),
	}
}

func (w *Wrapper) circuitFor(agentID string) *circuitState {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.circuits[agentID]
	if !ok {
		c = &circuitState{}
		w.circuits[agentID] = c
	}
	return c
}

func (w *Wrapper) Run(ctx context.Context, role provider.Role, agentID, prompt string) (string, error) {
	return w.call(ctx, agentID, func(ctx context.Context) (string, error) {
		return w.inner.Run(ctx, role, agentID, prompt)
	})
}

func (w *Wrapper) RunStreaming(ctx context.Context, role provider.Role, agentID, prompt string, onChunk provider.OnChunk) (string, error) {
	return w.call(ctx, agentID, func(ctx context.Context) (string, error) {
		return w.inner.RunStreaming(ctx, role, agentID, prompt, onChunk)
	})
}

func (w *Wrapper) call(ctx context.Context, agentID string, fn func(context.Context) (string, error)) (string, error) {
	circuit := w.circuitFor(agentID)
	if !circuit.allow() {
		return "", routaerr.CircuitOpen(agentID)
	}

	var lastErr error
	for attempt := 0; attempt < w.backoff.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return "", routaerr.Cancelled()
		}

		attemptCtx := ctx
		cancel := func() {}
		if w.turnTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, w.turnTimeout)
		}
		out, err := fn(attemptCtx)
		timedOut := attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
		cancel()
		if err == nil {
			circuit.recordSuccess()
			return out, nil
		}
		if timedOut {
			// A turn exceeding its deadline is transient regardless of how
			// the inner provider classified the context error.
			err = routaerr.Transient(err)
		}

		lastErr = err
		if !routaerr.IsTransient(err) {
			// Fatal (validation, no-suitable-provider, cancelled): fail fast.
			if routaerr.IsCancelled(err) {
				return "", err
			}
			circuit.recordFailure()
			w.surfaceError(ctx, agentID, err)
			return "", err
		}

		circuit.recordFailure()
		if attempt < w.backoff.MaxAttempts-1 {
			select {
			case <-time.After(w.backoff.delay(attempt)):
			case <-ctx.Done():
				return "", routaerr.Cancelled()
			}
		}
	}

	w.surfaceError(ctx, agentID, lastErr)
	return "", lastErr
}

func (w *Wrapper) surfaceError(ctx context.Context, agentID string, cause error) {
	if w.log != nil {
		w.log.WithAgentID(agentID).WithError(cause).Warn("provider call failed, surfacing to conversation")
	}
	if w.conversations == nil {
		return
	}
	_ = w.conversations.Append(ctx, &store.Message{
		AgentID: agentID,
		Role:    store.MessageRoleTool,
		Content: "ERROR: " + cause.Error(),
	})
}

func (w *Wrapper) IsHealthy(agentID string) bool { return w.inner.IsHealthy(agentID) }
func (w *Wrapper) Interrupt(agentID string)       { w.inner.Interrupt(agentID) }
func (w *Wrapper) Cleanup(agentID string) {
	w.inner.Cleanup(agentID)
	w.mu.Lock()
	delete(w.circuits, agentID)
	w.mu.Unlock()
}
func (w *Wrapper) Shutdown()                          { w.inner.Shutdown() }
func (w *Wrapper) Capabilities() provider.Capabilities { return w.inner.Capabilities() }
