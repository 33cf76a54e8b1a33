package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"

	"github.com/wisdom-muso/laso/internal/metrics"
)

// CircuitBreakerHook implements redis.Hook so that a down or slow Redis fails
// fast instead of adding per-call latency to every cache refresh and snapshot
// read. While the circuit is open, reads of keys this process has written or
// read before are served from a short-lived in-process fallback, so snapshot
// priming keeps working through brief outages.
type CircuitBreakerHook struct {
	cb       circuitbreaker.CircuitBreaker[any]
	fallback *fallbackStore
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

// fallbackStore holds the last known string values for reads while the
// circuit is open.
type fallbackStore struct {
	mu     sync.RWMutex
	values map[string]fallbackValue
}

type fallbackValue struct {
	data     string
	storedAt time.Time
}

const fallbackTTL = 5 * time.Minute

// NewCircuitBreakerHook builds a breaker that opens at a 60% failure rate
// over a 10s rolling window (min 5 requests), waits 30s before half-open,
// and closes again after one success.
func NewCircuitBreakerHook() *CircuitBreakerHook {
	cb := circuitbreaker.Builder[any]().
		WithFailureRateThreshold(60, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "redis",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			metrics.CircuitBreakerStateChanges.WithLabelValues("redis", e.NewState.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateToFloat(e.NewState))
		}).
		Build()

	return &CircuitBreakerHook{
		cb:       cb,
		fallback: &fallbackStore{values: make(map[string]fallbackValue)},
	}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

// DialHook wraps connection establishment with the circuit breaker.
func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
		}
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cb.RecordError(err)
			return nil, err
		}
		h.cb.RecordSuccess()
		return conn, nil
	}
}

// ProcessHook wraps command execution. goredis.Nil counts as success, not a
// failure of the backend.
func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return h.serveFallback(cmd)
		}

		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, goredis.Nil) {
			h.cb.RecordError(err)
			return err
		}
		h.cb.RecordSuccess()
		h.rememberValue(cmd)
		return err
	}
}

// ProcessPipelineHook wraps pipeline execution with the circuit breaker.
func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
		}
		err := next(ctx, cmds)
		if err != nil {
			h.cb.RecordError(err)
			return err
		}
		h.cb.RecordSuccess()
		return nil
	}
}

// serveFallback answers reads from the in-process store while the circuit is
// open. Writes and everything else fail fast.
func (h *CircuitBreakerHook) serveFallback(cmd goredis.Cmder) error {
	if cmd.Name() == "get" {
		if c, ok := cmd.(*goredis.StringCmd); ok {
			if value, found := h.lastKnown(cmd); found {
				slog.Debug("Circuit breaker open, serving cached value", "key", cmd.Args()[1])
				c.SetVal(value)
				return nil
			}
		}
	}
	return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
}

// rememberValue records string values flowing through get and set commands so
// they can back reads while the circuit is open.
func (h *CircuitBreakerHook) rememberValue(cmd goredis.Cmder) {
	args := cmd.Args()
	if len(args) < 2 {
		return
	}
	key := fmt.Sprintf("%v", args[1])

	var value string
	switch cmd.Name() {
	case "get":
		c, ok := cmd.(*goredis.StringCmd)
		if !ok {
			return
		}
		value, _ = c.Result()
	case "set":
		if len(args) < 3 {
			return
		}
		value = fmt.Sprintf("%v", args[2])
	default:
		return
	}
	if value == "" {
		return
	}

	h.fallback.mu.Lock()
	h.fallback.values[key] = fallbackValue{data: value, storedAt: time.Now()}
	h.fallback.mu.Unlock()
}

func (h *CircuitBreakerHook) lastKnown(cmd goredis.Cmder) (string, bool) {
	args := cmd.Args()
	if len(args) < 2 {
		return "", false
	}
	key := fmt.Sprintf("%v", args[1])

	h.fallback.mu.RLock()
	defer h.fallback.mu.RUnlock()

	cached, ok := h.fallback.values[key]
	if !ok || time.Since(cached.storedAt) > fallbackTTL {
		return "", false
	}
	return cached.data, true
}

// State exposes the current breaker state for monitoring and tests.
func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}
