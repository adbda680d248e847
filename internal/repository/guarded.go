package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/stroke-risk-server/internal/domain"
)

// GuardedStore wraps a run store with a circuit breaker so that an
// unavailable database stops costing a connection timeout per prediction.
// While the breaker is open writes fail immediately with
// gobreaker.ErrOpenState.
type GuardedStore struct {
	next    domain.RunRepository
	breaker *gobreaker.CircuitBreaker
}

// NewGuardedStore wraps next. failures is the number of consecutive failed
// calls that opens the breaker; timeout is how long it stays open.
func NewGuardedStore(next domain.RunRepository, failures uint32, timeout time.Duration, logger *logrus.Logger) *GuardedStore {
	if failures == 0 {
		failures = 5
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "RunStore",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &GuardedStore{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// State reports the breaker state.
func (g *GuardedStore) State() gobreaker.State {
	return g.breaker.State()
}

// Save stores a run through the breaker.
func (g *GuardedStore) Save(ctx context.Context, run *domain.Run) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.next.Save(ctx, run)
	})
	if err != nil {
		return fmt.Errorf("run store: %w", err)
	}
	return nil
}

// Get retrieves a run through the breaker.
func (g *GuardedStore) Get(ctx context.Context, id string) (*domain.Run, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Get(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("run store: %w", err)
	}
	return result.(*domain.Run), nil
}

// List lists runs through the breaker.
func (g *GuardedStore) List(ctx context.Context, limit, offset int) ([]*domain.Run, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.List(ctx, limit, offset)
	})
	if err != nil {
		return nil, fmt.Errorf("run store: %w", err)
	}
	return result.([]*domain.Run), nil
}

// Count counts runs through the breaker.
func (g *GuardedStore) Count(ctx context.Context) (int64, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Count(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("run store: %w", err)
	}
	return result.(int64), nil
}

// Close closes the wrapped store.
func (g *GuardedStore) Close() error {
	return g.next.Close()
}
