package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker gobreaker с экспортом состояния в Prometheus.
type CircuitBreaker struct {
	*gobreaker.CircuitBreaker
	name string
}

func NewCircuitBreaker(name string, log *zap.Logger) *CircuitBreaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			CircuitBreakerState.WithLabelValues(Service, cbName).Set(stateValue(to))
			log.Info("circuit breaker state changed",
				zap.String("circuit", cbName),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	CircuitBreakerState.WithLabelValues(Service, name).Set(0)
	return &CircuitBreaker{CircuitBreaker: cb, name: name}
}

func (cb *CircuitBreaker) Execute(fn func() (any, error)) (any, error) {
	res, err := cb.CircuitBreaker.Execute(fn)
	if err != nil {
		CircuitBreakerFailures.WithLabelValues(Service, cb.name).Inc()
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, cb.name)
	}
	return res, err
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	}
	return 0
}
