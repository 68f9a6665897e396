// Package circuitbreaker protects calls to flaky external collaborators.
// One failing exchange should trip its own breaker instead of slowing every
// valuation request with doomed retries.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/balance-tracker/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means the circuit is closed and requests are allowed
	StateClosed State = "closed"
	// StateOpen means the circuit is open and requests are blocked
	StateOpen State = "open"
	// StateHalfOpen means the circuit is testing if the service has recovered
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config configures a circuit breaker
type Config struct {
	Name        string
	MaxFailures int           // Consecutive failures before opening
	Timeout     time.Duration // Time to wait before attempting half-open
	HalfOpenMax int           // Successes required in half-open to close
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:        name,
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		HalfOpenMax: 2,
	}
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	name        string
	maxFailures int
	timeout     time.Duration
	halfOpenMax int

	mu               sync.Mutex
	state            State
	consecutiveFails int
	halfOpenOK       int
	lastStateChange  time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	return &CircuitBreaker{
		name:            config.Name,
		maxFailures:     config.MaxFailures,
		timeout:         config.Timeout,
		halfOpenMax:     config.HalfOpenMax,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs fn under circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()
	cb.afterRequest(ctx, err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.lastStateChange) <= cb.timeout {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.halfOpenOK = 0
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(ctx context.Context, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	logger := logging.FromContext(ctx).WithField("circuitBreaker", cb.name)

	if err != nil {
		cb.consecutiveFails++
		switch cb.state {
		case StateHalfOpen:
			cb.setState(StateOpen)
			logger.Warn("circuit breaker reopened after failure in half-open state")
		case StateClosed:
			if cb.consecutiveFails >= cb.maxFailures {
				cb.setState(StateOpen)
				logger.WithField("failures", cb.consecutiveFails).Warn("circuit breaker opened")
			}
		}
		return
	}

	cb.consecutiveFails = 0
	if cb.state == StateHalfOpen {
		cb.halfOpenOK++
		if cb.halfOpenOK >= cb.halfOpenMax {
			cb.setState(StateClosed)
			logger.Info("circuit breaker closed after recovery")
		}
	}
}

func (cb *CircuitBreaker) setState(state State) {
	cb.state = state
	cb.lastStateChange = time.Now()
}
