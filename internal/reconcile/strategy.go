package reconcile

import (
	"errors"
	"math"
	"time"

	"github.com/algoease/backend/internal/infra/algorand"
	"github.com/algoease/backend/internal/infra/storage"
)

// FailureCategory classifies a reconciliation failure.
type FailureCategory int

const (
	// CategoryTransient failures resolve by waiting (indexer lag, network).
	CategoryTransient FailureCategory = iota

	// CategoryPermanent failures will never resolve by retrying.
	CategoryPermanent
)

// Classifier maps an error to a failure category.
type Classifier func(err error) FailureCategory

// DefaultClassifier treats conflicts and fatal indexer answers as permanent,
// everything else (including not-yet-indexed) as transient.
func DefaultClassifier(err error) FailureCategory {
	if errors.Is(err, storage.ErrDuplicateBountyID) ||
		errors.Is(err, storage.ErrBountyNotFound) ||
		errors.Is(err, storage.ErrInvalidTransition) {
		return CategoryPermanent
	}
	if errors.Is(err, algorand.ErrNotFound) {
		return CategoryTransient
	}
	if algorand.ClassifyError(err) == algorand.ActionFatal {
		return CategoryPermanent
	}
	return CategoryTransient
}

// RetryStrategy defines how retries should be handled.
type RetryStrategy interface {
	// GetDelay returns the delay for the given attempt (0-indexed).
	GetDelay(attempt int) time.Duration

	// ShouldRetry checks if we should retry based on the error and attempt count.
	ShouldRetry(err error, attempt int) bool
}

// ExponentialBackoff implements a standard backoff strategy.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Classifier   Classifier
}

// DefaultBackoff returns sensible defaults for indexer reconciliation.
// 2s, 4s, 8s, ... capped at 5m.
func DefaultBackoff(classifier Classifier) *ExponentialBackoff {
	if classifier == nil {
		classifier = DefaultClassifier
	}
	return &ExponentialBackoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     5 * time.Minute,
		MaxAttempts:  8,
		Classifier:   classifier,
	}
}

// GetDelay calculates delay: InitialDelay * 2^attempt
func (s *ExponentialBackoff) GetDelay(attempt int) time.Duration {
	delay := float64(s.InitialDelay) * math.Pow(2, float64(attempt))
	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry checks if error is transient and max attempts not exceeded.
func (s *ExponentialBackoff) ShouldRetry(err error, attempt int) bool {
	if attempt >= s.MaxAttempts {
		return false
	}
	return s.Classifier(err) == CategoryTransient
}
