package workflow

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a failed call is repeated. MaxRetries of 2
// means at most three attempts.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// Do runs op until it succeeds, retries are exhausted or ctx ends. It
// returns the number of attempts made and the last error.
func (p RetryPolicy) Do(ctx context.Context, op func() error) (int, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Backoff
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = time.Millisecond
	}
	eb.MaxElapsedTime = 0

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return op()
	}, b)
	return attempts, err
}
