package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/naveenspark/twofold/internal/reconcile"
	"github.com/naveenspark/twofold/pkg/domain"
)

// ErrNotConfirmed is returned by WaitForConfirmation when the attempts run
// out before the identity is confirmed.
var ErrNotConfirmed = errors.New("identity not confirmed yet")

// RetryPolicy bounds how long WaitForConfirmation polls.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy polls for about ten minutes.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:  30,
	InitialDelay: 2 * time.Second,
	MaxDelay:     30 * time.Second,
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialDelay > 0 {
		b.InitialInterval = p.InitialDelay
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	return b
}

// WaitForConfirmation polls the identity store until identityID is
// confirmed, then reconciles it. The engine itself never retries; the
// policy lives here with the caller.
func (f *Flow) WaitForConfirmation(ctx context.Context, identityID uuid.UUID, policy RetryPolicy) (reconcile.Result, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	_, err := backoff.Retry(ctx, func() (domain.Identity, error) {
		identity, err := f.identities.Lookup(ctx, identityID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Identity{}, backoff.Permanent(err)
		}
		if err != nil {
			return domain.Identity{}, err
		}
		if !identity.Confirmed() {
			return domain.Identity{}, ErrNotConfirmed
		}
		return identity, nil
	},
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Printf("[flow] waiting for %s: %v (next check in %s)", identityID, err, next.Round(time.Millisecond))
		}),
	)
	if err != nil {
		return reconcile.Result{IdentityID: identityID}, fmt.Errorf("flow.WaitForConfirmation: %w", err)
	}
	return f.engine.Reconcile(ctx, identityID)
}
