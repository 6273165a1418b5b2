// Package identity adapts the identity providers the app can run against:
// the hosted auth API and a self-hosted provider backed by the local store.
package identity

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/naveenspark/twofold/pkg/domain"
)

// ErrInvalidCredentials is returned by SignIn for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrNotConfirmed is returned by SignIn while the email is unconfirmed.
var ErrNotConfirmed = errors.New("email not confirmed")

// Provider is the identity store as the rest of the app sees it.
type Provider interface {
	// CreateIdentity registers an unconfirmed identity. It returns an error
	// wrapping domain.ErrDuplicateIdentity when the email is taken.
	CreateIdentity(ctx context.Context, email, password string, metadata map[string]string) (domain.Identity, error)
	SignIn(ctx context.Context, email, password string) (domain.Session, error)
	SignOut(ctx context.Context) error
	// CurrentSession returns nil when nobody is signed in.
	CurrentSession(ctx context.Context) (*domain.Session, error)
	Lookup(ctx context.Context, id uuid.UUID) (domain.Identity, error)
	// Subscribe returns a channel of auth events and a function that
	// cancels the subscription.
	Subscribe() (<-chan domain.AuthEvent, func())
}

// Notifier fans auth events out to subscribers. Slow subscribers miss
// events rather than block the publisher.
type Notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]chan domain.AuthEvent
}

// Subscribe registers a new listener.
func (n *Notifier) Subscribe() (<-chan domain.AuthEvent, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]chan domain.AuthEvent)
	}
	id := n.next
	n.next++
	ch := make(chan domain.AuthEvent, 8)
	n.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber.
func (n *Notifier) Publish(ev domain.AuthEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("[identity] dropped %s event for a slow subscriber", ev.Kind)
		}
	}
}
