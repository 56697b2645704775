// Package subscription owns the set of live Graph change-notification
// subscriptions and the background scheduler that keeps them from lapsing.
package subscription

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/graphsync/internal/graph"
)

// ErrUnknownSubscription is returned by Renew for an id the registry has
// never stored.
var ErrUnknownSubscription = errors.New("subscription: unknown subscription id")

// Client is the slice of the Graph API the registry needs.
type Client interface {
	CreateSubscription(ctx context.Context, req graph.SubscriptionRequest) (*graph.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, expiresAt time.Time) (*graph.Subscription, error)
}

// Subscription is the registry's copy of a live subscription.
type Subscription struct {
	ID              string    `json:"id"`
	Resource        string    `json:"resource"`
	ChangeType      string    `json:"changeType"`
	NotificationURL string    `json:"notificationUrl"`
	ExpiresAt       time.Time `json:"expiresAt"`

	// ClientState is the shared secret echoed back in every notification.
	// Never serialized.
	ClientState string `json:"-"`
}

// CreateRequest describes a new subscription. Lifetime is a hint: the
// registry caps it at the configured maximum.
type CreateRequest struct {
	Resource        string
	ChangeType      string
	NotificationURL string
	Lifetime        time.Duration
}

// Options tunes a Registry.
type Options struct {
	// MaxLifetime caps the requested lifetime. Zero means no cap.
	MaxLifetime time.Duration

	// ClientState, when set, is used for every subscription. Otherwise
	// each subscription gets a random one.
	ClientState string
}

// Registry is the single owner of the subscription set. A coarse mutex
// guards the map; remote calls run outside it.
type Registry struct {
	client  Client
	opts    Options
	logger  *slog.Logger
	nowFunc func() time.Time

	mu   stdsync.Mutex
	subs map[string]*Subscription

	firstCreate   stdsync.Once
	onFirstCreate func()
}

// NewRegistry returns an empty registry backed by client.
func NewRegistry(client Client, opts Options, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		client:  client,
		opts:    opts,
		logger:  logger,
		nowFunc: time.Now,
		subs:    make(map[string]*Subscription),
	}
}

// OnFirstCreate registers fn to run once, after the first subscription is
// successfully created. Must be called before Create.
func (r *Registry) OnFirstCreate(fn func()) {
	r.onFirstCreate = fn
}

// Create registers a subscription with Graph and stores it.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (Subscription, error) {
	lifetime := req.Lifetime
	if r.opts.MaxLifetime > 0 && lifetime > r.opts.MaxLifetime {
		r.logger.Info("capping subscription lifetime",
			slog.Duration("requested", lifetime),
			slog.Duration("max", r.opts.MaxLifetime),
		)

		lifetime = r.opts.MaxLifetime
	}

	if lifetime <= 0 {
		return Subscription{}, fmt.Errorf("subscription: lifetime must be positive, got %s", lifetime)
	}

	clientState := r.opts.ClientState
	if clientState == "" {
		clientState = uuid.NewString()
	}

	expiresAt := r.nowFunc().Add(lifetime)

	remote, err := r.client.CreateSubscription(ctx, graph.SubscriptionRequest{
		Resource:        req.Resource,
		ChangeType:      req.ChangeType,
		NotificationURL: req.NotificationURL,
		ClientState:     clientState,
		ExpiresAt:       expiresAt,
	})
	if err != nil {
		return Subscription{}, fmt.Errorf("subscription: creating %s subscription: %w", req.Resource, err)
	}

	sub := &Subscription{
		ID:              remote.ID,
		Resource:        firstNonEmpty(remote.Resource, req.Resource),
		ChangeType:      firstNonEmpty(remote.ChangeType, req.ChangeType),
		NotificationURL: firstNonEmpty(remote.NotificationURL, req.NotificationURL),
		ExpiresAt:       remote.ExpiresAt,
		ClientState:     firstNonEmpty(remote.ClientState, clientState),
	}

	if sub.ExpiresAt.IsZero() {
		sub.ExpiresAt = expiresAt
	}

	r.mu.Lock()
	r.subs[sub.ID] = sub
	out := *sub
	count := len(r.subs)
	r.mu.Unlock()

	r.logger.Info("subscription created",
		slog.String("subscription_id", out.ID),
		slog.String("resource", out.Resource),
		slog.Time("expires_at", out.ExpiresAt),
		slog.Int("active", count),
	)

	r.firstCreate.Do(func() {
		if r.onFirstCreate != nil {
			r.onFirstCreate()
		}
	})

	return out, nil
}

// Renew asks Graph to move the subscription's expiry to newExpiry. On
// failure the stored entry is left untouched. The stored expiry never
// moves backwards.
func (r *Registry) Renew(ctx context.Context, id string, newExpiry time.Time) (Subscription, error) {
	r.mu.Lock()
	_, ok := r.subs[id]
	r.mu.Unlock()

	if !ok {
		return Subscription{}, fmt.Errorf("%w: %s", ErrUnknownSubscription, id)
	}

	remote, err := r.client.UpdateSubscription(ctx, id, newExpiry)
	if err != nil {
		return Subscription{}, fmt.Errorf("subscription: renewing %s: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: %s", ErrUnknownSubscription, id)
	}

	if remote.ExpiresAt.After(sub.ExpiresAt) {
		sub.ExpiresAt = remote.ExpiresAt
	}

	return *sub, nil
}

// DueForRenewal returns every subscription expiring at or before
// now+window, in no particular order.
func (r *Registry) DueForRenewal(now time.Time, window time.Duration) []Subscription {
	deadline := now.Add(window)

	r.mu.Lock()
	defer r.mu.Unlock()

	var due []Subscription

	for _, sub := range r.subs {
		if !sub.ExpiresAt.After(deadline) {
			due = append(due, *sub)
		}
	}

	return due
}

// VerifyClientState reports whether a notification carrying clientState
// may be trusted. A known subscriptionID must match its own secret; an
// absent or unknown one must match the secret of some live subscription.
func (r *Registry) VerifyClientState(subscriptionID, clientState string) bool {
	if clientState == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sub, ok := r.subs[subscriptionID]; ok {
		return secretEqual(sub.ClientState, clientState)
	}

	for _, sub := range r.subs {
		if secretEqual(sub.ClientState, clientState) {
			return true
		}
	}

	return false
}

// List returns a snapshot of all subscriptions sorted by id.
func (r *Registry) List() []Subscription {
	r.mu.Lock()
	out := make([]Subscription, 0, len(r.subs))

	for _, sub := range r.subs {
		out = append(out, *sub)
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b Subscription) int {
		return strings.Compare(a.ID, b.ID)
	})

	return out
}

// Len returns the number of stored subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.subs)
}

func secretEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}

	return b
}
