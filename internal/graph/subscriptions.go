package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// subscriptionPayload mirrors the Graph subscription resource for both
// request and response bodies.
type subscriptionPayload struct {
	ID                 string    `json:"id,omitempty"`
	Resource           string    `json:"resource,omitempty"`
	ChangeType         string    `json:"changeType,omitempty"`
	NotificationURL    string    `json:"notificationUrl,omitempty"`
	ClientState        string    `json:"clientState,omitempty"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
}

func (p *subscriptionPayload) toSubscription() *Subscription {
	return &Subscription{
		ID:              p.ID,
		Resource:        p.Resource,
		ChangeType:      p.ChangeType,
		NotificationURL: p.NotificationURL,
		ClientState:     p.ClientState,
		ExpiresAt:       p.ExpirationDateTime,
	}
}

// CreateSubscription registers a new subscription. Graph validates the
// notification URL synchronously, so the webhook endpoint must already be
// answering validation requests when this is called.
func (c *Client) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error) {
	c.logger.Info("creating subscription",
		slog.String("resource", req.Resource),
		slog.String("change_type", req.ChangeType),
		slog.String("notification_url", req.NotificationURL),
		slog.Time("expires_at", req.ExpiresAt),
	)

	body, err := json.Marshal(subscriptionPayload{
		Resource:           req.Resource,
		ChangeType:         req.ChangeType,
		NotificationURL:    req.NotificationURL,
		ClientState:        req.ClientState,
		ExpirationDateTime: req.ExpiresAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling subscription request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, "/subscriptions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var sp subscriptionPayload
	if err := json.NewDecoder(resp.Body).Decode(&sp); err != nil {
		return nil, fmt.Errorf("graph: decoding subscription response: %w", err)
	}

	sub := sp.toSubscription()

	// The response echoes clientState only for some resources.
	if sub.ClientState == "" {
		sub.ClientState = req.ClientState
	}

	return sub, nil
}

// UpdateSubscription moves the expiry of an existing subscription.
func (c *Client) UpdateSubscription(ctx context.Context, id string, expiresAt time.Time) (*Subscription, error) {
	c.logger.Debug("updating subscription",
		slog.String("subscription_id", id),
		slog.Time("expires_at", expiresAt),
	)

	body, err := json.Marshal(subscriptionPayload{ExpirationDateTime: expiresAt.UTC()})
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling subscription update: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPatch, "/subscriptions/"+url.PathEscape(id), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var sp subscriptionPayload
	if err := json.NewDecoder(resp.Body).Decode(&sp); err != nil {
		return nil, fmt.Errorf("graph: decoding subscription response: %w", err)
	}

	sub := sp.toSubscription()
	if sub.ID == "" {
		sub.ID = id
	}

	if sub.ExpiresAt.IsZero() {
		sub.ExpiresAt = expiresAt
	}

	return sub, nil
}
