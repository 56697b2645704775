// Package webhook receives Graph change notifications and turns them into
// delta syncs.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tonimelisma/graphsync/internal/graph"
	"github.com/tonimelisma/graphsync/internal/sync"
)

// maxNotificationBytes caps a notification body.
const maxNotificationBytes = 1 << 20

// validationTokenParam is the query key Graph sends during the subscription
// handshake.
const validationTokenParam = "validationToken"

// ErrMalformedNotification is returned for bodies that are not a
// notification collection.
var ErrMalformedNotification = errors.New("webhook: malformed notification body")

// Syncer runs one delta sync.
type Syncer interface {
	SyncFromCursor(ctx context.Context) (sync.Result, error)
}

// ClientStateVerifier checks the shared secret carried by a notification.
type ClientStateVerifier interface {
	VerifyClientState(subscriptionID, clientState string) bool
}

// Notification is one change notification. Only the fields used for
// verification and logging are decoded.
type Notification struct {
	SubscriptionID string       `json:"subscriptionId"`
	ClientState    string       `json:"clientState"`
	ChangeType     string       `json:"changeType"`
	Resource       string       `json:"resource"`
	TenantID       string       `json:"tenantId"`
	ResourceData   ResourceData `json:"resourceData"`
}

// ResourceData identifies the changed object.
type ResourceData struct {
	ID string `json:"id"`
}

// DeliveryResponse is the JSON body returned for a processed delivery.
type DeliveryResponse struct {
	Accepted       int `json:"accepted"`
	Ignored        int `json:"ignored"`
	ItemsProcessed int `json:"itemsProcessed"`
}

// DispatcherStats is a snapshot of cumulative dispatcher counters.
type DispatcherStats struct {
	Validations    int64 `json:"validations"`
	Deliveries     int64 `json:"deliveries"`
	Accepted       int64 `json:"accepted"`
	Ignored        int64 `json:"ignored"`
	Malformed      int64 `json:"malformed"`
	SyncFailures   int64 `json:"syncFailures"`
	AuthFailures   int64 `json:"authFailures"`
	SyncsTriggered int64 `json:"syncsTriggered"`
}

// Dispatcher handles POSTs to the notification URL: the validation
// handshake and notification deliveries.
type Dispatcher struct {
	syncer   Syncer
	verifier ClientStateVerifier
	logger   *slog.Logger

	validations    atomic.Int64
	deliveries     atomic.Int64
	accepted       atomic.Int64
	ignored        atomic.Int64
	malformed      atomic.Int64
	syncFailures   atomic.Int64
	authFailures   atomic.Int64
	syncsTriggered atomic.Int64
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(syncer Syncer, verifier ClientStateVerifier, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		syncer:   syncer,
		verifier: verifier,
		logger:   logger,
	}
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// Presence of the key selects validation mode, even with an empty value.
	if _, ok := query[validationTokenParam]; ok {
		d.handleValidation(w, query.Get(validationTokenParam))
		return
	}

	d.handleDelivery(w, r)
}

func (d *Dispatcher) handleValidation(w http.ResponseWriter, token string) {
	d.validations.Add(1)
	d.logger.Info("subscription validation handshake", slog.Int("token_len", len(token)))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, token) //nolint:errcheck // client gone, nothing to do
}

func (d *Dispatcher) handleDelivery(w http.ResponseWriter, r *http.Request) {
	d.deliveries.Add(1)

	logger := d.logger.With(slog.String("delivery_id", uuid.NewString()))

	notifications, err := decodeNotifications(http.MaxBytesReader(w, r.Body, maxNotificationBytes))
	if err != nil {
		d.malformed.Add(1)
		logger.Warn("rejecting notification delivery", slog.String("error", err.Error()))
		http.Error(w, "malformed notification body", http.StatusBadRequest)

		return
	}

	var resp DeliveryResponse

	for i := range notifications {
		n := &notifications[i]

		if !d.verifier.VerifyClientState(n.SubscriptionID, n.ClientState) {
			resp.Ignored++
			logger.Warn("ignoring notification with unrecognized client state",
				slog.String("subscription_id", n.SubscriptionID),
				slog.String("resource", n.Resource),
			)

			continue
		}

		resp.Accepted++
		logger.Info("notification received",
			slog.String("subscription_id", n.SubscriptionID),
			slog.String("change_type", n.ChangeType),
			slog.String("resource", n.Resource),
			slog.String("object_id", n.ResourceData.ID),
		)
	}

	d.accepted.Add(int64(resp.Accepted))
	d.ignored.Add(int64(resp.Ignored))

	if resp.Accepted == 0 {
		logger.Info("no acceptable notifications in delivery", slog.Int("ignored", resp.Ignored))
		writeJSON(w, http.StatusAccepted, resp)

		return
	}

	// The walk outlives a client that hangs up mid-request.
	d.syncsTriggered.Add(1)

	res, err := d.syncer.SyncFromCursor(context.WithoutCancel(r.Context()))
	if err != nil {
		d.syncFailures.Add(1)

		status := http.StatusBadGateway
		if graph.IsAuthFailure(err) {
			d.authFailures.Add(1)
			status = http.StatusServiceUnavailable
		}

		logger.Error("sync after notification failed",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		http.Error(w, "sync failed", status)

		return
	}

	resp.ItemsProcessed = res.ItemsProcessed

	logger.Info("notification delivery processed",
		slog.Int("accepted", resp.Accepted),
		slog.Int("ignored", resp.Ignored),
		slog.Int("items_processed", res.ItemsProcessed),
		slog.Bool("coalesced", res.Coalesced),
	)

	writeJSON(w, http.StatusOK, resp)
}

// decodeNotifications parses a notification collection. A body without a
// value array, or with anything after the collection, is malformed.
func decodeNotifications(body io.Reader) ([]Notification, error) {
	var coll struct {
		Value *[]Notification `json:"value"`
	}

	dec := json.NewDecoder(body)
	if err := dec.Decode(&coll); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedNotification, err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after notification collection", ErrMalformedNotification)
	}

	if coll.Value == nil {
		return nil, fmt.Errorf("%w: missing value array", ErrMalformedNotification)
	}

	return *coll.Value, nil
}

// Stats returns cumulative counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Validations:    d.validations.Load(),
		Deliveries:     d.deliveries.Load(),
		Accepted:       d.accepted.Load(),
		Ignored:        d.ignored.Load(),
		Malformed:      d.malformed.Load(),
		SyncFailures:   d.syncFailures.Load(),
		AuthFailures:   d.authFailures.Load(),
		SyncsTriggered: d.syncsTriggered.Load(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client gone, nothing to do
}
