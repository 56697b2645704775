package graph

import "time"

// Subscription is a Graph change-notification subscription as the API
// reports it after create or update.
type Subscription struct {
	ID              string
	Resource        string
	ChangeType      string
	NotificationURL string
	ClientState     string
	ExpiresAt       time.Time
}

// SubscriptionRequest carries the fields needed to register a new
// subscription.
type SubscriptionRequest struct {
	Resource        string
	ChangeType      string
	NotificationURL string
	ClientState     string
	ExpiresAt       time.Time
}

// ChangedItem is one directory object from a delta page. Only scalar
// properties are kept; nested objects and collections are dropped.
type ChangedItem struct {
	ID         string
	Attributes map[string]string // NFC-normalized
	Removed    bool              // "@removed" annotation present
}

// DeltaPage is one page of a delta walk. Exactly one of NextLink (more
// pages follow) or DeltaLink (walk complete) is normally set.
type DeltaPage struct {
	Items     []ChangedItem
	NextLink  string
	DeltaLink string
}
