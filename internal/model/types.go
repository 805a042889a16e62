package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Notification types pushed by the Yandex.Market webhook API.
const (
	NotificationPing          = "PING"
	NotificationOrderCreated  = "ORDER_CREATED"
	NotificationStatusUpdated = "ORDER_STATUS_UPDATED"
)

// FlexID tolerates both JSON string and JSON number forms. Yandex sends
// order and campaign ids as numbers; everything downstream treats them as
// opaque strings.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) MarshalJSON() ([]byte, error) { return json.Marshal(string(f)) }

func (f FlexID) String() string { return string(f) }

// OrderItem is one line of a marketplace order. Items arrive only on
// ORDER_CREATED notifications, never on status updates.
type OrderItem struct {
	OfferID string `json:"offerId"`
	Count   int    `json:"count"`
}

// Quantity returns the item count, defaulting to 1 the way the upstream
// API documents absent counts.
func (i OrderItem) Quantity() int {
	if i.Count <= 0 {
		return 1
	}
	return i.Count
}

// Notification is an inbound webhook event. Unknown fields are ignored so
// additive upstream schema changes never break decoding.
type Notification struct {
	NotificationType string      `json:"notificationType"`
	OrderID          FlexID      `json:"orderId"`
	CampaignID       FlexID      `json:"campaignId,omitempty"`
	Status           string      `json:"status,omitempty"`
	NewStatus        string      `json:"newStatus,omitempty"`
	Items            []OrderItem `json:"items,omitempty"`
	CreatedAt        string      `json:"createdAt,omitempty"`
}

// EffectiveStatus returns the order status regardless of which field the
// upstream used; Yandex has shipped both.
func (n Notification) EffectiveStatus() string {
	if n.Status != "" {
		return n.Status
	}
	return n.NewStatus
}

// ExternalKeyPrefix distinguishes documents created by this integration in
// MoySklad. Keys are never reused across orders.
const ExternalKeyPrefix = "YM-"

// ExternalKey derives the cross-system idempotency key for an order.
func ExternalKey(orderID FlexID) string { return ExternalKeyPrefix + string(orderID) }

// Position is a warehouse document line: a resolved MoySklad product and a
// quantity.
type Position struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Transition names used in the journal, metrics and the event stream.
const (
	TransitionCache   = "cache_items"
	TransitionReserve = "reserve"
	TransitionShip    = "ship"
	TransitionCancel  = "cancel"
	TransitionIgnore  = "ignore"
)

// JournalEntry records one handled notification for the admin journal.
type JournalEntry struct {
	ID               string `json:"id"`
	ExternalNumber   string `json:"externalNumber"`
	OrderID          string `json:"orderId"`
	NotificationType string `json:"notificationType"`
	OrderStatus      string `json:"orderStatus,omitempty"`
	Transition       string `json:"transition"`
	Outcome          string `json:"outcome"`
	EntityID         string `json:"entityId,omitempty"`
	Error            string `json:"error,omitempty"`
	ReceivedAt       string `json:"receivedAt"`
}

// JournalQuery filters admin journal listings.
type JournalQuery struct {
	ExternalNumber string
	Transition     string
	Outcome        string
	Cursor         string
	Limit          int
}

// OrderEvent is published to the broker after every transition.
type OrderEvent struct {
	OrderID        string `json:"orderId"`
	ExternalNumber string `json:"externalNumber"`
	Transition     string `json:"transition"`
	Outcome        string `json:"outcome"`
	EntityID       string `json:"entityId,omitempty"`
	TS             string `json:"ts"`
}

// ParseLimit parses a query-string limit, clamping to [1, max].
func ParseLimit(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
