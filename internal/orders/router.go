// Package orders is the notification router: it classifies inbound
// marketplace events and drives the reserve/ship/cancel transitions against
// MoySklad. The router itself stores no order state; durable state lives in
// the warehouse documents and volatile line items live in the cache.
package orders

import (
	"context"
	"errors"
	"log"
	"time"

	"marketsync/internal/cache"
	"marketsync/internal/config"
	"marketsync/internal/mapping"
	"marketsync/internal/metrics"
	"marketsync/internal/model"
	"marketsync/internal/moysklad"
	"marketsync/internal/store"
)

// Sentinel errors distinguish "never got items" from "got items, none map"
// in logs and the journal.
var (
	ErrNoCachedItems     = errors.New("no cached items found for order")
	ErrNoMappedPositions = errors.New("no mapped products found for order")
)

// Warehouse is the slice of the MoySklad client the router needs;
// *moysklad.Client satisfies it, tests use fakes.
type Warehouse interface {
	FindCustomerOrderByExternalNumber(ctx context.Context, externalNumber string) (*moysklad.Entity, error)
	FindDemandByExternalNumber(ctx context.Context, externalNumber string) (*moysklad.Entity, error)
	CreateCustomerOrder(ctx context.Context, externalNumber string, positions []model.Position, description string) (moysklad.Entity, error)
	CreateDemand(ctx context.Context, externalNumber string, positions []model.Position, description string) (moysklad.Entity, error)
	DeleteCustomerOrder(ctx context.Context, href string) error
}

// EventSink receives an event after every handled transition.
type EventSink interface {
	OrderEvent(evt model.OrderEvent)
}

// Result reports what a notification produced.
type Result struct {
	Transition string
	Message    string
	EntityID   string
}

// Router dispatches notifications by (notificationType, status). Every
// transition is idempotent under webhook re-delivery: duplicate creation is
// guarded by the externalNumber existence check, not by deduplicating the
// call itself.
type Router struct {
	Cache     *cache.ItemCache
	Mapping   *mapping.Store
	Warehouse Warehouse
	Journal   store.Store // optional
	Events    EventSink   // optional
	Policy    config.Policy

	keys *keyedLocks
}

func NewRouter(c *cache.ItemCache, m *mapping.Store, w Warehouse, pol config.Policy) *Router {
	return &Router{Cache: c, Mapping: m, Warehouse: w, Policy: pol, keys: newKeyedLocks()}
}

// Handle processes one decoded notification. PING and unknown types are
// side-effect free; business failures come back as errors for the HTTP
// layer to fold into the always-200 envelope.
func (r *Router) Handle(ctx context.Context, n model.Notification) (Result, error) {
	switch n.NotificationType {
	case model.NotificationPing:
		return Result{Transition: model.TransitionIgnore, Message: "pong"}, nil
	case model.NotificationOrderCreated:
		res, err := r.handleCreated(ctx, n)
		return r.record(ctx, n, res, err)
	case model.NotificationStatusUpdated:
		res, err := r.handleStatusUpdated(ctx, n)
		return r.record(ctx, n, res, err)
	default:
		// Forward compatibility: unknown notification types never fail the
		// webhook.
		log.Printf("[WEBHOOK] Event type not handled: type=%q", n.NotificationType)
		return Result{Transition: model.TransitionIgnore, Message: "received"}, nil
	}
}

func (r *Router) handleCreated(ctx context.Context, n model.Notification) (Result, error) {
	key := model.ExternalKey(n.OrderID)
	unlock := r.keys.lock(key)
	defer unlock()

	log.Printf("[ORDER_CREATED] Processing order: orderId=%q campaignId=%q createdAt=%q", key, n.CampaignID, n.CreatedAt)
	if len(n.Items) > 0 {
		r.Cache.Put(key, n.Items)
		log.Printf("[ORDER_CREATED] Saved %d items to cache: orderId=%q", len(n.Items), key)
	} else {
		log.Printf("[ORDER_CREATED] No items in notification: orderId=%q", key)
	}

	if r.Policy.ReserveOnCreated {
		return r.reserve(ctx, key)
	}
	log.Printf("[ORDER_CREATED] Order registered, waiting for reserve status: orderId=%q", key)
	return Result{Transition: model.TransitionCache, Message: "items_cached"}, nil
}

func (r *Router) handleStatusUpdated(ctx context.Context, n model.Notification) (Result, error) {
	key := model.ExternalKey(n.OrderID)
	status := n.EffectiveStatus()
	log.Printf("[ORDER_STATUS_UPDATED] Processing order: orderId=%q newStatus=%q", key, status)

	unlock := r.keys.lock(key)
	defer unlock()

	switch {
	case r.Policy.Reserves(status):
		return r.reserve(ctx, key)
	case r.Policy.Ships(status):
		return r.ship(ctx, key)
	case r.Policy.Cancels(status):
		return r.cancel(ctx, key)
	default:
		log.Printf("[ORDER_STATUS_UPDATED] Status ignored: orderId=%q status=%q", key, status)
		return Result{Transition: model.TransitionIgnore, Message: "ignored"}, nil
	}
}

// reserve creates the customer order (reservation) for key. The cache is
// intentionally left intact: the same items are needed again for shipment.
func (r *Router) reserve(ctx context.Context, key string) (Result, error) {
	existing, err := r.Warehouse.FindCustomerOrderByExternalNumber(ctx, key)
	if err != nil {
		// A failed lookup is logged but does not abort: worst case the
		// create below fails the same way and reports properly.
		log.Printf("[PROCESSING] Error checking existing Customer Order: orderId=%q error=%q", key, err)
	}
	if existing != nil {
		log.Printf("[PROCESSING] Customer Order already exists: orderId=%q, skipping creation", key)
		return Result{Transition: model.TransitionReserve, Message: "already_exists", EntityID: existing.ID}, nil
	}

	positions, err := r.cachedPositions(key, "PROCESSING")
	if err != nil {
		return Result{Transition: model.TransitionReserve}, err
	}
	ent, err := r.Warehouse.CreateCustomerOrder(ctx, key, positions, "")
	if err != nil {
		return Result{Transition: model.TransitionReserve}, err
	}
	log.Printf("[PROCESSING] Customer Order created (reserve applied): orderId=%q entityId=%q", key, ent.ID)
	return Result{Transition: model.TransitionReserve, Message: "reserved", EntityID: ent.ID}, nil
}

// ship creates the demand for key and, only on success, clears the cached
// items: the order's lifecycle in this system is complete.
func (r *Router) ship(ctx context.Context, key string) (Result, error) {
	existing, err := r.Warehouse.FindDemandByExternalNumber(ctx, key)
	if err != nil {
		log.Printf("[PICKUP] Error checking existing Demand: orderId=%q error=%q", key, err)
	}
	if existing != nil {
		log.Printf("[PICKUP] Demand already exists: orderId=%q, skipping creation", key)
		return Result{Transition: model.TransitionShip, Message: "already_exists", EntityID: existing.ID}, nil
	}

	positions, err := r.cachedPositions(key, "PICKUP")
	if err != nil {
		return Result{Transition: model.TransitionShip}, err
	}
	ent, err := r.Warehouse.CreateDemand(ctx, key, positions, "")
	if err != nil {
		return Result{Transition: model.TransitionShip}, err
	}
	r.Cache.Delete(key)
	log.Printf("[PICKUP] Demand created, items cache cleared: orderId=%q entityId=%q", key, ent.ID)
	return Result{Transition: model.TransitionShip, Message: "shipped", EntityID: ent.ID}, nil
}

// cancel deletes the reservation if one exists. Cancelling an order that
// never reached the reserve status is legitimate and reports not_found.
func (r *Router) cancel(ctx context.Context, key string) (Result, error) {
	existing, err := r.Warehouse.FindCustomerOrderByExternalNumber(ctx, key)
	if err != nil {
		return Result{Transition: model.TransitionCancel}, err
	}
	if existing == nil {
		r.Cache.Delete(key)
		log.Printf("[CANCELLED] Customer Order not found: orderId=%q, nothing to delete", key)
		return Result{Transition: model.TransitionCancel, Message: "not_found"}, nil
	}
	if err := r.Warehouse.DeleteCustomerOrder(ctx, existing.Meta.Href); err != nil {
		return Result{Transition: model.TransitionCancel}, err
	}
	r.Cache.Delete(key)
	log.Printf("[CANCELLED] Customer Order deleted (reserve removed): orderId=%q entityId=%q", key, existing.ID)
	return Result{Transition: model.TransitionCancel, Message: "deleted", EntityID: existing.ID}, nil
}

// cachedPositions recovers the line items cached at ORDER_CREATED and maps
// them to warehouse positions, skipping unmapped SKUs.
func (r *Router) cachedPositions(key, tag string) ([]model.Position, error) {
	items, ok := r.Cache.Get(key)
	if !ok {
		log.Printf("[%s] No cached items found: orderId=%q", tag, key)
		return nil, ErrNoCachedItems
	}
	positions := make([]model.Position, 0, len(items))
	var unmapped []string
	for _, item := range items {
		productID, ok := r.Mapping.Resolve(item.OfferID)
		if !ok {
			log.Printf("[MAPPING] Unmapped SKU: orderId=%q sku=%q quantity=%d", key, item.OfferID, item.Quantity())
			unmapped = append(unmapped, item.OfferID)
			continue
		}
		positions = append(positions, model.Position{ProductID: productID, Quantity: item.Quantity()})
	}
	if len(unmapped) > 0 {
		log.Printf("[MAPPING] Order has unmapped SKUs: orderId=%q unmappedCount=%d mappedCount=%d", key, len(unmapped), len(positions))
	}
	if len(positions) == 0 {
		log.Printf("[%s] No mapped positions found: orderId=%q", tag, key)
		return nil, ErrNoMappedPositions
	}
	return positions, nil
}

// record journals the outcome and publishes it to the event stream; journal
// failures are logged, never surfaced to the webhook path.
func (r *Router) record(ctx context.Context, n model.Notification, res Result, err error) (Result, error) {
	key := model.ExternalKey(n.OrderID)
	outcome := res.Message
	errText := ""
	if err != nil {
		outcome = "error"
		errText = err.Error()
	}
	metrics.Transitions.WithLabelValues(res.Transition, outcome).Inc()

	if r.Journal != nil {
		entry := model.JournalEntry{
			ExternalNumber:   key,
			OrderID:          n.OrderID.String(),
			NotificationType: n.NotificationType,
			OrderStatus:      n.EffectiveStatus(),
			Transition:       res.Transition,
			Outcome:          outcome,
			EntityID:         res.EntityID,
			Error:            errText,
		}
		if _, jerr := r.Journal.RecordEvent(ctx, entry); jerr != nil {
			log.Printf("[JOURNAL] Failed to record event: orderId=%q error=%q", key, jerr)
		}
	}
	if r.Events != nil {
		r.Events.OrderEvent(model.OrderEvent{
			OrderID:        n.OrderID.String(),
			ExternalNumber: key,
			Transition:     res.Transition,
			Outcome:        outcome,
			EntityID:       res.EntityID,
			TS:             time.Now().UTC().Format(time.RFC3339),
		})
	}
	return res, err
}
