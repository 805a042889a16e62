// Package poller is the fallback delivery path: when webhook deliveries
// are missed, a ticker lists PROCESSING orders from the campaign API and
// drives the same reserve transition the webhook would have.
package poller

import (
	"context"
	"log"
	"time"

	"marketsync/internal/model"
	"marketsync/internal/orders"
	"marketsync/internal/yandex"
)

type Worker struct {
	Market   *yandex.Client
	Router   *orders.Router
	Interval time.Duration
	Stop     chan struct{}
}

func NewWorker(market *yandex.Client, router *orders.Router, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Worker{Market: market, Router: router, Interval: interval, Stop: make(chan struct{})}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) processOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	list, err := w.Market.ListOrders(ctx, "PROCESSING", 50)
	if err != nil {
		log.Printf("[POLLER] Failed to list orders: error=%q", err)
		return
	}
	if len(list) == 0 {
		return
	}
	log.Printf("[POLLER] Found %d PROCESSING orders", len(list))
	for _, o := range list {
		w.processOrder(ctx, o)
	}
}

// processOrder feeds a polled order through the router's reserve path.
// Polled orders carry full item lists, so the cache is seeded first in case
// the ORDER_CREATED webhook was the delivery that got lost.
func (w *Worker) processOrder(ctx context.Context, o yandex.Order) {
	key := model.ExternalKey(o.ID)
	if _, ok := w.Router.Cache.Get(key); !ok {
		if len(o.Items) == 0 {
			log.Printf("[POLLER] Order has no items, skipping: orderId=%q", key)
			return
		}
		w.Router.Cache.Put(key, o.Items)
	}
	res, err := w.Router.Handle(ctx, model.Notification{
		NotificationType: model.NotificationStatusUpdated,
		OrderID:          o.ID,
		Status:           "PROCESSING",
	})
	if err != nil {
		log.Printf("[POLLER] Reserve failed: orderId=%q error=%q", key, err)
		return
	}
	log.Printf("[POLLER] Reserve result: orderId=%q outcome=%q", key, res.Message)
}
