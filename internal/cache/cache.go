// Package cache holds order line items between webhook deliveries.
//
// Yandex does not resend items on ORDER_STATUS_UPDATED, so the list seen on
// ORDER_CREATED must survive until the shipment is created. The cache is
// process-scoped and intentionally non-durable: entries are lost on restart
// and the reserve/ship transitions report a cache miss in that case.
package cache

import (
	"sort"
	"sync"

	"marketsync/internal/model"
)

// ItemCache maps an external order number to its cached line items.
type ItemCache struct {
	mu sync.RWMutex
	m  map[string][]model.OrderItem
}

func New() *ItemCache {
	return &ItemCache{m: map[string][]model.OrderItem{}}
}

// Put stores items under key, replacing any previous entry. The slice is
// copied; callers may reuse theirs.
func (c *ItemCache) Put(key string, items []model.OrderItem) {
	cp := make([]model.OrderItem, len(items))
	copy(cp, items)
	c.mu.Lock()
	c.m[key] = cp
	c.mu.Unlock()
}

// Get returns the cached items for key, preserving insertion order.
func (c *ItemCache) Get(key string) ([]model.OrderItem, bool) {
	c.mu.RLock()
	items, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	cp := make([]model.OrderItem, len(items))
	copy(cp, items)
	return cp, true
}

// Delete removes the entry for key. Deleting an absent key is a no-op.
func (c *ItemCache) Delete(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

// Len reports the number of cached orders.
func (c *ItemCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Keys lists cached external numbers, sorted for stable admin output.
func (c *ItemCache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.m))
	for k := range c.m {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Strings(keys)
	return keys
}
