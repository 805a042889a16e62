// Package mapping loads the SKU mapping produced by cmd/genmapping.
package mapping

import (
	"encoding/json"
	"fmt"
	"os"
)

// Store resolves marketplace offer ids to MoySklad product ids. It is
// loaded once before the server accepts traffic and never mutated; an
// absent key means the SKU was not matched at generation time, which is an
// expected condition, not corruption.
type Store struct {
	m map[string]string
}

// Load reads a flat {"offerId": "productId"} JSON document. A missing or
// malformed file is fatal to startup; an empty mapping is allowed so the
// server can come up while the mapping is regenerated out-of-band.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping %s: %w", path, err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mapping %s: expected a flat object: %w", path, err)
	}
	if m == nil {
		m = map[string]string{}
	}
	return &Store{m: m}, nil
}

// FromMap builds a Store directly; used by tests and the poller harness.
func FromMap(m map[string]string) *Store {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return &Store{m: cp}
}

// Resolve returns the MoySklad product id for an offer id.
func (s *Store) Resolve(offerID string) (string, bool) {
	id, ok := s.m[offerID]
	return id, ok
}

// Len reports the number of mapped SKUs.
func (s *Store) Len() int { return len(s.m) }
