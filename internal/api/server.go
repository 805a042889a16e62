// Package api implements the HTTP surface of the sync service.
package api

import (
	"log"
	"net/http"
	"os"

	"marketsync/internal/auth"
	"marketsync/internal/cache"
	"marketsync/internal/config"
	"marketsync/internal/mapping"
	"marketsync/internal/model"
	"marketsync/internal/moysklad"
	"marketsync/internal/orders"
	"marketsync/internal/store"
)

type Server struct {
	Cfg     config.Config
	Cache   *cache.ItemCache
	Mapping *mapping.Store
	Router  *orders.Router
	Store   store.Store
	Broker  EventBroker
	Auth    *auth.Verifier
}

// NewServer wires the full service from the environment: config, mapping,
// journal store, broker, warehouse client, router.
func NewServer() (*Server, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	m, err := mapping.Load(cfg.MappingPath)
	if err != nil {
		return nil, err
	}
	return NewServerWith(cfg, m)
}

// NewServerWith wires a server from explicit config and mapping; tests use
// it to avoid touching the filesystem and real backends.
func NewServerWith(cfg config.Config, m *mapping.Store) (*Server, error) {
	log.Printf("[MAPPING] Product mapping loaded: %d SKU mappings", m.Len())
	if m.Len() == 0 {
		log.Printf("[MAPPING] WARNING: product mapping is empty; run genmapping before routing traffic, every order will fail to map until then")
	}
	if cfg.WebhookSecret == "" {
		log.Printf("[CONFIG] WEBHOOK_SECRET not configured, signature verification disabled")
	}

	var s store.Store
	if cfg.DatabaseURL == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if os.Getenv("DB_MIGRATE") != "false" {
			if err := sp.MigrateDir("db/migrations"); err != nil {
				log.Printf("[JOURNAL] Migration failed: error=%q", err)
			}
		}
		s = sp
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			log.Printf("[CONFIG] Redis broker unavailable, falling back to in-memory: error=%q", err)
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	c := cache.New()
	wh := moysklad.New(cfg.MoySkladBase, cfg.MoySkladToken, cfg.OrgID, cfg.StoreID, cfg.AgentID)
	router := orders.NewRouter(c, m, wh, cfg.Policy)
	router.Journal = s
	router.Events = &brokerSink{broker: broker}

	return &Server{
		Cfg:     cfg,
		Cache:   c,
		Mapping: m,
		Router:  router,
		Store:   s,
		Broker:  broker,
		Auth:    auth.NewVerifierFromEnv(),
	}, nil
}

// brokerSink forwards router events to the broker: one per-order topic for
// targeted streams, one firehose topic.
type brokerSink struct {
	broker EventBroker
}

func (s *brokerSink) OrderEvent(evt model.OrderEvent) {
	s.broker.Publish(evt.ExternalNumber, evt)
	s.broker.Publish(TopicAll, evt)
}

// getPrincipal extracts the caller identity for admin endpoints: bearer
// token when present, X-Role header as the dev fallback.
func (s *Server) getPrincipal(r *http.Request) auth.Principal {
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && (authz[:7] == "Bearer " || authz[:7] == "bearer ") && s.Auth != nil {
		if pr, err := s.Auth.Verify(authz[7:]); err == nil {
			return pr
		}
	}
	role := r.Header.Get("X-Role")
	if role == "" {
		role = "admin"
	}
	return auth.Principal{Role: role}
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if s.getPrincipal(r).IsAdmin() {
		return true
	}
	writeProblem(w, http.StatusForbidden, "Forbidden", "admin role required", r.URL.Path)
	return false
}
