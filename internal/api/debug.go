package api

import (
	"net/http"
	"time"

	"marketsync/internal/buildinfo"
)

// DebugHandler reports build info and non-sensitive config presence flags.
func (s *Server) DebugHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":               s.Cfg.Port,
			"MOYSKLAD_BASE":      s.Cfg.MoySkladBase,
			"STORE_ID":           s.Cfg.StoreID,
			"ORG_ID":             s.Cfg.OrgID,
			"HAS_AGENT_ID":       s.Cfg.AgentID != "",
			"HAS_WEBHOOK_SECRET": s.Cfg.WebhookSecret != "",
			"WEBHOOK_STRICT":     s.Cfg.WebhookStrict,
			"HAS_DATABASE_URL":   s.Cfg.DatabaseURL != "",
			"HAS_REDIS_URL":      s.Cfg.RedisURL != "",
			"POLLING_ENABLED":    s.Cfg.PollingEnabled(),
			"RESERVE_ON_CREATED": s.Cfg.Policy.ReserveOnCreated,
			"RESERVE_ON":         s.Cfg.Policy.ReserveOn,
			"SHIP_ON":            s.Cfg.Policy.ShipOn,
			"CANCEL_ON":          s.Cfg.Policy.CancelOn,
		},
		"mappings":     s.Mapping.Len(),
		"cachedOrders": s.Cache.Len(),
	}
	writeJSON(w, http.StatusOK, info)
}
