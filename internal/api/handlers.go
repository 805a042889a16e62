package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"marketsync/internal/buildinfo"
	"marketsync/internal/metrics"
	"marketsync/internal/model"
	"marketsync/internal/webhooks"
)

// webhookEnvelope is the response body Yandex expects on every webhook
// call, including internal failures.
type webhookEnvelope struct {
	Version string `json:"version"`
	Name    string `json:"name"`
	Time    string `json:"time"`
	Status  string `json:"status,omitempty"`
	OrderID string `json:"orderId,omitempty"`
	Error   string `json:"error,omitempty"`
}

func envelope(startTime string) webhookEnvelope {
	return webhookEnvelope{Version: buildinfo.Version, Name: buildinfo.Name, Time: startTime}
}

// NotificationHandler serves /notification, the endpoint Yandex registers
// and verifies. GET is the liveness probe the marketplace issues before
// accepting the webhook URL.
func (s *Server) NotificationHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		log.Printf("[NOTIFICATION] GET request received from Yandex verification")
		writeJSON(w, http.StatusOK, envelope(time.Now().UTC().Format(time.RFC3339)))
	case http.MethodPost:
		s.handleNotification(w, r, "NOTIFICATION")
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// WebhookHandler serves /webhook, the legacy path kept for deployments
// registered before /notification became the primary endpoint.
func (s *Server) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"message": "Webhook endpoint is ready",
			"version": buildinfo.Version,
		})
	case http.MethodPost:
		s.handleNotification(w, r, "WEBHOOK")
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleNotification implements the always-200 contract: once the body is
// a JSON object, every outcome including internal errors answers 200 so
// the marketplace never retry-storms a permanently failing order. Failures
// land in logs, the journal and metrics instead.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request, tag string) {
	startTime := time.Now().UTC().Format(time.RFC3339)

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("[%s] Failed to read request body: error=%q", tag, err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		log.Printf("[%s] Invalid request body: body is missing or not an object", tag)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	var n model.Notification
	if err := json.Unmarshal(trimmed, &n); err != nil {
		log.Printf("[%s] Malformed JSON: error=%q", tag, err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}

	sig := webhooks.Verify(s.Cfg.WebhookSecret, r.Header, trimmed)
	metrics.SignatureChecks.WithLabelValues(sig.String()).Inc()
	switch sig {
	case webhooks.Skipped:
		if s.Cfg.WebhookSecret == "" {
			log.Printf("[%s] WEBHOOK_SECRET not configured, skipping verification", tag)
		}
	case webhooks.OK:
	default:
		log.Printf("[%s] Signature verification failed: result=%q orderId=%q", tag, sig, n.OrderID)
		if s.Cfg.WebhookStrict {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
			return
		}
	}

	log.Printf("[%s] Received notification: type=%q orderId=%q", tag, n.NotificationType, n.OrderID)
	metrics.Notifications.WithLabelValues(n.NotificationType, n.EffectiveStatus()).Inc()

	if n.NotificationType == model.NotificationPing {
		log.Printf("[%s] PING received - responding with integration info", tag)
		writeJSON(w, http.StatusOK, envelope(startTime))
		return
	}

	res, err := s.Router.Handle(r.Context(), n)
	metrics.CachedOrders.Set(float64(s.Cache.Len()))

	resp := envelope(startTime)
	if err != nil {
		log.Printf("[%s] System error: notificationType=%q orderId=%q error=%q", tag, n.NotificationType, n.OrderID, err)
		resp.Status = "error"
		resp.Error = err.Error()
		resp.OrderID = n.OrderID.String()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if res.Message == "received" {
		resp.Status = "received"
	} else {
		resp.Status = "processed"
		resp.OrderID = n.OrderID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthHandler reports process liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler reports readiness: journal reachable and mapping loaded.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Journal unavailable", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"mappings":     s.Mapping.Len(),
		"cachedOrders": s.Cache.Len(),
	})
}

// JournalHandler lists handled notifications for operators.
func (s *Server) JournalHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}
	q := model.JournalQuery{
		ExternalNumber: r.URL.Query().Get("externalNumber"),
		Transition:     r.URL.Query().Get("transition"),
		Outcome:        r.URL.Query().Get("outcome"),
		Cursor:         r.URL.Query().Get("cursor"),
		Limit:          model.ParseLimit(r.URL.Query().Get("limit"), 100, 500),
	}
	items, next, err := s.Store.ListEvents(r.Context(), q)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List journal failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// CacheHandler lists orders currently held in the item cache.
func (s *Server) CacheHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}
	keys := s.Cache.Keys()
	entries := map[string][]model.OrderItem{}
	for _, k := range keys {
		if items, ok := s.Cache.Get(k); ok {
			entries[k] = items
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(keys), "entries": entries})
}

// CacheByKeyHandler serves /v1/admin/cache/{externalNumber}: GET inspects
// one entry, DELETE evicts it (operator fix-up for stuck orders).
func (s *Server) CacheByKeyHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/v1/admin/cache/")
	if key == "" {
		writeProblem(w, http.StatusBadRequest, "Key required", "external number missing in path", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		items, ok := s.Cache.Get(key)
		if !ok {
			writeProblem(w, http.StatusNotFound, "Not cached", "no items cached for "+key, r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"externalNumber": key, "items": items})
	case http.MethodDelete:
		s.Cache.Delete(key)
		metrics.CachedOrders.Set(float64(s.Cache.Len()))
		writeJSON(w, http.StatusOK, map[string]any{"deleted": key})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
