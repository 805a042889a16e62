package main

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketsync/internal/api"
	"marketsync/internal/metrics"
	"marketsync/internal/poller"
	"marketsync/internal/yandex"
)

func main() {
	srv, err := api.NewServer()
	if err != nil {
		log.Fatalf("[CONFIG] failed to init server: %v", err)
	}
	log.Printf("[CONFIG] Configuration loaded successfully")
	log.Printf("[CONFIG] MoySklad Base URL: %s", srv.Cfg.MoySkladBase)
	log.Printf("[CONFIG] Store ID: %s", srv.Cfg.StoreID)
	log.Printf("[CONFIG] Organization ID: %s", srv.Cfg.OrgID)

	metrics.RegisterDefault()

	mux := http.NewServeMux()

	// Webhook endpoints (primary + legacy alias)
	mux.HandleFunc("/notification", srv.NotificationHandler)
	mux.HandleFunc("/webhook", srv.WebhookHandler)

	// Health
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.HandleFunc("/readyz", srv.ReadyHandler)

	// Observability
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// Event stream
	mux.HandleFunc("/v1/events/ws", srv.EventsWSHandler)

	// Admin
	mux.HandleFunc("/v1/admin/journal", srv.JournalHandler)
	mux.HandleFunc("/v1/admin/cache", srv.CacheHandler)
	mux.HandleFunc("/v1/admin/cache/", srv.CacheByKeyHandler)
	mux.HandleFunc("/v1/admin/debug", srv.DebugHandler)

	// Docs
	mux.HandleFunc("/openapi.yaml", srv.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", srv.OpenAPIJSONHandler)
	mux.HandleFunc("/docs", srv.DocsHandler)

	// Fallback poller (only when the campaign API is configured)
	if srv.Cfg.PollingEnabled() {
		market := yandex.New(srv.Cfg.YandexToken, srv.Cfg.YandexCampaignID)
		w := poller.NewWorker(market, srv.Router, srv.Cfg.PollInterval)
		w.Start()
		log.Printf("[POLLER] Started: campaignId=%s interval=%s", srv.Cfg.YandexCampaignID, w.Interval)
	}

	addr := ":" + srv.Cfg.Port
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(metricsMiddleware(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("Server listening on %s", addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// WS connections hijack the writer; skip the recorder for them.
		if r.URL.Path == "/v1/events/ws" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		status := strconv.Itoa(rec.status)
		path := metricsPath(r.URL.Path)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

// metricsPath collapses per-order paths to a template so the path label
// stays bounded.
func metricsPath(p string) string {
	if strings.HasPrefix(p, "/v1/admin/cache/") {
		return "/v1/admin/cache/{externalNumber}"
	}
	return p
}
