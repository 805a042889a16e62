package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"marketsync/internal/config"
	"marketsync/internal/mapping"
	"marketsync/internal/moysklad"
	"marketsync/internal/webhooks"
)

// fakeMoysklad is an in-memory stand-in for the warehouse API: enough of
// the customerorder/demand surface for the full webhook flow to run over
// real HTTP.
type fakeMoysklad struct {
	mu      sync.Mutex
	base    string
	orders  map[string]moysklad.Entity // externalNumber -> entity
	demands map[string]moysklad.Entity
	seq     int
}

func newFakeMoysklad() *fakeMoysklad {
	return &fakeMoysklad{orders: map[string]moysklad.Entity{}, demands: map[string]moysklad.Entity{}}
}

func (f *fakeMoysklad) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/entity/customerorder":
		f.list(w, r, f.orders)
	case r.Method == http.MethodGet && r.URL.Path == "/entity/demand":
		f.list(w, r, f.demands)
	case r.Method == http.MethodPost && r.URL.Path == "/entity/customerorder":
		f.create(w, r, f.orders, "customerorder")
	case r.Method == http.MethodPost && r.URL.Path == "/entity/demand":
		f.create(w, r, f.demands, "demand")
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/entity/customerorder/"):
		for k, e := range f.orders {
			if strings.HasSuffix(e.Meta.Href, r.URL.Path) {
				delete(f.orders, k)
			}
		}
		w.WriteHeader(http.StatusOK)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeMoysklad) list(w http.ResponseWriter, r *http.Request, docs map[string]moysklad.Entity) {
	key := strings.TrimPrefix(r.URL.Query().Get("filter"), "externalNumber=")
	rows := []moysklad.Entity{}
	if e, ok := docs[key]; ok {
		rows = append(rows, e)
	}
	json.NewEncoder(w).Encode(map[string]any{"rows": rows})
}

func (f *fakeMoysklad) create(w http.ResponseWriter, r *http.Request, docs map[string]moysklad.Entity, kind string) {
	var body struct {
		ExternalNumber string `json:"externalNumber"`
		Name           string `json:"name"`
	}
	json.NewDecoder(r.Body).Decode(&body)
	f.seq++
	id := fmt.Sprintf("%s-%d", kind, f.seq)
	e := moysklad.Entity{
		ID:             id,
		Name:           body.Name,
		ExternalNumber: body.ExternalNumber,
		Meta:           moysklad.Meta{Href: f.base + "/entity/" + kind + "/" + id, Type: kind},
	}
	docs[body.ExternalNumber] = e
	json.NewEncoder(w).Encode(e)
}

func (f *fakeMoysklad) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeMoysklad) demandCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.demands)
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *fakeMoysklad) {
	t.Helper()
	fake := newFakeMoysklad()
	backend := httptest.NewServer(fake)
	t.Cleanup(backend.Close)
	fake.base = backend.URL

	cfg := config.Config{
		Port:          "0",
		MoySkladBase:  backend.URL,
		MoySkladToken: "test-token",
		StoreID:       "store-1",
		OrgID:         "org-1",
		AgentID:       "agent-1",
		Policy:        config.DefaultPolicy(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServerWith(cfg, mapping.FromMap(map[string]string{"SKU-1": "prod-1", "SKU-2": "prod-2"}))
	if err != nil {
		t.Fatal(err)
	}
	return srv, fake
}

func postNotification(t *testing.T, srv *Server, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/notification", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	srv.NotificationHandler(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return m
}

func TestNotificationGetProbe(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rr := httptest.NewRecorder()
	srv.NotificationHandler(rr, httptest.NewRequest(http.MethodGet, "/notification", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["name"] != "Yandex-MoySklad Integration" || body["version"] != "1.0.0" || body["time"] == "" {
		t.Fatalf("got %+v", body)
	}
}

func TestWebhookGetReady(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rr := httptest.NewRecorder()
	srv.WebhookHandler(rr, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != "ok" || body["message"] != "Webhook endpoint is ready" {
		t.Fatalf("got %+v", body)
	}
}

func TestRejectsNonObjectBodies(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	for _, body := range []string{``, `null`, `[]`, `"str"`, `42`, `not json at all`} {
		rr := postNotification(t, srv, body, nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: code=%d", body, rr.Code)
		}
		if decodeBody(t, rr)["error"] != "Invalid request body" {
			t.Fatalf("body %q: %s", body, rr.Body.String())
		}
	}
}

func TestRejectsMalformedObject(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rr := postNotification(t, srv, `{"notificationType": ["not","a","string"]}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("code=%d", rr.Code)
	}
	if decodeBody(t, rr)["error"] != "Invalid JSON payload" {
		t.Fatalf("got %s", rr.Body.String())
	}
}

func TestPingAnswersEnvelope(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rr := postNotification(t, srv, `{"notificationType":"PING"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["name"] != "Yandex-MoySklad Integration" || body["version"] != "1.0.0" {
		t.Fatalf("got %+v", body)
	}
	if _, ok := body["error"]; ok {
		t.Fatalf("unexpected error field: %+v", body)
	}
}

func TestAlways200OnProcessingFailure(t *testing.T) {
	srv, fake := newTestServer(t, nil)
	// PROCESSING for an order whose ORDER_CREATED was never delivered: the
	// reserve fails internally but the marketplace still gets a 200.
	rr := postNotification(t, srv, `{"notificationType":"ORDER_STATUS_UPDATED","orderId":123,"status":"PROCESSING"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["status"] != "error" || body["orderId"] != "123" {
		t.Fatalf("got %+v", body)
	}
	if !strings.Contains(body["error"].(string), "no cached items") {
		t.Fatalf("error field: %v", body["error"])
	}
	if fake.orderCount() != 0 {
		t.Fatal("document created despite failure")
	}
}

func TestUnknownTypeAnswersReceived(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rr := postNotification(t, srv, `{"notificationType":"ORDER_COMMENT_ADDED","orderId":1}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != "received" {
		t.Fatalf("got %+v", body)
	}
	if _, ok := body["orderId"]; ok {
		t.Fatalf("orderId present on received: %+v", body)
	}
}

func TestLifecycleOverHTTP(t *testing.T) {
	srv, fake := newTestServer(t, nil)

	steps := []struct {
		body   string
		status string
	}{
		{`{"notificationType":"ORDER_CREATED","orderId":777,"items":[{"offerId":"SKU-1","count":2},{"offerId":"SKU-2","count":1}]}`, "processed"},
		{`{"notificationType":"ORDER_STATUS_UPDATED","orderId":777,"status":"PROCESSING"}`, "processed"},
		{`{"notificationType":"ORDER_STATUS_UPDATED","orderId":777,"status":"PROCESSING"}`, "processed"},
		{`{"notificationType":"ORDER_STATUS_UPDATED","orderId":777,"newStatus":"PICKUP"}`, "processed"},
	}
	for i, s := range steps {
		rr := postNotification(t, srv, s.body, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("step %d: code=%d body=%s", i, rr.Code, rr.Body.String())
		}
		body := decodeBody(t, rr)
		if body["status"] != s.status || body["orderId"] != "777" {
			t.Fatalf("step %d: got %+v", i, body)
		}
	}
	if fake.orderCount() != 1 {
		t.Fatalf("customer orders: %d", fake.orderCount())
	}
	if fake.demandCount() != 1 {
		t.Fatalf("demands: %d", fake.demandCount())
	}
	if _, ok := srv.Cache.Get("YM-777"); ok {
		t.Fatal("cache entry survived shipment")
	}
}

func TestCancellationOverHTTP(t *testing.T) {
	srv, fake := newTestServer(t, nil)
	postNotification(t, srv, `{"notificationType":"ORDER_CREATED","orderId":5,"items":[{"offerId":"SKU-1"}]}`, nil)
	postNotification(t, srv, `{"notificationType":"ORDER_STATUS_UPDATED","orderId":5,"status":"PROCESSING"}`, nil)
	if fake.orderCount() != 1 {
		t.Fatalf("customer orders: %d", fake.orderCount())
	}

	rr := postNotification(t, srv, `{"notificationType":"ORDER_STATUS_UPDATED","orderId":5,"status":"CANCELLED"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d", rr.Code)
	}
	if fake.orderCount() != 0 {
		t.Fatal("reservation not deleted")
	}
	if _, ok := srv.Cache.Get("YM-5"); ok {
		t.Fatal("cache not cleared")
	}
}

func TestStrictSignature(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) {
		c.WebhookSecret = "hush"
		c.WebhookStrict = true
	})
	body := `{"notificationType":"ORDER_CREATED","orderId":1,"items":[{"offerId":"SKU-1"}]}`

	rr := postNotification(t, srv, body, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned: code=%d", rr.Code)
	}

	canonical, err := webhooks.Canonicalize([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	sig := webhooks.SignHMAC("hush", canonical)
	rr = postNotification(t, srv, body, map[string]string{"X-Signature": sig})
	if rr.Code != http.StatusOK {
		t.Fatalf("signed: code=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = postNotification(t, srv, body, map[string]string{"X-Signature": "deadbeef"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature: code=%d", rr.Code)
	}
}

func TestNonStrictSignatureContinues(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) {
		c.WebhookSecret = "hush"
	})
	rr := postNotification(t, srv, `{"notificationType":"PING"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d", rr.Code)
	}
}

func TestReadyz(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rr := httptest.NewRecorder()
	srv.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != "ready" || body["mappings"].(float64) != 2 {
		t.Fatalf("got %+v", body)
	}
}

func TestJournalEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	postNotification(t, srv, `{"notificationType":"ORDER_CREATED","orderId":9,"items":[{"offerId":"SKU-1"}]}`, nil)
	postNotification(t, srv, `{"notificationType":"ORDER_STATUS_UPDATED","orderId":9,"status":"PROCESSING"}`, nil)

	rr := httptest.NewRecorder()
	srv.JournalHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/journal?transition=reserve", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	items := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items: %+v", items)
	}
	entry := items[0].(map[string]any)
	if entry["externalNumber"] != "YM-9" || entry["outcome"] != "reserved" {
		t.Fatalf("got %+v", entry)
	}
}

func TestAdminForbiddenForNonAdmin(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/journal", nil)
	req.Header.Set("X-Role", "viewer")
	rr := httptest.NewRecorder()
	srv.JournalHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("code=%d", rr.Code)
	}
}

func TestCacheAdminEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	postNotification(t, srv, `{"notificationType":"ORDER_CREATED","orderId":11,"items":[{"offerId":"SKU-1","count":3}]}`, nil)

	rr := httptest.NewRecorder()
	srv.CacheHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/cache", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("list: code=%d", rr.Code)
	}
	if decodeBody(t, rr)["count"].(float64) != 1 {
		t.Fatalf("list: %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	srv.CacheByKeyHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/cache/YM-11", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("get: code=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	srv.CacheByKeyHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/admin/cache/YM-11", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: code=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	srv.CacheByKeyHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/cache/YM-11", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("after delete: code=%d", rr.Code)
	}
}
