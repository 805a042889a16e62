package yandex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestListOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/campaigns/camp-1/orders" {
			t.Errorf("path=%q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("status") != "PROCESSING" || q.Get("limit") != "25" {
			t.Errorf("query=%v", q)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth=%q", got)
		}
		w.Write([]byte(`{"orders":[
			{"id":101,"status":"PROCESSING","items":[{"offerId":"SKU-1","count":2}]},
			{"id":"102","status":"PROCESSING"}
		]}`))
	}))
	defer srv.Close()

	c := New("tok", "camp-1")
	c.Base = srv.URL
	list, err := c.ListOrders(context.Background(), "PROCESSING", 25)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("orders=%d", len(list))
	}
	if list[0].ID.String() != "101" || list[1].ID.String() != "102" {
		t.Fatalf("ids: %q %q", list[0].ID, list[1].ID)
	}
	if len(list[0].Items) != 1 || list[0].Items[0].OfferID != "SKU-1" {
		t.Fatalf("items: %+v", list[0].Items)
	}
}

func TestListOrdersDefaultLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("limit=%q", got)
		}
		w.Write([]byte(`{"orders":[]}`))
	}))
	defer srv.Close()

	c := New("tok", "camp-1")
	c.Base = srv.URL
	if _, err := c.ListOrders(context.Background(), "PROCESSING", 0); err != nil {
		t.Fatal(err)
	}
}

func TestListOffersPagination(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/campaigns/camp-1/offers" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		token := r.URL.Query().Get("page_token")
		pages = append(pages, token)
		resp := map[string]any{"result": map[string]any{
			"offers": []map[string]string{{"offerId": "SKU-" + token}},
			"paging": map[string]string{},
		}}
		if token == "" {
			resp["result"].(map[string]any)["offers"] = []map[string]string{{"offerId": "SKU-A"}}
			resp["result"].(map[string]any)["paging"] = map[string]string{"nextPageToken": "p2"}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New("tok", "camp-1")
	c.Base = srv.URL
	offers, err := c.ListOffers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 2 || offers[0].OfferID != "SKU-A" || offers[1].OfferID != "SKU-p2" {
		t.Fatalf("offers: %+v", offers)
	}
	if len(pages) != 2 || pages[0] != "" || pages[1] != "p2" {
		t.Fatalf("pages: %v", pages)
	}
}

func TestNonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := New("tok", "camp-1")
	c.Base = srv.URL
	if _, err := c.ListOrders(context.Background(), "PROCESSING", 10); err == nil {
		t.Fatal("expected error")
	}
}
