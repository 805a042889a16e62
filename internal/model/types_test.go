package model

import (
	"encoding/json"
	"testing"
)

func TestFlexIDAcceptsStringAndNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"orderId": 123456}`, "123456"},
		{`{"orderId": "123456"}`, "123456"},
		{`{"orderId": null}`, ""},
		{`{}`, ""},
	}
	for _, tc := range cases {
		var n Notification
		if err := json.Unmarshal([]byte(tc.in), &n); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		if n.OrderID.String() != tc.want {
			t.Fatalf("%s: got %q want %q", tc.in, n.OrderID, tc.want)
		}
	}
}

func TestFlexIDRejectsObjects(t *testing.T) {
	var n Notification
	if err := json.Unmarshal([]byte(`{"orderId": {"x":1}}`), &n); err == nil {
		t.Fatal("expected error for object orderId")
	}
}

func TestEffectiveStatusPrefersStatus(t *testing.T) {
	n := Notification{Status: "PROCESSING", NewStatus: "CANCELLED"}
	if got := n.EffectiveStatus(); got != "PROCESSING" {
		t.Fatalf("got %q", got)
	}
	n = Notification{NewStatus: "PICKUP"}
	if got := n.EffectiveStatus(); got != "PICKUP" {
		t.Fatalf("got %q", got)
	}
}

func TestQuantityDefaultsToOne(t *testing.T) {
	if q := (OrderItem{OfferID: "A"}).Quantity(); q != 1 {
		t.Fatalf("got %d", q)
	}
	if q := (OrderItem{OfferID: "A", Count: -2}).Quantity(); q != 1 {
		t.Fatalf("got %d", q)
	}
	if q := (OrderItem{OfferID: "A", Count: 3}).Quantity(); q != 3 {
		t.Fatalf("got %d", q)
	}
}

func TestExternalKey(t *testing.T) {
	if got := ExternalKey("12345"); got != "YM-12345" {
		t.Fatalf("got %q", got)
	}
}

func TestParseLimit(t *testing.T) {
	if got := ParseLimit("", 100, 500); got != 100 {
		t.Fatalf("default: got %d", got)
	}
	if got := ParseLimit("abc", 100, 500); got != 100 {
		t.Fatalf("garbage: got %d", got)
	}
	if got := ParseLimit("-5", 100, 500); got != 100 {
		t.Fatalf("negative: got %d", got)
	}
	if got := ParseLimit("9999", 100, 500); got != 500 {
		t.Fatalf("over max: got %d", got)
	}
	if got := ParseLimit("42", 100, 500); got != 42 {
		t.Fatalf("plain: got %d", got)
	}
}
