//go:build ignore

// Manual client for the order event stream:
//
//	go run scripts/ws_client.go -url ws://localhost:3000/v1/events/ws
//
// Pass -order YM-123 to follow a single order.
package main

import (
	"flag"
	"log"
	"net/url"

	"github.com/gorilla/websocket"
)

func main() {
	base := flag.String("url", "ws://localhost:3000/v1/events/ws", "events WS endpoint")
	order := flag.String("order", "", "external number to follow (default: all orders)")
	flag.Parse()

	u, err := url.Parse(*base)
	if err != nil {
		log.Fatalf("bad url: %v", err)
	}
	if *order != "" {
		q := u.Query()
		q.Set("externalNumber", *order)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	log.Printf("connected to %s", u)

	for {
		var evt map[string]any
		if err := conn.ReadJSON(&evt); err != nil {
			log.Fatalf("read: %v", err)
		}
		log.Printf("event: %v", evt)
	}
}
