// Package main runs a demo WebSocket client for solve events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Run a small solve to obtain a solve ID
	body := []byte(`{
		"frame": {
			"vehicles": [
				{"vehicleId": "v1", "capacityUnits": 10},
				{"vehicleId": "v2", "capacityUnits": 5}
			],
			"candidates": [
				{"orderId": "o1", "vehicleId": "v1", "demandUnits": 4, "cost": 10, "feasible": true},
				{"orderId": "o1", "vehicleId": "v2", "demandUnits": 4, "cost": 8, "feasible": true},
				{"orderId": "o2", "vehicleId": "v2", "demandUnits": 4, "cost": 9, "feasible": true},
				{"orderId": "o3", "vehicleId": "v1", "demandUnits": 6, "cost": 11, "feasible": true}
			]
		},
		"parameters": {"costWeight": 1}
	}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/solves", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var rec struct {
		ID     string `json:"id"`
		Result struct {
			Summary struct {
				Outcome        string  `json:"outcome"`
				ObjectiveValue float64 `json:"objectiveValue"`
			} `json:"summary"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		log.Fatal(err)
	}
	if rec.ID == "" {
		log.Fatal("no solve id returned")
	}
	log.Printf("Solve ID: %s outcome=%s objective=%.2f", rec.ID, rec.Result.Summary.Outcome, rec.Result.Summary.ObjectiveValue)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/stream/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	// connection_init
	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	// subscribe to this solve's event stream
	pl, _ := json.Marshal(map[string]any{"solveId": rec.ID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Wait briefly to receive ack and keepalive traffic
	select {
	case <-time.After(3 * time.Second):
	case <-done:
	}
}
