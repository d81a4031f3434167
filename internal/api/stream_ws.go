package api

import (
    "encoding/json"
    "net/http"
    "sync"
    "time"

    "github.com/gorilla/websocket"
)

// WebSocket stream of solve events, one subscription per solve ID.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
    Type    string          `json:"type"`
    ID      string          `json:"id,omitempty"`
    Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
    SolveID string   `json:"solveId"`
    Events  []string `json:"events"`
}

// StreamWSHandler handles /v1/stream/ws
func (s *Server) StreamWSHandler(w http.ResponseWriter, r *http.Request) {
    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    defer func() { _ = conn.Close() }()

    // Track subscriptions: id -> solveID and channel
    type sub struct {
        solveID string
        ch      chan SSEEvent
    }
    subs := map[string]sub{}

    conn.SetReadLimit(1 << 20)
    _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
    conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

    // The keepalive and fanout goroutines write alongside the read loop's
    // replies; gorilla allows one concurrent writer, so serialize them.
    var wmu sync.Mutex
    write := func(v any) error {
        wmu.Lock()
        defer wmu.Unlock()
        return conn.WriteJSON(v)
    }

    // Expect connection_init first
    for {
        var msg wsMessage
        if err := conn.ReadJSON(&msg); err != nil {
            break
        }
        switch msg.Type {
        case "connection_init":
            _ = write(wsMessage{Type: "connection_ack"})
            // Keepalive
            go func() {
                ticker := time.NewTicker(20 * time.Second)
                defer ticker.Stop()
                for range ticker.C {
                    if err := write(wsMessage{Type: "ping"}); err != nil {
                        return
                    }
                }
            }()
        case "ping":
            _ = write(wsMessage{Type: "pong"})
        case "subscribe":
            var pl subscribePayload
            _ = json.Unmarshal(msg.Payload, &pl)
            if pl.SolveID == "" {
                _ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"solveId required"}`)})
                _ = write(wsMessage{Type: "complete", ID: msg.ID})
                continue
            }
            pr := s.getPrincipal(r)
            if !(pr.IsAdmin() || pr.Role == "planner" || pr.Role == "viewer") {
                _ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"forbidden"}`)})
                _ = write(wsMessage{Type: "complete", ID: msg.ID})
                continue
            }
            wanted := map[string]struct{}{}
            for _, e := range pl.Events {
                wanted[e] = struct{}{}
            }
            ch := s.Broker.Subscribe(pl.SolveID)
            subs[msg.ID] = sub{solveID: pl.SolveID, ch: ch}
            // Fanout goroutine
            go func(id string, c chan SSEEvent) {
                for evt := range c {
                    if len(wanted) > 0 {
                        if _, ok := wanted[evt.Type]; !ok {
                            continue
                        }
                    }
                    payload, _ := json.Marshal(map[string]any{"type": evt.Type, "data": evt.Data})
                    _ = write(wsMessage{Type: "next", ID: id, Payload: payload})
                }
                _ = write(wsMessage{Type: "complete", ID: id})
            }(msg.ID, ch)
        case "complete":
            if s0, ok := subs[msg.ID]; ok {
                s.Broker.Unsubscribe(s0.solveID, s0.ch)
                delete(subs, msg.ID)
            }
        default:
            // ignore
        }
    }
    // Cleanup
    for id, s0 := range subs {
        s.Broker.Unsubscribe(s0.solveID, s0.ch)
        delete(subs, id)
    }
}
