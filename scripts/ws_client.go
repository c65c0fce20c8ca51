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

	// Generate a small instance
	body := []byte(`{"name":"ws-demo","numShops":15,"capacity":10,"seed":7}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/instances/generate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var instResp struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&instResp); err != nil {
		log.Fatal(err)
	}
	log.Printf("Instance ID: %s", instResp.ID)

	// Kick off a solve
	solveBody, _ := json.Marshal(map[string]any{"instanceId": instResp.ID, "iterations": 200})
	sreq, _ := http.NewRequest(http.MethodPost, base+"/v1/solve", bytes.NewReader(solveBody))
	sreq.Header.Set("Content-Type", "application/json")
	sreq.Header.Set("X-Role", "admin")
	sresp, err := http.DefaultClient.Do(sreq)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = sresp.Body.Close() }()
	var solveResp struct {
		SolveID string `json:"solveId"`
	}
	if err := json.NewDecoder(sresp.Body).Decode(&solveResp); err != nil {
		log.Fatal(err)
	}
	log.Printf("Solve ID: %s", solveResp.SolveID)

	// Connect WS and subscribe to solve events
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/ws/solves"}
	hdr := http.Header{}
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]any{"solveId": solveResp.SolveID})
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

	// Wait briefly to receive progress and the terminal status event
	select {
	case <-time.After(5 * time.Second):
	case <-done:
	}
}
