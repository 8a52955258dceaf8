// Package main submits a delivery CSV to a running API and prints the plan's
// progress events until the plan finishes.
//
//	go run ./scripts/ws_client.go deliveries.csv
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	if len(os.Args) != 2 {
		log.Fatal("usage: ws_client deliveries.csv")
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	f, err := os.Open(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	resp, err := http.Post(base+"/v1/plans", "text/csv", f)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("submit: %s", resp.Status)
	}
	var plan struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		log.Fatal(err)
	}
	log.Printf("Plan ID: %s", plan.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/plans/" + plan.ID + "/events"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	start := time.Now()
	for {
		var m event
		if err := c.ReadJSON(&m); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("read: %v", err)
			}
			break
		}
		log.Printf("WS <- %s: %s", m.Type, string(m.Data))
	}
	log.Printf("stream closed after %s; routes at %s/v1/plans/%s/routes.csv", time.Since(start).Round(time.Millisecond), base, plan.ID)
}
