// Package main runs a demo WebSocket client: it subscribes to the routes
// stream, submits one optimisation and prints the events it receives.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

const demoRequest = `{
  "orders": [
    {"id": 1, "pickup_location": {"lat": 52.520, "lng": 13.405}, "dropoff_location": {"lat": 52.510, "lng": 13.390}},
    {"id": 2, "pickup_location": {"lat": 52.530, "lng": 13.420}, "dropoff_location": {"lat": 52.500, "lng": 13.430}}
  ],
  "vehicles": [{"id": 1, "start_location": {"lat": 52.515, "lng": 13.400}}],
  "time_budget_ms": 1000
}`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	host := flag.String("host", "localhost:"+port, "API host:port")
	topic := flag.String("topic", "routes", "stream topic (vehicles or routes)")
	wait := flag.Duration("wait", 3*time.Second, "how long to listen")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *host, Path: "/v1/stream", RawQuery: "topic=" + url.QueryEscape(*topic)}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s", msg)
		}
	}()

	resp, err := http.Post(fmt.Sprintf("http://%s/optimize_routes", *host), "application/json", bytes.NewReader([]byte(demoRequest)))
	if err != nil {
		log.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	log.Printf("optimize_routes %s: %s", resp.Status, body)

	select {
	case <-time.After(*wait):
	case <-done:
	}
}
