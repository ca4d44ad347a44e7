package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
)

// Connects to a running engine's event feed and prints one event per line.
// Useful for eyeballing mouth updates and state transitions while tuning
// detection thresholds.
func main() {
	url := flag.String("url", "ws://localhost:8080/feed", "")
	kind := flag.String("kind", "", "only print events whose kind contains this substring")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *url, err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Fprintf(os.Stderr, "connected to %s\n", *url)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if *kind != "" {
			var ev struct {
				Kind string `json:"kind"`
			}
			if json.Unmarshal(msg, &ev) != nil || !strings.Contains(ev.Kind, *kind) {
				continue
			}
		}
		fmt.Println(string(msg))
	}
}
