// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/wearable_biosensor/internal/config"
	"github.com/relabs-tech/wearable_biosensor/internal/logger"
	"github.com/relabs-tech/wearable_biosensor/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RunWeb serves the latest record and status over HTTP and streams every
// data record to websocket clients.
func RunWeb() error {
	cfg := config.Get()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "biosensor-web")
	if err != nil {
		return err
	}
	defer log.Sync()

	var (
		mu         sync.RWMutex
		lastRecord json.RawMessage
		lastStatus telemetry.Status
		haveStatus bool
	)

	// Websocket fan-out. Subscribers register a channel; slow clients
	// drop messages rather than stall the MQTT callback.
	var (
		subsMu sync.Mutex
		subs   = map[chan []byte]struct{}{}
	)
	broadcast := func(payload []byte) {
		subsMu.Lock()
		defer subsMu.Unlock()
		for ch := range subs {
			select {
			case ch <- payload:
			default:
			}
		}
	}

	// 1) Connect to the MQTT broker and mirror the device's channels.
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Infof("web: connected to MQTT broker at %s", cfg.MQTT.Broker)

	token := client.Subscribe(cfg.MQTT.TopicData, 0, func(_ mqtt.Client, msg mqtt.Message) {
		payload := append([]byte(nil), msg.Payload()...)
		mu.Lock()
		lastRecord = payload
		mu.Unlock()
		broadcast(payload)
	})
	if token.Wait(); token.Error() != nil {
		return token.Error()
	}

	token = client.Subscribe(cfg.MQTT.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s telemetry.Status
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Warnf("web: status unmarshal error: %v", err)
			return
		}
		mu.Lock()
		lastStatus = s
		haveStatus = true
		mu.Unlock()
	})
	if token.Wait(); token.Error() != nil {
		return token.Error()
	}
	log.Infof("web: subscribed to %s and %s", cfg.MQTT.TopicData, cfg.MQTT.TopicStatus)

	// 2) JSON API: latest record and status.
	http.HandleFunc("/api/latest", func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		defer mu.RUnlock()
		if lastRecord == nil {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(lastRecord)
	})

	http.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		defer mu.RUnlock()
		if !haveStatus {
			http.Error(w, "no status yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(lastStatus); err != nil {
			log.Warnf("web: json encode error: %v", err)
		}
	})

	// 3) Command passthrough: POST body goes to the control topic.
	http.HandleFunc("/api/command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Command string `json:"command"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		client.Publish(cfg.MQTT.TopicControl, 0, false, req.Command)
		w.WriteHeader(http.StatusAccepted)
	})

	// 4) Websocket live stream of data records.
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnf("web: websocket upgrade: %v", err)
			return
		}

		ch := make(chan []byte, 32)
		subsMu.Lock()
		subs[ch] = struct{}{}
		subsMu.Unlock()

		defer func() {
			subsMu.Lock()
			delete(subs, ch)
			subsMu.Unlock()
			conn.Close()
		}()

		// Reader goroutine only watches for the client going away.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case payload := <-ch:
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})

	// 5) Static files from ./web as the root.
	http.Handle("/", http.FileServer(http.Dir("web")))

	log.Infof("web server listening on %s", cfg.Web.Addr)
	return http.ListenAndServe(cfg.Web.Addr, nil)
}
