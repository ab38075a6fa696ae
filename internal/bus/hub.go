package bus

import (
	"encoding/json"
	log "log/slog"
	"net/http"

	ws "github.com/gorilla/websocket"
)

// Hub accepts bus clients and hands every decoded message to handle.
type Hub struct {
	upgrader ws.Upgrader
	handle   func(Message)
}

func NewHub(handle func(Message)) *Hub {
	return &Hub{
		upgrader: ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		handle:   handle,
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Bus upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()
	log.Info("Bus client connected", "remote", r.RemoteAddr)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if IsClosed(err) {
				log.Info("Bus client left", "remote", r.RemoteAddr)
			} else {
				log.Warn("Bus read failed", "remote", r.RemoteAddr, "err", err)
			}
			return
		}

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn("Dropping malformed bus message", "err", err)
			continue
		}
		h.handle(m)
	}
}
