// Package socket carries the transcription protocol over websockets. Each
// connection gets an id, a buffered outbound queue drained by a write pump,
// and a read loop that feeds events to the coordinator in arrival order.
package socket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/kbukum/medscribe/logger"
	"github.com/kbukum/medscribe/realtime"
)

// Hub routes outbound events to live connections. It implements
// realtime.Emitter.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*outbound
	log   *logger.Logger
}

type outbound struct {
	send chan []byte
	wait time.Duration
}

var _ realtime.Emitter = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{conns: make(map[string]*outbound), log: log.WithComponent("socket")}
}

// Emit queues a frame for connID. Frames for unknown connections are
// dropped. When the queue is full, transcription-stopped waits up to the
// connection's write wait for room; any other frame is dropped at once.
func (h *Hub) Emit(connID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("Failed to encode event", map[string]interface{}{
			logger.FieldConnectionID: connID,
			"event":                  event,
			logger.FieldError:        err.Error(),
		})
		return
	}
	frame, err := json.Marshal(realtime.Frame{Event: event, Data: data})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	out, ok := h.conns[connID]
	if !ok {
		return
	}
	select {
	case out.send <- frame:
		return
	default:
	}
	if event == realtime.EventTranscriptionStopped && out.wait > 0 {
		timer := time.NewTimer(out.wait)
		defer timer.Stop()
		select {
		case out.send <- frame:
			return
		case <-timer.C:
		}
	}
	h.log.Warn("Outbound queue full, dropping event", map[string]interface{}{
		logger.FieldConnectionID: connID,
		"event":                  event,
	})
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// register opens a queue for connID. wait bounds how long a terminal frame
// may block on a full queue.
func (h *Hub) register(connID string, buffer int, wait time.Duration) <-chan []byte {
	out := &outbound{send: make(chan []byte, buffer), wait: wait}
	h.mu.Lock()
	h.conns[connID] = out
	h.mu.Unlock()
	return out.send
}

// unregister closes the connection's queue, which ends its write pump.
func (h *Hub) unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if out, ok := h.conns[connID]; ok {
		delete(h.conns, connID)
		close(out.send)
	}
}
