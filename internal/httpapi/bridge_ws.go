package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/healthpilot/internal/protocol"
)

const (
	bridgeQueueSize    = 256
	bridgeReadLimit    = 2 << 20
	bridgeReadTimeout  = 120 * time.Second
	bridgeWriteTimeout = 10 * time.Second
)

func (s *Server) handleBridgeWS(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "device bridge not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ObserveSessionEvent("ws_connected")
	s.logger.Info("device bridge connected", zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The bridge may still hold a reference to outbound after detach, so
	// it is never closed; the writer exits on ctx instead.
	outbound := make(chan any, bridgeQueueSize)
	detach := s.bridge.Attach(outbound)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(bridgeWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					s.metrics.ObserveSessionEvent("ws_write_error")
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(bridgeReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(bridgeReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(bridgeReadTimeout))
		return nil
	})

	for ctx.Err() == nil {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(bridgeReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_client_message",
				Source:    "bridge",
				Retryable: false,
				Detail:    err.Error(),
			}
			select {
			case outbound <- errEvent:
				s.metrics.ObserveOutboundMessage(string(protocol.TypeErrorEvent), "queued")
			default:
				s.metrics.ObserveOutboundMessage(string(protocol.TypeErrorEvent), "drop_full")
			}
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveInboundMessage(string(t))
		}
		s.bridge.Handle(parsed)
	}

	detach()
	cancel()
	<-writerDone
	s.metrics.ObserveSessionEvent("ws_disconnected")
	s.logger.Info("device bridge disconnected", zap.String("remote", r.RemoteAddr))
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientAudioChunk:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.RecognitionEvent:
		return m.Type, true
	case protocol.SpeechEvent:
		return m.Type, true
	default:
		return "", false
	}
}
