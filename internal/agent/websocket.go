package agent

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// wsRequestTimeout bounds how long a client may take to send its request frame.
const wsRequestTimeout = 30 * time.Second

// HandleWebSocket handles GET /api/ws. The client sends one ChatRequest text
// frame; the reply is sent as one text frame per fragment, followed by a
// normal close. Failures close with StatusInternalError and a short reason.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("failed to accept websocket", "error", err)
		return
	}
	defer func() { _ = ws.CloseNow() }()
	ws.SetReadLimit(h.maxBodySize)

	ctx := r.Context()
	readCtx, cancel := context.WithTimeout(ctx, wsRequestTimeout)
	typ, data, err := ws.Read(readCtx)
	cancel()
	if err != nil {
		if websocket.CloseStatus(err) != -1 {
			h.logger.Debug("websocket closed by client before request")
		} else {
			h.logger.Warn("websocket read error", "error", err)
		}
		return
	}
	if typ != websocket.MessageText {
		_ = ws.Close(websocket.StatusUnsupportedData, "expected a JSON text frame")
		return
	}

	conv, status, msg := decodeConversation(bytes.NewReader(data))
	if status != 0 {
		_ = ws.Close(websocket.StatusPolicyViolation, msg)
		return
	}

	t := h.newTurn(r, "chat_ws", conv)
	stream, err := h.agent.Respond(ctx, conv)
	if err != nil {
		h.logger.Error("chat turn failed before streaming", "turn_id", t.id, "error", err)
		h.logAssistantMessage(t, "", 0, false, err.Error())
		_ = ws.Close(websocket.StatusInternalError, clientMessage(err))
		return
	}
	defer func() { _ = stream.Close() }()

	content, chunks, err := drain(stream, func(p []byte) error {
		return ws.Write(ctx, websocket.MessageText, p)
	})
	if err != nil {
		h.logger.Warn("websocket stream ended early", "turn_id", t.id, "chunks", chunks, "error", err)
		h.logAssistantMessage(t, content, chunks, true, err.Error())
		if !errors.Is(err, context.Canceled) {
			_ = ws.Close(websocket.StatusInternalError, msgInternal)
		}
		return
	}
	h.logAssistantMessage(t, content, chunks, false, "")
	_ = ws.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	h.logger.Warn("websocket origin rejected", "origin", origin)
	return false
}
