package agent

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/recruitu/networku/internal/api"
	"github.com/recruitu/networku/internal/contacts"
	"github.com/recruitu/networku/internal/domain"
	"github.com/recruitu/networku/internal/relay"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

// Client-facing error messages.
const (
	msgInternal       = "Internal server error"
	msgNoFunctionCall = "No function call was generated. Unable to process the request."
)

// TurnIDHeader carries the per-turn ID that correlates transcript log lines.
const TurnIDHeader = "X-Turn-ID"

// HandlerConfig configures the chat handlers.
type HandlerConfig struct {
	MaxRequestBodySize int64
	// AllowedOrigins is checked on WebSocket upgrades; "*" allows any origin.
	AllowedOrigins []string
	Transcript     ConversationLogger
	Logger         *slog.Logger
}

// Handler serves the chat endpoints.
type Handler struct {
	agent          Responder
	maxBodySize    int64
	allowedOrigins []string
	log            ConversationLogger
	logger         *slog.Logger
}

// NewHandler creates a chat handler backed by agent.
func NewHandler(agent Responder, cfg HandlerConfig) *Handler {
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	if cfg.Transcript == nil {
		cfg.Transcript = noopConversationLogger{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		agent:          agent,
		maxBodySize:    cfg.MaxRequestBodySize,
		allowedOrigins: cfg.AllowedOrigins,
		log:            cfg.Transcript,
		logger:         cfg.Logger,
	}
}

// RegisterRoutes registers the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api", h.HandleChat)
	r.Get("/api/ws", h.HandleWebSocket)
}

// Close flushes the transcript logger.
func (h *Handler) Close() {
	if err := h.log.Close(); err != nil {
		h.logger.Warn("failed to close conversation logger", "error", err)
	}
}

// turn carries per-request state shared by the HTTP and WebSocket paths.
type turn struct {
	id        string
	requestID string
	channel   string
	conv      domain.Conversation
}

// decodeConversation reads a ChatRequest and returns the normalized, valid
// conversation or a status and message for the client.
func decodeConversation(body io.Reader) (domain.Conversation, int, string) {
	var req ChatRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, "request body too large"
		}
		return nil, http.StatusBadRequest, "invalid request body"
	}
	conv := req.ChatHistory.Normalize()
	if err := conv.Validate(); err != nil {
		return nil, http.StatusBadRequest, err.Error()
	}
	return conv, 0, ""
}

// HandleChat handles POST /api. The reply is streamed as raw text fragments,
// each flushed as soon as it is read from the relay.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	conv, status, msg := decodeConversation(r.Body)
	if status != 0 {
		api.Error(w, status, msg)
		return
	}

	t := h.newTurn(r, "chat_http", conv)
	w.Header().Set(TurnIDHeader, t.id)

	stream, err := h.agent.Respond(r.Context(), conv)
	if err != nil {
		h.logger.Error("chat turn failed before streaming", "turn_id", t.id, "request_id", t.requestID, "error", err)
		h.logAssistantMessage(t, "", 0, false, err.Error())
		api.Error(w, http.StatusInternalServerError, clientMessage(err))
		return
	}
	defer func() { _ = stream.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var writeErr error
	content, chunks, err := drain(stream, func(p []byte) error {
		if _, writeErr = w.Write(p); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	switch {
	case writeErr != nil:
		h.logger.Warn("client went away mid-stream", "turn_id", t.id, "error", writeErr)
		h.logAssistantMessage(t, content, chunks, true, writeErr.Error())
		return
	case err != nil && r.Context().Err() != nil:
		h.logger.Info("client disconnected mid-stream", "turn_id", t.id, "chunks", chunks)
		h.logAssistantMessage(t, content, chunks, true, err.Error())
		return
	case err != nil:
		h.logger.Error("chat stream failed", "turn_id", t.id, "request_id", t.requestID, "chunks", chunks, "error", err)
		h.logAssistantMessage(t, content, chunks, true, err.Error())
		// Abort the connection so the client sees a failed transfer
		// rather than a clean end of a truncated reply.
		panic(http.ErrAbortHandler)
	}
	h.logAssistantMessage(t, content, chunks, false, "")
}

func (h *Handler) newTurn(r *http.Request, channel string, conv domain.Conversation) turn {
	t := turn{
		id:        uuid.NewString(),
		requestID: chiMiddleware.GetReqID(r.Context()),
		channel:   channel,
		conv:      conv,
	}
	last := conv.Last()
	h.logger.Info("chat request",
		"turn_id", t.id,
		"request_id", t.requestID,
		"channel", channel,
		"messages", len(conv),
		"message_length", len(last.Content),
	)
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		TurnID:     t.id,
		Channel:    channel,
		Direction:  "inbound",
		EventType:  "chat_user_message",
		ContentRaw: last.Content,
		Meta: map[string]any{
			"request_id": t.requestID,
			"messages":   len(conv),
		},
	})
	return t
}

func (h *Handler) logAssistantMessage(t turn, content string, streamChunks int, partial bool, streamErrMsg string) {
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		TurnID:     t.id,
		Channel:    t.channel,
		Direction:  "outbound",
		EventType:  "chat_assistant_message",
		ContentRaw: content,
		Meta: map[string]any{
			"stream_chunks": streamChunks,
			"partial":       partial,
			"stream_error":  streamErrMsg,
			"request_id":    t.requestID,
		},
	})
}

// clientMessage maps a pre-stream failure to the text shown to the client.
func clientMessage(err error) string {
	if errors.Is(err, contacts.ErrNoFunctionCall) {
		return msgNoFunctionCall
	}
	return msgInternal
}

// drain passes each read from stream to emit until the stream ends, and
// returns the delivered text, the number of reads and the first error.
func drain(stream *relay.Stream, emit func([]byte) error) (string, int, error) {
	var content strings.Builder
	chunks := 0
	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if emitErr := emit(buf[:n]); emitErr != nil {
				return content.String(), chunks, emitErr
			}
			content.Write(buf[:n])
			chunks++
		}
		if errors.Is(err, io.EOF) {
			return content.String(), chunks, nil
		}
		if err != nil {
			return content.String(), chunks, err
		}
	}
}
