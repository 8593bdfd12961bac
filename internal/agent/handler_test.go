package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recruitu/networku/internal/contacts"
	"github.com/recruitu/networku/internal/domain"
)

func newTestServer(t *testing.T, f *fixture, cfg HandlerConfig) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	h := NewHandler(f.service, cfg)
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(h.Close)
	return srv
}

func chatBody(t *testing.T, conv domain.Conversation) io.Reader {
	t.Helper()
	data, err := json.Marshal(ChatRequest{ChatHistory: conv})
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body["error"]
}

func TestHandleChatStreamsReply(t *testing.T) {
	f := newFixture(t, domain.ClassificationResult{IsValid: true, IsGeneral: true})
	srv := newTestServer(t, f, HandlerConfig{})

	resp, err := http.Post(srv.URL+"/api", "application/json", chatBody(t, conversation))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))
	assert.NotEmpty(t, resp.Header.Get(TurnIDHeader))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Hello", string(body))
}

func TestHandleChatAcceptsAssistantAlias(t *testing.T) {
	f := newFixture(t, domain.ClassificationResult{IsValid: true, IsGeneral: true})
	srv := newTestServer(t, f, HandlerConfig{})

	body := `{"chatHistory":[{"role":"assistant","content":"Hi!"},{"role":"User","content":"How do I network?"}]}`
	resp, err := http.Post(srv.URL+"/api", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reqs := f.generator.calls()
	require.Len(t, reqs, 1)
	assert.Equal(t, domain.RoleSystem, reqs[0].Conversation[0].Role)
	assert.Equal(t, domain.RoleUser, reqs[0].Conversation[1].Role)
}

func TestHandleChatRejectsBadRequests(t *testing.T) {
	f := newFixture(t, domain.ClassificationResult{IsValid: true, IsGeneral: true})
	srv := newTestServer(t, f, HandlerConfig{MaxRequestBodySize: 256})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"chatHistory":`, http.StatusBadRequest},
		{"empty history", `{"chatHistory":[]}`, http.StatusBadRequest},
		{"last turn not user", `{"chatHistory":[{"role":"user","content":"hi"},{"role":"system","content":"hello"}]}`, http.StatusBadRequest},
		{"unknown role", `{"chatHistory":[{"role":"tool","content":"x"},{"role":"user","content":"hi"}]}`, http.StatusBadRequest},
		{"too large", `{"chatHistory":[{"role":"user","content":"` + strings.Repeat("a", 512) + `"}]}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, decodeError(t, resp))
		})
	}
	assert.Empty(t, f.generator.calls())
}

func TestHandleChatContactsFailure(t *testing.T) {
	f := newFixture(t, domain.ClassificationResult{IsValid: true, IsSearch: true})
	f.finder.err = &contacts.HTTPError{StatusCode: http.StatusServiceUnavailable}
	srv := newTestServer(t, f, HandlerConfig{})

	resp, err := http.Post(srv.URL+"/api", "application/json", chatBody(t, conversation))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Internal server error", decodeError(t, resp))
	assert.Empty(t, f.generator.calls())
}

func TestHandleChatNoFunctionCall(t *testing.T) {
	f := newFixture(t, domain.ClassificationResult{IsValid: true, IsSearch: true})
	f.finder.err = contacts.ErrNoFunctionCall
	srv := newTestServer(t, f, HandlerConfig{})

	resp, err := http.Post(srv.URL+"/api", "application/json", chatBody(t, conversation))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "No function call was generated. Unable to process the request.", decodeError(t, resp))
}

func TestHandleChatAbortsOnStreamFailure(t *testing.T) {
	f := newFixture(t, domain.ClassificationResult{IsValid: true, IsGeneral: true})
	f.generator.fragments = []string{"Hel"}
	f.generator.err = errors.New("provider dropped the stream")
	srv := newTestServer(t, f, HandlerConfig{})

	resp, err := http.Post(srv.URL+"/api", "application/json", chatBody(t, conversation))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.Error(t, err, "a failed stream must not end cleanly")
	assert.Equal(t, "Hel", string(body))
}

func TestHandleWebSocket(t *testing.T) {
	f := newFixture(t, domain.ClassificationResult{IsValid: true, IsGeneral: true})
	srv := newTestServer(t, f, HandlerConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)
	defer func() { _ = ws.CloseNow() }()

	data, err := json.Marshal(ChatRequest{ChatHistory: conversation})
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, websocket.MessageText, data))

	var frames []string
	for {
		typ, msg, err := ws.Read(ctx)
		if err != nil {
			assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
			break
		}
		assert.Equal(t, websocket.MessageText, typ)
		frames = append(frames, string(msg))
	}
	assert.Equal(t, []string{"Hel", "lo"}, frames)
}

func TestHandleWebSocketFailureClosesWithReason(t *testing.T) {
	f := newFixture(t, domain.ClassificationResult{IsValid: true, IsSearch: true})
	f.finder.err = contacts.ErrNoFunctionCall
	srv := newTestServer(t, f, HandlerConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)
	defer func() { _ = ws.CloseNow() }()

	data, err := json.Marshal(ChatRequest{ChatHistory: conversation})
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, websocket.MessageText, data))

	_, _, err = ws.Read(ctx)
	var closeErr websocket.CloseError
	require.True(t, errors.As(err, &closeErr))
	assert.Equal(t, websocket.StatusInternalError, closeErr.Code)
	assert.Equal(t, msgNoFunctionCall, closeErr.Reason)
}

func TestCheckOrigin(t *testing.T) {
	h := NewHandler(nil, HandlerConfig{AllowedOrigins: []string{"https://app.example"}})
	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)

	assert.True(t, h.checkOrigin(req), "requests without Origin are allowed")
	req.Header.Set("Origin", "https://app.example")
	assert.True(t, h.checkOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, h.checkOrigin(req))
}
