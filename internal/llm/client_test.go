package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recruitu/networku/internal/domain"
	"github.com/recruitu/networku/internal/metrics"
)

// fakeOpenAI serves /v1/chat/completions and records decoded request bodies.
type fakeOpenAI struct {
	t        *testing.T
	requests []map[string]any
	handle   func(w http.ResponseWriter, body map[string]any)
}

func newFakeOpenAI(t *testing.T, handle func(w http.ResponseWriter, body map[string]any)) (*fakeOpenAI, *Client) {
	t.Helper()
	f := &fakeOpenAI{t: t, handle: handle}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		f.requests = append(f.requests, body)
		f.handle(w, body)
	}))
	t.Cleanup(srv.Close)

	client, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, metrics.New(prometheus.NewRegistry()), nil)
	require.NoError(t, err)
	return f, client
}

func writeCompletion(w http.ResponseWriter, message map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"choices": []map[string]any{{"index": 0, "message": message, "finish_reason": "stop"}},
	})
}

func writeStream(w http.ResponseWriter, deltas ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, d := range deltas {
		chunk, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion.chunk",
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": d}}},
		})
		_, _ = fmt.Fprintf(w, "data: %s\n\n", chunk)
	}
	_, _ = io.WriteString(w, "data: [DONE]\n\n")
}

var sampleConversation = domain.Conversation{
	{Role: domain.RoleSystem, Content: "Hi! I am NetworkU."},
	{Role: domain.RoleUser, Content: "Find consultants at McKinsey in Boston"},
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{}, nil, nil)
	require.Error(t, err)
}

func TestRequestMessagesMapsRoles(t *testing.T) {
	msgs := Request{System: "persona", Conversation: sampleConversation, Instruction: "do it"}.messages()

	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "user", msgs[2].Role)
	assert.Equal(t, "system", msgs[3].Role)
	assert.Equal(t, "do it", msgs[3].Content)
}

func TestCompleteJSON(t *testing.T) {
	f, client := newFakeOpenAI(t, func(w http.ResponseWriter, _ map[string]any) {
		writeCompletion(w, map[string]any{"role": "assistant", "content": `{"isValid":true}`})
	})

	got, err := client.CompleteJSON(context.Background(), Request{System: "persona", Conversation: sampleConversation})
	require.NoError(t, err)
	assert.Equal(t, `{"isValid":true}`, got)

	require.Len(t, f.requests, 1)
	format, ok := f.requests[0]["response_format"].(map[string]any)
	require.True(t, ok, "response_format missing")
	assert.Equal(t, "json_object", format["type"])
	assert.Equal(t, "gpt-4o-mini", f.requests[0]["model"])
	assert.NotContains(t, f.requests[0], "tools")
}

func TestCompleteJSONProviderError(t *testing.T) {
	_, client := newFakeOpenAI(t, func(w http.ResponseWriter, _ map[string]any) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
	})

	_, err := client.CompleteJSON(context.Background(), Request{Conversation: sampleConversation})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "llm: json completion failed"))
}

func TestCallFunctionReturnsToolCall(t *testing.T) {
	f, client := newFakeOpenAI(t, func(w http.ResponseWriter, _ map[string]any) {
		writeCompletion(w, map[string]any{
			"role": "assistant",
			"tool_calls": []map[string]any{{
				"id":   "call_1",
				"type": "function",
				"function": map[string]any{
					"name":      "fetch_contacts",
					"arguments": `{"current_company":"McKinsey","city":"Boston"}`,
				},
			}},
		})
	})

	fn := Function{Name: "fetch_contacts", Description: "lookup", Parameters: map[string]any{"type": "object"}}
	call, err := client.CallFunction(context.Background(), Request{Conversation: sampleConversation}, fn)
	require.NoError(t, err)
	assert.Equal(t, "fetch_contacts", call.Name)
	assert.JSONEq(t, `{"current_company":"McKinsey","city":"Boston"}`, call.Arguments)

	req := f.requests[0]
	tools, ok := req["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	choice, ok := req["tool_choice"].(map[string]any)
	require.True(t, ok, "tool_choice should force the function")
	assert.Equal(t, "fetch_contacts", choice["function"].(map[string]any)["name"])
}

func TestCallFunctionWithoutCall(t *testing.T) {
	_, client := newFakeOpenAI(t, func(w http.ResponseWriter, _ map[string]any) {
		writeCompletion(w, map[string]any{"role": "assistant", "content": "I'd rather chat."})
	})

	_, err := client.CallFunction(context.Background(), Request{Conversation: sampleConversation}, Function{Name: "fetch_contacts"})
	require.ErrorIs(t, err, ErrNoFunctionCall)
}

func TestStreamYieldsDeltas(t *testing.T) {
	_, client := newFakeOpenAI(t, func(w http.ResponseWriter, body map[string]any) {
		if body["stream"] != true {
			t.Errorf("expected stream=true, got %v", body["stream"])
		}
		writeStream(w, "Hel", "", "lo")
	})

	var got []string
	for delta, err := range client.Stream(context.Background(), Request{Conversation: sampleConversation}) {
		require.NoError(t, err)
		got = append(got, delta)
	}
	assert.Equal(t, []string{"Hel", "lo"}, got)
}

func TestStreamStopsWhenConsumerBreaks(t *testing.T) {
	_, client := newFakeOpenAI(t, func(w http.ResponseWriter, _ map[string]any) {
		writeStream(w, "a", "b", "c")
	})

	var got []string
	for delta, err := range client.Stream(context.Background(), Request{Conversation: sampleConversation}) {
		require.NoError(t, err)
		got = append(got, delta)
		break
	}
	assert.Equal(t, []string{"a"}, got)
}

func TestStreamRequestError(t *testing.T) {
	_, client := newFakeOpenAI(t, func(w http.ResponseWriter, _ map[string]any) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded"}}`)
	})

	var errs []error
	for _, err := range client.Stream(context.Background(), Request{Conversation: sampleConversation}) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "llm: stream request failed")
	var apiErr *openai.APIError
	require.True(t, errors.As(errs[0], &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.HTTPStatusCode)
}
