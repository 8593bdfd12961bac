// Package llm adapts the OpenAI chat-completions API to the three call shapes
// the chat pipeline needs: JSON-object completions, forced function calls and
// token streaming.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/recruitu/networku/internal/domain"
	"github.com/recruitu/networku/internal/metrics"
)

var tracer = otel.Tracer("networku.internal.llm")

// ErrNoFunctionCall is returned when the model answers without calling the
// declared function.
var ErrNoFunctionCall = errors.New("llm: no function call generated")

// zeroTemperature stands in for 0, which go-openai drops as an omitted field.
const zeroTemperature = math.SmallestNonzeroFloat32

type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// Config describes how to reach the provider.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// Timeout bounds non-streaming calls. Streams live as long as the caller's context.
	Timeout time.Duration
}

// Client issues chat completions against the configured model.
type Client struct {
	api     chatAPI
	model   string
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New builds a Client backed by the go-openai SDK.
func New(cfg Config, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm: api key required")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	return newClient(openai.NewClientWithConfig(oc), cfg, m, logger), nil
}

func newClient(api chatAPI, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		api:     api,
		model:   model,
		timeout: timeout,
		metrics: m,
		logger:  logger,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Request is one prompt sent to the provider: an optional system prompt, the
// conversation, and an optional trailing instruction.
type Request struct {
	System       string
	Conversation domain.Conversation
	Instruction  string
}

func (r Request) messages() []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(r.Conversation)+2)
	if r.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: r.System})
	}
	for _, m := range r.Conversation {
		role := openai.ChatMessageRoleUser
		if m.Role == domain.RoleSystem {
			// Earlier NetworkU replies; the provider must see them as its own turns.
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	if r.Instruction != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: r.Instruction})
	}
	return msgs
}

// CompleteJSON asks for a single JSON-object reply at temperature 0 and
// returns its raw content.
func (c *Client) CompleteJSON(ctx context.Context, req Request) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.complete_json")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    req.messages(),
		Temperature: zeroTemperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	c.observe("complete_json", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", fmt.Errorf("llm: json completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Function declares the single callable offered to the model.
type Function struct {
	Name        string
	Description string
	// Parameters is a JSON schema object.
	Parameters map[string]any
}

// FunctionCall is the model's invocation of a declared Function.
type FunctionCall struct {
	Name      string
	Arguments string
}

// CallFunction forces the model to call fn and returns the call it produced.
// A reply without a matching call yields ErrNoFunctionCall.
func (c *Client) CallFunction(ctx context.Context, req Request, fn Function) (FunctionCall, error) {
	ctx, span := tracer.Start(ctx, "llm.call_function")
	defer span.End()
	span.SetAttributes(attribute.String("networku.llm.function", fn.Name))

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    req.messages(),
		Temperature: zeroTemperature,
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			},
		}},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: fn.Name},
		},
	})
	c.observe("call_function", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return FunctionCall{}, fmt.Errorf("llm: function completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return FunctionCall{}, ErrNoFunctionCall
	}

	msg := resp.Choices[0].Message
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == fn.Name {
			return FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments}, nil
		}
	}
	if msg.FunctionCall != nil && msg.FunctionCall.Name == fn.Name {
		return FunctionCall{Name: msg.FunctionCall.Name, Arguments: msg.FunctionCall.Arguments}, nil
	}
	return FunctionCall{}, ErrNoFunctionCall
}

// Stream requests a temperature-0 streamed completion and yields each
// non-empty content delta. The provider stream is released when the sequence
// ends or the consumer stops iterating.
func (c *Client) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, span := tracer.Start(ctx, "llm.stream")
		defer span.End()

		start := time.Now()
		stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    req.messages(),
			Temperature: zeroTemperature,
			Stream:      true,
		})
		if err != nil {
			c.observe("stream", start, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream request failed")
			yield("", fmt.Errorf("llm: stream request failed: %w", err))
			return
		}
		defer func() {
			if closeErr := stream.Close(); closeErr != nil {
				c.logger.Debug("llm: failed to close stream", "error", closeErr)
			}
		}()

		deltas := 0
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				c.observe("stream", start, nil)
				span.SetAttributes(attribute.Int("networku.llm.deltas", deltas))
				return
			}
			if err != nil {
				c.observe("stream", start, err)
				span.RecordError(err)
				span.SetStatus(codes.Error, "stream receive failed")
				yield("", fmt.Errorf("llm: stream receive failed: %w", err))
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			deltas++
			if !yield(resp.Choices[0].Delta.Content, nil) {
				c.metrics.ObserveLLMCall("stream", "cancelled", time.Since(start).Seconds())
				return
			}
		}
	}
}

func (c *Client) observe(kind string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, context.Canceled) {
			status = "cancelled"
		}
	}
	c.metrics.ObserveLLMCall(kind, status, time.Since(start).Seconds())
}
