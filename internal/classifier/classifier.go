// Package classifier decides what kind of request the latest user turn is.
package classifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/recruitu/networku/internal/domain"
	"github.com/recruitu/networku/internal/llm"
	"github.com/recruitu/networku/internal/prompts"
)

// Completer returns a JSON-object completion.
type Completer interface {
	CompleteJSON(ctx context.Context, req llm.Request) (string, error)
}

// Classifier turns a conversation into a ClassificationResult.
type Classifier struct {
	llm     Completer
	prompts *prompts.Set
	logger  *slog.Logger
}

// New creates a Classifier.
func New(c Completer, set *prompts.Set, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{llm: c, prompts: set, logger: logger}
}

// Classify asks the model to classify the newest turn. A reply that does not
// parse yields the zero result, which marks the turn invalid. Provider errors
// are returned as is.
func (c *Classifier) Classify(ctx context.Context, conv domain.Conversation) (domain.ClassificationResult, error) {
	content, err := c.llm.CompleteJSON(ctx, llm.Request{
		System:       c.prompts.System,
		Conversation: conv,
		Instruction:  c.prompts.Classifier,
	})
	if err != nil {
		return domain.ClassificationResult{}, err
	}

	result, ok := parse(content)
	if !ok {
		c.logger.Warn("classifier: unparsable reply, treating turn as invalid", "content_length", len(content))
		return domain.ClassificationResult{}, nil
	}
	c.logger.Debug("classifier: decision",
		"valid", result.IsValid,
		"clarifying", result.IsClarifying,
		"general", result.IsGeneral,
		"cold_email", result.IsColdEmail,
		"search", result.IsSearch,
		"conflicting", result.Conflicting(),
		"reasoning", result.Reasoning,
	)
	return result, nil
}

func parse(content string) (domain.ClassificationResult, bool) {
	content = strings.TrimSpace(content)
	// Some models wrap JSON mode output in a markdown fence.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.ClassificationResult{}, false
	}

	var result domain.ClassificationResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return domain.ClassificationResult{}, false
	}
	return result, true
}
