package agent

import (
	"context"
	"iter"

	"github.com/recruitu/networku/internal/classifier"
	"github.com/recruitu/networku/internal/contacts"
	"github.com/recruitu/networku/internal/domain"
	"github.com/recruitu/networku/internal/llm"
	"github.com/recruitu/networku/internal/relay"
)

// Classifier decides what the latest turn asks for.
type Classifier interface {
	Classify(ctx context.Context, conv domain.Conversation) (domain.ClassificationResult, error)
}

// ContactFinder looks up contacts described by the conversation.
type ContactFinder interface {
	Find(ctx context.Context, conv domain.Conversation) (contacts.Result, error)
}

// Generator streams a completion.
type Generator interface {
	Stream(ctx context.Context, req llm.Request) iter.Seq2[string, error]
}

// Responder produces the streamed reply to a conversation.
type Responder interface {
	Respond(ctx context.Context, conv domain.Conversation) (*relay.Stream, error)
}

var (
	_ Classifier    = (*classifier.Classifier)(nil)
	_ ContactFinder = (*contacts.Lookup)(nil)
	_ Generator     = (*llm.Client)(nil)
	_ Responder     = (*Service)(nil)
)
