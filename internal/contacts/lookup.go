// Package contacts finds networking contacts for a conversation: the model
// extracts a ContactQuery through a forced function call, the directory is
// queried over HTTP, and the results are shaped into prompt text.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/recruitu/networku/internal/domain"
	"github.com/recruitu/networku/internal/llm"
	"github.com/recruitu/networku/internal/metrics"
	"github.com/recruitu/networku/internal/prompts"
)

// DefaultMaxResults bounds the contacts forwarded to the prompt.
const DefaultMaxResults = 5

// ErrNoFunctionCall is returned when the model does not call fetch_contacts.
var ErrNoFunctionCall = llm.ErrNoFunctionCall

// FunctionCaller forces a single function call from the model.
type FunctionCaller interface {
	CallFunction(ctx context.Context, req llm.Request, fn llm.Function) (llm.FunctionCall, error)
}

// Searcher queries the contacts directory.
type Searcher interface {
	Search(ctx context.Context, q domain.ContactQuery) ([]domain.ContactRecord, error)
}

// Result is the outcome of one lookup.
type Result struct {
	Query    domain.ContactQuery
	Contacts []domain.ContactRecord
	// Text is the shaped contact list, empty when nothing matched.
	Text string
}

// Options tunes a Lookup.
type Options struct {
	MaxResults int
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Lookup runs extraction, directory search and shaping for one turn.
type Lookup struct {
	caller     FunctionCaller
	directory  Searcher
	prompts    *prompts.Set
	maxResults int
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Lookup.
func New(caller FunctionCaller, directory Searcher, set *prompts.Set, opts Options) *Lookup {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Lookup{
		caller:     caller,
		directory:  directory,
		prompts:    set,
		maxResults: opts.MaxResults,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
}

// Extract asks the model for the query described by the conversation.
func (l *Lookup) Extract(ctx context.Context, conv domain.Conversation) (domain.ContactQuery, error) {
	fn := Function()
	call, err := l.caller.CallFunction(ctx, llm.Request{
		System:       l.prompts.System,
		Conversation: conv,
		Instruction:  l.prompts.Extraction,
	}, fn)
	if err != nil {
		return domain.ContactQuery{}, err
	}
	if call.Name != fn.Name {
		return domain.ContactQuery{}, ErrNoFunctionCall
	}
	return ParseArguments(call.Arguments)
}

// Find extracts a query, searches the directory and shapes at most
// MaxResults contacts. Zero matches is not an error.
func (l *Lookup) Find(ctx context.Context, conv domain.Conversation) (Result, error) {
	q, err := l.Extract(ctx, conv)
	if err != nil {
		l.metrics.ObserveLookup(lookupStatus(err), 0)
		return Result{}, fmt.Errorf("contacts: extract query: %w", err)
	}

	res := Result{Query: q}
	if q.IsEmpty() {
		l.logger.Info("contacts: empty query, skipping directory search")
		l.metrics.ObserveLookup("empty_query", 0)
		return res, nil
	}

	records, err := l.directory.Search(ctx, q)
	if err != nil {
		l.metrics.ObserveLookup(lookupStatus(err), 0)
		return Result{}, err
	}
	if len(records) > l.maxResults {
		records = records[:l.maxResults]
	}
	res.Contacts = records
	res.Text = Shape(records)

	l.logger.Info("contacts: lookup complete",
		"query", q.Values().Encode(),
		"results", len(records),
	)
	l.metrics.ObserveLookup("ok", len(records))
	return res, nil
}

func lookupStatus(err error) string {
	var httpErr *HTTPError
	switch {
	case errors.Is(err, ErrNoFunctionCall):
		return "no_function_call"
	case errors.Is(err, ErrInvalidArguments):
		return "invalid_arguments"
	case errors.As(err, &httpErr):
		return "http_error"
	default:
		return "error"
	}
}
