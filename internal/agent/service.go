package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/recruitu/networku/internal/domain"
	"github.com/recruitu/networku/internal/llm"
	"github.com/recruitu/networku/internal/metrics"
	"github.com/recruitu/networku/internal/prompts"
	"github.com/recruitu/networku/internal/relay"
)

// Dependencies wires a Service.
type Dependencies struct {
	Classifier Classifier
	Contacts   ContactFinder
	Generator  Generator
	Relay      *relay.Relay
	Prompts    *prompts.Set
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Service routes each turn to a reply: classify, optionally look up
// contacts, then stream the answer through the relay.
type Service struct {
	classifier Classifier
	contacts   ContactFinder
	generator  Generator
	relay      *relay.Relay
	prompts    *prompts.Set
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewService creates the router.
func NewService(d Dependencies) (*Service, error) {
	switch {
	case d.Classifier == nil:
		return nil, errors.New("agent: classifier required")
	case d.Contacts == nil:
		return nil, errors.New("agent: contact finder required")
	case d.Generator == nil:
		return nil, errors.New("agent: generator required")
	case d.Relay == nil:
		return nil, errors.New("agent: relay required")
	case d.Prompts == nil:
		return nil, errors.New("agent: prompts required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		classifier: d.Classifier,
		contacts:   d.Contacts,
		generator:  d.Generator,
		relay:      d.Relay,
		prompts:    d.Prompts,
		metrics:    d.Metrics,
		logger:     d.Logger,
	}, nil
}

// Plan classifies the latest turn and prepares the instruction for it,
// running the contact lookup when the branch needs one.
func (s *Service) Plan(ctx context.Context, conv domain.Conversation) (Plan, error) {
	result, err := s.classifier.Classify(ctx, conv)
	if err != nil {
		return Plan{}, fmt.Errorf("agent: classify: %w", err)
	}

	plan := Plan{Classification: result, Intent: result.Intent()}
	if result.Conflicting() {
		s.logger.Debug("agent: conflicting classification", "resolved", plan.Intent, "reasoning", result.Reasoning)
	}

	if !result.IsValid {
		plan.Branch = BranchReprompt
		plan.Reply = s.prompts.Reprompt
		s.record(plan)
		return plan, nil
	}

	data := prompts.Data{Clarifying: result.IsClarifying}
	var scenario prompts.Scenario
	switch plan.Intent {
	case domain.IntentGeneral:
		plan.Branch, scenario = BranchGeneral, prompts.ScenarioGeneral
	case domain.IntentColdEmail:
		plan.Branch, scenario = BranchColdEmail, prompts.ScenarioColdEmail
	case domain.IntentSearch:
		plan.Branch, scenario = BranchSearch, prompts.ScenarioSearch
	default:
		plan.Branch, scenario = BranchOther, prompts.ScenarioOther
	}
	if result.IsClarifying {
		plan.Branch = "clarifying_" + plan.Branch
		if plan.Intent == domain.IntentOther {
			scenario = prompts.ScenarioClarifyingOnly
		}
	}

	// A follow-up on a drafted email refines the draft and needs no lookup.
	needsLookup := plan.Intent == domain.IntentSearch ||
		(plan.Intent == domain.IntentColdEmail && !result.IsClarifying)
	if needsLookup {
		found, err := s.contacts.Find(ctx, conv)
		if err != nil {
			return Plan{}, fmt.Errorf("agent: contact lookup: %w", err)
		}
		plan.Lookup = &found
		data.Contacts = found.Text
		data.HasContacts = found.Text != ""
	}

	instruction, err := s.prompts.Render(scenario, data)
	if err != nil {
		return Plan{}, fmt.Errorf("agent: render %s: %w", scenario, err)
	}
	if result.IsClarifying && scenario != prompts.ScenarioClarifyingOnly {
		prefix, err := s.prompts.Render(prompts.ScenarioClarifying, data)
		if err != nil {
			return Plan{}, fmt.Errorf("agent: render %s: %w", prompts.ScenarioClarifying, err)
		}
		instruction = prefix + "\n\n" + instruction
	}
	plan.Instruction = instruction
	s.record(plan)
	return plan, nil
}

// Respond plans the turn and starts relaying the reply. Errors are returned
// only before the first byte; later failures surface through the stream.
func (s *Service) Respond(ctx context.Context, conv domain.Conversation) (*relay.Stream, error) {
	plan, err := s.Plan(ctx, conv)
	if err != nil {
		return nil, err
	}
	if !plan.Generates() {
		return s.relay.Start(ctx, relay.Text(plan.Reply)), nil
	}
	return s.relay.Start(ctx, s.generator.Stream(ctx, llm.Request{
		System:       s.prompts.System,
		Conversation: conv,
		Instruction:  plan.Instruction,
	})), nil
}

func (s *Service) record(plan Plan) {
	s.metrics.ObserveRoute(string(plan.Branch))
	attrs := []any{
		"branch", plan.Branch,
		"intent", plan.Intent,
		"valid", plan.Classification.IsValid,
		"clarifying", plan.Classification.IsClarifying,
	}
	if plan.Lookup != nil {
		attrs = append(attrs, "contacts", len(plan.Lookup.Contacts))
	}
	s.logger.Info("agent: turn routed", attrs...)
}
