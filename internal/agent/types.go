// Package agent routes chat turns and serves the chat endpoints.
package agent

import (
	"github.com/recruitu/networku/internal/contacts"
	"github.com/recruitu/networku/internal/domain"
)

// ChatRequest is the body of POST /api and of the first WebSocket frame.
type ChatRequest struct {
	ChatHistory domain.Conversation `json:"chatHistory"`
}

// Branch names the path a turn took through the router.
type Branch string

const (
	BranchReprompt            Branch = "reprompt"
	BranchGeneral             Branch = "general"
	BranchColdEmail           Branch = "cold_email"
	BranchSearch              Branch = "search"
	BranchOther               Branch = "other"
	BranchClarifyingGeneral   Branch = "clarifying_general"
	BranchClarifyingColdEmail Branch = "clarifying_cold_email"
	BranchClarifyingSearch    Branch = "clarifying_search"
	BranchClarifyingOther     Branch = "clarifying_other"
)

// Plan is the routing decision for one turn.
type Plan struct {
	Branch         Branch
	Classification domain.ClassificationResult
	Intent         domain.Intent

	// Reply is streamed verbatim without a generation call. Set only for
	// BranchReprompt.
	Reply string

	// Instruction is appended after the conversation in the generation request.
	Instruction string

	// Lookup holds the contacts found for search and cold email turns.
	Lookup *contacts.Result
}

// Generates reports whether the plan needs a streamed completion.
func (p Plan) Generates() bool {
	return p.Branch != BranchReprompt
}
