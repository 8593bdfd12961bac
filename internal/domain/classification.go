package domain

// ClassificationResult is the classifier's decision about the newest user turn.
// The intent flags are not mutually exclusive; Intent resolves them.
type ClassificationResult struct {
	IsValid      bool   `json:"isValid"`
	IsClarifying bool   `json:"isClarifying"`
	IsGeneral    bool   `json:"isGeneral"`
	IsColdEmail  bool   `json:"isColdEmail"`
	IsSearch     bool   `json:"isSearch"`
	Reasoning    string `json:"reasoning"`
}

// Intent is the single scenario a turn is routed to.
type Intent string

const (
	IntentGeneral   Intent = "general"
	IntentColdEmail Intent = "cold_email"
	IntentSearch    Intent = "search"
	IntentOther     Intent = "other"
)

// Intent picks one scenario using the fixed priority
// general, cold email, search, other.
func (r ClassificationResult) Intent() Intent {
	switch {
	case r.IsGeneral:
		return IntentGeneral
	case r.IsColdEmail:
		return IntentColdEmail
	case r.IsSearch:
		return IntentSearch
	default:
		return IntentOther
	}
}

// Conflicting reports whether more than one intent flag is set.
func (r ClassificationResult) Conflicting() bool {
	n := 0
	for _, set := range []bool{r.IsGeneral, r.IsColdEmail, r.IsSearch} {
		if set {
			n++
		}
	}
	return n > 1
}
