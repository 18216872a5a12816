package resolver

import "errors"

// Boundary strings. Callers compare against these, so they must not change.
const (
	MarkerNoMatch         = "Could not generate SQL query."
	MarkerComplexQuery    = "complex query, please try simpler query."
	MarkerModelFailed     = "AI failed"
	MessageInvalidInput   = "Invalid query input"
	MessageNotConvertible = "Query could not be converted to SQL"
)

// ErrInvalidInput is a validation failure: the input is empty after trimming.
// It is distinct from resolution failures, which are reported as Results.
var ErrInvalidInput = errors.New(MessageInvalidInput)

type Outcome string

const (
	OutcomeHistory     Outcome = "history"
	OutcomeModel       Outcome = "model"
	OutcomeNoMatch     Outcome = "no_match"
	OutcomeModelFailed Outcome = "model_failed"
)

// Result is either a payload (history or model) or a named failure whose
// Text is the matching marker string.
type Result struct {
	Outcome Outcome
	Text    string
}

func (r Result) OK() bool {
	return r.Outcome == OutcomeHistory || r.Outcome == OutcomeModel
}

func (r Result) String() string {
	return r.Text
}

func noMatch() Result {
	return Result{Outcome: OutcomeNoMatch, Text: MarkerNoMatch}
}

// Explanation is the result of ExplainQuery. FromHistory is set when the text
// came from a stored association rather than the model.
type Explanation struct {
	Result
	FromHistory bool
}

type Validation struct {
	Feasible bool   `json:"feasible"`
	SQLQuery string `json:"sqlQuery,omitempty"`
	Message  string `json:"message,omitempty"`
}
