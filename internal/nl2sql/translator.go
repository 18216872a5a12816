package nl2sql

import "context"

// Mode selects the instruction sent to the model.
type Mode string

const (
	ModeConvert Mode = "convert"
	ModeExplain Mode = "explain"
)

type TableContext struct {
	TableName string   `json:"table_name"`
	Columns   []string `json:"columns"`
}

type Request struct {
	Mode   Mode           `json:"mode"`
	Text   string         `json:"text"`
	Tables []TableContext `json:"tables"`
}

type Result struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Gateway is a single-attempt model call. Any returned error means the call
// failed; callers decide how failures surface.
type Gateway interface {
	Complete(ctx context.Context, req Request) (Result, error)
}
