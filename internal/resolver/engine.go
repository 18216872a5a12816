package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nlsql/nlsql/internal/clause"
	"github.com/nlsql/nlsql/internal/history"
	"github.com/nlsql/nlsql/internal/nl2sql"
	"github.com/nlsql/nlsql/internal/observability"
)

var (
	errGatewayNotConfigured = errors.New("model gateway is not configured")
	errEmptyCompletion      = errors.New("model gateway returned empty text")
)

// Engine resolves natural-language queries and SQL explanations against the
// history store, calling the model gateway only when history cannot answer.
type Engine struct {
	History *history.Store
	Gateway nl2sql.Gateway
	Tables  []nl2sql.TableContext
	Logger  *slog.Logger
}

// ConvertQuery translates a natural-language query into SQL.
//
// When no history key is contained in the input the engine gives up without
// consulting the model. Only a partial match whose remainder carries clause
// vocabulary is sent to the model, and then only the remainder is sent.
func (e *Engine) ConvertQuery(ctx context.Context, naturalQuery string) (Result, error) {
	if strings.TrimSpace(naturalQuery) == "" {
		return Result{}, ErrInvalidInput
	}
	input := history.Normalize(naturalQuery)

	entry, ok := e.History.LookupByContainment(input)
	if !ok {
		e.observe(ctx, "convert", noMatch(), slog.String("query", input))
		return noMatch(), nil
	}

	remainder := strings.Replace(input, entry.NaturalQuery, "", 1)
	keyword, needsModel := clause.MatchedKeyword(remainder)
	if !needsModel {
		result := Result{Outcome: OutcomeHistory, Text: entry.SQLQuery}
		e.observe(ctx, "convert", result, slog.String("matched", entry.NaturalQuery))
		return result, nil
	}

	text, err := e.complete(ctx, nl2sql.ModeConvert, remainder)
	if err != nil {
		result := Result{Outcome: OutcomeModelFailed, Text: MarkerComplexQuery}
		e.observe(ctx, "convert", result, slog.String("matched", entry.NaturalQuery), slog.String("keyword", keyword))
		return result, nil
	}
	result := Result{Outcome: OutcomeModel, Text: text}
	e.observe(ctx, "convert", result, slog.String("matched", entry.NaturalQuery), slog.String("keyword", keyword))
	return result, nil
}

// ExplainQuery explains a SQL text. Exact matches against stored SQL are
// answered from history; model explanations are appended to history so the
// same SQL text is answered locally next time.
func (e *Engine) ExplainQuery(ctx context.Context, sqlQuery string) (Explanation, error) {
	if strings.TrimSpace(sqlQuery) == "" {
		return Explanation{}, ErrInvalidInput
	}

	if entry, ok := e.History.LookupBySQL(sqlQuery); ok {
		explanation := Explanation{
			Result:      Result{Outcome: OutcomeHistory, Text: entry.NaturalQuery},
			FromHistory: true,
		}
		e.observe(ctx, "explain", explanation.Result)
		return explanation, nil
	}

	text, err := e.complete(ctx, nl2sql.ModeExplain, sqlQuery)
	if err != nil {
		explanation := Explanation{Result: Result{Outcome: OutcomeModelFailed, Text: MarkerModelFailed}}
		e.observe(ctx, "explain", explanation.Result)
		return explanation, nil
	}

	e.History.Append(history.Entry{NaturalQuery: text, SQLQuery: sqlQuery})
	observability.SetHistoryEntries(e.History.Len())

	explanation := Explanation{Result: Result{Outcome: OutcomeModel, Text: text}}
	e.observe(ctx, "explain", explanation.Result)
	return explanation, nil
}

// ValidateQuery reports whether a natural-language query can be converted.
func (e *Engine) ValidateQuery(ctx context.Context, naturalQuery string) (Validation, error) {
	result, err := e.ConvertQuery(ctx, naturalQuery)
	if err != nil {
		return Validation{}, err
	}
	if !result.OK() {
		return Validation{Feasible: false, Message: MessageNotConvertible}, nil
	}
	return Validation{Feasible: true, SQLQuery: result.Text}, nil
}

// complete performs one gateway call. Failures are logged here and reduced
// to an error; their details never reach the caller's response.
func (e *Engine) complete(ctx context.Context, mode nl2sql.Mode, text string) (string, error) {
	if e.Gateway == nil {
		e.logWarn(ctx, "model gateway call skipped", slog.String("mode", string(mode)), slog.Any("error", errGatewayNotConfigured))
		return "", errGatewayNotConfigured
	}

	start := time.Now()
	result, err := e.Gateway.Complete(ctx, nl2sql.Request{Mode: mode, Text: text, Tables: e.Tables})
	// An empty explanation stored in history would be contained in every input.
	if err == nil && strings.TrimSpace(result.Text) == "" {
		err = errEmptyCompletion
	}
	observability.ObserveGatewayCall(string(mode), time.Since(start), err)
	if err != nil {
		e.logWarn(ctx, "model gateway call failed",
			slog.String("mode", string(mode)),
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Any("error", err),
		)
		return "", err
	}
	return result.Text, nil
}

func (e *Engine) observe(ctx context.Context, operation string, result Result, attrs ...slog.Attr) {
	observability.ObserveResolution(operation, string(result.Outcome))
	if e.Logger == nil {
		return
	}
	attrs = append(attrs,
		slog.String("operation", operation),
		slog.String("outcome", string(result.Outcome)),
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
	)
	e.Logger.LogAttrs(ctx, slog.LevelDebug, "query resolved", attrs...)
}

func (e *Engine) logWarn(ctx context.Context, msg string, attrs ...slog.Attr) {
	if e.Logger == nil {
		return
	}
	e.Logger.LogAttrs(ctx, slog.LevelWarn, msg, attrs...)
}
