package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/nlsql/nlsql/internal/history"
	"github.com/nlsql/nlsql/internal/nl2sql"
)

type fakeGateway struct {
	mu       sync.Mutex
	requests []nl2sql.Request
	text     string
	err      error
}

func (f *fakeGateway) Complete(_ context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nl2sql.Result{}, f.err
	}
	return nl2sql.Result{Text: f.text, Provider: "fake", Model: "fake-model"}, nil
}

func (f *fakeGateway) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestEngine(t *testing.T, gateway nl2sql.Gateway) *Engine {
	t.Helper()
	store, err := history.NewSeededStore()
	if err != nil {
		t.Fatalf("NewSeededStore() error = %v", err)
	}
	return &Engine{
		History: store,
		Gateway: gateway,
		Tables:  []nl2sql.TableContext{{TableName: "sales", Columns: []string{"id", "amount", "date"}}},
		Logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
}

func TestConvertQuerySeedEntriesResolveFromHistory(t *testing.T) {
	gateway := &fakeGateway{text: "unused"}
	engine := newTestEngine(t, gateway)

	for _, entry := range engine.History.Entries() {
		result, err := engine.ConvertQuery(context.Background(), entry.NaturalQuery)
		if err != nil {
			t.Fatalf("ConvertQuery(%q) error = %v", entry.NaturalQuery, err)
		}
		if result.Outcome != OutcomeHistory || result.Text != entry.SQLQuery {
			t.Fatalf("ConvertQuery(%q) = %+v, want %q", entry.NaturalQuery, result, entry.SQLQuery)
		}
	}
	if gateway.calls() != 0 {
		t.Fatalf("gateway calls = %d, want 0", gateway.calls())
	}
}

func TestConvertQueryNormalizesInput(t *testing.T) {
	engine := newTestEngine(t, &fakeGateway{})
	result, err := engine.ConvertQuery(context.Background(), "   TOTAL Revenue  ")
	if err != nil {
		t.Fatalf("ConvertQuery() error = %v", err)
	}
	if result.Text != "SELECT SUM(amount) FROM sales" {
		t.Fatalf("Text = %q", result.Text)
	}
}

func TestConvertQuerySendsOnlyRemainderToModel(t *testing.T) {
	gateway := &fakeGateway{text: "SELECT * FROM sales WHERE amount > 100"}
	engine := newTestEngine(t, gateway)

	result, err := engine.ConvertQuery(context.Background(), "show all sales where amount > 100")
	if err != nil {
		t.Fatalf("ConvertQuery() error = %v", err)
	}
	if result.Outcome != OutcomeModel || result.Text != "SELECT * FROM sales WHERE amount > 100" {
		t.Fatalf("result = %+v", result)
	}
	if gateway.calls() != 1 {
		t.Fatalf("gateway calls = %d, want 1", gateway.calls())
	}
	req := gateway.requests[0]
	if req.Mode != nl2sql.ModeConvert {
		t.Fatalf("Mode = %q", req.Mode)
	}
	if req.Text != " where amount > 100" {
		t.Fatalf("gateway text = %q, want remainder only", req.Text)
	}
	if len(req.Tables) != 1 || req.Tables[0].TableName != "sales" {
		t.Fatalf("gateway tables = %+v", req.Tables)
	}
}

func TestConvertQueryRemovesOnlyFirstOccurrence(t *testing.T) {
	gateway := &fakeGateway{text: "SELECT 1"}
	engine := newTestEngine(t, gateway)

	if _, err := engine.ConvertQuery(context.Background(), "total revenue and total revenue"); err != nil {
		t.Fatalf("ConvertQuery() error = %v", err)
	}
	if gateway.calls() != 1 {
		t.Fatalf("gateway calls = %d", gateway.calls())
	}
	if got := gateway.requests[0].Text; got != " and total revenue" {
		t.Fatalf("gateway text = %q", got)
	}
}

func TestConvertQueryNoMatchSkipsModel(t *testing.T) {
	gateway := &fakeGateway{text: "SELECT 1"}
	engine := newTestEngine(t, gateway)

	result, err := engine.ConvertQuery(context.Background(), "completely unknown gibberish query")
	if err != nil {
		t.Fatalf("ConvertQuery() error = %v", err)
	}
	if result.Outcome != OutcomeNoMatch || result.String() != "Could not generate SQL query." {
		t.Fatalf("result = %+v", result)
	}
	if result.OK() {
		t.Fatal("no-match result must not be OK")
	}
	if gateway.calls() != 0 {
		t.Fatalf("gateway calls = %d, want 0", gateway.calls())
	}
}

func TestConvertQueryModelFailureReturnsComplexMarker(t *testing.T) {
	engine := newTestEngine(t, &fakeGateway{err: errors.New("status=500")})

	result, err := engine.ConvertQuery(context.Background(), "total revenue order by date")
	if err != nil {
		t.Fatalf("ConvertQuery() error = %v", err)
	}
	if result.Outcome != OutcomeModelFailed || result.Text != "complex query, please try simpler query." {
		t.Fatalf("result = %+v", result)
	}
}

func TestConvertQueryWithoutGatewayReturnsComplexMarker(t *testing.T) {
	engine := newTestEngine(t, nil)

	result, err := engine.ConvertQuery(context.Background(), "show all sales where amount > 100")
	if err != nil {
		t.Fatalf("ConvertQuery() error = %v", err)
	}
	if result.Text != MarkerComplexQuery {
		t.Fatalf("Text = %q", result.Text)
	}
}

func TestConvertQueryHeuristicIsSubstringBased(t *testing.T) {
	gateway := &fakeGateway{text: "SELECT 1"}
	engine := newTestEngine(t, gateway)

	// "sandwich" carries "and" so the model is consulted even though the
	// remainder has no real clause.
	if _, err := engine.ConvertQuery(context.Background(), "show all sales sandwich"); err != nil {
		t.Fatalf("ConvertQuery() error = %v", err)
	}
	if gateway.calls() != 1 {
		t.Fatalf("gateway calls = %d, want 1", gateway.calls())
	}
}

func TestConvertQueryFirstMatchWins(t *testing.T) {
	gateway := &fakeGateway{}
	engine := &Engine{
		History: history.NewStore([]history.Entry{
			{NaturalQuery: "sales", SQLQuery: "SELECT 1"},
			{NaturalQuery: "show all sales", SQLQuery: "SELECT 2"},
		}),
		Gateway: gateway,
	}
	result, err := engine.ConvertQuery(context.Background(), "sales")
	if err != nil {
		t.Fatalf("ConvertQuery() error = %v", err)
	}
	if result.Text != "SELECT 1" {
		t.Fatalf("Text = %q", result.Text)
	}
	// "show all " remains after removing "sales"; "all" holds no keyword.
	result, err = engine.ConvertQuery(context.Background(), "show all sales")
	if err != nil {
		t.Fatalf("ConvertQuery() error = %v", err)
	}
	if result.Text != "SELECT 1" {
		t.Fatalf("Text = %q, want the first inserted entry", result.Text)
	}
}

func TestConvertQueryRejectsEmptyInput(t *testing.T) {
	engine := newTestEngine(t, &fakeGateway{})
	for _, input := range []string{"", "   ", "\n\t"} {
		if _, err := engine.ConvertQuery(context.Background(), input); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("ConvertQuery(%q) error = %v, want ErrInvalidInput", input, err)
		}
	}
}

func TestExplainQueryHistoryHitIsIdempotent(t *testing.T) {
	gateway := &fakeGateway{text: "unused"}
	engine := newTestEngine(t, gateway)
	before := engine.History.Len()

	for i := 0; i < 2; i++ {
		explanation, err := engine.ExplainQuery(context.Background(), "SELECT SUM(amount) FROM sales")
		if err != nil {
			t.Fatalf("ExplainQuery() error = %v", err)
		}
		if !explanation.FromHistory || explanation.Text != "total revenue" {
			t.Fatalf("explanation = %+v", explanation)
		}
	}
	if gateway.calls() != 0 {
		t.Fatalf("gateway calls = %d", gateway.calls())
	}
	if engine.History.Len() != before {
		t.Fatalf("history grew from %d to %d", before, engine.History.Len())
	}
}

func TestExplainQueryIsCaseSensitive(t *testing.T) {
	gateway := &fakeGateway{text: "Sums the amount column."}
	engine := newTestEngine(t, gateway)

	explanation, err := engine.ExplainQuery(context.Background(), "select sum(amount) from sales")
	if err != nil {
		t.Fatalf("ExplainQuery() error = %v", err)
	}
	if explanation.FromHistory {
		t.Fatal("lower-cased SQL must not hit the stored upper-case entry")
	}
	if gateway.calls() != 1 {
		t.Fatalf("gateway calls = %d", gateway.calls())
	}
}

func TestExplainQueryNovelSQLIsCached(t *testing.T) {
	const sqlText = "SELECT name FROM customers WHERE email LIKE '%@example.com'"
	gateway := &fakeGateway{text: "Lists customers with example.com addresses."}
	engine := newTestEngine(t, gateway)
	before := engine.History.Len()

	explanation, err := engine.ExplainQuery(context.Background(), sqlText)
	if err != nil {
		t.Fatalf("ExplainQuery() error = %v", err)
	}
	if explanation.FromHistory || explanation.Outcome != OutcomeModel {
		t.Fatalf("explanation = %+v", explanation)
	}
	if engine.History.Len() != before+1 {
		t.Fatalf("history len = %d, want %d", engine.History.Len(), before+1)
	}
	if req := gateway.requests[0]; req.Mode != nl2sql.ModeExplain || req.Text != sqlText {
		t.Fatalf("gateway request = %+v", req)
	}

	again, err := engine.ExplainQuery(context.Background(), sqlText)
	if err != nil {
		t.Fatalf("ExplainQuery() error = %v", err)
	}
	if !again.FromHistory || again.Text != "Lists customers with example.com addresses." {
		t.Fatalf("second explanation = %+v", again)
	}
	if gateway.calls() != 1 {
		t.Fatalf("gateway calls = %d, want 1", gateway.calls())
	}
	if engine.History.Len() != before+1 {
		t.Fatalf("history len = %d after cached hit", engine.History.Len())
	}
}

func TestExplainQueryFailureDoesNotAppend(t *testing.T) {
	engine := newTestEngine(t, &fakeGateway{err: errors.New("timeout")})
	before := engine.History.Len()

	explanation, err := engine.ExplainQuery(context.Background(), "SELECT 42")
	if err != nil {
		t.Fatalf("ExplainQuery() error = %v", err)
	}
	if explanation.Outcome != OutcomeModelFailed || explanation.Text != "AI failed" {
		t.Fatalf("explanation = %+v", explanation)
	}
	if engine.History.Len() != before {
		t.Fatalf("history len = %d, want %d", engine.History.Len(), before)
	}
}

func TestExplainQueryBlankModelTextIsAFailure(t *testing.T) {
	for _, text := range []string{"", "  \n\t "} {
		engine := newTestEngine(t, &fakeGateway{text: text})
		before := engine.History.Len()

		explanation, err := engine.ExplainQuery(context.Background(), "SELECT name FROM customers")
		if err != nil {
			t.Fatalf("ExplainQuery() error = %v", err)
		}
		if explanation.Outcome != OutcomeModelFailed || explanation.Text != MarkerModelFailed {
			t.Fatalf("ExplainQuery() = %+v, want %q", explanation, MarkerModelFailed)
		}
		if got := engine.History.Len(); got != before {
			t.Fatalf("history len = %d, want %d", got, before)
		}

		result, err := engine.ConvertQuery(context.Background(), "completely unknown gibberish query")
		if err != nil {
			t.Fatalf("ConvertQuery() error = %v", err)
		}
		if result.Outcome != OutcomeNoMatch || result.Text != MarkerNoMatch {
			t.Fatalf("ConvertQuery() = %+v, want %q", result, MarkerNoMatch)
		}
	}
}

func TestConvertQueryBlankModelTextReturnsComplexMarker(t *testing.T) {
	engine := newTestEngine(t, &fakeGateway{text: " "})
	result, err := engine.ConvertQuery(context.Background(), "total revenue where amount > 100")
	if err != nil {
		t.Fatalf("ConvertQuery() error = %v", err)
	}
	if result.Outcome != OutcomeModelFailed || result.Text != MarkerComplexQuery {
		t.Fatalf("ConvertQuery() = %+v", result)
	}
}

func TestExplainQueryRejectsEmptyInput(t *testing.T) {
	engine := newTestEngine(t, &fakeGateway{})
	if _, err := engine.ExplainQuery(context.Background(), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("ExplainQuery() error = %v, want ErrInvalidInput", err)
	}
}

func TestValidateQuery(t *testing.T) {
	engine := newTestEngine(t, &fakeGateway{err: errors.New("down")})

	ok, err := engine.ValidateQuery(context.Background(), "count customers")
	if err != nil {
		t.Fatalf("ValidateQuery() error = %v", err)
	}
	if !ok.Feasible || ok.SQLQuery != "SELECT COUNT(*) FROM customers" || ok.Message != "" {
		t.Fatalf("validation = %+v", ok)
	}

	noMatch, err := engine.ValidateQuery(context.Background(), "completely unknown gibberish query")
	if err != nil {
		t.Fatalf("ValidateQuery() error = %v", err)
	}
	if noMatch.Feasible || noMatch.Message != "Query could not be converted to SQL" || noMatch.SQLQuery != "" {
		t.Fatalf("validation = %+v", noMatch)
	}

	failed, err := engine.ValidateQuery(context.Background(), "show all sales where amount > 100")
	if err != nil {
		t.Fatalf("ValidateQuery() error = %v", err)
	}
	if failed.Feasible {
		t.Fatalf("validation = %+v, want infeasible on model failure", failed)
	}

	if _, err := engine.ValidateQuery(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("ValidateQuery() error = %v, want ErrInvalidInput", err)
	}
}

func TestConcurrentNovelExplainsMayDuplicate(t *testing.T) {
	gateway := &fakeGateway{text: "Counts rows."}
	engine := newTestEngine(t, gateway)
	before := engine.History.Len()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.ExplainQuery(context.Background(), "SELECT COUNT(*) FROM sales"); err != nil {
				t.Errorf("ExplainQuery() error = %v", err)
			}
		}()
	}
	wg.Wait()

	grown := engine.History.Len() - before
	if grown < 1 || grown != gateway.calls() {
		t.Fatalf("history grew by %d with %d gateway calls", grown, gateway.calls())
	}
	entry, ok := engine.History.LookupBySQL("SELECT COUNT(*) FROM sales")
	if !ok || entry.NaturalQuery != "Counts rows." {
		t.Fatalf("LookupBySQL() = %+v, %v", entry, ok)
	}
}
