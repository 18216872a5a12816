package nl2sql

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = "You are an expert SQL assistant."

const promptRules = `Rules:
- Ensure SQL queries reference the correct table and columns.
- Use 'YYYY-MM-DD' format for dates.
- Use SUM(column_name) for summation, AVG(column_name) for averages.
- Use WHERE for filtering conditions.
- Default ordering should be by date (DESC) unless otherwise stated.
- If unable to generate SQL, explain **why** (missing table names, ambiguous conditions, etc.).
- If explaining a SQL query, provide both **technical** and **simple (layman's)** explanations.
`

func instructionFor(mode Mode) (string, error) {
	switch mode {
	case ModeConvert:
		return "Convert this natural language query into an SQL query:", nil
	case ModeExplain:
		return "Explain this SQL query step by step in both technical and simple terms:", nil
	default:
		return "", fmt.Errorf("unsupported mode %q", mode)
	}
}

// BuildPrompt renders the user message: schema, rule set, mode instruction and
// the caller's text.
func BuildPrompt(req Request) (string, error) {
	instruction, err := instructionFor(req.Mode)
	if err != nil {
		return "", err
	}
	schemaJSON, err := renderSchema(req.Tables)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"You are the SQL database manager of my company. Here is Database Schema:\n%s\n\n%s \n%s %s",
		schemaJSON,
		promptRules,
		instruction,
		req.Text,
	), nil
}

// renderSchema writes table -> columns as a two-space indented JSON object,
// one column per line, keeping table order.
func renderSchema(tables []TableContext) (string, error) {
	if len(tables) == 0 {
		return "{}", nil
	}
	var b strings.Builder
	b.WriteString("{\n")
	for i, table := range tables {
		name, err := json.Marshal(table.TableName)
		if err != nil {
			return "", fmt.Errorf("marshal table name: %w", err)
		}
		columns := table.Columns
		if columns == nil {
			columns = []string{}
		}
		cols, err := json.MarshalIndent(columns, "  ", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal columns for %q: %w", table.TableName, err)
		}
		b.WriteString("  ")
		b.Write(name)
		b.WriteString(": ")
		b.Write(cols)
		if i < len(tables)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String(), nil
}

func chatMessages(prompt string) []map[string]string {
	return []map[string]string{
		{"role": "system", "content": systemPrompt},
		{"role": "user", "content": prompt},
	}
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}

func finalizeOutput(mode Mode, content string) (string, error) {
	text := strings.TrimSpace(content)
	if mode == ModeConvert {
		text = stripMarkdownSQL(text)
	}
	if text == "" {
		return "", fmt.Errorf("model returned empty content")
	}
	return text, nil
}
