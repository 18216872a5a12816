package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nlsql/nlsql/internal/nl2sql"
)

var ErrNotFound = errors.New("catalog: not found")

//go:embed schema.yaml
var defaultSchemaYAML []byte

type Table struct {
	Name    string   `json:"name" yaml:"name"`
	Columns []string `json:"columns" yaml:"columns"`
}

// Schema is the static description of the queryable tables. Table order is
// preserved because it is rendered verbatim into model prompts.
type Schema struct {
	Tables []Table `json:"tables" yaml:"tables"`
}

func DefaultSchema() (Schema, error) {
	return ParseSchema(defaultSchemaYAML)
}

func ParseSchema(raw []byte) (Schema, error) {
	var schema Schema
	if err := yaml.Unmarshal(raw, &schema); err != nil {
		return Schema{}, fmt.Errorf("decode schema: %w", err)
	}
	if len(schema.Tables) == 0 {
		return Schema{}, fmt.Errorf("schema has no tables")
	}
	seen := make(map[string]struct{}, len(schema.Tables))
	for i, table := range schema.Tables {
		name := strings.TrimSpace(table.Name)
		if name == "" {
			return Schema{}, fmt.Errorf("table %d: name is required", i)
		}
		if _, dup := seen[name]; dup {
			return Schema{}, fmt.Errorf("duplicate table %q", name)
		}
		seen[name] = struct{}{}
		if len(table.Columns) == 0 {
			return Schema{}, fmt.Errorf("table %q: at least one column is required", name)
		}
		schema.Tables[i].Name = name
	}
	return schema, nil
}

func (s Schema) Lookup(name string) (Table, error) {
	for _, table := range s.Tables {
		if table.Name == name {
			return table, nil
		}
	}
	return Table{}, ErrNotFound
}

func (s Schema) TableContexts() []nl2sql.TableContext {
	contexts := make([]nl2sql.TableContext, 0, len(s.Tables))
	for _, table := range s.Tables {
		columns := make([]string, len(table.Columns))
		copy(columns, table.Columns)
		contexts = append(contexts, nl2sql.TableContext{TableName: table.Name, Columns: columns})
	}
	return contexts
}
