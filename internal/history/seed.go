package history

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

type seedFile struct {
	Entries []Entry `yaml:"entries"`
}

func LoadSeed() ([]Entry, error) {
	return ParseSeed(seedYAML)
}

// ParseSeed decodes a seed document. Keys are stored normalized so that
// containment lookups against normalized input can match them.
func ParseSeed(raw []byte) ([]Entry, error) {
	var doc seedFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode seed history: %w", err)
	}
	if len(doc.Entries) == 0 {
		return nil, fmt.Errorf("seed history is empty")
	}
	entries := make([]Entry, 0, len(doc.Entries))
	for i, entry := range doc.Entries {
		natural := Normalize(entry.NaturalQuery)
		if natural == "" {
			return nil, fmt.Errorf("seed entry %d: natural_query is required", i)
		}
		if strings.TrimSpace(entry.SQLQuery) == "" {
			return nil, fmt.Errorf("seed entry %d: sql_query is required", i)
		}
		entries = append(entries, Entry{NaturalQuery: natural, SQLQuery: entry.SQLQuery})
	}
	return entries, nil
}
