package history

import (
	"strings"
	"sync"
)

// Entry associates a natural-language phrasing with SQL. Explanation entries
// reuse the same shape: SQLQuery holds the literal query and NaturalQuery the
// explanation returned for it.
type Entry struct {
	NaturalQuery string `json:"naturalQuery" yaml:"natural_query"`
	SQLQuery     string `json:"sqlQuery" yaml:"sql_query"`
}

// Store is an append-only ordered collection of entries. Lookups return the
// first match in insertion order, so a later entry whose key overlaps an
// earlier one is never selected.
//
// The mutex only keeps individual reads and appends memory safe. A lookup
// followed by an append is not atomic: concurrent callers may both miss and
// both append the same association.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewStore(seed []Entry) *Store {
	entries := make([]Entry, len(seed))
	copy(entries, seed)
	return &Store{entries: entries}
}

// NewSeededStore returns a store populated with the embedded seed history.
func NewSeededStore() (*Store, error) {
	seed, err := LoadSeed()
	if err != nil {
		return nil, err
	}
	return NewStore(seed), nil
}

// Normalize trims and lower-cases text the way lookup keys are stored.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// LookupByContainment returns the first entry whose NaturalQuery occurs
// anywhere inside the normalized text.
func (s *Store) LookupByContainment(text string) (Entry, bool) {
	normalized := Normalize(text)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.entries {
		if strings.Contains(normalized, entry.NaturalQuery) {
			return entry, true
		}
	}
	return Entry{}, false
}

// LookupBySQL returns the first entry whose SQLQuery is exactly sqlText.
func (s *Store) LookupBySQL(sqlText string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.entries {
		if entry.SQLQuery == sqlText {
			return entry, true
		}
	}
	return Entry{}, false
}

func (s *Store) Append(entry Entry) {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a copy of the current history in insertion order.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
