// Package clause decides whether text left over after a history match still
// carries SQL clause vocabulary that the cached template cannot express.
//
// Matching is plain substring containment without word boundaries, so "or"
// fires inside "orders" and "and" inside "sandwich". Callers rely on this
// exact behaviour; do not switch to token matching.
package clause

import "strings"

var keywords = []string{
	"where",
	"whose",
	"or",
	"and",
	"from",
	"having",
	"join",
	"group by",
	"order by",
	"limit",
	"offset",
	"distinct",
	"like",
	"between",
	"in",
	"not in",
}

// Keywords returns the clause vocabulary in evaluation order.
func Keywords() []string {
	out := make([]string, len(keywords))
	copy(out, keywords)
	return out
}

func HasUnresolvedClause(remainder string) bool {
	_, ok := MatchedKeyword(remainder)
	return ok
}

// MatchedKeyword reports the first keyword, in evaluation order, contained in
// remainder.
func MatchedKeyword(remainder string) (string, bool) {
	for _, keyword := range keywords {
		if strings.Contains(remainder, keyword) {
			return keyword, true
		}
	}
	return "", false
}
