package accuracy

import (
	"regexp"
	"strings"
)

var (
	sqlFence  = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")
	sqlSplit  = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_.]*|\d+(?:\.\d+)?|'[^']*'|"[^"]*"|<=|>=|<>|!=|[(),*=<>]`)
	sqlSpaces = regexp.MustCompile(`\s+`)
)

// canonicalSQL reduces a query to a comparable form: code fences removed,
// first statement only, keywords and identifiers lowercased, double quotes
// turned into single quotes and whitespace collapsed.
func canonicalSQL(query string) string {
	q := strings.TrimSpace(query)
	if m := sqlFence.FindStringSubmatch(q); m != nil {
		q = m[1]
	}
	if i := strings.Index(q, ";"); i >= 0 {
		q = q[:i]
	}
	q = strings.ReplaceAll(q, `"`, `'`)
	q = strings.ToLower(q)
	q = sqlSpaces.ReplaceAllString(q, " ")
	q = strings.ReplaceAll(q, "( ", "(")
	q = strings.ReplaceAll(q, " )", ")")
	q = strings.ReplaceAll(q, " ,", ",")
	return strings.TrimSpace(q)
}

// sqlTokens splits a canonical query into identifiers, literals and operators.
func sqlTokens(query string) []string {
	return sqlSplit.FindAllString(query, -1)
}
