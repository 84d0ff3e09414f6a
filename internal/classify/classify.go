// Package classify is the first validation stage: a lexical gate that
// decides whether a raw statement is a read-only query at all. It never
// connects to a database and never inspects schema; it only tokenizes.
package classify

import (
	"fmt"
	"strings"

	"github.com/sadopc/sqlgate/internal/sqltext"
)

// Code identifies why a statement was rejected.
type Code string

const (
	CodeMultiStatement   Code = "MULTI_STATEMENT"
	CodeForbiddenLeading Code = "FORBIDDEN_LEADING_KEYWORD"
	CodeForbiddenKeyword Code = "FORBIDDEN_KEYWORD"
	CodeTooLarge         Code = "TOO_LARGE"
	CodeUnbalancedQuote  Code = "UNBALANCED_QUOTE"
	CodeEmptyStatement   Code = "EMPTY_STATEMENT"
)

// DefaultMaxBytes bounds statement size before any scanning happens.
const DefaultMaxBytes = 64 * 1024

// leadingKeywords are the only statement openers admitted.
var leadingKeywords = map[string]bool{
	"SELECT": true,
	"WITH":   true,
}

// forbiddenKeywords rejects a statement wherever they appear as a whole
// token outside literals and comments. The list covers mutation, DDL,
// permission changes, and file/procedure escape hatches across the
// supported engines.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "MERGE", "UPSERT", "REPLACE",
	"DROP", "ALTER", "CREATE", "TRUNCATE", "RENAME",
	"GRANT", "REVOKE",
	"COPY", "ATTACH", "DETACH", "PRAGMA", "VACUUM", "REINDEX",
	"EXEC", "EXECUTE", "CALL", "DO",
	"LOAD_FILE", "OUTFILE", "DUMPFILE",
	"PG_READ_FILE", "PG_LS_DIR", "LO_IMPORT", "LO_EXPORT", "DBLINK",
}

// Classifier applies the lexical safety rules. The zero value uses
// DefaultMaxBytes.
type Classifier struct {
	MaxBytes int
}

// Result is the classifier's decision for one raw input.
type Result struct {
	Safe bool
	Code Code
	// Detail names the offending token or limit for rejections.
	Detail string
	// Statement is the single statement with surrounding whitespace
	// and any trailing semicolon removed. Set only when Safe.
	Statement string
	// LeadingKeyword is the uppercased statement opener (SELECT or
	// WITH). Set only when Safe.
	LeadingKeyword string
}

// Classify runs the lexical checks in order: size bound, tokenization,
// statement count, leading keyword, forbidden keyword scan. The first
// failing check decides the result.
func (c *Classifier) Classify(raw string) Result {
	maxBytes := c.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(raw) > maxBytes {
		return Result{
			Code:   CodeTooLarge,
			Detail: fmt.Sprintf("statement is %d bytes, limit is %d", len(raw), maxBytes),
		}
	}

	masked, err := sqltext.Mask(raw)
	if err != nil {
		return Result{Code: CodeUnbalancedQuote, Detail: err.Error()}
	}

	spans := sqltext.SplitStatements(masked)
	switch {
	case len(spans) == 0:
		return Result{Code: CodeEmptyStatement, Detail: "no statement found"}
	case len(spans) > 1:
		return Result{
			Code:   CodeMultiStatement,
			Detail: fmt.Sprintf("found %d statements, expected 1", len(spans)),
		}
	}

	span := spans[0]
	fragment := masked[span[0]:span[1]]

	leading := sqltext.FirstKeyword(fragment)
	if !leadingKeywords[leading] {
		return Result{
			Code:   CodeForbiddenLeading,
			Detail: fmt.Sprintf("statement starts with %s", leading),
		}
	}

	upper := strings.ToUpper(fragment)
	for _, kw := range forbiddenKeywords {
		if sqltext.ContainsWord(upper, kw) {
			return Result{
				Code:   CodeForbiddenKeyword,
				Detail: fmt.Sprintf("forbidden keyword %s", kw),
			}
		}
	}

	return Result{
		Safe:           true,
		Statement:      strings.TrimSpace(raw[span[0]:span[1]]),
		LeadingKeyword: leading,
	}
}
