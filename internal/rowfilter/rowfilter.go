// Package rowfilter rewrites a validated statement so that a row-level
// predicate constrains its results. The rewrite is splice-based: the
// original statement text is preserved byte for byte outside the
// insertion points, and the predicate is ANDed in inside its own
// parentheses so an OR in it cannot widen the existing filters. When a statement's shape defeats the
// splicer, it returns ErrInjectionPoint and the caller must reject the
// statement rather than run it unfiltered.
package rowfilter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sadopc/sqlgate/internal/sqltext"
)

// ErrInjectionPoint is returned when no safe place for the predicate
// exists in the statement.
var ErrInjectionPoint = errors.New("injection point not found")

// clauseStops are the clause keywords that terminate a WHERE
// expression at the top level of a SELECT.
var clauseStops = []string{"GROUP", "ORDER", "LIMIT", "HAVING", "OFFSET", "FETCH", "WINDOW"}

// Inject returns the statement rewritten so that predicate constrains
// every branch that reads one of the protected tables.
//
// For a plain SELECT the predicate lands in the WHERE clause, creating
// one if absent. Top-level UNION / INTERSECT / EXCEPT branches are
// each rewritten independently. For a WITH statement the predicate
// goes into the outer SELECT when it reads a protected table directly,
// otherwise into the single CTE body that does.
func Inject(stmt, predicate string, tables []string) (string, error) {
	stmt = strings.TrimRight(strings.TrimSpace(stmt), ";")
	masked, err := sqltext.Mask(stmt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInjectionPoint, err)
	}

	if sqltext.FirstKeyword(masked) == "WITH" {
		return injectWith(stmt, masked, predicate, tables)
	}
	return injectCompound(stmt, masked, predicate)
}

// injectCompound splits on top-level set operators and rewrites each
// branch.
func injectCompound(stmt, masked, predicate string) (string, error) {
	bounds := setOpBounds(masked)
	if len(bounds) == 1 {
		return injectSelect(stmt, masked, predicate)
	}

	var b strings.Builder
	prev := 0
	for _, seg := range bounds {
		b.WriteString(stmt[prev:seg[0]])
		rewritten, err := injectBranch(stmt[seg[0]:seg[1]], masked[seg[0]:seg[1]], predicate)
		if err != nil {
			return "", err
		}
		b.WriteString(rewritten)
		prev = seg[1]
	}
	b.WriteString(stmt[prev:])
	return b.String(), nil
}

// injectBranch rewrites one branch of a compound statement. A branch
// wrapped in parentheses is rewritten inside them.
func injectBranch(stmt, masked, predicate string) (string, error) {
	trimmed := strings.TrimSpace(masked)
	if strings.HasPrefix(trimmed, "(") {
		open := strings.IndexByte(masked, '(')
		close := matchParen(masked, open)
		if close < 0 {
			return "", ErrInjectionPoint
		}
		inner, err := injectCompound(stmt[open+1:close], masked[open+1:close], predicate)
		if err != nil {
			return "", err
		}
		return stmt[:open+1] + inner + stmt[close:], nil
	}
	return injectSelect(stmt, masked, predicate)
}

// injectSelect splices the predicate into a single SELECT. The
// statement must read from something; a FROM-less SELECT has no rows
// to filter and is rejected.
func injectSelect(stmt, masked, predicate string) (string, error) {
	if sqltext.FirstKeyword(masked) != "SELECT" {
		return "", ErrInjectionPoint
	}
	if topLevelKeyword(masked, "FROM") < 0 {
		return "", ErrInjectionPoint
	}

	if wherePos := topLevelKeyword(masked, "WHERE"); wherePos >= 0 {
		exprStart := wherePos + len("WHERE")
		exprEnd := len(masked)
		for _, stop := range clauseStops {
			if p := topLevelKeywordFrom(masked, stop, exprStart); p >= 0 && p < exprEnd {
				exprEnd = p
			}
		}
		orig := strings.TrimSpace(stmt[exprStart:exprEnd])
		if orig == "" {
			return "", ErrInjectionPoint
		}
		return stmt[:exprStart] + " (" + orig + ") AND (" + predicate + ")" + trailingSpace(stmt[exprStart:exprEnd]) + stmt[exprEnd:], nil
	}

	insertAt := len(masked)
	for _, stop := range clauseStops {
		if p := topLevelKeyword(masked, stop); p >= 0 && p < insertAt {
			insertAt = p
		}
	}

	head := strings.TrimRight(stmt[:insertAt], " \t\r\n")
	tail := stmt[insertAt:]
	if tail == "" {
		return head + " WHERE (" + predicate + ")", nil
	}
	return head + " WHERE (" + predicate + ") " + tail, nil
}

// injectWith places the predicate inside a WITH statement. The outer
// query wins when it reads a protected table directly; otherwise
// exactly one CTE body must.
func injectWith(stmt, masked, predicate string, tables []string) (string, error) {
	bodies, outerStart, err := cteBodies(masked)
	if err != nil {
		return "", err
	}

	if readsAny(masked[outerStart:], tables) {
		outer, err := injectCompound(stmt[outerStart:], masked[outerStart:], predicate)
		if err != nil {
			return "", err
		}
		return stmt[:outerStart] + outer, nil
	}

	match := -1
	for i, b := range bodies {
		if readsAny(masked[b[0]:b[1]], tables) {
			if match >= 0 {
				return "", fmt.Errorf("%w: multiple CTE bodies read a protected table", ErrInjectionPoint)
			}
			match = i
		}
	}
	if match < 0 {
		return "", fmt.Errorf("%w: no clause reads a protected table", ErrInjectionPoint)
	}

	b := bodies[match]
	inner, err := injectCompound(stmt[b[0]:b[1]], masked[b[0]:b[1]], predicate)
	if err != nil {
		return "", err
	}
	return stmt[:b[0]] + inner + stmt[b[1]:], nil
}

// readsAny reports whether the masked fragment references any of the
// tables in a FROM or JOIN clause.
func readsAny(masked string, tables []string) bool {
	for _, t := range tables {
		for i := 0; i+len(t) <= len(masked); i++ {
			if !sqltext.WordAt(masked, i, t) {
				continue
			}
			if precededByFromOrJoin(masked, i) {
				return true
			}
		}
	}
	return false
}

// precededByFromOrJoin checks that the word ending just before pos
// (skipping whitespace and one optional schema qualifier) is FROM or
// JOIN.
func precededByFromOrJoin(masked string, pos int) bool {
	i := pos
	for skipped := 0; skipped < 2; skipped++ {
		for i > 0 && (masked[i-1] == ' ' || masked[i-1] == '\t' || masked[i-1] == '\n' || masked[i-1] == '\r') {
			i--
		}
		end := i
		for i > 0 && isWordChar(masked[i-1]) {
			i--
		}
		word := strings.ToUpper(masked[i:end])
		if word == "FROM" || word == "JOIN" {
			return true
		}
		// allow one "schema." hop before the table name
		if i > 0 && masked[i-1] == '.' {
			i--
			continue
		}
		return false
	}
	return false
}

// cteBodies parses the CTE list of a WITH statement from its masked
// form. It returns the index range of each CTE body (inside its
// parentheses) and the index where the outer statement begins.
func cteBodies(masked string) (bodies [][2]int, outerStart int, err error) {
	i := skipSpace(masked, 0)
	i += len("WITH")
	i = skipSpace(masked, i)
	if sqltext.WordAt(masked, i, "RECURSIVE") {
		i += len("RECURSIVE")
		i = skipSpace(masked, i)
	}

	for {
		// CTE name, optional column list, AS, body
		start := i
		for i < len(masked) && isWordChar(masked[i]) {
			i++
		}
		if i == start {
			return nil, 0, fmt.Errorf("%w: malformed WITH clause", ErrInjectionPoint)
		}
		i = skipSpace(masked, i)

		if i < len(masked) && masked[i] == '(' {
			close := matchParen(masked, i)
			if close < 0 {
				return nil, 0, ErrInjectionPoint
			}
			i = skipSpace(masked, close+1)
		}

		if !sqltext.WordAt(masked, i, "AS") {
			return nil, 0, fmt.Errorf("%w: malformed WITH clause", ErrInjectionPoint)
		}
		i = skipSpace(masked, i+len("AS"))
		if sqltext.WordAt(masked, i, "MATERIALIZED") {
			i = skipSpace(masked, i+len("MATERIALIZED"))
		} else if sqltext.WordAt(masked, i, "NOT") {
			i = skipSpace(masked, i+len("NOT"))
			if sqltext.WordAt(masked, i, "MATERIALIZED") {
				i = skipSpace(masked, i+len("MATERIALIZED"))
			}
		}

		if i >= len(masked) || masked[i] != '(' {
			return nil, 0, fmt.Errorf("%w: malformed WITH clause", ErrInjectionPoint)
		}
		close := matchParen(masked, i)
		if close < 0 {
			return nil, 0, ErrInjectionPoint
		}
		bodies = append(bodies, [2]int{i + 1, close})

		i = skipSpace(masked, close+1)
		if i < len(masked) && masked[i] == ',' {
			i = skipSpace(masked, i+1)
			continue
		}
		return bodies, i, nil
	}
}

// setOpBounds returns the index ranges of the branches of a compound
// statement, split on top-level UNION, INTERSECT, and EXCEPT.
func setOpBounds(masked string) [][2]int {
	var bounds [][2]int
	depth := 0
	start := 0
	i := 0
	for i < len(masked) {
		switch masked[i] {
		case '(':
			depth++
			i++
		case ')':
			depth--
			i++
		default:
			if depth == 0 {
				for _, op := range []string{"UNION", "INTERSECT", "EXCEPT"} {
					if sqltext.WordAt(masked, i, op) {
						bounds = append(bounds, [2]int{start, i})
						i += len(op)
						if j := skipSpace(masked, i); sqltext.WordAt(masked, j, "ALL") {
							i = j + len("ALL")
						} else if sqltext.WordAt(masked, j, "DISTINCT") {
							i = j + len("DISTINCT")
						}
						start = i
						break
					}
				}
			}
			i++
		}
	}
	bounds = append(bounds, [2]int{start, len(masked)})
	return bounds
}

// topLevelKeyword finds the first occurrence of the keyword at
// parenthesis depth zero, or -1.
func topLevelKeyword(masked, kw string) int {
	return topLevelKeywordFrom(masked, kw, 0)
}

func topLevelKeywordFrom(masked, kw string, from int) int {
	depth := 0
	for i := from; i < len(masked); i++ {
		switch masked[i] {
		case '(':
			depth++
		case ')':
			depth--
		default:
			if depth == 0 && sqltext.WordAt(masked, i, kw) {
				return i
			}
		}
	}
	return -1
}

// matchParen returns the index of the parenthesis closing the one at
// open, or -1.
func matchParen(masked string, open int) int {
	depth := 0
	for i := open; i < len(masked); i++ {
		switch masked[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

func isWordChar(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

// trailingSpace preserves the whitespace that separated the WHERE
// expression from the following clause so the splice does not glue
// keywords together.
func trailingSpace(expr string) string {
	trimmed := strings.TrimRight(expr, " \t\r\n")
	return expr[len(trimmed):]
}
