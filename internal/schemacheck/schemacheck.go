// Package schemacheck is the second validation stage: it verifies that
// every table a statement references exists in the catalog snapshot,
// and best-effort checks qualified column references. Extraction is
// lexical; anything the extractor cannot attribute to a known table is
// skipped rather than guessed at.
package schemacheck

import (
	"regexp"
	"sort"
	"strings"

	levenshtein "github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sahilm/fuzzy"

	"github.com/sadopc/sqlgate/internal/catalog"
	"github.com/sadopc/sqlgate/internal/sqltext"
)

// DefaultSuggestionThreshold is the minimum similarity ratio for a
// catalog name to be offered as a correction.
const DefaultSuggestionThreshold = 0.6

// Reference is an unresolved table or column reference with the
// closest catalog names, best match first.
type Reference struct {
	Name        string
	Table       string // set for column references
	Suggestions []string
}

// Result reports what the statement references and what failed to
// resolve.
type Result struct {
	// Tables holds the canonical catalog names of every resolved
	// table reference, in first-appearance order.
	Tables         []string
	UnknownTables  []Reference
	UnknownColumns []Reference
}

// OK reports whether every reference resolved.
func (r Result) OK() bool {
	return len(r.UnknownTables) == 0 && len(r.UnknownColumns) == 0
}

// Validator checks statements against a catalog snapshot. The zero
// value uses DefaultSuggestionThreshold.
type Validator struct {
	SuggestionThreshold float64
}

// tableRefRe captures a table reference after FROM or JOIN, with an
// optional alias. Quoted identifiers are already blanked by masking,
// so only bare identifiers match; quoted references are skipped.
var tableRefRe = regexp.MustCompile(`(?i)\b(FROM|JOIN)\s+([a-zA-Z_][\w.]*)(?:\s+(?:AS\s+)?([a-zA-Z_]\w*))?`)

// columnRefRe captures qualified column references like "c.name".
var columnRefRe = regexp.MustCompile(`\b([a-zA-Z_]\w*)\.([a-zA-Z_]\w*)\b`)

// cteNameRe captures names defined as common table expressions; only a
// CTE places a bare identifier directly before "AS (".
var cteNameRe = regexp.MustCompile(`(?i)\b([a-zA-Z_]\w*)\s+AS\s*\(`)

// notAnAlias lists keywords that can directly follow a table reference
// and must not be mistaken for its alias.
var notAnAlias = map[string]bool{
	"WHERE": true, "ON": true, "USING": true, "JOIN": true, "LEFT": true,
	"RIGHT": true, "INNER": true, "OUTER": true, "FULL": true, "CROSS": true,
	"GROUP": true, "ORDER": true, "LIMIT": true, "OFFSET": true, "FETCH": true,
	"HAVING": true, "WINDOW": true, "UNION": true, "INTERSECT": true,
	"EXCEPT": true, "NATURAL": true, "AS": true, "SET": true,
}

// Validate resolves every table and qualified column reference in the
// statement against the snapshot. The statement must already have
// passed classification; if it cannot be masked here, everything is
// reported unknown.
func (v *Validator) Validate(stmt string, snap *catalog.Snapshot) Result {
	masked, err := sqltext.Mask(stmt)
	if err != nil {
		return Result{UnknownTables: []Reference{{Name: stmt}}}
	}

	ctes := cteNames(masked)

	var res Result
	seen := map[string]bool{}
	aliases := map[string]string{} // alias (lower) -> canonical table name

	for _, idx := range tableRefRe.FindAllStringSubmatchIndex(masked, -1) {
		ref := masked[idx[4]:idx[5]]
		var alias string
		if idx[6] >= 0 {
			alias = masked[idx[6]:idx[7]]
		}

		// EXTRACT(field FROM expr) and friends use FROM inside a
		// function call; their operand is not a table reference.
		if insideFromFunction(masked, idx[2]) {
			continue
		}

		isFrom := strings.EqualFold(masked[idx[2]:idx[3]], "FROM")

		// A reference directly followed by "(" is a table-valued
		// function call, not a catalog table. A FROM list can still
		// continue past it with a comma.
		if j := skipSpace(masked, idx[5]); j < len(masked) && masked[j] == '(' {
			if isFrom {
				if close := matchParen(masked, j); close >= 0 {
					v.fromList(masked, skipAlias(masked, close+1), snap, ctes, seen, aliases, &res)
				}
			}
			continue
		}

		v.resolve(ref, alias, snap, ctes, seen, aliases, &res)

		// A comma after the reference continues an old-style join
		// list; every item in it is a table reference and none may
		// escape validation.
		if isFrom {
			v.fromList(masked, idx[1], snap, ctes, seen, aliases, &res)
		}
	}

	res.UnknownColumns = v.checkColumns(masked, snap, aliases, ctes)
	return res
}

// resolve records one table reference: canonical name and alias when
// it exists in the snapshot, an unknown reference with suggestions
// when it does not. CTE names resolve to nothing.
func (v *Validator) resolve(ref, alias string, snap *catalog.Snapshot, ctes, seen map[string]bool, aliases map[string]string, res *Result) {
	lower := strings.ToLower(ref)
	if ctes[lower] {
		return
	}

	model, ok := snap.Model(ref)
	if !ok {
		if !seen["?"+lower] {
			seen["?"+lower] = true
			res.UnknownTables = append(res.UnknownTables, Reference{
				Name:        ref,
				Suggestions: v.suggest(ref, snap.ModelNames()),
			})
		}
		return
	}

	if !seen[strings.ToLower(model.Name)] {
		seen[strings.ToLower(model.Name)] = true
		res.Tables = append(res.Tables, model.Name)
	}
	aliases[strings.ToLower(model.Name)] = model.Name
	if alias != "" && !notAnAlias[strings.ToUpper(alias)] {
		aliases[strings.ToLower(alias)] = model.Name
	}
}

// fromItemRe captures one comma-list item: a table reference with an
// optional alias.
var fromItemRe = regexp.MustCompile(`^([a-zA-Z_][\w.]*)(?:\s+(?:AS\s+)?([a-zA-Z_]\w*))?`)

// fromList resolves the remaining comma-separated items of a FROM
// list. pos must sit just past the previous item; scanning stops at
// the first token that does not continue the list.
func (v *Validator) fromList(masked string, pos int, snap *catalog.Snapshot, ctes, seen map[string]bool, aliases map[string]string, res *Result) {
	for {
		i := skipSpace(masked, pos)
		if i >= len(masked) || masked[i] != ',' {
			return
		}
		i = skipSpace(masked, i+1)

		// Derived table: skip the parenthesized body and its alias.
		if i < len(masked) && masked[i] == '(' {
			close := matchParen(masked, i)
			if close < 0 {
				return
			}
			pos = skipAlias(masked, close+1)
			continue
		}

		m := fromItemRe.FindStringSubmatchIndex(masked[i:])
		if m == nil {
			return
		}
		ref := masked[i+m[2] : i+m[3]]

		// Table function item: skip the call and its alias.
		if j := skipSpace(masked, i+m[3]); j < len(masked) && masked[j] == '(' {
			close := matchParen(masked, j)
			if close < 0 {
				return
			}
			pos = skipAlias(masked, close+1)
			continue
		}

		var alias string
		if m[4] >= 0 {
			alias = masked[i+m[4] : i+m[5]]
		}
		v.resolve(ref, alias, snap, ctes, seen, aliases, res)
		pos = i + m[1]
	}
}

// checkColumns validates qualified references whose qualifier resolves
// to a known table with column metadata. Unresolvable qualifiers and
// tables without column metadata are skipped.
func (v *Validator) checkColumns(masked string, snap *catalog.Snapshot, aliases map[string]string, ctes map[string]bool) []Reference {
	var unknown []Reference
	seen := map[string]bool{}

	for _, m := range columnRefRe.FindAllStringSubmatch(masked, -1) {
		qualifier, col := m[1], m[2]
		if ctes[strings.ToLower(qualifier)] {
			continue
		}

		table, ok := aliases[strings.ToLower(qualifier)]
		if !ok {
			continue
		}
		model, ok := snap.Model(table)
		if !ok || len(model.Columns) == 0 {
			continue
		}
		if _, ok := model.Column(col); ok {
			continue
		}

		key := strings.ToLower(table + "." + col)
		if seen[key] {
			continue
		}
		seen[key] = true
		unknown = append(unknown, Reference{
			Name:        col,
			Table:       model.Name,
			Suggestions: v.suggest(col, model.ColumnNames()),
		})
	}
	return unknown
}

// fromFunctions are SQL functions whose argument list contains a FROM
// keyword that must not be read as a table clause.
var fromFunctions = map[string]bool{
	"EXTRACT": true, "SUBSTRING": true, "TRIM": true,
	"POSITION": true, "OVERLAY": true,
}

// insideFromFunction reports whether the FROM keyword at pos sits
// inside a call to one of the fromFunctions. It finds the innermost
// unclosed parenthesis before pos and inspects the word preceding it.
func insideFromFunction(masked string, pos int) bool {
	var stack []int
	for i := 0; i < pos; i++ {
		switch masked[i] {
		case '(':
			stack = append(stack, i)
		case ')':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) == 0 {
		return false
	}
	open := stack[len(stack)-1]

	end := open
	for end > 0 && isSpace(masked[end-1]) {
		end--
	}
	start := end
	for start > 0 && isWordChar(masked[start-1]) {
		start--
	}
	return fromFunctions[strings.ToUpper(masked[start:end])]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func skipSpace(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

// matchParen returns the index of the parenthesis closing the one at
// open, or -1.
func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
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

// skipAlias advances past an optional alias (with optional AS)
// following a skipped FROM item. Clause keywords are not consumed.
func skipAlias(s string, pos int) int {
	i := skipSpace(s, pos)
	start := i
	for i < len(s) && isWordChar(s[i]) {
		i++
	}
	if i == start {
		return pos
	}
	word := strings.ToUpper(s[start:i])
	if word == "AS" {
		j := skipSpace(s, i)
		k := j
		for k < len(s) && isWordChar(s[k]) {
			k++
		}
		if k > j {
			return k
		}
		return i
	}
	if notAnAlias[word] {
		return start
	}
	return i
}

func isWordChar(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

// cteNames returns the lowercased names defined by WITH clauses.
func cteNames(masked string) map[string]bool {
	names := map[string]bool{}
	if !sqltext.ContainsWord(strings.ToUpper(masked), "WITH") {
		return names
	}
	for _, m := range cteNameRe.FindAllStringSubmatch(masked, -1) {
		names[strings.ToLower(m[1])] = true
	}
	return names
}

// suggest returns candidate names similar to ref, best first. Fuzzy
// subsequence matching shortlists candidates; the shortlist is then
// filtered by Levenshtein similarity ratio so that only genuinely
// close names survive. When the shortlist is empty (a pure typo with
// no common subsequence), all candidates are ranked directly.
func (v *Validator) suggest(ref string, candidates []string) []string {
	threshold := v.SuggestionThreshold
	if threshold <= 0 {
		threshold = DefaultSuggestionThreshold
	}

	lower := strings.ToLower(ref)
	lowerCands := make([]string, len(candidates))
	for i, c := range candidates {
		lowerCands[i] = strings.ToLower(c)
	}

	pool := candidates
	if matches := fuzzy.Find(lower, lowerCands); len(matches) > 0 {
		pool = make([]string, len(matches))
		for i, m := range matches {
			pool[i] = candidates[m.Index]
		}
	}

	type scored struct {
		name  string
		ratio float64
	}
	var kept []scored
	for _, c := range pool {
		r := similarity(lower, strings.ToLower(c))
		if r >= threshold {
			kept = append(kept, scored{c, r})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].ratio > kept[j].ratio })

	out := make([]string, 0, len(kept))
	for _, s := range kept {
		out = append(out, s.name)
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

// similarity is 1 minus the normalized Levenshtein distance.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.LevenshteinDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
