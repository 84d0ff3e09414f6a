// Package resultcheck inspects executed results for shapes that tend
// to mean the statement did not do what its author intended: empty
// results from unfiltered queries, result sets with no row bound, and
// implausibly negative financial columns. Findings are warnings
// attached to the outcome; they never retract rows already returned.
package resultcheck

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sadopc/sqlgate/internal/executor"
	"github.com/sadopc/sqlgate/internal/sqltext"
)

// Warning kinds.
const (
	KindEmptyResultNoFilter = "EMPTY_RESULT_NO_FILTER"
	KindRowLimitMissing     = "ROW_LIMIT_MISSING"
	KindSuspiciousNegatives = "SUSPICIOUS_NEGATIVE_VALUES"
)

// Warning is a non-fatal finding about an executed result.
type Warning struct {
	Kind    string
	Column  string // set for column-level findings
	Message string
}

// Checker holds the thresholds. The zero value is usable and applies
// the defaults below.
type Checker struct {
	// RowLimit flags results larger than this when the statement has
	// no LIMIT clause.
	RowLimit int
	// NegativeFraction is the share of parseable values in a
	// financial column that may be negative before a warning fires.
	NegativeFraction float64
	// FinancialTerms are lowercased substrings that mark a column as
	// financial.
	FinancialTerms []string
}

const (
	defaultRowLimit         = 1000
	defaultNegativeFraction = 0.5
)

var defaultFinancialTerms = []string{
	"amount", "price", "total", "revenue", "cost", "balance", "salary", "fee",
}

// Check inspects the result of stmt and returns all warnings that
// apply. The statement text is only used lexically, to see whether
// filters and limits were present.
func (c *Checker) Check(rs *executor.ResultSet, stmt string) []Warning {
	rowLimit := c.RowLimit
	if rowLimit <= 0 {
		rowLimit = defaultRowLimit
	}
	negFrac := c.NegativeFraction
	if negFrac <= 0 {
		negFrac = defaultNegativeFraction
	}
	terms := c.FinancialTerms
	if len(terms) == 0 {
		terms = defaultFinancialTerms
	}

	masked, err := sqltext.Mask(stmt)
	if err != nil {
		// Statements reach this stage already tokenized once; treat
		// a mask failure as "no clauses visible".
		masked = ""
	}
	upper := strings.ToUpper(masked)

	var warnings []Warning

	if len(rs.Rows) == 0 && !sqltext.ContainsWord(upper, "WHERE") {
		warnings = append(warnings, Warning{
			Kind:    KindEmptyResultNoFilter,
			Message: "query returned no rows and has no WHERE clause; the table may be empty or the wrong one",
		})
	}

	if len(rs.Rows) > rowLimit && !sqltext.ContainsWord(upper, "LIMIT") && !sqltext.ContainsWord(upper, "FETCH") {
		warnings = append(warnings, Warning{
			Kind:    KindRowLimitMissing,
			Message: fmt.Sprintf("query returned %d rows with no LIMIT clause", len(rs.Rows)),
		})
	}

	warnings = append(warnings, c.checkNegatives(rs, terms, negFrac)...)
	return warnings
}

// checkNegatives scans financial columns for a dominant share of
// negative values.
func (c *Checker) checkNegatives(rs *executor.ResultSet, terms []string, negFrac float64) []Warning {
	var warnings []Warning
	for i, col := range rs.Columns {
		if !isFinancial(col.Name, terms) {
			continue
		}

		var parsed, negative int
		for _, row := range rs.Rows {
			if i >= len(row) {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
			if err != nil {
				continue
			}
			parsed++
			if v < 0 {
				negative++
			}
		}
		if parsed == 0 {
			continue
		}
		frac := float64(negative) / float64(parsed)
		if frac > negFrac {
			warnings = append(warnings, Warning{
				Kind:   KindSuspiciousNegatives,
				Column: col.Name,
				Message: fmt.Sprintf("column %q is %.0f%% negative (%d of %d values); check sign conventions",
					col.Name, frac*100, negative, parsed),
			})
		}
	}
	return warnings
}

func isFinancial(column string, terms []string) bool {
	lower := strings.ToLower(column)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
