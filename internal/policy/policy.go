// Package policy maps protected tables to row-level predicate
// templates and binds them to a principal's attributes at request
// time. A bound predicate is a SQL boolean expression ready for the
// row filter to splice in.
package policy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrNoPolicy is returned when a table has no policy and is not
	// marked open.
	ErrNoPolicy = errors.New("no access policy for table")
	// ErrMissingAttribute is returned when a template references a
	// principal attribute that is not set.
	ErrMissingAttribute = errors.New("principal attribute not set")
)

// Principal identifies the entity on whose behalf a statement runs.
type Principal struct {
	ID         string
	Role       string
	Attributes map[string]string
}

// Attribute returns the named attribute. "id" and "role" resolve to
// the corresponding fields when not shadowed by an explicit attribute.
func (p Principal) Attribute(name string) (string, bool) {
	if v, ok := p.Attributes[name]; ok {
		return v, true
	}
	switch strings.ToLower(name) {
	case "id":
		return p.ID, p.ID != ""
	case "role":
		return p.Role, p.Role != ""
	}
	return "", false
}

// Rule is the predicate template guarding one table. Placeholders of
// the form {attr} are replaced with the principal's attribute values,
// single-quote escaped.
type Rule struct {
	Table     string
	Predicate string
}

// placeholderRe matches {attr} placeholders in a predicate template.
var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_]\w*)\}`)

// Bind substitutes the principal's attributes into the template. Any
// unresolved placeholder fails the bind; running with a partially
// bound predicate would widen access instead of narrowing it.
func (r Rule) Bind(p Principal) (string, error) {
	var missing []string
	bound := placeholderRe.ReplaceAllStringFunc(r.Predicate, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := p.Attribute(name)
		if !ok {
			missing = append(missing, name)
			return m
		}
		return escape(v)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s (table %s)",
			ErrMissingAttribute, strings.Join(missing, ", "), r.Table)
	}
	return bound, nil
}

// escape doubles single quotes so an attribute value cannot terminate
// the surrounding literal in the template.
func escape(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

// Set holds the rules for all protected tables plus the tables that
// were explicitly exempted from row-level filtering. Everything else
// fails closed.
type Set struct {
	rules map[string]Rule
	open  map[string]bool
}

// NewSet builds a Set. The open list is the per-deployment opt-in for
// tables that may run without a policy.
func NewSet(rules []Rule, open []string) *Set {
	s := &Set{
		rules: make(map[string]Rule, len(rules)),
		open:  make(map[string]bool, len(open)),
	}
	for _, r := range rules {
		s.rules[strings.ToLower(r.Table)] = r
	}
	for _, t := range open {
		s.open[strings.ToLower(t)] = true
	}
	return s
}

// Rule returns the rule for a table, if one exists.
func (s *Set) Rule(table string) (Rule, bool) {
	r, ok := s.rules[strings.ToLower(table)]
	return r, ok
}

// Open reports whether the table was explicitly exempted.
func (s *Set) Open(table string) bool {
	return s.open[strings.ToLower(table)]
}

// BindAll resolves and binds the rules for every referenced table.
// It returns the bound predicates and the subset of tables that are
// actually protected. A table with neither a rule nor an exemption
// yields ErrNoPolicy.
func (s *Set) BindAll(tables []string, p Principal) (predicates []string, protected []string, err error) {
	for _, table := range tables {
		r, ok := s.Rule(table)
		if !ok {
			if s.Open(table) {
				continue
			}
			return nil, nil, fmt.Errorf("%w: %s", ErrNoPolicy, table)
		}
		bound, err := r.Bind(p)
		if err != nil {
			return nil, nil, err
		}
		predicates = append(predicates, bound)
		protected = append(protected, table)
	}
	return predicates, protected, nil
}
