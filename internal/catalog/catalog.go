// Package catalog holds the schema model the validation stages check
// statements against. A Snapshot is immutable once built; the Store
// swaps complete snapshots atomically so in-flight validations always
// see a consistent view.
package catalog

import (
	"sort"
	"strings"
)

// Column describes a single column of a model.
type Column struct {
	Name string `yaml:"name"`
	Type string `yaml:"type,omitempty"`
	IsPK bool   `yaml:"primary_key,omitempty"`
}

// Relationship links a column of this model to a column of another.
type Relationship struct {
	Column    string `yaml:"column"`
	RefTable  string `yaml:"ref_table"`
	RefColumn string `yaml:"ref_column"`
}

// Model describes a queryable table or view. A model with no columns
// is still valid: column-level checks are skipped for it.
type Model struct {
	Name          string         `yaml:"name"`
	Columns       []Column       `yaml:"columns,omitempty"`
	Relationships []Relationship `yaml:"relationships,omitempty"`
}

// Metric is a named business definition that maps to a SQL expression.
type Metric struct {
	Name       string   `yaml:"name"`
	Expression string   `yaml:"expression"`
	Aliases    []string `yaml:"aliases,omitempty"`
}

// Snapshot is an immutable view of the schema at a point in time.
// Lookups are case-insensitive.
type Snapshot struct {
	models  []Model
	metrics []Metric
	index   map[string]int
	version string
}

// NewSnapshot builds a Snapshot from models and metrics. Model names
// are indexed lowercased; a later duplicate name wins.
func NewSnapshot(models []Model, metrics []Metric, version string) *Snapshot {
	idx := make(map[string]int, len(models))
	for i, m := range models {
		idx[strings.ToLower(m.Name)] = i
	}
	return &Snapshot{
		models:  models,
		metrics: metrics,
		index:   idx,
		version: version,
	}
}

// Version identifies this snapshot in audit records and verdicts.
func (s *Snapshot) Version() string { return s.version }

// Model looks up a model by name, case-insensitively. For a qualified
// name like "public.users" the unqualified tail is tried as well.
func (s *Snapshot) Model(name string) (*Model, bool) {
	lower := strings.ToLower(name)
	if i, ok := s.index[lower]; ok {
		return &s.models[i], true
	}
	if dot := strings.LastIndex(lower, "."); dot >= 0 {
		if i, ok := s.index[lower[dot+1:]]; ok {
			return &s.models[i], true
		}
	}
	return nil, false
}

// ModelNames returns all model names, sorted.
func (s *Snapshot) ModelNames() []string {
	names := make([]string, len(s.models))
	for i, m := range s.models {
		names[i] = m.Name
	}
	sort.Strings(names)
	return names
}

// Models returns the snapshot's models in declaration order.
func (s *Snapshot) Models() []Model { return s.models }

// Metrics returns the snapshot's metric definitions.
func (s *Snapshot) Metrics() []Metric { return s.metrics }

// Metric looks up a metric by name or alias, case-insensitively.
func (s *Snapshot) Metric(name string) (*Metric, bool) {
	for i := range s.metrics {
		m := &s.metrics[i]
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
		for _, a := range m.Aliases {
			if strings.EqualFold(a, name) {
				return m, true
			}
		}
	}
	return nil, false
}

// Column looks up a column of the model by name, case-insensitively.
func (m *Model) Column(name string) (*Column, bool) {
	for i := range m.Columns {
		if strings.EqualFold(m.Columns[i].Name, name) {
			return &m.Columns[i], true
		}
	}
	return nil, false
}

// ColumnNames returns the model's column names in declaration order.
func (m *Model) ColumnNames() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}
