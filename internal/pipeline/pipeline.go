// Package pipeline chains the validation stages into the single gate
// every statement must pass before touching a database: classify,
// schema check, policy bind, row-filter injection, execution, result
// check. Any stage failure rejects the statement; there is no path to
// the executor around the gate.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sadopc/sqlgate/internal/audit"
	"github.com/sadopc/sqlgate/internal/catalog"
	"github.com/sadopc/sqlgate/internal/classify"
	"github.com/sadopc/sqlgate/internal/executor"
	"github.com/sadopc/sqlgate/internal/policy"
	"github.com/sadopc/sqlgate/internal/resultcheck"
	"github.com/sadopc/sqlgate/internal/rowfilter"
	"github.com/sadopc/sqlgate/internal/schemacheck"
)

// Status of a verdict.
type Status string

const (
	StatusAllowed  Status = "ALLOWED"
	StatusRejected Status = "REJECTED"
	StatusFailed   Status = "FAILED"
)

// Reason codes produced by the pipeline itself; classification codes
// pass through unchanged.
const (
	ReasonUnknownTable       = "UNKNOWN_TABLE"
	ReasonUnknownColumn      = "UNKNOWN_COLUMN"
	ReasonPolicyMissing      = "POLICY_MISSING"
	ReasonInjectionPointLost = "INJECTION_POINT_NOT_FOUND"
	ReasonExecutionFailed    = "EXECUTION_FAILED"
)

// Verdict is the gate's decision for one statement.
type Verdict struct {
	Status       Status
	ReasonCode   string
	ReasonDetail string
	// Suggestions holds close catalog names when an unknown table or
	// column caused the rejection.
	Suggestions []string
	// Rewritten is the statement that may actually run. It equals the
	// trimmed input when no policy applies, and includes the injected
	// predicates otherwise. Empty on rejection.
	Rewritten string
	// Tables are the canonical catalog names the statement reads.
	Tables         []string
	CatalogVersion string
}

// Allowed reports whether the statement may execute.
func (v Verdict) Allowed() bool { return v.Status == StatusAllowed }

// Outcome is the result of running a statement through the full gate.
type Outcome struct {
	Verdict  Verdict
	Result   *executor.ResultSet
	Warnings []resultcheck.Warning
}

// Pipeline wires the stages together. Classifier, Validator, and
// Checker are value types whose zero values apply defaults; Policies
// and Catalog must be set. Backend and Audit may be nil, in which case
// Run is unavailable and decisions are not logged.
type Pipeline struct {
	Classifier classify.Classifier
	Validator  schemacheck.Validator
	Checker    resultcheck.Checker
	Policies   *policy.Set
	Catalog    *catalog.Store
	Backend    executor.Backend
	Audit      *audit.Logger

	// DSN identifies the backend connection in audit entries. It is
	// sanitized before logging; credentials never reach the log.
	DSN string

	// QueryTimeout bounds each execution. Zero means no bound beyond
	// the caller's context.
	QueryTimeout time.Duration
}

// ValidateAndSecure runs the pre-execution stages against the given
// snapshot and returns the verdict. It has no side effects beyond the
// returned value, so callers may use it to vet statements they never
// intend to run.
func (p *Pipeline) ValidateAndSecure(raw string, pr policy.Principal, snap *catalog.Snapshot) Verdict {
	cls := p.Classifier.Classify(raw)
	if !cls.Safe {
		return Verdict{
			Status:         StatusRejected,
			ReasonCode:     string(cls.Code),
			ReasonDetail:   cls.Detail,
			CatalogVersion: snap.Version(),
		}
	}

	refs := p.Validator.Validate(cls.Statement, snap)
	if len(refs.UnknownTables) > 0 {
		first := refs.UnknownTables[0]
		return Verdict{
			Status:         StatusRejected,
			ReasonCode:     ReasonUnknownTable,
			ReasonDetail:   fmt.Sprintf("unknown table %q", first.Name),
			Suggestions:    first.Suggestions,
			CatalogVersion: snap.Version(),
		}
	}
	if len(refs.UnknownColumns) > 0 {
		first := refs.UnknownColumns[0]
		return Verdict{
			Status:         StatusRejected,
			ReasonCode:     ReasonUnknownColumn,
			ReasonDetail:   fmt.Sprintf("unknown column %q on table %q", first.Name, first.Table),
			Suggestions:    first.Suggestions,
			CatalogVersion: snap.Version(),
		}
	}

	predicates, protected, err := p.Policies.BindAll(refs.Tables, pr)
	if err != nil {
		return Verdict{
			Status:         StatusRejected,
			ReasonCode:     ReasonPolicyMissing,
			ReasonDetail:   err.Error(),
			CatalogVersion: snap.Version(),
		}
	}

	rewritten := cls.Statement
	if len(predicates) > 0 {
		// All predicates are combined so the row filter splices
		// exactly once per branch. Each is parenthesized so an OR
		// inside one predicate cannot escape into its neighbors.
		combined := predicates[0]
		if len(predicates) > 1 {
			combined = "(" + predicates[0] + ")"
			for _, pred := range predicates[1:] {
				combined += " AND (" + pred + ")"
			}
		}
		rewritten, err = rowfilter.Inject(cls.Statement, combined, protected)
		if err != nil {
			return Verdict{
				Status:         StatusRejected,
				ReasonCode:     ReasonInjectionPointLost,
				ReasonDetail:   err.Error(),
				CatalogVersion: snap.Version(),
			}
		}
	}

	return Verdict{
		Status:         StatusAllowed,
		Rewritten:      rewritten,
		Tables:         refs.Tables,
		CatalogVersion: snap.Version(),
	}
}

// Vet validates against the current catalog snapshot and logs the
// decision without executing anything.
func (p *Pipeline) Vet(raw string, pr policy.Principal) Verdict {
	start := time.Now()
	v := p.ValidateAndSecure(raw, pr, p.Catalog.Snapshot())
	p.log(pr, raw, v, time.Since(start), -1)
	return v
}

// Run validates the statement and, when allowed, executes the
// rewritten form and checks the result. The executed statement is
// always the verdict's Rewritten text, never the raw input.
func (p *Pipeline) Run(ctx context.Context, raw string, pr policy.Principal) (*Outcome, error) {
	start := time.Now()

	verdict := p.ValidateAndSecure(raw, pr, p.Catalog.Snapshot())
	if !verdict.Allowed() {
		p.log(pr, raw, verdict, time.Since(start), -1)
		return &Outcome{Verdict: verdict}, nil
	}

	if p.Backend == nil {
		verdict.Status = StatusFailed
		verdict.ReasonCode = ReasonExecutionFailed
		verdict.ReasonDetail = executor.ErrNotConnected.Error()
		p.log(pr, raw, verdict, time.Since(start), -1)
		return &Outcome{Verdict: verdict}, executor.ErrNotConnected
	}

	qctx := ctx
	if p.QueryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, p.QueryTimeout)
		defer cancel()
	}

	rs, err := p.Backend.Query(qctx, verdict.Rewritten)
	if err != nil {
		verdict.Status = StatusFailed
		verdict.ReasonCode = ReasonExecutionFailed
		verdict.ReasonDetail = err.Error()
		p.log(pr, raw, verdict, time.Since(start), -1)
		return &Outcome{Verdict: verdict}, fmt.Errorf("execute: %w", err)
	}

	warnings := p.Checker.Check(rs, raw)
	p.log(pr, raw, verdict, time.Since(start), rs.RowCount)
	return &Outcome{Verdict: verdict, Result: rs, Warnings: warnings}, nil
}

// CheckResults re-runs the result validators against an already
// executed result set.
func (p *Pipeline) CheckResults(rs *executor.ResultSet, stmt string) []resultcheck.Warning {
	return p.Checker.Check(rs, stmt)
}

func (p *Pipeline) log(pr policy.Principal, raw string, v Verdict, d time.Duration, rows int64) {
	backend := ""
	if p.Backend != nil {
		backend = p.Backend.Name()
	}
	dsn := ""
	if p.DSN != "" {
		dsn = audit.SanitizeDSN(p.DSN)
	}
	p.Audit.Log(audit.Entry{
		Timestamp:      time.Now().UTC(),
		Principal:      pr.ID,
		Role:           pr.Role,
		Statement:      raw,
		Rewritten:      v.Rewritten,
		Status:         string(v.Status),
		ReasonCode:     v.ReasonCode,
		CatalogVersion: v.CatalogVersion,
		Backend:        backend,
		DurationMS:     d.Milliseconds(),
		RowCount:       rows,
		DSN:            dsn,
	})
}
