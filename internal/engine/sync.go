package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/ast"
	"github.com/Zhukowych/tablepp/internal/dialect"
	"github.com/Zhukowych/tablepp/internal/model"
)

// Step is one planned operation with the SQL that implements it.
type Step struct {
	Op  ast.Operation
	SQL []string
}

// Plan is the outcome of a diff: the ordered steps and the columns left out
// of the expected schema.
type Plan struct {
	Steps   []Step
	Skipped []model.Skipped
}

// IsEmpty reports whether the plan has no steps.
func (p *Plan) IsEmpty() bool {
	return len(p.Steps) == 0
}

// Operations returns the planned operations in order.
func (p *Plan) Operations() []ast.Operation {
	ops := make([]ast.Operation, len(p.Steps))
	for i, s := range p.Steps {
		ops[i] = s.Op
	}
	return ops
}

// Statements returns every planned SQL statement in order.
func (p *Plan) Statements() []string {
	var out []string
	for _, s := range p.Steps {
		out = append(out, s.SQL...)
	}
	return out
}

// Report describes a completed synchronization.
type Report struct {
	Applied  []Step
	Skipped  []model.Skipped
	Duration time.Duration
}

// Summary counts the applied operations by kind.
func (r *Report) Summary() DiffSummary {
	ops := make([]ast.Operation, len(r.Applied))
	for i, s := range r.Applied {
		ops[i] = s.Op
	}
	return Summarize(ops)
}

// Synchronizer brings the managed physical tables in line with the models.
type Synchronizer struct {
	dialect   dialect.Dialect
	inspector Inspector
	logger    *slog.Logger
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger that reports applied operations.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// New creates a Synchronizer.
func New(d dialect.Dialect, inspector Inspector, opts ...Option) *Synchronizer {
	s := &Synchronizer{dialect: d, inspector: inspector, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dialect returns the synchronizer's dialect.
func (s *Synchronizer) Dialect() dialect.Dialect {
	return s.dialect
}

// Plan computes the steps that reconcile the database reachable through q
// with models, without executing anything.
func (s *Synchronizer) Plan(ctx context.Context, q Queryer, models []*model.Model) (*Plan, error) {
	actual, err := s.inspector.Inspect(ctx, q)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	for _, m := range models {
		plan.Skipped = append(plan.Skipped, m.Skipped...)
	}

	for _, op := range Diff(actual, Expected(models)) {
		stmts, err := dialect.Statements(s.dialect, op)
		if err != nil {
			return nil, alerr.Wrap(alerr.ErrMigrationFailed, err, "failed to render operation").
				WithTable(op.Table()).
				With("operation", op.Type().String())
		}
		plan.Steps = append(plan.Steps, Step{Op: op, SQL: stmts})
	}
	return plan, nil
}

// Sync plans and applies the steps through q. Execution stops at the first
// failing statement; the caller owns the transaction and rolls it back.
// Running Sync again without metadata changes applies nothing.
func (s *Synchronizer) Sync(ctx context.Context, q Queryer, models []*model.Model) (*Report, error) {
	start := time.Now()

	plan, err := s.Plan(ctx, q, models)
	if err != nil {
		return nil, err
	}
	report := &Report{Skipped: plan.Skipped}
	if !HasChanges(plan.Operations()) && len(plan.Skipped) == 0 {
		report.Duration = time.Since(start)
		s.logger.Debug("schema up to date", "duration", report.Duration)
		return report, nil
	}
	if err := s.Apply(ctx, q, plan, report); err != nil {
		return report, err
	}
	report.Duration = time.Since(start)

	sum := report.Summary()
	s.logger.Info("schema synchronized",
		"operations", sum.TotalOps,
		"tables_created", sum.TablesToCreate,
		"tables_dropped", sum.TablesToDrop,
		"columns_added", sum.ColumnsToAdd,
		"columns_dropped", sum.ColumnsToDrop,
		"skipped", len(report.Skipped),
		"duration", report.Duration)
	return report, nil
}

// Apply executes the steps of plan in order and records them in report.
func (s *Synchronizer) Apply(ctx context.Context, q Queryer, plan *Plan, report *Report) error {
	for _, step := range plan.Steps {
		for _, stmt := range step.SQL {
			if _, err := q.ExecContext(ctx, stmt); err != nil {
				return alerr.Wrap(alerr.ErrMigrationFailed, err, "failed to apply operation").
					WithTable(step.Op.Table()).
					WithSQL(stmt).
					With("operation", step.Op.Type().String())
			}
		}
		s.logger.Debug("operation applied",
			"operation", step.Op.Type().String(),
			"table", step.Op.Table())
		report.Applied = append(report.Applied, step)
	}
	return nil
}
