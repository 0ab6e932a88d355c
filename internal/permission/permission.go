// Package permission decides whether a user may read, write or delete a
// table or a column.
//
// Resolution order: superusers always pass; an explicit decision for the user
// wins; otherwise decisions granted to the user's groups apply; otherwise
// tables are denied and columns are allowed.
package permission

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/Zhukowych/tablepp/internal/alerr"
)

// Operation is the kind of access requested. Codes are persisted.
type Operation int

const (
	Read   Operation = 0
	Write  Operation = 1
	Delete Operation = 2
)

func (o Operation) String() string {
	switch o {
	case Read:
		return "READ"
	case Write:
		return "WRITE"
	case Delete:
		return "DELETE"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// ParseOperation reads "read", "write" or "delete" in any case.
func ParseOperation(s string) (Operation, error) {
	for _, op := range []Operation{Read, Write, Delete} {
		if strings.EqualFold(op.String(), s) {
			return op, nil
		}
	}
	return 0, alerr.New(alerr.ErrValidation, "unknown operation").With("operation", s)
}

// Decision is the outcome stored in a rule. Codes are persisted.
type Decision int

const (
	Accept Decision = 0
	Reject Decision = 1
)

func (d Decision) String() string {
	if d == Reject {
		return "REJECT"
	}
	return "ACCEPT"
}

// ParseDecision reads "accept" or "reject" in any case.
func ParseDecision(s string) (Decision, error) {
	switch {
	case strings.EqualFold(s, "accept"):
		return Accept, nil
	case strings.EqualFold(s, "reject"):
		return Reject, nil
	}
	return 0, alerr.New(alerr.ErrValidation, "unknown decision").With("decision", s)
}

// TargetKind tells tables and columns apart.
type TargetKind string

const (
	TargetTable  TargetKind = "table"
	TargetColumn TargetKind = "column"
)

// Target is the object a permission applies to.
type Target struct {
	Kind TargetKind
	ID   int64
}

// Table returns the target of a table id.
func Table(id int64) Target { return Target{Kind: TargetTable, ID: id} }

// Column returns the target of a column id.
func Column(id int64) Target { return Target{Kind: TargetColumn, ID: id} }

func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.Kind, t.ID)
}

// SubjectKind tells users and groups apart.
type SubjectKind string

const (
	SubjectUser  SubjectKind = "user"
	SubjectGroup SubjectKind = "group"
)

// Rule is one explicit permission decision.
type Rule struct {
	ID          int64
	SubjectKind SubjectKind
	SubjectID   int64
	Target      Target
	Operation   Operation
	Decision    Decision
}

// User is the acting user. Groups may be left nil when the store knows the
// membership.
type User struct {
	ID        int64
	Username  string
	Superuser bool
	Groups    []int64
}

func (u User) String() string {
	if u.Username != "" {
		return u.Username
	}
	return fmt.Sprintf("user:%d", u.ID)
}

// Checker answers permission questions.
type Checker interface {
	Allows(ctx context.Context, u User, target Target, op Operation) (bool, error)
}

// Store is the rule storage the Evaluator reads.
type Store interface {
	// UserDecision returns the explicit decision for the user, if any.
	UserDecision(ctx context.Context, userID int64, target Target, op Operation) (Decision, bool, error)
	// GroupDecisions returns the decisions of the given groups ordered by
	// group id.
	GroupDecisions(ctx context.Context, groupIDs []int64, target Target, op Operation) ([]Decision, error)
	// UserGroups returns the groups a user is a member of.
	UserGroups(ctx context.Context, userID int64) ([]int64, error)
}

// GroupPolicy combines decisions coming from several groups.
type GroupPolicy int

const (
	// RejectWins denies when any group rejects, otherwise accepts.
	RejectWins GroupPolicy = iota
	// FirstFound applies the decision of the group with the lowest id.
	FirstFound
)

// Evaluator implements Checker over a Store.
type Evaluator struct {
	store  Store
	policy GroupPolicy
	logger *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithGroupPolicy sets how decisions of several groups are combined.
func WithGroupPolicy(p GroupPolicy) Option {
	return func(e *Evaluator) { e.policy = p }
}

// WithLogger sets the logger that traces group decisions.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// NewEvaluator creates an Evaluator reading rules from store.
func NewEvaluator(store Store, opts ...Option) *Evaluator {
	e := &Evaluator{store: store, policy: RejectWins, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Allows reports whether u may perform op on target.
func (e *Evaluator) Allows(ctx context.Context, u User, target Target, op Operation) (bool, error) {
	if u.Superuser {
		return true, nil
	}

	d, ok, err := e.store.UserDecision(ctx, u.ID, target, op)
	if err != nil {
		return false, err
	}
	if ok {
		return d == Accept, nil
	}

	groups, err := e.groups(ctx, u)
	if err != nil {
		return false, err
	}
	if len(groups) > 0 {
		decisions, err := e.store.GroupDecisions(ctx, groups, target, op)
		if err != nil {
			return false, err
		}
		if len(decisions) > 0 {
			allowed := !slices.Contains(decisions, Reject)
			if e.policy == FirstFound {
				allowed = decisions[0] == Accept
			}
			e.logger.Debug("group decision",
				"user", u.String(),
				"target", target.String(),
				"operation", op.String(),
				"groups", len(groups),
				"allowed", allowed)
			return allowed, nil
		}
	}

	// Tables are opt-in, columns opt-out.
	return target.Kind == TargetColumn, nil
}

func (e *Evaluator) groups(ctx context.Context, u User) ([]int64, error) {
	stored, err := e.store.UserGroups(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	all := slices.Concat(u.Groups, stored)
	slices.Sort(all)
	return slices.Compact(all), nil
}

// Require returns ErrPermissionDenied unless c allows the access.
func Require(ctx context.Context, c Checker, u User, target Target, op Operation) error {
	ok, err := c.Allows(ctx, u, target, op)
	if err != nil {
		return err
	}
	if !ok {
		return alerr.New(alerr.ErrPermissionDenied, "permission denied").
			With("user", u.String()).
			With("target", target.String()).
			With("operation", op.String())
	}
	return nil
}

// AllowAll is a Checker that allows everything.
type AllowAll struct{}

// Allows always returns true.
func (AllowAll) Allows(context.Context, User, Target, Operation) (bool, error) {
	return true, nil
}
