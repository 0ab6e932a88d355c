package tablepp

import (
	"github.com/Zhukowych/tablepp/internal/activity"
	"github.com/Zhukowych/tablepp/internal/coltype"
	"github.com/Zhukowych/tablepp/internal/engine"
	"github.com/Zhukowych/tablepp/internal/model"
	"github.com/Zhukowych/tablepp/internal/permission"
	"github.com/Zhukowych/tablepp/internal/record"
	"github.com/Zhukowych/tablepp/internal/registry"
	"github.com/Zhukowych/tablepp/internal/schemafile"
)

// Schema types.
type (
	Table       = registry.Table
	Column      = registry.Column
	ColumnInput = registry.ColumnInput
	Options     = registry.Options
	Settings    = coltype.Settings
	DType       = coltype.DType
	Model       = model.Model
	Field       = model.Field

	// SettingsSchema is the settings form shape of a dtype.
	SettingsSchema = coltype.SettingsSchema

	// SyncReport describes the physical changes of a schema mutation.
	SyncReport = engine.Report
	// SyncPlan lists the physical changes Migrate would make.
	SyncPlan = engine.Plan
)

// Record types.
type (
	Record    = record.Record
	Query     = record.Query
	Page      = record.Page
	Dependent = record.Dependent
	Match     = record.Match
	Activity  = activity.Entry
)

// Access control types.
type (
	User        = permission.User
	Rule        = permission.Rule
	Target      = permission.Target
	Operation   = permission.Operation
	Decision    = permission.Decision
	GroupPolicy = permission.GroupPolicy
	SubjectKind = permission.SubjectKind
)

// Schema file types.
type (
	SchemaDocument = schemafile.Document
	ApplyOptions   = schemafile.ApplyOptions
)

// Column data types.
const (
	Text     = coltype.Text
	Integer  = coltype.Integer
	Float    = coltype.Float
	BigText  = coltype.BigText
	Relation = coltype.Relation
)

// Record operations and rule decisions.
const (
	Read   = permission.Read
	Write  = permission.Write
	Delete = permission.Delete

	Accept = permission.Accept
	Reject = permission.Reject

	RejectWins = permission.RejectWins
	FirstFound = permission.FirstFound
)

// TableTarget addresses the rules of a table.
func TableTarget(id int64) Target { return permission.Table(id) }

// ColumnTarget addresses the rules of a column.
func ColumnTarget(id int64) Target { return permission.Column(id) }

// ColumnTypes returns the settings form shape of every dtype.
func ColumnTypes() []SettingsSchema {
	var out []SettingsSchema
	for _, dt := range coltype.DTypes() {
		out = append(out, coltype.SchemaFor(dt))
	}
	return out
}

// ParseOperation reads "read", "write" or "delete" in any case.
func ParseOperation(s string) (Operation, error) { return permission.ParseOperation(s) }

// ParseDecision reads "accept" or "reject" in any case.
func ParseDecision(s string) (Decision, error) { return permission.ParseDecision(s) }
