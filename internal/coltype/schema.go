package coltype

// FieldKind tells a form renderer how to draw a settings field.
type FieldKind string

const (
	KindInteger   FieldKind = "integer"
	KindFloat     FieldKind = "float"
	KindOperators FieldKind = "operators"
	KindTable     FieldKind = "table"
)

// SettingField is one entry of a settings form.
type SettingField struct {
	Key      string    `json:"key" yaml:"key"`
	Label    string    `json:"label" yaml:"label"`
	Kind     FieldKind `json:"kind" yaml:"kind"`
	Default  any       `json:"default,omitempty" yaml:"default,omitempty"`
	Required bool      `json:"required,omitempty" yaml:"required,omitempty"`
}

// OperatorChoice is one selectable filter operator.
type OperatorChoice struct {
	Value Operator `json:"value" yaml:"value"`
	Label string   `json:"label" yaml:"label"`
}

// SettingsSchema is the shape of the settings form for a dtype.
type SettingsSchema struct {
	DType     DType            `json:"dtype" yaml:"dtype"`
	Fields    []SettingField   `json:"fields" yaml:"fields"`
	Operators []OperatorChoice `json:"operators" yaml:"operators"`
}

// SchemaFor returns the settings form shape of dtype.
func SchemaFor(dtype DType) SettingsSchema {
	s := SettingsSchema{
		DType:  dtype,
		Fields: []SettingField{{Key: KeyFilters, Label: "Filters", Kind: KindOperators}},
	}
	for _, op := range AllowedOperators(dtype) {
		s.Operators = append(s.Operators, OperatorChoice{Value: op, Label: op.Label()})
	}

	switch dtype {
	case Integer:
		s.Fields = append(s.Fields,
			SettingField{Key: KeyMinValue, Label: "Min value", Kind: KindInteger, Default: DefaultMinValue},
			SettingField{Key: KeyMaxValue, Label: "Max value", Kind: KindInteger, Default: DefaultMaxValue},
		)
	case Float:
		s.Fields = append(s.Fields,
			SettingField{Key: KeyMinValue, Label: "Min value", Kind: KindFloat, Default: float64(DefaultMinValue)},
			SettingField{Key: KeyMaxValue, Label: "Max value", Kind: KindFloat, Default: float64(DefaultMaxValue)},
		)
	case Text:
		s.Fields = append(s.Fields,
			SettingField{Key: KeyMaxLength, Label: "Max length", Kind: KindInteger, Default: DefaultMaxLength},
		)
	case Relation:
		s.Fields = append(s.Fields,
			SettingField{Key: KeyTargetTableID, Label: "Table", Kind: KindTable, Required: true},
		)
	}
	return s
}

// FrozenKeys lists the settings of dtype that shape physical storage and
// therefore cannot change after the column is persisted.
func FrozenKeys(dtype DType) []string {
	switch dtype {
	case Text:
		return []string{KeyMaxLength}
	case Relation:
		return []string{KeyTargetTableID}
	}
	return nil
}
