package ast

import "testing"

func TestOpTypeOrdering(t *testing.T) {
	// Op types sort in execution order.
	order := []OpType{OpDropIndex, OpCreateTable, OpAddColumn, OpCreateIndex, OpDropColumn, OpDropTable}
	for i := 1; i < len(order); i++ {
		if order[i-1] >= order[i] {
			t.Errorf("%s should sort before %s", order[i-1], order[i])
		}
	}
	if OpType(99).String() != "Unknown" {
		t.Error("unexpected String() for unknown op")
	}
}

func TestOperationValidate(t *testing.T) {
	tests := []struct {
		name    string
		op      Operation
		wantErr bool
	}{
		{"create_table", &CreateTable{TableOp: TableOp{Name: "table_a"}, Columns: []*ColumnDef{{Name: "id", Type: TypeID, PrimaryKey: true}}}, false},
		{"create_table_no_columns", &CreateTable{TableOp: TableOp{Name: "table_a"}}, true},
		{"drop_table", &DropTable{TableOp: TableOp{Name: "table_a"}}, false},
		{"drop_table_no_name", &DropTable{}, true},
		{"add_nullable_column", &AddColumn{TableRef: TableRef{Table_: "table_a"}, Column: &ColumnDef{Name: "column_b", Type: TypeText, Nullable: true}}, false},
		{"add_not_null_column", &AddColumn{TableRef: TableRef{Table_: "table_a"}, Column: &ColumnDef{Name: "column_b", Type: TypeText}}, true},
		{"add_column_missing_def", &AddColumn{TableRef: TableRef{Table_: "table_a"}}, true},
		{"drop_column", &DropColumn{TableRef: TableRef{Table_: "table_a"}, Name: "column_b"}, false},
		{"drop_primary_key", &DropColumn{TableRef: TableRef{Table_: "table_a"}, Name: "id"}, true},
		{"create_index", &CreateIndex{TableRef: TableRef{Table_: "table_a"}, Columns: []string{"column_b"}}, false},
		{"create_index_no_columns", &CreateIndex{TableRef: TableRef{Table_: "table_a"}}, true},
		{"drop_index", &DropIndex{Name: "idx"}, false},
		{"drop_index_no_name", &DropIndex{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDropColumnDropped(t *testing.T) {
	op := &DropColumn{TableRef: TableRef{Table_: "table_c0ffee"}, Name: "column_company", Current: contactsDef()}
	col := op.Dropped()
	if col == nil || col.Reference == nil {
		t.Fatalf("Dropped() = %v, want the referencing column", col)
	}
	if (&DropColumn{Name: "x"}).Dropped() != nil {
		t.Error("Dropped() without Current should be nil")
	}
}
