// Package schemafile reads and writes declarative YAML descriptions of
// tables and columns, and reconciles the registry with them.
//
// A document looks like:
//
//	tables:
//	  - name: Companies
//	    columns:
//	      - name: title
//	        type: TEXT
//	        settings: {max_length: 64, filters: [exact, contains]}
//	  - name: Contacts
//	    ordering: [name]
//	    unique_together: [[name, company]]
//	    columns:
//	      - name: name
//	        type: TEXT
//	      - name: company
//	        type: RELATION
//	        target: Companies
//	    records:
//	      - {name: Ada, company: 1}
package schemafile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/coltype"
)

// Document is the root of a schema file.
type Document struct {
	Tables []Table `yaml:"tables"`
}

// Table declares one table.
type Table struct {
	Name           string           `yaml:"name"`
	Description    string           `yaml:"description,omitempty"`
	Ordering       []string         `yaml:"ordering,omitempty"`
	UniqueTogether [][]string       `yaml:"unique_together,omitempty"`
	Columns        []Column         `yaml:"columns"`
	Records        []map[string]any `yaml:"records,omitempty"`
}

// Column declares one column. Target names the table of a RELATION column
// and is resolved to target_table_id on apply.
type Column struct {
	Name        string           `yaml:"name"`
	Type        string           `yaml:"type"`
	Target      string           `yaml:"target,omitempty"`
	Settings    coltype.Settings `yaml:"settings,omitempty"`
	Filterable  *bool            `yaml:"filterable,omitempty"`
	Displayable *bool            `yaml:"displayable,omitempty"`
}

// Table returns the declared table called name, or nil.
func (d *Document) Table(name string) *Table {
	for i := range d.Tables {
		if strings.EqualFold(d.Tables[i].Name, name) {
			return &d.Tables[i]
		}
	}
	return nil
}

// Load reads and validates the schema file at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		var e *alerr.Error
		if errors.As(err, &e) {
			return nil, e.With("file", path)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes and validates a schema document. Unknown keys are errors.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, alerr.Wrap(alerr.ErrValidation, err, "malformed schema file")
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks names, types and relation targets that can be checked
// without a database. Relation targets outside the document are resolved on
// apply.
func (d *Document) Validate() error {
	fe := alerr.FieldErrors{}
	seen := map[string]bool{}
	for i, t := range d.Tables {
		key := fmt.Sprintf("tables[%d]", i)
		name := strings.ToLower(strings.TrimSpace(t.Name))
		switch {
		case name == "":
			fe.Add(key+".name", "This field is required")
		case seen[name]:
			fe.Add(key+".name", fmt.Sprintf("Table %q is declared twice", t.Name))
		}
		seen[name] = true

		cols := map[string]bool{}
		for j, c := range t.Columns {
			ckey := fmt.Sprintf("%s.columns[%d]", key, j)
			cname := strings.ToLower(strings.TrimSpace(c.Name))
			switch {
			case cname == "":
				fe.Add(ckey+".name", "This field is required")
			case cols[cname]:
				fe.Add(ckey+".name", fmt.Sprintf("Column %q is declared twice", c.Name))
			}
			cols[cname] = true

			dt, err := coltype.ParseDType(c.Type)
			if err != nil {
				fe.AddError(ckey+".type", err)
				continue
			}
			switch {
			case dt == coltype.Relation && c.Target == "":
				fe.Add(ckey+".target", "This field is required")
			case dt != coltype.Relation && c.Target != "":
				fe.Add(ckey+".target", "Only RELATION columns have a target")
			}
		}
		for _, group := range t.UniqueTogether {
			for _, col := range group {
				if !cols[strings.ToLower(col)] {
					fe.Add(key+".unique_together", fmt.Sprintf("Unknown column %q", col))
				}
			}
		}
	}
	return fe.Err("invalid schema file")
}

// Marshal encodes d as YAML.
func Marshal(d *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
