package schema

import (
	"encoding/json"
	"fmt"

	"github.com/hamba/avro/v2"
)

// Field is one top-level field of a document schema.
type Field struct {
	Name string
	// Type is the first non-null branch of the field's type. It is
	// avro.Union when more than one non-null branch exists.
	Type       avro.Type
	Nullable   bool
	HasDefault bool
	Symbols    []string
}

// Required reports whether a new document must carry the field.
func (f Field) Required() bool {
	return !f.Nullable && !f.HasDefault
}

// Definition is a parsed Avro record schema for one document type at one
// application version.
type Definition struct {
	Name    string
	Version string
	Fields  []Field

	raw    map[string]any
	byName map[string]int
}

// ParseDefinition parses an Avro record schema.
func ParseDefinition(version, name string, data []byte) (*Definition, error) {
	// A private cache per parse: the same record name is redefined across
	// application versions.
	parsed, err := avro.ParseWithCache(string(data), "", &avro.SchemaCache{})
	if err != nil {
		return nil, fmt.Errorf("parse schema %s@%s: %w", name, version, err)
	}
	rec, ok := parsed.(*avro.RecordSchema)
	if !ok {
		return nil, fmt.Errorf("schema %s@%s is %s, not a record", name, version, parsed.Type())
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode schema %s@%s: %w", name, version, err)
	}

	def := &Definition{
		Name:    name,
		Version: version,
		raw:     raw,
		byName:  make(map[string]int, len(rec.Fields())),
	}
	for _, f := range rec.Fields() {
		field := Field{Name: f.Name(), HasDefault: f.HasDefault()}
		field.Type, field.Nullable, field.Symbols = describe(f.Type())
		def.byName[field.Name] = len(def.Fields)
		def.Fields = append(def.Fields, field)
	}
	return def, nil
}

func describe(s avro.Schema) (avro.Type, bool, []string) {
	switch t := s.(type) {
	case *avro.UnionSchema:
		var branches []avro.Schema
		for _, branch := range t.Types() {
			if branch.Type() != avro.Null {
				branches = append(branches, branch)
			}
		}
		nullable := t.Nullable() || len(branches) < len(t.Types())
		if len(branches) == 1 {
			typ, _, symbols := describe(branches[0])
			return typ, nullable, symbols
		}
		if len(branches) == 0 {
			return avro.Null, true, nil
		}
		return avro.Union, nullable, nil
	case *avro.RefSchema:
		return describe(t.Schema())
	case *avro.EnumSchema:
		return avro.Enum, false, t.Symbols()
	default:
		return s.Type(), s.Type() == avro.Null, nil
	}
}

// Field returns the named field.
func (d *Definition) Field(name string) (Field, bool) {
	i, ok := d.byName[name]
	if !ok {
		return Field{}, false
	}
	return d.Fields[i], true
}

// View returns the schema document with the fields m hides removed, in the
// shape it was stored.
func (d *Definition) View(m Mask) map[string]any {
	out := make(map[string]any, len(d.raw))
	for k, v := range d.raw {
		out[k] = v
	}
	fields, _ := d.raw["fields"].([]any)
	kept := make([]any, 0, len(fields))
	for _, f := range fields {
		obj, _ := f.(map[string]any)
		if name, _ := obj["name"].(string); m.Banned(name) {
			continue
		}
		kept = append(kept, f)
	}
	out["fields"] = kept
	return out
}
