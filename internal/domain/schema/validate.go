package schema

import (
	"fmt"
	"slices"
	"sort"
)

// ValidateWrite checks doc against the write view of d and returns the
// cleaned document: values cast to their schema types, fields the write mask
// hides removed. doc must already carry its uuid.
//
// A non-empty problem list means the document must not be persisted.
func (d *Definition) ValidateWrite(doc map[string]any) (map[string]any, []string) {
	if len(doc) < 2 {
		return nil, []string{"Empty document"}
	}

	var problems []string

	var extras []string
	for k := range doc {
		if _, ok := d.Field(k); !ok && k != "uuid" {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		problems = append(problems, "extra field: "+k)
	}

	clean := make(map[string]any, len(doc))
	for _, f := range d.Fields {
		if MaskWrite.Banned(f.Name) {
			continue
		}
		v, present := doc[f.Name]
		if !present {
			if f.Required() && f.Name != "uuid" {
				problems = append(problems, "missing required field: "+f.Name)
			}
			continue
		}
		cv, err := castValue(f, v)
		if err != nil {
			problems = append(problems, fmt.Sprintf("invalid value for field %s: expected %s", f.Name, f.Type))
			continue
		}
		if len(f.Symbols) > 0 && cv != nil && !slices.Contains(f.Symbols, cv.(string)) {
			problems = append(problems, fmt.Sprintf("invalid value for field %s: %q is not one of %v", f.Name, cv, f.Symbols))
			continue
		}
		clean[f.Name] = cv
	}
	if uuid, ok := doc["uuid"]; ok {
		clean["uuid"] = uuid
	}

	if len(problems) > 0 {
		return nil, problems
	}
	return clean, nil
}
