// Package fixtures reads the fixture file that seeds the memory backend and
// the seed command.
//
// A fixture file is a JSON object:
//
//	{
//	  "settings":    {"defaultVersion": "0.0.42", "defaultAppUuid": "..."},
//	  "schemas":     {"<version>": {"<name>": <avro record schema>}},
//	  "apps":        {"<alias>": {"<version>": {"<lang>": <app definition>}}},
//	  "documents":   {"<type>": [<document>, ...]},
//	  "eligibility": {"<user>": {"<type>": ["<uuid>", ...]}},
//	  "indexes":     {"<type>": ["<field>", ...]}
//	}
//
// Numbers in documents are kept as json.Number.
package fixtures

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// File is a decoded fixture file.
type File struct {
	Settings    map[string]any                                   `json:"settings"`
	Schemas     map[string]map[string]json.RawMessage            `json:"schemas"`
	Apps        map[string]map[string]map[string]json.RawMessage `json:"apps"`
	Documents   map[string][]map[string]any                      `json:"documents"`
	Eligibility map[string]map[string][]string                   `json:"eligibility"`
	// Indexes lists the filterable fields per type. Types without an entry
	// accept filters on any field.
	Indexes map[string][]string `json:"indexes"`
}

// Load reads the fixture file at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixtures: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a fixture file from r and validates document identities.
func Parse(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var file File
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	for docType, docs := range file.Documents {
		for i, doc := range docs {
			if id, _ := doc["uuid"].(string); id == "" {
				return nil, fmt.Errorf("documents.%s[%d]: missing uuid", docType, i)
			}
		}
	}
	return &file, nil
}

// Types returns the document types of the file in sorted order.
func (f *File) Types() []string {
	types := make([]string, 0, len(f.Documents))
	for t := range f.Documents {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
