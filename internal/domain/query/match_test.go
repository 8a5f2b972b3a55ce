package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	doc := Document{
		"program":  "Malaria",
		"quantity": json.Number("12"),
		"price":    2.5,
		"tags":     []any{"urgent", "north"},
		"site":     map[string]any{"region": "Kigali"},
	}

	tests := []struct {
		name string
		node Node
		want bool
	}{
		{"nil matches", nil, true},
		{"equal", &Comparison{Field: "program", Op: OpEqual, Value: String("Malaria")}, true},
		{"equal other", &Comparison{Field: "program", Op: OpEqual, Value: String("TB")}, false},
		{"integer against number", &Comparison{Field: "quantity", Op: OpEqual, Value: Double(12)}, true},
		{"less than", &Comparison{Field: "price", Op: OpLessThan, Value: Int(3)}, true},
		{"greater or equal", &Comparison{Field: "quantity", Op: OpGreaterThanOrEqual, Value: Int(12)}, true},
		{"range across kinds", &Comparison{Field: "program", Op: OpGreaterThan, Value: Int(0)}, false},
		{"missing field", &Comparison{Field: "absent", Op: OpLessThan, Value: Int(1)}, false},
		{"nested path", &Comparison{Field: "site.region", Op: OpEqual, Value: String("Kigali")}, true},
		{"array contains", &Comparison{Field: "tags", Op: OpArrayContains, Value: String("north")}, true},
		{"array contains scalar field", &Comparison{Field: "program", Op: OpArrayContains, Value: String("Malaria")}, false},
		{"in", &Comparison{Field: "program", Op: OpIn, Value: Array(String("TB"), String("Malaria"))}, true},
		{"in miss", &Comparison{Field: "program", Op: OpIn, Value: Array(String("TB"))}, false},
		{"array contains any", &Comparison{Field: "tags", Op: OpArrayContainsAny, Value: Array(String("south"), String("urgent"))}, true},
		{"equal on array field", &Comparison{Field: "tags", Op: OpEqual, Value: String("north")}, false},
		{"range on array field", &Comparison{Field: "tags", Op: OpGreaterThan, Value: String("a")}, false},
		{"in on array field", &Comparison{Field: "tags", Op: OpIn, Value: Array(String("north"))}, false},
		{"and", &Composite{Filters: []Node{
			&Comparison{Field: "program", Op: OpEqual, Value: String("Malaria")},
			&Comparison{Field: "quantity", Op: OpLessThan, Value: Int(10)},
		}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.node, doc))
		})
	}
}
