package query

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		kind    Kind
		native  any
		wantErr bool
	}{
		{name: "string", input: `{"stringValue":"Malaria"}`, kind: KindString, native: "Malaria"},
		{name: "bool", input: `{"booleanValue":true}`, kind: KindBool, native: true},
		{name: "integer as string", input: `{"integerValue":"42"}`, kind: KindInteger, native: json.Number("42")},
		{name: "integer as number", input: `{"integerValue":42}`, kind: KindInteger, native: json.Number("42")},
		{name: "double", input: `{"doubleValue":1.5}`, kind: KindDouble, native: 1.5},
		{name: "timestamp", input: `{"timestampValue":"2020-09-09T12:00:00Z"}`, kind: KindTimestamp, native: "2020-09-09T12:00:00Z"},
		{name: "reference", input: `{"referenceValue":"projects/p/doc"}`, kind: KindReference, native: "projects/p/doc"},
		{name: "bytes", input: `{"bytesValue":"AQID"}`, kind: KindBytes, native: "AQID"},
		{name: "null siblings ignored", input: `{"stringValue":"x","booleanValue":null}`, kind: KindString, native: "x"},
		{name: "no variant", input: `{}`, wantErr: true},
		{name: "all null", input: `{"stringValue":null}`, wantErr: true},
		{name: "two variants", input: `{"stringValue":"x","booleanValue":false}`, wantErr: true},
		{name: "unknown variant", input: `{"mapValue":{}}`, wantErr: true},
		{name: "bad integer", input: `{"integerValue":"4.2"}`, wantErr: true},
		{name: "bad timestamp", input: `{"timestampValue":"yesterday"}`, wantErr: true},
		{name: "not an object", input: `"x"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			err := json.Unmarshal([]byte(tt.input), &v)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalid), "error %v should wrap ErrInvalid", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind())
			assert.Equal(t, tt.native, v.Native())
		})
	}
}

func TestValue_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Int(7))
	require.NoError(t, err)
	assert.JSONEq(t, `{"integerValue":"7"}`, string(b))

	b, err = json.Marshal(Array(String("a"), Bool(true)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"arrayValue":{"values":[{"stringValue":"a"},{"booleanValue":true}]}}`, string(b))

	_, err = json.Marshal(Value{})
	require.Error(t, err)
}

func TestValue_NestedArrayRejected(t *testing.T) {
	_, err := parseValue([]byte(`{"arrayValue":{"values":[{"arrayValue":{"values":[]}}]}}`), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"numbers across representations", json.Number("3"), 3.0, 0},
		{"int64 vs json number", int64(10), json.Number("9.5"), 1},
		{"strings", "001", "002", -1},
		{"null first", nil, false, -1},
		{"bool before number", true, 0.0, -1},
		{"number before string", 99.0, "1", -1},
		{"arrays elementwise", []any{"a", 1.0}, []any{"a", 2.0}, -1},
		{"shorter array first", []any{"a"}, []any{"a", "b"}, -1},
		{"maps equal", map[string]any{"k": "v"}, map[string]any{"k": "v"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
			assert.Equal(t, -tt.want, Compare(tt.b, tt.a))
		})
	}
}

func TestLookup(t *testing.T) {
	doc := Document{"a": map[string]any{"b": "deep"}, "flat": 1.0}

	v, ok := Lookup(doc, "a.b")
	assert.True(t, ok)
	assert.Equal(t, "deep", v)

	_, ok = Lookup(doc, "flat.x")
	assert.False(t, ok)

	_, ok = Lookup(doc, "missing")
	assert.False(t, ok)
}
