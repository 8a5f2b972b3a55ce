package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Kind identifies which variant a Value carries.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInteger
	KindDouble
	KindTimestamp
	KindString
	KindBytes
	KindReference
	// KindArray is only valid as the operand of a membership operator.
	KindArray
)

var kindWireNames = [...]string{
	KindInvalid:   "",
	KindBool:      "booleanValue",
	KindInteger:   "integerValue",
	KindDouble:    "doubleValue",
	KindTimestamp: "timestampValue",
	KindString:    "stringValue",
	KindBytes:     "bytesValue",
	KindReference: "referenceValue",
	KindArray:     "arrayValue",
}

func (k Kind) String() string {
	if int(k) < len(kindWireNames) && k != KindInvalid {
		return kindWireNames[k]
	}
	return "invalid"
}

func kindFromWire(name string) (Kind, bool) {
	for k, n := range kindWireNames {
		if n != "" && n == name {
			return Kind(k), true
		}
	}
	return KindInvalid, false
}

// Value is a typed scalar carrying exactly one variant. The zero Value is
// invalid and never produced by a successful parse.
type Value struct {
	kind  Kind
	b     bool
	f     float64
	s     string
	items []Value
}

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{kind: KindInteger, s: strconv.FormatInt(i, 10)} }

// Double returns a floating point Value.
func Double(f float64) Value { return Value{kind: KindDouble, f: f} }

// Timestamp returns a timestamp Value in RFC 3339 form.
func Timestamp(t time.Time) Value {
	return Value{kind: KindTimestamp, s: t.UTC().Format(time.RFC3339Nano)}
}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bytes returns a byte-string Value. s is kept verbatim (base64 on the wire).
func Bytes(s string) Value { return Value{kind: KindBytes, s: s} }

// Reference returns a document reference Value.
func Reference(s string) Value { return Value{kind: KindReference, s: s} }

// Array returns a list Value for membership operators.
func Array(items ...Value) Value { return Value{kind: KindArray, items: items} }

// Kind returns the populated variant.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether exactly one variant is populated.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// Items returns the elements of an array Value, or the Value itself as a
// single element list for scalars.
func (v Value) Items() []Value {
	if v.kind == KindArray {
		return v.items
	}
	return []Value{v}
}

// Int64 returns the integer payload.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	i, err := strconv.ParseInt(v.s, 10, 64)
	return i, err == nil
}

// Native returns the value as it appears in a JSON-decoded document:
// bool, json.Number, float64, string or []any.
func (v Value) Native() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInteger:
		return json.Number(v.s)
	case KindDouble:
		return v.f
	case KindTimestamp, KindString, KindBytes, KindReference:
		return v.s
	case KindArray:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Native()
		}
		return out
	default:
		return nil
	}
}

// DocumentJSON returns the JSON encoding of Native.
func (v Value) DocumentJSON() (string, error) {
	b, err := json.Marshal(v.Native())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindArray:
		return fmt.Sprint(v.Native())
	default:
		return v.s
	}
}

// MarshalJSON writes the single-variant wire object, e.g. {"stringValue":"x"}.
func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.kind {
	case KindBool:
		payload = v.b
	case KindDouble:
		payload = v.f
	case KindInteger, KindTimestamp, KindString, KindBytes, KindReference:
		payload = v.s
	case KindArray:
		payload = struct {
			Values []Value `json:"values"`
		}{Values: v.items}
	default:
		return nil, fmt.Errorf("%w: value has no variant set", ErrInvalid)
	}
	return json.Marshal(map[string]any{v.kind.String(): payload})
}

// UnmarshalJSON accepts an object with exactly one non-null variant key.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := parseValue(data, true)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func parseValue(data []byte, allowArray bool) (Value, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Value{}, fmt.Errorf("%w: value must be an object: %v", ErrInvalid, err)
	}

	var (
		kind    Kind
		payload json.RawMessage
		set     int
	)
	for key, msg := range raw {
		k, ok := kindFromWire(key)
		if !ok {
			return Value{}, fmt.Errorf("%w: unsupported value type %q", ErrInvalid, key)
		}
		if isJSONNull(msg) {
			continue
		}
		kind, payload = k, msg
		set++
	}
	if set != 1 {
		return Value{}, fmt.Errorf("%w: value must set exactly one variant, got %d", ErrInvalid, set)
	}

	switch kind {
	case KindBool:
		var b bool
		if err := json.Unmarshal(payload, &b); err != nil {
			return Value{}, fmt.Errorf("%w: booleanValue: %v", ErrInvalid, err)
		}
		return Bool(b), nil
	case KindDouble:
		var f float64
		if err := json.Unmarshal(payload, &f); err != nil {
			return Value{}, fmt.Errorf("%w: doubleValue: %v", ErrInvalid, err)
		}
		return Double(f), nil
	case KindInteger:
		s, err := stringOrNumber(payload)
		if err != nil {
			return Value{}, fmt.Errorf("%w: integerValue: %v", ErrInvalid, err)
		}
		if _, err := strconv.ParseInt(s, 10, 64); err != nil {
			return Value{}, fmt.Errorf("%w: integerValue %q is not a 64-bit integer", ErrInvalid, s)
		}
		return Value{kind: KindInteger, s: s}, nil
	case KindTimestamp:
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return Value{}, fmt.Errorf("%w: timestampValue: %v", ErrInvalid, err)
		}
		if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
			return Value{}, fmt.Errorf("%w: timestampValue %q is not RFC 3339", ErrInvalid, s)
		}
		return Value{kind: KindTimestamp, s: s}, nil
	case KindString, KindBytes, KindReference:
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return Value{}, fmt.Errorf("%w: %s: %v", ErrInvalid, kind, err)
		}
		return Value{kind: kind, s: s}, nil
	case KindArray:
		if !allowArray {
			return Value{}, fmt.Errorf("%w: nested arrayValue is not supported", ErrInvalid)
		}
		var arr struct {
			Values []json.RawMessage `json:"values"`
		}
		if err := json.Unmarshal(payload, &arr); err != nil {
			return Value{}, fmt.Errorf("%w: arrayValue: %v", ErrInvalid, err)
		}
		items := make([]Value, 0, len(arr.Values))
		for i, raw := range arr.Values {
			item, err := parseValue(raw, false)
			if err != nil {
				return Value{}, fmt.Errorf("arrayValue[%d]: %w", i, err)
			}
			items = append(items, item)
		}
		return Array(items...), nil
	}
	return Value{}, fmt.Errorf("%w: unsupported value", ErrInvalid)
}

// integerValue is a string on the wire but plain numbers are tolerated.
func stringOrNumber(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func isJSONNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
