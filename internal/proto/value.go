package proto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind discriminates a Value's variant.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindInteger
	KindFloat
	KindText
	KindBlob
)

// Value is the sum type Null | Integer(i64) | Float(f64) | Text(string) |
// Blob(bytes).
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Text  string
	Blob  []byte
}

func NullValue() Value           { return Value{Kind: KindNull} }
func IntegerValue(v int64) Value { return Value{Kind: KindInteger, Int: v} }
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }
func TextValue(v string) Value   { return Value{Kind: KindText, Text: v} }
func BlobValue(v []byte) Value   { return Value{Kind: KindBlob, Blob: v} }

type wireValue struct {
	Type  string `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte(`{"type":"null"}`), nil
	case KindInteger:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		}{"integer", strconv.FormatInt(v.Int, 10)})
	case KindFloat:
		return json.Marshal(struct {
			Type  string  `json:"type"`
			Value float64 `json:"value"`
		}{"float", v.Float})
	case KindText:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		}{"text", v.Text})
	case KindBlob:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Base64 string `json:"base64"`
		}{"blob", base64.RawStdEncoding.EncodeToString(v.Blob)})
	default:
		return nil, fmt.Errorf("proto: unknown value kind %d", v.Kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var head struct {
		Type   string          `json:"type"`
		Value  json.RawMessage `json:"value"`
		Base64 *string         `json:"base64"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	switch head.Type {
	case "null":
		*v = Value{Kind: KindNull}
	case "integer":
		var s string
		if err := json.Unmarshal(head.Value, &s); err != nil {
			return fmt.Errorf("integer value must be a decimal string: %w", err)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("unparsable integer value %q: %w", s, err)
		}
		*v = Value{Kind: KindInteger, Int: n}
	case "float":
		var f float64
		if err := json.Unmarshal(head.Value, &f); err != nil {
			return fmt.Errorf("float value must be numeric: %w", err)
		}
		*v = Value{Kind: KindFloat, Float: f}
	case "text":
		var s string
		if err := json.Unmarshal(head.Value, &s); err != nil {
			return fmt.Errorf("text value must be a string: %w", err)
		}
		*v = Value{Kind: KindText, Text: s}
	case "blob":
		if head.Base64 == nil {
			return fmt.Errorf("blob value missing base64 field")
		}
		b, err := decodeBase64NoPad(*head.Base64)
		if err != nil {
			return fmt.Errorf("unparsable blob base64: %w", err)
		}
		*v = Value{Kind: KindBlob, Blob: b}
	default:
		return fmt.Errorf("unknown value type %q", head.Type)
	}
	return nil
}

// decodeBase64NoPad decodes standard base64 without padding, tolerating
// trailing '=' on input for callers that pad anyway.
func decodeBase64NoPad(s string) ([]byte, error) {
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// optInt64String / optUint64String marshal *int64 / *uint64 as a decimal
// string or JSON null, matching last_insert_rowid / replication_index.
type optInt64String struct{ v *int64 }

func (o optInt64String) MarshalJSON() ([]byte, error) {
	if o.v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(strconv.FormatInt(*o.v, 10))
}

func unmarshalOptInt64String(data []byte) (*int64, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil, err
		}
		return &n, nil
	case float64:
		n := int64(t)
		return &n, nil
	default:
		return nil, fmt.Errorf("expected string or null, got %T", raw)
	}
}

type optUint64String struct{ v *uint64 }

func (o optUint64String) MarshalJSON() ([]byte, error) {
	if o.v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(strconv.FormatUint(*o.v, 10))
}

func unmarshalOptUint64String(data []byte) (*uint64, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case string:
		n, err := strconv.ParseUint(t, 10, 64)
		if err != nil {
			return nil, err
		}
		return &n, nil
	case float64:
		n := uint64(t)
		return &n, nil
	default:
		return nil, fmt.Errorf("expected string or null, got %T", raw)
	}
}
