package model

import (
	"bytes"
	"strconv"

	json "github.com/goccy/go-json"
)

// Kind tags the shape a custom field value arrived in.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindString
	KindNumber
	KindBool
	KindOption
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindOption:
		return "option"
	default:
		return "absent"
	}
}

// FieldValue is a single custom field value as returned by the CRM.
// Depending on endpoint and field type the same field may come back as a
// plain string, a bare number, a boolean or a labeled option object
// ({"id": 1, "name": "ABC"}). Anything else, including null and arrays,
// decodes to KindAbsent.
type FieldValue struct {
	Kind Kind
	// Text holds the string for KindString and the JSON literal for KindNumber.
	Text string
	Bool bool
	// ID and Label are set for KindOption; either may be empty.
	ID    string
	Label string
}

func StringValue(s string) FieldValue {
	return FieldValue{Kind: KindString, Text: s}
}

func NumberValue(n int64) FieldValue {
	return FieldValue{Kind: KindNumber, Text: strconv.FormatInt(n, 10)}
}

// NumberLiteral builds a number value from its JSON text, e.g. "12.5".
func NumberLiteral(lit string) FieldValue {
	return FieldValue{Kind: KindNumber, Text: lit}
}

func BoolValue(b bool) FieldValue {
	return FieldValue{Kind: KindBool, Bool: b}
}

func OptionValue(id, label string) FieldValue {
	return FieldValue{Kind: KindOption, ID: id, Label: label}
}

// Present reports whether the value carries anything at all.
func (v FieldValue) Present() bool {
	return v.Kind != KindAbsent
}

func (v *FieldValue) UnmarshalJSON(b []byte) error {
	*v = FieldValue{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}

	switch b[0] {
	case 'n', '[':
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case 't', 'f':
		var x bool
		if err := json.Unmarshal(b, &x); err != nil {
			return err
		}
		*v = BoolValue(x)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		label := scalarText(obj["name"])
		if label == "" {
			label = scalarText(obj["label"])
		}
		*v = OptionValue(scalarText(obj["id"]), label)
	default:
		*v = NumberLiteral(string(b))
	}
	return nil
}

func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Text)
	case KindNumber:
		return []byte(v.Text), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindOption:
		return json.Marshal(struct {
			ID   string `json:"id,omitempty"`
			Name string `json:"name,omitempty"`
		}{v.ID, v.Label})
	default:
		return []byte("null"), nil
	}
}

// scalarText renders a nested scalar (string, number, bool) as text.
// Null, objects and arrays yield "".
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case 'n', '{', '[':
		return ""
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	default:
		return string(raw)
	}
}
