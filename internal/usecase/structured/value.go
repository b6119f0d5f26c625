package structured

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// ValueKind enumerates the shapes a model may return for one field.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindList
	KindObject
)

// Value is one decoded JSON field. Numbers and booleans are carried as strings.
type Value struct {
	kind   ValueKind
	str    string
	list   []Value
	fields map[string]Value
}

// Decode converts raw JSON into a Value. Undecodable input is null.
func Decode(raw json.RawMessage) Value {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Value{}
	}
	return fromAny(v)
}

func fromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Value{}
	case string:
		return Value{kind: KindString, str: t}
	case json.Number:
		return Value{kind: KindString, str: t.String()}
	case bool:
		return Value{kind: KindString, str: fmt.Sprint(t)}
	case []any:
		list := make([]Value, 0, len(t))
		for _, item := range t {
			list = append(list, fromAny(item))
		}
		return Value{kind: KindList, list: list}
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = fromAny(item)
		}
		return Value{kind: KindObject, fields: fields}
	default:
		return Value{}
	}
}

// Kind reports the variant.
func (v Value) Kind() ValueKind { return v.kind }

// Text returns the trimmed scalar, or "" for null, lists and objects.
func (v Value) Text() string {
	if v.kind != KindString {
		return ""
	}
	return strings.TrimSpace(v.str)
}

// OptionalText is Text with blank mapped to nil.
func (v Value) OptionalText() *string {
	s := v.Text()
	if s == "" {
		return nil
	}
	return &s
}

// Strings returns the non-blank entries of a list. A non-blank scalar is a one-element list.
func (v Value) Strings() []string {
	switch v.kind {
	case KindString:
		if s := v.Text(); s != "" {
			return []string{s}
		}
	case KindList:
		out := make([]string, 0, len(v.list))
		for _, item := range v.list {
			if s := item.Display(); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

// Display flattens any variant into a single human-readable string.
// Lists are joined with "; ", objects render as "key: value" pairs in key order.
func (v Value) Display() string {
	switch v.kind {
	case KindString:
		return v.Text()
	case KindList:
		return strings.Join(v.Strings(), "; ")
	case KindObject:
		keys := make([]string, 0, len(v.fields))
		for k := range v.fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := v.fields[k].Display(); s != "" {
				parts = append(parts, k+": "+s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		return ""
	}
}
