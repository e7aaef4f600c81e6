package config

import "fmt"

// ValueKind discriminates the DSL's dynamically-typed variable values, per
// spec.md §4.1's type-promotion rules.
type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindBool
	KindArrayOfStrings
	KindArrayOfStructs
	KindStruct
)

// Value is a DSL variable's runtime value. Exactly one of the typed fields
// is meaningful, selected by Kind — a small sum type, not an interface{}
// bag, so type-promotion rules in Append can switch on Kind directly.
type Value struct {
	Kind    ValueKind
	Str     string
	Int     int64
	Bool    bool
	Strs    []string
	Structs []*Struct
	Struct  *Struct
}

// Struct is an ordered set of named values, preserving insertion order so
// Print/serialization output is deterministic.
type Struct struct {
	names  []string
	values map[string]Value
}

// NewStruct returns an empty struct value.
func NewStruct() *Struct { return &Struct{values: map[string]Value{}} }

// Set assigns name to v, appending name to the order list on first use.
func (s *Struct) Set(name string, v Value) {
	if _, exists := s.values[name]; !exists {
		s.names = append(s.names, name)
	}
	s.values[name] = v
}

// Get returns name's value and whether it was present.
func (s *Struct) Get(name string) (Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Names returns field names in insertion order.
func (s *Struct) Names() []string { return s.names }

func StringValue(s string) Value   { return Value{Kind: KindString, Str: s} }
func IntValue(i int64) Value       { return Value{Kind: KindInt, Int: i} }
func BoolValue(b bool) Value       { return Value{Kind: KindBool, Bool: b} }
func StringArrayValue(ss []string) Value {
	return Value{Kind: KindArrayOfStrings, Strs: ss}
}
func StructValue(s *Struct) Value { return Value{Kind: KindStruct, Struct: s} }

// Append implements `.Name + value`'s type-promotion rules from spec.md
// §4.1: String+String=String; String+ArrayOfStrings or the reverse
// produces ArrayOfStrings; Struct+Struct unions members, right-hand side
// winning name clashes; numeric + is arithmetic.
func Append(lhs, rhs Value) (Value, error) {
	switch {
	case lhs.Kind == KindString && rhs.Kind == KindString:
		return StringValue(lhs.Str + rhs.Str), nil
	case lhs.Kind == KindInt && rhs.Kind == KindInt:
		return IntValue(lhs.Int + rhs.Int), nil
	case lhs.Kind == KindString && rhs.Kind == KindArrayOfStrings:
		return StringArrayValue(append([]string{lhs.Str}, rhs.Strs...)), nil
	case lhs.Kind == KindArrayOfStrings && rhs.Kind == KindString:
		return StringArrayValue(append(append([]string{}, lhs.Strs...), rhs.Str)), nil
	case lhs.Kind == KindArrayOfStrings && rhs.Kind == KindArrayOfStrings:
		return StringArrayValue(append(append([]string{}, lhs.Strs...), rhs.Strs...)), nil
	case lhs.Kind == KindStruct && rhs.Kind == KindStruct:
		merged := NewStruct()
		for _, name := range lhs.Struct.Names() {
			v, _ := lhs.Struct.Get(name)
			merged.Set(name, v)
		}
		for _, name := range rhs.Struct.Names() {
			v, _ := rhs.Struct.Get(name)
			merged.Set(name, v)
		}
		return StructValue(merged), nil
	case lhs.Kind == KindArrayOfStructs && rhs.Kind == KindStruct:
		return Value{Kind: KindArrayOfStructs, Structs: append(append([]*Struct{}, lhs.Structs...), rhs.Struct)}, nil
	case lhs.Kind == KindArrayOfStructs && rhs.Kind == KindArrayOfStructs:
		return Value{Kind: KindArrayOfStructs, Structs: append(append([]*Struct{}, lhs.Structs...), rhs.Structs...)}, nil
	default:
		return Value{}, fmt.Errorf("cannot concatenate %s with %s", lhs.Kind, rhs.Kind)
	}
}

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "String"
	case KindInt:
		return "Int"
	case KindBool:
		return "Bool"
	case KindArrayOfStrings:
		return "ArrayOfStrings"
	case KindArrayOfStructs:
		return "ArrayOfStructs"
	case KindStruct:
		return "Struct"
	default:
		return "Unknown"
	}
}

// AsStringSlice coerces a Value to a []string the way node-kind builders
// consume list-typed fields: a single string promotes to a one-element
// slice, an array passes through, anything else is an error.
func (v Value) AsStringSlice() ([]string, error) {
	switch v.Kind {
	case KindString:
		return []string{v.Str}, nil
	case KindArrayOfStrings:
		return v.Strs, nil
	default:
		return nil, fmt.Errorf("expected String or ArrayOfStrings, got %s", v.Kind)
	}
}
