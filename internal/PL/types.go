// Package PL defines the physical plan model consumed by the compiler:
// plan nodes, typed expressions, and schemas. Plans arrive already bound
// and typed; nothing in this package is mutated during compilation.
package PL

import "fmt"

// TypeID identifies the static type of a column or expression.
type TypeID uint8

const (
	TypeInvalid TypeID = iota
	TypeBool
	TypeInt   // int64
	TypeFloat // float64
	TypeStr
)

var typeNames = map[TypeID]string{
	TypeInvalid: "invalid",
	TypeBool:    "bool",
	TypeInt:     "int",
	TypeFloat:   "float",
	TypeStr:     "str",
}

func (t TypeID) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Numeric reports whether t participates in arithmetic.
func (t TypeID) Numeric() bool { return t == TypeInt || t == TypeFloat }

// Column is one named, typed output column. All columns are nullable at
// runtime; nullability is not tracked statically.
type Column struct {
	Name string
	Type TypeID
}

// Schema is an ordered column list.
type Schema struct {
	Cols []Column
}

// NewSchema builds a schema from alternating name/type pairs.
func NewSchema(cols ...Column) *Schema {
	return &Schema{Cols: cols}
}

// Width returns the column count.
func (s *Schema) Width() int {
	if s == nil {
		return 0
	}
	return len(s.Cols)
}

// Names returns the column names in order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.Cols))
	for i, c := range s.Cols {
		out[i] = c.Name
	}
	return out
}

// Concat returns a new schema with t's columns appended to s's.
func (s *Schema) Concat(t *Schema) *Schema {
	out := &Schema{Cols: make([]Column, 0, s.Width()+t.Width())}
	out.Cols = append(out.Cols, s.Cols...)
	out.Cols = append(out.Cols, t.Cols...)
	return out
}

// Datum is a compile-time literal value carried by plan expressions.
// The zero Datum is NULL.
type Datum struct {
	Type  TypeID // TypeInvalid means NULL
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

func NullDatum() Datum          { return Datum{} }
func IntDatum(v int64) Datum    { return Datum{Type: TypeInt, Int: v} }
func FloatDatum(v float64) Datum { return Datum{Type: TypeFloat, Float: v} }
func StrDatum(v string) Datum   { return Datum{Type: TypeStr, Str: v} }
func BoolDatum(v bool) Datum    { return Datum{Type: TypeBool, Bool: v} }

// IsNull reports whether d is the NULL literal.
func (d Datum) IsNull() bool { return d.Type == TypeInvalid }

func (d Datum) String() string {
	switch d.Type {
	case TypeInvalid:
		return "NULL"
	case TypeBool:
		return fmt.Sprintf("%t", d.Bool)
	case TypeInt:
		return fmt.Sprintf("%d", d.Int)
	case TypeFloat:
		return fmt.Sprintf("%g", d.Float)
	case TypeStr:
		return fmt.Sprintf("%q", d.Str)
	}
	return "?"
}
