package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type MetaKind uint8

const (
	MetaString MetaKind = iota
	MetaNumber
	MetaBool
)

// MetaValue is a scalar chunk-metadata value. Store backends constrain
// metadata to primitive scalars, so the core carries this tagged union instead
// of an untyped map and adapters coerce at their edge.
type MetaValue struct {
	Kind MetaKind
	Str  string
	Num  float64
	Bool bool
}

type Metadata map[string]MetaValue

func MetaStr(s string) MetaValue  { return MetaValue{Kind: MetaString, Str: s} }
func MetaNum(f float64) MetaValue { return MetaValue{Kind: MetaNumber, Num: f} }
func MetaFlag(b bool) MetaValue   { return MetaValue{Kind: MetaBool, Bool: b} }

// Coerce renders the value as the string form written to store backends.
func (v MetaValue) Coerce() string {
	switch v.Kind {
	case MetaNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case MetaBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

// ParseMeta re-parses a store-coerced string back to its natural type.
func ParseMeta(s string) MetaValue {
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return MetaFlag(b)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return MetaNum(f)
	}
	return MetaStr(s)
}

func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case MetaNumber:
		return json.Marshal(v.Num)
	case MetaBool:
		return json.Marshal(v.Bool)
	default:
		return json.Marshal(v.Str)
	}
}

func (v *MetaValue) UnmarshalJSON(raw []byte) error {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		*v = MetaFlag(b)
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		*v = MetaNum(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		*v = MetaStr(s)
		return nil
	}
	return fmt.Errorf("metadata value must be a scalar, got %s", string(raw))
}
