package options

import (
	"fmt"

	"github.com/fxbridge/mlclient/internal/wire"
)

// Set holds the editable values for the currently selected model's declared
// parameters: four parallel name/value lists, each in the model's declared
// order restricted to that type. A Set is rebuilt wholesale when the
// selection changes, so it never carries names from a previous model.
type Set struct {
	boolNames    []string
	boolValues   []bool
	intNames     []string
	intValues    []int
	floatNames   []string
	floatValues  []float64
	stringNames  []string
	stringValues []string
}

// Rebuild discards all current values and repopulates the four lists from the
// model's declared parameters, assigning each its declared default.
func (s *Set) Rebuild(m wire.ModelInfo) {
	*s = Set{}
	for _, p := range m.Params {
		switch p.Type {
		case wire.ParamBool:
			s.boolNames = append(s.boolNames, p.Name)
			s.boolValues = append(s.boolValues, p.BoolDefault)
		case wire.ParamInt:
			s.intNames = append(s.intNames, p.Name)
			s.intValues = append(s.intValues, p.IntDefault)
		case wire.ParamFloat:
			s.floatNames = append(s.floatNames, p.Name)
			s.floatValues = append(s.floatValues, p.FloatDefault)
		case wire.ParamString:
			s.stringNames = append(s.stringNames, p.Name)
			s.stringValues = append(s.stringValues, p.StringDefault)
		}
	}
}

// Clear empties the set, used when no model is selected.
func (s *Set) Clear() { *s = Set{} }

func (s *Set) NumBools() int   { return len(s.boolNames) }
func (s *Set) NumInts() int    { return len(s.intNames) }
func (s *Set) NumFloats() int  { return len(s.floatNames) }
func (s *Set) NumStrings() int { return len(s.stringNames) }

func (s *Set) BoolName(i int) string   { return s.boolNames[i] }
func (s *Set) IntName(i int) string    { return s.intNames[i] }
func (s *Set) FloatName(i int) string  { return s.floatNames[i] }
func (s *Set) StringName(i int) string { return s.stringNames[i] }

func (s *Set) Bool(i int) bool     { return s.boolValues[i] }
func (s *Set) Int(i int) int       { return s.intValues[i] }
func (s *Set) Float(i int) float64 { return s.floatValues[i] }
func (s *Set) String(i int) string { return s.stringValues[i] }

func (s *Set) SetBool(i int, v bool)     { s.boolValues[i] = v }
func (s *Set) SetInt(i int, v int)       { s.intValues[i] = v }
func (s *Set) SetFloat(i int, v float64) { s.floatValues[i] = v }
func (s *Set) SetString(i int, v string) { s.stringValues[i] = v }

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// SetByName assigns a value by option name, converting v to the option's
// type. Unknown names and mismatched value types are errors.
func (s *Set) SetByName(name string, v any) error {
	if i := indexOf(s.boolNames, name); i >= 0 {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("option %q expects a bool, got %T", name, v)
		}
		s.boolValues[i] = b
		return nil
	}
	if i := indexOf(s.intNames, name); i >= 0 {
		switch n := v.(type) {
		case int:
			s.intValues[i] = n
		case float64:
			s.intValues[i] = int(n)
		default:
			return fmt.Errorf("option %q expects an int, got %T", name, v)
		}
		return nil
	}
	if i := indexOf(s.floatNames, name); i >= 0 {
		switch f := v.(type) {
		case float64:
			s.floatValues[i] = f
		case int:
			s.floatValues[i] = float64(f)
		default:
			return fmt.Errorf("option %q expects a float, got %T", name, v)
		}
		return nil
	}
	if i := indexOf(s.stringNames, name); i >= 0 {
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("option %q expects a string, got %T", name, v)
		}
		s.stringValues[i] = str
		return nil
	}
	return fmt.Errorf("unknown option %q", name)
}

// Lookup returns the current value of the named option.
func (s *Set) Lookup(name string) (any, bool) {
	if i := indexOf(s.boolNames, name); i >= 0 {
		return s.boolValues[i], true
	}
	if i := indexOf(s.intNames, name); i >= 0 {
		return s.intValues[i], true
	}
	if i := indexOf(s.floatNames, name); i >= 0 {
		return s.floatValues[i], true
	}
	if i := indexOf(s.stringNames, name); i >= 0 {
		return s.stringValues[i], true
	}
	return nil, false
}

// WireOptions exports the four typed lists in declared order for an
// inference request.
func (s *Set) WireOptions() (bools []wire.BoolOption, ints []wire.IntOption, floats []wire.FloatOption, strings []wire.StringOption) {
	for i, n := range s.boolNames {
		bools = append(bools, wire.BoolOption{Name: n, Value: s.boolValues[i]})
	}
	for i, n := range s.intNames {
		ints = append(ints, wire.IntOption{Name: n, Value: s.intValues[i]})
	}
	for i, n := range s.floatNames {
		floats = append(floats, wire.FloatOption{Name: n, Value: s.floatValues[i]})
	}
	for i, n := range s.stringNames {
		strings = append(strings, wire.StringOption{Name: n, Value: s.stringValues[i]})
	}
	return bools, ints, floats, strings
}
