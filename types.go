package mlang

import (
	"fmt"
	"strconv"
	"strings"
)

// builtinType pairs a builtin value type name with its lexical validator.
type builtinType struct {
	Name      string
	Validator func(value string) error
}

// Builtin value types, in handle order. The binder seeds every Schema's type
// arena with these before user declarations.
var builtinTypes = []builtinType{
	{"string", validateStringValue},
	{"bool", validateBoolValue},
	{"int", validateIntValue},
	{"uint", validateUintValue},
	{"float", validateFloatValue},
	{"double", validateDoubleValue},
}

// IsBuiltinType reports whether name is a builtin value type.
func IsBuiltinType(name string) bool {
	for _, bt := range builtinTypes {
		if bt.Name == name {
			return true
		}
	}
	return false
}

func validateStringValue(string) error { return nil }

func validateBoolValue(value string) error {
	switch value {
	case "true", "false", "1", "0":
		return nil
	}
	return fmt.Errorf("invalid bool value: %q", value)
}

func validateIntValue(value string) error {
	if _, err := strconv.ParseInt(value, 10, 64); err != nil {
		return fmt.Errorf("invalid int value: %q", value)
	}
	return nil
}

func validateUintValue(value string) error {
	if _, err := strconv.ParseUint(value, 10, 64); err != nil {
		return fmt.Errorf("invalid uint value: %q", value)
	}
	return nil
}

func validateFloatValue(value string) error {
	if _, err := strconv.ParseFloat(value, 32); err != nil {
		return fmt.Errorf("invalid float value: %q", value)
	}
	return nil
}

func validateDoubleValue(value string) error {
	if _, err := strconv.ParseFloat(value, 64); err != nil {
		return fmt.Errorf("invalid double value: %q", value)
	}
	return nil
}

// CheckValue validates a lexical value against a declared type, following
// alias chains to the underlying builtin or enum.
func (s *Schema) CheckValue(h TypeHandle, value string) error {
	for hops := 0; hops < len(s.Types)+1; hops++ {
		def := s.Type(h)
		if def == nil {
			return fmt.Errorf("unknown type handle %d", int(h))
		}
		switch def.Kind {
		case TypeBuiltin:
			for _, bt := range builtinTypes {
				if bt.Name == def.Name {
					return bt.Validator(value)
				}
			}
			return fmt.Errorf("builtin type %q has no validator", def.Name)
		case TypeEnum:
			for _, v := range def.Values {
				if v == value {
					return nil
				}
			}
			return fmt.Errorf("value %q is not one of {%s}", value, strings.Join(def.Values, ", "))
		case TypeAlias:
			h = def.Base
		default:
			return fmt.Errorf("unknown type kind %q", def.Kind)
		}
	}
	return fmt.Errorf("type alias cycle at handle %d", int(h))
}
