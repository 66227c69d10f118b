package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ValidationError reports the first structural violation found when checking
// a value against a schema. Path identifies the offending member using dotted
// object keys and bracketed array indexes, e.g. "items[2].name".
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// ValidateRaw decodes raw JSON and validates it against s.
// A nil schema accepts any value.
func ValidateRaw(s *JSON, raw json.RawMessage) error {
	if s == nil {
		return nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return &ValidationError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return Validate(s, value)
}

// Validate checks a decoded JSON value (the result of unmarshaling into any)
// against s. It covers the subset of draft-07 the JSON model describes:
// type (including union types), required, properties, additionalProperties,
// items, and enum. The first violation found is returned.
func Validate(s *JSON, value any) error {
	return validate(s, value, "")
}

func validate(s *JSON, value any, path string) error {
	if s == nil {
		return nil
	}

	if s.Type != nil {
		if err := checkType(s.Type, value, path); err != nil {
			return err
		}
	}

	if len(s.Enum) > 0 {
		if err := checkEnum(s.Enum, value, path); err != nil {
			return err
		}
	}

	if obj, ok := value.(map[string]any); ok {
		for _, name := range s.Required {
			if _, present := obj[name]; !present {
				return &ValidationError{Path: joinPath(path, name), Reason: "required field is missing"}
			}
		}
		for name, member := range obj {
			sub, known := s.Properties[name]
			if !known {
				if s.AdditionalProperties != nil && !*s.AdditionalProperties {
					return &ValidationError{Path: joinPath(path, name), Reason: "unexpected field"}
				}
				continue
			}
			if err := validate(sub, member, joinPath(path, name)); err != nil {
				return err
			}
		}
	}

	if arr, ok := value.([]any); ok && s.Items != nil {
		for i, member := range arr {
			if err := validate(s.Items, member, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}

	return nil
}

func checkType(declared any, value any, path string) error {
	for _, want := range typeNames(declared) {
		if typeMatches(want, value) {
			return nil
		}
	}
	names := typeNames(declared)
	return &ValidationError{
		Path:   path,
		Reason: fmt.Sprintf("expected %s, got %s", strings.Join(names, " or "), typeOf(value)),
	}
}

// typeNames flattens the Type field, which may hold a Type, a plain string,
// or a union like ["string", "null"].
func typeNames(declared any) []string {
	switch t := declared.(type) {
	case Type:
		return []string{string(t)}
	case string:
		return []string{t}
	case []any:
		names := make([]string, 0, len(t))
		for _, member := range t {
			names = append(names, typeNames(member)...)
		}
		return names
	case []string:
		return t
	default:
		return nil
	}
}

func typeMatches(name string, value any) bool {
	switch name {
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == math.Trunc(f)
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "null":
		return value == nil
	default:
		return false
	}
}

func typeOf(value any) string {
	switch value.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func checkEnum(allowed []string, value any, path string) error {
	str, ok := value.(string)
	if !ok {
		return &ValidationError{Path: path, Reason: "expected string for enum"}
	}
	for _, candidate := range allowed {
		if str == candidate {
			return nil
		}
	}
	return &ValidationError{
		Path:   path,
		Reason: fmt.Sprintf("%q is not one of [%s]", str, strings.Join(allowed, ", ")),
	}
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
