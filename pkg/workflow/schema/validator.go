// Package schema validates JSON values against the JSON Schema subset used
// for structured agent output and graph documents.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Validator checks data against a schema.
type Validator interface {
	Validate(schema map[string]interface{}, data interface{}) error
}

// DefaultValidator supports type, properties, required, enum, items,
// minimum, maximum, minItems and minLength.
type DefaultValidator struct{}

// NewValidator returns a DefaultValidator.
func NewValidator() Validator {
	return &DefaultValidator{}
}

var supportedTypes = map[string]bool{
	"object": true, "array": true, "string": true, "number": true,
	"integer": true, "boolean": true, "null": true,
}

// Validate returns the first violation found, walking object properties in
// sorted order so the result is deterministic.
func (v *DefaultValidator) Validate(schema map[string]interface{}, data interface{}) error {
	return v.validate(schema, data, "$")
}

func (v *DefaultValidator) validate(schema map[string]interface{}, data interface{}, path string) error {
	if t, ok := schema["type"].(string); ok {
		if err := checkType(t, data, path); err != nil {
			return err
		}
	}

	if enum, ok := schema["enum"].([]interface{}); ok {
		if !inEnum(enum, data) {
			allowed, _ := json.Marshal(enum)
			return NewValidationError(path, "enum", fmt.Sprintf("value %v not in allowed values: %s", data, allowed))
		}
	}

	switch value := data.(type) {
	case map[string]interface{}:
		return v.validateObject(schema, value, path)
	case []interface{}:
		return v.validateArray(schema, value, path)
	case string:
		if min, ok := number(schema["minLength"]); ok && float64(len([]rune(value))) < min {
			return NewValidationError(path, "minLength", fmt.Sprintf("length must be >= %v", min))
		}
	default:
		if n, ok := number(data); ok {
			if min, ok := number(schema["minimum"]); ok && n < min {
				return NewValidationError(path, "minimum", fmt.Sprintf("%v is less than %v", n, min))
			}
			if max, ok := number(schema["maximum"]); ok && n > max {
				return NewValidationError(path, "maximum", fmt.Sprintf("%v is greater than %v", n, max))
			}
		}
	}
	return nil
}

func (v *DefaultValidator) validateObject(schema map[string]interface{}, obj map[string]interface{}, path string) error {
	if required, ok := schema["required"].([]interface{}); ok {
		for _, r := range required {
			name, _ := r.(string)
			if _, exists := obj[name]; name != "" && !exists {
				return NewValidationError(path, "required", fmt.Sprintf("missing required field: %s", name))
			}
		}
	}

	props, _ := schema["properties"].(map[string]interface{})
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if propSchema, ok := props[k].(map[string]interface{}); ok {
			if err := v.validate(propSchema, obj[k], path+"."+k); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *DefaultValidator) validateArray(schema map[string]interface{}, arr []interface{}, path string) error {
	if min, ok := number(schema["minItems"]); ok && float64(len(arr)) < min {
		return NewValidationError(path, "minItems", fmt.Sprintf("expected at least %v items, got %d", min, len(arr)))
	}
	items, ok := schema["items"].(map[string]interface{})
	if !ok {
		return nil
	}
	for i, item := range arr {
		if err := v.validate(items, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func checkType(t string, data interface{}, path string) error {
	ok := false
	switch t {
	case "object":
		_, ok = data.(map[string]interface{})
	case "array":
		_, ok = data.([]interface{})
	case "string":
		_, ok = data.(string)
	case "boolean":
		_, ok = data.(bool)
	case "null":
		ok = data == nil
	case "number":
		_, ok = number(data)
	case "integer":
		n, isNum := number(data)
		ok = isNum && n == float64(int64(n))
	default:
		return NewValidationError(path, "type", fmt.Sprintf("unsupported schema type %q", t))
	}
	if !ok {
		return NewValidationError(path, "type", fmt.Sprintf("expected %s, got %s", t, describe(data)))
	}
	return nil
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func inEnum(enum []interface{}, data interface{}) bool {
	for _, allowed := range enum {
		if a, ok := number(allowed); ok {
			if d, ok := number(data); ok && a == d {
				return true
			}
			continue
		}
		if reflect.DeepEqual(allowed, data) {
			return true
		}
	}
	return false
}

func describe(data interface{}) string {
	switch data.(type) {
	case nil:
		return "null"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	}
	if _, ok := number(data); ok {
		return "number"
	}
	return fmt.Sprintf("%T", data)
}

// Check reports whether schema is usable with DefaultValidator: it must
// declare a supported type, and nested properties and items must be valid
// schemas too.
func Check(schema map[string]interface{}) error {
	return check(schema, "$")
}

func check(schema map[string]interface{}, path string) error {
	if schema == nil {
		return NewValidationError(path, "schema", "schema is required")
	}
	t, ok := schema["type"].(string)
	if !ok {
		return NewValidationError(path, "type", "schema must declare a type")
	}
	if !supportedTypes[t] {
		return NewValidationError(path, "type", fmt.Sprintf("unsupported schema type %q", t))
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			prop, ok := props[name].(map[string]interface{})
			if !ok {
				return NewValidationError(path+"."+name, "properties", "property schema must be an object")
			}
			if err := check(prop, path+"."+name); err != nil {
				return err
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		return check(items, path+"[]")
	}
	return nil
}
