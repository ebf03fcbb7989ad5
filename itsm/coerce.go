package itsm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/biter777/countries"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/ttacon/libphonenumber"
)

// AssignmentType declares how a raw assignment value should be coerced
// before it enters the request payload.
type AssignmentType string

const (
	TypeUntyped AssignmentType = ""
	TypeString  AssignmentType = "string"
	TypeNumber  AssignmentType = "number"
	TypeBoolean AssignmentType = "boolean"
	TypeArray   AssignmentType = "array"
	TypeObject  AssignmentType = "object"
)

// Transform is an optional value normalization applied before type
// coercion. Transforms never fail hard: an unparseable value passes
// through untouched.
type Transform string

const (
	TransformNone Transform = ""
	// TransformPhoneE164 reformats phone numbers to E.164, e.g.
	// "(415) 555-2671" -> "+14155552671".
	TransformPhoneE164 Transform = "phoneE164"
	// TransformCountryName expands ISO country codes to full names, e.g.
	// "LT" -> "Lithuania".
	TransformCountryName Transform = "countryName"
)

// Assignment is one user-declared field assignment for a create or
// update payload.
type Assignment struct {
	Name      string
	Value     interface{}
	Type      AssignmentType
	Transform Transform
}

// ValidationError reports a type mismatch between a declared assignment
// type and its value.
type ValidationError struct {
	Field    string
	Expected AssignmentType
	Value    string
	Item     int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q: value %s cannot be converted to %s (item %d)",
		e.Field, e.Value, e.Expected, e.Item)
}

// BuildPayload converts assignments into a JSON request body. Coercion
// follows the declared type per assignment; null values always pass
// through as JSON null. When ignoreErrors is set, a failed coercion keeps
// the original value instead of failing the item. itemIndex is only used
// to label validation errors.
func BuildPayload(assignments []Assignment, ignoreErrors bool, itemIndex int) (string, error) {
	payload := "{}"
	for _, a := range assignments {
		value, err := coerceValue(a, ignoreErrors, itemIndex)
		if err != nil {
			return "", err
		}
		payload, err = sjson.Set(payload, escapePath(a.Name), value)
		if err != nil {
			return "", fmt.Errorf("setting field %q: %w", a.Name, err)
		}
	}
	return payload, nil
}

// escapePath protects field names containing sjson path syntax so that a
// field literally named "Owner.Email" stays one key.
func escapePath(name string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`.`, `\.`,
		`*`, `\*`,
		`?`, `\?`,
	)
	return replacer.Replace(name)
}

func coerceValue(a Assignment, ignoreErrors bool, itemIndex int) (interface{}, error) {
	if a.Value == nil {
		return nil, nil
	}
	value := applyTransform(a.Value, a.Transform)

	coerced, ok := convert(value, a.Type)
	if ok {
		return coerced, nil
	}
	if ignoreErrors {
		return value, nil
	}
	return nil, &ValidationError{
		Field:    a.Name,
		Expected: a.Type,
		Value:    describeValue(value),
		Item:     itemIndex,
	}
}

func convert(value interface{}, t AssignmentType) (interface{}, bool) {
	switch t {
	case TypeUntyped:
		return value, true

	case TypeString:
		switch v := value.(type) {
		case string:
			return v, true
		case bool:
			return strconv.FormatBool(v), true
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		case int:
			return strconv.Itoa(v), true
		case int64:
			return strconv.FormatInt(v, 10), true
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, false
			}
			return string(raw), true
		}

	case TypeNumber:
		switch v := value.(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case string:
			n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, false
			}
			return n, true
		default:
			return nil, false
		}

	case TypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, true
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				return true, true
			case "false":
				return false, true
			}
			return nil, false
		default:
			return nil, false
		}

	case TypeArray:
		switch v := value.(type) {
		case []interface{}:
			return v, true
		case string:
			parsed := gjson.Parse(v)
			if parsed.IsArray() && gjson.Valid(v) {
				return parsed.Value(), true
			}
			return nil, false
		default:
			return nil, false
		}

	case TypeObject:
		switch v := value.(type) {
		case map[string]interface{}:
			return v, true
		case string:
			parsed := gjson.Parse(v)
			if parsed.IsObject() && gjson.Valid(v) {
				return parsed.Value(), true
			}
			return nil, false
		default:
			return nil, false
		}
	}
	return nil, false
}

func applyTransform(value interface{}, t Transform) interface{} {
	s, isString := value.(string)
	if !isString || s == "" {
		return value
	}
	switch t {
	case TransformPhoneE164:
		num, err := libphonenumber.Parse(s, "US")
		if err != nil {
			return value
		}
		return libphonenumber.Format(num, libphonenumber.E164)
	case TransformCountryName:
		country := countries.ByName(s)
		if country == countries.Unknown {
			return value
		}
		return country.String()
	}
	return value
}

func describeValue(value interface{}) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(raw)
}
