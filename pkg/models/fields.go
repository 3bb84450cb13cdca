package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// FieldType is the data type of a custom field.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeInteger  FieldType = "integer"
	FieldTypeDecimal  FieldType = "decimal"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeDate     FieldType = "date"
	FieldTypeDatetime FieldType = "datetime"
	FieldTypeEnum     FieldType = "enum"
	FieldTypeArray    FieldType = "array"
	FieldTypeDocument FieldType = "document"
)

// IsValid reports whether ft is one of the known field types.
func (ft FieldType) IsValid() bool {
	switch ft {
	case FieldTypeString, FieldTypeInteger, FieldTypeDecimal, FieldTypeBoolean,
		FieldTypeDate, FieldTypeDatetime, FieldTypeEnum, FieldTypeArray, FieldTypeDocument:
		return true
	}
	return false
}

// ArrayItemType is the data type of items in an array field.
type ArrayItemType string

const (
	ArrayItemString   ArrayItemType = "string"
	ArrayItemInteger  ArrayItemType = "integer"
	ArrayItemDecimal  ArrayItemType = "decimal"
	ArrayItemBoolean  ArrayItemType = "boolean"
	ArrayItemDate     ArrayItemType = "date"
	ArrayItemDatetime ArrayItemType = "datetime"
	ArrayItemEnum     ArrayItemType = "enum"
	ArrayItemDocument ArrayItemType = "document"
)

// InputType is a UI rendering hint, orthogonal to FieldType.
type InputType string

const (
	InputText           InputType = "text"
	InputTextarea       InputType = "textarea"
	InputNumber         InputType = "number"
	InputDropdown       InputType = "dropdown"
	InputMultiSelect    InputType = "multi_select"
	InputRadio          InputType = "radio"
	InputCheckbox       InputType = "checkbox"
	InputDatePicker     InputType = "date_picker"
	InputDatetimePicker InputType = "datetime_picker"
	InputEmail          InputType = "email"
	InputPhone          InputType = "phone"
	InputURL            InputType = "url"
	InputFileUpload     InputType = "file_upload"
)

// FieldDefinition describes one custom field. Definitions live either on a
// workflow config (lead-level fields) or on a stage task template
// (task-level fields); field keys are unique within their owning list only.
type FieldDefinition struct {
	FieldKey        string         `json:"field_key"`
	Label           string         `json:"label"`
	FieldType       FieldType      `json:"field_type"`
	InputType       InputType      `json:"input_type"`
	Required        bool           `json:"required"`
	Options         []string       `json:"options,omitempty"`
	DefaultValue    *string        `json:"default_value,omitempty"`
	ValidationRules map[string]any `json:"validation_rules,omitempty"`
	Placeholder     string         `json:"placeholder,omitempty"`
	HelpText        string         `json:"help_text,omitempty"`
	Order           int            `json:"order"`
	IsActive        bool           `json:"is_active"`
	ArrayItemType   *ArrayItemType `json:"array_item_type,omitempty"`
}

// FieldValue is a captured value for one FieldDefinition. OriginalValue keeps
// the value exactly as entered and is the source of truth for re-parsing;
// Value holds the parsed representation.
type FieldValue struct {
	Variable      string    `json:"variable"`
	FieldType     FieldType `json:"field_type"`
	OriginalValue string    `json:"original_value"`
	Value         any       `json:"value"`
}

// ValidateDefinitions checks a list of field definitions for internal
// consistency: known field types and field keys unique within the list.
func ValidateDefinitions(defs []FieldDefinition) error {
	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		if def.FieldKey == "" {
			return &FieldError{Key: def.FieldKey, Reason: "field_key is required"}
		}
		if !def.FieldType.IsValid() {
			return &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("unknown field_type %q", def.FieldType)}
		}
		if seen[def.FieldKey] {
			return &FieldError{Key: def.FieldKey, Reason: "duplicate field_key"}
		}
		seen[def.FieldKey] = true
	}
	return nil
}

// FieldError reports a validation failure for a single field key.
type FieldError struct {
	Key    string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Key == "" {
		return e.Reason
	}
	return e.Key + ": " + e.Reason
}

const dateLayout = "2006-01-02"

// ParseFieldValue parses a raw string into the typed representation for the
// definition's field type. Array and document values are JSON-encoded.
func ParseFieldValue(def FieldDefinition, raw string) (any, error) {
	switch def.FieldType {
	case FieldTypeString:
		return raw, nil
	case FieldTypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("expected integer, got %q", raw)}
		}
		return n, nil
	case FieldTypeDecimal:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("expected number, got %q", raw)}
		}
		return f, nil
	case FieldTypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("expected boolean, got %q", raw)}
		}
		return b, nil
	case FieldTypeDate:
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("expected YYYY-MM-DD date, got %q", raw)}
		}
		return t, nil
	case FieldTypeDatetime:
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("expected RFC 3339 datetime, got %q", raw)}
		}
		return t, nil
	case FieldTypeEnum:
		return raw, nil
	case FieldTypeArray:
		var items []any
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, &FieldError{Key: def.FieldKey, Reason: "expected JSON array"}
		}
		return items, nil
	case FieldTypeDocument:
		var doc map[string]any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, &FieldError{Key: def.FieldKey, Reason: "expected JSON object"}
		}
		return doc, nil
	default:
		return nil, &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("unknown field_type %q", def.FieldType)}
	}
}

// ValidateFieldValue checks a parsed value against its definition: type
// membership, enum options, min/max validation rules, and required-non-nil.
func ValidateFieldValue(def FieldDefinition, value any) error {
	if value == nil {
		if def.Required {
			return &FieldError{Key: def.FieldKey, Reason: "required field cannot be null"}
		}
		return nil
	}

	switch def.FieldType {
	case FieldTypeString:
		if _, ok := value.(string); !ok {
			return &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("expected string, got %T", value)}
		}
	case FieldTypeInteger:
		if !isInteger(value) {
			return &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("expected integer, got %T", value)}
		}
	case FieldTypeDecimal:
		if _, ok := asFloat(value); !ok {
			return &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("expected number, got %T", value)}
		}
	case FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("expected boolean, got %T", value)}
		}
	case FieldTypeDate, FieldTypeDatetime:
		switch v := value.(type) {
		case time.Time:
		case string:
			layout := time.RFC3339
			if def.FieldType == FieldTypeDate {
				layout = dateLayout
			}
			if _, err := time.Parse(layout, v); err != nil {
				return &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("invalid %s %q", def.FieldType, v)}
			}
		default:
			return &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("expected %s, got %T", def.FieldType, value)}
		}
	case FieldTypeEnum:
		s, ok := value.(string)
		if !ok {
			return &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("expected string, got %T", value)}
		}
		if len(def.Options) > 0 && !contains(def.Options, s) {
			return &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("value %q is not an allowed option", s)}
		}
	case FieldTypeArray:
		if _, ok := value.([]any); !ok {
			if _, ok := value.([]string); !ok {
				return &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("expected array, got %T", value)}
			}
		}
	case FieldTypeDocument:
		if _, ok := value.(map[string]any); !ok {
			return &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("expected object, got %T", value)}
		}
	default:
		return &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("unknown field_type %q", def.FieldType)}
	}

	return checkRange(def, value)
}

// checkRange applies the recognized validation rules (min, max) to numeric
// values. Other rule keys are caller metadata and pass through unchecked.
func checkRange(def FieldDefinition, value any) error {
	if len(def.ValidationRules) == 0 {
		return nil
	}
	num, ok := asFloat(value)
	if !ok {
		return nil
	}
	if minRule, present := def.ValidationRules["min"]; present {
		if minVal, ok := asFloat(minRule); ok && num < minVal {
			return &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("value %v below minimum %v", value, minRule)}
		}
	}
	if maxRule, present := def.ValidationRules["max"]; present {
		if maxVal, ok := asFloat(maxRule); ok && num > maxVal {
			return &FieldError{Key: def.FieldKey, Reason: fmt.Sprintf("value %v exceeds maximum %v", value, maxRule)}
		}
	}
	return nil
}

// NewFieldValue parses raw for the definition, validates the result, and
// returns the captured FieldValue. A value built from a valid raw string
// always re-validates cleanly.
func NewFieldValue(def FieldDefinition, raw string) (FieldValue, error) {
	parsed, err := ParseFieldValue(def, raw)
	if err != nil {
		return FieldValue{}, err
	}
	if err := ValidateFieldValue(def, parsed); err != nil {
		return FieldValue{}, err
	}
	return FieldValue{
		Variable:      def.FieldKey,
		FieldType:     def.FieldType,
		OriginalValue: raw,
		Value:         parsed,
	}, nil
}

// CheckFieldValue verifies that a caller-supplied FieldValue is structurally
// sound: known field type and a value matching it. Used before any write.
func CheckFieldValue(fv FieldValue) error {
	if fv.Variable == "" {
		return &FieldError{Reason: "variable is required"}
	}
	if !fv.FieldType.IsValid() {
		return &FieldError{Key: fv.Variable, Reason: fmt.Sprintf("unknown field_type %q", fv.FieldType)}
	}
	def := FieldDefinition{FieldKey: fv.Variable, FieldType: fv.FieldType}
	return ValidateFieldValue(def, fv.Value)
}

// isInteger accepts native integers plus float64s without a fractional part,
// since JSON decoding produces float64 for all numbers.
func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int32, int64:
		return true
	case float64:
		return v == math.Trunc(v)
	}
	return false
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
