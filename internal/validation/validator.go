package validation

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Validator validates structs using `validate` tags. Supported rules:
//
//	required       field must be non-zero
//	min=N, max=N   numeric bounds, or length bounds for strings and slices
//	oneof=a b c    string must equal one of the listed values (case-insensitive)
//	hex=N          string must be hex encoding N bytes
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// FieldError reports the first rule a field failed
type FieldError struct {
	Field string
	Rule  string
	Msg   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Validate validates a struct
func (v *Validator) Validate(s interface{}) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validate expects a struct")
	}

	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		tag := fieldType.Tag.Get("validate")

		if tag == "" {
			continue
		}

		name := fieldName(fieldType)
		if err := v.validateField(field, tag); err != nil {
			err.Field = name
			return err
		}
	}

	return nil
}

// fieldName prefers the JSON name so errors match the request body
func fieldName(f reflect.StructField) string {
	if j := f.Tag.Get("json"); j != "" {
		if name := strings.Split(j, ",")[0]; name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

// validateField validates a single field
func (v *Validator) validateField(field reflect.Value, tag string) *FieldError {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			if hasRule(tag, "required") {
				return &FieldError{Rule: "required", Msg: "field is required"}
			}
			return nil
		}
		field = field.Elem()
	}

	for _, rule := range strings.Split(tag, ",") {
		parts := strings.SplitN(rule, "=", 2)
		ruleName := parts[0]
		arg := ""
		if len(parts) == 2 {
			arg = parts[1]
		}

		switch ruleName {
		case "required":
			if field.IsZero() {
				return &FieldError{Rule: ruleName, Msg: "field is required"}
			}

		case "min", "max":
			limit, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				continue
			}
			n, isLen, ok := measure(field)
			if !ok {
				continue
			}
			if ruleName == "min" && n < limit {
				return &FieldError{Rule: ruleName, Msg: boundMsg("minimum", isLen, arg)}
			}
			if ruleName == "max" && n > limit {
				return &FieldError{Rule: ruleName, Msg: boundMsg("maximum", isLen, arg)}
			}

		case "oneof":
			if field.Kind() != reflect.String || field.String() == "" {
				continue
			}
			s := strings.ToUpper(field.String())
			found := false
			for _, opt := range strings.Fields(arg) {
				if strings.ToUpper(opt) == s {
					found = true
					break
				}
			}
			if !found {
				return &FieldError{Rule: ruleName, Msg: fmt.Sprintf("must be one of %s", arg)}
			}

		case "hex":
			if field.Kind() != reflect.String || field.String() == "" {
				continue
			}
			b, err := hex.DecodeString(field.String())
			if err != nil {
				return &FieldError{Rule: ruleName, Msg: "invalid hex encoding"}
			}
			if n, err := strconv.Atoi(arg); err == nil && len(b) != n {
				return &FieldError{Rule: ruleName, Msg: fmt.Sprintf("must be %d bytes", n)}
			}
		}
	}

	return nil
}

func hasRule(tag, rule string) bool {
	for _, r := range strings.Split(tag, ",") {
		if r == rule {
			return true
		}
	}
	return false
}

// measure returns the value compared by min/max: the number itself for
// numeric kinds, the length for strings, slices and maps.
func measure(v reflect.Value) (float64, bool, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), false, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), false, true
	case reflect.Float32, reflect.Float64:
		return v.Float(), false, true
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return float64(v.Len()), true, true
	}
	return 0, false, false
}

func boundMsg(kind string, isLen bool, arg string) string {
	if isLen {
		return fmt.Sprintf("%s length is %s", kind, arg)
	}
	return fmt.Sprintf("%s value is %s", kind, arg)
}
