package toolfacade

import (
	"fmt"
	"reflect"
	"strings"
)

// validateRequired rejects a request before any I/O when a field tagged
// `jsonschema:"required,..."` is left at its zero value. args must be a
// struct or pointer to struct.
//
// This mirrors the teacher's own per-operation argument-struct
// convention (cmd/mcpserver/mcpserver.go's HelloArgs, CalculateArgs,
// WeatherArgs, ...), which relies on a library doing the same reflective
// walk internally; this is that walk, written out directly rather than
// imported, since nothing in the retrieved corpus actually calls that
// library's API.
func validateRequired(args any) error {
	v := reflect.ValueOf(args)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("jsonschema")
		if !hasTagOption(tag, "required") {
			continue
		}
		if v.Field(i).IsZero() {
			return fmt.Errorf("missing required field %q", jsonFieldName(field))
		}
	}
	return nil
}

func hasTagOption(tag, option string) bool {
	for _, part := range strings.Split(tag, ",") {
		if part == option {
			return true
		}
	}
	return false
}

func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "" {
		name = field.Name
	}
	return name
}
