// Package yamlflag provides a command line flag that accepts a YAML document.
package yamlflag

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/dyso-testbed/dyso/core/jsonhelper"
	"github.com/ghodss/yaml"
	"github.com/xeipuuv/gojsonschema"
)

// New creates a flag.Value that recognizes a YAML document.
//
// The YAML document can be specified directly on the command line:
//   --flag="Key: value"
// Or it can be read from a file, when the flag value starts with '@':
//   --flag=@file.yaml
//
// value must be a pointer to a struct containing config sections.
// Fields absent from the document keep their existing values, so defaults may be assigned before parsing.
// A top-level list or map present in the document replaces the existing value as a whole.
// Unknown fields are rejected.
// Panics if value is not a pointer.
func New(value any) flag.Getter {
	return NewWithSchema(value, "")
}

// NewWithSchema creates a flag.Value like New.
// If schema is not empty, the document is validated against this JSON schema before decoding.
func NewWithSchema(value any, schema string) flag.Getter {
	if val := reflect.ValueOf(value); val.Kind() != reflect.Ptr {
		panic(val.Kind())
	}
	return &yamlFlagValue{value, schema}
}

type yamlFlagValue struct {
	Value  any
	Schema string
}

func (v *yamlFlagValue) Get() any {
	return v.Value
}

func (v *yamlFlagValue) Set(s string) error {
	doc := []byte(s)
	if len(s) >= 1 && s[0] == '@' {
		file, e := os.ReadFile(s[1:])
		if e != nil {
			return e
		}
		doc = file
	}

	j, e := yaml.YAMLToJSON(doc)
	if e != nil {
		return e
	}
	if v.Schema != "" {
		if e := Validate(j, v.Schema); e != nil {
			return e
		}
	}
	resetPresentLists(j, v.Value)
	return jsonhelper.Decode(j, v.Value, jsonhelper.DisallowUnknownFields)
}

// resetPresentLists zeroes slice and map fields of the struct pointed to by ptr whose keys appear in the document.
// A list in the document then replaces the existing list, instead of being decoded over existing elements.
func resetPresentLists(j []byte, ptr any) {
	var keys map[string]json.RawMessage
	if json.Unmarshal(j, &keys) != nil {
		return
	}
	val := reflect.ValueOf(ptr).Elem()
	if val.Kind() != reflect.Struct {
		return
	}
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() || field.Anonymous {
			continue
		}
		if kind := field.Type.Kind(); kind != reflect.Slice && kind != reflect.Map {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = field.Name
		}
		for key := range keys {
			if strings.EqualFold(key, name) {
				val.Field(i).Set(reflect.Zero(field.Type))
				break
			}
		}
	}
}

func (v *yamlFlagValue) String() string {
	if v == nil || v.Value == nil {
		return ""
	}
	j, _ := json.Marshal(v.Value)
	return string(j)
}

// SchemaError indicates a document failed JSON schema validation.
type SchemaError struct {
	*gojsonschema.Result
}

func (e SchemaError) Error() string {
	var b strings.Builder
	fmt.Fprint(&b, "document failed schema validation:")
	for _, desc := range e.Result.Errors() {
		fmt.Fprint(&b, "\n- ", desc)
	}
	return b.String()
}

// Validate checks a JSON document against a JSON schema.
func Validate(doc []byte, schema string) error {
	result, e := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewBytesLoader(doc))
	if e != nil {
		return fmt.Errorf("schema validator error: %w", e)
	}
	if !result.Valid() {
		return SchemaError{result}
	}
	return nil
}
