// Package jsonhelper provides JSON-related helper functions.
package jsonhelper

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Option sets an option on json.Decoder.
type Option func(*json.Decoder)

// DisallowUnknownFields causes json.Decoder to reject unknown struct fields.
var DisallowUnknownFields Option = func(d *json.Decoder) { d.DisallowUnknownFields() }

// Decode unmarshals a single JSON value into ptr.
// Trailing data after the value is an error.
func Decode(j []byte, ptr any, options ...Option) error {
	decoder := json.NewDecoder(bytes.NewReader(j))
	for _, option := range options {
		option(decoder)
	}
	if e := decoder.Decode(ptr); e != nil {
		return e
	}
	if decoder.More() {
		return fmt.Errorf("unexpected data after JSON value at offset %d", decoder.InputOffset())
	}
	return nil
}

// Roundtrip marshals the input to JSON then unmarshals it into ptr.
// This is useful for converting between structures and for deep copying.
func Roundtrip(input, ptr any, options ...Option) error {
	j, e := json.Marshal(input)
	if e != nil {
		return e
	}
	return Decode(j, ptr, options...)
}
