// Package bfrt is a client of the switch runtime control service.
//
// The control service is reached over JSON-RPC 2.0.
// A Session binds to whichever program is currently loaded on the switch,
// then modifies registers and drives the packet generator of that program.
package bfrt

import (
	"errors"
	"fmt"

	"github.com/dyso-testbed/dyso/core/logging"
)

var logger = logging.New("bfrt")

// Error conditions.
var (
	// ErrConnection indicates the control service is unreachable or no program could be bound.
	ErrConnection = errors.New("cannot bind to switch control session")
	// ErrRegisterWrite indicates the register table or field is unknown to the bound program.
	ErrRegisterWrite = errors.New("register write rejected")
	// ErrRemote indicates a transport failure or timeout on an otherwise valid call.
	ErrRemote = errors.New("remote call failed")
)

// Error codes returned by the control service, outside the JSON-RPC reserved range.
const (
	CodeNoProgram    = 1001
	CodeUnknownTable = 1002
	CodeUnknownField = 1003
)

// CallError is an error response from the control service.
type CallError struct {
	Method  string
	Code    int
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Method, e.Code, e.Message)
}

// Unwrap maps the error code to one of the error conditions.
func (e *CallError) Unwrap() error {
	switch e.Code {
	case CodeUnknownTable, CodeUnknownField:
		return ErrRegisterWrite
	case CodeNoProgram:
		return ErrConnection
	}
	return ErrRemote
}

// RegisterHandle identifies one element of a register array.
type RegisterHandle struct {
	Table string `json:"table"`
	Field string `json:"field"`
	Index int    `json:"index"`
}

func (h RegisterHandle) String() string {
	return fmt.Sprintf("%s[%d]", h.Table, h.Index)
}

// OffsetRegister is the query key offset register of the DySO program.
var OffsetRegister = RegisterHandle{
	Table: "Pipe0SwitchIngress.offset",
	Field: "Pipe0SwitchIngress.offset.f1",
	Index: 0,
}
