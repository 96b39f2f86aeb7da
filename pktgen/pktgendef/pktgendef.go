// Package pktgendef declares the hardware packet generator control surface.
package pktgendef

import (
	"context"
	"fmt"
)

const (
	// HeaderLen is the length of the header the packet generator prepends to each packet.
	// The first HeaderLen octets of a packet template are not written to the buffer.
	HeaderLen = 6

	// BufferSize is the capacity of the packet generator buffer in octets.
	BufferSize = 16384

	// MaxPipe is the number of pipes.
	MaxPipe = 4

	// MaxLocalPort is the number of local ports per pipe.
	MaxLocalPort = 72

	portShift = 7
)

// AppID identifies a packet generator application.
type AppID int

// Well-known application IDs.
const (
	AppQuery   AppID = 1
	AppControl AppID = 2
)

func (id AppID) String() string {
	switch id {
	case AppQuery:
		return "query"
	case AppControl:
		return "control"
	}
	return fmt.Sprintf("app%d", int(id))
}

// Port is a device port number, combining pipe and pipe-local port.
type Port int

// MakePort constructs Port from pipe and pipe-local port.
func MakePort(pipe, localPort int) (Port, error) {
	if pipe < 0 || pipe >= MaxPipe {
		return 0, fmt.Errorf("pipe %d out of range [0,%d)", pipe, MaxPipe)
	}
	if localPort < 0 || localPort >= MaxLocalPort {
		return 0, fmt.Errorf("local port %d out of range [0,%d)", localPort, MaxLocalPort)
	}
	return Port(pipe<<portShift | localPort), nil
}

// Pipe returns the pipe number.
func (p Port) Pipe() int {
	return int(p) >> portShift
}

// LocalPort returns the pipe-local port number.
func (p Port) LocalPort() int {
	return int(p) & (1<<portShift - 1)
}

func (p Port) String() string {
	return fmt.Sprintf("%d(%d/%d)", int(p), p.Pipe(), p.LocalPort())
}

// TriggerType selects what causes an application to emit a batch.
type TriggerType string

// TriggerType values.
const (
	TriggerTimerOneShot  TriggerType = "TIMER_ONE_SHOT"
	TriggerTimerPeriodic TriggerType = "TIMER_PERIODIC"
)

// AppConfig is the hardware configuration of an application.
//
// BatchCount and PacketCount are zero-based as the hardware counts them:
// BatchCount=0 means one batch per trigger, PacketCount=0 means one packet per batch.
type AppConfig struct {
	TriggerType  TriggerType `json:"triggerType"`
	Timer        uint64      `json:"timer"` // nanoseconds
	BatchCount   int         `json:"batchCount"`
	PacketCount  int         `json:"pktCount"`
	SrcPort      int         `json:"srcPort"`
	BufferOffset int         `json:"bufferOffset"`
	Length       int         `json:"length"`
}

// Device is the packet generator control surface of a switch.
type Device interface {
	// WritePktBuffer writes data into the packet buffer at offset.
	WritePktBuffer(ctx context.Context, offset int, data []byte) error
	// EnablePort enables packet generation on a port.
	EnablePort(ctx context.Context, port Port) error
	// ConfigureApp writes an application configuration.
	ConfigureApp(ctx context.Context, id AppID, cfg AppConfig) error
	// EnableApp starts triggering an application.
	EnableApp(ctx context.Context, id AppID) error
	// DisableApp stops triggering an application.
	DisableApp(ctx context.Context, id AppID) error
	// CompleteOperations flushes pending batched operations.
	CompleteOperations(ctx context.Context) error
}
