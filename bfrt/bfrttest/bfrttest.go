// Package bfrttest provides a fake switch control service for unit testing.
package bfrttest

import (
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dyso-testbed/dyso/bfrt"
	"github.com/dyso-testbed/dyso/pktgen/pktgendef"
	"github.com/gabstv/freeport"
	"github.com/powerman/rpc-codec/jsonrpc2"
)

// Error codes for packet generator faults.
const (
	CodeBufferRange = 1010
	CodeUnknownApp  = 1011
)

// RegisterWrite records a register modification.
type RegisterWrite struct {
	Program string
	Table   string
	Index   int
	Value   uint64
}

// App records the state of a packet generator application.
type App struct {
	Config  pktgendef.AppConfig
	Enabled bool
}

// Switch is a fake switch control service.
type Switch struct {
	mutex     sync.Mutex
	program   string
	bound     string
	tables    map[string]string
	registers map[bfrt.RegisterHandle]uint64
	writes    []RegisterWrite
	ops       []string
	buffer    [pktgendef.BufferSize]byte
	apps      map[pktgendef.AppID]*App
	ports     map[pktgendef.Port]bool
	onWrite   func(n int, args bfrt.RegisterArgs) error
	delay     time.Duration

	listener net.Listener
	conns    map[net.Conn]bool
	server   *rpc.Server
}

// New creates a Switch that has program loaded with the offset register.
func New(program string) *Switch {
	sw := &Switch{
		program:   program,
		tables:    map[string]string{bfrt.OffsetRegister.Table: bfrt.OffsetRegister.Field},
		registers: map[bfrt.RegisterHandle]uint64{},
		apps:      map[pktgendef.AppID]*App{},
		ports:     map[pktgendef.Port]bool{},
		conns:     map[net.Conn]bool{},
		server:    rpc.NewServer(),
	}
	sw.server.RegisterName("BfRt", &BfRtService{sw})
	sw.server.RegisterName("Pktgen", &PktgenService{sw})
	return sw
}

// Start creates and starts a Switch on a free loopback TCP port.
// It is stopped during test cleanup.
func Start(t testing.TB, program string) (sw *Switch, endpoint string) {
	sw = New(program)
	endpoint, e := sw.Listen()
	if e != nil {
		t.Fatal(e)
	}
	t.Cleanup(func() { sw.Close() })
	return sw, endpoint
}

// Listen starts accepting connections on a free loopback TCP port.
// Returns the endpoint URI.
func (sw *Switch) Listen() (endpoint string, e error) {
	port, e := freeport.TCP()
	if e != nil {
		return "", e
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	if sw.listener, e = net.Listen("tcp", addr); e != nil {
		return "", e
	}
	go sw.serve(sw.listener)
	return "tcp://" + addr, nil
}

func (sw *Switch) serve(listener net.Listener) {
	for {
		conn, e := listener.Accept()
		if e != nil {
			return
		}
		sw.mutex.Lock()
		sw.conns[conn] = true
		sw.mutex.Unlock()
		go func() {
			sw.server.ServeCodec(jsonrpc2.NewServerCodec(conn, sw.server))
			sw.mutex.Lock()
			delete(sw.conns, conn)
			sw.mutex.Unlock()
		}()
	}
}

// DropConnections closes all client connections while keeping the listener open.
func (sw *Switch) DropConnections() {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	for conn := range sw.conns {
		conn.Close()
	}
}

// Close stops the listener and closes all connections.
func (sw *Switch) Close() error {
	var e error
	if sw.listener != nil {
		e = sw.listener.Close()
	}
	sw.DropConnections()
	return e
}

// AddTable declares a register table and its data field.
func (sw *Switch) AddTable(table, field string) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	sw.tables[table] = field
}

// SetDelay delays every response.
func (sw *Switch) SetDelay(d time.Duration) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	sw.delay = d
}

// OnRegisterWrite sets a fault injection hook for register writes.
// n counts writes from zero. A non-nil return value is sent as the error response.
func (sw *Switch) OnRegisterWrite(hook func(n int, args bfrt.RegisterArgs) error) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	sw.onWrite = hook
}

// Writes returns register writes in arrival order.
func (sw *Switch) Writes() []RegisterWrite {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	return append([]RegisterWrite(nil), sw.writes...)
}

// Register returns current register value.
func (sw *Switch) Register(h bfrt.RegisterHandle) uint64 {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	return sw.registers[h]
}

// Ops returns packet generator operations in arrival order.
func (sw *Switch) Ops() []string {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	return append([]string(nil), sw.ops...)
}

// Buffer returns a copy of packet buffer content.
func (sw *Switch) Buffer(offset, length int) []byte {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	return append([]byte(nil), sw.buffer[offset:offset+length]...)
}

// App returns packet generator application state, or nil if unconfigured.
func (sw *Switch) App(id pktgendef.AppID) *App {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	if app := sw.apps[id]; app != nil {
		a := *app
		return &a
	}
	return nil
}

// EnabledApps returns IDs of enabled applications.
func (sw *Switch) EnabledApps() (list []pktgendef.AppID) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	for id, app := range sw.apps {
		if app.Enabled {
			list = append(list, id)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}

func (sw *Switch) enter() {
	sw.mutex.Lock()
	d := sw.delay
	sw.mutex.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	sw.mutex.Lock()
}

// BfRtService implements BfRt.* methods.
type BfRtService struct {
	sw *Switch
}

// GetProgram returns the loaded program.
func (svc *BfRtService) GetProgram(args bfrt.Empty, reply *bfrt.ProgramReply) error {
	svc.sw.enter()
	defer svc.sw.mutex.Unlock()
	if svc.sw.program == "" {
		return jsonrpc2.NewError(bfrt.CodeNoProgram, "no program loaded")
	}
	reply.Program = svc.sw.program
	return nil
}

// BindPipelineConfig binds to a program.
func (svc *BfRtService) BindPipelineConfig(args bfrt.BindArgs, reply *bfrt.Empty) error {
	svc.sw.enter()
	defer svc.sw.mutex.Unlock()
	if args.Program == "" || args.Program != svc.sw.program {
		return jsonrpc2.NewError(bfrt.CodeNoProgram, fmt.Sprintf("program %q not loaded", args.Program))
	}
	svc.sw.bound = args.Program
	return nil
}

// ModifyRegister modifies a register element.
func (svc *BfRtService) ModifyRegister(args bfrt.RegisterArgs, reply *bfrt.Empty) error {
	svc.sw.enter()
	hook, n := svc.sw.onWrite, len(svc.sw.writes)
	svc.sw.mutex.Unlock()
	if hook != nil {
		if e := hook(n, args); e != nil {
			return e
		}
	}

	svc.sw.mutex.Lock()
	defer svc.sw.mutex.Unlock()
	if args.Program == "" || args.Program != svc.sw.bound {
		return jsonrpc2.NewError(bfrt.CodeNoProgram, "program not bound")
	}
	field, ok := svc.sw.tables[args.Table]
	if !ok {
		return jsonrpc2.NewError(bfrt.CodeUnknownTable, fmt.Sprintf("table %s not found", args.Table))
	}
	if field != args.Field {
		return jsonrpc2.NewError(bfrt.CodeUnknownField, fmt.Sprintf("field %s not found", args.Field))
	}
	svc.sw.registers[args.RegisterHandle] = args.Value
	svc.sw.writes = append(svc.sw.writes, RegisterWrite{
		Program: args.Program,
		Table:   args.Table,
		Index:   args.Index,
		Value:   args.Value,
	})
	return nil
}

// PktgenService implements Pktgen.* methods.
type PktgenService struct {
	sw *Switch
}

func (svc *PktgenService) record(format string, a ...any) {
	svc.sw.ops = append(svc.sw.ops, fmt.Sprintf(format, a...))
}

// WritePktBuffer writes packet buffer.
func (svc *PktgenService) WritePktBuffer(args bfrt.PktBufferArgs, reply *bfrt.Empty) error {
	svc.sw.enter()
	defer svc.sw.mutex.Unlock()
	if args.Offset < 0 || args.Offset+len(args.Data) > len(svc.sw.buffer) {
		return jsonrpc2.NewError(CodeBufferRange, "buffer range out of bounds")
	}
	copy(svc.sw.buffer[args.Offset:], args.Data)
	svc.record("WritePktBuffer %d+%d", args.Offset, len(args.Data))
	return nil
}

// EnablePort enables packet generation on a port.
func (svc *PktgenService) EnablePort(args bfrt.PortArgs, reply *bfrt.Empty) error {
	svc.sw.enter()
	defer svc.sw.mutex.Unlock()
	svc.sw.ports[args.Port] = true
	svc.record("EnablePort %d", args.Port)
	return nil
}

// ConfigureApp configures an application.
func (svc *PktgenService) ConfigureApp(args bfrt.AppArgs, reply *bfrt.Empty) error {
	svc.sw.enter()
	defer svc.sw.mutex.Unlock()
	if args.Config == nil {
		return errors.New("missing config")
	}
	svc.sw.apps[args.AppID] = &App{Config: *args.Config}
	svc.record("ConfigureApp %d", args.AppID)
	return nil
}

// EnableApp enables an application.
func (svc *PktgenService) EnableApp(args bfrt.AppArgs, reply *bfrt.Empty) error {
	return svc.toggle(args.AppID, true)
}

// DisableApp disables an application.
func (svc *PktgenService) DisableApp(args bfrt.AppArgs, reply *bfrt.Empty) error {
	return svc.toggle(args.AppID, false)
}

func (svc *PktgenService) toggle(id pktgendef.AppID, enable bool) error {
	svc.sw.enter()
	defer svc.sw.mutex.Unlock()
	app := svc.sw.apps[id]
	if app == nil {
		return jsonrpc2.NewError(CodeUnknownApp, fmt.Sprintf("app %d not configured", id))
	}
	app.Enabled = enable
	if enable {
		svc.record("EnableApp %d", id)
	} else {
		svc.record("DisableApp %d", id)
	}
	return nil
}

// CompleteOperations flushes batched operations.
func (svc *PktgenService) CompleteOperations(args bfrt.Empty, reply *bfrt.Empty) error {
	svc.sw.enter()
	defer svc.sw.mutex.Unlock()
	svc.record("CompleteOperations")
	return nil
}
