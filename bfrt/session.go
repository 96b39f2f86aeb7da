package bfrt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/rpc"
	"time"

	"github.com/powerman/rpc-codec/jsonrpc2"
	"go.uber.org/zap"
)

// DefaultTimeout is the default timeout of each remote call.
const DefaultTimeout = 5 * time.Second

// Options contains Session options.
type Options struct {
	// Timeout is applied to remote calls whose context has no deadline.
	// Default is DefaultTimeout.
	Timeout time.Duration
}

func (opts *Options) applyDefaults() {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
}

// Session is a client session bound to the program running on a switch.
//
// A Session is intended for a single writer; it does not serialize concurrent callers.
type Session struct {
	endpoint string
	program  string
	timeout  time.Duration
	client   *jsonrpc2.Client
}

// Connect establishes a Session.
// It discovers the currently loaded program and binds to it.
// Errors wrap ErrConnection.
func Connect(ctx context.Context, endpoint string, opts Options) (s *Session, e error) {
	opts.applyDefaults()
	network, address, e := ParseEndpoint(endpoint)
	if e != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, e)
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	var dialer net.Dialer
	conn, e := dialer.DialContext(dialCtx, network, address)
	if e != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, endpoint, e)
	}

	s = &Session{
		endpoint: endpoint,
		timeout:  opts.Timeout,
		client:   jsonrpc2.NewClient(conn),
	}

	var prog ProgramReply
	if e = s.call(ctx, MethodGetProgram, Empty{}, &prog); e == nil && prog.Program == "" {
		e = errors.New("no program loaded")
	}
	if e == nil {
		e = s.call(ctx, MethodBindPipelineConfig, BindArgs{Program: prog.Program}, &Empty{})
	}
	if e != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, e)
	}

	s.program = prog.Program
	logger.Info("session bound",
		zap.String("endpoint", endpoint),
		zap.String("program", s.program),
	)
	return s, nil
}

// Endpoint returns the control service endpoint.
func (s *Session) Endpoint() string {
	return s.endpoint
}

// Program returns the name of the bound program.
func (s *Session) Program() string {
	return s.program
}

// Close closes the session.
// It is safe to call Close more than once.
func (s *Session) Close() error {
	if s.client == nil {
		return nil
	}
	e := s.client.Close()
	s.client = nil
	if errors.Is(e, rpc.ErrShutdown) {
		e = nil
	}
	return e
}

// WriteRegister modifies one element of a register.
//
// The call is synchronous: it returns after the control service has acknowledged the write.
// An unknown table or field yields an error wrapping ErrRegisterWrite;
// a transport failure or timeout yields an error wrapping ErrRemote.
func (s *Session) WriteRegister(ctx context.Context, reg RegisterHandle, value uint64) error {
	e := s.call(ctx, MethodModifyRegister, RegisterArgs{
		Program:        s.program,
		RegisterHandle: reg,
		Value:          value,
	}, &Empty{})
	if e != nil {
		return fmt.Errorf("write %s=%d: %w", reg, value, e)
	}
	logger.Debug("register written", zap.Stringer("register", reg), zap.Uint64("value", value))
	return nil
}

func (s *Session) call(ctx context.Context, method string, args, reply any) error {
	if s.client == nil {
		return fmt.Errorf("%w: %s: session closed", ErrRemote, method)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	call := s.client.Go(method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %v", ErrRemote, method, ctx.Err())
	case <-call.Done:
		return classifyError(method, call.Error)
	}
}

func classifyError(method string, e error) error {
	if e == nil {
		return nil
	}
	if errors.Is(e, rpc.ErrShutdown) || errors.Is(e, io.ErrUnexpectedEOF) || errors.Is(e, io.EOF) {
		return fmt.Errorf("%w: %s: %v", ErrRemote, method, e)
	}

	var jerr *jsonrpc2.Error
	if !errors.As(e, &jerr) {
		var serr rpc.ServerError
		if !errors.As(e, &serr) {
			return fmt.Errorf("%w: %s: %v", ErrRemote, method, e)
		}
		jerr = jsonrpc2.ServerError(serr)
	}
	return &CallError{
		Method:  method,
		Code:    jerr.Code,
		Message: jerr.Message,
	}
}
