package bfrt

import (
	"context"
	"fmt"

	"github.com/dyso-testbed/dyso/pktgen/pktgendef"
)

var _ pktgendef.Device = (*Session)(nil)

// WritePktBuffer implements pktgendef.Device.
func (s *Session) WritePktBuffer(ctx context.Context, offset int, data []byte) error {
	return s.pktgenCall(ctx, MethodWritePktBuffer, PktBufferArgs{Offset: offset, Data: data})
}

// EnablePort implements pktgendef.Device.
func (s *Session) EnablePort(ctx context.Context, port pktgendef.Port) error {
	return s.pktgenCall(ctx, MethodEnablePort, PortArgs{Port: port})
}

// ConfigureApp implements pktgendef.Device.
func (s *Session) ConfigureApp(ctx context.Context, id pktgendef.AppID, cfg pktgendef.AppConfig) error {
	return s.pktgenCall(ctx, MethodConfigureApp, AppArgs{AppID: id, Config: &cfg})
}

// EnableApp implements pktgendef.Device.
func (s *Session) EnableApp(ctx context.Context, id pktgendef.AppID) error {
	return s.pktgenCall(ctx, MethodEnableApp, AppArgs{AppID: id})
}

// DisableApp implements pktgendef.Device.
func (s *Session) DisableApp(ctx context.Context, id pktgendef.AppID) error {
	return s.pktgenCall(ctx, MethodDisableApp, AppArgs{AppID: id})
}

// CompleteOperations implements pktgendef.Device.
func (s *Session) CompleteOperations(ctx context.Context) error {
	return s.pktgenCall(ctx, MethodCompleteOperations, Empty{})
}

func (s *Session) pktgenCall(ctx context.Context, method string, args any) error {
	if e := s.call(ctx, method, args, &Empty{}); e != nil {
		return fmt.Errorf("pktgen: %w", e)
	}
	return nil
}
