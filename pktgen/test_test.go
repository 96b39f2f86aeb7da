package pktgen_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyso-testbed/dyso/core/testenv"
	"github.com/dyso-testbed/dyso/pktgen/pktgendef"
)

var makeAR = testenv.MakeAR

// recordingDevice records device operations.
type recordingDevice struct {
	ops     []string
	failing map[string]bool
}

func (dev *recordingDevice) do(op string, a ...any) error {
	s := fmt.Sprintf(op, a...)
	dev.ops = append(dev.ops, s)
	if dev.failing[op] {
		return errors.New(s + " failed")
	}
	return nil
}

func (dev *recordingDevice) WritePktBuffer(ctx context.Context, offset int, data []byte) error {
	return dev.do("WritePktBuffer %d+%d", offset, len(data))
}

func (dev *recordingDevice) EnablePort(ctx context.Context, port pktgendef.Port) error {
	return dev.do("EnablePort %d", int(port))
}

func (dev *recordingDevice) ConfigureApp(ctx context.Context, id pktgendef.AppID, cfg pktgendef.AppConfig) error {
	return dev.do("ConfigureApp %d", int(id))
}

func (dev *recordingDevice) EnableApp(ctx context.Context, id pktgendef.AppID) error {
	return dev.do("EnableApp %d", int(id))
}

func (dev *recordingDevice) DisableApp(ctx context.Context, id pktgendef.AppID) error {
	return dev.do("DisableApp %d", int(id))
}

func (dev *recordingDevice) CompleteOperations(ctx context.Context) error {
	return dev.do("CompleteOperations")
}
