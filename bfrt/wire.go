package bfrt

import (
	"github.com/dyso-testbed/dyso/pktgen/pktgendef"
)

// Method names of the control service.
const (
	MethodGetProgram         = "BfRt.GetProgram"
	MethodBindPipelineConfig = "BfRt.BindPipelineConfig"
	MethodModifyRegister     = "BfRt.ModifyRegister"
	MethodWritePktBuffer     = "Pktgen.WritePktBuffer"
	MethodEnablePort         = "Pktgen.EnablePort"
	MethodConfigureApp       = "Pktgen.ConfigureApp"
	MethodEnableApp          = "Pktgen.EnableApp"
	MethodDisableApp         = "Pktgen.DisableApp"
	MethodCompleteOperations = "Pktgen.CompleteOperations"
)

// Empty is an empty argument or reply.
type Empty struct{}

// ProgramReply is the reply of MethodGetProgram.
type ProgramReply struct {
	Program string `json:"program"`
}

// BindArgs contains arguments of MethodBindPipelineConfig.
type BindArgs struct {
	Program string `json:"program"`
}

// RegisterArgs contains arguments of MethodModifyRegister.
type RegisterArgs struct {
	Program string `json:"program"`
	RegisterHandle
	Value uint64 `json:"value"`
}

// PktBufferArgs contains arguments of MethodWritePktBuffer.
type PktBufferArgs struct {
	Offset int    `json:"offset"`
	Data   []byte `json:"data"`
}

// PortArgs contains arguments of MethodEnablePort.
type PortArgs struct {
	Port pktgendef.Port `json:"port"`
}

// AppArgs contains arguments of MethodConfigureApp, MethodEnableApp, and MethodDisableApp.
type AppArgs struct {
	AppID  pktgendef.AppID      `json:"appId"`
	Config *pktgendef.AppConfig `json:"config,omitempty"`
}
