// Package rpc exposes a small headless trace-streaming service over
// Connect RPC (SPEC_FULL.md §8 DOMAIN STACK), for driving the emulator
// from an external triage pipeline instead of the interactive CLI. The
// service's request/response payloads are google.golang.org/protobuf's
// structpb.Struct: this core's actual .proto-generated types were not
// among the retrieved pack files (DESIGN.md), so the wire contract is
// expressed with the one protobuf message type the standard library of
// the ecosystem already ships without codegen, rather than hand-rolling
// fake generated code.
package rpc

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vireolabs/mwemu/internal/config"
	"github.com/vireolabs/mwemu/internal/emu"
	"github.com/vireolabs/mwemu/internal/loader"
	"github.com/vireolabs/mwemu/internal/stubs"
)

// StepServiceProcedure is the Connect procedure path this service
// handles, following the "<package>.<Service>/<Method>" convention
// generated code would otherwise produce.
const StepServiceProcedure = "/mwemu.v1.StepService/Step"

// StepService runs one session's worth of instructions per call and
// returns a structured summary, so an external pipeline can step an
// emulation session over the network rather than linking this module in
// directly.
type StepService struct {
	sessions map[string]*session
}

type session struct {
	core *emu.Core
}

func NewStepService() *StepService {
	return &StepService{sessions: map[string]*session{}}
}

// Handler returns an http.Handler serving the Step RPC, to be mounted
// on a *http.ServeMux by the caller (cmd/mwemu's serve subcommand).
func (s *StepService) Handler() (string, http.Handler) {
	h := connect.NewUnaryHandler(StepServiceProcedure, s.step)
	return StepServiceProcedure, h
}

// step implements the RPC body: fields read from the request Struct are
// {"session": string, "binary": string, "linux": bool, "steps": number};
// fields written to the response are {"session", "count", "rip", "error"}.
func (s *StepService) step(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()
	sessionID := fields["session"].GetStringValue()
	if sessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("rpc: missing session"))
	}

	sess, ok := s.sessions[sessionID]
	if !ok {
		binary := fields["binary"].GetStringValue()
		if binary == "" {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("rpc: unknown session %q and no binary to start one", sessionID))
		}
		newSess, err := s.start(binary, fields["linux"].GetBoolValue())
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		s.sessions[sessionID] = newSess
		sess = newSess
	}

	steps := int(fields["steps"].GetNumberValue())
	if steps <= 0 {
		steps = 1
	}

	count := 0
	var stepErr error
	for i := 0; i < steps; i++ {
		if err := sess.core.Step(); err != nil {
			stepErr = err
			break
		}
		count++
	}

	t := sess.core.Sched.Current()
	out := map[string]any{
		"session": sessionID,
		"count":   float64(count),
	}
	if t != nil {
		out["rip"] = float64(t.Regs.RIP)
	}
	if stepErr != nil {
		out["error"] = stepErr.Error()
	}

	respStruct, err := structpb.NewStruct(out)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(respStruct), nil
}

func (s *StepService) start(binary string, linux bool) (*session, error) {
	cfg := config.Default()
	cfg.Linux = linux
	core := emu.NewCore(cfg)
	core.Stubs = stubs.DefaultRegistry

	resolve := func(name string) (uint64, bool) {
		addr, err := core.Maps.Lib64Alloc(name, 0x10)
		if err != nil {
			return 0, false
		}
		return addr, true
	}

	var img *loader.Image
	var err error
	if linux {
		img, err = loader.LoadELF(core.Maps, binary, resolve)
	} else {
		img, err = loader.LoadPE(core.Maps, binary, resolve)
	}
	if err != nil {
		return nil, err
	}
	stubs.DefaultRegistry.Install(img.Imports)

	if _, err := core.Maps.Map("stack", emu.DefaultStackBase64, emu.DefaultStackSize, emu.PermRead|emu.PermWrite); err != nil {
		return nil, err
	}
	t := emu.NewThread(0, img.Bits == 32, linux)
	t.Regs.RIP = img.Entry
	t.Regs.Set64(emu.RSP, emu.DefaultStackBase64+emu.DefaultStackSize-0x1000)
	core.Sched.AddThread(t)

	return &session{core: core}, nil
}
