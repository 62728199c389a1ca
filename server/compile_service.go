package server

import (
	"context"
	"errors"
	"fmt"
	"math"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/chazu/datex/compiler"
	"github.com/chazu/datex/dist"
	"github.com/chazu/datex/pkg/reader"
)

// Procedure names of the compile service.
const (
	CompileServiceName    = "datex.v1.CompileService"
	CompileProcedure      = "/datex.v1.CompileService/Compile"
	CompileValueProcedure = "/datex.v1.CompileService/CompileValue"
	DisassembleProcedure  = "/datex.v1.CompileService/Disassemble"
	ParseBlockProcedure   = "/datex.v1.CompileService/ParseBlock"
)

// CompileService compiles scripts and values into DXB blocks. Messages
// are protobuf well-known types, so the service works with any Connect,
// gRPC or HTTP/JSON client without generated stubs.
type CompileService struct {
	compiler *compiler.Compiler
	defaults *compiler.Options
}

// NewCompileService creates a CompileService. defaults holds the header
// options applied to every request; it may be nil.
func NewCompileService(c *compiler.Compiler, defaults *compiler.Options) *CompileService {
	if defaults == nil {
		defaults = &compiler.Options{}
	}
	return &CompileService{compiler: c, defaults: defaults}
}

// Compile compiles a script into framed blocks.
//
// Request fields: source (string), data (list), keepOpen (bool) and
// cached (bool). The response holds the blocks as base64 strings under
// "blocks".
func (s *CompileService) Compile(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()
	source := fields["source"].GetStringValue()
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	var data []any
	if list := fields["data"].GetListValue(); list != nil {
		for _, v := range list.GetValues() {
			data = append(data, fromProto(v.AsInterface()))
		}
	}

	opts := *s.defaults
	opts.KeepScopeOpen = fields["keepOpen"].GetBoolValue()

	var blocks [][]byte
	var err error
	if fields["cached"].GetBoolValue() {
		blocks, err = s.compiler.CompileCached(ctx, source, data, &opts)
	} else {
		blocks, err = s.compiler.Compile(ctx, source, data, &opts)
	}
	if err != nil {
		return nil, compileError(err)
	}

	encoded := make([]any, len(blocks))
	for i, b := range blocks {
		encoded[i] = compiler.EncodeBase64(b)
	}
	resp, err := structpb.NewStruct(map[string]any{"blocks": encoded})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	log.Debugf("compiled %d blocks", len(blocks))
	return connect.NewResponse(resp), nil
}

// CompileValue encodes a single value into a DXB body.
func (s *CompileService) CompileValue(
	ctx context.Context,
	req *connect.Request[structpb.Value],
) (*connect.Response[wrapperspb.BytesValue], error) {
	body, err := compiler.CompileValue(fromProto(req.Msg.AsInterface()), nil)
	if err != nil {
		return nil, compileError(err)
	}
	return connect.NewResponse(wrapperspb.Bytes(body)), nil
}

// Disassemble lists the instructions of a DXB body.
func (s *CompileService) Disassemble(
	ctx context.Context,
	req *connect.Request[wrapperspb.BytesValue],
) (*connect.Response[wrapperspb.StringValue], error) {
	body := req.Msg.GetValue()
	if len(body) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("body is required"))
	}
	text, err := reader.Disassemble(body)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewResponse(wrapperspb.String(text)), nil
}

// ParseBlock decodes the header of a framed block. The body is
// disassembled unless it is encrypted or split across blocks.
func (s *CompileService) ParseBlock(
	ctx context.Context,
	req *connect.Request[wrapperspb.BytesValue],
) (*connect.Response[structpb.Struct], error) {
	info, err := dist.ParseHeader(req.Msg.GetValue())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	m := map[string]any{
		"version":     int(info.Version),
		"size":        info.Size,
		"ttl":         int(info.TTL),
		"prio":        int(info.Prio),
		"sid":         float64(info.SID),
		"returnIndex": int(info.ReturnIndex),
		"inc":         int(info.Inc),
		"type":        info.Type.String(),
		"encrypted":   info.Encrypted,
		"executable":  info.Executable,
		"endOfScope":  info.EndOfScope,
		"device":      int(info.Device),
		"flood":       info.Flood,
		"timestamp":   info.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if info.Sender != nil {
		m["sender"] = info.Sender.String()
	}
	if info.Receivers != nil {
		m["receivers"] = info.Receivers.String()
	}
	if !info.Encrypted && info.EndOfScope {
		if text, err := reader.Disassemble(info.Body); err == nil {
			m["body"] = text
		}
	}

	resp, err := structpb.NewStruct(m)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(resp), nil
}

// compileError maps compiler errors onto Connect codes.
func compileError(err error) error {
	var syntaxErr *compiler.SyntaxError
	var valueErr *compiler.ValueError
	var compilerErr *compiler.CompilerError
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &valueErr):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.As(err, &compilerErr):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

// fromProto turns whole JSON numbers into integers, recursively.
func fromProto(v any) any {
	switch x := v.(type) {
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	case []any:
		for i := range x {
			x[i] = fromProto(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = fromProto(x[k])
		}
		return x
	}
	return v
}
