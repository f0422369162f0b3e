package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/apex-build/cdp-debugger/internal/audit"
	"github.com/apex-build/cdp-debugger/internal/authtoken"
	"github.com/apex-build/cdp-debugger/internal/dbgerr"
	"github.com/apex-build/cdp-debugger/internal/metrics"
	"github.com/apex-build/cdp-debugger/internal/ratelimit"
)

// Handler executes one tool call and returns a JSON-serializable result.
type Handler func(ctx context.Context, args map[string]any) (any, error)

type registeredTool struct {
	tool    Tool
	handler Handler
}

// Server reads JSON-RPC requests from in, one per line, and writes
// responses to out in the same framing (spec.md §6 "Transport: line-
// delimited JSON over stdio").
type Server struct {
	in  *bufio.Scanner
	out io.Writer
	log *zap.Logger

	limiter *ratelimit.Limiter
	auth    *authtoken.Checker
	audit   *audit.Logger
	metrics *metrics.Sink

	tools map[string]registeredTool
}

// New constructs a Server over the given stdio pipes.
func New(in io.Reader, out io.Writer, log *zap.Logger, limiter *ratelimit.Limiter, auth *authtoken.Checker, aud *audit.Logger, m *metrics.Sink) *Server {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Server{
		in:      scanner,
		out:     out,
		log:     log,
		limiter: limiter,
		auth:    auth,
		audit:   aud,
		metrics: m,
		tools:   make(map[string]registeredTool),
	}
}

// RegisterTool adds a callable tool to the façade's dispatch table.
func (s *Server) RegisterTool(t Tool, h Handler) {
	s.tools[t.Name] = registeredTool{tool: t, handler: h}
}

// Run reads requests until stdin closes or ctx is cancelled, dispatching
// each to completion before reading the next line — the façade processes
// one request at a time, matching the cooperative single-task-per-session
// model (spec.md §5 "Concurrency").
func (s *Server) Run(ctx context.Context) error {
	for s.in.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := s.in.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handleLine(ctx, append([]byte(nil), line...))
	}
	return s.in.Err()
}

func (s *Server) handleLine(ctx context.Context, line []byte) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		s.writeError(nil, ErrCodeParse, "parse error", nil)
		return
	}

	switch msg.Method {
	case MethodToolsList:
		s.handleToolsList(msg.ID)
	case MethodToolsCall:
		s.handleToolsCall(ctx, msg)
	default:
		s.writeError(msg.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", msg.Method), nil)
	}
}

func (s *Server) handleToolsList(id json.RawMessage) {
	tools := make([]Tool, 0, len(s.tools))
	for _, rt := range s.tools {
		tools = append(tools, rt.tool)
	}
	s.writeResult(id, ToolsListResult{Tools: tools})
}

func (s *Server) handleToolsCall(ctx context.Context, msg Message) {
	var params ToolCallParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.writeError(msg.ID, ErrCodeInvalidParams, "invalid params", nil)
		return
	}

	if s.limiter != nil {
		if err := s.limiter.CheckOrReject(); err != nil {
			s.writeToolError(msg.ID, err)
			return
		}
	}
	if s.auth != nil {
		token, _ := params.Arguments["auth_token"].(string)
		if err := s.auth.Check(token); err != nil {
			s.writeToolError(msg.ID, err)
			return
		}
	}

	rt, ok := s.tools[params.Name]
	if !ok {
		s.writeError(msg.ID, ErrCodeInvalidParams, fmt.Sprintf("unknown tool: %s", params.Name), nil)
		return
	}

	start := time.Now()
	result, err := rt.handler(ctx, params.Arguments)
	elapsed := time.Since(start)

	sessionID, _ := params.Arguments["session_id"].(string)
	if s.audit != nil {
		errText := ""
		if err != nil {
			errText = err.Error()
		}
		s.audit.Record(audit.Entry{Tool: params.Name, SessionID: sessionID, Arguments: params.Arguments, Err: errText, Duration: elapsed})
	}
	if s.metrics != nil {
		s.metrics.IncToolCall(err != nil)
	}

	if err != nil {
		s.writeToolError(msg.ID, err)
		return
	}

	body, merr := json.Marshal(result)
	if merr != nil {
		s.writeError(msg.ID, ErrCodeInternal, "failed to marshal tool result", nil)
		return
	}
	s.writeResult(msg.ID, ToolCallResult{Content: []ContentBlock{{Type: "text", Text: string(body)}}})
}

// writeToolError renders a dbgerr as a tool-level error result rather than
// a JSON-RPC protocol error, since the failure is within tool execution,
// not the envelope (spec.md §7 "Errors surface as structured tool
// results, not transport faults").
func (s *Server) writeToolError(id json.RawMessage, err error) {
	kind := dbgerr.KindOf(err)
	payload := map[string]any{"kind": string(kind), "message": err.Error()}
	body, _ := json.Marshal(payload)
	s.writeResult(id, ToolCallResult{IsError: true, Content: []ContentBlock{{Type: "text", Text: string(body)}}})
}

func (s *Server) writeResult(id json.RawMessage, result any) {
	body, err := json.Marshal(result)
	if err != nil {
		s.writeError(id, ErrCodeInternal, "failed to marshal result", nil)
		return
	}
	s.write(Message{JSONRPC: ProtocolVersion, ID: id, Result: body})
}

func (s *Server) writeError(id json.RawMessage, code int, message string, data any) {
	s.write(Message{JSONRPC: ProtocolVersion, ID: id, Error: &Error{Code: code, Message: message, Data: data}})
}

func (s *Server) write(msg Message) {
	body, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("failed to marshal outgoing message", zap.Error(err))
		return
	}
	body = append(body, '\n')
	if _, err := s.out.Write(body); err != nil {
		s.log.Error("failed to write response", zap.Error(err))
	}
}
