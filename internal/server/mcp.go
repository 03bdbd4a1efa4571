package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// MCPServer exposes every flow in a Runner as an MCP tool over a
// hand-rolled JSON-RPC stdio loop. Grounded in
// herki-piper/internal/server.MCPServer; no MCP SDK appears anywhere in
// the example corpus, so this reimplements the same minimal
// initialize/tools-list/tools-call subset the teacher hand-rolled, now
// dispatching into a graph flow.Engine instead of the teacher's linear
// engine.Engine.
type MCPServer struct {
	runner *Runner
}

// NewMCPServer builds an MCPServer over runner.
func NewMCPServer(runner *Runner) *MCPServer {
	return &MCPServer{runner: runner}
}

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   any    `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type mcpInitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      mcpServerInfo  `json:"serverInfo"`
}

type mcpServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type mcpTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

type mcpToolsResult struct {
	Tools []mcpTool `json:"tools"`
}

type mcpCallToolParams struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

type mcpCallToolResult struct {
	Content []mcpContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

type mcpContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServeStdio runs the MCP server on stdin/stdout until EOF.
func (s *MCPServer) ServeStdio() error {
	decoder := json.NewDecoder(os.Stdin)
	encoder := json.NewEncoder(os.Stdout)

	for {
		var req jsonRPCRequest
		if err := decoder.Decode(&req); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decoding request: %w", err)
		}

		resp := s.handleRequest(req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				return fmt.Errorf("encoding response: %w", err)
			}
		}
	}
}

func (s *MCPServer) handleRequest(req jsonRPCRequest) *jsonRPCResponse {
	switch req.Method {
	case "initialize":
		return &jsonRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: mcpInitializeResult{
				ProtocolVersion: "2024-11-05",
				Capabilities:    map[string]any{"tools": map[string]any{}},
				ServerInfo:      mcpServerInfo{Name: "conductor", Version: "0.1.0"},
			},
		}

	case "notifications/initialized":
		return nil

	case "tools/list":
		return &jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: s.listTools()}

	case "tools/call":
		var params mcpCallToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return &jsonRPCResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   jsonRPCError{Code: -32602, Message: "invalid params: " + err.Error()},
			}
		}
		text, isError := s.callTool(params)
		return &jsonRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: mcpCallToolResult{
				Content: []mcpContent{{Type: "text", Text: text}},
				IsError: isError,
			},
		}

	default:
		return &jsonRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   jsonRPCError{Code: -32601, Message: "method not found: " + req.Method},
		}
	}
}

func (s *MCPServer) listTools() mcpToolsResult {
	tools := make([]mcpTool, 0, len(s.runner.Flows))
	for _, fd := range s.runner.Flows {
		tools = append(tools, mcpTool{
			Name:        fd.Name,
			Description: fd.Description,
			InputSchema: map[string]any{"type": "object"},
		})
	}
	return mcpToolsResult{Tools: tools}
}

func (s *MCPServer) callTool(params mcpCallToolParams) (string, bool) {
	result, err := s.runner.Run(context.Background(), params.Name, params.Arguments)
	if err != nil {
		return fmt.Sprintf("error: %v", err), true
	}

	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprintf("error marshaling result: %v", err), true
	}
	return string(raw), false
}
