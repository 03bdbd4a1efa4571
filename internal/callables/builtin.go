// Package callables provides the small set of general-purpose node bodies
// registered by default in every conductor binary: an HTTP request, a
// shell command, and a debug print. Flow-specific callables are
// registered alongside these by whatever embeds the registry; these three
// exist so a flow file is runnable without writing any Go at all.
//
// Grounded in herki-piper/internal/plugin/builtin's HTTPConnector,
// ShellConnector and LogConnector, adapted from the Connector/Action
// shape to the single registry.Callable signature.
package callables

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"resty.dev/v3"

	"github.com/G14MB0/conductor/internal/node"
	"github.com/G14MB0/conductor/internal/registry"
	"github.com/G14MB0/conductor/internal/state"
)

// Register adds the built-in callables to reg under their conventional
// keys: "builtin:http", "builtin:shell", "builtin:log".
func Register(reg *registry.Registry) {
	reg.MustRegister("builtin:http", HTTPRequest)
	reg.MustRegister("builtin:shell", ShellRun)
	reg.MustRegister("builtin:log", LogPrint)
}

// HTTPRequest issues one HTTP request. in.Payload must be a
// map[string]any with a required "url" key and optional "method",
// "headers", "body" keys, mirroring the teacher's http connector input.
func HTTPRequest(ctx context.Context, in node.Input, _ state.Store) (any, error) {
	params, ok := in.Payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("builtin:http: payload must be an object with a 'url' field")
	}
	url, _ := params["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("builtin:http: 'url' is required")
	}
	method := "GET"
	if m, ok := params["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	client := resty.New()
	defer client.Close()

	req := client.R().SetContext(ctx)
	if headers, ok := params["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.SetHeader(k, fmt.Sprintf("%v", v))
		}
	}
	if body, ok := params["body"]; ok && body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("builtin:http: request failed: %w", err)
	}

	status := "success"
	if resp.StatusCode() >= 400 {
		status = "error"
	}

	respHeaders := make(map[string]any, len(resp.Header()))
	for k, v := range resp.Header() {
		if len(v) == 1 {
			respHeaders[k] = v[0]
		} else {
			respHeaders[k] = v
		}
	}

	return node.Output{
		Status: status,
		Data: map[string]any{
			"status_code": resp.StatusCode(),
			"body":        string(resp.Bytes()),
			"headers":     respHeaders,
		},
	}, nil
}

// ShellRun executes one shell command via "sh -c". in.Payload must carry
// a required "command" key and optional "dir" working directory.
func ShellRun(ctx context.Context, in node.Input, _ state.Store) (any, error) {
	params, ok := in.Payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("builtin:shell: payload must be an object with a 'command' field")
	}
	command, _ := params["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("builtin:shell: 'command' is required")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if dir, ok := params["dir"].(string); ok && dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("builtin:shell: %w", runErr)
		}
	}

	status := "success"
	if exitCode != 0 {
		status = "error"
	}

	return node.Output{
		Status: status,
		Data: map[string]any{
			"stdout":    strings.TrimRight(stdout.String(), "\n"),
			"stderr":    strings.TrimRight(stderr.String(), "\n"),
			"exit_code": exitCode,
		},
	}, nil
}

// LogPrint writes a message to stdout and echoes it back, useful for
// debugging a flow's wiring without a real side effect.
func LogPrint(_ context.Context, in node.Input, _ state.Store) (any, error) {
	var message string
	if params, ok := in.Payload.(map[string]any); ok {
		message = fmt.Sprintf("%v", params["message"])
	} else {
		message = fmt.Sprintf("%v", in.Payload)
	}
	fmt.Println("[log]", message)
	return map[string]any{"message": message}, nil
}
