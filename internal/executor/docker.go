package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/uuid"

	"github.com/G14MB0/conductor/internal/node"
)

// DockerExecutor runs a node as `docker run --rm -i <image>`, feeding the
// NodeInput as JSON over stdin and reading the NodeOutput back from
// stdout. Grounded in original_source/conductor/node.py:DockerExecutor and
// the stdin/stdout JSON subprocess contract of
// herki-piper/internal/plugin/external.go.
type DockerExecutor struct {
	// Registries resolves a bare image name against configured container
	// registries, mirroring original_source/conductor/config.py
	// GlobalConfig.resolve_image. A nil or empty slice leaves images
	// untouched.
	Registries []string

	// runDocker is overridable in tests to avoid a real docker daemon.
	runDocker func(ctx context.Context, args []string, stdin []byte) (stdout, stderr []byte, exitCode int, err error)
}

// NewDocker builds a DockerExecutor using the real `docker` CLI.
func NewDocker(registries []string) *DockerExecutor {
	return &DockerExecutor{Registries: registries, runDocker: runDockerCLI}
}

// SetRunnerForTest overrides the subprocess runner, so tests can exercise
// the executor's output-handling logic without a real docker daemon.
func (e *DockerExecutor) SetRunnerForTest(fn func(ctx context.Context, args []string, stdin []byte) (stdout, stderr []byte, exitCode int, err error)) {
	e.runDocker = fn
}

func (e *DockerExecutor) resolveImage(image string) string {
	if strings.Contains(image, "://") || strings.Contains(strings.SplitN(image, "/", 2)[0], ".") {
		return image
	}
	if len(e.Registries) == 0 {
		return image
	}
	return strings.TrimRight(e.Registries[0], "/") + "/" + image
}

func (e *DockerExecutor) Execute(ctx context.Context, def node.Definition, in node.Input) (node.Output, error) {
	if def.Target == "" {
		return node.Output{}, &ConfigError{Message: "docker node " + def.ID + ": requires an image"}
	}

	image := e.resolveImage(def.Target)
	containerName := "conductor-" + def.ID + "-" + uuid.NewString()

	args := []string{"run", "--rm", "-i", "--name", containerName}
	for k, v := range def.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	if def.Workdir != "" {
		args = append(args, "-w", def.Workdir)
	}
	args = append(args, image)
	args = append(args, def.Command...)
	args = append(args, def.Args...)

	payload, err := json.Marshal(in)
	if err != nil {
		return node.Output{}, fmt.Errorf("docker node %s: marshalling input: %w", def.ID, err)
	}

	runner := e.runDocker
	if runner == nil {
		runner = runDockerCLI
	}
	stdout, stderr, exitCode, runErr := runner(ctx, args, payload)
	if ctx.Err() != nil {
		// Best-effort: ensure the container itself is gone, not just the
		// local `docker run` client process that exec.CommandContext
		// already killed.
		_ = Kill(containerName)
		return node.Output{}, ctx.Err()
	}
	if runErr != nil && exitCode == 0 {
		// The subprocess itself could not be started/communicated with;
		// this is a node runtime error, not a configuration error, since
		// the image/command were syntactically fine.
		return node.Output{
			Status: "error",
			Data:   nil,
			Metadata: map[string]any{
				"error": runErr.Error(),
			},
		}, nil
	}

	if exitCode != 0 {
		return node.Output{
			Status: "error",
			Data:   nil,
			Metadata: map[string]any{
				"stdout":    string(stdout),
				"stderr":    string(stderr),
				"exit_code": exitCode,
			},
		}, nil
	}

	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 {
		return node.Output{Status: "success", Data: nil, Metadata: map[string]any{}}, nil
	}

	var raw any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return node.Output{
			Status: "error",
			Data:   nil,
			Metadata: map[string]any{
				"stdout": string(stdout),
				"stderr": string(stderr),
				"error":  "invalid json",
			},
		}, nil
	}

	return node.Normalize(raw), nil
}

// Kill terminates a running container by the name this executor would
// have assigned it, via `docker kill` (spec.md §5 Cancellation).
func Kill(containerName string) error {
	return exec.Command("docker", "kill", containerName).Run()
}

func runDockerCLI(ctx context.Context, args []string, stdin []byte) ([]byte, []byte, int, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			return stdout.Bytes(), stderr.Bytes(), exitCode, nil
		}
		return stdout.Bytes(), stderr.Bytes(), 0, err
	}
	return stdout.Bytes(), stderr.Bytes(), 0, nil
}
