package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G14MB0/conductor/internal/config"
	"github.com/G14MB0/conductor/internal/node"
)

const flowYAML = `
name: demo
start: [start]
nodes:
  start:
    executor: inline
    callable: pkg:start
    timeout: 1.5
    transitions:
      success: [finish]
  finish:
    executor: inline
    callable: pkg:finish
`

const flowJSON = `{
  "name": "demo",
  "start": ["start"],
  "nodes": {
    "start": {"executor": "inline", "callable": "pkg:start", "transitions": {"success": ["finish"]}},
    "finish": {"executor": "inline", "callable": "pkg:finish"}
  }
}`

const flowTOML = `
name = "demo"
start = ["start"]

[nodes.start]
executor = "inline"
callable = "pkg:start"
[nodes.start.transitions]
success = ["finish"]

[nodes.finish]
executor = "inline"
callable = "pkg:finish"
`

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadFlowDefAcrossDialects(t *testing.T) {
	for _, tc := range []struct {
		name, file, contents string
	}{
		{"yaml", "flow.yaml", flowYAML},
		{"json", "flow.json", flowJSON},
		{"toml", "flow.toml", flowTOML},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTemp(t, tc.file, tc.contents)
			fd, err := config.LoadFlowDef(path)
			require.NoError(t, err)
			assert.Equal(t, "demo", fd.Name)

			f, err := fd.ToFlow()
			require.NoError(t, err)
			assert.Equal(t, []string{"finish"}, f.Nodes["start"].Transitions["success"])
			assert.Equal(t, node.ExecutorInline, f.Nodes["start"].Executor)
			assert.Equal(t, "pkg:start", f.Nodes["start"].Target)
		})
	}
}

func TestLoadFlowDefMissingNodesErrors(t *testing.T) {
	path := writeTemp(t, "flow.yaml", "name: empty\nstart: [a]\n")
	_, err := config.LoadFlowDef(path)
	require.Error(t, err)
}

func TestLoadGlobalConfigDefaults(t *testing.T) {
	path := writeTemp(t, "global.yaml", "env:\n  FOO: bar\n")
	cfg, err := config.LoadGlobalConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, 1, cfg.ProcessPoolSize)
	assert.Equal(t, "bar", cfg.Env["FOO"])
}

func TestLoadGlobalConfigRemoteLoggingRequiresTarget(t *testing.T) {
	path := writeTemp(t, "global.yaml", "remote_logging:\n  method: POST\n")
	_, err := config.LoadGlobalConfig(path)
	require.Error(t, err)
}

func TestResolveImage(t *testing.T) {
	cfg := &config.GlobalConfig{ContainerRegistries: []string{"registry.example.com/team/"}}
	assert.Equal(t, "registry.example.com/team/worker", cfg.ResolveImage("worker"))
	assert.Equal(t, "docker.io/library/alpine", cfg.ResolveImage("docker.io/library/alpine"))
	assert.Equal(t, "ghcr.io/org/app:latest", cfg.ResolveImage("ghcr.io/org/app:latest"))
}

func TestLoadGlobalConfigResourceLocations(t *testing.T) {
	path := writeTemp(t, "global.yaml", `
resource_locations:
  assets:
    type: git
    location: https://example.com/assets.git
    reference: main
`)
	cfg, err := config.LoadGlobalConfig(path)
	require.NoError(t, err)
	loc := cfg.ResourceLocations["assets"]
	assert.Equal(t, "assets", loc.Name)
	assert.Equal(t, "git", loc.Kind)
	assert.Equal(t, "main", loc.Reference)
}

func TestLoadFlowDirLoadsEveryDialect(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(flowYAML), 0o644))
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "b.json"), []byte(strings.Replace(flowJSON, `"demo"`, `"demo-2"`, 1)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "c.toml"), []byte(strings.Replace(flowTOML, `"demo"`, `"demo-3"`, 1)), 0o644))

	flows, err := config.LoadFlowDir(dir)
	require.NoError(t, err)
	assert.Len(t, flows, 3)
	assert.Contains(t, flows, "demo")
	assert.Contains(t, flows, "demo-2")
	assert.Contains(t, flows, "demo-3")
}

func TestLoadFlowDirRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(flowYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(flowJSON), 0o644))

	_, err := config.LoadFlowDir(dir)
	require.Error(t, err)
}

func TestLoadGlobalConfigRejectsUnknownLocationKind(t *testing.T) {
	path := writeTemp(t, "global.yaml", `
resource_locations:
  assets:
    type: ftp
    location: ftp://example.com
`)
	_, err := config.LoadGlobalConfig(path)
	require.Error(t, err)
}
