// Package config loads GlobalConfig and flow definition files, dispatching
// on file extension across the three accepted dialects (JSON, YAML, TOML)
// exactly as the original Python loader does.
//
// Grounded in original_source/conductor/config.py; the multi-format
// dispatch mirrors _load_mapping_from_path, using gopkg.in/yaml.v3 (the
// teacher's own YAML dependency) and github.com/pelletier/go-toml/v2 for
// the TOML dialect.
package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"encoding/json"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/G14MB0/conductor/internal/node"
)

var flowFileExtensions = map[string]bool{".yaml": true, ".yml": true, ".json": true, ".toml": true}

// RemoteLoggingConfig describes where and how to ship log records
// remotely. Enabled and Verify default to true; a nil pointer means the
// field was absent from the file, not explicitly set false.
type RemoteLoggingConfig struct {
	Target  string            `json:"target" yaml:"target" toml:"target"`
	Method  string            `json:"method" yaml:"method" toml:"method"`
	Headers map[string]string `json:"headers" yaml:"headers" toml:"headers"`
	Enabled *bool             `json:"enabled" yaml:"enabled" toml:"enabled"`
	Verify  *bool             `json:"verify" yaml:"verify" toml:"verify"`
}

// IsEnabled reports whether remote logging is active (default true).
func (r *RemoteLoggingConfig) IsEnabled() bool { return r == nil || r.Enabled == nil || *r.Enabled }

// ShouldVerify reports whether TLS verification applies (default true).
func (r *RemoteLoggingConfig) ShouldVerify() bool { return r.Verify == nil || *r.Verify }

// RepositoryLocation names a place resources or code can be fetched from:
// a filesystem path, an http(s) URL, or a git remote.
type RepositoryLocation struct {
	Name      string            `json:"-" yaml:"-" toml:"-"`
	Kind      string            `json:"type" yaml:"type" toml:"type"`
	Location  string            `json:"location" yaml:"location" toml:"location"`
	Reference string            `json:"reference" yaml:"reference" toml:"reference"`
	Subpath   string            `json:"subpath" yaml:"subpath" toml:"subpath"`
	Headers   map[string]string `json:"headers" yaml:"headers" toml:"headers"`
}

var allowedRepositoryKinds = map[string]bool{"filesystem": true, "http": true, "git": true}

// GlobalConfig is the runtime configuration shared across a whole flow run.
type GlobalConfig struct {
	Env                 map[string]string             `json:"env" yaml:"env" toml:"env"`
	SharedState         map[string]any                `json:"shared_state" yaml:"shared_state" toml:"shared_state"`
	RemoteLogging       *RemoteLoggingConfig          `json:"remote_logging" yaml:"remote_logging" toml:"remote_logging"`
	ContainerRegistries []string                      `json:"container_registries" yaml:"container_registries" toml:"container_registries"`
	MaxConcurrency      int                           `json:"max_concurrency" yaml:"max_concurrency" toml:"max_concurrency"`
	ProcessPoolSize     int                           `json:"process_pool_size" yaml:"process_pool_size" toml:"process_pool_size"`
	Dependencies        []string                      `json:"dependencies" yaml:"dependencies" toml:"dependencies"`
	ResourceLocations   map[string]RepositoryLocation `json:"resource_locations" yaml:"resource_locations" toml:"resource_locations"`
	CodeLocations       map[string]RepositoryLocation `json:"code_locations" yaml:"code_locations" toml:"code_locations"`
	ResourceCacheDir    string                        `json:"resource_cache_dir" yaml:"resource_cache_dir" toml:"resource_cache_dir"`
}

// NodeDef is the on-disk shape of a node, before resolution into
// node.Definition (executor-kind parsing, timeout unit conversion).
type NodeDef struct {
	ID             string              `json:"id" yaml:"id" toml:"id"`
	Name           string              `json:"name" yaml:"name" toml:"name"`
	Executor       string              `json:"executor" yaml:"executor" toml:"executor"`
	Callable       string              `json:"callable" yaml:"callable" toml:"callable"`
	Image          string              `json:"image" yaml:"image" toml:"image"`
	Command        []string            `json:"command" yaml:"command" toml:"command"`
	Args           []string            `json:"args" yaml:"args" toml:"args"`
	Env            map[string]string   `json:"env" yaml:"env" toml:"env"`
	Transitions    map[string][]string `json:"transitions" yaml:"transitions" toml:"transitions"`
	TimeoutSeconds *float64            `json:"timeout" yaml:"timeout" toml:"timeout"`
	Workdir        string              `json:"workdir" yaml:"workdir" toml:"workdir"`
	Description    string              `json:"description" yaml:"description" toml:"description"`
}

// FlowDef is the on-disk shape of a whole flow file.
type FlowDef struct {
	Name        string             `json:"name" yaml:"name" toml:"name"`
	Start       []string           `json:"start" yaml:"start" toml:"start"`
	Nodes       map[string]NodeDef `json:"nodes" yaml:"nodes" toml:"nodes"`
	Description string             `json:"description" yaml:"description" toml:"description"`
	Metadata    map[string]any     `json:"metadata" yaml:"metadata" toml:"metadata"`
}

// decodeFile reads path and unmarshals it into v, dispatching on
// extension: .yaml/.yml -> yaml.v3, .toml -> go-toml/v2, anything else
// (including .json) -> encoding/json.
func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	case ".toml":
		return toml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}

// LoadGlobalConfig reads and normalises a GlobalConfig file.
func LoadGlobalConfig(path string) (*GlobalConfig, error) {
	cfg := &GlobalConfig{}
	if err := decodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("loading global config %s: %w", path, err)
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.ProcessPoolSize <= 0 {
		cfg.ProcessPoolSize = 1
	}
	if cfg.RemoteLogging != nil && cfg.RemoteLogging.Target == "" {
		return nil, fmt.Errorf("loading global config %s: remote_logging requires a 'target'", path)
	}
	if cfg.RemoteLogging != nil && cfg.RemoteLogging.Method == "" {
		cfg.RemoteLogging.Method = "POST"
	}
	for name, loc := range cfg.ResourceLocations {
		if err := normaliseLocation(name, &loc); err != nil {
			return nil, fmt.Errorf("loading global config %s: %w", path, err)
		}
		cfg.ResourceLocations[name] = loc
	}
	for name, loc := range cfg.CodeLocations {
		if err := normaliseLocation(name, &loc); err != nil {
			return nil, fmt.Errorf("loading global config %s: %w", path, err)
		}
		cfg.CodeLocations[name] = loc
	}
	return cfg, nil
}

func normaliseLocation(name string, loc *RepositoryLocation) error {
	loc.Name = name
	if loc.Kind == "" {
		loc.Kind = "filesystem"
	}
	loc.Kind = strings.ToLower(loc.Kind)
	if !allowedRepositoryKinds[loc.Kind] {
		return fmt.Errorf("repository location %q uses unsupported type %q", name, loc.Kind)
	}
	if loc.Location == "" {
		return fmt.Errorf("repository location %q requires a 'location'", name)
	}
	return nil
}

// ResolveImage prefixes image with the first configured container
// registry, unless it already carries a registry host or scheme.
func (c *GlobalConfig) ResolveImage(image string) string {
	if strings.Contains(image, "://") {
		return image
	}
	if host := strings.SplitN(image, "/", 2)[0]; strings.Contains(host, ".") || strings.Contains(host, ":") {
		return image
	}
	if len(c.ContainerRegistries) == 0 {
		return image
	}
	return strings.TrimRight(c.ContainerRegistries[0], "/") + "/" + image
}

// LoadFlowDef reads a flow file and fills in each node's id from its map
// key.
func LoadFlowDef(path string) (*FlowDef, error) {
	fd := &FlowDef{}
	if err := decodeFile(path, fd); err != nil {
		return nil, fmt.Errorf("loading flow %s: %w", path, err)
	}
	if fd.Name == "" {
		fd.Name = "flow"
	}
	if len(fd.Nodes) == 0 {
		return nil, fmt.Errorf("loading flow %s: 'nodes' is required", path)
	}
	for id, n := range fd.Nodes {
		n.ID = id
		fd.Nodes[id] = n
	}
	return fd, nil
}

// LoadFlowDir reads every flow file (.yaml/.yml/.json/.toml) under dir,
// recursively, keyed by each flow's Name. Grounded in
// herki-piper/internal/loader.LoadFlows, extended to the three accepted
// dialects instead of YAML only.
func LoadFlowDir(dir string) (map[string]*FlowDef, error) {
	flows := make(map[string]*FlowDef)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !flowFileExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		fd, err := LoadFlowDef(path)
		if err != nil {
			return err
		}
		if _, exists := flows[fd.Name]; exists {
			return fmt.Errorf("duplicate flow name %q in %s", fd.Name, path)
		}
		flows[fd.Name] = fd
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading flows from %s: %w", dir, err)
	}
	return flows, nil
}

// ToFlow resolves a FlowDef into the node.Flow the engine runs, validating
// the graph's invariants along the way.
func (fd *FlowDef) ToFlow() (node.Flow, error) {
	nodes := make(map[string]node.Definition, len(fd.Nodes))
	for id, n := range fd.Nodes {
		kind := node.ExecutorKind(strings.ToLower(n.Executor))
		if kind == "" {
			kind = node.ExecutorInline
		}
		target := n.Callable
		if kind == node.ExecutorDocker {
			target = n.Image
		}
		var timeout *time.Duration
		if n.TimeoutSeconds != nil {
			d := time.Duration(*n.TimeoutSeconds * float64(time.Second))
			timeout = &d
		}
		nodes[id] = node.Definition{
			ID:          id,
			Executor:    kind,
			Target:      target,
			Timeout:     timeout,
			Env:         n.Env,
			Transitions: n.Transitions,
			Command:     n.Command,
			Args:        n.Args,
			Workdir:     n.Workdir,
			Description: n.Description,
		}
	}

	f := node.Flow{Name: fd.Name, Start: fd.Start, Nodes: nodes}
	if err := f.Validate(); err != nil {
		return node.Flow{}, err
	}
	return f, nil
}
