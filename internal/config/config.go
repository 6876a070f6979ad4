package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SandboxMode controls which side effects resolution sessions may perform
// without going through the approval gate.
type SandboxMode string

const (
	// SandboxReadOnly permits reads only; every mutation needs approval.
	SandboxReadOnly SandboxMode = "read-only"
	// SandboxWorkspaceWrite permits writes inside the workspace; shell and
	// network actions still need approval.
	SandboxWorkspaceWrite SandboxMode = "workspace-write"
	// SandboxFull permits everything. Approval requests are still answered,
	// but nothing is forced through the gate.
	SandboxFull SandboxMode = "full"
)

// AllowsWrites reports whether sessions may modify workspace files directly.
func (m SandboxMode) AllowsWrites() bool {
	return m == SandboxWorkspaceWrite || m == SandboxFull
}

// ProjectConfig holds project-level settings loaded from conflux.yml.
type ProjectConfig struct {
	Model          string      `yaml:"model,omitempty"`
	Sandbox        SandboxMode `yaml:"sandbox,omitempty"`
	Verbose        bool        `yaml:"verbose,omitempty"`
	MaxConcurrency int         `yaml:"maxConcurrency,omitempty"`
	VerifyCommand  string      `yaml:"verifyCommand,omitempty"`
	ExcludePaths   []string    `yaml:"excludePaths,omitempty"`
}

// Load attempts to read conflux.yml or conflux.yaml from the given
// directory. Returns a zero-value config (not an error) if no config file
// exists.
func Load(dir string) (*ProjectConfig, error) {
	for _, name := range []string{"conflux.yml", "conflux.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg ProjectConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	return &ProjectConfig{}, nil
}

// Normalize fills defaults for unset fields.
func (c *ProjectConfig) Normalize() {
	if c.Sandbox == "" {
		c.Sandbox = SandboxWorkspaceWrite
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 4
	}
}
