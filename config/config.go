// Package config loads the agent registry: a YAML file declaring which
// coding agents exist, how to launch them, and which host tools each one
// may use.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/codetide/agent-bridge/toolspec"
)

// AgentConfig declares one launchable agent.
type AgentConfig struct {
	ID      string            `yaml:"id"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Model   string            `yaml:"model,omitempty"`
	Tools   []string          `yaml:"tools,omitempty"`
}

// File is the parsed agent registry.
type File struct {
	Agents []AgentConfig `yaml:"agents"`
}

// Load reads and validates the registry at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates registry bytes.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid agent registry: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Agent returns the declared agent with the given id.
func (f *File) Agent(id string) (*AgentConfig, bool) {
	for i := range f.Agents {
		if f.Agents[i].ID == id {
			return &f.Agents[i], true
		}
	}
	return nil, false
}

func (f *File) validate() error {
	if len(f.Agents) == 0 {
		return fmt.Errorf("agent registry declares no agents")
	}

	seen := make(map[string]bool, len(f.Agents))
	for _, a := range f.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent with empty id")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true

		if a.Command == "" {
			return fmt.Errorf("agent %q has no command", a.ID)
		}
		for _, tool := range a.Tools {
			if !toolspec.Known(tool) {
				return fmt.Errorf("agent %q enables unknown tool %q", a.ID, tool)
			}
		}
	}
	return nil
}
