package kernel

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/ferrous-os/ferrous/internal/capability"
	"github.com/ferrous-os/ferrous/internal/shared/id"
)

// Policy is the boot-time description of the initial process set and
// the privileges each one starts with. Everything else a process ever
// does flows from capabilities granted or derived from these.
type Policy struct {
	Processes []PolicyProcess `yaml:"processes"`
}

// PolicyProcess declares one boot process.
type PolicyProcess struct {
	Name       string   `yaml:"name"`
	SpaceLimit int      `yaml:"space_limit"`
	System     []string `yaml:"system"`
}

// LoadPolicy reads and parses a policy file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses a YAML policy document and validates it.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the policy for duplicate names and unknown system
// capability names.
func (p *Policy) Validate() error {
	seen := make(map[string]struct{}, len(p.Processes))
	for _, proc := range p.Processes {
		if proc.Name == "" {
			return fmt.Errorf("policy: process with empty name")
		}
		if _, dup := seen[proc.Name]; dup {
			return fmt.Errorf("policy: duplicate process %q", proc.Name)
		}
		seen[proc.Name] = struct{}{}
		for _, sys := range proc.System {
			if _, ok := capability.ParseSystemType(sys); !ok {
				return fmt.Errorf("policy: process %q: unknown system capability %q", proc.Name, sys)
			}
		}
	}
	return nil
}

// ApplyPolicy creates the boot processes and mints their System
// capabilities, returning name to pid assignments.
func (k *Kernel) ApplyPolicy(p *Policy) (map[string]id.ProcessID, error) {
	pids := make(map[string]id.ProcessID, len(p.Processes))
	for _, decl := range p.Processes {
		proc := k.CreateProcess(decl.Name, decl.SpaceLimit)
		pids[decl.Name] = proc.ID()
		for _, sys := range decl.System {
			op, _ := capability.ParseSystemType(sys)
			if _, err := k.MintSystem(proc.ID(), op); err != nil {
				return nil, fmt.Errorf("policy: process %q: mint %s: %w", decl.Name, sys, err)
			}
		}
	}
	return pids, nil
}
