package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/routa-dev/routa/internal/common/logger"
	"github.com/routa-dev/routa/internal/provider"
	"github.com/routa-dev/routa/internal/provider/acp"
)

// providerPreset is one entry in presets.yaml: an external agent binary
// (Claude Code, Codex, Gemini CLI, etc.) the router can dispatch CRAFTER or
// GATE turns to.
type providerPreset struct {
	Name                string   `yaml:"name"`
	Command             string   `yaml:"command"`
	Args                []string `yaml:"args"`
	Env                 []string `yaml:"env"`
	WorkDir             string   `yaml:"workDir"`
	AutoApprove         bool     `yaml:"autoApprove"`
	AllowedTools        []string `yaml:"allowedTools"`
	Priority            int      `yaml:"priority"`
	SupportsFileEditing bool     `yaml:"supportsFileEditing"`
	SupportsTerminal    bool     `yaml:"supportsTerminal"`
	SupportsToolCalling bool     `yaml:"supportsToolCalling"`
	MaxConcurrentAgents int      `yaml:"maxConcurrentAgents"`
}

type presetFile struct {
	Providers []providerPreset `yaml:"providers"`
}

// loadPresets reads a preset file if present; a missing file yields an
// empty, non-error preset set, since a deployment may rely solely on the
// built-in Anthropic provider for every role.
func loadPresets(path string) ([]providerPreset, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading preset file %s: %w", path, err)
	}
	var pf presetFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing preset file %s: %w", path, err)
	}
	return pf.Providers, nil
}

// buildACPProvider constructs the subprocess-backed ACP provider for one
// preset, with capability flags taken from the preset so the capability
// router can decide which roles it may serve.
func buildACPProvider(pp providerPreset, log *logger.Logger) *acp.Provider {
	caps := provider.Capabilities{
		Name:                pp.Name,
		SupportsStreaming:   true,
		SupportsInterrupt:   true,
		SupportsHealthCheck: true,
		SupportsFileEditing: pp.SupportsFileEditing,
		SupportsTerminal:    pp.SupportsTerminal,
		SupportsToolCalling: pp.SupportsToolCalling,
		MaxConcurrentAgents: pp.MaxConcurrentAgents,
		Priority:            pp.Priority,
	}
	preset := acp.Preset{
		Command:      pp.Command,
		Args:         pp.Args,
		Env:          pp.Env,
		AutoApprove:  pp.AutoApprove,
		AllowedTools: pp.AllowedTools,
		WorkDir:      pp.WorkDir,
	}
	return acp.New(caps, preset, log)
}
