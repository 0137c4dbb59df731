package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"pressgate/pkg/provider"
	"pressgate/pkg/types"
)

// ProviderConfig is the YAML shape of one provider entry.
type ProviderConfig struct {
	Name          string            `yaml:"name"`
	Kind          string            `yaml:"kind"`
	BaseURL       string            `yaml:"base_url"`
	CredentialRef string            `yaml:"credential_ref"`
	Headless      *bool             `yaml:"headless,omitempty"`
	Timeout       string            `yaml:"timeout,omitempty"`
	Options       map[string]string `yaml:"options,omitempty"`
}

// OrchestratorConfig tunes retry, timeout, and concurrency behavior.
// Zero values fall back to built-in defaults.
type OrchestratorConfig struct {
	MaxSessions   int      `yaml:"max_sessions,omitempty"`
	MaxAttempts   int      `yaml:"max_attempts,omitempty"`
	Backoff       []string `yaml:"backoff,omitempty"`
	PhaseTimeout  string   `yaml:"phase_timeout,omitempty"`
	TaskTimeout   string   `yaml:"task_timeout,omitempty"`
	WebhookURL    string   `yaml:"webhook_url,omitempty"`
	ScreenshotDir string   `yaml:"screenshot_dir,omitempty"`
}

// RunConfig is the top-level YAML document handed to the CLI.
type RunConfig struct {
	Name         string               `yaml:"name"`
	Task         types.ContentPayload `yaml:"task"`
	Chain        []string             `yaml:"chain"`
	Providers    []ProviderConfig     `yaml:"providers"`
	Orchestrator OrchestratorConfig   `yaml:"orchestrator,omitempty"`
}

// LoadFromFile reads, parses, and structurally validates a run config.
// Variable interpolation happens afterwards via InjectVars.
func LoadFromFile(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	var rc RunConfig
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := ValidateStructure(&rc); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &rc, nil
}

// ResolvePath resolves a path relative to the config file's directory.
// Absolute paths pass through untouched.
func ResolvePath(configDir, pathFromYAML string) string {
	if filepath.IsAbs(pathFromYAML) {
		return pathFromYAML
	}
	return filepath.Join(configDir, pathFromYAML)
}

// ProviderConfigs converts the YAML provider entries into runtime
// provider configurations, resolving relative option paths against the
// config directory.
func (rc *RunConfig) ProviderConfigs(configDir string) ([]provider.Config, error) {
	out := make([]provider.Config, 0, len(rc.Providers))
	for _, pc := range rc.Providers {
		cfg := provider.Config{
			Name:          pc.Name,
			Kind:          provider.Kind(pc.Kind),
			BaseURL:       pc.BaseURL,
			CredentialRef: pc.CredentialRef,
			Headless:      true,
			Options:       map[string]string{},
		}
		if pc.Headless != nil {
			cfg.Headless = *pc.Headless
		}
		if pc.Timeout != "" {
			d, err := time.ParseDuration(pc.Timeout)
			if err != nil {
				return nil, fmt.Errorf("provider %q has invalid timeout %q: %w", pc.Name, pc.Timeout, err)
			}
			cfg.Timeout = d
		}
		for k, v := range pc.Options {
			cfg.Options[k] = v
		}
		if table, ok := cfg.Options["selector_table"]; ok {
			cfg.Options["selector_table"] = ResolvePath(configDir, table)
		}
		out = append(out, cfg)
	}
	return out, nil
}

// BackoffSchedule parses the orchestrator backoff entries into
// durations. An empty list returns nil so the caller's default applies.
func (oc *OrchestratorConfig) BackoffSchedule() ([]time.Duration, error) {
	if len(oc.Backoff) == 0 {
		return nil, nil
	}
	out := make([]time.Duration, 0, len(oc.Backoff))
	for i, raw := range oc.Backoff {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("backoff entry %d (%q) is not a duration: %w", i, raw, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Duration parses an optional duration field, returning fallback when
// the field is empty.
func Duration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	return time.ParseDuration(raw)
}
