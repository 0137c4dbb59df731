package config

import (
	"fmt"

	"pressgate/pkg/provider"
)

// ValidateStructure checks fields at the config level: the run name,
// the task payload, provider uniqueness, and chain references.
func ValidateStructure(rc *RunConfig) error {
	if rc.Name == "" {
		return fmt.Errorf("config is missing 'name'")
	}
	if rc.Task.Title == "" {
		return fmt.Errorf("task is missing 'title'")
	}
	if rc.Task.Body == "" {
		return fmt.Errorf("task is missing 'body'")
	}
	if len(rc.Providers) == 0 {
		return fmt.Errorf("config declares no providers")
	}

	validKinds := map[string]bool{
		string(provider.KindScripted): true,
		string(provider.KindAgentic):  true,
	}

	providerNames := make(map[string]bool)
	for i, p := range rc.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider %d is missing 'name'", i)
		}
		if providerNames[p.Name] {
			return fmt.Errorf("duplicate provider name: %q", p.Name)
		}
		providerNames[p.Name] = true

		if !validKinds[p.Kind] {
			return fmt.Errorf("provider %q has invalid kind %q", p.Name, p.Kind)
		}
		if p.BaseURL == "" {
			return fmt.Errorf("provider %q is missing 'base_url'", p.Name)
		}
		if p.CredentialRef == "" {
			return fmt.Errorf("provider %q is missing 'credential_ref'", p.Name)
		}
	}

	if len(rc.Chain) == 0 {
		return fmt.Errorf("config is missing 'chain'")
	}
	seen := make(map[string]bool)
	for _, name := range rc.Chain {
		if !providerNames[name] {
			return fmt.Errorf("chain references unknown provider %q", name)
		}
		if seen[name] {
			return fmt.Errorf("chain lists provider %q twice", name)
		}
		seen[name] = true
	}

	return nil
}
