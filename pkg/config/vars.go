package config

import (
	"fmt"
	"log"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// VarContext holds resolved variables from a varfile.
type VarContext map[string]string

// varRegex matches {{ varName }} placeholders.
var varRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9\._-]+)\s*\}\}`)

var envRe = regexp.MustCompile(`^\s*\{\{\s*env\.([A-Za-z0-9_]+)\s*}}\s*$`)

// ResolveVarfile loads a YAML varfile, parses it, and resolves
// {{ env.NAME }} values against the process environment.
func ResolveVarfile(path string) (VarContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading varfile %q: %w", path, err)
	}

	var rawVars map[string]string
	if err := yaml.Unmarshal(data, &rawVars); err != nil {
		return nil, fmt.Errorf("parsing varfile YAML from %q: %w", path, err)
	}

	resolvedCtx := make(VarContext, len(rawVars))
	for key, val := range rawVars {
		if envRe.MatchString(val) {
			match := envRe.FindStringSubmatch(val)
			envKey := match[1]
			envVal, exists := os.LookupEnv(envKey)
			if !exists {
				log.Printf("warning: environment variable %q not found for varfile key %q", envKey, key)
			}
			resolvedCtx[key] = envVal
		} else {
			resolvedCtx[key] = val
		}
	}
	return resolvedCtx, nil
}

// ResolveString replaces every {{ name }} placeholder in input. A
// placeholder of the form {{ env.NAME }} reads the environment
// directly; anything else must exist in the context.
func ResolveString(input string, vars VarContext) (string, error) {
	var firstErr error
	output := varRegex.ReplaceAllStringFunc(input, func(match string) string {
		if firstErr != nil {
			return match
		}
		key := varRegex.FindStringSubmatch(match)[1]

		if m := envRe.FindStringSubmatch(match); m != nil {
			return os.Getenv(m[1])
		}
		if val, ok := vars[key]; ok {
			return val
		}
		firstErr = fmt.Errorf("undefined variable: %s", key)
		return match
	})
	if firstErr != nil {
		return "", firstErr
	}
	return output, nil
}

// InjectVars resolves placeholders across every templated field of the
// run config and returns a deep copy, leaving the original untouched.
func InjectVars(rc *RunConfig, vars VarContext) (*RunConfig, error) {
	if rc == nil {
		return nil, fmt.Errorf("injecting vars into nil config")
	}

	var resolved RunConfig
	b, _ := yaml.Marshal(rc)
	if err := yaml.Unmarshal(b, &resolved); err != nil {
		return nil, fmt.Errorf("deep copying config for resolution: %w", err)
	}

	var err error
	resolve := func(field, in string) string {
		if err != nil {
			return in
		}
		var out string
		if out, err = ResolveString(in, vars); err != nil {
			err = fmt.Errorf("resolving %s: %w", field, err)
			return in
		}
		return out
	}

	resolved.Task.Title = resolve("task.title", resolved.Task.Title)
	resolved.Task.Body = resolve("task.body", resolved.Task.Body)
	for i := range resolved.Task.MediaPaths {
		resolved.Task.MediaPaths[i] = resolve(fmt.Sprintf("task.media[%d]", i), resolved.Task.MediaPaths[i])
	}
	for k, v := range resolved.Task.Metadata {
		resolved.Task.Metadata[k] = resolve("task.metadata."+k, v)
	}

	for i := range resolved.Providers {
		p := &resolved.Providers[i]
		p.BaseURL = resolve(fmt.Sprintf("providers[%s].base_url", p.Name), p.BaseURL)
		p.CredentialRef = resolve(fmt.Sprintf("providers[%s].credential_ref", p.Name), p.CredentialRef)
		for k, v := range p.Options {
			p.Options[k] = resolve(fmt.Sprintf("providers[%s].options.%s", p.Name, k), v)
		}
	}

	resolved.Orchestrator.WebhookURL = resolve("orchestrator.webhook_url", resolved.Orchestrator.WebhookURL)
	resolved.Orchestrator.ScreenshotDir = resolve("orchestrator.screenshot_dir", resolved.Orchestrator.ScreenshotDir)

	if err != nil {
		return nil, err
	}
	return &resolved, nil
}
