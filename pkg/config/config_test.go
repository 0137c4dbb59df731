package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressgate/pkg/config"
	"pressgate/pkg/provider"
)

const validConfig = `
name: launch-post
task:
  title: "Launch announcement"
  body: "<p>We are live.</p>"
  media:
    - assets/hero.png
  metadata:
    slug: launch-announcement
chain:
  - wp-main
  - wp-backup
providers:
  - name: wp-main
    kind: scripted
    base_url: https://blog.example.test
    credential_ref: env:WP_MAIN
    options:
      selector_table: selectors.yml
  - name: wp-backup
    kind: agentic
    base_url: https://blog.example.test
    credential_ref: env:WP_MAIN
    headless: false
    timeout: 45s
    options:
      api_key: "{{ env.MODEL_API_KEY }}"
orchestrator:
  max_sessions: 4
  max_attempts: 2
  backoff: [1s, 5s]
  phase_timeout: 90s
  webhook_url: https://hooks.example.test/pressgate
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pressgate.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	rc, err := config.LoadFromFile(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "launch-post", rc.Name)
	assert.Equal(t, "Launch announcement", rc.Task.Title)
	assert.Equal(t, []string{"wp-main", "wp-backup"}, rc.Chain)
	require.Len(t, rc.Providers, 2)
	assert.Equal(t, "scripted", rc.Providers[0].Kind)
	assert.Equal(t, 4, rc.Orchestrator.MaxSessions)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := config.LoadFromFile(filepath.Join(t.TempDir(), "absent.yml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestValidateStructure(t *testing.T) {
	base := func() *config.RunConfig {
		rc, err := config.LoadFromFile(writeConfig(t, validConfig))
		require.NoError(t, err)
		return rc
	}

	tests := []struct {
		name    string
		mutate  func(rc *config.RunConfig)
		wantErr string
	}{
		{
			name:    "missing name",
			mutate:  func(rc *config.RunConfig) { rc.Name = "" },
			wantErr: "missing 'name'",
		},
		{
			name:    "missing title",
			mutate:  func(rc *config.RunConfig) { rc.Task.Title = "" },
			wantErr: "missing 'title'",
		},
		{
			name:    "missing body",
			mutate:  func(rc *config.RunConfig) { rc.Task.Body = "" },
			wantErr: "missing 'body'",
		},
		{
			name:    "no providers",
			mutate:  func(rc *config.RunConfig) { rc.Providers = nil },
			wantErr: "declares no providers",
		},
		{
			name:    "duplicate provider",
			mutate:  func(rc *config.RunConfig) { rc.Providers[1].Name = "wp-main" },
			wantErr: "duplicate provider name",
		},
		{
			name:    "invalid kind",
			mutate:  func(rc *config.RunConfig) { rc.Providers[0].Kind = "manual" },
			wantErr: "invalid kind",
		},
		{
			name:    "missing base url",
			mutate:  func(rc *config.RunConfig) { rc.Providers[0].BaseURL = "" },
			wantErr: "missing 'base_url'",
		},
		{
			name:    "missing credential ref",
			mutate:  func(rc *config.RunConfig) { rc.Providers[0].CredentialRef = "" },
			wantErr: "missing 'credential_ref'",
		},
		{
			name:    "empty chain",
			mutate:  func(rc *config.RunConfig) { rc.Chain = nil },
			wantErr: "missing 'chain'",
		},
		{
			name:    "chain references unknown provider",
			mutate:  func(rc *config.RunConfig) { rc.Chain = []string{"wp-main", "ghost"} },
			wantErr: "unknown provider",
		},
		{
			name:    "chain repeats provider",
			mutate:  func(rc *config.RunConfig) { rc.Chain = []string{"wp-main", "wp-main"} },
			wantErr: "twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := base()
			tt.mutate(rc)
			err := config.ValidateStructure(rc)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestProviderConfigs(t *testing.T) {
	rc, err := config.LoadFromFile(writeConfig(t, validConfig))
	require.NoError(t, err)

	configs, err := rc.ProviderConfigs("/etc/pressgate")
	require.NoError(t, err)
	require.Len(t, configs, 2)

	main := configs[0]
	assert.Equal(t, provider.KindScripted, main.Kind)
	assert.True(t, main.Headless, "headless defaults to true")
	assert.Equal(t, "/etc/pressgate/selectors.yml", main.Options["selector_table"])

	backup := configs[1]
	assert.Equal(t, provider.KindAgentic, backup.Kind)
	assert.False(t, backup.Headless)
	assert.Equal(t, 45*time.Second, backup.Timeout)
}

func TestProviderConfigs_InvalidTimeout(t *testing.T) {
	rc, err := config.LoadFromFile(writeConfig(t, validConfig))
	require.NoError(t, err)
	rc.Providers[0].Timeout = "soon"

	_, err = rc.ProviderConfigs(".")
	assert.ErrorContains(t, err, "invalid timeout")
}

func TestBackoffSchedule(t *testing.T) {
	oc := config.OrchestratorConfig{Backoff: []string{"1s", "5s", "30s"}}
	got, err := oc.BackoffSchedule()
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}, got)

	empty, err := (&config.OrchestratorConfig{}).BackoffSchedule()
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = (&config.OrchestratorConfig{Backoff: []string{"later"}}).BackoffSchedule()
	assert.ErrorContains(t, err, "not a duration")
}

func TestResolveVarfile(t *testing.T) {
	t.Setenv("PRESSGATE_TEST_TOKEN", "tok-123")

	path := filepath.Join(t.TempDir(), "pgvars.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
site_url: https://blog.example.test
model_key: "{{ env.PRESSGATE_TEST_TOKEN }}"
`), 0644))

	vars, err := config.ResolveVarfile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://blog.example.test", vars["site_url"])
	assert.Equal(t, "tok-123", vars["model_key"])
}

func TestResolveString(t *testing.T) {
	vars := config.VarContext{"site": "https://blog.example.test"}

	got, err := config.ResolveString("base is {{ site }}", vars)
	require.NoError(t, err)
	assert.Equal(t, "base is https://blog.example.test", got)

	_, err = config.ResolveString("{{ missing }}", vars)
	assert.ErrorContains(t, err, "undefined variable")
}

func TestInjectVars(t *testing.T) {
	t.Setenv("MODEL_API_KEY", "sk-test")

	rc, err := config.LoadFromFile(writeConfig(t, validConfig))
	require.NoError(t, err)

	resolved, err := config.InjectVars(rc, config.VarContext{})
	require.NoError(t, err)

	assert.Equal(t, "sk-test", resolved.Providers[1].Options["api_key"])
	// The original is untouched.
	assert.Equal(t, "{{ env.MODEL_API_KEY }}", rc.Providers[1].Options["api_key"])
}

func TestInjectVars_UndefinedVariable(t *testing.T) {
	rc, err := config.LoadFromFile(writeConfig(t, validConfig))
	require.NoError(t, err)
	rc.Task.Title = "{{ nope }}"

	_, err = config.InjectVars(rc, config.VarContext{})
	assert.ErrorContains(t, err, "undefined variable")
}
