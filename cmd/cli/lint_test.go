package cli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pressgate/cmd/cli"
)

const lintConfig = `name: launch-post
task:
  title: "Launch post"
  body: "Body text"
providers:
  - name: wp-main
    kind: scripted
    base_url: https://blog.example.test
    credential_ref: env:WP_MAIN
chain:
  - wp-main
`

func writeLintConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pressgate.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLint_ScriptedWithDefaultSelectorTable(t *testing.T) {
	path := writeLintConfig(t, lintConfig)

	cmd := &cli.LintCmd{
		Config:  path,
		Varfile: filepath.Join(filepath.Dir(path), "missing-vars.yml"),
	}
	require.NoError(t, cmd.Run())
}

func TestLint_MissingSelectorTableFile(t *testing.T) {
	path := writeLintConfig(t, `name: launch-post
task:
  title: "Launch post"
  body: "Body text"
providers:
  - name: wp-main
    kind: scripted
    base_url: https://blog.example.test
    credential_ref: env:WP_MAIN
    options:
      selector_table: no-such-table.yml
chain:
  - wp-main
`)

	cmd := &cli.LintCmd{
		Config:  path,
		Varfile: filepath.Join(filepath.Dir(path), "missing-vars.yml"),
	}
	err := cmd.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "selector table")
}

func TestLint_AgenticMissingAPIKey(t *testing.T) {
	path := writeLintConfig(t, `name: launch-post
task:
  title: "Launch post"
  body: "Body text"
providers:
  - name: agentic-backup
    kind: agentic
    base_url: https://blog.example.test
    credential_ref: env:WP_MAIN
chain:
  - agentic-backup
`)

	cmd := &cli.LintCmd{
		Config:  path,
		Varfile: filepath.Join(filepath.Dir(path), "missing-vars.yml"),
	}
	err := cmd.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "api_key")
}
