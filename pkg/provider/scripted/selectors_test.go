package scripted_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressgate/pkg/provider/scripted"
)

func TestDefaultTable_Valid(t *testing.T) {
	table := scripted.DefaultTable()
	require.NoError(t, table.Validate())

	assert.Equal(t, "/wp-login.php", table.Login.Path)
	assert.Equal(t, "#user_login", table.Login.Username)
	assert.Equal(t, ".block-editor-writing-flow", table.BlockProbe)
}

func TestSelectorTable_Editor(t *testing.T) {
	table := scripted.DefaultTable()

	assert.Equal(t, ".editor-post-title__input", table.Editor(scripted.EditorBlock).Title)
	assert.Equal(t, "#title", table.Editor(scripted.EditorClassic).Title)
}

func TestSelectorTable_Validate(t *testing.T) {
	table := scripted.DefaultTable()
	table.Publish.PublishButton = ""

	err := table.Validate()
	assert.ErrorContains(t, err, "publish.publish_button")
}

func TestLoadSelectorTable_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "selectors.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
login:
  path: /ghost/signin
  username: "input[name=identification]"
  password: "input[name=password]"
  submit: "button[type=submit]"
  logged_in_mark: ".gh-nav"
new_post_path: /ghost/editor/post
`), 0644))

	table, err := scripted.LoadSelectorTable(path)
	require.NoError(t, err)

	assert.Equal(t, "/ghost/signin", table.Login.Path)
	assert.Equal(t, "input[name=identification]", table.Login.Username)
	assert.Equal(t, "/ghost/editor/post", table.NewPostPath)
	// Sections the file omits keep their defaults.
	assert.Equal(t, ".editor-post-publish-panel__toggle", table.Publish.PublishButton)
}

func TestLoadSelectorTable_MissingFile(t *testing.T) {
	_, err := scripted.LoadSelectorTable(filepath.Join(t.TempDir(), "absent.yml"))
	assert.ErrorContains(t, err, "reading selector table")
}

func TestLoadSelectorTable_InvalidTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "selectors.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
login:
  username: ""
`), 0644))

	_, err := scripted.LoadSelectorTable(path)
	assert.ErrorContains(t, err, "selector table missing login.username")
}
