package scripted

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EditorVariant distinguishes the two editor generations a target CMS
// may present.
type EditorVariant string

const (
	EditorBlock   EditorVariant = "block"
	EditorClassic EditorVariant = "classic"
)

// LoginSelectors locate the sign-in form.
type LoginSelectors struct {
	Path         string `yaml:"path"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Submit       string `yaml:"submit"`
	LoggedInMark string `yaml:"logged_in_mark"`
}

// EditorSelectors locate title and body fields for one editor variant.
type EditorSelectors struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

// MediaSelectors locate the media upload flow.
type MediaSelectors struct {
	AddButton string `yaml:"add_button"`
	FileInput string `yaml:"file_input"`
	Confirm   string `yaml:"confirm"`
}

// MetadataSelectors locate the SEO plugin fields.
type MetadataSelectors struct {
	PanelToggle     string `yaml:"panel_toggle"`
	Slug            string `yaml:"slug"`
	MetaDescription string `yaml:"meta_description"`
	FocusKeyword    string `yaml:"focus_keyword"`
}

// PublishSelectors locate the publish flow and the resulting post link.
type PublishSelectors struct {
	PublishButton string `yaml:"publish_button"`
	Confirm       string `yaml:"confirm"`
	ViewLink      string `yaml:"view_link"`
}

// SelectorTable is the full fixed-selector map for one CMS skin. One
// scripted provider binary supports multiple skins by loading different
// tables from YAML.
type SelectorTable struct {
	Login       LoginSelectors    `yaml:"login"`
	NewPostPath string            `yaml:"new_post_path"`
	BlockProbe  string            `yaml:"block_probe"`
	Block       EditorSelectors   `yaml:"block"`
	Classic     EditorSelectors   `yaml:"classic"`
	Media       MediaSelectors    `yaml:"media"`
	Metadata    MetadataSelectors `yaml:"metadata"`
	Publish     PublishSelectors  `yaml:"publish"`
}

// Editor returns the selectors for the detected editor variant.
func (t SelectorTable) Editor(v EditorVariant) EditorSelectors {
	if v == EditorClassic {
		return t.Classic
	}
	return t.Block
}

// Validate checks that the fields every phase depends on are present.
func (t SelectorTable) Validate() error {
	checks := []struct {
		name  string
		value string
	}{
		{"login.username", t.Login.Username},
		{"login.password", t.Login.Password},
		{"login.submit", t.Login.Submit},
		{"new_post_path", t.NewPostPath},
		{"block.title", t.Block.Title},
		{"classic.title", t.Classic.Title},
		{"publish.publish_button", t.Publish.PublishButton},
	}
	for _, c := range checks {
		if c.value == "" {
			return fmt.Errorf("selector table missing %s", c.name)
		}
	}
	return nil
}

// DefaultTable is a WordPress-shaped selector table covering the block
// editor and the legacy classic editor.
func DefaultTable() SelectorTable {
	return SelectorTable{
		Login: LoginSelectors{
			Path:         "/wp-login.php",
			Username:     "#user_login",
			Password:     "#user_pass",
			Submit:       "#wp-submit",
			LoggedInMark: "#wpadminbar",
		},
		NewPostPath: "/wp-admin/post-new.php",
		BlockProbe:  ".block-editor-writing-flow",
		Block: EditorSelectors{
			Title: ".editor-post-title__input",
			Body:  ".block-editor-default-block-appender__content",
		},
		Classic: EditorSelectors{
			Title: "#title",
			Body:  "#content",
		},
		Media: MediaSelectors{
			AddButton: ".editor-document-tools__inserter-toggle",
			FileInput: ".media-modal input[type=file]",
			Confirm:   ".media-button-select",
		},
		Metadata: MetadataSelectors{
			PanelToggle:     "#yoast-seo-settings-toggle",
			Slug:            "#yoast-google-preview-slug-metabox",
			MetaDescription: "#yoast-google-preview-description-metabox",
			FocusKeyword:    "#focus-keyword-input-metabox",
		},
		Publish: PublishSelectors{
			PublishButton: ".editor-post-publish-panel__toggle",
			Confirm:       ".editor-post-publish-button",
			ViewLink:      ".post-publish-panel__postpublish-header a",
		},
	}
}

// LoadSelectorTable reads a selector table from YAML, falling back to
// the default for any top-level section the file omits.
func LoadSelectorTable(path string) (SelectorTable, error) {
	table := DefaultTable()
	data, err := os.ReadFile(path)
	if err != nil {
		return table, fmt.Errorf("reading selector table %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &table); err != nil {
		return table, fmt.Errorf("parsing selector table %q: %w", path, err)
	}
	if err := table.Validate(); err != nil {
		return table, fmt.Errorf("selector table %q: %w", path, err)
	}
	return table, nil
}
