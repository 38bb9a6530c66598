package snapshot

import (
	"path/filepath"

	"github.com/confsync/confsync/internal/config"
)

// Blob names for the structured slots of a backup.
const (
	SettingsBlob = "settings.json"
	PackagesBlob = "packages.json"
)

// MainConfigFile is the editor's main settings store file. It may hold
// credentials, so listing it as an extra file triggers a warning abort.
const MainConfigFile = "config.json"

// wellKnownFile is a logical user file that may appear under a current or
// a legacy name, gated by its own sync toggle.
type wellKnownFile struct {
	primary string
	legacy  string
	enabled func(*config.Config) bool
}

var wellKnownFiles = []wellKnownFile{
	{"keymap.cson", "keymap.json", func(c *config.Config) bool { return c.SyncKeymap }},
	{"styles.less", "styles.css", func(c *config.Config) bool { return c.SyncStyles }},
	{"init.coffee", "init.js", func(c *config.Config) bool { return c.SyncInit }},
	{"snippets.cson", "snippets.json", func(c *config.Config) bool { return c.SyncSnippets }},
}

// placeholder renders the stand-in content for a well-known or extra file
// that is missing locally, so the file still round-trips through backup
// and restore as a recognizable entry. Comment syntax follows the file
// extension.
func placeholder(name string) string {
	msg := name + " (not found)"

	switch filepath.Ext(name) {
	case ".less", ".css":
		return "/* " + msg + " */\n"
	case ".js", ".json":
		return "// " + msg + "\n"
	default:
		return "# " + msg + "\n"
	}
}
