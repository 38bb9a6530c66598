package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for confsync. Scalar settings come from
// environment variables; list-valued settings (extra files, globs, the
// blacklist) can additionally come from an optional YAML profile file, with
// entries from both sources unioned.
type Config struct {
	// GitHub credentials and backup location.
	PersonalAccessToken string `env:"GITHUB_TOKEN"`
	GistID              string `env:"GIST_ID"`
	GistDescription     string `env:"GIST_DESCRIPTION" envDefault:"editor settings"`

	// EditorHome is the editor configuration directory being synced.
	// Defaults to ~/.editor.
	EditorHome string `env:"EDITOR_HOME"`

	// PackageCommand is the package manager binary used to install and
	// uninstall editor packages.
	PackageCommand string `env:"PACKAGE_COMMAND" envDefault:"apm"`

	// BundledPackagesDir holds packages shipped with the editor itself.
	// Packages resolving into it count as bundled. Empty disables the check.
	BundledPackagesDir string `env:"BUNDLED_PACKAGES_DIR"`

	// Category toggles.
	SyncSettings bool `env:"SYNC_SETTINGS" envDefault:"true"`
	SyncPackages bool `env:"SYNC_PACKAGES" envDefault:"true"`
	SyncThemes   bool `env:"SYNC_THEMES" envDefault:"true"`
	SyncKeymap   bool `env:"SYNC_KEYMAP" envDefault:"true"`
	SyncStyles   bool `env:"SYNC_STYLES" envDefault:"true"`
	SyncInit     bool `env:"SYNC_INIT" envDefault:"true"`
	SyncSnippets bool `env:"SYNC_SNIPPETS" envDefault:"true"`

	// OnlyCommunityPackages excludes packages bundled with the editor
	// from snapshots.
	OnlyCommunityPackages bool `env:"ONLY_COMMUNITY_PACKAGES" envDefault:"false"`

	// RemoveUnfamiliarFiles treats "absent locally" as authoritative:
	// backups drop files missing locally, restores delete local files
	// absent from the backup, and missing well-known files are omitted
	// instead of round-tripped as placeholder comments.
	RemoveUnfamiliarFiles bool `env:"REMOVE_UNFAMILIAR_FILES" envDefault:"false"`

	// RemoveObsoletePackages uninstalls local packages absent from the
	// backup during restore.
	RemoveObsoletePackages bool `env:"REMOVE_OBSOLETE_PACKAGES" envDefault:"false"`

	// WarnSensitiveFiles aborts snapshot construction when the main
	// settings file is listed as an extra file, instead of silently
	// backing up a file that may contain credentials.
	WarnSensitiveFiles bool `env:"WARN_SENSITIVE_FILES" envDefault:"true"`

	// List-valued settings. Env entries are comma separated and unioned
	// with the profile file's entries.
	ExtraFiles      []string `env:"EXTRA_FILES" envSeparator:","`
	ExtraFilesGlob  []string `env:"EXTRA_FILES_GLOB" envSeparator:","`
	IgnoreFilesGlob []string `env:"IGNORE_FILES_GLOB" envSeparator:","`
	BlacklistedKeys []string `env:"BLACKLISTED_KEYS" envSeparator:","`

	// ProfilePath points at the optional YAML profile file. Defaults to
	// ~/.config/confsync/profile.yaml.
	ProfilePath string `env:"CONFSYNC_PROFILE"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// profile is the YAML shape of the optional profile file.
type profile struct {
	ExtraFiles      []string `yaml:"extra_files"`
	ExtraFilesGlob  []string `yaml:"extra_files_glob"`
	IgnoreFilesGlob []string `yaml:"ignore_files_glob"`
	BlacklistedKeys []string `yaml:"blacklisted_keys"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the access token to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables and the optional
// profile file. It first attempts to load a .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.LoadProfile(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults fills in the home-relative defaults and resolves the
// editor directory to an absolute path. Downstream path checks rely on
// string prefix comparison, which only works reliably with absolute paths.
func (c *Config) applyDefaults() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	if c.EditorHome == "" {
		c.EditorHome = filepath.Join(home, ".editor")
	}

	absHome, err := filepath.Abs(c.EditorHome)
	if err != nil {
		return fmt.Errorf("resolving editor home to absolute path: %w", err)
	}

	c.EditorHome = absHome

	if c.ProfilePath == "" {
		c.ProfilePath = filepath.Join(home, ".config", "confsync", "profile.yaml")
	}

	return nil
}

// LoadProfile merges the optional YAML profile into the list-valued
// settings. A missing file is fine; a malformed one is an error.
func (c *Config) LoadProfile() error {
	data, err := os.ReadFile(c.ProfilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("reading profile %s: %w", c.ProfilePath, err)
	}

	var p profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parsing profile %s: %w", c.ProfilePath, err)
	}

	c.ExtraFiles = union(c.ExtraFiles, p.ExtraFiles)
	c.ExtraFilesGlob = union(c.ExtraFilesGlob, p.ExtraFilesGlob)
	c.IgnoreFilesGlob = union(c.IgnoreFilesGlob, p.IgnoreFilesGlob)
	c.BlacklistedKeys = union(c.BlacklistedKeys, p.BlacklistedKeys)

	return nil
}

// union appends entries of b not already present in a, preserving order.
func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[s] = struct{}{}
	}

	out := a
	for _, s := range b {
		if _, dup := seen[s]; dup {
			continue
		}

		seen[s] = struct{}{}
		out = append(out, s)
	}

	return out
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
