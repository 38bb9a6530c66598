package host

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/confsync/confsync/internal/config"
	"github.com/confsync/confsync/internal/snapshot"
)

// PackageManager enumerates the editor's installed packages from its
// packages directory and shells out to the package command for installs
// and removals. It implements snapshot.PackageManager.
type PackageManager struct {
	packagesDir string
	bundledDir  string
	command     string
}

// NewPackageManager creates a manager for the packages directory under
// the editor home.
func NewPackageManager(cfg *config.Config) *PackageManager {
	return &PackageManager{
		packagesDir: filepath.Join(cfg.EditorHome, "packages"),
		bundledDir:  cfg.BundledPackagesDir,
		command:     cfg.PackageCommand,
	}
}

// InstalledNames enumerates installed package names. A missing packages
// directory means no packages.
func (m *PackageManager) InstalledNames() ([]string, error) {
	entries, err := os.ReadDir(m.packagesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading packages directory: %w", err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		names = append(names, entry.Name())
	}

	return names, nil
}

// ResolvePath resolves a package name to its real install path,
// following symlinks so linked dev packages dedupe against their
// targets.
func (m *PackageManager) ResolvePath(name string) (string, error) {
	path, err := filepath.EvalSymlinks(filepath.Join(m.packagesDir, name))
	if err != nil {
		return "", fmt.Errorf("resolving package %s: %w", name, err)
	}

	return path, nil
}

// packageMetadata is the subset of a package descriptor file we read.
// The theme field appears in the wild as a bool or as a theme-kind
// string, so it decodes as any.
type packageMetadata struct {
	Name             string `json:"name"`
	Version          string `json:"version"`
	Theme            any    `json:"theme"`
	APMInstallSource *struct {
		Source string `json:"source"`
	} `json:"apmInstallSource"`
}

// Metadata reads the descriptor for the package at an install path.
func (m *PackageManager) Metadata(path string) (snapshot.Package, error) {
	data, err := os.ReadFile(filepath.Join(path, "package.json"))
	if err != nil {
		return snapshot.Package{}, fmt.Errorf("reading package descriptor: %w", err)
	}

	var meta packageMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return snapshot.Package{}, fmt.Errorf("parsing package descriptor: %w", err)
	}

	if meta.Name == "" {
		return snapshot.Package{}, fmt.Errorf("package descriptor at %s has no name", path)
	}

	pkg := snapshot.Package{
		Name:    meta.Name,
		Version: meta.Version,
		Theme:   isTheme(meta.Theme),
	}

	if meta.APMInstallSource != nil {
		pkg.InstallSource = meta.APMInstallSource.Source
	}

	return pkg, nil
}

// isTheme interprets the descriptor's theme field: any non-empty string
// or true marks a theme.
func isTheme(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	default:
		return false
	}
}

// IsBundled reports whether the named package ships with the editor,
// judged by presence under the bundled packages directory.
func (m *PackageManager) IsBundled(name string) bool {
	if m.bundledDir == "" {
		return false
	}

	info, err := os.Stat(filepath.Join(m.bundledDir, name))

	return err == nil && info.IsDir()
}

// Install installs the described package via the package command. An
// install source takes precedence over name and version.
func (m *PackageManager) Install(ctx context.Context, pkg snapshot.Package) error {
	arg := pkg.InstallSource
	if arg == "" {
		arg = pkg.Name
		if pkg.Version != "" {
			arg += "@" + pkg.Version
		}
	}

	return m.run(ctx, "install", arg)
}

// Uninstall removes the described package via the package command.
func (m *PackageManager) Uninstall(ctx context.Context, pkg snapshot.Package) error {
	return m.run(ctx, "uninstall", pkg.Name)
}

func (m *PackageManager) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, m.command, args...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", m.command, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}

	return nil
}
