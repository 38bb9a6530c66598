package diffengine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confsync/confsync/internal/snapshot"
)

// liveMap is a LiveConfig backed by a flat key-path map.
type liveMap map[string]any

func (m liveMap) Get(keyPath string) any { return m[keyPath] }

func settingsSnap(scoped map[string]map[string]any) *snapshot.Snapshot {
	settings := make(map[string]snapshot.Value, len(scoped))
	for sel, tree := range scoped {
		settings[sel] = snapshot.FromJSON(tree)
	}
	return &snapshot.Snapshot{Settings: settings}
}

func keyPaths(changes []SettingChange) []string {
	out := make([]string, 0, len(changes))
	for _, ch := range changes {
		out = append(out, ch.KeyPath)
	}
	return out
}

// --- Result ---

func TestDiff_IdenticalSnapshotsAreEmpty(t *testing.T) {
	snap := &snapshot.Snapshot{
		Settings: map[string]snapshot.Value{
			snapshot.GlobalScope: snapshot.FromJSON(map[string]any{"editor": map[string]any{"fontSize": float64(14)}}),
		},
		Packages: map[string]snapshot.Package{"linter": {Name: "linter", Version: "1.0.0"}},
		Files:    map[string]snapshot.File{"init.coffee": {Content: "x\n"}},
	}

	res, err := Diff(snap, snap, nil)
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestDiff_AbsentCategoriesStayNil(t *testing.T) {
	res, err := Diff(&snapshot.Snapshot{}, &snapshot.Snapshot{}, nil)
	require.NoError(t, err)

	assert.Nil(t, res.Settings)
	assert.Nil(t, res.Packages)
	assert.Nil(t, res.Files)
	assert.True(t, res.Empty())
}

func TestDiff_MatchingCategoryIsNonNilButEmpty(t *testing.T) {
	snap := &snapshot.Snapshot{
		Settings: map[string]snapshot.Value{
			snapshot.GlobalScope: snapshot.FromJSON(map[string]any{"editor": map[string]any{"fontSize": float64(14)}}),
		},
	}

	res, err := Diff(snap, snap, nil)
	require.NoError(t, err)

	// Present on both sides and matching: the category diff exists but
	// holds nothing, unlike the nil of an absent category.
	require.NotNil(t, res.Settings)
	assert.Empty(t, res.Settings.Added)
	assert.Empty(t, res.Settings.Updated)
	assert.Empty(t, res.Settings.Deleted)
	assert.True(t, res.Empty())
}

func TestDiff_SwappingSidesSwapsAddedAndDeleted(t *testing.T) {
	a := &snapshot.Snapshot{
		Settings: map[string]snapshot.Value{
			snapshot.GlobalScope: snapshot.FromJSON(map[string]any{"only": map[string]any{"a": true}}),
		},
		Packages: map[string]snapshot.Package{"only-a": {Name: "only-a", Version: "1.0.0"}},
		Files:    map[string]snapshot.File{"only-a.txt": {Content: "a\n"}},
	}
	b := &snapshot.Snapshot{
		Settings: map[string]snapshot.Value{
			snapshot.GlobalScope: snapshot.FromJSON(map[string]any{"only": map[string]any{"b": true}}),
		},
		Packages: map[string]snapshot.Package{"only-b": {Name: "only-b", Version: "1.0.0"}},
		Files:    map[string]snapshot.File{"only-b.txt": {Content: "b\n"}},
	}

	ab, err := Diff(a, b, nil)
	require.NoError(t, err)
	ba, err := Diff(b, a, nil)
	require.NoError(t, err)

	assert.Equal(t, keyPaths(ab.Settings.Added), keyPaths(ba.Settings.Deleted))
	assert.Equal(t, keyPaths(ab.Settings.Deleted), keyPaths(ba.Settings.Added))
	assert.Equal(t, ab.Packages.Added, ba.Packages.Deleted)
	assert.Equal(t, ab.Packages.Deleted, ba.Packages.Added)
	assert.Equal(t, ab.Files.Added, ba.Files.Deleted)
	assert.Equal(t, ab.Files.Deleted, ba.Files.Added)
}

// --- settings ---

func TestDiff_SettingsFlattenToLeafKeyPaths(t *testing.T) {
	local := settingsSnap(map[string]map[string]any{
		"*": {"editor": map[string]any{"fontSize": float64(14), "showInvisibles": true}},
	})
	backup := settingsSnap(map[string]map[string]any{
		"*": {"editor": map[string]any{"fontSize": float64(16), "tabLength": float64(2)}},
	})

	res, err := Diff(local, backup, liveMap{"editor.fontSize": float64(14)})
	require.NoError(t, err)

	d := res.Settings
	assert.Equal(t, []string{"editor.tabLength"}, keyPaths(d.Added))
	assert.Equal(t, []string{"editor.showInvisibles"}, keyPaths(d.Deleted))

	require.Len(t, d.Updated, 1)
	assert.Equal(t, "editor.fontSize", d.Updated[0].KeyPath)
	assert.Equal(t, float64(16), d.Updated[0].Value)
	assert.Equal(t, float64(14), d.Updated[0].OldValue)
}

func TestDiff_UpdatedOldValueReadFromLiveConfig(t *testing.T) {
	local := settingsSnap(map[string]map[string]any{"*": {"editor": map[string]any{"fontSize": float64(14)}}})
	backup := settingsSnap(map[string]map[string]any{"*": {"editor": map[string]any{"fontSize": float64(16)}}})

	// The live value moved since the local snapshot was built.
	res, err := Diff(local, backup, liveMap{"editor.fontSize": float64(15)})
	require.NoError(t, err)

	require.Len(t, res.Settings.Updated, 1)
	assert.Equal(t, float64(15), res.Settings.Updated[0].OldValue)
}

func TestDiff_ScopedUpdateOldValueFromSnapshot(t *testing.T) {
	local := settingsSnap(map[string]map[string]any{
		".source.go": {"editor": map[string]any{"tabLength": float64(2)}},
	})
	backup := settingsSnap(map[string]map[string]any{
		".source.go": {"editor": map[string]any{"tabLength": float64(4)}},
	})

	// The live store answers for the global scope only; a scoped update
	// keeps the value captured in the local snapshot.
	res, err := Diff(local, backup, liveMap{"editor.tabLength": float64(8)})
	require.NoError(t, err)

	require.Len(t, res.Settings.Updated, 1)
	assert.Equal(t, ".source.go.editor.tabLength", res.Settings.Updated[0].KeyPath)
	assert.Equal(t, float64(2), res.Settings.Updated[0].OldValue)
}

func TestDiff_NonGlobalScopePrefixesKeyPath(t *testing.T) {
	local := settingsSnap(map[string]map[string]any{"*": {}})
	backup := settingsSnap(map[string]map[string]any{
		"*":          {},
		".source.go": {"editor": map[string]any{"tabLength": float64(4)}},
	})

	res, err := Diff(local, backup, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{".source.go.editor.tabLength"}, keyPaths(res.Settings.Added))
}

func TestDiff_ArraysCompareAsLeaves(t *testing.T) {
	local := settingsSnap(map[string]map[string]any{"*": {"core": map[string]any{"disabled": []any{"a"}}}})
	backup := settingsSnap(map[string]map[string]any{"*": {"core": map[string]any{"disabled": []any{"a", "b"}}}})

	res, err := Diff(local, backup, nil)
	require.NoError(t, err)

	require.Len(t, res.Settings.Updated, 1)
	assert.Equal(t, "core.disabled", res.Settings.Updated[0].KeyPath)
	assert.Equal(t, []any{"a", "b"}, res.Settings.Updated[0].Value)
}

func TestDiff_ShapeChangeClassifiesAtDivergence(t *testing.T) {
	local := settingsSnap(map[string]map[string]any{"*": {"editor": "compact"}})
	backup := settingsSnap(map[string]map[string]any{"*": {"editor": map[string]any{"fontSize": float64(14)}}})

	res, err := Diff(local, backup, nil)
	require.NoError(t, err)

	require.Len(t, res.Settings.Updated, 1)
	assert.Equal(t, "editor", res.Settings.Updated[0].KeyPath)
	assert.Equal(t, map[string]any{"fontSize": float64(14)}, res.Settings.Updated[0].Value)
}

// --- packages ---

func TestDiff_PackageVersionChange(t *testing.T) {
	local := &snapshot.Snapshot{Packages: map[string]snapshot.Package{"linter": {Name: "linter", Version: "1.0.0"}}}
	backup := &snapshot.Snapshot{Packages: map[string]snapshot.Package{"linter": {Name: "linter", Version: "1.1.0"}}}

	res, err := Diff(local, backup, nil)
	require.NoError(t, err)

	upd, ok := res.Packages.Updated["linter"]
	require.True(t, ok)
	assert.Equal(t, "1.1.0", upd.Backup.Version)
	assert.Equal(t, "1.0.0", upd.Local.Version)
}

func TestDiff_InstallSourcePresenceMismatchForcesUpdate(t *testing.T) {
	local := &snapshot.Snapshot{Packages: map[string]snapshot.Package{
		"linter": {Name: "linter", Version: "1.0.0"},
	}}
	backup := &snapshot.Snapshot{Packages: map[string]snapshot.Package{
		"linter": {Name: "linter", Version: "1.0.0", InstallSource: "git+https://example.com/linter"},
	}}

	res, err := Diff(local, backup, nil)
	require.NoError(t, err)

	assert.Contains(t, res.Packages.Updated, "linter")
}

// --- files ---

func TestDiff_FileBucketsLazy(t *testing.T) {
	local := &snapshot.Snapshot{Files: map[string]snapshot.File{"a": {Content: "same\n"}}}
	backup := &snapshot.Snapshot{Files: map[string]snapshot.File{"a": {Content: "same\n"}}}

	res, err := Diff(local, backup, nil)
	require.NoError(t, err)

	require.NotNil(t, res.Files)
	assert.Nil(t, res.Files.Added)
	assert.Nil(t, res.Files.Updated)
	assert.Nil(t, res.Files.Deleted)
	assert.True(t, res.Empty())
}

func TestDiff_FileUpdateCarriesUnifiedPatch(t *testing.T) {
	local := &snapshot.Snapshot{Files: map[string]snapshot.File{"a": {Content: "x\n"}}}
	backup := &snapshot.Snapshot{Files: map[string]snapshot.File{"a": {Content: "y\nz\n"}}}

	res, err := Diff(local, backup, nil)
	require.NoError(t, err)

	upd, ok := res.Files.Updated["a"]
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(upd.Patch, "--- local/a"))
	assert.Contains(t, upd.Patch, "-x")
	assert.Contains(t, upd.Patch, "+y")
	assert.Contains(t, upd.Patch, "+z")
}

func TestDiff_MixedFileChanges(t *testing.T) {
	local := &snapshot.Snapshot{Files: map[string]snapshot.File{"a": {Content: "x"}}}
	backup := &snapshot.Snapshot{Files: map[string]snapshot.File{
		"a": {Content: "y"},
		"b": {Content: "z"},
	}}

	res, err := Diff(local, backup, nil)
	require.NoError(t, err)

	assert.Equal(t, "z", res.Files.Added["b"].Content)
	require.Contains(t, res.Files.Updated, "a")
	assert.Contains(t, res.Files.Updated["a"].Patch, "-x")
	assert.Contains(t, res.Files.Updated["a"].Patch, "+y")
	assert.Empty(t, res.Files.Deleted)
}

func TestDiff_OneSidedFilesLandWholesale(t *testing.T) {
	local := &snapshot.Snapshot{Files: map[string]snapshot.File{"only-local": {Content: "l\n"}}}
	backup := &snapshot.Snapshot{}

	res, err := Diff(local, backup, nil)
	require.NoError(t, err)

	assert.Contains(t, res.Files.Deleted, "only-local")
	assert.Empty(t, res.Files.Added)
}
