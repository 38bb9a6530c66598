package host

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confsync/confsync/internal/snapshot"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testStore(t *testing.T, doc string) *ConfigStore {
	t.Helper()
	files := map[string]string{}
	if doc != "" {
		files[snapshot.MainConfigFile] = doc
	}
	dir := testDir(t, files)
	s, err := NewConfigStore(dir, quietLogger())
	require.NoError(t, err)
	return s
}

// --- reads ---

func TestConfigStore_MissingFileIsEmpty(t *testing.T) {
	s := testStore(t, "")

	tree, err := s.Tree()
	require.NoError(t, err)
	assert.Empty(t, tree)

	scoped, err := s.ScopedOverrides()
	require.NoError(t, err)
	assert.Empty(t, scoped)
}

func TestConfigStore_TreeReturnsGlobalScope(t *testing.T) {
	s := testStore(t, `{"*": {"editor": {"fontSize": 14}}, ".source.go": {"editor": {"tabLength": 4}}}`)

	tree, err := s.Tree()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"editor": map[string]any{"fontSize": float64(14)}}, tree)
}

func TestConfigStore_ScopedOverridesExcludeGlobal(t *testing.T) {
	s := testStore(t, `{"*": {"a": 1}, ".source.go": {"editor": {"tabLength": 4}}}`)

	scoped, err := s.ScopedOverrides()
	require.NoError(t, err)

	require.Len(t, scoped, 1)
	assert.Contains(t, scoped, ".source.go")
}

func TestConfigStore_TreeIsACopy(t *testing.T) {
	s := testStore(t, `{"*": {"editor": {"fontSize": 14}}}`)

	tree, err := s.Tree()
	require.NoError(t, err)
	tree["editor"].(map[string]any)["fontSize"] = float64(99)

	again, err := s.Tree()
	require.NoError(t, err)
	assert.Equal(t, float64(14), again["editor"].(map[string]any)["fontSize"])
}

func TestConfigStore_Get(t *testing.T) {
	s := testStore(t, `{"*": {"editor": {"fontSize": 14}}}`)

	assert.Equal(t, float64(14), s.Get("editor.fontSize"))
	assert.Nil(t, s.Get("editor.missing"))
	assert.Equal(t, map[string]any{"fontSize": float64(14)}, s.Get("editor"))
}

// --- writes ---

func TestConfigStore_SetCreatesScopeAndPath(t *testing.T) {
	s := testStore(t, "")

	require.NoError(t, s.Set("editor.fontSize", float64(16), snapshot.GlobalScope))
	require.NoError(t, s.Set("editor.tabLength", float64(4), ".source.go"))

	assert.Equal(t, float64(16), s.Get("editor.fontSize"))

	scoped, err := s.ScopedOverrides()
	require.NoError(t, err)
	assert.Equal(t, float64(4), scoped[".source.go"]["editor"].(map[string]any)["tabLength"])
}

func TestConfigStore_SetPersistsAcrossInstances(t *testing.T) {
	dir := testDir(t, nil)

	s1, err := NewConfigStore(dir, quietLogger())
	require.NoError(t, err)
	require.NoError(t, s1.Set("a.b", "v", snapshot.GlobalScope))

	s2, err := NewConfigStore(dir, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "v", s2.Get("a.b"))
}

func TestConfigStore_Unset(t *testing.T) {
	s := testStore(t, `{"*": {"editor": {"fontSize": 14, "tabLength": 2}}}`)

	require.NoError(t, s.Unset("editor.fontSize"))

	assert.Nil(t, s.Get("editor.fontSize"))
	assert.Equal(t, float64(2), s.Get("editor.tabLength"))
}

func TestConfigStore_MalformedFileErrors(t *testing.T) {
	s := testStore(t, `{not json`)

	_, err := s.Tree()
	assert.Error(t, err)
}
