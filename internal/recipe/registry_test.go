package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "frago/internal/errors"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	recipesDir := filepath.Join(home, ".frago", "recipes")
	require.NoError(t, os.MkdirAll(recipesDir, 0o755))
	return NewRegistry(), recipesDir
}

func writeRecipeDir(t *testing.T, dir, name, frontmatter, scriptExt, scriptBody string) {
	t.Helper()
	recipeDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(recipeDir, 0o755))
	content := "---\n" + frontmatter + "\n---\n"
	require.NoError(t, os.WriteFile(filepath.Join(recipeDir, "recipe.md"), []byte(content), 0o644))
	if scriptExt != "" {
		require.NoError(t, os.WriteFile(filepath.Join(recipeDir, "recipe"+scriptExt), []byte(scriptBody), 0o755))
	}
}

func TestRegistry_ScanAndFind(t *testing.T) {
	reg, recipesDir := newTestRegistry(t)
	writeRecipeDir(t, filepath.Join(recipesDir, "atomic", "chrome"), "search-google", validFrontmatter, ".js", "console.log('hi')")

	reg.Scan()

	r, err := reg.Find("search-google", "")
	require.NoError(t, err)
	assert.Equal(t, "search-google", r.Metadata.Name)
	assert.Equal(t, sourceUser, r.Source)
}

func TestRegistry_Find_NotFound(t *testing.T) {
	reg, _ := newTestRegistry(t)
	reg.Scan()
	_, err := reg.Find("does-not-exist", "")
	assert.True(t, ferrors.Is(err, ferrors.KindRecipeNotFound))
}

func TestRegistry_SkipsInvalidRecipe(t *testing.T) {
	reg, recipesDir := newTestRegistry(t)
	writeRecipeDir(t, filepath.Join(recipesDir, "atomic", "chrome"), "broken", "name: bad name!\ntype: atomic\nruntime: chrome-js\nversion: \"1.0\"\ndescription: d\nuse_cases:\n  - x\noutput_targets:\n  - stdout\n", ".js", "")

	reg.Scan()
	assert.Empty(t, reg.ListAll(false))
}

func TestRegistry_SkipsRecipeWithoutScript(t *testing.T) {
	reg, recipesDir := newTestRegistry(t)
	writeRecipeDir(t, filepath.Join(recipesDir, "atomic", "chrome"), "no-script", validFrontmatter, "", "")

	reg.Scan()
	assert.Empty(t, reg.ListAll(false))
}

func TestRegistry_ListAll_SortedByName(t *testing.T) {
	reg, recipesDir := newTestRegistry(t)
	chromeDir := filepath.Join(recipesDir, "atomic", "chrome")
	writeRecipeDir(t, chromeDir, "zeta", "name: zeta\ntype: atomic\nruntime: chrome-js\nversion: \"1.0\"\ndescription: d\nuse_cases:\n  - x\noutput_targets:\n  - stdout\n", ".js", "")
	writeRecipeDir(t, chromeDir, "alpha", "name: alpha\ntype: atomic\nruntime: chrome-js\nversion: \"1.0\"\ndescription: d\nuse_cases:\n  - x\noutput_targets:\n  - stdout\n", ".js", "")

	reg.Scan()
	all := reg.ListAll(false)
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Metadata.Name)
	assert.Equal(t, "zeta", all[1].Metadata.Name)
}

func TestRegistry_ValidateDependencies_RemovesBrokenWorkflow(t *testing.T) {
	reg, recipesDir := newTestRegistry(t)
	workflowFrontmatter := "name: my-workflow\ntype: workflow\nruntime: shell\nversion: \"1.0\"\ndescription: d\nuse_cases:\n  - x\noutput_targets:\n  - stdout\ndependencies:\n  - missing-recipe\n"
	writeRecipeDir(t, filepath.Join(recipesDir, "workflows"), "my-workflow", workflowFrontmatter, ".sh", "#!/bin/sh\necho '{}'")

	reg.Scan()
	assert.Empty(t, reg.ListAll(false), "workflow with missing dependency should be removed")
}

func TestRegistry_ValidateDependencies_KeepsSatisfiedWorkflow(t *testing.T) {
	reg, recipesDir := newTestRegistry(t)
	writeRecipeDir(t, filepath.Join(recipesDir, "atomic", "chrome"), "search-google", validFrontmatter, ".js", "")
	workflowFrontmatter := "name: my-workflow\ntype: workflow\nruntime: shell\nversion: \"1.0\"\ndescription: d\nuse_cases:\n  - x\noutput_targets:\n  - stdout\ndependencies:\n  - search-google\n"
	writeRecipeDir(t, filepath.Join(recipesDir, "workflows"), "my-workflow", workflowFrontmatter, ".sh", "#!/bin/sh\necho '{}'")

	reg.Scan()
	_, err := reg.Find("my-workflow", "")
	assert.NoError(t, err, "workflow with satisfied dependency should survive")
}

func TestRegistry_GetBySource(t *testing.T) {
	reg, recipesDir := newTestRegistry(t)
	writeRecipeDir(t, filepath.Join(recipesDir, "atomic", "chrome"), "search-google", validFrontmatter, ".js", "")
	reg.Scan()

	assert.Len(t, reg.GetBySource("user"), 1)
	assert.Empty(t, reg.GetBySource("project"))
}
