package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "frago/internal/errors"
)

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# a comment\n\nFOO=bar\nQUOTED=\"hello world\"\nSINGLE='it works'\nBAD LINE\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	vars := LoadEnvFile(path)
	assert.Equal(t, "bar", vars["FOO"])
	assert.Equal(t, "hello world", vars["QUOTED"])
	assert.Equal(t, "it works", vars["SINGLE"])
	_, ok := vars["BAD"]
	assert.False(t, ok, "malformed line should not produce a variable")
}

func TestLoadEnvFile_Missing(t *testing.T) {
	vars := LoadEnvFile(filepath.Join(t.TempDir(), "nope.env"))
	assert.Empty(t, vars)
}

func TestLoader_LoadAll_ProjectOverridesUser(t *testing.T) {
	projectRoot := t.TempDir()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SHARED_KEY", "from-process")

	userEnv := filepath.Join(home, ".frago", ".env")
	require.NoError(t, os.MkdirAll(filepath.Dir(userEnv), 0o755))
	require.NoError(t, os.WriteFile(userEnv, []byte("SHARED_KEY=from-user\nUSER_ONLY=user-val\n"), 0o644))

	l := NewLoader(projectRoot)
	projectEnv := l.ProjectEnvPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(projectEnv), 0o755))
	require.NoError(t, os.WriteFile(projectEnv, []byte("SHARED_KEY=from-project\n"), 0o644))

	merged := l.LoadAll(true)
	assert.Equal(t, "from-project", merged["SHARED_KEY"], "highest priority wins")
	assert.Equal(t, "user-val", merged["USER_ONLY"])
}

func TestLoader_ResolveForRecipe_AppliesDefaultsAndOverrides(t *testing.T) {
	l := NewLoader(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	def := "default-value"
	definitions := map[string]VarDefinition{
		"WITH_DEFAULT": {Default: &def},
		"FROM_CLI":     {Required: true},
	}
	resolved, err := l.ResolveForRecipe(definitions, map[string]string{"FROM_CLI": "cli-value"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "default-value", resolved["WITH_DEFAULT"])
	assert.Equal(t, "cli-value", resolved["FROM_CLI"])
}

func TestLoader_ResolveForRecipe_MissingRequired(t *testing.T) {
	l := NewLoader(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	definitions := map[string]VarDefinition{"API_KEY": {Required: true, Description: "service token"}}
	_, err := l.ResolveForRecipe(definitions, nil, nil)
	assert.True(t, ferrors.Is(err, ferrors.KindMissingEnvVar))
}

func TestLoader_ResolveForRecipe_WorkflowContextOverridesEnvButNotCLI(t *testing.T) {
	l := NewLoader(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TOKEN", "from-process")

	wf := NewWorkflowContext()
	wf.Set("TOKEN", "from-workflow")

	resolved, err := l.ResolveForRecipe(map[string]VarDefinition{"TOKEN": {}}, map[string]string{"TOKEN": "from-cli"}, wf)
	require.NoError(t, err)
	assert.Equal(t, "from-cli", resolved["TOKEN"], "CLI overrides workflow context")
}

func TestGetRecipeEnvSubset(t *testing.T) {
	l := NewLoader(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("UNRELATED", "noise")

	def := "declared-default"
	subset, err := l.GetRecipeEnvSubset(map[string]VarDefinition{"DECLARED": {Default: &def}}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"DECLARED": "declared-default"}, subset)
}

func TestSaveAndUpdateEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, SaveEnvFile(path, map[string]string{"A": "1", "B": "2"}))

	loaded := LoadEnvFile(path)
	assert.Equal(t, "1", loaded["A"])
	assert.Equal(t, "2", loaded["B"])

	newVal := "updated"
	require.NoError(t, UpdateEnvFile(path, map[string]*string{"A": &newVal, "B": nil, "C": &newVal}))

	after := LoadEnvFile(path)
	assert.Equal(t, "updated", after["A"])
	_, ok := after["B"]
	assert.False(t, ok, "B should have been deleted")
	assert.Equal(t, "updated", after["C"], "newly appended")
}
