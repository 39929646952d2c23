package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "frago/internal/errors"
)

func writeRecipeMD(t *testing.T, dir, frontmatter string) string {
	t.Helper()
	path := filepath.Join(dir, "recipe.md")
	content := "---\n" + frontmatter + "\n---\n\nBody text describing the recipe.\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validFrontmatter = `name: search-google
type: atomic
runtime: chrome-js
version: "1.0"
description: Searches Google for a query
use_cases:
  - finding information
output_targets:
  - stdout
`

func TestParseMetadataFile_Valid(t *testing.T) {
	path := writeRecipeMD(t, t.TempDir(), validFrontmatter)
	m, err := ParseMetadataFile(path)
	require.NoError(t, err)
	assert.Equal(t, "search-google", m.Name)
	assert.Equal(t, "chrome-js", m.Runtime)
}

func TestParseMetadataFile_MissingFrontmatterMarker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recipe.md")
	require.NoError(t, os.WriteFile(path, []byte("no frontmatter here"), 0o644))

	_, err := ParseMetadataFile(path)
	assert.True(t, ferrors.Is(err, ferrors.KindMetadataParseError))
}

func TestParseMetadataFile_MissingRequiredField(t *testing.T) {
	path := writeRecipeMD(t, t.TempDir(), "name: incomplete\ntype: atomic\n")
	_, err := ParseMetadataFile(path)
	assert.True(t, ferrors.Is(err, ferrors.KindMetadataParseError))
}

func validMetadata() Metadata {
	return Metadata{
		Name:          "search-google",
		Type:          "atomic",
		Runtime:       "chrome-js",
		Version:       "1.0",
		Description:   "Searches Google for a query",
		UseCases:      []string{"finding information"},
		OutputTargets: []string{"stdout"},
	}
}

func TestValidateMetadata_Valid(t *testing.T) {
	assert.NoError(t, ValidateMetadata(validMetadata()))
}

func TestValidateMetadata_InvalidName(t *testing.T) {
	m := validMetadata()
	m.Name = "bad name!"
	assert.True(t, ferrors.Is(ValidateMetadata(m), ferrors.KindRecipeValidationError))
}

func TestValidateMetadata_InvalidType(t *testing.T) {
	m := validMetadata()
	m.Type = "bogus"
	assert.True(t, ferrors.Is(ValidateMetadata(m), ferrors.KindRecipeValidationError))
}

func TestValidateMetadata_InvalidVersion(t *testing.T) {
	m := validMetadata()
	m.Version = "v1"
	assert.True(t, ferrors.Is(ValidateMetadata(m), ferrors.KindRecipeValidationError))
}

func TestValidateMetadata_InvalidOutputTarget(t *testing.T) {
	m := validMetadata()
	m.OutputTargets = []string{"carrier-pigeon"}
	assert.True(t, ferrors.Is(ValidateMetadata(m), ferrors.KindRecipeValidationError))
}

func TestValidateMetadata_InputMissingType(t *testing.T) {
	m := validMetadata()
	m.Inputs = map[string]InputDef{"query": {Required: true}}
	assert.True(t, ferrors.Is(ValidateMetadata(m), ferrors.KindRecipeValidationError))
}

func TestValidateMetadata_InvalidEnvName(t *testing.T) {
	m := validMetadata()
	m.Env = map[string]EnvDef{"9BAD": {Required: true}}
	assert.True(t, ferrors.Is(ValidateMetadata(m), ferrors.KindRecipeValidationError))
}

func TestValidateParams_MissingRequired(t *testing.T) {
	m := validMetadata()
	m.Inputs = map[string]InputDef{"query": {Type: "string", Required: true}}
	err := ValidateParams(m, map[string]interface{}{})
	assert.True(t, ferrors.Is(err, ferrors.KindRecipeValidationError))
}

func TestValidateParams_WrongType(t *testing.T) {
	m := validMetadata()
	m.Inputs = map[string]InputDef{"count": {Type: "number", Required: true}}
	err := ValidateParams(m, map[string]interface{}{"count": "not a number"})
	assert.True(t, ferrors.Is(err, ferrors.KindRecipeValidationError))
}

func TestValidateParams_Valid(t *testing.T) {
	m := validMetadata()
	m.Inputs = map[string]InputDef{
		"query": {Type: "string", Required: true},
		"limit": {Type: "number", Required: false},
	}
	err := ValidateParams(m, map[string]interface{}{"query": "golang", "limit": float64(5)})
	assert.NoError(t, err)
}

func TestCheckParamType(t *testing.T) {
	cases := []struct {
		value    interface{}
		expected string
		wantErr  bool
	}{
		{"hello", "string", false},
		{42, "string", true},
		{float64(3.14), "number", false},
		{true, "boolean", false},
		{"true", "boolean", true},
		{[]interface{}{1, 2}, "array", false},
		{map[string]interface{}{"a": 1}, "object", false},
		{"anything", "unknown-type", false},
	}
	for _, c := range cases {
		errs := CheckParamType("p", c.value, c.expected)
		if c.wantErr {
			assert.NotEmpty(t, errs, "CheckParamType(%v, %q) expected error", c.value, c.expected)
		} else {
			assert.Empty(t, errs, "CheckParamType(%v, %q) expected no error", c.value, c.expected)
		}
	}
}
