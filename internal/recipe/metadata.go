// Package recipe implements frago's recipe system: metadata parsing and
// validation, the filesystem-backed registry, per-runtime execution, and
// output delivery to stdout, file, or clipboard.
package recipe

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	ferrors "frago/internal/errors"
)

var (
	namePattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	versionPattern = regexp.MustCompile(`^\d+\.\d+(\.\d+)?$`)
	envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

const descriptionMaxLength = 200

// InputDef describes one declared recipe parameter.
type InputDef struct {
	Type        string `yaml:"type"`
	Required    bool   `yaml:"required"`
	Description string `yaml:"description"`
}

// EnvDef describes one declared recipe environment variable.
type EnvDef struct {
	Required    bool    `yaml:"required"`
	Default     *string `yaml:"default"`
	Description string  `yaml:"description"`
}

// Metadata is a recipe's YAML frontmatter, parsed from recipe.md.
type Metadata struct {
	Name           string              `yaml:"name"`
	Type           string              `yaml:"type"`
	Runtime        string              `yaml:"runtime"`
	Version        string              `yaml:"version"`
	Description    string              `yaml:"description"`
	UseCases       []string            `yaml:"use_cases"`
	OutputTargets  []string            `yaml:"output_targets"`
	Inputs         map[string]InputDef `yaml:"inputs"`
	Outputs        map[string]string   `yaml:"outputs"`
	Dependencies   []string            `yaml:"dependencies"`
	Tags           []string            `yaml:"tags"`
	Env            map[string]EnvDef   `yaml:"env"`
	SystemPackages bool                `yaml:"system_packages"`
}

// rawMetadata is the decode target for ParseMetadataFile; its required-key
// checks treat an empty or zero-valued field the same as an absent one.
type rawMetadata struct {
	Name           string                            `yaml:"name"`
	Type           string                            `yaml:"type"`
	Runtime        string                            `yaml:"runtime"`
	Version        string                            `yaml:"version"`
	Description    string                            `yaml:"description"`
	UseCases       []string                          `yaml:"use_cases"`
	OutputTargets  []string                          `yaml:"output_targets"`
	Inputs         map[string]InputDef               `yaml:"inputs"`
	Outputs        map[string]string                 `yaml:"outputs"`
	Dependencies   []string                          `yaml:"dependencies"`
	Tags           []string                          `yaml:"tags"`
	Env            map[string]EnvDef                 `yaml:"env"`
	SystemPackages bool                              `yaml:"system_packages"`
}

// ParseMetadataFile extracts the YAML frontmatter between the leading and
// closing "---" markers of a recipe.md file and decodes it into a Metadata.
func ParseMetadataFile(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, ferrors.E(ferrors.KindMetadataParseError, "recipe.ParseMetadataFile",
			fmt.Errorf("%s: cannot read file: %w", path, err))
	}
	content := string(data)

	if !strings.HasPrefix(content, "---") {
		return Metadata{}, ferrors.E(ferrors.KindMetadataParseError, "recipe.ParseMetadataFile",
			fmt.Errorf("%s: file does not start with '---', missing YAML frontmatter", path))
	}

	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		return Metadata{}, ferrors.E(ferrors.KindMetadataParseError, "recipe.ParseMetadataFile",
			fmt.Errorf("%s: malformed YAML frontmatter, missing closing '---'", path))
	}

	yamlContent := strings.TrimSpace(parts[1])

	var raw rawMetadata
	if err := yaml.Unmarshal([]byte(yamlContent), &raw); err != nil {
		return Metadata{}, ferrors.E(ferrors.KindMetadataParseError, "recipe.ParseMetadataFile",
			fmt.Errorf("%s: YAML parse failed: %w", path, err))
	}

	var missing []string
	if raw.Name == "" {
		missing = append(missing, "name")
	}
	if raw.Type == "" {
		missing = append(missing, "type")
	}
	if raw.Runtime == "" {
		missing = append(missing, "runtime")
	}
	if raw.Version == "" {
		missing = append(missing, "version")
	}
	if raw.Description == "" {
		missing = append(missing, "description")
	}
	if len(raw.UseCases) == 0 {
		missing = append(missing, "use_cases")
	}
	if len(raw.OutputTargets) == 0 {
		missing = append(missing, "output_targets")
	}
	if len(missing) > 0 {
		return Metadata{}, ferrors.E(ferrors.KindMetadataParseError, "recipe.ParseMetadataFile",
			fmt.Errorf("%s: missing required field(s): %s", path, strings.Join(missing, ", ")))
	}

	return Metadata{
		Name:           raw.Name,
		Type:           raw.Type,
		Runtime:        raw.Runtime,
		Version:        raw.Version,
		Description:    raw.Description,
		UseCases:       raw.UseCases,
		OutputTargets:  raw.OutputTargets,
		Inputs:         raw.Inputs,
		Outputs:        raw.Outputs,
		Dependencies:   raw.Dependencies,
		Tags:           raw.Tags,
		Env:            raw.Env,
		SystemPackages: raw.SystemPackages,
	}, nil
}

// ValidateMetadata checks a parsed Metadata's structural invariants: name and
// version formats, enum membership for type/runtime/output_targets, presence
// of the AI-readable fields, and well-formedness of declared inputs and env.
func ValidateMetadata(m Metadata) error {
	var errs []string

	if m.Name == "" || !namePattern.MatchString(m.Name) {
		errs = append(errs, "name must contain only letters, digits, underscores, and hyphens")
	}
	if m.Type != "atomic" && m.Type != "workflow" {
		errs = append(errs, fmt.Sprintf("type must be 'atomic' or 'workflow', got: '%s'", m.Type))
	}
	if m.Runtime != "chrome-js" && m.Runtime != "python" && m.Runtime != "shell" {
		errs = append(errs, fmt.Sprintf("runtime must be 'chrome-js', 'python', or 'shell', got: '%s'", m.Runtime))
	}
	if !versionPattern.MatchString(m.Version) {
		errs = append(errs, fmt.Sprintf("version has invalid format: '%s', expected '1.0' or '1.0.0'", m.Version))
	}
	if m.Description == "" || len(m.Description) > descriptionMaxLength {
		errs = append(errs, "description must be present and at most 200 characters")
	}
	if len(m.UseCases) == 0 {
		errs = append(errs, "use_cases must contain at least one entry")
	}
	if len(m.OutputTargets) == 0 {
		errs = append(errs, "output_targets must contain at least one entry")
	}
	for _, target := range m.OutputTargets {
		if target != "stdout" && target != "file" && target != "clipboard" {
			errs = append(errs, fmt.Sprintf("output_targets contains invalid value: '%s', valid values: stdout, file, clipboard", target))
		}
	}

	inputNames := make([]string, 0, len(m.Inputs))
	for name := range m.Inputs {
		inputNames = append(inputNames, name)
	}
	sort.Strings(inputNames)
	for _, name := range inputNames {
		def := m.Inputs[name]
		if def.Type == "" {
			errs = append(errs, fmt.Sprintf("input parameter '%s' is missing a 'type' field", name))
		}
	}

	envNames := make([]string, 0, len(m.Env))
	for name := range m.Env {
		envNames = append(envNames, name)
	}
	sort.Strings(envNames)
	for _, name := range envNames {
		if !envNamePattern.MatchString(name) {
			errs = append(errs, fmt.Sprintf("environment variable '%s' has an invalid name, must start with a letter or underscore", name))
		}
	}

	if len(errs) > 0 {
		return ferrors.E(ferrors.KindRecipeValidationError, "recipe.ValidateMetadata",
			fmt.Errorf("recipe '%s' validation failed:\n  - %s", m.Name, strings.Join(errs, "\n  - ")))
	}
	return nil
}

// ValidateParams checks that params satisfies metadata's declared inputs:
// every required input is present, and every provided value matches its
// declared type.
func ValidateParams(m Metadata, params map[string]interface{}) error {
	var errs []string

	names := make([]string, 0, len(m.Inputs))
	for name := range m.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		def := m.Inputs[name]
		if !def.Required {
			continue
		}
		if _, ok := params[name]; !ok {
			msg := fmt.Sprintf("missing required parameter: '%s'", name)
			if def.Description != "" {
				msg += fmt.Sprintf(" (%s)", def.Description)
			}
			errs = append(errs, msg)
		}
	}

	paramNames := make([]string, 0, len(params))
	for name := range params {
		paramNames = append(paramNames, name)
	}
	sort.Strings(paramNames)
	for _, name := range paramNames {
		def, ok := m.Inputs[name]
		if !ok || def.Type == "" {
			continue
		}
		errs = append(errs, CheckParamType(name, params[name], def.Type)...)
	}

	if len(errs) > 0 {
		return ferrors.E(ferrors.KindRecipeValidationError, "recipe.ValidateParams",
			fmt.Errorf("recipe '%s' validation failed:\n  - %s", m.Name, strings.Join(errs, "\n  - ")))
	}
	return nil
}

// CheckParamType reports whether value matches expectedType, one of
// string/number/boolean/array/object as produced by decoding JSON. Unknown
// expected types are skipped rather than flagged.
func CheckParamType(paramName string, value interface{}, expectedType string) []string {
	actualType := jsonTypeName(value)

	var ok bool
	switch expectedType {
	case "string":
		_, ok = value.(string)
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
			ok = true
		}
	case "boolean":
		_, ok = value.(bool)
	case "array":
		_, ok = value.([]interface{})
	case "object":
		_, ok = value.(map[string]interface{})
	default:
		return nil
	}

	if ok {
		return nil
	}
	return []string{fmt.Sprintf("parameter '%s' has wrong type: expected %s, got %s", paramName, expectedType, actualType)}
}

func jsonTypeName(value interface{}) string {
	switch value.(type) {
	case bool:
		return "boolean"
	case float64, float32, int, int64:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", value)
	}
}
