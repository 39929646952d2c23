// Package env implements frago's three-tier environment variable loader:
// project .frago/.env overrides user ~/.frago/.env overrides the process
// environment, with workflow-context and CLI --env layers stacked on top
// when resolving variables for a recipe.
package env

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	ferrors "frago/internal/errors"
	"frago/internal/logging"
)

var envLinePattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)=(.*)$`)

// VarDefinition is one recipe-declared environment variable's contract.
type VarDefinition struct {
	Required    bool
	Default     *string
	Description string
}

// WorkflowContext shares environment variables across the recipes run
// within one workflow invocation, letting an earlier recipe's output (e.g.
// a login token) become a later recipe's input.
type WorkflowContext struct {
	mu        sync.Mutex
	sharedEnv map[string]string
}

// NewWorkflowContext returns an empty WorkflowContext.
func NewWorkflowContext() *WorkflowContext {
	return &WorkflowContext{sharedEnv: map[string]string{}}
}

// Set records key=value for later recipes in the same workflow.
func (w *WorkflowContext) Set(key, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sharedEnv[key] = value
}

// Get returns a shared value, or def if key isn't set.
func (w *WorkflowContext) Get(key, def string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if v, ok := w.sharedEnv[key]; ok {
		return v
	}
	return def
}

// Update merges env into the shared set, overwriting existing keys.
func (w *WorkflowContext) Update(vars map[string]string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for k, v := range vars {
		w.sharedEnv[k] = v
	}
}

// AsMap returns a copy of every shared variable.
func (w *WorkflowContext) AsMap() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]string, len(w.sharedEnv))
	for k, v := range w.sharedEnv {
		out[k] = v
	}
	return out
}

// Loader resolves environment variables across the project/user/process
// tiers and caches the merged result until explicitly invalidated.
type Loader struct {
	ProjectRoot string

	mu    sync.Mutex
	cache map[string]string
}

// NewLoader returns a Loader rooted at projectRoot (used to locate
// "<projectRoot>/.frago/.env"). An empty projectRoot uses the process's
// current working directory.
func NewLoader(projectRoot string) *Loader {
	if projectRoot == "" {
		if cwd, err := os.Getwd(); err == nil {
			projectRoot = cwd
		}
	}
	return &Loader{ProjectRoot: projectRoot}
}

// UserEnvPath returns ~/.frago/.env.
func UserEnvPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".frago", ".env")
}

// ProjectEnvPath returns "<projectRoot>/.frago/.env".
func (l *Loader) ProjectEnvPath() string {
	return filepath.Join(l.ProjectRoot, ".frago", ".env")
}

// LoadEnvFile parses a .env file: KEY=value lines, optionally quoted,
// blank lines and #-comments ignored. A missing or unreadable file yields
// an empty map rather than an error, matching how optional config tiers
// are meant to be absent.
func LoadEnvFile(path string) map[string]string {
	result := map[string]string{}
	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := envLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := m[1]
		value := strings.TrimSpace(m[2])
		value = unquote(value)
		result[key] = value
	}
	return result
}

func unquote(value string) string {
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// LoadAll merges process environment, user .env, and project .env (highest
// priority last) and caches the result. Pass clearCache to force a reread.
func (l *Loader) LoadAll(clearCache bool) map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cache != nil && !clearCache {
		return cloneMap(l.cache)
	}

	merged := map[string]string{}
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			merged[kv[:idx]] = kv[idx+1:]
		}
	}

	for k, v := range LoadEnvFile(UserEnvPath()) {
		merged[k] = v
	}
	for k, v := range LoadEnvFile(l.ProjectEnvPath()) {
		merged[k] = v
	}

	l.cache = merged
	return cloneMap(merged)
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ResolveForRecipe builds the full environment a recipe should run with:
// process env, overridden by user .env, overridden by project .env,
// overridden by workflowContext, overridden by cliOverrides (highest
// priority), then filled in by each declared variable's default where still
// unset. Returns an aggregated error naming every missing required variable
// that no tier or default supplied.
func (l *Loader) ResolveForRecipe(definitions map[string]VarDefinition, cliOverrides map[string]string, workflowContext *WorkflowContext) (map[string]string, error) {
	merged := l.LoadAll(false)

	if workflowContext != nil {
		for k, v := range workflowContext.AsMap() {
			merged[k] = v
		}
	}
	for k, v := range cliOverrides {
		merged[k] = v
	}

	var missing []string
	for name, def := range definitions {
		if _, ok := merged[name]; ok {
			continue
		}
		if def.Default != nil {
			merged[name] = *def.Default
			continue
		}
		if def.Required {
			label := name
			if def.Description != "" {
				label = fmt.Sprintf("%s (%s)", name, def.Description)
			}
			missing = append(missing, label)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		logging.EnvLogger.Warn("missing required environment variables: %s", strings.Join(missing, ", "))
		return nil, ferrors.E(ferrors.KindMissingEnvVar, "env.ResolveForRecipe", fmt.Errorf(
			"missing required environment variables: %s (set them in %s or %s, or pass --env)",
			strings.Join(missing, ", "), l.ProjectEnvPath(), UserEnvPath()))
	}

	return merged, nil
}

// GetRecipeEnvSubset resolves the full environment and returns only the
// declared variables, useful for logging a recipe's inputs without leaking
// the rest of the process environment.
func (l *Loader) GetRecipeEnvSubset(definitions map[string]VarDefinition, cliOverrides map[string]string, workflowContext *WorkflowContext) (map[string]string, error) {
	full, err := l.ResolveForRecipe(definitions, cliOverrides, workflowContext)
	if err != nil {
		return nil, err
	}
	subset := make(map[string]string, len(definitions))
	for name := range definitions {
		if v, ok := full[name]; ok {
			subset[name] = v
		}
	}
	return subset, nil
}

// SaveEnvFile fully overwrites path with one "KEY=value" line per entry.
func SaveEnvFile(path string, vars map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ferrors.E(ferrors.KindFileSystem, "env.SaveEnvFile", err)
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(vars[k])
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return ferrors.E(ferrors.KindFileSystem, "env.SaveEnvFile", err)
	}
	return nil
}

// UpdateEnvFile rewrites path in place: comments, blank lines, and
// malformed lines are preserved verbatim; keys present in updates are
// rewritten (or dropped, when their value is nil); keys absent from the
// file but present in updates are appended.
func UpdateEnvFile(path string, updates map[string]*string) error {
	var lines []string
	updatedKeys := map[string]bool{}

	if data, err := os.ReadFile(path); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			stripped := strings.TrimSpace(line)
			if stripped == "" || strings.HasPrefix(stripped, "#") {
				lines = append(lines, line)
				continue
			}
			m := envLinePattern.FindStringSubmatch(stripped)
			if m == nil {
				lines = append(lines, line)
				continue
			}
			key := m[1]
			if newVal, ok := updates[key]; ok {
				if newVal != nil {
					lines = append(lines, fmt.Sprintf("%s=%s", key, *newVal))
				}
				updatedKeys[key] = true
			} else {
				lines = append(lines, line)
			}
		}
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !updatedKeys[k] && updates[k] != nil {
			lines = append(lines, fmt.Sprintf("%s=%s", k, *updates[k]))
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ferrors.E(ferrors.KindFileSystem, "env.UpdateEnvFile", err)
	}
	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return ferrors.E(ferrors.KindFileSystem, "env.UpdateEnvFile", err)
	}
	return nil
}
