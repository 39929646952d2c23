package recipe

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	ferrors "frago/internal/errors"
	"frago/internal/logging"
)

// scanConcurrency bounds how many recipe.md files are parsed in parallel per
// subdirectory scan; parsing is pure CPU+disk work with no shared state
// until results are merged into the registry map.
const scanConcurrency = 8

// scriptExtensions maps a runtime to the script file extension its recipe
// directory must contain.
var scriptExtensions = map[string][]string{
	"chrome-js": {".js"},
	"python":    {".py"},
	"shell":     {".sh"},
}

// sourceUser is the only source label this registry ever produces: frago
// scans exactly one search path, the user's recipe directory.
const sourceUser = "User"

// Recipe is one registered recipe: its parsed metadata plus the filesystem
// locations backing it.
type Recipe struct {
	Metadata     Metadata
	ScriptPath   string
	MetadataPath string
	Source       string
	BaseDir      string
}

// ExamplesDir returns the recipe's examples/ subdirectory, or "" if it
// doesn't have one.
func (r Recipe) ExamplesDir() string {
	if r.BaseDir == "" {
		return ""
	}
	dir := filepath.Join(r.BaseDir, "examples")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return ""
}

// ListExamples returns every file directly under the recipe's examples/
// directory, or nil if it has none.
func (r Recipe) ListExamples() []string {
	dir := r.ExamplesDir()
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out
}

// Registry indexes every recipe discovered under its search paths, nested by
// name then source so the same recipe name can exist in multiple sources.
type Registry struct {
	SearchPaths []string
	recipes     map[string]map[string]Recipe
}

// NewRegistry builds a Registry whose only search path is
// "~/.frago/recipes", added only if that directory exists.
func NewRegistry() *Registry {
	r := &Registry{recipes: map[string]map[string]Recipe{}}
	home, err := os.UserHomeDir()
	if err != nil {
		return r
	}
	userPath := filepath.Join(home, ".frago", "recipes")
	if info, err := os.Stat(userPath); err == nil && info.IsDir() {
		r.SearchPaths = append(r.SearchPaths, userPath)
	}
	return r
}

// Scan clears the index and rebuilds it from every search path, then removes
// workflow recipes whose declared dependencies aren't registered anywhere.
func (r *Registry) Scan() {
	r.recipes = map[string]map[string]Recipe{}
	var mu sync.Mutex
	for _, path := range r.SearchPaths {
		r.scanDirectory(path, sourceUser, &mu)
	}
	r.validateDependencies()
}

// scanDirectory walks the fixed {atomic/chrome, atomic/system, workflows}
// subtree under basePath. Each subtree can hold an arbitrary number of
// independent recipes, so recipe.md files within one subdirectory are parsed
// concurrently (bounded by scanConcurrency); each goroutine merges its
// recipe into the registry under mu as soon as it has parsed it.
func (r *Registry) scanDirectory(basePath, source string, mu *sync.Mutex) {
	for _, subdir := range []string{"atomic/chrome", "atomic/system", "workflows"} {
		dirPath := filepath.Join(basePath, subdir)
		entries, err := os.ReadDir(dirPath)
		if err != nil {
			continue
		}

		g := new(errgroup.Group)
		g.SetLimit(scanConcurrency)
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			recipeDir := filepath.Join(dirPath, entry.Name())
			metadataPath := filepath.Join(recipeDir, "recipe.md")
			if _, err := os.Stat(metadataPath); err != nil {
				continue
			}

			g.Go(func() error {
				recipe, ok := r.buildRecipe(metadataPath, source, recipeDir)
				if !ok {
					return nil
				}
				mu.Lock()
				defer mu.Unlock()
				if r.recipes[recipe.Metadata.Name] == nil {
					r.recipes[recipe.Metadata.Name] = map[string]Recipe{}
				}
				r.recipes[recipe.Metadata.Name][source] = recipe
				return nil
			})
		}
		_ = g.Wait()
	}
}

// buildRecipe parses, validates, and locates the script for one recipe
// directory. Any failure is a silent skip, logged at debug level, matching
// a registry that tolerates partially-broken recipes in the wild.
func (r *Registry) buildRecipe(metadataPath, source, baseDir string) (Recipe, bool) {
	metadata, err := ParseMetadataFile(metadataPath)
	if err != nil {
		logging.RecipeLogger.Debug("skipping recipe at %s: %v", metadataPath, err)
		return Recipe{}, false
	}
	if err := ValidateMetadata(metadata); err != nil {
		logging.RecipeLogger.Debug("skipping recipe at %s: %v", metadataPath, err)
		return Recipe{}, false
	}

	scriptPath := r.findScriptFile(baseDir, metadata.Runtime)
	if scriptPath == "" {
		logging.RecipeLogger.Debug("skipping recipe '%s': no script file for runtime %s", metadata.Name, metadata.Runtime)
		return Recipe{}, false
	}

	return Recipe{
		Metadata:     metadata,
		ScriptPath:   scriptPath,
		MetadataPath: metadataPath,
		Source:       source,
		BaseDir:      baseDir,
	}, true
}

func (r *Registry) findScriptFile(recipeDir, runtime string) string {
	for _, ext := range scriptExtensions[runtime] {
		candidate := filepath.Join(recipeDir, "recipe"+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Find looks up a recipe by name, optionally restricted to a source
// ('project' | 'user' | 'example', case-insensitive). An empty source
// defaults to the User source.
func (r *Registry) Find(name, source string) (Recipe, error) {
	sourcesDict, ok := r.recipes[name]
	if !ok {
		return Recipe{}, ferrors.E(ferrors.KindRecipeNotFound, "recipe.Find", notFoundErr(name, r.SearchPaths))
	}

	if source != "" {
		label := strings.ToUpper(source[:1]) + strings.ToLower(source[1:])
		recipe, ok := sourcesDict[label]
		if !ok {
			return Recipe{}, ferrors.E(ferrors.KindRecipeNotFound, "recipe.Find",
				notFoundErr(name+" (source: "+source+")", r.SearchPaths))
		}
		return recipe, nil
	}

	if recipe, ok := sourcesDict[sourceUser]; ok {
		return recipe, nil
	}
	return Recipe{}, ferrors.E(ferrors.KindRecipeNotFound, "recipe.Find", notFoundErr(name, r.SearchPaths))
}

func notFoundErr(name string, searchedPaths []string) error {
	msg := "recipe '" + name + "' not found"
	if len(searchedPaths) > 0 {
		msg += "\n\nSearched paths:\n  - " + strings.Join(searchedPaths, "\n  - ")
	}
	return strErr(msg)
}

type strErr string

func (e strErr) Error() string { return string(e) }

// ListAll returns every registered recipe sorted by name. With
// includeAllSources it returns one Recipe per (name, source) pair; otherwise
// only the User-source recipe for each name.
func (r *Registry) ListAll(includeAllSources bool) []Recipe {
	var result []Recipe
	for _, sourcesDict := range r.recipes {
		if includeAllSources {
			for _, recipe := range sourcesDict {
				result = append(result, recipe)
			}
		} else if recipe, ok := sourcesDict[sourceUser]; ok {
			result = append(result, recipe)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Metadata.Name < result[j].Metadata.Name })
	return result
}

// GetBySource returns every recipe registered under source, sorted by name.
func (r *Registry) GetBySource(source string) []Recipe {
	label := strings.ToUpper(source[:1]) + strings.ToLower(source[1:])
	var result []Recipe
	for _, sourcesDict := range r.recipes {
		if recipe, ok := sourcesDict[label]; ok {
			result = append(result, recipe)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Metadata.Name < result[j].Metadata.Name })
	return result
}

// validateDependencies drops workflow recipes whose declared dependencies
// aren't registered under any source, logging a warning for each.
func (r *Registry) validateDependencies() {
	type removal struct {
		name, source string
		missing      []string
	}
	var toRemove []removal

	for name, sourcesDict := range r.recipes {
		for source, recipe := range sourcesDict {
			if recipe.Metadata.Type != "workflow" {
				continue
			}
			var missing []string
			for _, dep := range recipe.Metadata.Dependencies {
				if _, ok := r.recipes[dep]; !ok {
					missing = append(missing, dep)
				}
			}
			if len(missing) > 0 {
				toRemove = append(toRemove, removal{name, source, missing})
			}
		}
	}

	for _, rm := range toRemove {
		logging.RecipeLogger.Warn("recipe '%s' (%s) has missing dependencies: %s", rm.name, rm.source, strings.Join(rm.missing, ", "))
		delete(r.recipes[rm.name], rm.source)
		if len(r.recipes[rm.name]) == 0 {
			delete(r.recipes, rm.name)
		}
	}
}

// FindAllSources returns every (source, baseDir) pair registered for name.
func (r *Registry) FindAllSources(name string) [][2]string {
	sourcesDict, ok := r.recipes[name]
	if !ok {
		return nil
	}
	var result [][2]string
	if recipe, ok := sourcesDict[sourceUser]; ok {
		result = append(result, [2]string{sourceUser, recipe.BaseDir})
	}
	return result
}
