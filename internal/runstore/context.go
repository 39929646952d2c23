package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ferrors "frago/internal/errors"
)

// CurrentRunEnvVar overrides the on-disk context file when set, taking
// priority over whatever run set-context last recorded.
const CurrentRunEnvVar = "FRAGO_CURRENT_RUN"

// ContextManager enforces the single-active-run invariant: at most one run
// may be "current" at a time, tracked in a config file under fragoHome.
type ContextManager struct {
	FragoHome   string
	ProjectsDir string

	configFile string
}

// NewContextManager builds a ContextManager rooted at fragoHome (typically
// ~/.frago) tracking runs under projectsDir.
func NewContextManager(fragoHome, projectsDir string) *ContextManager {
	return &ContextManager{
		FragoHome:   fragoHome,
		ProjectsDir: projectsDir,
		configFile:  filepath.Join(fragoHome, "current_run"),
	}
}

// GetCurrentRun resolves the active run: the FRAGO_CURRENT_RUN environment
// variable takes priority over the persisted context file. A context
// pointing at a run directory that no longer exists is cleared and reported
// as KindRunNotFound.
func (c *ContextManager) GetCurrentRun() (CurrentRunContext, error) {
	if envRunID := os.Getenv(CurrentRunEnvVar); envRunID != "" {
		runDir := filepath.Join(c.ProjectsDir, envRunID)
		if _, err := os.Stat(runDir); err != nil {
			return CurrentRunContext{}, ferrors.E(ferrors.KindRunNotFound, "runstore.GetCurrentRun",
				fmt.Errorf("run %q not found", envRunID))
		}

		theme := envRunID
		if data, err := os.ReadFile(filepath.Join(runDir, metadataFileName)); err == nil {
			var instance RunInstance
			if json.Unmarshal(data, &instance) == nil && instance.ThemeDescription != "" {
				theme = instance.ThemeDescription
			}
		}
		return CurrentRunContext{RunID: envRunID, LastAccessed: time.Now(), ThemeDescription: theme}, nil
	}

	data, err := os.ReadFile(c.configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return CurrentRunContext{}, ferrors.E(ferrors.KindContextNotSet, "runstore.GetCurrentRun", nil)
		}
		return CurrentRunContext{}, ferrors.E(ferrors.KindFileSystem, "runstore.GetCurrentRun", err)
	}

	var ctx CurrentRunContext
	if err := json.Unmarshal(data, &ctx); err != nil {
		return CurrentRunContext{}, ferrors.E(ferrors.KindFileSystem, "runstore.GetCurrentRun", fmt.Errorf("parse %q: %w", c.configFile, err))
	}

	if _, err := os.Stat(filepath.Join(c.ProjectsDir, ctx.RunID)); err != nil {
		c.clearContext()
		return CurrentRunContext{}, ferrors.E(ferrors.KindRunNotFound, "runstore.GetCurrentRun",
			fmt.Errorf("run %q no longer exists", ctx.RunID))
	}
	return ctx, nil
}

// SetCurrentRun makes runID the active run. It refuses to override a
// different run that's already active (KindContextAlreadySet); setting the
// same run again, or overwriting a corrupted context file, is allowed.
func (c *ContextManager) SetCurrentRun(runID, themeDescription string) (CurrentRunContext, error) {
	if data, err := os.ReadFile(c.configFile); err == nil {
		var existing struct {
			RunID string `json:"run_id"`
		}
		if json.Unmarshal(data, &existing) == nil && existing.RunID != "" && existing.RunID != runID {
			return CurrentRunContext{}, ferrors.E(ferrors.KindContextAlreadySet, "runstore.SetCurrentRun",
				fmt.Errorf("run %q is currently active", existing.RunID))
		}
	}

	runDir := filepath.Join(c.ProjectsDir, runID)
	if _, err := os.Stat(runDir); err != nil {
		return CurrentRunContext{}, ferrors.E(ferrors.KindRunNotFound, "runstore.SetCurrentRun", fmt.Errorf("run %q not found", runID))
	}

	if err := ensureDir(c.FragoHome); err != nil {
		return CurrentRunContext{}, err
	}

	ctx := CurrentRunContext{RunID: runID, LastAccessed: time.Now(), ThemeDescription: themeDescription}
	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return CurrentRunContext{}, ferrors.E(ferrors.KindFileSystem, "runstore.SetCurrentRun", err)
	}
	if err := os.WriteFile(c.configFile, data, 0o644); err != nil {
		return CurrentRunContext{}, ferrors.E(ferrors.KindFileSystem, "runstore.SetCurrentRun", fmt.Errorf("write %q: %w", c.configFile, err))
	}

	// Best-effort refresh of the run's own last_accessed; failure here
	// doesn't invalidate the context switch that already succeeded.
	metadataFile := filepath.Join(runDir, metadataFileName)
	if metaData, err := os.ReadFile(metadataFile); err == nil {
		var instance RunInstance
		if json.Unmarshal(metaData, &instance) == nil {
			instance.LastAccessed = ctx.LastAccessed
			if out, err := json.MarshalIndent(instance, "", "  "); err == nil {
				_ = os.WriteFile(metadataFile, out, 0o644)
			}
		}
	}

	return ctx, nil
}

func (c *ContextManager) clearContext() {
	_ = os.Remove(c.configFile)
}

// ReleaseContext clears the active run and reports which run_id, if any, was
// released.
func (c *ContextManager) ReleaseContext() (string, bool) {
	data, err := os.ReadFile(c.configFile)
	if err != nil {
		return "", false
	}
	var ctx struct {
		RunID string `json:"run_id"`
	}
	_ = json.Unmarshal(data, &ctx)
	c.clearContext()
	return ctx.RunID, ctx.RunID != ""
}

// GetCurrentRunID is a non-erroring convenience over GetCurrentRun, useful
// for call sites that just want to know whether a run is active.
func (c *ContextManager) GetCurrentRunID() (string, bool) {
	ctx, err := c.GetCurrentRun()
	if err != nil {
		return "", false
	}
	return ctx.RunID, true
}
