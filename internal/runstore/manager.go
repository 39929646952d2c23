package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ferrors "frago/internal/errors"
)

const metadataFileName = ".metadata.json"

// Manager creates, finds, lists, and archives run instances under a single
// projects directory.
type Manager struct {
	ProjectsDir string
}

// NewManager returns a Manager rooted at projectsDir, creating it if needed.
func NewManager(projectsDir string) (*Manager, error) {
	if err := ensureDir(projectsDir); err != nil {
		return nil, err
	}
	return &Manager{ProjectsDir: projectsDir}, nil
}

func (m *Manager) runDir(runID string) string { return filepath.Join(m.ProjectsDir, runID) }

// CreateRun provisions a new run directory (logs/, screenshots/, scripts/,
// outputs/) and writes its metadata. When runID is empty one is derived from
// themeDescription; either way a "YYYYMMDD-" date prefix is prepended unless
// already present.
func (m *Manager) CreateRun(themeDescription, runID string) (RunInstance, error) {
	datePrefix := time.Now().Format("20060102")

	if runID == "" {
		runID = generateThemeSlug(themeDescription)
	} else if !IsValidRunID(runID) {
		return RunInstance{}, ferrors.E(ferrors.KindInvalidRunID, "runstore.CreateRun",
			fmt.Errorf("run_id %q must be lowercase letters, digits, hyphens, length 1-50", runID))
	}
	if !strings.HasPrefix(runID, datePrefix) {
		runID = datePrefix + "-" + runID
	}
	if !IsValidRunID(runID) {
		return RunInstance{}, ferrors.E(ferrors.KindInvalidRunID, "runstore.CreateRun",
			fmt.Errorf("generated run_id %q exceeds the 50-character limit", runID))
	}

	dir := m.runDir(runID)
	for _, sub := range []string{"", "logs", "screenshots", "scripts", "outputs"} {
		if err := ensureDir(filepath.Join(dir, sub)); err != nil {
			return RunInstance{}, err
		}
	}

	now := time.Now()
	instance := RunInstance{
		RunID:            runID,
		ThemeDescription: themeDescription,
		CreatedAt:        now,
		LastAccessed:     now,
		Status:           RunStatusActive,
	}
	if err := m.writeMetadata(dir, instance); err != nil {
		return RunInstance{}, err
	}
	return instance, nil
}

func (m *Manager) writeMetadata(dir string, instance RunInstance) error {
	data, err := json.MarshalIndent(instance, "", "  ")
	if err != nil {
		return ferrors.E(ferrors.KindFileSystem, "runstore.writeMetadata", err)
	}
	path := filepath.Join(dir, metadataFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ferrors.E(ferrors.KindFileSystem, "runstore.writeMetadata", fmt.Errorf("write %q: %w", path, err))
	}
	return nil
}

// FindRun loads a run's metadata.
func (m *Manager) FindRun(runID string) (RunInstance, error) {
	dir := m.runDir(runID)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return RunInstance{}, ferrors.E(ferrors.KindRunNotFound, "runstore.FindRun", fmt.Errorf("run %q not found", runID))
	}

	path := filepath.Join(dir, metadataFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return RunInstance{}, ferrors.E(ferrors.KindFileSystem, "runstore.FindRun", fmt.Errorf("read %q: %w", path, err))
	}

	var instance RunInstance
	if err := json.Unmarshal(data, &instance); err != nil {
		return RunInstance{}, ferrors.E(ferrors.KindFileSystem, "runstore.FindRun", fmt.Errorf("parse %q: %w", path, err))
	}
	return instance, nil
}

// ListRuns returns every run's summary (metadata plus log/screenshot
// counts), optionally filtered by status, newest-last-accessed first.
func (m *Manager) ListRuns(status *RunStatus) ([]RunSummary, error) {
	entries, err := os.ReadDir(m.ProjectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ferrors.E(ferrors.KindFileSystem, "runstore.ListRuns", err)
	}

	var summaries []RunSummary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.ProjectsDir, entry.Name())
		data, err := os.ReadFile(filepath.Join(dir, metadataFileName))
		if err != nil {
			continue
		}
		var instance RunInstance
		if err := json.Unmarshal(data, &instance); err != nil {
			continue
		}
		if status != nil && instance.Status != *status {
			continue
		}

		logger := NewRunLogger(dir)
		logCount, _ := logger.CountLogs()
		screenshotCount := countScreenshots(dir)

		summaries = append(summaries, RunSummary{
			RunID:            instance.RunID,
			Status:           instance.Status,
			CreatedAt:        instance.CreatedAt,
			LastAccessed:     instance.LastAccessed,
			ThemeDescription: instance.ThemeDescription,
			LogCount:         logCount,
			ScreenshotCount:  screenshotCount,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastAccessed.After(summaries[j].LastAccessed)
	})
	return summaries, nil
}

// ArchiveRun marks a run ARCHIVED and persists the change.
func (m *Manager) ArchiveRun(runID string) (RunInstance, error) {
	instance, err := m.FindRun(runID)
	if err != nil {
		return RunInstance{}, err
	}
	instance.Status = RunStatusArchived
	if err := m.writeMetadata(m.runDir(runID), instance); err != nil {
		return RunInstance{}, err
	}
	return instance, nil
}

// GetRunStatistics counts log entries, screenshots, scripts, and total disk
// usage for a run.
func (m *Manager) GetRunStatistics(runID string) (RunStatistics, error) {
	if _, err := m.FindRun(runID); err != nil {
		return RunStatistics{}, err
	}
	dir := m.runDir(runID)

	logger := NewRunLogger(dir)
	logCount, err := logger.CountLogs()
	if err != nil {
		return RunStatistics{}, err
	}

	scriptCount := 0
	if entries, err := os.ReadDir(filepath.Join(dir, "scripts")); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			switch filepath.Ext(e.Name()) {
			case ".py", ".js", ".sh":
				scriptCount++
			}
		}
	}

	var diskUsage int64
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		diskUsage += info.Size()
		return nil
	})

	return RunStatistics{
		LogEntries:     logCount,
		Screenshots:    countScreenshots(dir),
		Scripts:        scriptCount,
		DiskUsageBytes: diskUsage,
	}, nil
}

func countScreenshots(runDir string) int {
	entries, err := os.ReadDir(filepath.Join(runDir, "screenshots"))
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".png") {
			count++
		}
	}
	return count
}

// generateThemeSlug derives a run_id stem from a free-form theme description,
// keeping only ASCII letters, digits, and hyphens. Falls back to a
// timestamp-based stem when the description slugifies to nothing (pure
// punctuation or non-ASCII text).
func generateThemeSlug(description string) string {
	var b strings.Builder
	lastWasHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(description) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastWasHyphen = false
		default:
			if !lastWasHyphen {
				b.WriteByte('-')
				lastWasHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	const maxLength = 50
	if len(slug) > maxLength {
		slug = strings.Trim(slug[:maxLength], "-")
	}
	if slug == "" {
		slug = fmt.Sprintf("task-%d", time.Now().Unix())
	}
	return slug
}
