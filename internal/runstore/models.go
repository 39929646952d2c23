// Package runstore implements the run instance store: per-run directories
// under a projects root, each holding a JSON metadata file, an append-only
// JSONL execution log, and atomically-written screenshots, plus the
// single-active-run context that CLI invocations coordinate through.
package runstore

import (
	"regexp"
	"time"
)

// RunIDPattern is the shape every run_id (including its date prefix) must
// satisfy: lowercase letters, digits, and hyphens, 1-50 characters.
var RunIDPattern = regexp.MustCompile(`^[a-z0-9-]{1,50}$`)

// RunStatus is a run instance's lifecycle state.
type RunStatus string

const (
	RunStatusActive   RunStatus = "active"
	RunStatusArchived RunStatus = "archived"
)

// ActionType categorizes what a logged step did.
type ActionType string

const (
	ActionNavigation      ActionType = "navigation"
	ActionExtraction      ActionType = "extraction"
	ActionInteraction     ActionType = "interaction"
	ActionScreenshot      ActionType = "screenshot"
	ActionRecipeExecution ActionType = "recipe_execution"
	ActionDataProcessing  ActionType = "data_processing"
	ActionAnalysis        ActionType = "analysis"
	ActionUserInteraction ActionType = "user_interaction"
	ActionOther           ActionType = "other"
)

// ExecutionMethod categorizes how a logged step was carried out.
type ExecutionMethod string

const (
	ExecutionCommand  ExecutionMethod = "command"
	ExecutionRecipe   ExecutionMethod = "recipe"
	ExecutionFile     ExecutionMethod = "file"
	ExecutionManual   ExecutionMethod = "manual"
	ExecutionAnalysis ExecutionMethod = "analysis"
	ExecutionTool     ExecutionMethod = "tool"
)

// LogStatus is a logged step's outcome.
type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogError   LogStatus = "error"
	LogWarning LogStatus = "warning"
)

// logSchemaVersion is written into every LogEntry; bumped to 1.1 when the
// data field's shape stabilized.
const logSchemaVersion = "1.1"

// RunInstance is a run's persisted metadata, stored as
// "<run_dir>/.metadata.json".
type RunInstance struct {
	RunID            string    `json:"run_id"`
	ThemeDescription string    `json:"theme_description"`
	CreatedAt        time.Time `json:"created_at"`
	LastAccessed     time.Time `json:"last_accessed"`
	Status           RunStatus `json:"status"`
}

// LogEntry is one line of a run's execution.jsonl.
type LogEntry struct {
	Timestamp       time.Time              `json:"timestamp"`
	Step            string                 `json:"step"`
	Status          LogStatus              `json:"status"`
	ActionType      ActionType             `json:"action_type"`
	ExecutionMethod ExecutionMethod        `json:"execution_method"`
	Data            map[string]interface{} `json:"data"`
	SchemaVersion   string                 `json:"schema_version"`
}

// Screenshot is a recorded screenshot's placement within a run.
type Screenshot struct {
	SequenceNumber int       `json:"sequence_number"`
	Description    string    `json:"description"`
	FilePath       string    `json:"file_path"`
	Timestamp      time.Time `json:"timestamp"`
}

// CurrentRunContext is the single active run pointer, stored at
// "~/.frago/current_run".
type CurrentRunContext struct {
	RunID            string    `json:"run_id"`
	LastAccessed     time.Time `json:"last_accessed"`
	ThemeDescription string    `json:"theme_description"`
}

// RunSummary is the listing shape returned by Manager.ListRuns: a run's
// metadata plus cheap-to-compute statistics.
type RunSummary struct {
	RunID            string    `json:"run_id"`
	Status           RunStatus `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	LastAccessed     time.Time `json:"last_accessed"`
	ThemeDescription string    `json:"theme_description"`
	LogCount         int       `json:"log_count"`
	ScreenshotCount  int       `json:"screenshot_count"`
}

// RunStatistics is the detailed per-run accounting returned by
// Manager.GetRunStatistics.
type RunStatistics struct {
	LogEntries     int   `json:"log_entries"`
	Screenshots    int   `json:"screenshots"`
	Scripts        int   `json:"scripts"`
	DiskUsageBytes int64 `json:"disk_usage_bytes"`
}

// IsValidRunID reports whether id matches RunIDPattern.
func IsValidRunID(id string) bool {
	return RunIDPattern.MatchString(id)
}
