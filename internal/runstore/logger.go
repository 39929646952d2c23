package runstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ferrors "frago/internal/errors"
)

// RunLogger appends structured execution steps to a run's execution.jsonl
// and reads them back, tolerating corrupted lines unless told not to.
type RunLogger struct {
	runDir string
	logDir string
	logFile string
}

// NewRunLogger returns a logger for the run directory runDir.
func NewRunLogger(runDir string) *RunLogger {
	logDir := filepath.Join(runDir, "logs")
	return &RunLogger{runDir: runDir, logDir: logDir, logFile: filepath.Join(logDir, "execution.jsonl")}
}

// WriteLog appends one entry, flushing it to disk before returning.
func (l *RunLogger) WriteLog(step string, status LogStatus, actionType ActionType, method ExecutionMethod, data map[string]interface{}) (LogEntry, error) {
	if err := ensureDir(l.logDir); err != nil {
		return LogEntry{}, err
	}
	if data == nil {
		data = map[string]interface{}{}
	}

	entry := LogEntry{
		Timestamp:       time.Now(),
		Step:            step,
		Status:          status,
		ActionType:      actionType,
		ExecutionMethod: method,
		Data:            data,
		SchemaVersion:   logSchemaVersion,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return LogEntry{}, ferrors.E(ferrors.KindFileSystem, "runstore.WriteLog", err)
	}

	f, err := os.OpenFile(l.logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return LogEntry{}, ferrors.E(ferrors.KindFileSystem, "runstore.WriteLog", fmt.Errorf("open %q: %w", l.logFile, err))
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return LogEntry{}, ferrors.E(ferrors.KindFileSystem, "runstore.WriteLog", fmt.Errorf("write %q: %w", l.logFile, err))
	}
	if err := f.Sync(); err != nil {
		return LogEntry{}, ferrors.E(ferrors.KindFileSystem, "runstore.WriteLog", fmt.Errorf("flush %q: %w", l.logFile, err))
	}

	return entry, nil
}

// ReadLogs returns logged entries in file order, optionally keeping only the
// last limit entries (limit <= 0 means all). Lines that fail to parse are
// skipped unless skipCorrupted is false, in which case the first bad line
// fails the whole read.
func (l *RunLogger) ReadLogs(limit int, skipCorrupted bool) ([]LogEntry, error) {
	f, err := os.Open(l.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ferrors.E(ferrors.KindFileSystem, "runstore.ReadLogs", err)
	}
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			if !skipCorrupted {
				return nil, ferrors.E(ferrors.KindCorruptedLog, "runstore.ReadLogs",
					fmt.Errorf("%s:%d: %w", l.logFile, lineNum, err))
			}
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, ferrors.E(ferrors.KindFileSystem, "runstore.ReadLogs", err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// CountLogs counts non-blank lines in the log file without fully parsing
// them.
func (l *RunLogger) CountLogs() (int, error) {
	f, err := os.Open(l.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, nil
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Text()) > 0 {
			count++
		}
	}
	return count, nil
}

// GetRecentLogs is a convenience wrapper for ReadLogs(count, true).
func (l *RunLogger) GetRecentLogs(count int) ([]LogEntry, error) {
	return l.ReadLogs(count, true)
}
