package runstore

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "frago/internal/errors"
)

func TestManager_CreateAndFindRun(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	instance, err := m.CreateRun("Upwork python jobs search", "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(instance.RunID, "upwork-python-jobs-search"))
	assert.True(t, strings.HasPrefix(instance.RunID, time.Now().Format("20060102")+"-"))
	assert.Equal(t, RunStatusActive, instance.Status)

	found, err := m.FindRun(instance.RunID)
	require.NoError(t, err)
	assert.Equal(t, instance.ThemeDescription, found.ThemeDescription)
}

func TestManager_FindRun_NotFound(t *testing.T) {
	m, _ := NewManager(t.TempDir())
	_, err := m.FindRun("20260101-nonexistent")
	assert.True(t, ferrors.Is(err, ferrors.KindRunNotFound))
}

func TestManager_CreateRun_InvalidCustomID(t *testing.T) {
	m, _ := NewManager(t.TempDir())
	_, err := m.CreateRun("task", "Not Valid!!")
	assert.True(t, ferrors.Is(err, ferrors.KindInvalidRunID))
}

func TestManager_CreateRun_CustomIDGetsDatePrefix(t *testing.T) {
	m, _ := NewManager(t.TempDir())
	instance, err := m.CreateRun("task", "my-custom-run")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(instance.RunID, "my-custom-run"))
}

func TestManager_ArchiveRun(t *testing.T) {
	m, _ := NewManager(t.TempDir())
	instance, _ := m.CreateRun("archive me", "")

	archived, err := m.ArchiveRun(instance.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusArchived, archived.Status)

	reloaded, _ := m.FindRun(instance.RunID)
	assert.Equal(t, RunStatusArchived, reloaded.Status, "archive did not persist")
}

func TestManager_ListRuns(t *testing.T) {
	m, _ := NewManager(t.TempDir())
	a, _ := m.CreateRun("first task", "")
	time.Sleep(2 * time.Millisecond)
	b, _ := m.CreateRun("second task", "")

	logger := NewRunLogger(m.runDir(b.RunID))
	_, _ = logger.WriteLog("step one", LogSuccess, ActionNavigation, ExecutionCommand, nil)

	runs, err := m.ListRuns(nil)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, b.RunID, runs[0].RunID, "expected most recently accessed first")
	assert.Equal(t, 1, runs[0].LogCount)
	_ = a
}

func TestManager_ListRuns_FilterByStatus(t *testing.T) {
	m, _ := NewManager(t.TempDir())
	active, _ := m.CreateRun("active task", "")
	archived, _ := m.CreateRun("archived task", "")
	_, _ = m.ArchiveRun(archived.RunID)

	status := RunStatusActive
	runs, err := m.ListRuns(&status)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, active.RunID, runs[0].RunID)
}

func TestManager_GetRunStatistics(t *testing.T) {
	m, _ := NewManager(t.TempDir())
	instance, _ := m.CreateRun("stats task", "")
	logger := NewRunLogger(m.runDir(instance.RunID))
	_, _ = logger.WriteLog("step", LogSuccess, ActionNavigation, ExecutionCommand, nil)

	stats, err := m.GetRunStatistics(instance.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.LogEntries)
}
