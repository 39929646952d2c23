package subprocess

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubprocess_StderrTailCapturesOutput(t *testing.T) {
	proc := New(Config{
		Command: "bash",
		Args:    []string{"-c", "echo err 1>&2; exit 2"},
	})
	require.NoError(t, proc.Start(context.Background()))
	require.Error(t, proc.Wait())

	assert.Contains(t, proc.StderrTail(), "err")
}

func TestSubprocess_CapturesStdout(t *testing.T) {
	proc := New(Config{
		Command: "bash",
		Args:    []string{"-c", "echo -n hello"},
	})
	require.NoError(t, proc.Start(context.Background()))
	require.NoError(t, proc.Wait())

	assert.Equal(t, "hello", string(proc.Stdout()))
	assert.False(t, proc.StdoutOverflowed())
}

func TestSubprocess_StdoutCapTruncatesButTracksTotal(t *testing.T) {
	proc := New(Config{
		Command:   "bash",
		Args:      []string{"-c", "printf '0123456789'"},
		MaxStdout: 4,
	})
	require.NoError(t, proc.Start(context.Background()))
	require.NoError(t, proc.Wait())

	assert.Equal(t, "0123", string(proc.Stdout()))
	assert.EqualValues(t, 10, proc.StdoutSize())
	assert.True(t, proc.StdoutOverflowed())
}

func TestSubprocess_StopKillsProcessGroup(t *testing.T) {
	proc := New(Config{
		Command: "bash",
		Args:    []string{"-c", "sleep 30"},
	})
	require.NoError(t, proc.Start(context.Background()))
	require.NoError(t, proc.Stop())
	assert.Error(t, proc.Wait(), "Wait() should report the process was killed")
}
