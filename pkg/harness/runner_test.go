package harness

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunnerRequiresCommand(t *testing.T) {
	_, err := NewRunner(RunnerConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test command is required")
}

func TestRunnerSuccess(t *testing.T) {
	var stdout bytes.Buffer
	r, err := NewRunner(RunnerConfig{
		Command: []string{"sh", "-c", "echo all tests passed"},
		Stdout:  &stdout,
	})
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.False(t, result.TimedOut)
	assert.Contains(t, stdout.String(), "all tests passed")
}

func TestRunnerNonZeroExit(t *testing.T) {
	r, err := NewRunner(RunnerConfig{
		Command: []string{"sh", "-c", "exit 3"},
		Stdout:  &bytes.Buffer{},
		Stderr:  &bytes.Buffer{},
	})
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.False(t, result.TimedOut)
}

func TestRunnerStartFailure(t *testing.T) {
	r, err := NewRunner(RunnerConfig{
		Command: []string{"/this/binary/does/not/exist"},
	})
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "starting test command")
}

func TestRunnerTimeout(t *testing.T) {
	r, err := NewRunner(RunnerConfig{
		Command: []string{"sh", "-c", "sleep 10"},
		Timeout: 200 * time.Millisecond,
		Stdout:  &bytes.Buffer{},
		Stderr:  &bytes.Buffer{},
	})
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.NotEqual(t, 0, result.ExitCode)
}

func TestRunnerInjectsCoverageEnv(t *testing.T) {
	var stdout bytes.Buffer
	r, err := NewRunner(RunnerConfig{
		Command:  []string{"sh", "-c", `echo "$GOCOVERDIR|$FINK_COVERDIR|$EXTRA"`},
		CoverDir: "/tmp/fink-cov",
		Env:      map[string]string{"EXTRA": "value"},
		Stdout:   &stdout,
	})
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, stdout.String(), "/tmp/fink-cov|/tmp/fink-cov|value")
}

func TestRunnerConfiguredEnvWins(t *testing.T) {
	var stdout bytes.Buffer
	r, err := NewRunner(RunnerConfig{
		Command:  []string{"sh", "-c", `echo "$GOCOVERDIR"`},
		CoverDir: "/tmp/fink-cov",
		Env:      map[string]string{"GOCOVERDIR": "/override"},
		Stdout:   &stdout,
	})
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "/override")
}

func TestRunnerWorkingDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), []byte("here"), 0o644))

	var stdout bytes.Buffer
	r, err := NewRunner(RunnerConfig{
		Command: []string{"sh", "-c", "cat marker"},
		Dir:     dir,
		Stdout:  &stdout,
	})
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, stdout.String(), "here")
}
