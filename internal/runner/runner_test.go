package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cronsentinel/cronsentinel/internal/errs"
	"github.com/cronsentinel/cronsentinel/internal/job"
)

// useShellInterpreter lets tests run a shell script through Run without
// requiring a real Ruby install; it substitutes Interpreter with "sh".
func useShellInterpreter(t *testing.T) {
	t.Helper()
	prev := Interpreter
	Interpreter = "sh"
	t.Cleanup(func() { Interpreter = prev })
}

func newDescriptor(t *testing.T, script string, timeoutSeconds int) *job.Descriptor {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "execute.rb"), []byte(script), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("schedule: \"* * * * *\"\n"), 0o644))
	return &job.Descriptor{
		Name:           "test-job",
		Path:           dir,
		Schedule:       "* * * * *",
		TimeoutSeconds: timeoutSeconds,
	}
}

func TestRun_Success(t *testing.T) {
	useShellInterpreter(t)
	d := newDescriptor(t, "echo hello world\n", 5)

	res, err := Run(context.Background(), d, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Output, "hello world")
	assert.Greater(t, res.ExecutionTime, time.Duration(0))
}

func TestRun_NonZeroExit(t *testing.T) {
	useShellInterpreter(t)
	d := newDescriptor(t, "echo failing; exit 3\n", 5)

	res, err := Run(context.Background(), d, nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Execution))
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Success)
}

func TestRun_Timeout(t *testing.T) {
	useShellInterpreter(t)
	d := newDescriptor(t, "sleep 5\n", 1)

	res, err := Run(context.Background(), d, nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Timeout))
	assert.True(t, res.TimedOut)
}

func TestRun_EnvironmentPassedThrough(t *testing.T) {
	useShellInterpreter(t)
	d := newDescriptor(t, "echo \"VALUE=$TEST_ENV\"\n", 5)

	res, err := Run(context.Background(), d, map[string]string{"TEST_ENV": "integration_test"})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "VALUE=integration_test")
}

func TestRun_RevalidatesExecutableBeforeSpawn(t *testing.T) {
	useShellInterpreter(t)
	d := newDescriptor(t, "echo ok\n", 5)
	require.NoError(t, os.WriteFile(d.ExecutablePath(), []byte("system(\"evil\")\n"), 0o755))

	_, err := Run(context.Background(), d, nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Security))
}

func TestHasSanitizedPrefix(t *testing.T) {
	assert.True(t, hasSanitizedPrefix("RUBY_VERSION"))
	assert.True(t, hasSanitizedPrefix("GEM_HOME"))
	assert.False(t, hasSanitizedPrefix("PATH"))
}

func TestFilteredOSEnviron_StripsRubyAndGemVars(t *testing.T) {
	t.Setenv("RUBY_VERSION", "3.2")
	t.Setenv("GEM_HOME", "/tmp/gems")
	t.Setenv("KEEP_ME", "yes")

	env := filteredOSEnviron()
	for _, kv := range env {
		assert.NotContains(t, kv, "RUBY_VERSION=")
		assert.NotContains(t, kv, "GEM_HOME=")
	}
}
