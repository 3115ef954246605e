package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerWritesJSONLinesWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Configure(Config{DebugMode: true, Dir: dir, Level: "debug"}))
	defer CloseAll()

	Get(CategoryExecutor).Info("run %s transitioned to %s", "run-1", "executing")

	path := filepath.Join(dir, "executor.log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var e entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &e))
	require.Equal(t, "executor", e.Category)
	require.Equal(t, "info", e.Level)
	require.Contains(t, e.Message, "run-1")
}

func TestLoggerNoOpWhenDebugDisabled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Configure(Config{DebugMode: false, Dir: dir}))
	defer CloseAll()

	// Must not panic and must not create a log file.
	Get(CategoryCache).Error("should not be written")

	_, err := os.Stat(filepath.Join(dir, "cache.log"))
	require.True(t, os.IsNotExist(err))
}

func TestCategoryToggleFiltersIndividualCategories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Configure(Config{
		DebugMode:  true,
		Dir:        dir,
		Categories: map[string]bool{string(CategoryGit): false},
	}))
	defer CloseAll()

	Get(CategoryGit).Info("this should be dropped")
	Get(CategoryPatch).Info("this should land")

	_, err := os.Stat(filepath.Join(dir, "git.log"))
	require.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(dir, "patch.log"))
	require.NoError(t, err)
}

func TestLevelThresholdSuppressesLowerSeverity(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Configure(Config{DebugMode: true, Dir: dir, Level: "warn"}))
	defer CloseAll()

	Get(CategoryBroadcaster).Info("info should be suppressed")
	Get(CategoryBroadcaster).Warn("warn should land")

	data, err := os.ReadFile(filepath.Join(dir, "broadcaster.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "warn should land")
}

func TestTimerLogsDuration(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Configure(Config{DebugMode: true, Dir: dir, Level: "debug"}))
	defer CloseAll()

	timer := StartTimer(CategoryLLM, "generate")
	elapsed := timer.Stop()
	require.GreaterOrEqual(t, elapsed.Nanoseconds(), int64(0))

	data, err := os.ReadFile(filepath.Join(dir, "llm.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), "generate completed")
}
