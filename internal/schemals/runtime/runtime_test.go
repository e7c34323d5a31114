package runtime

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/schemals/persistence"
)

func testConfig(dir string) Config {
	cfg := DefaultConfig()
	cfg.Workspace = dir
	cfg.ConfigPath = ""
	cfg.SnapshotPath = ""
	return cfg
}

func TestNormalizeResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.LogPath = "logs/schemals.log"
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, filepath.Join(dir, DefaultConfigName), cfg.ConfigPath)
	assert.Equal(t, filepath.Join(dir, "logs", "schemals.log"), cfg.LogPath)
	assert.Equal(t, filepath.Join(dir, ".schemals", "index.db"), cfg.SnapshotPath)
}

func TestNormalizeRejectsBadSettings(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.LogLevel = "loud"
	assert.Error(t, cfg.Normalize())

	cfg = testConfig(t.TempDir())
	cfg.LogFormat = "xml"
	assert.Error(t, cfg.Normalize())

	cfg = Config{}
	assert.Error(t, cfg.Normalize())
}

func TestWorkspaceConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DefaultConfigName)
	watch := false
	require.NoError(t, SaveWorkspaceConfig(path, WorkspaceConfig{
		LogLevel: "debug",
		Watch:    &watch,
		Include:  []string{"*.sd", "*.profile"},
	}))
	wc, err := LoadWorkspaceConfig(path)
	require.NoError(t, err)

	cfg := testConfig(t.TempDir())
	cfg.Apply(wc)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Watch)
	assert.True(t, cfg.Scan)
	assert.Equal(t, []string{"*.sd", "*.profile"}, cfg.Include)
}

func TestNewAppliesFileThenOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigName),
		[]byte("log_level: debug\nsymbol_limit: 10\nscan: false\n"), 0o644))

	rt, err := New(context.Background(), testConfig(dir), func(c *Config) {
		c.SymbolLimit = 5
	})
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, "debug", rt.Config.LogLevel)
	assert.Equal(t, 5, rt.Config.SymbolLimit)
	assert.False(t, rt.Config.Scan)
	assert.Equal(t, "debug", rt.Workspace.LogLevel)
	assert.False(t, rt.APIRunning())
}

func TestNewReportsBrokenConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigName), []byte("scan: [\n"), 0o644))
	cfg := testConfig(dir)
	cfg.LogPath = "schemals.log"
	rt, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, rt.Close())

	data, err := os.ReadFile(filepath.Join(dir, "schemals.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "workspace config load failed")
}

func TestAnalyseAndExport(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.sd"),
		[]byte("schema a {\n    document a {\n        field x type int {}\n    }\n}\n"), 0o644))
	extra := filepath.Join(t.TempDir(), "b.txt")
	require.NoError(t, os.WriteFile(extra, []byte("schema b inherits a {}\n"), 0o644))

	rt, err := New(context.Background(), testConfig(dir))
	require.NoError(t, err)
	defer rt.Close()

	sched, err := rt.Analyse(context.Background(), []string{dir, extra})
	require.NoError(t, err)
	require.Len(t, sched.Documents(), 2)
	b, ok := sched.GetDocument("file://" + filepath.ToSlash(extra))
	require.True(t, ok)
	assert.Zero(t, b.ErrorCount())

	summary, err := rt.ExportSnapshot(context.Background(), sched)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Documents)
	assert.Equal(t, 1, summary.Edges)

	store, err := persistence.NewSnapshotStore(rt.Config.SnapshotPath)
	require.NoError(t, err)
	defer store.Close()
	docs, err := store.Documents(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	_, err = rt.Analyse(context.Background(), []string{filepath.Join(dir, "missing.sd")})
	assert.Error(t, err)
}

func TestStartAPIRequiresAddress(t *testing.T) {
	rt, err := New(context.Background(), testConfig(t.TempDir()))
	require.NoError(t, err)
	defer rt.Close()
	_, err = rt.StartAPI(context.Background(), "")
	assert.Error(t, err)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo, "json").Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	NewLogger(&buf, slog.LevelWarn, "text").Info("hidden")
	assert.Empty(t, buf.String())
}
