package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/archive"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/contextbuf"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/logx"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/metrics"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/tokenizer"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func sessionScript() string {
	return fmt.Sprintf(`
steps:
  - {op: add, ref: a, content: %q, category: memory, priority: medium}
  - {op: add, ref: b, content: %q, category: user, priority: high, metadata: {turn: "2"}}
  - {op: add, ref: c, content: %q, category: system, priority: critical}
  - {op: remove, ref: b}
  - {op: remove, ref: b}
  - {op: reset}
`, words(30), words(30), words(30))
}

func TestReplayAndArchiveList(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "archive.db")
	cfgPath := writeFile(t, dir, "ctxbuf.yaml", fmt.Sprintf(`
buffer: {max_tokens: 100, buffer_ratio: 0.2}
tokenizer: {provider: heuristic}
archive: {backend: sqlite, sqlite_path: %q}
`, dbPath))
	scriptPath := writeFile(t, dir, "session.yaml", sessionScript())

	var out bytes.Buffer
	require.NoError(t, replayCmd([]string{"-config", cfgPath, scriptPath}, &out))

	var report Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report), "non-terminal output defaults to JSON")
	require.Len(t, report.Steps, 6)

	assert.True(t, report.Steps[0].OK)
	assert.Equal(t, 1, report.Steps[2].Evicted, "the critical add evicts the medium item before the high one")
	assert.True(t, report.Steps[3].OK)
	assert.False(t, report.Steps[4].OK)
	assert.Equal(t, "not present", report.Steps[4].Error)
	assert.Zero(t, report.Steps[5].Tokens)
	assert.Zero(t, report.Stats.Items)

	assert.Equal(t, int64(3), report.Metrics.Adds[metrics.StatusSuccess])
	assert.Equal(t, int64(1), report.Metrics.Evictions[metrics.OutcomePromoted])
	assert.Equal(t, int64(1), report.Metrics.ArchiveOK)

	out.Reset()
	require.NoError(t, archiveCmd([]string{"list", "-config", cfgPath, "-format", "json"}, &out))
	var records []archive.Record
	require.NoError(t, json.Unmarshal(out.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, contextbuf.CategoryMemory, records[0].Item.Category)

	out.Reset()
	require.NoError(t, archiveCmd([]string{"list", "-config", cfgPath, "-category", "code", "-format", "table"}, &out))
	assert.Equal(t, 1, strings.Count(out.String(), "\n"), "header only")
}

func TestReplayTableAndProm(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "ctxbuf.json", `{"buffer": {"max_tokens": 100}, "tokenizer": {"provider": "heuristic"}}`)
	scriptPath := writeFile(t, dir, "session.yaml", sessionScript())

	var out bytes.Buffer
	require.NoError(t, replayCmd([]string{"-config", cfgPath, "-format", "table", scriptPath}, &out))
	assert.Contains(t, out.String(), "STEP")
	assert.Contains(t, out.String(), "not present")
	assert.Contains(t, out.String(), "empty (0/80 tokens usable)")
	assert.Contains(t, out.String(), "adds: 3 ok, 0 failed; evictions: 1 promoted, 0 discarded")

	out.Reset()
	require.NoError(t, replayCmd([]string{"-config", cfgPath, "-format", "prom", scriptPath}, &out))
	assert.Contains(t, out.String(), "contextbuf_adds_total")
}

func TestReplayErrors(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, replayCmd(nil, &bytes.Buffer{}))
	assert.Error(t, replayCmd([]string{"-format", "xml", "x.yaml"}, &bytes.Buffer{}))
	assert.Error(t, replayCmd([]string{filepath.Join(dir, "missing.yaml")}, &bytes.Buffer{}))

	bad := writeFile(t, dir, "bad.yaml", `steps: [{op: add, content: x, category: weather}]`)
	assert.Error(t, replayCmd([]string{bad}, &bytes.Buffer{}))
}

func TestReplayUnknownOp(t *testing.T) {
	buf, err := contextbuf.New(contextbuf.DefaultConfig(), tokenizer.Heuristic{})
	require.NoError(t, err)
	defer func() { _ = buf.Close(context.Background()) }()

	_, err = Replay(context.Background(), buf, &Script{Steps: []Step{{Op: "truncate"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncate")
}

func TestReplayAddNeedsCategoryAndPriority(t *testing.T) {
	buf, err := contextbuf.New(contextbuf.DefaultConfig(), tokenizer.Heuristic{})
	require.NoError(t, err)
	defer func() { _ = buf.Close(context.Background()) }()

	for _, body := range []string{
		`steps: [{op: add, content: hello}]`,
		`steps: [{op: add, content: hello, category: user}]`,
		`steps: [{op: add, content: hello, priority: low}]`,
	} {
		path := writeFile(t, t.TempDir(), "s.yaml", body)
		script, err := LoadScript(path)
		require.NoError(t, err)

		_, err = Replay(context.Background(), buf, script)
		require.Error(t, err, body)
		assert.Contains(t, err.Error(), "step 1: add requires category and priority")
	}
	assert.Zero(t, buf.Stats().Items, "nothing is stored with a defaulted category or priority")
}

func TestArchiveListRequiresStore(t *testing.T) {
	err := archiveCmd([]string{"list"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none")

	assert.Error(t, archiveCmd(nil, &bytes.Buffer{}))
	assert.Error(t, archiveCmd([]string{"list", "-category", "weather"}, &bytes.Buffer{}))
}

func TestConfigCmd(t *testing.T) {
	t.Setenv("CTXBUF_TOKENIZER_API_KEY", "sk-secret")
	var out bytes.Buffer
	require.NoError(t, configCmd(nil, &out))
	assert.Contains(t, out.String(), "max_tokens: 4096")
	assert.Contains(t, out.String(), "provider: tiktoken")
	assert.NotContains(t, out.String(), "sk-secret")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b", preview("a\n\n b"))
	long := preview(strings.Repeat("x", 100))
	assert.Len(t, long, previewLen)
	assert.True(t, strings.HasSuffix(long, "..."))
}

func TestProblemsSince(t *testing.T) {
	logx.SetOutput(&bytes.Buffer{})
	t.Cleanup(func() { logx.SetOutput(nil) })

	start := time.Now().Add(-time.Second)
	logx.NewLogger("replay-test").Info("fine")
	logx.NewLogger("replay-test").Warn("archive slow")

	var msgs []string
	for _, p := range problemsSince(start) {
		if p.Component == "replay-test" {
			msgs = append(msgs, p.Message)
		}
	}
	assert.Equal(t, []string{"archive slow"}, msgs)
}
