package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/faultmatch/core/internal/pipeline"
)

func writeTestSettings(t *testing.T, dataFile string) string {
	t.Helper()
	dir := t.TempDir()
	yamlContent := `
paths:
  data_file: ` + dataFile + `
  hnsw_index_path: ""
  tfidf_cache_path: ""
  score_calibration_path: ""
`
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))
	return path
}

func writeTestCases(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cases.jsonl")
	content := `{"id":"brake-1","text":"刹车异响 制动系统故障","system":"制动系统","part":"刹车片"}
{"id":"engine-1","text":"发动机抖动 曲轴异常","system":"发动机","part":"曲轴"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunMatch_JSONOutput(t *testing.T) {
	dataFile := writeTestCases(t)
	settingsPath := writeTestSettings(t, dataFile)

	prevConfig := configPath
	configPath = settingsPath
	defer func() { configPath = prevConfig }()

	cmd := newMatchCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--format", "json", "--embedder", "static", "刹车异响"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))

	var resp pipeline.Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotEmpty(t, resp.Top)
	require.Equal(t, "brake-1", resp.Top[0].ID)
}

func TestRunMatch_TextOutput(t *testing.T) {
	dataFile := writeTestCases(t)
	settingsPath := writeTestSettings(t, dataFile)

	prevConfig := configPath
	configPath = settingsPath
	defer func() { configPath = prevConfig }()

	cmd := newMatchCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--embedder", "static", "刹车异响"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	require.Contains(t, buf.String(), "candidates for")
}
