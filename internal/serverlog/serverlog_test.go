package serverlog

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpmux/gateway/internal/model"
)

func TestWriter_AppendWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	require.NoError(t, err)
	defer w.Close()

	entry := model.ServerLog{
		TenantID: "tenant_1", ServerID: "server_1", Level: "info",
		Source: model.LogSourceApp, Message: "hello", Timestamp: time.Now(),
	}
	require.NoError(t, w.Append(entry))
	require.NoError(t, w.Append(entry))

	path := filepath.Join(dir, "tenant_1", "server_1.log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
	require.Len(t, lines, 2)

	var decoded model.ServerLog
	require.NoError(t, json.Unmarshal(lines[0], &decoded))
	assert.Equal(t, "hello", decoded.Message)
}

func TestWriter_RotatesPastMaxSize(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	require.NoError(t, err)
	defer w.Close()

	w.maxSize = 200
	w.maxBackups = 3

	entry := model.ServerLog{
		TenantID: "t", ServerID: "s", Level: "info",
		Source: model.LogSourceApp, Message: "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx",
	}
	for i := 0; i < 30; i++ {
		require.NoError(t, w.Append(entry))
	}

	backups, err := filepath.Glob(filepath.Join(dir, "t", "s.log.*.gz"))
	require.NoError(t, err)
	assert.NotEmpty(t, backups)
	assert.LessOrEqual(t, len(backups), 3)

	for _, b := range backups {
		f, err := os.Open(b)
		require.NoError(t, err)
		gr, err := gzip.NewReader(f)
		require.NoError(t, err)
		_, err = io.ReadAll(gr)
		assert.NoError(t, err)
		f.Close()
	}
}

func TestWriter_SeparatesByTenantAndServer(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(model.ServerLog{TenantID: "a", ServerID: "x", Message: "1"}))
	require.NoError(t, w.Append(model.ServerLog{TenantID: "b", ServerID: "x", Message: "2"}))

	_, err = os.Stat(filepath.Join(dir, "a", "x.log"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "b", "x.log"))
	assert.NoError(t, err)
}
