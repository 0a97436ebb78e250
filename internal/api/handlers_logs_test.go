package api

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mescon/Tickarr/internal/logger"
)

func writeLogFile(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	content := strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestHandleRecentLogs_NoLogFile(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/logs/recent", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestHandleRecentLogs_ParsesEntries(t *testing.T) {
	ts := newTestServer(t)
	writeLogFile(t, ts.cfg.LogDir, logger.LogFileName,
		"2024-03-01T09:00:00Z [INFO] Tickarr listening on :3095",
		"",
		"garbage",
		"2024-03-01T09:00:05Z [WARN] widget w1 lost its element",
	)

	w := ts.do(t, http.MethodGet, "/api/logs/recent", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	list := decodeList(t, w)
	require.Len(t, list, 2)
	assert.Equal(t, "2024-03-01T09:00:00Z", list[0]["timestamp"])
	assert.Equal(t, "INFO", list[0]["level"])
	assert.Equal(t, "Tickarr listening on :3095", list[0]["message"])
	assert.Equal(t, "WARN", list[1]["level"])
}

func TestHandleRecentLogs_KeepsLastLines(t *testing.T) {
	ts := newTestServer(t)

	lines := make([]string, 0, 150)
	for i := 0; i < 150; i++ {
		lines = append(lines, fmt.Sprintf("2024-03-01T09:00:00Z [INFO] line %d", i))
	}
	writeLogFile(t, ts.cfg.LogDir, logger.LogFileName, lines...)

	w := ts.do(t, http.MethodGet, "/api/logs/recent", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	list := decodeList(t, w)
	require.Len(t, list, recentLogLines)
	assert.Equal(t, "line 50", list[0]["message"])
	assert.Equal(t, "line 149", list[len(list)-1]["message"])
}

func TestHandleDownloadLogs(t *testing.T) {
	ts := newTestServer(t)
	writeLogFile(t, ts.cfg.LogDir, logger.LogFileName, "2024-03-01T09:00:00Z [INFO] current")
	writeLogFile(t, ts.cfg.LogDir, "tickarr-2024-02-29.log", "2024-02-29T09:00:00Z [INFO] rotated")

	w := ts.do(t, http.MethodGet, "/api/logs/download", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "tickarr_logs.zip")

	body := w.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"tickarr.txt", "tickarr-2024-02-29.txt"}, names)
}

func TestHandleDownloadLogs_EmptyDir(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/logs/download", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	assert.Empty(t, zr.File)
}

func TestParseLogLine(t *testing.T) {
	entry, ok := parseLogLine("2024-03-01T09:00:00Z [DEBUG] board: attached widget")
	require.True(t, ok)
	assert.Equal(t, logger.LogLevel("DEBUG"), entry.Level)
	assert.Equal(t, "board: attached widget", entry.Message)

	_, ok = parseLogLine("   ")
	assert.False(t, ok)
	_, ok = parseLogLine("only two")
	assert.False(t, ok)
}
