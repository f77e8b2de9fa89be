//go:build unix

package backend

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBridgeJava stands in for the JVM helper: it dispatches on the action
// argument and produces the files the bridge expects.
func fakeBridgeJava(t *testing.T) string {
	t.Helper()
	script := `#!/bin/sh
action="$3"
ex=""
out=""
for a in "$@"; do
  case "$a" in
    --exercisePath=*) ex="${a#--exercisePath=}" ;;
    --outputPath=*) out="${a#--outputPath=}" ;;
  esac
done
case "$action" in
  extract-project) mkdir -p "$out"; printf 'extracted' > "$out/src.txt" ;;
  compress-project) printf 'zipbytes' > "$out" ;;
  run-tests) printf '{"status":"PASSED","testResults":[]}' > "$out" ;;
esac
`
	path := filepath.Join(t.TempDir(), "java")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestHTTPDownloadExtractsThroughBridge(t *testing.T) {
	b, _ := newTestHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/core/exercises/42":
			w.Write([]byte(`{"id":42,"exercise_name":"part01-hello","course_name":"mooc","checksum":"c1","deadline":"2026-09-01"}`))
		case "/core/exercises/42/download":
			w.Write([]byte("PK-archive-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	b.bridge.Java = fakeBridgeJava(t)
	b.bridge.OutputDir = t.TempDir()

	var progress []float64
	path, err := b.DownloadExercise(context.Background(), 42, "hy", func(pct float64, _ string) {
		progress = append(progress, pct)
	})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(path, "src.txt"))
	assert.NotEmpty(t, progress)
	assert.Equal(t, 1.0, progress[len(progress)-1])

	stored, ok := b.ws.ExercisePath(42)
	require.True(t, ok)
	assert.Equal(t, path, stored)
}

func TestHTTPSubmitCompressesAndUploads(t *testing.T) {
	var uploaded []byte
	b, _ := newTestHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/core/exercises/42/submissions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1 << 20))

		file, _, err := r.FormFile("submission[file]")
		require.NoError(t, err)
		uploaded, err = io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "1", r.FormValue("paste"))

		w.Write([]byte(`{"show_submission_url":"https://example.com/submissions/5","paste_url":"https://example.com/paste/5"}`))
	}))
	b.bridge.Java = fakeBridgeJava(t)
	b.bridge.OutputDir = t.TempDir()
	require.NoError(t, b.ws.SetExercisePath(42, t.TempDir()))

	resp, err := b.SubmitExercise(context.Background(), 42, SubmitOptions{Paste: true})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/paste/5", resp.PasteURL)
	assert.Equal(t, "zipbytes", string(uploaded), "the bridge-compressed archive is what gets uploaded")
}

func TestHTTPRunTestsThroughBridge(t *testing.T) {
	b, _ := newTestHTTPBackend(t, http.HandlerFunc(http.NotFound))
	b.bridge.Java = fakeBridgeJava(t)
	b.bridge.OutputDir = t.TempDir()
	require.NoError(t, b.ws.SetExercisePath(42, t.TempDir()))

	run, err := b.RunTests(context.Background(), 42)
	require.NoError(t, err)

	result, err := run.Result()
	require.NoError(t, err)
	assert.Equal(t, "PASSED", result.Status)
}
