package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/basekick-labs/wpilog/internal/wpilog/wpilogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func speedPosFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "match.wpilog")
	require.NoError(t, os.WriteFile(path, wpilogtest.SpeedPos(), 0644))
	return path
}

func TestRun_Usage(t *testing.T) {
	code, _, stderr := runCmd(t)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "usage: wpilog")

	code, _, stderr = runCmd(t, "frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `unknown command "frobnicate"`)

	code, stdout, _ := runCmd(t, "version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "wpilog dev\n", stdout)
}

func TestRun_Info(t *testing.T) {
	code, stdout, stderr := runCmd(t, "info", speedPosFile(t))
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stdout, "1.0")
	assert.Contains(t, stdout, "4 (2 control, 2 data)")
	assert.Contains(t, stdout, "1000 .. 2000 us")
}

func TestRun_Schema(t *testing.T) {
	path := speedPosFile(t)

	code, stdout, stderr := runCmd(t, "schema", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "speed")
	assert.Contains(t, stdout, "float64")
	assert.NotContains(t, stdout, "WIRE TYPE")

	code, stdout, _ = runCmd(t, "schema", "-v", path)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "WIRE TYPE")
	assert.Contains(t, stdout, "double")
}

func TestRun_Parse(t *testing.T) {
	code, stdout, stderr := runCmd(t, "parse", "-n", "1", speedPosFile(t))
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stdout, "timestamp")
	assert.Contains(t, stdout, "3.5")
	assert.NotContains(t, stdout, "2000")
	assert.Contains(t, stdout, "2 rows, 3 columns, 0 skipped")
}

func TestRun_ParseLenient(t *testing.T) {
	log := wpilogtest.New().
		Start(1, "speed", "double", "").
		Double(1, 10, 1).
		Record(1, 20, []byte{1}).
		Bytes()
	path := filepath.Join(t.TempDir(), "lossy.wpilog")
	require.NoError(t, os.WriteFile(path, log, 0644))

	code, _, stderr := runCmd(t, "parse", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "error:")

	code, stdout, stderr := runCmd(t, "parse", "-lenient", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "1 skipped")
	assert.Contains(t, stderr, "skipped record at offset")
}

func TestRun_ParseErrors(t *testing.T) {
	code, _, stderr := runCmd(t, "parse")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "usage: wpilog parse")

	code, _, stderr = runCmd(t, "parse", filepath.Join(t.TempDir(), "missing.wpilog"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "error: io error")

	code, _, _ = runCmd(t, "parse", "-bogus", "x")
	assert.Equal(t, 1, code)
}

func TestRun_ConvertSingle(t *testing.T) {
	input := speedPosFile(t)
	output := filepath.Join(t.TempDir(), "match.csv")

	code, stdout, stderr := runCmd(t, "convert", input, output)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "csv, 2 rows")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "timestamp,speed,pos\n1000,3.5,\n2000,,7\n", string(data))
}

func TestRun_ConvertBatch(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.wpilog")
	b := filepath.Join(dir, "b.wpilog")
	require.NoError(t, os.WriteFile(a, wpilogtest.SpeedPos(), 0644))
	require.NoError(t, os.WriteFile(b, wpilogtest.SpeedPos(), 0644))
	outDir := filepath.Join(dir, "out") + "/"

	metricsFile := filepath.Join(dir, "wpilog.prom")

	code, stdout, stderr := runCmd(t, "convert", "-workers", "2", "-compression", "zstd", "-metrics", metricsFile, a, b, outDir)
	require.Equal(t, 0, code, stderr)

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "wpilog_conversions_success_total")
	assert.Contains(t, stdout, "a.parquet")
	assert.Contains(t, stdout, "b.parquet")

	for _, name := range []string{"a.parquet", "b.parquet"} {
		_, err := os.Stat(filepath.Join(dir, "out", name))
		assert.NoError(t, err)
	}
}

func TestRun_ConvertErrors(t *testing.T) {
	code, _, stderr := runCmd(t, "convert", "only-one-arg")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "usage: wpilog convert")

	code, _, stderr = runCmd(t, "convert", "-format", "xml", speedPosFile(t), "out.xml")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "error:")

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.wpilog")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0644))
	code, _, stderr = runCmd(t, "convert", speedPosFile(t), bad, dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "1 of 2 conversions failed")
}

func TestRun_ConvertDirectoryInput(t *testing.T) {
	logs := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(logs, "elims"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(logs, "q1.wpilog"), wpilogtest.SpeedPos(), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(logs, "elims", "f1.wpilog"), wpilogtest.SpeedPos(), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(logs, "notes.txt"), []byte("ignored"), 0644))
	outDir := t.TempDir()

	code, stdout, stderr := runCmd(t, "convert", "-format", "csv", logs, outDir)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "q1.csv")
	assert.Contains(t, stdout, "f1.csv")
	assert.NotContains(t, stdout, "notes")

	for _, name := range []string{"q1.csv", "f1.csv"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err)
	}

	code, _, stderr = runCmd(t, "convert", t.TempDir(), outDir)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "no .wpilog files")
}

func TestRun_ConvertNoClobber(t *testing.T) {
	input := speedPosFile(t)
	output := filepath.Join(t.TempDir(), "match.csv")
	require.NoError(t, os.WriteFile(output, []byte("keep"), 0644))

	code, _, stderr := runCmd(t, "convert", "-no-clobber", input, output)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "output already exists")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))

	code, _, stderr = runCmd(t, "convert", input, output)
	require.Equal(t, 0, code, stderr)
}
