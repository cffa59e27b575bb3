package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyBucket(t *testing.T) {
	tests := []struct {
		ms   int64
		want int
	}{
		{0, 0},
		{10, 0},
		{11, 1},
		{1000, 5},
		{30000, 9},
		{30001, 10},
	}
	for _, tt := range tests {
		if got := latencyBucket(tt.ms); got != tt.want {
			t.Errorf("latencyBucket(%d) = %d, want %d", tt.ms, got, tt.want)
		}
	}
}

func TestMetrics_Snapshot(t *testing.T) {
	m := New()
	m.IncInputsOpened()
	m.IncInputBytes(1024)
	m.IncRows(10)
	m.IncSkipped(2)
	m.IncConversions()
	m.IncConversionFailed()
	m.IncParseErrors(3)

	s := m.Snapshot()
	assert.Equal(t, int64(1), s["inputs_opened_total"])
	assert.Equal(t, int64(1024), s["input_bytes_total"])
	assert.Equal(t, int64(10), s["rows_total"])
	assert.Equal(t, int64(2), s["skipped_total"])
	assert.Equal(t, int64(1), s["conversions_failed_total"])
	assert.Equal(t, int64(1), s["parse_errors_total"])
}

func TestMetrics_PrometheusFormat(t *testing.T) {
	m := New()
	m.IncConversions()
	m.IncConversionSuccess()
	m.IncOutputBytes(4096)
	m.IncParseErrors(3)
	m.IncParseErrors(200)
	m.RecordConversionLatency(40 * time.Millisecond)
	m.RecordConversionLatency(2 * time.Second)

	out := m.PrometheusFormat()
	assert.Contains(t, out, "# TYPE wpilog_conversions_total counter\n")
	assert.Contains(t, out, "wpilog_conversions_success_total 1\n")
	assert.Contains(t, out, "wpilog_output_bytes_total 4096\n")
	assert.Contains(t, out, `wpilog_parse_errors_total{kind="schema"} 1`)
	assert.Contains(t, out, `wpilog_parse_errors_total{kind="other"} 1`)
	assert.Contains(t, out, `wpilog_conversion_latency_seconds_bucket{le="0.05"} 1`)
	assert.Contains(t, out, `wpilog_conversion_latency_seconds_bucket{le="2.5"} 2`)
	assert.Contains(t, out, `wpilog_conversion_latency_seconds_bucket{le="+Inf"} 2`)
	assert.Contains(t, out, "wpilog_conversion_latency_seconds_sum 2.04\n")
	assert.Contains(t, out, "wpilog_conversion_latency_seconds_count 2\n")

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		assert.Len(t, strings.Fields(line), 2, line)
	}
}

func TestMetrics_Concurrent(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.IncRows(1)
				m.RecordConversionLatency(time.Millisecond)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(8000), m.Snapshot()["rows_total"])
	assert.Equal(t, int64(8000), m.Snapshot()["conversion_latency_count"])
}

func TestGet_Singleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}

func TestMetrics_WriteFile(t *testing.T) {
	m := New()
	m.IncConversions()
	path := filepath.Join(t.TempDir(), "wpilog.prom")

	require.NoError(t, m.WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "wpilog_conversions_total 1\n")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Error(t, m.WriteFile(filepath.Join(t.TempDir(), "missing", "x.prom")))
}
