// Package metrics collects conversion counters and renders them in the
// Prometheus text exposition format, suitable for a node_exporter
// textfile collector after a batch run.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Conversion latency buckets in milliseconds, +Inf last.
var latencyBucketsMs = [...]int64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

var latencyLabels = [...]string{"0.01", "0.05", "0.1", "0.25", "0.5", "1", "2.5", "5", "10", "30", "+Inf"}

// Metrics holds process-wide conversion counters.
type Metrics struct {
	startTime time.Time

	// Inputs
	inputsOpened   atomic.Int64
	inputBytes     atomic.Int64
	inputErrors    atomic.Int64
	inputsInflated atomic.Int64

	// Engine
	rowsTotal       atomic.Int64
	columnsTotal    atomic.Int64
	skippedTotal    atomic.Int64
	parseErrors     atomic.Int64
	parseErrorsKind [6]atomic.Int64

	// Conversions
	conversionsTotal   atomic.Int64
	conversionsSuccess atomic.Int64
	conversionsFailed  atomic.Int64
	outputBytes        atomic.Int64

	// Conversion latency histogram
	latencyBuckets [len(latencyBucketsMs) + 1]atomic.Int64
	latencySumMs   atomic.Int64
	latencyCount   atomic.Int64

	logger zerolog.Logger
}

var (
	instance *Metrics
	once     sync.Once
)

// New returns an empty collector. Most callers want Get.
func New() *Metrics {
	return &Metrics{startTime: time.Now(), logger: zerolog.Nop()}
}

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// Init attaches a logger to the singleton.
func Init(logger zerolog.Logger) *Metrics {
	m := Get()
	m.logger = logger.With().Str("component", "metrics").Logger()
	return m
}

// Input metrics
func (m *Metrics) IncInputsOpened()           { m.inputsOpened.Add(1) }
func (m *Metrics) IncInputBytes(bytes int64)  { m.inputBytes.Add(bytes) }
func (m *Metrics) IncInputErrors()            { m.inputErrors.Add(1) }
func (m *Metrics) IncInputsInflated()         { m.inputsInflated.Add(1) }

// Engine metrics
func (m *Metrics) IncRows(count int64)        { m.rowsTotal.Add(count) }
func (m *Metrics) IncColumns(count int64)     { m.columnsTotal.Add(count) }
func (m *Metrics) IncSkipped(count int64)     { m.skippedTotal.Add(count) }

// IncParseErrors counts a failed parse under its error kind. Kinds outside
// the known range count as kind 0.
func (m *Metrics) IncParseErrors(kind uint8) {
	m.parseErrors.Add(1)
	if int(kind) >= len(m.parseErrorsKind) {
		kind = 0
	}
	m.parseErrorsKind[kind].Add(1)
}

// Conversion metrics
func (m *Metrics) IncConversions()            { m.conversionsTotal.Add(1) }
func (m *Metrics) IncConversionSuccess()      { m.conversionsSuccess.Add(1) }
func (m *Metrics) IncConversionFailed()       { m.conversionsFailed.Add(1) }
func (m *Metrics) IncOutputBytes(bytes int64) { m.outputBytes.Add(bytes) }

// RecordConversionLatency records one conversion's wall time.
func (m *Metrics) RecordConversionLatency(d time.Duration) {
	ms := d.Milliseconds()
	m.latencySumMs.Add(ms)
	m.latencyCount.Add(1)
	m.latencyBuckets[latencyBucket(ms)].Add(1)
}

func latencyBucket(ms int64) int {
	for i, le := range latencyBucketsMs {
		if ms <= le {
			return i
		}
	}
	return len(latencyBucketsMs)
}

// Snapshot returns all metrics as a map
func (m *Metrics) Snapshot() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		"uptime_seconds":     time.Since(m.startTime).Seconds(),
		"goroutines":         runtime.NumGoroutine(),
		"memory_alloc_bytes": memStats.Alloc,
		"memory_sys_bytes":   memStats.Sys,
		"gc_cycles":          memStats.NumGC,

		"inputs_opened_total":   m.inputsOpened.Load(),
		"input_bytes_total":     m.inputBytes.Load(),
		"input_errors_total":    m.inputErrors.Load(),
		"inputs_inflated_total": m.inputsInflated.Load(),

		"rows_total":         m.rowsTotal.Load(),
		"columns_total":      m.columnsTotal.Load(),
		"skipped_total":      m.skippedTotal.Load(),
		"parse_errors_total": m.parseErrors.Load(),

		"conversions_total":         m.conversionsTotal.Load(),
		"conversions_success_total": m.conversionsSuccess.Load(),
		"conversions_failed_total":  m.conversionsFailed.Load(),
		"output_bytes_total":        m.outputBytes.Load(),
		"conversion_latency_sum_ms": m.latencySumMs.Load(),
		"conversion_latency_count":  m.latencyCount.Load(),
	}
}

// parseErrorKinds labels parseErrorsKind slots.
var parseErrorKinds = [...]string{"other", "invalid_format", "parse", "schema", "invalid_entry", "io"}

// PrometheusFormat returns metrics in Prometheus text exposition format
func (m *Metrics) PrometheusFormat() string {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var b []byte
	b = appendHeader(b, "wpilog_uptime_seconds", "gauge", "Time since the process started")
	b = appendMetric(b, "wpilog_uptime_seconds", time.Since(m.startTime).Seconds())
	b = appendHeader(b, "wpilog_memory_alloc_bytes", "gauge", "Current allocated memory")
	b = appendMetric(b, "wpilog_memory_alloc_bytes", float64(memStats.Alloc))

	counters := []struct {
		name, help string
		v          *atomic.Int64
	}{
		{"wpilog_inputs_opened_total", "Inputs opened", &m.inputsOpened},
		{"wpilog_input_bytes_total", "Input bytes after decompression", &m.inputBytes},
		{"wpilog_input_errors_total", "Inputs that could not be opened", &m.inputErrors},
		{"wpilog_inputs_inflated_total", "Compressed inputs", &m.inputsInflated},
		{"wpilog_rows_total", "Table rows produced", &m.rowsTotal},
		{"wpilog_columns_total", "Table columns produced", &m.columnsTotal},
		{"wpilog_skipped_records_total", "Data records skipped in lenient mode", &m.skippedTotal},
		{"wpilog_conversions_total", "Conversions started", &m.conversionsTotal},
		{"wpilog_conversions_success_total", "Conversions completed", &m.conversionsSuccess},
		{"wpilog_conversions_failed_total", "Conversions failed", &m.conversionsFailed},
		{"wpilog_output_bytes_total", "Bytes written to sinks", &m.outputBytes},
	}
	for _, c := range counters {
		b = appendHeader(b, c.name, "counter", c.help)
		b = appendMetric(b, c.name, float64(c.v.Load()))
	}

	b = appendHeader(b, "wpilog_parse_errors_total", "counter", "Failed parses by error kind")
	for i, kind := range parseErrorKinds {
		b = appendMetricWithLabel(b, "wpilog_parse_errors_total", "kind", kind, float64(m.parseErrorsKind[i].Load()))
	}

	b = appendHeader(b, "wpilog_conversion_latency_seconds", "histogram", "Conversion wall time")
	var cumulative int64
	for i, label := range latencyLabels {
		cumulative += m.latencyBuckets[i].Load()
		b = appendMetricWithLabel(b, "wpilog_conversion_latency_seconds_bucket", "le", label, float64(cumulative))
	}
	b = appendMetric(b, "wpilog_conversion_latency_seconds_sum", float64(m.latencySumMs.Load())/1000.0)
	b = appendMetric(b, "wpilog_conversion_latency_seconds_count", float64(m.latencyCount.Load()))

	return string(b)
}

// WriteFile writes PrometheusFormat to path atomically so a textfile
// collector never reads a partial file.
func (m *Metrics) WriteFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".wpilog-metrics-*")
	if err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(m.PrometheusFormat()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}

	m.logger.Debug().
		Str("path", path).
		Int64("conversions", m.conversionsTotal.Load()).
		Msg("Wrote metrics")
	return nil
}

// Helper functions for Prometheus format
func appendHeader(b []byte, name, typ, help string) []byte {
	b = append(b, "# HELP "...)
	b = append(b, name...)
	b = append(b, ' ')
	b = append(b, help...)
	b = append(b, "\n# TYPE "...)
	b = append(b, name...)
	b = append(b, ' ')
	b = append(b, typ...)
	return append(b, '\n')
}

func appendMetric(b []byte, name string, value float64) []byte {
	b = append(b, name...)
	b = append(b, ' ')
	b = strconv.AppendFloat(b, value, 'g', -1, 64)
	return append(b, '\n')
}

func appendMetricWithLabel(b []byte, name, labelName, labelValue string, value float64) []byte {
	b = append(b, name...)
	b = append(b, '{')
	b = append(b, labelName...)
	b = append(b, '=', '"')
	b = append(b, labelValue...)
	b = append(b, '"', '}', ' ')
	b = strconv.AppendFloat(b, value, 'g', -1, 64)
	return append(b, '\n')
}
