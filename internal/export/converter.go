package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/basekick-labs/wpilog/internal/config"
	"github.com/basekick-labs/wpilog/internal/metrics"
	"github.com/basekick-labs/wpilog/internal/source"
	"github.com/basekick-labs/wpilog/internal/storage"
	"github.com/basekick-labs/wpilog/internal/wpilog"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Output formats.
const (
	FormatParquet = "parquet"
	FormatCSV     = "csv"
)

// ErrOutputExists is returned when Convert.NoClobber is set and the output
// is already present.
var ErrOutputExists = errors.New("output already exists")

// Job is one input to convert and where to put the result.
type Job struct {
	Input  string
	Output string
}

// Result reports the outcome of one Job.
type Result struct {
	Job      Job
	JobID    string
	Format   string
	Rows     int
	Columns  int
	Skipped  int
	Bytes    int
	Duration time.Duration
	Err      error
}

// Converter runs source -> parse -> export -> sink for one or many inputs.
type Converter struct {
	cfg     *config.Config
	parquet *ParquetWriter
	csv     *CSVWriter
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewConverter creates a converter from cfg.
func NewConverter(cfg *config.Config, logger zerolog.Logger) *Converter {
	return &Converter{
		cfg:     cfg,
		parquet: NewParquetWriter(&cfg.Export, logger),
		csv:     NewCSVWriter(&cfg.Export, logger),
		metrics: metrics.Get(),
		logger:  logger.With().Str("component", "converter").Logger(),
	}
}

// SetMetrics replaces the process-wide collector.
func (c *Converter) SetMetrics(m *metrics.Metrics) { c.metrics = m }

// FormatFor returns the output format for output: its extension when
// recognized, otherwise the configured format.
func (c *Converter) FormatFor(output string) string {
	switch strings.ToLower(path.Ext(output)) {
	case ".csv":
		return FormatCSV
	case ".parquet", ".pq":
		return FormatParquet
	}
	if c.cfg.Export.Format == FormatCSV {
		return FormatCSV
	}
	return FormatParquet
}

// Convert converts a single input into output.
func (c *Converter) Convert(ctx context.Context, input, output string) (*Result, error) {
	res := c.run(ctx, Job{Input: input, Output: output}, uuid.New().String())
	return res, res.Err
}

// ConvertAll converts every job with at most Convert.Workers running at
// once. A failed job does not stop the others; results keep job order.
func (c *Converter) ConvertAll(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	batchID := uuid.New().String()

	workers := c.cfg.Convert.Workers
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = *c.run(ctx, job, fmt.Sprintf("%s-%d", batchID, i))
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	c.logger.Info().
		Str("batch_id", batchID).
		Int("jobs", len(jobs)).
		Int("failed", failed).
		Int("workers", workers).
		Msg("Batch conversion complete")
	return results
}

func (c *Converter) run(ctx context.Context, job Job, jobID string) *Result {
	start := time.Now()
	res := &Result{Job: job, JobID: jobID, Format: c.FormatFor(job.Output)}
	logger := c.logger.With().Str("job_id", jobID).Str("input", job.Input).Logger()

	c.metrics.IncConversions()
	res.Err = c.convert(ctx, job, res, logger)
	res.Duration = time.Since(start)
	c.metrics.RecordConversionLatency(res.Duration)

	if res.Err != nil {
		c.metrics.IncConversionFailed()
		logger.Error().Err(res.Err).Msg("Conversion failed")
	} else {
		c.metrics.IncConversionSuccess()
		logger.Info().
			Str("output", job.Output).
			Str("format", res.Format).
			Int("rows", res.Rows).
			Int("columns", res.Columns).
			Int("skipped", res.Skipped).
			Int("bytes", res.Bytes).
			Dur("duration", res.Duration).
			Msg("Converted log")
	}
	return res
}

func (c *Converter) convert(ctx context.Context, job Job, res *Result, logger zerolog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sink, key, err := c.openSink(ctx, job.Output, logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	span, err := source.Open(ctx, job.Input, source.Options{
		Mmap:    c.cfg.Parse.Mmap,
		MaxSize: c.cfg.Parse.MaxFileSize,
		Storage: &c.cfg.Storage,
	}, logger)
	if err != nil {
		c.metrics.IncInputErrors()
		return err
	}
	defer span.Close()

	c.metrics.IncInputsOpened()
	c.metrics.IncInputBytes(int64(span.Len()))
	if span.Compression != "" {
		c.metrics.IncInputsInflated()
	}

	table, err := wpilog.Parse(span.Bytes(), wpilog.Options{
		Lenient:       c.cfg.Parse.Lenient,
		DecodeMsgpack: c.cfg.Parse.DecodeMsgpack,
		Logger:        &logger,
	})
	if err != nil {
		c.metrics.IncParseErrors(uint8(wpilog.KindOf(err)))
		return fmt.Errorf("%s: %w", job.Input, err)
	}
	defer table.Release()

	res.Rows = table.NumRows()
	res.Columns = table.NumColumns()
	res.Skipped = len(table.Skipped)
	c.metrics.IncRows(int64(res.Rows))
	c.metrics.IncColumns(int64(res.Columns))
	c.metrics.IncSkipped(int64(res.Skipped))

	var buf bytes.Buffer
	if err := c.write(&buf, table, res.Format, res.JobID); err != nil {
		return fmt.Errorf("%s: %w", job.Input, err)
	}
	res.Bytes = buf.Len()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sink.Write(ctx, key, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write %s: %w", job.Output, err)
	}
	c.metrics.IncOutputBytes(int64(buf.Len()))
	return nil
}

func (c *Converter) write(w io.Writer, table *wpilog.Table, format, jobID string) error {
	if format == FormatCSV {
		return c.csv.Write(w, table)
	}
	return c.parquet.WriteJob(w, table, jobID)
}

// openSink resolves output against the storage config. With NoClobber
// set an existing output fails the job before its input is read.
func (c *Converter) openSink(ctx context.Context, output string, logger zerolog.Logger) (storage.Backend, string, error) {
	u, err := storage.OutputURI(&c.cfg.Storage, output)
	if err != nil {
		return nil, "", err
	}
	backend, key, err := storage.ForURI(ctx, &c.cfg.Storage, u, logger)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open sink %s: %w", output, err)
	}
	logger.Debug().Str("output", u.String()).Str("backend", backend.Type()).Msg("Opened sink")

	if !c.cfg.Convert.NoClobber {
		return backend, key, nil
	}
	exists, err := backend.Exists(ctx, key)
	if err == nil && exists {
		err = fmt.Errorf("%s: %w", output, ErrOutputExists)
	}
	if err != nil {
		backend.Close()
		return nil, "", err
	}
	return backend, key, nil
}

// PlanJobs maps each input to a file in outputDir named after the input
// with its compression and log extensions replaced by the format's.
func PlanJobs(inputs []string, outputDir, format string) []Job {
	ext := ".parquet"
	if format == FormatCSV {
		ext = ".csv"
	}

	dir, err := storage.ParseURI(outputDir)
	if err != nil {
		dir = storage.URI{Scheme: storage.SchemeFile, Key: outputDir}
	}

	jobs := make([]Job, 0, len(inputs))
	for _, in := range inputs {
		jobs = append(jobs, Job{Input: in, Output: dir.Join(outputName(in) + ext).String()})
	}
	return jobs
}

func outputName(input string) string {
	var name string
	if u, err := storage.ParseURI(input); err == nil && u.IsRemote() {
		name = path.Base(u.Key)
	} else {
		name = filepath.Base(input)
	}
	for _, ext := range []string{".gz", ".zst", ".zstd", ".wpilog"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// logExtensions are the input names ExpandInputs keeps from a listing.
var logExtensions = []string{".wpilog", ".wpilog.gz", ".wpilog.zst", ".wpilog.zstd"}

// IsPrefix reports whether input names a set of logs: an object-store
// prefix or local path ending in "/", or an existing local directory.
func IsPrefix(input string) bool {
	if strings.HasSuffix(input, "/") {
		return true
	}
	u, err := storage.ParseURI(input)
	if err != nil || u.IsRemote() {
		return false
	}
	info, err := os.Stat(u.Key)
	return err == nil && info.IsDir()
}

// ExpandInputs replaces every prefix input with the logs listed under it,
// in key order. Other inputs pass through unchanged. A prefix holding no
// logs is an error.
func ExpandInputs(ctx context.Context, cfg *config.StorageConfig, inputs []string, logger zerolog.Logger) ([]string, error) {
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if !IsPrefix(in) {
			out = append(out, in)
			continue
		}
		u, err := storage.ParseURI(in)
		if err != nil {
			return nil, err
		}
		objects, err := storage.ListURI(ctx, cfg, u, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", in, err)
		}
		n := 0
		for _, obj := range objects {
			if isLogName(obj.Key) {
				out = append(out, obj.String())
				n++
			}
		}
		if n == 0 {
			return nil, fmt.Errorf("no .wpilog files under %s", in)
		}
	}
	return out, nil
}

func isLogName(key string) bool {
	name := strings.ToLower(path.Base(filepath.ToSlash(key)))
	for _, ext := range logExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
