package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/basekick-labs/wpilog/internal/config"
	"github.com/basekick-labs/wpilog/internal/export"
	"github.com/basekick-labs/wpilog/internal/logger"
	"github.com/basekick-labs/wpilog/internal/metrics"
	"github.com/basekick-labs/wpilog/internal/source"
	"github.com/basekick-labs/wpilog/internal/wpilog"
	"github.com/rs/zerolog/log"
)

func openInput(ctx context.Context, cfg *config.Config, path string) (*source.Span, error) {
	return source.Open(ctx, path, source.Options{
		Mmap:    cfg.Parse.Mmap,
		MaxSize: cfg.Parse.MaxFileSize,
		Storage: &cfg.Storage,
	}, logger.Get("source"))
}

func parseOptions(cfg *config.Config) wpilog.Options {
	return wpilog.Options{
		Lenient:       cfg.Parse.Lenient,
		DecodeMsgpack: cfg.Parse.DecodeMsgpack,
		Logger:        &log.Logger,
	}
}

func singleArg(fs *flag.FlagSet, stderr io.Writer) (string, error) {
	if fs.NArg() != 1 {
		fmt.Fprintf(stderr, "usage: wpilog %s [flags] FILE\n", fs.Name())
		return "", errUsage
	}
	return fs.Arg(0), nil
}

func runInfo(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("info", stderr)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	path, err := singleArg(fs, stderr)
	if err != nil {
		return err
	}
	cfg, err := setup(*configPath, stderr)
	if err != nil {
		return err
	}

	span, err := openInput(ctx, cfg, path)
	if err != nil {
		return err
	}
	defer span.Close()

	info, err := wpilog.Summarize(span.Bytes())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "file:\t%s\n", path)
	if span.Compression != "" {
		fmt.Fprintf(tw, "compression:\t%s\n", span.Compression)
	}
	fmt.Fprintf(tw, "version:\t%d.%d\n", info.Header.Version>>8, info.Header.Version&0xff)
	fmt.Fprintf(tw, "extra header:\t%q\n", info.Header.Extra)
	fmt.Fprintf(tw, "size:\t%d bytes\n", info.Size)
	fmt.Fprintf(tw, "records:\t%d (%d control, %d data)\n", info.Records, info.ControlRecords, info.DataRecords)
	fmt.Fprintf(tw, "entries:\t%d\n", info.Entries)
	if info.DataRecords > 0 {
		fmt.Fprintf(tw, "time span:\t%d .. %d us (%.3f s)\n",
			info.FirstTimestamp, info.LastTimestamp,
			float64(info.LastTimestamp-info.FirstTimestamp)/1e6)
	}
	return tw.Flush()
}

func runSchema(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("schema", stderr)
	verbose := fs.Bool("v", false, "Show entry ids, wire types and metadata")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	path, err := singleArg(fs, stderr)
	if err != nil {
		return err
	}
	cfg, err := setup(*configPath, stderr)
	if err != nil {
		return err
	}

	span, err := openInput(ctx, cfg, path)
	if err != nil {
		return err
	}
	defer span.Close()

	schema, err := wpilog.InferSchema(span.Bytes(), parseOptions(cfg))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	if *verbose {
		fmt.Fprintln(tw, "#\tNAME\tTYPE\tID\tWIRE TYPE\tMETADATA")
	} else {
		fmt.Fprintln(tw, "#\tNAME\tTYPE")
	}
	for _, e := range schema.Entries {
		if *verbose {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", e.Column, e.Name, e.Type, e.ID, e.TypeToken, e.Metadata)
		} else {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Column, e.Name, e.Type)
		}
	}
	return tw.Flush()
}

func runParse(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("parse", stderr)
	lenient := fs.Bool("lenient", false, "Skip malformed data records instead of failing")
	msgpack := fs.Bool("msgpack", false, "Render msgpack entries as JSON text")
	limit := fs.Int("n", 10, "Rows to print (negative prints all)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	path, err := singleArg(fs, stderr)
	if err != nil {
		return err
	}
	cfg, err := setup(*configPath, stderr)
	if err != nil {
		return err
	}
	if *lenient {
		cfg.Parse.Lenient = true
	}
	if *msgpack {
		cfg.Parse.DecodeMsgpack = true
	}

	span, err := openInput(ctx, cfg, path)
	if err != nil {
		return err
	}
	defer span.Close()

	table, err := wpilog.Parse(span.Bytes(), parseOptions(cfg))
	if err != nil {
		return err
	}
	defer table.Release()

	printTable(stdout, table, *limit)
	fmt.Fprintf(stdout, "%d rows, %d columns, %d skipped\n", table.NumRows(), table.NumColumns(), len(table.Skipped))
	for _, s := range table.Skipped {
		fmt.Fprintf(stderr, "skipped record at offset %d: %v\n", s.Offset, s.Err)
	}
	return nil
}

func printTable(w io.Writer, table *wpilog.Table, limit int) {
	rows := table.NumRows()
	if limit >= 0 && limit < rows {
		rows = limit
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := make([]string, 0, table.NumColumns())
	header = append(header, wpilog.TimestampColumn)
	for _, c := range table.Columns {
		header = append(header, c.Name())
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	cells := make([]string, len(header))
	for row := 0; row < rows; row++ {
		cells[0] = fmt.Sprint(table.Timestamps[row])
		for i, c := range table.Columns {
			if v := c.Value(row); v != nil {
				cells[i+1] = fmt.Sprint(v)
			} else {
				cells[i+1] = "-"
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}

func runConvert(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("convert", stderr)
	format := fs.String("format", "", "Output format: parquet or csv (default from config or output extension)")
	compression := fs.String("compression", "", "Parquet compression: uncompressed, snappy, gzip, lz4, zstd")
	lenient := fs.Bool("lenient", false, "Skip malformed data records instead of failing")
	msgpack := fs.Bool("msgpack", false, "Render msgpack entries as JSON text")
	workers := fs.Int("workers", 0, "Concurrent conversions (default from config)")
	metricsPath := fs.String("metrics", "", "Write Prometheus metrics to this file when done")
	noClobber := fs.Bool("no-clobber", false, "Fail a conversion whose output already exists")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(stderr, "usage: wpilog convert [flags] INPUT... OUTPUT")
		return errUsage
	}
	cfg, err := setup(*configPath, stderr)
	if err != nil {
		return err
	}

	if *format != "" {
		cfg.Export.Format = *format
	}
	if *compression != "" {
		cfg.Export.Compression = *compression
	}
	if *lenient {
		cfg.Parse.Lenient = true
	}
	if *msgpack {
		cfg.Parse.DecodeMsgpack = true
	}
	if *workers > 0 {
		cfg.Convert.Workers = *workers
	}
	if *noClobber {
		cfg.Convert.NoClobber = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	rest := fs.Args()
	inputs, output := rest[:len(rest)-1], rest[len(rest)-1]
	conv := export.NewConverter(cfg, log.Logger)
	if *metricsPath != "" {
		defer writeMetrics(*metricsPath, stderr)
	}

	if len(inputs) == 1 && !export.IsPrefix(inputs[0]) && !export.IsPrefix(output) {
		res, err := conv.Convert(ctx, inputs[0], output)
		if err != nil {
			return err
		}
		printResult(stdout, res)
		return nil
	}

	inputs, err = export.ExpandInputs(ctx, &cfg.Storage, inputs, logger.Get("source"))
	if err != nil {
		return err
	}
	results := conv.ConvertAll(ctx, export.PlanJobs(inputs, output, cfg.Export.Format))
	failed := 0
	for i := range results {
		if results[i].Err != nil {
			failed++
			fmt.Fprintf(stderr, "error: %s: %v\n", results[i].Job.Input, results[i].Err)
			continue
		}
		printResult(stdout, &results[i])
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", failed, len(results))
	}
	return nil
}

// writeMetrics dumps the collector for a textfile scraper. Failures are
// reported but do not change the exit status.
func writeMetrics(path string, stderr io.Writer) {
	if err := metrics.Init(log.Logger).WriteFile(path); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
}

func printResult(w io.Writer, res *export.Result) {
	fmt.Fprintf(w, "%s -> %s (%s, %d rows, %d columns, %d skipped, %d bytes)\n",
		res.Job.Input, res.Job.Output, res.Format, res.Rows, res.Columns, res.Skipped, res.Bytes)
}
