package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/basekick-labs/wpilog/internal/config"
	"github.com/basekick-labs/wpilog/internal/logger"
)

// Version is set at build time
var Version = "dev"

const usage = `usage: wpilog <command> [flags] ...

commands:
  info FILE                       header, record counts and time span
  schema [-v] FILE                ordered column list
  parse [-lenient] [-n N] FILE    parse and print the first N rows
  convert [flags] INPUT... OUTPUT write Parquet or CSV
  version                         print the version

Every command accepts -config FILE. Inputs may be local paths,
s3://bucket/key or azure://container/blob, optionally gzip or zstd
compressed.
`

// errUsage marks command-line mistakes; the message is already printed.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 1
	}

	var err error
	switch args[0] {
	case "info":
		err = runInfo(ctx, args[1:], stdout, stderr)
	case "schema":
		err = runSchema(ctx, args[1:], stdout, stderr)
	case "parse":
		err = runParse(ctx, args[1:], stdout, stderr)
	case "convert":
		err = runConvert(ctx, args[1:], stdout, stderr)
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "wpilog %s\n", Version)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
	default:
		fmt.Fprintf(stderr, "error: unknown command %q\n\n%s", args[0], usage)
		return 1
	}

	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return 1
	}
	return 0
}

// newFlagSet returns a flag set that reports errors instead of exiting,
// with the shared -config flag registered.
func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to wpilog.toml")
	return fs, configPath
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

// setup loads configuration and configures the global logger on stderr.
func setup(configPath string, stderr io.Writer) (*config.Config, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger.SetupWriter(cfg.Log.Level, cfg.Log.Format, stderr)
	return cfg, nil
}
