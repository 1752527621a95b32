package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"code.cloudfoundry.org/lager/v3"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/dusk-indust/sshmon/internal/config"
	"github.com/dusk-indust/sshmon/internal/monitor"
	"github.com/dusk-indust/sshmon/internal/orchestrator"
	"github.com/dusk-indust/sshmon/internal/render"
)

// CLI flags parsed from command line.
type cliFlags struct {
	Verbose bool
	Merge   bool
	Format  string
	Jobs    int
	EnvFile string
	Version bool
}

// version is set by goreleaser at build time.
var version = "dev"

const usage = `usage: sshmon [flags] <check|summary> <config> [config...]

Configs are YAML files or consul://[addr]/key sources, merged left to right.

`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var flags cliFlags

	fs := pflag.NewFlagSet("sshmon", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fmt.Fprintf(stderr, "Check types: %s\n\n", strings.Join(monitor.CheckTypes(), ", "))
		fs.PrintDefaults()
	}
	fs.BoolVarP(&flags.Verbose, "verbose", "v", false, "log at debug level")
	fs.BoolVarP(&flags.Merge, "merge", "m", false, "let later configs overwrite values from earlier ones")
	fs.StringVarP(&flags.Format, "format", "f", render.DefaultFormat,
		"summary output format ("+strings.Join(render.Formats(), ", ")+")")
	fs.IntVarP(&flags.Jobs, "jobs", "j", 1, "number of hosts checked at once")
	fs.StringVar(&flags.EnvFile, "env-file", ".env", "dotenv file loaded before configs are expanded")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return orchestrator.ExitOK
		}
		fmt.Fprintf(stderr, "error: %v\n\n", err)
		fs.Usage()
		return orchestrator.ExitFailure
	}
	if flags.Version {
		fmt.Fprintln(stdout, version)
		return orchestrator.ExitOK
	}

	rest := fs.Args()
	if len(rest) < 2 {
		fs.Usage()
		return orchestrator.ExitFailure
	}
	command, sources := rest[0], rest[1:]
	if command != "check" && command != "summary" {
		fmt.Fprintf(stderr, "error: unknown command %q\n\n", command)
		fs.Usage()
		return orchestrator.ExitFailure
	}
	if flags.Jobs < 1 {
		fmt.Fprintf(stderr, "error: --jobs must be at least 1, got %d\n", flags.Jobs)
		return orchestrator.ExitFailure
	}

	logger := newLogger(stderr, flags.Verbose)
	ctx := context.Background()

	if err := loadEnvFile(flags.EnvFile); err != nil {
		logger.Error("load-env-file-failed", err, lager.Data{"path": flags.EnvFile})
		return orchestrator.ExitFailure
	}

	cfg, err := loadConfig(ctx, sources, flags.Merge)
	if err != nil {
		logger.Error("load-config-failed", err, lager.Data{"sources": sources})
		return orchestrator.ExitFailure
	}

	factory := orchestrator.ServerFactory(logger, monitor.WithStdout(stdout))
	opts := []orchestrator.RunOption{
		orchestrator.WithJobs(flags.Jobs),
		orchestrator.WithProgress(orchestrator.LogProgress(logger)),
	}

	switch command {
	case "check":
		return orchestrator.NewChecker(factory, logger, stderr, opts...).Run(ctx, cfg).ExitCode()
	default:
		out, err := orchestrator.NewSummarizer(factory, logger, stdout, render.Render, opts...).Run(ctx, cfg, flags.Format)
		if err != nil {
			logger.Error("render-failed", err, lager.Data{"format": flags.Format})
			return orchestrator.ExitFailure
		}
		return out.ExitCode()
	}
}

// newLogger writes JSON log lines to w.
func newLogger(w io.Writer, verbose bool) lager.Logger {
	level := lager.INFO
	if verbose {
		level = lager.DEBUG
	}
	logger := lager.NewLogger("sshmon")
	logger.RegisterSink(lager.NewWriterSink(w, level))
	return logger
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func loadConfig(ctx context.Context, sources []string, overwrite bool) (*config.Config, error) {
	docs, err := config.NewLoader().LoadAll(ctx, sources)
	if err != nil {
		return nil, err
	}
	merged, err := config.MergeAll(docs, overwrite)
	if err != nil {
		return nil, err
	}
	return config.Decode(merged)
}
