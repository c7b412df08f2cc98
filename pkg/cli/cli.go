// Package cli parses the strun command line: runner flags, the step
// reference, input files and step parameter overrides.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/systemstart/steppipe/pkg/logging"
	"github.com/systemstart/steppipe/pkg/steps"
)

// ExitError carries the exit code the process should end with.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// ExitUsage is the exit code for command line errors.
const ExitUsage = 2

// Config is the parsed command line.
type Config struct {
	// Ref is a class name or parameter file path. Empty in batch mode.
	Ref    string
	Inputs []string
	// Overrides are the --param=value and --member.param=value arguments,
	// values kept as strings.
	Overrides map[string]any

	// Help asks for the parameter help of Ref.
	Help bool

	Batch            string
	ContextFile      string
	Reference        string
	MaxDepth         int
	DisableRetrieval bool
	Output           string
	SaveParameters   string
	FailureStrategy  steps.FailureStrategy
	MetricsFile      string

	Verbose     bool
	Debug       bool
	LoggingType string
	LogLevel    string
	ShowVersion bool
}

func newFlagSet(cfg *Config, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("strun", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		_, _ = fmt.Fprint(output, `
strun - resolve step configuration and run steps and pipelines.

Usage:
  strun [options] <config-file|class> [inputs...] [--param=value ...] [--member.param=value ...]
  strun [options] -batch <batch-file>
  strun --help <config-file|class>

Any --name=value argument that is not an option below overrides the step
parameter name. A bare --name sets it to true.

Options:
`)
		fs.PrintDefaults()
	}

	fs.StringVar(&cfg.Batch, "batch", "", "batch file listing several runs")
	fs.StringVar(&cfg.ContextFile, "context-file", "", "observation context YAML file")
	fs.StringVar(&cfg.Reference, "reference", "", "directory or s3://bucket/prefix holding reference parameter files")
	fs.IntVar(&cfg.MaxDepth, "max-depth", -1, "max reference directory recursion depth (-1 = unlimited, 0 = root only)")
	fs.BoolVar(&cfg.DisableRetrieval, "no-retrieval", false, "do not retrieve reference parameters")
	fs.StringVar(&cfg.Output, "output", ".", "directory or s3://bucket/prefix results are saved to")
	fs.StringVar(&cfg.SaveParameters, "save-parameters", "", "write the resolved parameters to this file (.yaml, .json or .hcl)")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", "", "write step metrics in Prometheus text format to this file")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "log at debug level")
	fs.BoolVar(&cfg.Debug, "debug", false, "log at debug level and trap step failures")
	fs.StringVar(&cfg.LoggingType, "logging-type", logging.Tint, "logging type: json, text or tint")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "logging level: debug, info, warn, error")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "print version and exit")
	fs.Func("failure-strategy", "propagate or trap-and-propagate", func(s string) error {
		strategy, err := steps.ParseFailureStrategy(s)
		if err != nil {
			return err
		}
		cfg.FailureStrategy = strategy
		return nil
	})
	return fs
}

// Parse processes args, without the program name. It returns the parsed
// configuration, whether the program should exit cleanly right away, or an
// ExitError.
func Parse(args []string, output io.Writer) (*Config, bool, error) {
	cfg := &Config{}
	fs := newFlagSet(cfg, output)

	flagArgs, positional, overrides, help, err := split(fs, args)
	if err != nil {
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	if err := fs.Parse(flagArgs); err != nil {
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	cfg.Overrides = overrides
	cfg.Help = help

	if cfg.ShowVersion {
		return cfg, false, nil
	}
	if len(positional) > 0 {
		cfg.Ref = positional[0]
		cfg.Inputs = positional[1:]
	}

	switch {
	case help && cfg.Ref == "":
		fs.Usage()
		return nil, true, nil
	case cfg.Batch != "" && cfg.Ref != "":
		return nil, false, &ExitError{Code: ExitUsage, Message: "-batch does not take a step reference"}
	case cfg.Batch != "" && len(overrides) > 0:
		return nil, false, &ExitError{Code: ExitUsage, Message: "-batch does not take parameter overrides, set them in the batch file"}
	case cfg.Batch == "" && cfg.Ref == "":
		fs.Usage()
		return nil, false, &ExitError{Code: ExitUsage, Message: "a config file or step class is required"}
	}

	if cfg.Verbose || cfg.Debug {
		cfg.LogLevel = "debug"
	}
	if cfg.Debug {
		cfg.FailureStrategy = steps.FailureTrapAndPropagate
	}
	return cfg, false, nil
}

// split separates runner flags from positional arguments and step parameter
// overrides. Runner flags may appear anywhere on the command line.
func split(fs *flag.FlagSet, args []string) (flagArgs, positional []string, overrides map[string]any, help bool, err error) {
	overrides = make(map[string]any)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			positional = append(positional, arg)
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "h" || name == "help" {
			help = true
			continue
		}

		f := fs.Lookup(name)
		if f == nil {
			if !strings.HasPrefix(arg, "--") {
				return nil, nil, nil, false, fmt.Errorf("unknown option %s, step parameters are given as --%s=value", arg, name)
			}
			if name == "" {
				return nil, nil, nil, false, fmt.Errorf("empty parameter name in %q", arg)
			}
			if !hasValue {
				value = "true"
			}
			overrides[name] = value
			continue
		}

		flagArgs = append(flagArgs, arg)
		if !hasValue && !isBoolFlag(f) && i+1 < len(args) {
			i++
			flagArgs = append(flagArgs, args[i])
		}
	}
	return flagArgs, positional, overrides, help, nil
}

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}
