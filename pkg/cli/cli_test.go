package cli

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/systemstart/steppipe/pkg/steps"
)

func TestParse_Run(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{
		"-output", "results",
		"flat.yaml", "a.fits", "b.fits",
		"--threshold=5", "--cleanup.suffix=clean", "--skip",
		"--save-parameters=saved.yaml",
		"-context-file=obs.yaml",
	}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exit {
		t.Fatal("unexpected clean exit")
	}

	if cfg.Ref != "flat.yaml" {
		t.Errorf("Ref = %q", cfg.Ref)
	}
	if !reflect.DeepEqual(cfg.Inputs, []string{"a.fits", "b.fits"}) {
		t.Errorf("Inputs = %v", cfg.Inputs)
	}
	want := map[string]any{"threshold": "5", "cleanup.suffix": "clean", "skip": "true"}
	if !reflect.DeepEqual(cfg.Overrides, want) {
		t.Errorf("Overrides = %v", cfg.Overrides)
	}
	if cfg.Output != "results" || cfg.SaveParameters != "saved.yaml" || cfg.ContextFile != "obs.yaml" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.LogLevel != "info" || cfg.FailureStrategy != steps.FailurePropagate {
		t.Errorf("log level %q strategy %s", cfg.LogLevel, cfg.FailureStrategy)
	}
}

func TestParse_VerboseAndDebug(t *testing.T) {
	tests := []struct {
		args     []string
		level    string
		strategy steps.FailureStrategy
	}{
		{[]string{"--verbose", "builtin.Passthrough"}, "debug", steps.FailurePropagate},
		{[]string{"--debug", "builtin.Passthrough"}, "debug", steps.FailureTrapAndPropagate},
		{[]string{"-failure-strategy=trap", "builtin.Passthrough"}, "info", steps.FailureTrapAndPropagate},
	}
	for _, tt := range tests {
		cfg, _, err := Parse(tt.args, &bytes.Buffer{})
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", tt.args, err)
		}
		if cfg.LogLevel != tt.level || cfg.FailureStrategy != tt.strategy {
			t.Errorf("%v: level %q strategy %s", tt.args, cfg.LogLevel, cfg.FailureStrategy)
		}
	}
}

func TestParse_Help(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"--help"}, &out)
	if err != nil || !exit || cfg != nil {
		t.Fatalf("expected clean exit, got %v, %v, %v", cfg, exit, err)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Errorf("usage not printed: %q", out.String())
	}

	cfg, exit, err = Parse([]string{"flat.yaml", "--help"}, &out)
	if err != nil || exit {
		t.Fatalf("unexpected result %v, %v", exit, err)
	}
	if !cfg.Help || cfg.Ref != "flat.yaml" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestParse_Batch(t *testing.T) {
	cfg, _, err := Parse([]string{"-batch", "runs.yaml", "-reference", "s3://refs/flat"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Batch != "runs.yaml" || cfg.Reference != "s3://refs/flat" || cfg.Ref != "" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no reference", nil, "config file or step class is required"},
		{"single dash parameter", []string{"flat.yaml", "-threshold=5"}, "unknown option -threshold=5"},
		{"batch with reference", []string{"-batch", "runs.yaml", "flat.yaml"}, "does not take a step reference"},
		{"batch with override", []string{"-batch", "runs.yaml", "--threshold=2"}, "does not take parameter overrides"},
		{"bad strategy", []string{"-failure-strategy=retry", "flat.yaml"}, "unknown failure strategy"},
		{"empty name", []string{"flat.yaml", "--=3"}, "empty parameter name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(tt.args, &bytes.Buffer{})
			var exitErr *ExitError
			if !errors.As(err, &exitErr) || exitErr.Code != ExitUsage {
				t.Fatalf("expected usage ExitError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestParse_DoubleDash(t *testing.T) {
	cfg, _, err := Parse([]string{"flat.yaml", "--", "-odd-name.fits"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(cfg.Inputs, []string{"-odd-name.fits"}) {
		t.Errorf("Inputs = %v", cfg.Inputs)
	}
}
