package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/systemstart/steppipe/pkg/params"
	"github.com/systemstart/steppipe/pkg/steps"
)

// interactive reports whether stdin and stderr are attached to a terminal.
func interactive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stderr.Fd())
}

// newTrap returns the trap run for trapped step failures. It logs the failing
// step with every parameter not left at its default. With pause set it then
// waits for a line on in, or for ctx to end, before the failure propagates.
func newTrap(in io.Reader, out io.Writer, pause bool) steps.TrapFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, step *steps.Instance, err error) {
		logFailure(step, err)
		if !pause {
			return
		}

		_, _ = fmt.Fprintf(out, "step %s failed: %v\npress Enter to continue ", step.QualifiedName(), err)
		done := make(chan struct{})
		go func() {
			_, _ = reader.ReadString('\n')
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
}

func logFailure(step *steps.Instance, err error) {
	attrs := []any{"step", step.QualifiedName(), "class", step.Class().Name, "error", err}
	for _, name := range step.Config().Names() {
		e, _ := step.Config().Entry(name)
		if e.Provenance == params.CodedDefault {
			continue
		}
		attrs = append(attrs, slog.Group(name, "value", e.Value, "from", string(e.Provenance), "source", e.Source))
	}
	slog.Error("Trapped step failure", attrs...)
}
