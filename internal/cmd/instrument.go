package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/capboard/internal/app"
	"github.com/felixgeelhaar/capboard/internal/telemetry"
)

type runKey struct{}

// commandRun follows one command from RunE entry to exit. A command that
// opens the app hands it over here; the run records the outcome and then
// closes the app, so the span ends before the tracer shuts down.
type commandRun struct {
	name  string
	start time.Time

	app  *app.App
	span trace.Span
}

// instrument wraps RunE of cmd and all its subcommands.
func instrument(cmd *cobra.Command) {
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(c *cobra.Command, args []string) error {
			r := &commandRun{name: commandName(c), start: time.Now()}
			c.SetContext(context.WithValue(c.Context(), runKey{}, r))

			err := run(c, args)
			r.finish(c.Context(), err)
			return err
		}
	}
	for _, sub := range cmd.Commands() {
		instrument(sub)
	}
}

// commandName is the command path without the binary, e.g. "capabilities list".
func commandName(c *cobra.Command) string {
	return strings.TrimPrefix(c.CommandPath(), c.Root().Name()+" ")
}

func runFrom(ctx context.Context) *commandRun {
	r, _ := ctx.Value(runKey{}).(*commandRun)
	return r
}

// attach starts the command span on the opened app's tracer.
func (r *commandRun) attach(ctx context.Context, a *app.App) context.Context {
	r.app = a
	ctx, r.span = telemetry.StartCommandSpan(ctx, r.name)
	return ctx
}

// finish records the outcome and releases the app. Commands that never
// opened the app have nothing to record.
func (r *commandRun) finish(ctx context.Context, err error) {
	if r.app == nil {
		return
	}
	a := r.app
	r.app = nil

	a.Metrics.RecordCommand(r.name, time.Since(r.start), err)
	if err != nil {
		telemetry.RecordError(r.span, err)
	} else {
		telemetry.RecordSuccess(r.span)
	}
	r.span.End()

	if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
		a.Logger.WithError(cerr).Debug("shutdown incomplete")
	}
}
