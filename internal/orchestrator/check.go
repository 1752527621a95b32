package orchestrator

import (
	"context"
	"fmt"
	"io"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"

	"github.com/dusk-indust/sshmon/internal/config"
)

type runOptions struct {
	jobs       int
	onProgress func(ProgressEvent)
	clock      clock.Clock
}

// RunOption configures a Checker or Summarizer.
type RunOption func(*runOptions)

// WithJobs sets how many hosts are checked at once. The default of 1
// checks hosts one after another in configuration order.
func WithJobs(n int) RunOption {
	return func(o *runOptions) { o.jobs = n }
}

// WithProgress registers a callback for per-host progress events. It is
// called from worker goroutines.
func WithProgress(fn func(ProgressEvent)) RunOption {
	return func(o *runOptions) { o.onProgress = fn }
}

// WithClock sets the clock used to timestamp reports.
func WithClock(c clock.Clock) RunOption {
	return func(o *runOptions) { o.clock = c }
}

func newRunOptions(opts []RunOption) runOptions {
	o := runOptions{jobs: 1, clock: clock.NewClock()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Checker runs check mode: every host's alarms are evaluated and fired
// alarms are sent to the host's channels.
type Checker struct {
	factory CheckerFactory
	logger  lager.Logger
	stderr  io.Writer
	opts    runOptions
}

// NewChecker returns a Checker building hosts with factory. The alert
// total is written to stderr.
func NewChecker(factory CheckerFactory, logger lager.Logger, stderr io.Writer, opts ...RunOption) *Checker {
	return &Checker{
		factory: factory,
		logger:  logger.Session("check"),
		stderr:  stderr,
		opts:    newRunOptions(opts),
	}
}

// Run checks every host in cfg. A failing host is logged and counted but
// does not stop the run, and its alerts are not added to the total.
func (c *Checker) Run(ctx context.Context, cfg *config.Config) CheckOutcome {
	hosts := cfg.Hosts()
	c.logger.Info("starting", lager.Data{"hosts": len(hosts), "jobs": c.opts.jobs})

	results := fanOut(ctx, hosts, c.opts.jobs, c.opts.onProgress, func(ctx context.Context, h config.Host) (int, error) {
		c.logger.Info("host-checking", lager.Data{"host": h.Name})
		hc, err := c.factory(h.Name, h.Config)
		if err != nil {
			return 0, err
		}
		defer closeChecker(c.logger, h.Name, hc)
		return hc.NotifyChannelsOfAlerts(ctx)
	})

	var out CheckOutcome
	for _, r := range results {
		if r.Err != nil {
			herr := &HostError{Host: r.Host, Op: "check", Err: r.Err}
			c.logger.Error("host-check-failed", herr, lager.Data{"host": r.Host})
			out.Exceptions++
			out.Failures = append(out.Failures, herr)
			continue
		}
		c.logger.Debug("host-checked", lager.Data{"host": r.Host, "alerts": r.Value})
		out.Alerts += r.Value
	}

	fmt.Fprintf(c.stderr, "There were %d alert(s) triggered\n", out.Alerts)
	c.logger.Info("finished", lager.Data{"alerts": out.Alerts, "exceptions": out.Exceptions})
	return out
}

func closeChecker(logger lager.Logger, host string, hc HostChecker) {
	if err := hc.Close(); err != nil {
		logger.Debug("close-failed", lager.Data{"host": host, "error": err.Error()})
	}
}
