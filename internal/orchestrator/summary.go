package orchestrator

import (
	"context"
	"fmt"
	"io"

	"code.cloudfoundry.org/lager/v3"
	"github.com/google/uuid"

	"github.com/dusk-indust/sshmon/internal/config"
	"github.com/dusk-indust/sshmon/internal/report"
)

// RenderFunc writes a report in the named format.
type RenderFunc func(w io.Writer, r report.RunReport, format string) error

// Summarizer runs summary mode: a record is collected from every host that
// takes part in summaries and the resulting report is rendered.
type Summarizer struct {
	factory CheckerFactory
	logger  lager.Logger
	stdout  io.Writer
	render  RenderFunc
	opts    runOptions
}

// NewSummarizer returns a Summarizer rendering to stdout.
func NewSummarizer(factory CheckerFactory, logger lager.Logger, stdout io.Writer, render RenderFunc, opts ...RunOption) *Summarizer {
	return &Summarizer{
		factory: factory,
		logger:  logger.Session("summary"),
		stdout:  stdout,
		render:  render,
		opts:    newRunOptions(opts),
	}
}

// Run collects and renders the summary. Host failures are logged as
// warnings and counted in the outcome. The returned error is only set when
// rendering fails, in which case nothing is written to stdout.
func (s *Summarizer) Run(ctx context.Context, cfg *config.Config, format string) (SummaryOutcome, error) {
	var hosts []config.Host
	for _, h := range cfg.Hosts() {
		if !h.Config.Summarized() {
			s.logger.Debug("host-skipped", lager.Data{"host": h.Name})
			continue
		}
		hosts = append(hosts, h)
	}
	s.logger.Info("starting", lager.Data{"hosts": len(hosts), "jobs": s.opts.jobs})

	results := fanOut(ctx, hosts, s.opts.jobs, s.opts.onProgress, func(ctx context.Context, h config.Host) (report.SummaryRecord, error) {
		hc, err := s.factory(h.Name, h.Config)
		if err != nil {
			return report.SummaryRecord{}, err
		}
		defer closeChecker(s.logger, h.Name, hc)
		return hc.Summary(ctx)
	})

	var out SummaryOutcome
	servers := make([]report.SummaryRecord, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			herr := &HostError{Host: r.Host, Op: "summary", Err: r.Err}
			// lager has no warning level.
			s.logger.Info("host-summary-failed", lager.Data{
				"host":     r.Host,
				"error":    herr.Error(),
				"severity": "warning",
			})
			out.Exceptions++
			out.Failures = append(out.Failures, herr)
			continue
		}
		rec := r.Value
		if rec.Errors == nil {
			rec.Errors = []string{}
		}
		servers = append(servers, rec)
	}

	meta := cfg.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	out.Report = report.RunReport{
		ID:        uuid.NewString(),
		Timestamp: s.opts.clock.Now(),
		Servers:   servers,
		Meta:      meta,
	}
	out.HostsWithErrors = out.Report.HostsWithErrors()

	if err := s.render(s.stdout, out.Report, format); err != nil {
		return out, fmt.Errorf("render %s: %w", format, err)
	}
	s.logger.Info("finished", lager.Data{
		"servers":           len(servers),
		"exceptions":        out.Exceptions,
		"hosts-with-errors": out.HostsWithErrors,
	})
	return out, nil
}
