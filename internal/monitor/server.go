// Package monitor runs the checks configured for a single host, evaluates
// their alarms and delivers fired alarms to notification channels.
package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"
	"github.com/hashicorp/go-multierror"

	"github.com/dusk-indust/sshmon/internal/config"
	"github.com/dusk-indust/sshmon/internal/report"
)

// Server checks one host.
type Server struct {
	name     string
	driver   Driver
	driverID string
	meta     map[string]any
	checks   []check
	channels []Channel
	clock    clock.Clock
	logger   lager.Logger
}

type check struct {
	name      string
	kind      string
	inspector Inspector
	alarms    config.Alarms
}

type serverOptions struct {
	stdout io.Writer
	clock  clock.Clock
	client *http.Client
	driver Driver
	logger lager.Logger
}

// Option configures a Server.
type Option func(*serverOptions)

// WithStdout sets the writer used by stdout channels.
func WithStdout(w io.Writer) Option {
	return func(o *serverOptions) { o.stdout = w }
}

// WithClock sets the clock used for alert and token timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *serverOptions) { o.clock = c }
}

// WithHTTPClient sets the client used by webhook channels.
func WithHTTPClient(c *http.Client) Option {
	return func(o *serverOptions) { o.client = c }
}

// WithDriver replaces the driver named in the host configuration.
func WithDriver(d Driver) Option {
	return func(o *serverOptions) { o.driver = d }
}

// WithLogger sets the logger. A session named after the host is derived
// from it.
func WithLogger(l lager.Logger) Option {
	return func(o *serverOptions) { o.logger = l }
}

// NewServer validates cfg and builds the host's driver, inspectors and
// channels. No connection is made until the first check runs.
func NewServer(name string, cfg config.HostConfig, opts ...Option) (*Server, error) {
	o := serverOptions{
		stdout: os.Stdout,
		clock:  clock.NewClock(),
		client: http.DefaultClient,
		logger: lager.NewLogger("monitor"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		name:     name,
		driver:   o.driver,
		driverID: cfg.DriverName(),
		meta:     cfg.Meta,
		clock:    o.clock,
		logger:   o.logger.Session("server", lager.Data{"host": name}),
	}
	if s.driver == nil {
		d, err := newDriver(name, cfg)
		if err != nil {
			return nil, err
		}
		s.driver = d
	}

	for i, cc := range cfg.Checks {
		insp, err := newInspector(cc.Type, cc.Config)
		if err != nil {
			return nil, fmt.Errorf("check %d: %w", i, err)
		}
		checkName := cc.Name
		if checkName == "" {
			checkName = cc.Type
		}
		s.checks = append(s.checks, check{name: checkName, kind: cc.Type, inspector: insp, alarms: cc.Alarms})
	}

	deps := channelDeps{stdout: o.stdout, client: o.client, clock: o.clock}
	for i, ch := range cfg.Channels {
		c, err := newChannel(ch.Type, ch.Config, deps)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		s.channels = append(s.channels, c)
	}
	return s, nil
}

// NotifyChannelsOfAlerts runs every check and sends each fired alarm to
// every channel. It returns the number of alarms that fired, along with
// every error met on the way.
func (s *Server) NotifyChannelsOfAlerts(ctx context.Context) (int, error) {
	if err := s.driver.Connect(ctx); err != nil {
		return 0, err
	}

	var errs *multierror.Error
	fired := 0
	for _, c := range s.checks {
		metrics, err := c.inspector.Inspect(ctx, s.driver)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("check %s: %w", c.name, err))
			continue
		}
		values := metricMap(metrics)

		for _, al := range c.alarms {
			ok, err := evaluate(al.Expression, values)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("check %s: alarm %s: %w", c.name, al.Name, err))
				continue
			}
			if !ok {
				continue
			}
			fired++
			s.logger.Info("alarm-fired", lager.Data{"check": c.name, "alarm": al.Name})

			alert := Alert{
				Host:       s.name,
				Check:      c.name,
				CheckType:  c.kind,
				Alarm:      al.Name,
				Expression: al.Expression,
				Metrics:    values,
				FiredAt:    s.clock.Now(),
			}
			for _, ch := range s.channels {
				if err := ch.Notify(ctx, alert); err != nil {
					errs = multierror.Append(errs, fmt.Errorf("channel %s: alarm %s: %w", ch.Name(), al.Name, err))
				}
			}
		}
	}
	return fired, errs.ErrorOrNil()
}

// Summary runs every check without notifying anyone. Check and alarm
// failures are recorded in the returned record; only failing to reach the
// host is returned as an error.
func (s *Server) Summary(ctx context.Context) (report.SummaryRecord, error) {
	rec := report.SummaryRecord{
		Name:   s.name,
		Driver: s.driverID,
		Meta:   s.meta,
		Checks: []report.CheckSummary{},
		Errors: []string{},
	}
	if err := s.driver.Connect(ctx); err != nil {
		return report.SummaryRecord{}, err
	}

	for _, c := range s.checks {
		cs := report.CheckSummary{Name: c.name, Type: c.kind, Metrics: []report.Metric{}}

		metrics, err := c.inspector.Inspect(ctx, s.driver)
		if err != nil {
			cs.Error = err.Error()
			rec.Errors = append(rec.Errors, fmt.Sprintf("%s: %v", c.name, err))
			rec.Checks = append(rec.Checks, cs)
			s.logger.Debug("check-failed", lager.Data{"check": c.name, "error": err.Error()})
			continue
		}
		cs.Metrics = metrics
		values := metricMap(metrics)

		for _, al := range c.alarms {
			ok, err := evaluate(al.Expression, values)
			if err != nil {
				rec.Errors = append(rec.Errors, fmt.Sprintf("%s: alarm %s: %v", c.name, al.Name, err))
				continue
			}
			cs.Alarms = append(cs.Alarms, report.AlarmState{Name: al.Name, Expression: al.Expression, Fired: ok})
		}
		rec.Checks = append(rec.Checks, cs)
	}
	return rec, nil
}

// Close releases the host's driver.
func (s *Server) Close() error {
	return s.driver.Close()
}
