// Package orchestrator drives check and summary runs across every
// configured host, isolating per-host failures and deriving the process
// exit code from the aggregated results.
package orchestrator

import (
	"context"
	"fmt"

	"code.cloudfoundry.org/lager/v3"

	"github.com/dusk-indust/sshmon/internal/config"
	"github.com/dusk-indust/sshmon/internal/monitor"
	"github.com/dusk-indust/sshmon/internal/report"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitHostsFailed = 4
)

// HostChecker runs one host's checks.
type HostChecker interface {
	// NotifyChannelsOfAlerts runs the checks, notifies channels of fired
	// alarms and returns how many fired.
	NotifyChannelsOfAlerts(ctx context.Context) (int, error)

	// Summary runs the checks and returns the host's summary record.
	Summary(ctx context.Context) (report.SummaryRecord, error)

	// Close releases the host's connection.
	Close() error
}

// CheckerFactory builds the HostChecker for a host.
type CheckerFactory func(name string, cfg config.HostConfig) (HostChecker, error)

// ServerFactory returns a CheckerFactory building monitor.Servers with opts.
func ServerFactory(logger lager.Logger, opts ...monitor.Option) CheckerFactory {
	return func(name string, cfg config.HostConfig) (HostChecker, error) {
		all := append([]monitor.Option{monitor.WithLogger(logger)}, opts...)
		s, err := monitor.NewServer(name, cfg, all...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// HostError is a failure confined to a single host.
type HostError struct {
	Host string
	Op   string
	Err  error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Host, e.Err)
}

func (e *HostError) Unwrap() error { return e.Err }

// PanicError is a recovered panic from a host's checker.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// CheckOutcome aggregates a check run.
type CheckOutcome struct {
	Alerts     int
	Exceptions int
	Failures   []*HostError
}

// ExitCode is ExitFailure when any host failed, ExitOK otherwise. The
// number of alerts never affects it.
func (o CheckOutcome) ExitCode() int {
	if o.Exceptions > 0 {
		return ExitFailure
	}
	return ExitOK
}

// SummaryOutcome aggregates a summary run.
type SummaryOutcome struct {
	Exceptions      int
	HostsWithErrors int
	Failures        []*HostError
	Report          report.RunReport
}

// ExitCode gives failed hosts priority over hosts reporting errors.
func (o SummaryOutcome) ExitCode() int {
	switch {
	case o.Exceptions > 0:
		return ExitFailure
	case o.HostsWithErrors > 0:
		return ExitHostsFailed
	default:
		return ExitOK
	}
}
