package orchestrator

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"code.cloudfoundry.org/lager/v3"
	"code.cloudfoundry.org/lager/v3/lagertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/sshmon/internal/config"
	"github.com/dusk-indust/sshmon/internal/report"
)

// fakeChecker implements HostChecker with configurable functions.
type fakeChecker struct {
	notify  func(ctx context.Context) (int, error)
	summary func(ctx context.Context) (report.SummaryRecord, error)
	closed  bool
}

func (f *fakeChecker) NotifyChannelsOfAlerts(ctx context.Context) (int, error) {
	return f.notify(ctx)
}

func (f *fakeChecker) Summary(ctx context.Context) (report.SummaryRecord, error) {
	return f.summary(ctx)
}

func (f *fakeChecker) Close() error {
	f.closed = true
	return nil
}

// fakeFleet hands out a fakeChecker per host and remembers which hosts were
// built.
type fakeFleet struct {
	mu       sync.Mutex
	checkers map[string]*fakeChecker
	buildErr map[string]error
	built    []string
}

func newFakeFleet() *fakeFleet {
	return &fakeFleet{checkers: map[string]*fakeChecker{}, buildErr: map[string]error{}}
}

func (f *fakeFleet) alerts(host string, n int, err error) {
	f.checkers[host] = &fakeChecker{notify: func(context.Context) (int, error) { return n, err }}
}

func (f *fakeFleet) record(host string, errs ...string) {
	f.checkers[host] = &fakeChecker{summary: func(context.Context) (report.SummaryRecord, error) {
		return report.SummaryRecord{Name: host, Driver: "ssh", Errors: errs}, nil
	}}
}

func (f *fakeFleet) summaryErr(host string, err error) {
	f.checkers[host] = &fakeChecker{summary: func(context.Context) (report.SummaryRecord, error) {
		return report.SummaryRecord{}, err
	}}
}

func (f *fakeFleet) factory(name string, _ config.HostConfig) (HostChecker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.built = append(f.built, name)
	if err := f.buildErr[name]; err != nil {
		return nil, err
	}
	return f.checkers[name], nil
}

func decodeConfig(t *testing.T, docs ...string) *config.Config {
	t.Helper()
	nodes := make([]*yaml.Node, 0, len(docs))
	for _, d := range docs {
		n, err := config.Parse([]byte(d))
		require.NoError(t, err)
		nodes = append(nodes, n)
	}
	merged, err := config.MergeAll(nodes, true)
	require.NoError(t, err)
	cfg, err := config.Decode(merged)
	require.NoError(t, err)
	return cfg
}

const threeHosts = `
meta:
  title: Fleet
servers:
  h1: {driver: local}
  h2: {driver: local}
  h3: {driver: local}
`

// captureRender records the report it was asked to render.
type captureRender struct {
	got    report.RunReport
	format string
	calls  int
	err    error
}

func (c *captureRender) render(w io.Writer, r report.RunReport, format string) error {
	c.calls++
	c.got = r
	c.format = format
	if c.err != nil {
		return c.err
	}
	_, err := io.WriteString(w, "rendered\n")
	return err
}

func logsWith(logger *lagertest.TestLogger, message string) []lager.LogFormat {
	var out []lager.LogFormat
	for _, l := range logger.Logs() {
		if l.Message == message {
			out = append(out, l)
		}
	}
	return out
}

var errBoom = errors.New("boom")

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitOK, CheckOutcome{Alerts: 12}.ExitCode())
	assert.Equal(t, ExitFailure, CheckOutcome{Exceptions: 1}.ExitCode())

	assert.Equal(t, ExitOK, SummaryOutcome{}.ExitCode())
	assert.Equal(t, ExitHostsFailed, SummaryOutcome{HostsWithErrors: 2}.ExitCode())
	assert.Equal(t, ExitFailure, SummaryOutcome{Exceptions: 1, HostsWithErrors: 2}.ExitCode())
}

func TestHostError(t *testing.T) {
	err := &HostError{Host: "h1", Op: "check", Err: errBoom}
	assert.Equal(t, "check h1: boom", err.Error())
	assert.ErrorIs(t, err, errBoom)
}

func TestLogProgress(t *testing.T) {
	logger := lagertest.NewTestLogger("test")

	LogProgress(logger)(ProgressEvent{Host: "h1", Status: ProgressFailed, Message: "boom"})

	logs := logger.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, "test.progress.host", logs[0].Message)
	assert.Equal(t, lager.DEBUG, logs[0].LogLevel)
	assert.Equal(t, "failed", logs[0].Data["status"])
	assert.Equal(t, "boom", logs[0].Data["message"])
}
