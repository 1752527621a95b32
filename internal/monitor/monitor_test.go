package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// fakeDriver implements Driver for tests. Commands are answered from
// outputs; run, when set, takes precedence.
type fakeDriver struct {
	mu       sync.Mutex
	outputs  map[string]CommandResult
	run      func(ctx context.Context, command string) (CommandResult, error)
	connect  func(ctx context.Context) error
	commands []string
	closed   bool
}

func (f *fakeDriver) Connect(ctx context.Context) error {
	if f.connect != nil {
		return f.connect(ctx)
	}
	return nil
}

func (f *fakeDriver) Run(ctx context.Context, command string) (CommandResult, error) {
	f.mu.Lock()
	f.commands = append(f.commands, command)
	f.mu.Unlock()
	if f.run != nil {
		return f.run(ctx, command)
	}
	res, ok := f.outputs[command]
	if !ok {
		return CommandResult{}, fmt.Errorf("unexpected command %q", command)
	}
	return res, nil
}

func (f *fakeDriver) Close() error {
	f.closed = true
	return nil
}

func stdout(s string) CommandResult { return CommandResult{Stdout: s} }

const (
	sampleDF = `Filesystem     1024-blocks     Used Available Capacity Mounted on
/dev/sda1         41152832 30864624  10288208      75% /
`
	sampleMeminfo = `MemTotal:        8000000 kB
MemFree:         1000000 kB
MemAvailable:    2000000 kB
Buffers:          100000 kB
Cached:           900000 kB
SwapTotal:       1000000 kB
SwapFree:         750000 kB
`
	sampleLoadavg = "0.52 0.58 0.59 2/1024 12345\n"
	sampleUptime  = "172800.00 340000.00\n"
)

func hostDriver() *fakeDriver {
	return &fakeDriver{outputs: map[string]CommandResult{
		"df -P -k '/'":      stdout(sampleDF),
		"cat /proc/meminfo": stdout(sampleMeminfo),
		"cat /proc/loadavg": stdout(sampleLoadavg),
		"cat /proc/uptime":  stdout(sampleUptime),
	}}
}

var errBoom = errors.New("boom")

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}
