package monitor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dusk-indust/sshmon/internal/report"
)

// ErrUnknownInspector is returned for a check type with no inspector.
var ErrUnknownInspector = errors.New("monitor: unknown check type")

// Inspector gathers metrics from a host.
type Inspector interface {
	Inspect(ctx context.Context, d Driver) ([]report.Metric, error)
}

type inspectorFactory func(opts map[string]string) (Inspector, error)

var inspectors = map[string]inspectorFactory{
	"disk":    newDiskInspector,
	"memory":  func(map[string]string) (Inspector, error) { return memoryInspector{}, nil },
	"loadavg": func(map[string]string) (Inspector, error) { return loadavgInspector{}, nil },
	"uptime":  func(map[string]string) (Inspector, error) { return uptimeInspector{}, nil },
	"exec":    newExecInspector,
}

// CheckTypes lists the supported check types, sorted.
func CheckTypes() []string {
	names := make([]string, 0, len(inspectors))
	for name := range inspectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newInspector(kind string, opts map[string]string) (Inspector, error) {
	factory, ok := inspectors[kind]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownInspector, kind)
	}
	return factory(opts)
}

// diskInspector reports usage of the filesystem holding mount.
type diskInspector struct {
	mount string
}

func newDiskInspector(opts map[string]string) (Inspector, error) {
	mount := opts["mount"]
	if mount == "" {
		mount = "/"
	}
	return diskInspector{mount: mount}, nil
}

func (i diskInspector) Inspect(ctx context.Context, d Driver) ([]report.Metric, error) {
	out, err := runChecked(ctx, d, "df -P -k "+shellQuote(i.mount))
	if err != nil {
		return nil, err
	}
	return parseDF(out)
}

// parseDF reads POSIX df -P -k output.
func parseDF(out string) ([]report.Metric, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("df: unexpected output %q", out)
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 6 {
		return nil, fmt.Errorf("df: unexpected line %q", lines[len(lines)-1])
	}

	var kb [3]uint64
	for n := range kb {
		v, err := strconv.ParseUint(fields[n+1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("df: %w", err)
		}
		kb[n] = v
	}
	size, used, free := kb[0]*1024, kb[1]*1024, kb[2]*1024

	var pct float64
	if used+free > 0 {
		pct = round2(float64(used) / float64(used+free) * 100)
	}
	return []report.Metric{
		{Name: "device", Value: fields[0]},
		{Name: "mount", Value: strings.Join(fields[5:], " ")},
		{Name: "size_bytes", Value: size},
		{Name: "used_bytes", Value: used},
		{Name: "free_bytes", Value: free},
		{Name: "percent_used", Value: pct},
	}, nil
}

// memoryInspector reads /proc/meminfo.
type memoryInspector struct{}

func (memoryInspector) Inspect(ctx context.Context, d Driver) ([]report.Metric, error) {
	out, err := runChecked(ctx, d, "cat /proc/meminfo")
	if err != nil {
		return nil, err
	}
	return parseMeminfo(out)
}

func parseMeminfo(out string) ([]report.Metric, error) {
	kb := make(map[string]uint64)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		key, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		v, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		kb[key] = v
	}
	total, ok := kb["MemTotal"]
	if !ok || total == 0 {
		return nil, errors.New("meminfo: MemTotal missing")
	}

	avail, ok := kb["MemAvailable"]
	if !ok {
		avail = kb["MemFree"] + kb["Buffers"] + kb["Cached"]
	}
	used := total - min(avail, total)
	swapUsed := kb["SwapTotal"] - min(kb["SwapFree"], kb["SwapTotal"])

	return []report.Metric{
		{Name: "total_bytes", Value: total * 1024},
		{Name: "free_bytes", Value: kb["MemFree"] * 1024},
		{Name: "available_bytes", Value: avail * 1024},
		{Name: "used_bytes", Value: used * 1024},
		{Name: "percent_used", Value: round2(float64(used) / float64(total) * 100)},
		{Name: "swap_total_bytes", Value: kb["SwapTotal"] * 1024},
		{Name: "swap_used_bytes", Value: swapUsed * 1024},
	}, nil
}

// loadavgInspector reads /proc/loadavg.
type loadavgInspector struct{}

func (loadavgInspector) Inspect(ctx context.Context, d Driver) ([]report.Metric, error) {
	out, err := runChecked(ctx, d, "cat /proc/loadavg")
	if err != nil {
		return nil, err
	}
	return parseLoadavg(out)
}

func parseLoadavg(out string) ([]report.Metric, error) {
	fields := strings.Fields(out)
	if len(fields) < 4 {
		return nil, fmt.Errorf("loadavg: unexpected output %q", out)
	}
	var loads [3]float64
	for n := range loads {
		v, err := strconv.ParseFloat(fields[n], 64)
		if err != nil {
			return nil, fmt.Errorf("loadavg: %w", err)
		}
		loads[n] = v
	}
	running, total, ok := strings.Cut(fields[3], "/")
	if !ok {
		return nil, fmt.Errorf("loadavg: unexpected process field %q", fields[3])
	}
	r, err := strconv.Atoi(running)
	if err != nil {
		return nil, fmt.Errorf("loadavg: %w", err)
	}
	t, err := strconv.Atoi(total)
	if err != nil {
		return nil, fmt.Errorf("loadavg: %w", err)
	}
	return []report.Metric{
		{Name: "load1", Value: loads[0]},
		{Name: "load5", Value: loads[1]},
		{Name: "load15", Value: loads[2]},
		{Name: "running_procs", Value: r},
		{Name: "total_procs", Value: t},
	}, nil
}

// uptimeInspector reads /proc/uptime.
type uptimeInspector struct{}

func (uptimeInspector) Inspect(ctx context.Context, d Driver) ([]report.Metric, error) {
	out, err := runChecked(ctx, d, "cat /proc/uptime")
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(out)
	if len(fields) < 1 {
		return nil, fmt.Errorf("uptime: unexpected output %q", out)
	}
	secs, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("uptime: %w", err)
	}
	return []report.Metric{
		{Name: "uptime_seconds", Value: secs},
		{Name: "uptime_days", Value: round2(secs / 86400)},
	}, nil
}

// execInspector runs an arbitrary command. Its exit code is a metric, not
// an error.
type execInspector struct {
	command string
}

func newExecInspector(opts map[string]string) (Inspector, error) {
	if opts["command"] == "" {
		return nil, errors.New("exec check requires config.command")
	}
	return execInspector{command: opts["command"]}, nil
}

func (i execInspector) Inspect(ctx context.Context, d Driver) ([]report.Metric, error) {
	res, err := d.Run(ctx, i.command)
	if err != nil {
		return nil, err
	}
	return []report.Metric{
		{Name: "exit_code", Value: res.ExitCode},
		{Name: "stdout", Value: strings.TrimSpace(res.Stdout)},
		{Name: "stderr", Value: strings.TrimSpace(res.Stderr)},
	}, nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
