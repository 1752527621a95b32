package monitor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/dusk-indust/sshmon/internal/config"
)

// localDriver runs commands on the machine sshmon itself runs on.
type localDriver struct {
	shell   string
	timeout time.Duration
}

func newLocalDriver(cfg config.HostConfig) *localDriver {
	return &localDriver{shell: "sh", timeout: cfg.CommandTimeout()}
}

func (d *localDriver) Connect(context.Context) error { return nil }

func (d *localDriver) Run(ctx context.Context, command string) (CommandResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.shell, "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children that inherit the pipes must not hold Run open past the kill.
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return res, ctx.Err()
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, err
	}
	return res, nil
}

func (d *localDriver) Close() error { return nil }
