package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dusk-indust/sshmon/internal/config"
)

// ErrUnknownDriver is returned for a driver name with no implementation.
var ErrUnknownDriver = errors.New("monitor: unknown driver")

// ErrUnreachable wraps failures to establish a session with a host.
var ErrUnreachable = errors.New("monitor: host unreachable")

// CommandResult is the outcome of one command. A non-zero exit code is not
// an error; errors are reserved for transport failures.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Driver runs shell commands on a host.
type Driver interface {
	// Connect establishes the session. It is safe to call more than once.
	Connect(ctx context.Context) error

	// Run executes command through the host's shell.
	Run(ctx context.Context, command string) (CommandResult, error)

	// Close releases the session.
	Close() error
}

// newDriver builds the driver named in cfg.
func newDriver(name string, cfg config.HostConfig) (Driver, error) {
	switch cfg.DriverName() {
	case config.DriverSSH:
		return newSSHDriver(name, cfg), nil
	case config.DriverLocal:
		return newLocalDriver(cfg), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownDriver, cfg.Driver)
	}
}

// runChecked runs command and turns a non-zero exit into an error carrying
// the command's stderr.
func runChecked(ctx context.Context, d Driver, command string) (string, error) {
	res, err := d.Run(ctx, command)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.Stdout)
		}
		return "", fmt.Errorf("%q exited with status %d: %s", command, res.ExitCode, msg)
	}
	return res.Stdout, nil
}

// shellQuote quotes s for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
