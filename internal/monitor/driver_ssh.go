package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/dusk-indust/sshmon/internal/config"
)

// sshDriver runs commands over a single SSH connection opened on first use.
type sshDriver struct {
	addr           string
	cfg            config.DriverConfig
	timeout        time.Duration
	commandTimeout time.Duration

	mu        sync.Mutex
	client    *ssh.Client
	agentConn net.Conn
}

func newSSHDriver(name string, cfg config.HostConfig) *sshDriver {
	return &sshDriver{
		addr:           cfg.Address(name),
		cfg:            cfg.Config,
		timeout:        cfg.Timeout(),
		commandTimeout: cfg.CommandTimeout(),
	}
}

func (d *sshDriver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		return nil
	}

	clientCfg, err := d.clientConfig()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, d.addr, err)
	}

	dialer := net.Dialer{Timeout: d.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	// Bound the handshake as well as the dial.
	_ = conn.SetDeadline(time.Now().Add(d.timeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, d.addr, clientCfg)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, d.addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	d.client = ssh.NewClient(c, chans, reqs)
	return nil
}

func (d *sshDriver) Run(ctx context.Context, command string) (CommandResult, error) {
	if err := d.Connect(ctx); err != nil {
		return CommandResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, d.commandTimeout)
	defer cancel()

	sess, err := d.client.NewSession()
	if err != nil {
		return CommandResult{}, fmt.Errorf("ssh session %s: %w", d.addr, err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return CommandResult{}, fmt.Errorf("ssh %s: %q: %w", d.addr, command, ctx.Err())
	case err = <-done:
	}

	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *ssh.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitStatus()
	default:
		return res, fmt.Errorf("ssh %s: %q: %w", d.addr, command, err)
	}
	return res, nil
}

func (d *sshDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if d.client != nil {
		err = d.client.Close()
		d.client = nil
	}
	if d.agentConn != nil {
		_ = d.agentConn.Close()
		d.agentConn = nil
	}
	return err
}

func (d *sshDriver) clientConfig() (*ssh.ClientConfig, error) {
	user := d.cfg.Username
	if user == "" {
		user = os.Getenv("USER")
	}

	auth, err := d.authMethods()
	if err != nil {
		return nil, err
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if d.cfg.KnownHosts != "" {
		if hostKey, err = knownhosts.New(expandHome(d.cfg.KnownHosts)); err != nil {
			return nil, fmt.Errorf("known_hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         d.timeout,
	}, nil
}

// authMethods collects password, key file and agent authentication. The
// agent is used when asked for, or when nothing else is configured.
func (d *sshDriver) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if d.cfg.KeyFile != "" {
		signer, err := loadSigner(expandHome(d.cfg.KeyFile), d.cfg.KeyPassphrase)
		if err != nil {
			return nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if d.cfg.Password != "" {
		methods = append(methods, ssh.Password(d.cfg.Password))
	}

	if d.cfg.UseAgent || len(methods) == 0 {
		sock := os.Getenv("SSH_AUTH_SOCK")
		if sock == "" {
			if len(methods) == 0 {
				return nil, errors.New("no password, key_file or SSH_AUTH_SOCK available")
			}
			return methods, nil
		}
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return nil, fmt.Errorf("ssh agent: %w", err)
		}
		d.agentConn = conn
		methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
	}
	return methods, nil
}

func loadSigner(path, passphrase string) (ssh.Signer, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("key_file: %w", err)
	}
	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(pem)
	}
	if err != nil {
		return nil, fmt.Errorf("key_file %s: %w", path, err)
	}
	return signer, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
