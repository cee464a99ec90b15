package netaccess

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultSSHTimeout bounds dialing, authentication and command execution.
const DefaultSSHTimeout = 8 * time.Second

// SSHConfig configures SSHRunner.
type SSHConfig struct {
	User     string
	Password string
	Port     int
	Timeout  time.Duration
	// KnownHostsFile enables host key verification. Empty accepts any host key.
	KnownHostsFile string
}

// SSHRunner runs commands on gateways over SSH. The client tries no authentication first, then
// keyboard-interactive with empty answers, then the password, skipping methods the server does not
// advertise.
type SSHRunner struct {
	cfg      SSHConfig
	hostKeys ssh.HostKeyCallback
}

// NewSSHRunner returns a runner for cfg.
func NewSSHRunner(cfg SSHConfig) (*SSHRunner, error) {
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSSHTimeout
	}
	hostKeys := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKeys = cb
	}
	return &SSHRunner{cfg: cfg, hostKeys: hostKeys}, nil
}

func (r *SSHRunner) clientConfig() *ssh.ClientConfig {
	emptyAnswers := func(_, _ string, questions []string, _ []bool) ([]string, error) {
		return make([]string, len(questions)), nil
	}
	return &ssh.ClientConfig{
		User: r.cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.KeyboardInteractive(emptyAnswers),
			ssh.Password(r.cfg.Password),
		},
		HostKeyCallback: r.hostKeys,
		Timeout:         r.cfg.Timeout,
	}
}

// Run executes command on host and returns its combined output. A non-zero exit status is an error.
func (r *SSHRunner) Run(ctx context.Context, host, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(host, strconv.Itoa(r.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, r.clientConfig())
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("ssh handshake %s: %w", addr, err)
	}
	client := ssh.NewClient(c, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("ssh session %s: %w", addr, err)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(command)
		done <- result{out: out, err: err}
	}()
	select {
	case res := <-done:
		if res.err != nil {
			var exitErr *ssh.ExitError
			if errors.As(res.err, &exitErr) {
				return string(res.out), fmt.Errorf("command exited with status %d: %w", exitErr.ExitStatus(), res.err)
			}
			return string(res.out), fmt.Errorf("run command: %w", res.err)
		}
		return string(res.out), nil
	case <-ctx.Done():
		client.Close()
		return "", fmt.Errorf("run command on %s: %w", addr, ctx.Err())
	}
}
