package remote

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"meshfw/internal/config"
)

// SSHRunner runs commands over SSH, one session per call. Connections are
// not pooled: every command is short and the fleet is small.
type SSHRunner struct {
	user    string
	port    int
	auth    []ssh.AuthMethod
	timeout time.Duration
}

// NewSSH builds a runner from the [ssh] config section. Key auth is
// preferred; a password is used as fallback when configured.
func NewSSH(cfg config.SSH) (*SSHRunner, error) {
	r := &SSHRunner{user: cfg.User, port: cfg.Port, timeout: cfg.Timeout}
	if r.timeout <= 0 {
		r.timeout = 5 * time.Second
	}
	if cfg.KeyFile != "" {
		b, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(b)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key %s: %w", cfg.KeyFile, err)
		}
		r.auth = append(r.auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		r.auth = append(r.auth, ssh.Password(cfg.Password))
	}
	if len(r.auth) == 0 {
		return nil, fmt.Errorf("ssh config has neither key nor password")
	}
	return r, nil
}

// Run dials the node, runs one command and returns its combined output.
// Dial and command failures on an unreachable host wrap ErrUnreachable.
func (r *SSHRunner) Run(ctx context.Context, nodeAddr, command string) (string, error) {
	cc := &ssh.ClientConfig{
		User: r.user,
		Auth: r.auth,
		// Routers regenerate host keys on reset; pinning them here would
		// turn every factory reset into a support case.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         r.timeout,
	}

	addr := net.JoinHostPort(nodeAddr, fmt.Sprintf("%d", r.port))
	slog.Debug("ssh run", "addr", addr, "cmd", command)

	d := net.Dialer{Timeout: r.timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("%w: dial %s: %v", ErrUnreachable, addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cc)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("%w: handshake %s: %v", ErrUnreachable, addr, err)
	}
	client := ssh.NewClient(c, chans, reqs)
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("%w: session %s: %v", ErrUnreachable, addr, err)
	}
	defer sess.Close()

	var out bytes.Buffer
	sess.Stdout = &out
	sess.Stderr = &out

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %s: %v", ErrUnreachable, addr, ctx.Err())
	case err = <-done:
	}
	if err != nil {
		return out.String(), fmt.Errorf("run %q on %s: %w", command, nodeAddr, err)
	}
	return out.String(), nil
}
