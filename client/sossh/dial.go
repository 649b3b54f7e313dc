package sossh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"
)

// SSHSocatConn is a connection tunnelled through `ssh host socat`.
type SSHSocatConn struct {
	io.ReadCloser
	io.WriteCloser
	cancel  context.CancelFunc
	cleanup func()
}

var _ net.Conn = (*SSHSocatConn)(nil)

func (c *SSHSocatConn) Close() error {
	c.cancel()
	defer c.cleanup()
	return errors.Join(c.ReadCloser.Close(), c.WriteCloser.Close())
}

func (c *SSHSocatConn) LocalAddr() net.Addr {
	return nil
}

func (c *SSHSocatConn) RemoteAddr() net.Addr {
	return nil
}

func (c *SSHSocatConn) SetDeadline(t time.Time) error {
	return fmt.Errorf("not implemented")
}

func (c *SSHSocatConn) SetReadDeadline(t time.Time) error {
	return fmt.Errorf("not implemented")
}

func (c *SSHSocatConn) SetWriteDeadline(t time.Time) error {
	return fmt.Errorf("not implemented")
}

// DialContext connects to target from the ssh host at addr. When hostKey is set, the ssh
// host must present that key.
func DialContext(ctx context.Context, network, addr, username, target string, hostKey *HostKey) (net.Conn, error) {
	if network != "tcp" {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}

	host, port, _ := strings.Cut(addr, ":")
	if port == "" {
		port = "22"
	}

	args, cleanup, err := sshArgs(host, port, username, hostKey)
	if err != nil {
		return nil, err
	}
	args = append(args, "--", "socat", "stdio", fmt.Sprintf("%s:%s", network, target))

	ctx, cancel := context.WithCancel(ctx)
	fail := func(err error) (net.Conn, error) {
		cancel()
		cleanup()
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "ssh", args...)
	cmd.Stderr = os.Stderr

	in, err := cmd.StdoutPipe()
	if err != nil {
		return fail(fmt.Errorf("stdout pipe: %w", err))
	}

	out, err := cmd.StdinPipe()
	if err != nil {
		return fail(fmt.Errorf("stdin pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return fail(fmt.Errorf("failed to start socat: %w", err))
	}

	return &SSHSocatConn{
		ReadCloser:  in,
		WriteCloser: out,
		cancel:      cancel,
		cleanup:     cleanup,
	}, nil
}

func sshArgs(host, port, username string, hostKey *HostKey) ([]string, func(), error) {
	args := []string{fmt.Sprintf("%s@%s", username, host), "-p", port, "-o", "BatchMode=yes"}
	if hostKey == nil {
		return args, func() {}, nil
	}

	knownHosts, err := hostKey.writeKnownHosts(host, port)
	if err != nil {
		return nil, nil, err
	}
	args = append(args,
		"-o", "UserKnownHostsFile="+knownHosts,
		"-o", "GlobalKnownHostsFile=/dev/null",
		"-o", "StrictHostKeyChecking=yes",
	)
	return args, func() { _ = os.Remove(knownHosts) }, nil
}
