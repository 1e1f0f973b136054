package adapter

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// CommandRunner executes one command and returns its combined output. The
// output is returned even when the command fails, so callers can inspect
// the tool's complaint.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// LocalRunner executes commands on this host.
type LocalRunner struct{}

// Run executes the command via os/exec.
func (LocalRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s: %w (output: %s)", name, err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// SSHRunner executes commands on a remote shaping host over SSH. A fresh
// session is dialed per command; shaping operations are infrequent enough
// that connection reuse is not worth the liveness bookkeeping.
type SSHRunner struct {
	Host    string
	Port    int
	User    string
	KeyPath string
	Timeout time.Duration
}

// Run dials the remote host and executes the command in one session.
func (r *SSHRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	config, err := r.clientConfig()
	if err != nil {
		return "", err
	}

	addr := fmt.Sprintf("%s:%d", r.Host, r.Port)
	dialer := &net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("failed to establish SSH connection: %w", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open SSH session: %w", err)
	}
	defer session.Close()

	out, err := session.CombinedOutput(shellJoin(name, args))
	if err != nil {
		return string(out), fmt.Errorf("remote %s: %w (output: %s)", name, err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

func (r *SSHRunner) clientConfig() (*ssh.ClientConfig, error) {
	keyData, err := os.ReadFile(r.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading SSH key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parsing SSH key: %w", err)
	}

	timeout := r.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &ssh.ClientConfig{
		User:            r.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}, nil
}

// shellJoin renders a command line, quoting arguments that need it.
func shellJoin(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, arg := range args {
		if strings.ContainsAny(arg, " \t'\"\\$") {
			arg = "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}
