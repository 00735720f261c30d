package remote

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"testrig/scenario-engine/pkg/logger"
)

// SSHConfig holds the settings shared by every SSH connection of a run.
type SSHConfig struct {
	// User is the default login user; a target of the form user@host
	// overrides it.
	User string `yaml:"user" env:"SCN_SSH_USER"`
	// Port is used for targets that do not carry an explicit port.
	Port int `yaml:"port" env:"SCN_SSH_PORT"`
	// KeyFile is the private key used for authentication.
	KeyFile string `yaml:"key_file" env:"SCN_SSH_KEY_FILE"`
	// KnownHostsFile verifies host keys when set; otherwise host keys
	// are not checked (lab clusters are rebuilt constantly).
	KnownHostsFile string `yaml:"known_hosts_file" env:"SCN_SSH_KNOWN_HOSTS_FILE"`
	// ConnectTimeout bounds the TCP dial.
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"SCN_SSH_CONNECT_TIMEOUT"`
}

// DefaultSSHConfig returns the default SSH settings.
func DefaultSSHConfig() SSHConfig {
	return SSHConfig{
		User:           "ubuntu",
		Port:           22,
		ConnectTimeout: 10 * time.Second,
	}
}

// SSHExecutor runs commands over SSH, one session per command. Clients
// are cached per target for the lifetime of the run.
type SSHExecutor struct {
	cfg     SSHConfig
	capture *Capture
	auth    []ssh.AuthMethod
	hostKey ssh.HostKeyCallback

	mu      sync.Mutex
	clients map[string]*ssh.Client
}

// NewSSHExecutor builds an SSH executor, loading the key material up
// front so authentication problems surface before the scenario starts.
func NewSSHExecutor(cfg SSHConfig, capture *Capture) (*SSHExecutor, error) {
	e := &SSHExecutor{
		cfg:     cfg,
		capture: capture,
		clients: make(map[string]*ssh.Client),
	}

	if cfg.KeyFile != "" {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key %s: %w", cfg.KeyFile, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key %s: %w", cfg.KeyFile, err)
		}
		e.auth = append(e.auth, ssh.PublicKeys(signer))
	}

	if cfg.KnownHostsFile != "" {
		callback, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts %s: %w", cfg.KnownHostsFile, err)
		}
		e.hostKey = callback
	} else {
		e.hostKey = ssh.InsecureIgnoreHostKey()
	}

	return e, nil
}

// Run executes one command on the target over a fresh SSH session.
func (e *SSHExecutor) Run(ctx context.Context, target string, cmd Command) (*CommandResult, error) {
	client, err := e.client(target)
	if err != nil {
		return nil, &TransportError{Target: target, Cause: err}
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, &TransportError{Target: target, Cause: err}
	}
	defer session.Close()

	stdout, stderr, err := e.capture.Create(cmd.Label)
	if err != nil {
		return nil, err
	}
	defer stdout.Close()
	defer stderr.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	result := &CommandResult{
		StdoutRef: stdout.Name(),
		StderrRef: stderr.Name(),
	}

	logger.Debug("remote command",
		zap.String("target", target),
		zap.String("cmd", cmd.Line))

	start := time.Now()
	if err := session.Start(cmd.Line); err != nil {
		return nil, &TransportError{Target: target, Cause: err}
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		// Hard cancellation: kill the remote process and report the
		// context error upward.
		_ = session.Signal(ssh.SIGKILL)
		<-done
		result.Duration = time.Since(start)
		return result, ctx.Err()
	case err := <-done:
		result.Duration = time.Since(start)
		switch werr := err.(type) {
		case nil:
			return result, nil
		case *ssh.ExitError:
			result.ExitCode = werr.ExitStatus()
			return result, nil
		default:
			// Session torn down without an exit status.
			return nil, &TransportError{Target: target, Cause: err}
		}
	}
}

// client returns the cached client for the target, dialing if necessary.
func (e *SSHExecutor) client(target string) (*ssh.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if client, ok := e.clients[target]; ok {
		return client, nil
	}

	user, addr := e.splitTarget(target)
	config := &ssh.ClientConfig{
		User:            user,
		Auth:            e.auth,
		HostKeyCallback: e.hostKey,
		Timeout:         e.cfg.ConnectTimeout,
	}

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, err
	}
	e.clients[target] = client
	return client, nil
}

// splitTarget resolves "user@host[:port]" into login user and dial
// address, applying the configured defaults.
func (e *SSHExecutor) splitTarget(target string) (user, addr string) {
	user = e.cfg.User
	addr = target
	if idx := strings.Index(target, "@"); idx >= 0 {
		user = target[:idx]
		addr = target[idx+1:]
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, fmt.Sprintf("%d", e.cfg.Port))
	}
	return user, addr
}

// Close closes every cached client.
func (e *SSHExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	for target, client := range e.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close ssh client for %s: %w", target, err)
		}
		delete(e.clients, target)
	}
	return firstErr
}
