package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// processTransport backs the Local and Chroot variants: both run commands
// through "sh -c" on this machine, the Chroot variant prepending
// "chroot <path> " via buildCommand. There is no persistent connection to
// hold open, so Connect/Disconnect are bookkeeping only.
type processTransport struct {
	cfg Config
	id  string

	mu        sync.Mutex
	connected bool
}

func newProcessTransport(cfg Config) *processTransport {
	return &processTransport{cfg: cfg, id: uuid.NewString()}
}

func (t *processTransport) Connect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	klog.V(4).Infof("transport[%s]: connected (%s)", t.id, t.cfg.Kind)
	return nil
}

func (t *processTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *processTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

func (t *processTransport) cmd(ctx context.Context, userCmd string) *exec.Cmd {
	full := buildCommand(t.cfg, userCmd)
	return exec.CommandContext(ctx, "sh", "-c", full)
}

func (t *processTransport) Exec(ctx context.Context, userCmd string) (string, int, error) {
	if !t.IsConnected() {
		return "", 0, ErrNotConnected
	}
	c := t.cmd(ctx, userCmd)
	c.Stdin = nil

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	klog.V(4).Infof("transport[%s]: exec %q", t.id, userCmd)
	err := c.Run()
	code, err := interpretExitError(err)
	if err != nil {
		return "", -1, err
	}
	return mergeOutput(stdout.String(), stderr.String()), code, nil
}

func (t *processTransport) ExecChecked(ctx context.Context, userCmd string) (string, error) {
	out, code, err := t.Exec(ctx, userCmd)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", &CommandFailed{Output: out, Code: code}
	}
	return out, nil
}

func (t *processTransport) ExecOpen(ctx context.Context, userCmd string) (*Stream, error) {
	if !t.IsConnected() {
		return nil, ErrNotConnected
	}
	c := t.cmd(ctx, userCmd)

	stdin, err := c.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := c.Start(); err != nil {
		return nil, err
	}
	klog.V(4).Infof("transport[%s]: exec_open %q (pid %d)", t.id, userCmd, c.Process.Pid)

	return newStream(&processHandle{cmd: c, stdin: stdin, stdout: stdout, stderr: stderr}), nil
}

type processHandle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
}

func (h *processHandle) Stdin() io.WriteCloser { return h.stdin }
func (h *processHandle) Stdout() io.Reader     { return h.stdout }
func (h *processHandle) Stderr() io.Reader     { return h.stderr }

func (h *processHandle) Wait() (int, error) {
	err := h.cmd.Wait()
	code, err := interpretExitError(err)
	return code, err
}

// interpretExitError turns the error exec.Cmd.Run/Wait returns into an exit
// code: 0 on success, the process's real exit code on a normal non-zero
// exit, 256 when the process was killed by a signal rather than exiting, and
// a non-nil error only when the command could not be started/waited on at
// all (e.g. binary not found).
func interpretExitError(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ProcessState.Exited() {
			return exitErr.ExitCode(), nil
		}
		return 256, nil
	}
	return 0, err
}

// mergeOutput concatenates stdout and stderr, stdout first, each with
// trailing whitespace stripped, separated by a newline.
func mergeOutput(stdout, stderr string) string {
	out := strings.TrimRight(stdout, " \t\r\n")
	errOut := strings.TrimRight(stderr, " \t\r\n")
	if errOut == "" {
		return out
	}
	if out == "" {
		return errOut
	}
	return out + "\n" + errOut
}
