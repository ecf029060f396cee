// Package faketransport is a test double for transport.Transport: it
// replays canned (cmd -> output, code) pairs instead of touching a real
// shell, the same approach spec.md's own end-to-end scenarios describe
// ("a fake transport that replays canned (cmd -> output, code)").
package faketransport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fenio/zed-csi/pkg/transport"
)

type response struct {
	output string
	code   int
}

// Fake implements transport.Transport. Register expected commands with
// Expect (consumed in FIFO order per distinct command string, so the same
// command can be scripted to answer differently across repeated calls,
// e.g. an iscsiadm session list queried before and after login) and inspect
// everything it actually ran with Calls.
type Fake struct {
	mu        sync.Mutex
	responses map[string][]response
	calls     []string
	connected bool

	// interactive REPL scripting, consumed by ExecOpen (see Script).
	replCmd     string
	replOutputs []string
	sentLines   []string
}

// New returns an empty Fake, already connected — component-level tests
// exercise a driver's command composition, not transport lifecycle. Call
// Disconnect explicitly to test the not-connected error path.
func New() *Fake {
	return &Fake{responses: map[string][]response{}, connected: true}
}

// Expect queues output/code to be returned the next time cmd is executed.
func (f *Fake) Expect(cmd, output string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[cmd] = append(f.responses[cmd], response{output: output, code: code})
}

// Script registers the scripted interactive session ExecOpen will serve.
// outputs[0] is written to stdout before any SendLine; outputs[i] for i>0
// is written after the i-th line is sent. Sending the literal line "exit"
// always ends the session regardless of remaining scripted outputs.
func (f *Fake) Script(cmd string, outputs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replCmd = cmd
	f.replOutputs = outputs
}

// Calls returns every command Exec/ExecChecked/ExecOpen was asked to run, in
// order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// SentLines returns every line SendLine wrote into the last scripted
// interactive session.
func (f *Fake) SentLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sentLines))
	copy(out, f.sentLines)
	return out
}

func (f *Fake) record(cmd string) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()
}

func (f *Fake) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *Fake) Exec(_ context.Context, cmd string) (string, int, error) {
	if !f.IsConnected() {
		return "", 0, transport.ErrNotConnected
	}
	f.record(cmd)

	f.mu.Lock()
	defer f.mu.Unlock()
	queue := f.responses[cmd]
	if len(queue) == 0 {
		return "", 0, fmt.Errorf("faketransport: no expectation registered for %q", cmd)
	}
	next := queue[0]
	if len(queue) > 1 {
		f.responses[cmd] = queue[1:]
	}
	return next.output, next.code, nil
}

func (f *Fake) ExecChecked(ctx context.Context, cmd string) (string, error) {
	out, code, err := f.Exec(ctx, cmd)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", &transport.CommandFailed{Output: out, Code: code}
	}
	return out, nil
}

// ExecOpen serves the scripted interactive session registered with Script.
// cmd is recorded like any other call but only checked against the script's
// expected command when one was registered.
func (f *Fake) ExecOpen(_ context.Context, cmd string) (*transport.Stream, error) {
	if !f.IsConnected() {
		return nil, transport.ErrNotConnected
	}
	f.record(cmd)

	f.mu.Lock()
	outputs := f.replOutputs
	replCmd := f.replCmd
	f.mu.Unlock()
	if replCmd != "" && cmd != replCmd {
		return nil, fmt.Errorf("faketransport: ExecOpen(%q) does not match scripted command %q", cmd, replCmd)
	}

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()

	go func() {
		defer stdoutW.Close()
		defer stderrW.Close()

		if len(outputs) > 0 {
			io.WriteString(stdoutW, outputs[0])
		}
		idx := 1
		scanner := bufio.NewScanner(stdinR)
		for scanner.Scan() {
			line := scanner.Text()
			f.mu.Lock()
			f.sentLines = append(f.sentLines, line)
			f.mu.Unlock()
			if line == "exit" {
				return
			}
			if idx < len(outputs) {
				io.WriteString(stdoutW, outputs[idx])
				idx++
			}
		}
	}()

	return transport.NewStream(&fakeHandle{stdin: stdinW, stdout: stdoutR, stderr: stderrR}), nil
}

type fakeHandle struct {
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
}

func (h *fakeHandle) Stdin() io.WriteCloser { return h.stdin }
func (h *fakeHandle) Stdout() io.Reader     { return h.stdout }
func (h *fakeHandle) Stderr() io.Reader     { return h.stderr }
func (h *fakeHandle) Wait() (int, error)    { return 0, nil }
