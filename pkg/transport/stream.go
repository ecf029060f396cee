package transport

import (
	"bufio"
	"io"
	"regexp"
	"strings"
	"sync"
)

// ExecHandle is the minimum surface Stream needs from either a local
// *exec.Cmd or a remote *ssh.Session, so the merge/wait logic below is
// written once and shared by every transport variant. Exported so test
// doubles (see pkg/faketransport) can build real Streams over in-memory
// pipes instead of reimplementing the wait/merge semantics.
type ExecHandle interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the child exits and returns its exit code, using
	// 256 when the code is unavailable (killed by signal).
	Wait() (int, error)
}

type lineMsg struct {
	text string
}

type exitMsg struct {
	code int
	err  error
}

// Stream is an open interactive handle to a running command: stdin can be
// written to with SendLine while stdout/stderr are read as they arrive.
// Exactly one of WaitFor/WaitForCompletion may be the last call to observe
// process exit; once exit has been observed the stream is consumed and
// further wait calls return ErrStreamConsumed.
type Stream struct {
	handle ExecHandle

	mu       sync.Mutex
	lines    chan lineMsg
	exit     chan exitMsg
	terminal bool
	exitCode *int
}

// NewStream builds a Stream around an arbitrary ExecHandle. Production
// transports use this internally (process.go, ssh.go); test doubles use it
// directly to get real wait/merge semantics over fake processes.
func NewStream(h ExecHandle) *Stream {
	return newStream(h)
}

func newStream(h ExecHandle) *Stream {
	lines := make(chan lineMsg, 256)
	exit := make(chan exitMsg, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go pumpLines(h.Stdout(), lines, &wg)
	go pumpLines(h.Stderr(), lines, &wg)
	go func() {
		wg.Wait()
		close(lines)
		code, err := h.Wait()
		exit <- exitMsg{code: code, err: err}
		close(exit)
	}()

	return &Stream{handle: h, lines: lines, exit: exit}
}

func pumpLines(r io.Reader, out chan<- lineMsg, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		out <- lineMsg{text: scanner.Text()}
	}
}

// SendLine writes data followed by a newline to the child's stdin.
func (s *Stream) SendLine(data string) error {
	_, err := io.WriteString(s.handle.Stdin(), data+"\n")
	return err
}

// WaitForCompletion drains stdout/stderr until the child exits, returning
// the full merged output (trailing newline stripped) and exit code.
func (s *Stream) WaitForCompletion() (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal {
		return "", 0, ErrStreamConsumed
	}

	var sb strings.Builder
	lines, exit := s.lines, s.exit
	for lines != nil || exit != nil {
		select {
		case m, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			sb.WriteString(m.text)
			sb.WriteByte('\n')
		case m, ok := <-exit:
			if !ok {
				exit = nil
				continue
			}
			code := m.code
			s.exitCode = &code
		}
	}
	s.lines, s.exit = nil, nil
	s.terminal = true

	code := 256
	if s.exitCode != nil {
		code = *s.exitCode
	}
	return strings.TrimRight(sb.String(), "\n"), code, nil
}

// WaitFor reads lines as they arrive until one matches pattern, returning the
// accumulated output up to and including the matching line and a nil exit
// code (the process has not necessarily exited), or until the child exits
// first, in which case the exit code is non-nil. A match short-circuits
// before any further output is drained.
func (s *Stream) WaitFor(pattern *regexp.Regexp) (string, *int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal {
		return "", nil, ErrStreamConsumed
	}

	var sb strings.Builder
	for {
		if s.lines == nil && s.exit == nil {
			s.terminal = true
			return strings.TrimRight(sb.String(), "\n"), s.exitCode, nil
		}
		select {
		case m, ok := <-s.lines:
			if !ok {
				s.lines = nil
				continue
			}
			sb.WriteString(m.text)
			sb.WriteByte('\n')
			if pattern.MatchString(m.text) {
				return strings.TrimRight(sb.String(), "\n"), nil, nil
			}
		case m, ok := <-s.exit:
			if !ok {
				s.exit = nil
				continue
			}
			code := m.code
			s.exitCode = &code
			s.lines, s.exit = nil, nil
			s.terminal = true
			return strings.TrimRight(sb.String(), "\n"), &code, nil
		}
	}
}
