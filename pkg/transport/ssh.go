package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/fenio/zed-csi/pkg/utils"
	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
	"k8s.io/klog/v2"
)

// sshTransport backs the SSH variant: one ssh.Client dialed in Connect, one
// fresh ssh.Session per Exec/ExecOpen call, since the SSH protocol only
// allows a single command per channel. Grounded on the minimega project's
// protonuke SSH client (cmd/protonuke/ssh.go): ssh.Dial + one session per
// command, stdio wired through pipes rather than Session.Output/Run helpers
// so streaming callers can interleave reads and writes.
type sshTransport struct {
	cfg Config
	id  string

	mu        sync.Mutex
	client    *ssh.Client
	connected bool
}

func newSSHTransport(cfg Config) *sshTransport {
	return &sshTransport{cfg: cfg, id: uuid.NewString()}
}

func (t *sshTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}

	signer, err := ssh.ParsePrivateKey([]byte(t.cfg.SSH.PrivateKey))
	if err != nil {
		return fmt.Errorf("transport[%s]: parse private key: %w", t.id, err)
	}

	clientCfg := &ssh.ClientConfig{
		User:            t.cfg.SSH.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // host identity is established out of band by the operator
		Timeout:         15 * time.Second,
	}

	addr := net.JoinHostPort(t.cfg.SSH.Host, t.cfg.SSH.Port)
	dialer := net.Dialer{Timeout: clientCfg.Timeout}

	// Dial+handshake retries only the transient connection-refused/timeout
	// class (node rebooting, sshd not yet listening); auth failures surface
	// immediately since IsRetryableNetworkError doesn't match them.
	retryCfg := utils.DefaultRetryConfig()
	retryCfg.MaxAttempts = 3
	retryCfg.InitialBackoff = 2 * time.Second
	retryCfg.RetryableFunc = utils.IsRetryableNetworkError
	retryCfg.OperationName = fmt.Sprintf("ssh connect %s", addr)

	client, err := utils.WithRetry(ctx, retryCfg, func() (*ssh.Client, error) {
		conn, dialErr := dialer.DialContext(ctx, "tcp", addr)
		if dialErr != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, dialErr)
		}
		sshConn, chans, reqs, hsErr := ssh.NewClientConn(conn, addr, clientCfg)
		if hsErr != nil {
			conn.Close()
			return nil, fmt.Errorf("handshake %s: %w", addr, hsErr)
		}
		return ssh.NewClient(sshConn, chans, reqs), nil
	})
	if err != nil {
		return fmt.Errorf("transport[%s]: %w", t.id, err)
	}

	t.client = client
	t.connected = true
	klog.V(4).Infof("transport[%s]: connected to %s", t.id, addr)
	return nil
}

func (t *sshTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *sshTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil
	}
	t.connected = false
	client := t.client
	t.client = nil
	return client.Close()
}

func (t *sshTransport) newSession() (*ssh.Session, error) {
	t.mu.Lock()
	client := t.client
	connected := t.connected
	t.mu.Unlock()
	if !connected {
		return nil, ErrNotConnected
	}
	return client.NewSession()
}

func (t *sshTransport) Exec(_ context.Context, userCmd string) (string, int, error) {
	session, err := t.newSession()
	if err != nil {
		return "", 0, err
	}
	defer session.Close()

	full := buildCommand(t.cfg, userCmd)
	klog.V(4).Infof("transport[%s]: exec %q", t.id, userCmd)

	var stdout, stderr outBuf
	session.Stdout = &stdout
	session.Stderr = &stderr

	runErr := session.Run(full)
	code, err := interpretSSHError(runErr)
	if err != nil {
		return "", -1, err
	}
	return mergeOutput(stdout.String(), stderr.String()), code, nil
}

func (t *sshTransport) ExecChecked(ctx context.Context, userCmd string) (string, error) {
	out, code, err := t.Exec(ctx, userCmd)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", &CommandFailed{Output: out, Code: code}
	}
	return out, nil
}

func (t *sshTransport) ExecOpen(_ context.Context, userCmd string) (*Stream, error) {
	session, err := t.newSession()
	if err != nil {
		return nil, err
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, err
	}

	full := buildCommand(t.cfg, userCmd)
	if err := session.Start(full); err != nil {
		session.Close()
		return nil, err
	}
	klog.V(4).Infof("transport[%s]: exec_open %q", t.id, userCmd)

	return newStream(&sshHandle{session: session, stdin: stdin, stdout: stdout, stderr: stderr}), nil
}

type sshHandle struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	stderr  io.Reader
}

func (h *sshHandle) Stdin() io.WriteCloser { return h.stdin }
func (h *sshHandle) Stdout() io.Reader     { return h.stdout }
func (h *sshHandle) Stderr() io.Reader     { return h.stderr }

func (h *sshHandle) Wait() (int, error) {
	defer h.session.Close()
	err := h.session.Wait()
	return interpretSSHError(err)
}

func interpretSSHError(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return exitErr.ExitStatus(), nil
	}
	if _, ok := err.(*ssh.ExitMissingError); ok {
		return 256, nil
	}
	return 0, err
}

// outBuf is a minimal io.Writer accumulator, kept separate from bytes.Buffer
// only so the zero value is directly usable as a field value above.
type outBuf struct {
	data []byte
}

func (b *outBuf) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *outBuf) String() string { return string(b.data) }
