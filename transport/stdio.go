package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/codetide/agent-bridge/internal/procattr"
)

// StdioTransport runs one subprocess per agent id and speaks
// newline-delimited JSON over its stdin/stdout. Stderr is forwarded to an
// optional handler for diagnostics.
type StdioTransport struct {
	handler   Handler
	stderr    func(agentID string, chunk []byte)
	log       *slog.Logger
	mu        sync.Mutex
	processes map[string]*agentProcess
}

// StdioOption configures a StdioTransport.
type StdioOption func(*StdioTransport)

// WithStderrHandler forwards subprocess stderr chunks to h.
func WithStderrHandler(h func(agentID string, chunk []byte)) StdioOption {
	return func(t *StdioTransport) { t.stderr = h }
}

// WithLogger sets the transport logger.
func WithLogger(log *slog.Logger) StdioOption {
	return func(t *StdioTransport) { t.log = log }
}

// NewStdio creates a StdioTransport delivering inbound documents to handler.
func NewStdio(handler Handler, opts ...StdioOption) *StdioTransport {
	t := &StdioTransport{
		handler:   handler,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		processes: make(map[string]*agentProcess),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start implements Transport.
func (t *StdioTransport) Start(ctx context.Context, agentID, command string, args []string, env map[string]string) error {
	t.mu.Lock()
	if _, ok := t.processes[agentID]; ok {
		t.mu.Unlock()
		return ErrAlreadyRunning
	}
	t.mu.Unlock()

	p := &agentProcess{id: agentID}
	if err := p.start(ctx, command, args, env); err != nil {
		return err
	}

	t.mu.Lock()
	t.processes[agentID] = p
	t.mu.Unlock()

	if t.stderr != nil {
		p.startStderrReader(func(chunk []byte) { t.stderr(agentID, chunk) })
	}

	go t.readLoop(p)

	t.log.Debug("agent process started", "agent", agentID, "command", command)
	return nil
}

// Stop implements Transport.
func (t *StdioTransport) Stop(agentID string) error {
	t.mu.Lock()
	p, ok := t.processes[agentID]
	if ok {
		delete(t.processes, agentID)
	}
	t.mu.Unlock()

	if !ok {
		return nil
	}

	err := p.stop()
	t.log.Debug("agent process stopped", "agent", agentID)
	return err
}

// Send implements Transport.
func (t *StdioTransport) Send(agentID string, doc interface{}) error {
	t.mu.Lock()
	p, ok := t.processes[agentID]
	t.mu.Unlock()

	if !ok {
		return ErrNotRunning
	}
	return p.writeJSON(doc)
}

// readLoop pumps stdout lines into the handler until EOF.
func (t *StdioTransport) readLoop(p *agentProcess) {
	for {
		line, err := p.readLine()
		if err != nil {
			if err != io.EOF && !p.isStopping() {
				t.log.Warn("agent read failed", "agent", p.id, "error", err)
			}
			return
		}
		if len(line) == 0 {
			continue
		}
		t.handler(p.id, line)
	}
}

// agentProcess owns a single agent subprocess and its pipes.
type agentProcess struct {
	id       string
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stderrRC io.ReadCloser
	reader   *bufio.Reader
	encoder  *json.Encoder
	mu       sync.Mutex
	stopping bool
}

func (p *agentProcess) start(ctx context.Context, command string, args []string, env map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cmd = exec.CommandContext(ctx, command, args...)

	// Process group so a stuck agent and its children can be signalled
	// together, and the child dies with the host on Linux.
	procattr.Set(p.cmd)

	if len(env) > 0 {
		p.cmd.Env = os.Environ()
		for k, v := range env {
			p.cmd.Env = append(p.cmd.Env, k+"="+v)
		}
	}

	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := p.cmd.Start(); err != nil {
		return err
	}

	p.stdin = stdin
	p.stderrRC = stderr
	p.reader = bufio.NewReader(stdout)
	p.encoder = json.NewEncoder(stdin)
	return nil
}

func (p *agentProcess) readLine() ([]byte, error) {
	line, err := p.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	return line, nil
}

func (p *agentProcess) writeJSON(doc interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopping {
		return ErrStopping
	}
	if p.encoder == nil {
		return ErrNotRunning
	}
	return p.encoder.Encode(doc)
}

func (p *agentProcess) isStopping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}

// stop closes stdin to let the agent exit on its own, then escalates from
// SIGINT to SIGKILL on the whole process group.
func (p *agentProcess) stop() error {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return nil
	}
	p.stopping = true
	p.mu.Unlock()

	if p.stdin != nil {
		p.stdin.Close()
	}

	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(500 * time.Millisecond):
	}

	if p.cmd.Process != nil {
		_ = procattr.SignalGroup(p.cmd.Process, syscall.SIGINT)
	}
	select {
	case <-done:
		return nil
	case <-time.After(500 * time.Millisecond):
	}

	if p.cmd.Process != nil {
		_ = procattr.KillGroup(p.cmd.Process)
	}
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
	}
	return nil
}

func (p *agentProcess) startStderrReader(handler func([]byte)) {
	rc := p.stderrRC
	if rc == nil {
		return
	}
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := rc.Read(buf)
			if n > 0 {
				handler(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()
}
