package transport

import (
	"context"
	"encoding/json"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

// collector gathers inbound documents from the transport handler.
type collector struct {
	mu    sync.Mutex
	lines []string
	ch    chan string
}

func newCollector() *collector {
	return &collector{ch: make(chan string, 16)}
}

func (c *collector) handle(agentID string, data []byte) {
	c.mu.Lock()
	c.lines = append(c.lines, string(data))
	c.mu.Unlock()
	c.ch <- string(data)
}

func (c *collector) waitLine(t *testing.T) string {
	t.Helper()
	select {
	case line := <-c.ch:
		return line
	case <-time.After(5 * time.Second):
		t.Fatal("no line arrived")
		return ""
	}
}

func TestStdioRoundTrip(t *testing.T) {
	skipWithoutShell(t)

	c := newCollector()
	tr := NewStdio(c.handle)

	// cat echoes every document straight back.
	if err := tr.Start(context.Background(), "echo", "cat", nil, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer tr.Stop("echo")

	doc := map[string]interface{}{"jsonrpc": "2.0", "method": "ping"}
	if err := tr.Send("echo", doc); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	line := c.waitLine(t)
	var got map[string]interface{}
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("echoed line is not JSON: %v", err)
	}
	if got["method"] != "ping" {
		t.Errorf("got %v, want method ping", got)
	}
}

func TestStdioBlankLinesSkipped(t *testing.T) {
	skipWithoutShell(t)

	c := newCollector()
	tr := NewStdio(c.handle)

	err := tr.Start(context.Background(), "a", "sh", []string{"-c", `printf '\n{"n":1}\n\n'`}, nil)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer tr.Stop("a")

	if line := c.waitLine(t); line != `{"n":1}` {
		t.Errorf("got %q", line)
	}
	select {
	case extra := <-c.ch:
		t.Errorf("blank line delivered: %q", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStdioStartTwice(t *testing.T) {
	skipWithoutShell(t)

	tr := NewStdio(func(string, []byte) {})
	if err := tr.Start(context.Background(), "a", "cat", nil, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer tr.Stop("a")

	if err := tr.Start(context.Background(), "a", "cat", nil, nil); err != ErrAlreadyRunning {
		t.Errorf("got %v, want ErrAlreadyRunning", err)
	}
}

func TestStdioSendToUnknownAgent(t *testing.T) {
	tr := NewStdio(func(string, []byte) {})
	if err := tr.Send("ghost", map[string]int{}); err != ErrNotRunning {
		t.Errorf("got %v, want ErrNotRunning", err)
	}
}

func TestStdioStopNeverStarted(t *testing.T) {
	tr := NewStdio(func(string, []byte) {})
	if err := tr.Stop("ghost"); err != nil {
		t.Errorf("got %v, want nil", err)
	}
}

func TestStdioStopThenSend(t *testing.T) {
	skipWithoutShell(t)

	tr := NewStdio(func(string, []byte) {})
	if err := tr.Start(context.Background(), "a", "cat", nil, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := tr.Stop("a"); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := tr.Send("a", map[string]int{}); err != ErrNotRunning {
		t.Errorf("got %v, want ErrNotRunning", err)
	}
}

func TestStdioEnvPassedToProcess(t *testing.T) {
	skipWithoutShell(t)

	c := newCollector()
	tr := NewStdio(c.handle)

	err := tr.Start(context.Background(), "a", "sh", []string{"-c", `printf '{"v":"%s"}\n' "$BRIDGE_TEST_VAR"`},
		map[string]string{"BRIDGE_TEST_VAR": "hello"})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer tr.Stop("a")

	if line := c.waitLine(t); !strings.Contains(line, "hello") {
		t.Errorf("env var not visible to subprocess: %q", line)
	}
}

func TestStdioStderrForwarded(t *testing.T) {
	skipWithoutShell(t)

	stderrCh := make(chan string, 4)
	tr := NewStdio(func(string, []byte) {},
		WithStderrHandler(func(agentID string, chunk []byte) {
			stderrCh <- string(chunk)
		}))

	err := tr.Start(context.Background(), "a", "sh", []string{"-c", "echo oops >&2; cat"}, nil)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer tr.Stop("a")

	select {
	case chunk := <-stderrCh:
		if !strings.Contains(chunk, "oops") {
			t.Errorf("got %q", chunk)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stderr never forwarded")
	}
}

func TestStdioStopExitsPromptly(t *testing.T) {
	skipWithoutShell(t)

	tr := NewStdio(func(string, []byte) {})
	if err := tr.Start(context.Background(), "a", "cat", nil, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	start := time.Now()
	if err := tr.Stop("a"); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	// cat exits as soon as stdin closes; no escalation should be needed.
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("stop took %v", elapsed)
	}
}
