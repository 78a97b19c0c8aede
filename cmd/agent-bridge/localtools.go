package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/codetide/agent-bridge/bridge"
	"github.com/codetide/agent-bridge/toolspec"
)

// grepMatchLimit caps grep output so one tool call cannot flood the agent.
const grepMatchLimit = 200

// localExecutor runs the host tool catalog directly on the filesystem,
// confined to root.
type localExecutor struct {
	root string
}

var _ bridge.ToolExecutor = (*localExecutor)(nil)

func (e *localExecutor) Execute(ctx context.Context, toolName string, input map[string]interface{}, execCtx bridge.ExecContext) (string, error) {
	root := e.root
	if execCtx.WorkspaceRoot != "" {
		root = execCtx.WorkspaceRoot
	}

	switch toolName {
	case "read_file":
		var p toolspec.ReadFileParams
		if err := decodeInput(input, &p); err != nil {
			return "", err
		}
		return e.readFile(root, p)
	case "write_file":
		var p toolspec.WriteFileParams
		if err := decodeInput(input, &p); err != nil {
			return "", err
		}
		return e.writeFile(root, p)
	case "list_directory":
		var p toolspec.ListDirectoryParams
		if err := decodeInput(input, &p); err != nil {
			return "", err
		}
		return e.listDirectory(root, p)
	case "shell_exec":
		var p toolspec.ShellExecParams
		if err := decodeInput(input, &p); err != nil {
			return "", err
		}
		return e.shellExec(ctx, root, p)
	case "grep":
		var p toolspec.GrepParams
		if err := decodeInput(input, &p); err != nil {
			return "", err
		}
		return e.grep(root, p)
	default:
		return "", fmt.Errorf("unknown tool %q", toolName)
	}
}

func (e *localExecutor) readFile(root string, p toolspec.ReadFileParams) (string, error) {
	path, err := resolvePath(root, p.Path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if p.Line <= 0 && p.Limit <= 0 {
		return string(data), nil
	}

	lines := strings.Split(string(data), "\n")
	start := 0
	if p.Line > 0 {
		start = p.Line - 1
	}
	if start >= len(lines) {
		return "", nil
	}
	end := len(lines)
	if p.Limit > 0 && start+p.Limit < end {
		end = start + p.Limit
	}
	return strings.Join(lines[start:end], "\n"), nil
}

func (e *localExecutor) writeFile(root string, p toolspec.WriteFileParams) (string, error) {
	path, err := resolvePath(root, p.Path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(p.Content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(p.Content), p.Path), nil
}

func (e *localExecutor) listDirectory(root string, p toolspec.ListDirectoryParams) (string, error) {
	path, err := resolvePath(root, p.Path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, entry := range entries {
		sb.WriteString(entry.Name())
		if entry.IsDir() {
			sb.WriteByte('/')
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func (e *localExecutor) shellExec(ctx context.Context, root string, p toolspec.ShellExecParams) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", p.Command)
	cmd.Dir = root
	out, err := cmd.CombinedOutput()
	if err != nil {
		if len(out) > 0 {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
		}
		return "", err
	}
	return string(out), nil
}

func (e *localExecutor) grep(root string, p toolspec.GrepParams) (string, error) {
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %w", err)
	}
	start, err := resolvePath(root, p.Path)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	matches := 0
	err = filepath.WalkDir(start, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name := d.Name(); name == ".git" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if matches >= grepMatchLimit {
			return filepath.SkipAll
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil // unreadable files are skipped, not fatal
		}
		if strings.ContainsRune(string(data), 0) {
			return nil // binary
		}

		rel, _ := filepath.Rel(root, path)
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				fmt.Fprintf(&sb, "%s:%d:%s\n", rel, i+1, line)
				matches++
				if matches >= grepMatchLimit {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if matches == 0 {
		return "no matches", nil
	}
	return sb.String(), nil
}

// resolvePath joins a tool-supplied relative path onto root and rejects
// anything that escapes it.
func resolvePath(root, rel string) (string, error) {
	if rel == "" {
		return root, nil
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %q must be relative to the workspace", rel)
	}
	path := filepath.Join(root, rel)
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", rel)
	}
	return path, nil
}

// decodeInput converts the loosely typed tool input into a typed params
// struct, rejecting fields the schema never declared.
func decodeInput(input map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	return nil
}
