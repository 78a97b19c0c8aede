package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/codetide/agent-bridge/bridge"
	"github.com/codetide/agent-bridge/config"
)

var (
	agentID     string
	workspace   string
	autoApprove bool
)

// Styles for tool and error lines. Streamed answer text is printed raw.
var (
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
)

var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Send one prompt to an agent and stream the answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPrompt(cmd.Context(), args[0])
	},
}

func init() {
	runCmd.Flags().StringVarP(&agentID, "agent", "a", "", "Agent id from the registry (required)")
	runCmd.Flags().StringVarP(&workspace, "workspace", "w", ".", "Workspace root exposed to tools")
	runCmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Execute tool calls without asking")
	_ = runCmd.MarkFlagRequired("agent")

	rootCmd.AddCommand(runCmd)
}

func runPrompt(ctx context.Context, prompt string) error {
	reg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ac, ok := reg.Agent(agentID)
	if !ok {
		return fmt.Errorf("agent %q not declared in %s", agentID, configPath)
	}

	root, err := os.Getwd()
	if err != nil {
		return err
	}
	if workspace != "." {
		root = workspace
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	b := bridge.New(&localExecutor{root: root},
		bridge.WithClientInfo("agent-bridge", version),
		bridge.WithLogger(logger),
	)

	agent := &bridge.Agent{
		ID:      ac.ID,
		Command: ac.Command,
		Args:    ac.Args,
		Env:     ac.Env,
		Model:   ac.Model,
		Tools:   ac.Tools,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		if err := b.StopAgent(agent.ID); err != nil {
			fmt.Fprintln(os.Stderr, mutedStyle.Render("stop: "+err.Error()))
		}
	}()

	policy := bridge.ApprovalAsk
	if autoApprove {
		policy = bridge.ApprovalAuto
	}

	threadID := uuid.NewString()
	var turnErr error

	err = b.ProcessMessage(ctx, threadID, agent, prompt, bridge.TurnOptions{
		Policy:  policy,
		Context: bridge.ExecContext{WorkspaceRoot: root},
		Callbacks: bridge.TurnCallbacks{
			OnChunk: func(text string) {
				fmt.Print(text)
			},
			OnComplete: func(string) {
				fmt.Println()
			},
			OnError: func(message string) {
				turnErr = errors.New(message)
			},
			OnToolStart: func(_, toolName string, input map[string]interface{}) {
				fmt.Println(toolStyle.Render("⏺ " + toolName + describeInput(input)))
			},
			OnToolComplete: func(_, toolName, output string) {
				fmt.Println(mutedStyle.Render(fmt.Sprintf("  ⎿ %s (%d bytes)", toolName, len(output))))
			},
			OnToolRejected: func(_, toolName string) {
				fmt.Println(mutedStyle.Render("  ⎿ " + toolName + " rejected"))
			},
			OnToolError: func(_, toolName, message string) {
				fmt.Println(errorStyle.Render("  ⎿ " + toolName + " failed: " + message))
			},
			OnToolApproval: askApproval,
		},
	})
	if err != nil {
		var authErr *bridge.AuthRequiredError
		if errors.As(err, &authErr) {
			return fmt.Errorf("agent %q needs authentication: %s", agentID, authErr.Message)
		}
		return err
	}
	if turnErr != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("turn failed: "+turnErr.Error()))
		os.Exit(1)
	}
	return nil
}

// askApproval reads a y/n answer from the terminal.
func askApproval(ctx context.Context, toolName string, input map[string]interface{}) (bool, error) {
	fmt.Print(promptStyle.Render(fmt.Sprintf("allow %s%s? [y/N] ", toolName, describeInput(input))))

	type answer struct {
		ok  bool
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			ch <- answer{err: err}
			return
		}
		line = strings.ToLower(strings.TrimSpace(line))
		ch <- answer{ok: line == "y" || line == "yes"}
	}()

	select {
	case a := <-ch:
		return a.ok, a.err
	case <-ctx.Done():
		fmt.Println()
		return false, ctx.Err()
	}
}

// describeInput renders the most informative single argument, if any.
func describeInput(input map[string]interface{}) string {
	for _, key := range []string{"path", "command", "pattern"} {
		if v, ok := input[key].(string); ok && v != "" {
			return "(" + v + ")"
		}
	}
	return ""
}
