// Command agent-bridge drives a configured coding agent from the terminal:
// it launches the agent subprocess, streams one prompt through it, and
// renders streamed text and tool activity as they arrive.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codetide/agent-bridge/toolspec"
)

const version = "1.0.0"

// Global flags.
var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "agent-bridge",
	Short: "Talk to coding agents over the agent protocol bridge",
	Long: `agent-bridge launches coding-agent subprocesses declared in an agent
registry and exchanges protocol messages with them: streaming answers,
tool-call approval, and session management.`,
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the host tools that can be advertised to agents",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range toolspec.Names() {
			fmt.Println(name)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "agents.yaml", "Agent registry file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log bridge internals to stderr")

	rootCmd.AddCommand(toolsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
