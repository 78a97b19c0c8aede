// Package bridge turns a JSON-RPC conversation with a coding-agent
// subprocess into a clean request/response/streaming API.
//
// A Bridge owns four cooperating pieces:
//
//   - the request correlator, which matches outbound requests to inbound
//     responses by id across all agents,
//   - the session registry, which lazily creates one protocol session per
//     conversation thread,
//   - the inflight-turn tracker, which folds streamed deltas into the
//     current answer and completes each turn exactly once no matter which
//     signal (response or notification) lands first,
//   - the tool dispatch gate, which intercepts tool invocations, asks for
//     approval, runs the executor, and answers every tool call id with
//     exactly one result message.
//
// # Usage
//
//	b := bridge.New(executor,
//	    bridge.WithClientInfo("my-editor", "0.3.0"),
//	    bridge.WithLogger(logger),
//	)
//
//	agent := &bridge.Agent{
//	    ID:      "gemini",
//	    Command: "gemini",
//	    Args:    []string{"--experimental-acp"},
//	    Tools:   []string{"read_file", "list_directory"},
//	}
//
//	err := b.ProcessMessage(ctx, threadID, agent, "list the files here", bridge.TurnOptions{
//	    Policy:  bridge.ApprovalAsk,
//	    Context: bridge.ExecContext{WorkspaceRoot: "/path/to/project"},
//	    Callbacks: bridge.TurnCallbacks{
//	        OnChunk:    func(s string) { fmt.Print(s) },
//	        OnComplete: func(s string) { fmt.Println() },
//	        OnError:    func(m string) { fmt.Println("error:", m) },
//	        OnToolApproval: func(ctx context.Context, name string, input map[string]interface{}) (bool, error) {
//	            return promptUser(name, input), nil
//	        },
//	    },
//	})
//
// ProcessMessage returns when the turn completes; all streaming and tool
// activity arrives through the callbacks.
package bridge
