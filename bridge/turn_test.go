package bridge

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTurn(sessionID string, cb TurnCallbacks) *inflightTurn {
	return newInflightTurn(sessionID, "thread", "agent", TurnOptions{
		Policy:    ApprovalAsk,
		Callbacks: cb,
	})
}

func TestTurnCompleteIsIdempotent(t *testing.T) {
	var completions, failures int
	turn := newTurn("s", TurnCallbacks{
		OnComplete: func(string) { completions++ },
		OnError:    func(string) { failures++ },
	})

	assert.True(t, turn.complete("final"))
	assert.False(t, turn.complete("again"))
	assert.False(t, turn.fail("too late"))
	assert.False(t, turn.cancel())

	assert.Equal(t, 1, completions)
	assert.Zero(t, failures)

	select {
	case <-turn.done:
	default:
		t.Fatal("done channel not closed")
	}
}

func TestTurnFinalTextPrefersOutputText(t *testing.T) {
	var final string
	turn := newTurn("s", TurnCallbacks{OnComplete: func(s string) { final = s }})
	turn.appendChunk("streamed ")
	turn.appendChunk("text")
	turn.complete("authoritative text")
	assert.Equal(t, "authoritative text", final)
}

func TestTurnFinalTextFallsBackToCollected(t *testing.T) {
	var final string
	turn := newTurn("s", TurnCallbacks{OnComplete: func(s string) { final = s }})
	turn.appendChunk("streamed ")
	turn.appendChunk("text")
	turn.complete("")
	assert.Equal(t, "streamed text", final)
}

func TestTurnChunkAfterCompletionDropped(t *testing.T) {
	var chunks []string
	turn := newTurn("s", TurnCallbacks{OnChunk: func(s string) { chunks = append(chunks, s) }})
	turn.appendChunk("a")
	turn.complete("")
	assert.False(t, turn.appendChunk("b"))
	assert.Equal(t, []string{"a"}, chunks)
}

func TestTurnCancelAppendsMarker(t *testing.T) {
	var final string
	turn := newTurn("s", TurnCallbacks{OnComplete: func(s string) { final = s }})
	turn.appendChunk("partial")
	assert.True(t, turn.cancel())
	assert.Equal(t, "partial"+CancelMarker, final)
}

func TestTurnCancelBeforeAnyChunk(t *testing.T) {
	var final string
	turn := newTurn("s", TurnCallbacks{OnComplete: func(s string) { final = s }})
	assert.True(t, turn.cancel())
	assert.Equal(t, CancelMarker, final)
}

func TestTurnToolCallbacksSilentAfterCompletion(t *testing.T) {
	var fired int
	turn := newTurn("s", TurnCallbacks{
		OnToolStart:    func(string, string, map[string]interface{}) { fired++ },
		OnToolComplete: func(string, string, string) { fired++ },
		OnToolRejected: func(string, string) { fired++ },
		OnToolError:    func(string, string, string) { fired++ },
	})
	turn.complete("")

	turn.toolStart("tc", "read_file", nil)
	turn.toolComplete("tc", "read_file", "out")
	turn.toolRejected("tc", "read_file")
	turn.toolError("tc", "read_file", "boom")
	assert.Zero(t, fired)
}

func TestTurnApproveAfterCompletion(t *testing.T) {
	turn := newTurn("s", TurnCallbacks{
		OnToolApproval: func(context.Context, string, map[string]interface{}) (bool, error) {
			return true, nil
		},
	})
	turn.complete("")

	ok, err := turn.approve(context.Background(), "read_file", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTurnApproveWithoutCallback(t *testing.T) {
	turn := newTurn("s", TurnCallbacks{})
	ok, err := turn.approve(context.Background(), "read_file", nil)
	require.NoError(t, err)
	assert.False(t, ok, "no approval callback means no approval")
}

func TestTurnConcurrentCompletionRace(t *testing.T) {
	// Response and turn_complete arriving together: exactly one wins.
	for i := 0; i < 100; i++ {
		var completions, failures int
		var mu sync.Mutex
		turn := newTurn("s", TurnCallbacks{
			OnComplete: func(string) { mu.Lock(); completions++; mu.Unlock() },
			OnError:    func(string) { mu.Lock(); failures++; mu.Unlock() },
		})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); turn.complete("from response") }()
		go func() { defer wg.Done(); turn.fail("from notification") }()
		wg.Wait()

		mu.Lock()
		total := completions + failures
		mu.Unlock()
		require.Equal(t, 1, total, "exactly one terminal callback per turn")
	}
}

func TestTurnTrackerSingleTurnPerSession(t *testing.T) {
	tt := newTurnTracker()
	first := newTurn("s1", TurnCallbacks{})

	require.NoError(t, tt.begin(first))
	assert.ErrorIs(t, tt.begin(newTurn("s1", TurnCallbacks{})), ErrTurnInFlight)
	require.NoError(t, tt.begin(newTurn("s2", TurnCallbacks{})))

	assert.Same(t, first, tt.get("s1"))
	tt.removeIf("s1", first)
	assert.Nil(t, tt.get("s1"))
}

func TestTurnTrackerStaleCleanupSparesSuccessor(t *testing.T) {
	tt := newTurnTracker()

	first := newTurn("s1", TurnCallbacks{})
	require.NoError(t, tt.begin(first))
	tt.removeIf("s1", first) // first turn completes

	// The next turn takes over the session before the first turn's caller
	// has run its deferred cleanup.
	second := newTurn("s1", TurnCallbacks{})
	require.NoError(t, tt.begin(second))

	tt.removeIf("s1", first) // stale cleanup from the finished turn
	assert.Same(t, second, tt.get("s1"), "successor evicted by stale cleanup")

	tt.removeIf("s1", second)
	assert.Nil(t, tt.get("s1"))
}

func TestTurnTrackerCancelAgent(t *testing.T) {
	tt := newTurnTracker()

	mine := newInflightTurn("s1", "t1", "gemini", TurnOptions{})
	other := newInflightTurn("s2", "t2", "codex", TurnOptions{})
	require.NoError(t, tt.begin(mine))
	require.NoError(t, tt.begin(other))

	cancelled := tt.cancelAgent("gemini")
	require.Len(t, cancelled, 1)
	assert.Same(t, mine, cancelled[0])

	assert.Nil(t, tt.get("s1"))
	assert.Same(t, other, tt.get("s2"), "other agents' turns untouched")

	// Already-completed turns are removed but not reported as cancelled.
	done := newInflightTurn("s3", "t3", "gemini", TurnOptions{})
	require.NoError(t, tt.begin(done))
	done.complete("")
	assert.Empty(t, tt.cancelAgent("gemini"))
}
