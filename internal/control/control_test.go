package control

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/fixbot/internal/ai"
	"github.com/steveyegge/fixbot/internal/orchestrator"
)

type fakeOrchestrator struct {
	mu        sync.Mutex
	override  ai.PromptOverride
	triggered []string
}

func (f *fakeOrchestrator) Trigger(_ context.Context, key string) error {
	if key == "" {
		return errors.New("invalid ticket key")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, key)
	return nil
}

func (f *fakeOrchestrator) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.triggered...)
}

func (f *fakeOrchestrator) Override() *ai.PromptOverride { return &f.override }

func (f *fakeOrchestrator) Status() orchestrator.Status {
	return orchestrator.Status{
		InstanceID:     "inst-1",
		Running:        true,
		ProcessedToday: []string{"ABC-1"},
		CacheSize:      2,
		Interval:       5 * time.Minute,
	}
}

func startServer(t *testing.T, orch Orchestrator, clarifier *ai.ChannelClarifier) *Client {
	t.Helper()
	// unix socket paths are length limited, so avoid the long t.TempDir path
	dir, err := os.MkdirTemp("", "fbctl")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	sock := filepath.Join(dir, "fixbot.sock")

	srv, err := NewServer(sock, NewHandler(orch, clarifier))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(func() {
		require.NoError(t, srv.Stop())
		cancel()
	})
	assert.True(t, srv.IsRunning())

	c := NewClient(sock)
	c.SetTimeout(5 * time.Second)
	return c
}

func TestProcessRoundTrip(t *testing.T) {
	orch := &fakeOrchestrator{}
	c := startServer(t, orch, nil)

	resp, err := c.Process("ABC-1")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Processing triggered for ticket: ABC-1", resp.Message)
	assert.Equal(t, []string{"ABC-1"}, orch.keys())

	resp, err = c.Process("")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "invalid ticket key")
}

func TestPromptCommands(t *testing.T) {
	orch := &fakeOrchestrator{}
	c := startServer(t, orch, nil)

	resp, err := c.SetPrompt("  focus on dates  ")
	require.NoError(t, err)
	assert.Equal(t, "Prompt override set", resp.Message)

	resp, err = c.GetPrompt()
	require.NoError(t, err)
	assert.Equal(t, "focus on dates", resp.Data["prompt"])

	resp, err = c.ConsumePrompt()
	require.NoError(t, err)
	assert.Equal(t, "focus on dates", resp.Data["prompt"])

	resp, err = c.GetPrompt()
	require.NoError(t, err)
	assert.Equal(t, "", resp.Data["prompt"])

	_, err = c.SetPrompt("x")
	require.NoError(t, err)
	resp, err = c.SetPrompt("")
	require.NoError(t, err)
	assert.Equal(t, "Prompt override cleared", resp.Message)
}

func TestClarifyRoundTrip(t *testing.T) {
	clarifier := ai.NewChannelClarifier(5 * time.Second)
	c := startServer(t, &fakeOrchestrator{}, clarifier)

	answered := make(chan string, 1)
	go func() {
		answer, _ := clarifier.RequestClarification(context.Background(), ai.ClarificationRequest{
			TicketKey: "ABC-1",
			Reason:    "ambiguous target",
			Question:  "Which file?",
		})
		answered <- answer
	}()

	require.Eventually(t, func() bool {
		resp, err := c.Pending()
		if err != nil || !resp.Success {
			return false
		}
		var out struct {
			Pending []ai.ClarificationRequest `json:"pending"`
		}
		return DecodeData(resp.Data, &out) == nil && len(out.Pending) == 1
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := c.Clarify("ABC-1", "src/A.java")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "src/A.java", <-answered)

	resp, err = c.Clarify("ABC-1", "again")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "no pending clarification request")
}

func TestClarifyWithoutClarifier(t *testing.T) {
	c := startServer(t, &fakeOrchestrator{}, nil)
	resp, err := c.Clarify("ABC-1", "x")
	require.NoError(t, err)
	assert.False(t, resp.Success)
}

func TestStatusRoundTrip(t *testing.T) {
	c := startServer(t, &fakeOrchestrator{}, nil)

	resp, err := c.Status()
	require.NoError(t, err)
	require.True(t, resp.Success)

	var st orchestrator.Status
	require.NoError(t, DecodeData(resp.Data, &st))
	assert.Equal(t, "inst-1", st.InstanceID)
	assert.True(t, st.Running)
	assert.Equal(t, []string{"ABC-1"}, st.ProcessedToday)
	assert.Equal(t, 2, st.CacheSize)
	assert.Equal(t, 5*time.Minute, st.Interval)
}

func TestUnknownCommand(t *testing.T) {
	c := startServer(t, &fakeOrchestrator{}, nil)
	resp, err := c.SendCommand(Command{Type: "pause"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, `unknown command type "pause"`)
}

func TestClientWithoutServer(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := c.Status()
	assert.ErrorContains(t, err, "failed to connect")
}
