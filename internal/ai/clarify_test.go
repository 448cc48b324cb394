package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoInputClarifier(t *testing.T) {
	answer, err := NoInputClarifier{}.RequestClarification(context.Background(), ClarificationRequest{TicketKey: "ABC-1"})
	require.NoError(t, err)
	assert.Empty(t, answer)
}

func TestChannelClarifierAnswer(t *testing.T) {
	c := NewChannelClarifier(5 * time.Second)

	type result struct {
		answer string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		a, err := c.RequestClarification(context.Background(), ClarificationRequest{TicketKey: "ABC-1", Reason: "empty patch"})
		done <- result{a, err}
	}()

	select {
	case req := <-c.Requests():
		assert.Equal(t, "ABC-1", req.TicketKey)
		assert.False(t, req.RequestedAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("request was not published")
	}
	require.Len(t, c.Pending(), 1)

	require.NoError(t, c.Answer("ABC-1", "  edit Foo.java  "))
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "edit Foo.java", res.answer)
	assert.Empty(t, c.Pending())
}

func TestChannelClarifierTimeout(t *testing.T) {
	c := NewChannelClarifier(20 * time.Millisecond)
	answer, err := c.RequestClarification(context.Background(), ClarificationRequest{TicketKey: "ABC-1"})
	require.NoError(t, err)
	assert.Empty(t, answer)
	assert.Empty(t, c.Pending())
}

func TestChannelClarifierCancelled(t *testing.T) {
	c := NewChannelClarifier(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.RequestClarification(ctx, ClarificationRequest{TicketKey: "ABC-1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChannelClarifierAnswerWithoutRequest(t *testing.T) {
	c := NewChannelClarifier(time.Second)
	assert.ErrorIs(t, c.Answer("ABC-9", "hi"), ErrNoPendingRequest)
}
