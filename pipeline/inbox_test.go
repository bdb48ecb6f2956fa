package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPipelineStateConsumeForOnlyTakesMatchingTarget(t *testing.T) {
	s := NewPipelineState("r", "sess", "q", "repo", "main", "")
	s.Enqueue(InboxMessage{TargetStepID: "a", Topic: "x", SenderStepID: "fork"})
	s.Enqueue(InboxMessage{TargetStepID: "b", Topic: "y", SenderStepID: "fork"})
	s.Enqueue(InboxMessage{TargetStepID: "a", Topic: "z", SenderStepID: "fork"})

	mine := s.ConsumeFor("a")
	assert.Len(t, mine, 2)
	assert.Equal(t, "x", mine[0].Topic)
	assert.Equal(t, "z", mine[1].Topic)
	assert.Equal(t, mine, s.InboxLastConsumed)

	assert.Len(t, s.Inbox, 1)
	assert.Equal(t, "b", s.Inbox[0].TargetStepID)
}

func TestPipelineStateConsumeForNoMatchLeavesInboxUntouched(t *testing.T) {
	s := NewPipelineState("r", "sess", "q", "repo", "main", "")
	s.Enqueue(InboxMessage{TargetStepID: "other"})

	mine := s.ConsumeFor("nobody")
	assert.Empty(t, mine)
	assert.Len(t, s.Inbox, 1)
}

func TestPipelineStateRequeuePutsMessagesBackOnInbox(t *testing.T) {
	s := NewPipelineState("r", "sess", "q", "repo", "main", "")
	msgs := []InboxMessage{{TargetStepID: "budget", Topic: "more_room"}}
	s.Requeue(msgs)
	assert.True(t, s.HasPending())
	assert.Equal(t, msgs, s.Inbox)
}

func TestPipelineStateHasPending(t *testing.T) {
	s := NewPipelineState("r", "sess", "q", "repo", "main", "")
	assert.False(t, s.HasPending())
	s.Enqueue(InboxMessage{TargetStepID: "x"})
	assert.True(t, s.HasPending())
}
