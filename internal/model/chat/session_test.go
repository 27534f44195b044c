package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionDefaults(t *testing.T) {
	s := NewSession("s1", 0, time.Unix(0, 0))
	assert.Equal(t, StageAwaitingIdentity, s.Stage)
	assert.Equal(t, DefaultMaxAttempts, s.MaxAttempts)
	assert.False(t, s.Validated)
	assert.Empty(t, s.Transcript)
}

func TestResetClearsValidationState(t *testing.T) {
	s := NewSession("s1", 3, time.Now())
	s.Append(Message{Sender: SenderUser, Content: "hi"})
	s.Stage = StageAwaitingAnswer
	s.Validated = true
	s.ValidationInvoked = true
	s.IdentityRequested = true
	s.AttemptCount = 2
	s.PendingQuestion = "What is your mother's maiden name?"
	s.PendingAnswer = "Smith"
	s.RecordID = "u1"

	s.Reset(5)

	assert.Equal(t, StageAwaitingIdentity, s.Stage)
	assert.False(t, s.Validated)
	assert.False(t, s.ValidationInvoked)
	assert.False(t, s.IdentityRequested)
	assert.Zero(t, s.AttemptCount)
	assert.Equal(t, 5, s.MaxAttempts)
	assert.Empty(t, s.PendingQuestion)
	assert.Empty(t, s.PendingAnswer)
	assert.Empty(t, s.RecordID)
	assert.Empty(t, s.Transcript)
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := NewSession("s1", 3, time.Now())
	s.Append(Message{Sender: SenderUser, Content: "hi"})

	snap := s.Snapshot()
	s.Append(Message{Sender: SenderAssistant, Content: "hello"})
	s.Transcript[0].Content = "changed"

	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, "hi", snap.Transcript[0].Content)
	assert.Equal(t, "s1", snap.Transcript[0].SessionID)
}

func TestSessionJSONHidesSecrets(t *testing.T) {
	s := NewSession("s1", 3, time.Unix(0, 0).UTC())
	s.Stage = StageAwaitingAnswer
	s.PendingQuestion = "What is your mother's maiden name?"
	s.PendingAnswer = "Smith"
	s.RecordID = "u1"

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"stage":"awaiting_answer"`)
	assert.NotContains(t, string(raw), "Smith")
	assert.NotContains(t, string(raw), "u1")

	var decoded Session
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, StageAwaitingAnswer, decoded.Stage)

	var bad Stage
	assert.Error(t, bad.UnmarshalText([]byte("nope")))
}
