package chat

import (
	"time"

	"github.com/zhouzirui/z-concierge/backend/internal/model/agent"
)

// Sender tags who produced a transcript entry.
type Sender string

const (
	SenderUser       Sender = "user"
	SenderAssistant  Sender = "assistant"
	SenderValidation Sender = "validation_agent"
)

// AudioRef points at the audio a message was transcribed from or synthesized to.
type AudioRef struct {
	ID       string `json:"id"`
	Format   string `json:"format"`
	Size     int    `json:"size"`
	Language string `json:"language,omitempty"`
}

// Message persists individual turns for audit/debug.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Sender    Sender    `json:"sender"`
	Agent     agent.ID  `json:"agent,omitempty"`
	Content   string    `json:"content"`
	Audio     *AudioRef `json:"audio,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
