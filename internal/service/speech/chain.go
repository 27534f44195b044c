package speech

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/zhouzirui/z-concierge/backend/internal/model/chat"
	"github.com/zhouzirui/z-concierge/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/z-concierge/backend/internal/service/chat"
)

// ErrNoSpeech is returned when a recording transcribes to nothing.
var ErrNoSpeech = errors.New("no speech recognised in audio")

// Transcriber converts audio into text.
type Transcriber interface {
	TranscribeBuffer(ctx context.Context, sessionID string, audioData []byte, format, language string) (*speech.ASRResponse, error)
}

// Synthesizer converts text into audio.
type Synthesizer interface {
	SynthesizeToBuffer(ctx context.Context, sessionID, text, voice string) (*speech.TTSResponse, error)
}

// TurnHandler runs a text turn through the concierge.
type TurnHandler interface {
	HandleTurn(ctx context.Context, sessionID string, in chatservice.Input) (chatservice.TurnResult, error)
}

// VoiceChain 语音处理链：转写 -> 会话轮次 -> 可选的语音合成
type VoiceChain struct {
	stt   Transcriber
	tts   Synthesizer
	turns TurnHandler
}

// NewVoiceChain 创建语音处理链
func NewVoiceChain(stt Transcriber, tts Synthesizer, turns TurnHandler) *VoiceChain {
	return &VoiceChain{stt: stt, tts: tts, turns: turns}
}

// VoiceTurnInput 语音轮次输入
type VoiceTurnInput struct {
	SessionID   string `json:"sessionId"`
	AudioData   []byte `json:"-"`
	AudioFormat string `json:"audioFormat"`
	Language    string `json:"language"`
	Speak       bool   `json:"speak"`
	Voice       string `json:"voice"`
}

// VoiceTurnOutput 语音轮次输出
type VoiceTurnOutput struct {
	SessionID   string                 `json:"sessionId"`
	Transcript  string                 `json:"transcript"`
	Turn        chatservice.TurnResult `json:"turn"`
	ReplyAudio  []byte                 `json:"-"`
	AudioFormat string                 `json:"audioFormat,omitempty"`
	ContentType string                 `json:"contentType,omitempty"`
}

// ProcessVoiceTurn transcribes the recording, feeds the text into the session
// as an ordinary turn and, when asked, voices the replies. A synthesis failure
// leaves the completed turn intact and returns it without audio.
func (vc *VoiceChain) ProcessVoiceTurn(ctx context.Context, input *VoiceTurnInput) (*VoiceTurnOutput, error) {
	asrResp, err := vc.stt.TranscribeBuffer(ctx, input.SessionID, input.AudioData, input.AudioFormat, input.Language)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}
	text := strings.TrimSpace(asrResp.Text)
	if text == "" {
		return nil, ErrNoSpeech
	}

	ref := &chat.AudioRef{
		ID:       uuid.NewString(),
		Format:   NormalizeInputFormat(input.AudioFormat),
		Size:     len(input.AudioData),
		Language: asrResp.Language,
	}
	turn, err := vc.turns.HandleTurn(ctx, input.SessionID, chatservice.Input{Text: text, Audio: ref})
	if err != nil {
		return nil, err
	}

	out := &VoiceTurnOutput{
		SessionID:  input.SessionID,
		Transcript: text,
		Turn:       turn,
	}
	if !input.Speak || vc.tts == nil {
		return out, nil
	}

	spoken := ReplyText(turn.Replies)
	if spoken == "" {
		return out, nil
	}
	ttsResp, err := vc.tts.SynthesizeToBuffer(ctx, input.SessionID, spoken, input.Voice)
	if err != nil {
		log.Printf("[speech] session=%s reply synthesis skipped: %v", input.SessionID, err)
		return out, nil
	}
	out.ReplyAudio = ttsResp.AudioData
	out.AudioFormat = ttsResp.Format
	out.ContentType = ttsResp.ContentType
	return out, nil
}

// ReplyText joins the non-empty reply contents of a turn.
func ReplyText(replies []chat.Message) string {
	parts := make([]string, 0, len(replies))
	for _, msg := range replies {
		if content := strings.TrimSpace(msg.Content); content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n")
}
