package speech

import (
	"context"
	"errors"
	"testing"

	"github.com/zhouzirui/z-concierge/backend/internal/model/chat"
	"github.com/zhouzirui/z-concierge/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/z-concierge/backend/internal/service/chat"
)

type fakeSTT struct {
	text string
	err  error
}

func (f fakeSTT) TranscribeBuffer(_ context.Context, sessionID string, _ []byte, _, _ string) (*speech.ASRResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &speech.ASRResponse{SessionID: sessionID, Text: f.text, Language: "en"}, nil
}

type fakeTTS struct {
	spoken []string
	err    error
}

func (f *fakeTTS) SynthesizeToBuffer(_ context.Context, sessionID, text, voice string) (*speech.TTSResponse, error) {
	f.spoken = append(f.spoken, text)
	if f.err != nil {
		return nil, f.err
	}
	return &speech.TTSResponse{SessionID: sessionID, AudioData: []byte("audio"), Format: "mp3", ContentType: "audio/mpeg", Voice: voice}, nil
}

type fakeTurns struct {
	inputs []chatservice.Input
	err    error
}

func (f *fakeTurns) HandleTurn(_ context.Context, sessionID string, in chatservice.Input) (chatservice.TurnResult, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return chatservice.TurnResult{}, f.err
	}
	return chatservice.TurnResult{
		SessionID: sessionID,
		Outcome:   chat.OutcomeAnswered,
		Replies: []chat.Message{
			{Sender: chat.SenderAssistant, Content: "First line."},
			{Sender: chat.SenderAssistant, Content: "  "},
			{Sender: chat.SenderAssistant, Content: "Second line."},
		},
	}, nil
}

func TestProcessVoiceTurnSpeaksReplies(t *testing.T) {
	turns := &fakeTurns{}
	tts := &fakeTTS{}
	chain := NewVoiceChain(fakeSTT{text: " refund policy? "}, tts, turns)

	out, err := chain.ProcessVoiceTurn(context.Background(), &VoiceTurnInput{
		SessionID:   "s1",
		AudioData:   []byte("12345"),
		AudioFormat: "audio/webm",
		Speak:       true,
		Voice:       "echo",
	})
	if err != nil {
		t.Fatalf("ProcessVoiceTurn returned error: %v", err)
	}
	if out.Transcript != "refund policy?" {
		t.Fatalf("unexpected transcript %q", out.Transcript)
	}
	if len(turns.inputs) != 1 || turns.inputs[0].Text != "refund policy?" {
		t.Fatalf("unexpected turn inputs %+v", turns.inputs)
	}
	ref := turns.inputs[0].Audio
	if ref == nil || ref.Format != "webm" || ref.Size != 5 || ref.Language != "en" {
		t.Fatalf("unexpected audio ref %+v", ref)
	}
	if len(tts.spoken) != 1 || tts.spoken[0] != "First line.\nSecond line." {
		t.Fatalf("unexpected spoken text %q", tts.spoken)
	}
	if string(out.ReplyAudio) != "audio" || out.ContentType != "audio/mpeg" {
		t.Fatalf("unexpected reply audio %+v", out)
	}
}

func TestProcessVoiceTurnWithoutSpeech(t *testing.T) {
	turns := &fakeTurns{}
	tts := &fakeTTS{}
	chain := NewVoiceChain(fakeSTT{text: "hello"}, tts, turns)

	out, err := chain.ProcessVoiceTurn(context.Background(), &VoiceTurnInput{SessionID: "s1", AudioData: []byte("x")})
	if err != nil {
		t.Fatalf("ProcessVoiceTurn returned error: %v", err)
	}
	if len(tts.spoken) != 0 || out.ReplyAudio != nil {
		t.Fatalf("expected no synthesis")
	}
}

func TestProcessVoiceTurnFailures(t *testing.T) {
	boom := errors.New("boom")

	turns := &fakeTurns{}
	chain := NewVoiceChain(fakeSTT{err: boom}, nil, turns)
	if _, err := chain.ProcessVoiceTurn(context.Background(), &VoiceTurnInput{SessionID: "s1"}); !errors.Is(err, boom) {
		t.Fatalf("expected transcription error, got %v", err)
	}
	if len(turns.inputs) != 0 {
		t.Fatalf("turn must not run when transcription fails")
	}

	chain = NewVoiceChain(fakeSTT{text: "   "}, nil, turns)
	if _, err := chain.ProcessVoiceTurn(context.Background(), &VoiceTurnInput{SessionID: "s1"}); !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech, got %v", err)
	}

	missing := &fakeTurns{err: chatservice.ErrSessionNotFound}
	chain = NewVoiceChain(fakeSTT{text: "hi"}, nil, missing)
	if _, err := chain.ProcessVoiceTurn(context.Background(), &VoiceTurnInput{SessionID: "nope"}); !errors.Is(err, chatservice.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	tts := &fakeTTS{err: boom}
	chain = NewVoiceChain(fakeSTT{text: "hi"}, tts, &fakeTurns{})
	out, err := chain.ProcessVoiceTurn(context.Background(), &VoiceTurnInput{SessionID: "s1", Speak: true})
	if err != nil {
		t.Fatalf("synthesis failure should not fail the turn: %v", err)
	}
	if out.Turn.Outcome != chat.OutcomeAnswered || out.ReplyAudio != nil {
		t.Fatalf("unexpected output %+v", out)
	}
}
