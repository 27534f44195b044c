package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/zhouzirui/z-concierge/backend/internal/config"
)

type audioServer struct {
	transcriptions int
	speeches       int
	lastModel      string
	lastLanguage   string
	lastFilename   string
	lastSpeech     map[string]any
}

func (a *audioServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		a.transcriptions++
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		a.lastModel = r.FormValue("model")
		a.lastLanguage = r.FormValue("language")
		if _, header, err := r.FormFile("file"); err == nil {
			a.lastFilename = header.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "  what is my balance  "})
	})
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		a.speeches++
		a.lastSpeech = map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&a.lastSpeech)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, "ID3-fake-audio")
	})
	return mux
}

func newTestService(t *testing.T) (*Service, *audioServer) {
	t.Helper()
	fake := &audioServer{}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	clientCfg := openai.DefaultConfig("test-key")
	clientCfg.BaseURL = server.URL + "/v1"
	client := openai.NewClientWithConfig(clientCfg)

	return NewService(client, config.OpenAIConfig{
		STTModel:    "whisper-1",
		STTLanguage: "en",
		TTSModel:    "tts-1",
		TTSVoice:    "nova",
		TTSFormat:   "mp3",
		TTSSpeed:    1.0,
	}), fake
}

func TestTranscribeBuffer(t *testing.T) {
	svc, fake := newTestService(t)

	resp, err := svc.TranscribeBuffer(context.Background(), "s1", []byte("RIFF...."), "audio/wav", "")
	if err != nil {
		t.Fatalf("TranscribeBuffer returned error: %v", err)
	}
	if resp.Text != "what is my balance" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if resp.SessionID != "s1" || resp.Language != "en" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if fake.lastModel != "whisper-1" || fake.lastLanguage != "en" {
		t.Fatalf("unexpected request model=%q language=%q", fake.lastModel, fake.lastLanguage)
	}
	if fake.lastFilename != "audio.wav" {
		t.Fatalf("expected audio.wav upload, got %q", fake.lastFilename)
	}
}

func TestTranscribeBufferRejectsBadPayloads(t *testing.T) {
	svc, fake := newTestService(t)

	if _, err := svc.TranscribeBuffer(context.Background(), "s1", nil, "wav", ""); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
	big := make([]byte, MaxAudioBytes+1)
	if _, err := svc.TranscribeBuffer(context.Background(), "s1", big, "wav", ""); !errors.Is(err, ErrAudioTooLarge) {
		t.Fatalf("expected ErrAudioTooLarge, got %v", err)
	}
	if fake.transcriptions != 0 {
		t.Fatalf("expected no upstream calls, got %d", fake.transcriptions)
	}
}

func TestSynthesizeToBuffer(t *testing.T) {
	svc, fake := newTestService(t)

	resp, err := svc.SynthesizeToBuffer(context.Background(), "s1", "Your balance is 10.", "unknown-voice")
	if err != nil {
		t.Fatalf("SynthesizeToBuffer returned error: %v", err)
	}
	if string(resp.AudioData) != "ID3-fake-audio" {
		t.Fatalf("unexpected audio %q", resp.AudioData)
	}
	if resp.Voice != "nova" || resp.Format != "mp3" || resp.ContentType != "audio/mpeg" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if fake.lastSpeech["input"] != "Your balance is 10." || fake.lastSpeech["voice"] != "nova" {
		t.Fatalf("unexpected speech request %+v", fake.lastSpeech)
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	svc, fake := newTestService(t)
	if _, err := svc.SynthesizeToBuffer(context.Background(), "s1", "   ", ""); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if fake.speeches != 0 {
		t.Fatalf("expected no upstream calls")
	}
}

func TestDisabledService(t *testing.T) {
	svc := NewService(nil, config.OpenAIConfig{})
	if svc.Enabled() {
		t.Fatalf("service without client should be disabled")
	}
	if _, err := svc.TranscribeBuffer(context.Background(), "s1", []byte("x"), "wav", ""); !errors.Is(err, ErrServiceDisabled) {
		t.Fatalf("expected ErrServiceDisabled, got %v", err)
	}
	if _, err := svc.SynthesizeToBuffer(context.Background(), "s1", "hi", ""); !errors.Is(err, ErrServiceDisabled) {
		t.Fatalf("expected ErrServiceDisabled, got %v", err)
	}
}

func TestVoiceAndFormatResolution(t *testing.T) {
	if got := ResolveVoice(" Shimmer ", "nova"); got != "shimmer" {
		t.Fatalf("expected shimmer, got %q", got)
	}
	if got := ResolveVoice("robot", "also-bad"); got != "alloy" {
		t.Fatalf("expected alloy fallback, got %q", got)
	}
	format, contentType := ResolveOutputFormat("WAV", "mp3")
	if format != openai.SpeechResponseFormatWav || contentType != "audio/wav" {
		t.Fatalf("unexpected format %q %q", format, contentType)
	}
	if got := NormalizeInputFormat("audio/webm;codecs=opus"); got != "webm" {
		t.Fatalf("expected webm, got %q", got)
	}
	if got := DetectInputFormat("note.M4A", "application/octet-stream"); got != "m4a" {
		t.Fatalf("expected m4a, got %q", got)
	}
	if got := DetectInputFormat("blob", "audio/mpeg"); got != "mp3" {
		t.Fatalf("expected mp3, got %q", got)
	}
}
