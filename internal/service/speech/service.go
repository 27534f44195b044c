package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"github.com/zhouzirui/z-concierge/backend/internal/config"
	"github.com/zhouzirui/z-concierge/backend/internal/model/speech"
)

// MaxAudioBytes 是转写接口单次上传的音频上限。
const MaxAudioBytes = 25 << 20

var (
	ErrServiceDisabled = errors.New("speech service is not configured")
	ErrEmptyAudio      = errors.New("audio payload is empty")
	ErrAudioTooLarge   = errors.New("audio payload exceeds 25MB")
	ErrEmptyText       = errors.New("text to synthesize is empty")
)

// AudioClient 是 go-openai 客户端中语音相关的子集。
type AudioClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// Service 语音服务核心业务逻辑
type Service struct {
	client AudioClient
	config config.OpenAIConfig
	now    func() time.Time
}

// NewService 创建语音服务实例。client 为 nil 时所有调用返回 ErrServiceDisabled。
func NewService(client AudioClient, cfg config.OpenAIConfig) *Service {
	return &Service{
		client: client,
		config: cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether a client is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.client != nil
}

// TranscribeAudio 语音转文字
func (s *Service) TranscribeAudio(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	if !s.Enabled() {
		return nil, ErrServiceDisabled
	}
	if req == nil || req.AudioData == nil {
		return nil, ErrEmptyAudio
	}

	format := NormalizeInputFormat(req.Format)
	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = s.config.STTLanguage
	}

	started := s.now()
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.config.STTModel,
		Reader:   req.AudioData,
		FilePath: "audio." + format,
		Prompt:   req.Prompt,
		Language: language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		log.Printf("[speech] session=%s transcription failed: %v", req.SessionID, err)
		return nil, fmt.Errorf("transcribe audio: %w", err)
	}

	out := &speech.ASRResponse{
		SessionID: req.SessionID,
		Text:      strings.TrimSpace(resp.Text),
		Language:  language,
		Duration:  int64(resp.Duration * 1000),
		RequestID: uuid.NewString(),
		CreatedAt: s.now(),
	}
	if resp.Language != "" {
		out.Language = resp.Language
	}
	log.Printf("[speech] session=%s transcribed %s audio in %s", req.SessionID, format, s.now().Sub(started))
	return out, nil
}

// SynthesizeSpeech 文字转语音
func (s *Service) SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if !s.Enabled() {
		return nil, ErrServiceDisabled
	}
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}

	voice := ResolveVoice(req.Voice, s.config.TTSVoice)
	format, contentType := ResolveOutputFormat(req.Format, s.config.TTSFormat)
	speed := req.Speed
	if speed <= 0 {
		speed = s.config.TTSSpeed
	}

	raw, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.config.TTSModel),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: format,
		Speed:          speed,
	})
	if err != nil {
		log.Printf("[speech] session=%s synthesis failed: %v", req.SessionID, err)
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	defer raw.Close()

	audio, err := io.ReadAll(raw)
	if err != nil {
		return nil, fmt.Errorf("read synthesized audio: %w", err)
	}

	return &speech.TTSResponse{
		SessionID:   req.SessionID,
		AudioData:   audio,
		Format:      string(format),
		ContentType: contentType,
		Voice:       voice,
		RequestID:   uuid.NewString(),
		CreatedAt:   s.now(),
	}, nil
}

// TranscribeBuffer 语音转文字（使用字节数组）
func (s *Service) TranscribeBuffer(ctx context.Context, sessionID string, audioData []byte, format, language string) (*speech.ASRResponse, error) {
	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}
	if len(audioData) > MaxAudioBytes {
		return nil, ErrAudioTooLarge
	}

	return s.TranscribeAudio(ctx, &speech.ASRRequest{
		SessionID: sessionID,
		AudioData: bytes.NewReader(audioData),
		Format:    format,
		Language:  language,
	})
}

// SynthesizeToBuffer 文字转语音（返回字节数组）
func (s *Service) SynthesizeToBuffer(ctx context.Context, sessionID, text, voice string) (*speech.TTSResponse, error) {
	return s.SynthesizeSpeech(ctx, &speech.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     voice,
	})
}
