package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	chathandler "github.com/zhouzirui/z-concierge/backend/internal/handler/chat"
	"github.com/zhouzirui/z-concierge/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/z-concierge/backend/internal/service/chat"
	speechsvc "github.com/zhouzirui/z-concierge/backend/internal/service/speech"
	"github.com/zhouzirui/z-concierge/backend/pkg/utils"
)

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	Enabled() bool
	TranscribeAudio(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error)
	SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
	TranscribeBuffer(ctx context.Context, sessionID string, audioData []byte, format, language string) (*speech.ASRResponse, error)
	SynthesizeToBuffer(ctx context.Context, sessionID, text, voice string) (*speech.TTSResponse, error)
}

// VoiceProcessor runs a recorded utterance through a session.
type VoiceProcessor interface {
	ProcessVoiceTurn(ctx context.Context, input *speechsvc.VoiceTurnInput) (*speechsvc.VoiceTurnOutput, error)
}

// Observer counts speech calls.
type Observer interface {
	Speech(operation string, success bool)
}

type noopObserver struct{}

func (noopObserver) Speech(string, bool) {}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc   SpeechService
	voice       VoiceProcessor
	observer    Observer
	turnTimeout time.Duration
}

// New 创建语音处理器
func New(speechSvc SpeechService, voice VoiceProcessor, observer Observer, turnTimeout time.Duration) *Handler {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Handler{
		speechSvc:   speechSvc,
		voice:       voice,
		observer:    observer,
		turnTimeout: turnTimeout,
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Post("/transcribe", h.handleTranscribe)
		speechRouter.Post("/synthesize", h.handleSynthesize)
		speechRouter.Get("/health", h.handleHealth)
	})
	r.Post("/sessions/{sessionID}/voice", h.handleVoiceTurn)
}

// VoiceTurnResponse is the JSON body of a voice turn. Audio is base64 encoded.
type VoiceTurnResponse struct {
	SessionID   string                 `json:"sessionId"`
	Transcript  string                 `json:"transcript"`
	Turn        chatservice.TurnResult `json:"turn"`
	Audio       string                 `json:"audio,omitempty"`
	AudioFormat string                 `json:"audioFormat,omitempty"`
	ContentType string                 `json:"contentType,omitempty"`
}

func (h *Handler) available(w http.ResponseWriter) bool {
	if h.speechSvc == nil || !h.speechSvc.Enabled() {
		utils.RespondError(w, http.StatusServiceUnavailable, speechsvc.ErrServiceDisabled.Error())
		return false
	}
	return true
}

// handleTranscribe 处理语音转文本请求
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	audio, format, err := readAudioForm(w, r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer audio.Close()

	resp, err := h.speechSvc.TranscribeAudio(r.Context(), &speech.ASRRequest{
		SessionID: r.FormValue("sessionId"),
		AudioData: audio,
		Format:    format,
		Language:  r.FormValue("language"),
		Prompt:    r.FormValue("prompt"),
	})
	h.observer.Speech("transcribe", err == nil)
	if err != nil {
		log.Printf("[speech] ASR error: %v", err)
		utils.RespondError(w, statusForSpeechError(err), "speech recognition failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleSynthesize 处理文本转语音请求，直接返回音频
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	var req speech.TTSRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	resp, err := h.speechSvc.SynthesizeSpeech(r.Context(), &req)
	h.observer.Speech("synthesize", err == nil)
	if err != nil {
		log.Printf("[speech] TTS error: %v", err)
		utils.RespondError(w, statusForSpeechError(err), "speech synthesis failed")
		return
	}

	w.Header().Set("Content-Type", resp.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.AudioData)))
	w.Header().Set("Content-Disposition", "attachment; filename=speech."+resp.Format)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.AudioData); err != nil {
		log.Printf("[speech] failed to write audio response: %v", err)
	}
}

// handleVoiceTurn 语音输入的一轮对话
func (h *Handler) handleVoiceTurn(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	if h.voice == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "voice turns unavailable")
		return
	}

	audio, format, err := readAudioForm(w, r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := io.ReadAll(audio)
	audio.Close()
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio")
		return
	}

	speak, _ := strconv.ParseBool(r.FormValue("speak"))
	sessionID := chi.URLParam(r, "sessionID")

	ctx, cancel := chathandler.WithTurnTimeout(r.Context(), h.turnTimeout)
	defer cancel()

	out, err := h.voice.ProcessVoiceTurn(ctx, &speechsvc.VoiceTurnInput{
		SessionID:   sessionID,
		AudioData:   data,
		AudioFormat: format,
		Language:    r.FormValue("language"),
		Speak:       speak,
		Voice:       r.FormValue("voice"),
	})
	h.observer.Speech("voice_turn", err == nil)
	if err != nil {
		log.Printf("[speech] session=%s voice turn failed: %v", sessionID, err)
		utils.RespondError(w, statusForSpeechError(err), err.Error())
		return
	}

	resp := VoiceTurnResponse{
		SessionID:   out.SessionID,
		Transcript:  out.Transcript,
		Turn:        out.Turn,
		AudioFormat: out.AudioFormat,
		ContentType: out.ContentType,
	}
	if len(out.ReplyAudio) > 0 {
		resp.Audio = base64.StdEncoding.EncodeToString(out.ReplyAudio)
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "healthy"
	if h.speechSvc == nil || !h.speechSvc.Enabled() {
		status = "disabled"
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"service": "speech",
	})
}

// readAudioForm opens the "audio" part of a multipart request and infers its format.
func readAudioForm(w http.ResponseWriter, r *http.Request) (io.ReadCloser, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, speechsvc.MaxAudioBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, "", errors.New("failed to parse multipart form: " + err.Error())
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		return nil, "", errors.New("audio file is required")
	}

	format := r.FormValue("format")
	if format == "" {
		format = speechsvc.DetectInputFormat(header.Filename, header.Header.Get("Content-Type"))
	}
	return file, speechsvc.NormalizeInputFormat(format), nil
}

func statusForSpeechError(err error) int {
	switch {
	case errors.Is(err, speechsvc.ErrServiceDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, speechsvc.ErrAudioTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, speechsvc.ErrEmptyAudio), errors.Is(err, speechsvc.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, speechsvc.ErrNoSpeech):
		return http.StatusUnprocessableEntity
	case errors.Is(err, chatservice.ErrSessionNotFound), errors.Is(err, context.DeadlineExceeded):
		return chathandler.StatusForError(err)
	default:
		return http.StatusBadGateway
	}
}
