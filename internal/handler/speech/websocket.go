package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	chathandler "github.com/zhouzirui/z-concierge/backend/internal/handler/chat"
	"github.com/zhouzirui/z-concierge/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/z-concierge/backend/internal/service/chat"
	speechsvc "github.com/zhouzirui/z-concierge/backend/internal/service/speech"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

// TurnService is the session surface the socket drives.
type TurnService interface {
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	ResetSession(ctx context.Context, sessionID string) (chat.Session, error)
	HandleTurn(ctx context.Context, sessionID string, in chatservice.Input) (chatservice.TurnResult, error)
}

// WebSocketHandler 处理会话的实时语音/文本通道
type WebSocketHandler struct {
	speechSvc   SpeechService
	voice       VoiceProcessor
	chatSvc     TurnService
	connections *ConnectionManager
	upgrader    websocket.Upgrader
	turnTimeout time.Duration
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(speechSvc SpeechService, voice VoiceProcessor, chatSvc TurnService, connections *ConnectionManager, allowedOrigins []string, turnTimeout time.Duration) *WebSocketHandler {
	if connections == nil {
		connections = NewConnectionManager(nil)
	}
	return &WebSocketHandler{
		speechSvc:   speechSvc,
		voice:       voice,
		chatSvc:     chatSvc,
		connections: connections,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		turnTimeout: turnTimeout,
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// AudioMessage 音频消息，audioData 为 base64 编码
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
	Language  string `json:"language"`
	IsFinal   bool   `json:"isFinal"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

// ConfigMessage 配置消息
type ConfigMessage struct {
	Language   string `json:"language"`
	Voice      string `json:"voice"`
	TTSEnabled *bool  `json:"ttsEnabled,omitempty"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type connectionState struct {
	sessionID   string
	language    string
	voice       string
	ttsEnabled  bool
	audioFormat string
	buffer      bytes.Buffer
}

func (h *WebSocketHandler) speechEnabled() bool {
	return h.speechSvc != nil && h.speechSvc.Enabled()
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, err.Error(), chathandler.StatusForError(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	h.connections.AddConnection(sessionID, conn)
	defer func() {
		h.connections.RemoveConnection(sessionID, conn)
		conn.Close()
	}()

	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go pingLoop(ctx, conn)

	state := &connectionState{sessionID: sessionID, ttsEnabled: h.speechEnabled()}
	h.sendInfo(conn, sessionID, map[string]any{
		"type":      "connected",
		"validated": session.Validated,
		"stage":     session.Stage,
		"speech":    h.speechEnabled(),
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, "session mismatch")
			continue
		}
		h.handleMessage(ctx, conn, state, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "audio":
		h.handleAudioMessage(ctx, conn, state, msg.Data)
	case "text":
		h.handleTextMessage(ctx, conn, state, msg.Data)
	case "config":
		h.handleConfigMessage(conn, state, msg.Data)
	case "reset":
		h.handleReset(ctx, conn, state)
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) handleAudioMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	if !h.speechEnabled() || h.voice == nil {
		h.sendError(conn, speechsvc.ErrServiceDisabled.Error())
		return
	}

	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		h.sendError(conn, "invalid audio payload")
		return
	}
	if state.buffer.Len()+len(audio.AudioData) > speechsvc.MaxAudioBytes {
		state.buffer.Reset()
		h.sendError(conn, speechsvc.ErrAudioTooLarge.Error())
		return
	}
	state.buffer.Write(audio.AudioData)
	if audio.Format != "" {
		state.audioFormat = audio.Format
	}
	if audio.Language != "" {
		state.language = audio.Language
	}

	if audio.IsFinal {
		h.processBufferedAudio(ctx, conn, state)
	}
}

func (h *WebSocketHandler) processBufferedAudio(ctx context.Context, conn *websocket.Conn, state *connectionState) {
	audioBytes := append([]byte(nil), state.buffer.Bytes()...)
	state.buffer.Reset()
	if len(audioBytes) == 0 {
		return
	}

	turnCtx, cancel := chathandler.WithTurnTimeout(ctx, h.turnTimeout)
	defer cancel()

	out, err := h.voice.ProcessVoiceTurn(turnCtx, &speechsvc.VoiceTurnInput{
		SessionID:   state.sessionID,
		AudioData:   audioBytes,
		AudioFormat: state.audioFormat,
		Language:    state.language,
		Speak:       state.ttsEnabled,
		Voice:       state.voice,
	})
	if err != nil {
		h.sendError(conn, err.Error())
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":    "asr",
		"text":    out.Transcript,
		"isFinal": true,
	})
	h.sendTurn(conn, out.Turn)
	if len(out.ReplyAudio) > 0 {
		h.sendAudio(conn, state.sessionID, out.ReplyAudio, out.AudioFormat)
	}
}

func (h *WebSocketHandler) handleTextMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		h.sendError(conn, "invalid text payload")
		return
	}

	turnCtx, cancel := chathandler.WithTurnTimeout(ctx, h.turnTimeout)
	defer cancel()

	turn, err := h.chatSvc.HandleTurn(turnCtx, state.sessionID, chatservice.Input{Text: text.Text})
	if err != nil {
		h.sendError(conn, err.Error())
		return
	}
	h.sendTurn(conn, turn)

	if state.ttsEnabled && h.speechEnabled() {
		h.sendTTS(turnCtx, conn, state, speechsvc.ReplyText(turn.Replies))
	}
}

func (h *WebSocketHandler) handleReset(ctx context.Context, conn *websocket.Conn, state *connectionState) {
	state.buffer.Reset()
	session, err := h.chatSvc.ResetSession(ctx, state.sessionID)
	if err != nil {
		h.sendError(conn, err.Error())
		return
	}
	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":       "reset",
		"transcript": session.Transcript,
	})
}

func (h *WebSocketHandler) sendTTS(ctx context.Context, conn *websocket.Conn, state *connectionState, text string) {
	if text == "" {
		return
	}
	ttsResp, err := h.speechSvc.SynthesizeToBuffer(ctx, state.sessionID, text, state.voice)
	if err != nil {
		log.Printf("[websocket] TTS failed session=%s: %v", state.sessionID, err)
		h.sendInfo(conn, state.sessionID, map[string]any{
			"type":  "tts",
			"error": "synthesis failed",
		})
		return
	}
	h.sendAudio(conn, state.sessionID, ttsResp.AudioData, ttsResp.Format)
}

func (h *WebSocketHandler) handleConfigMessage(conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		h.sendError(conn, "invalid config payload")
		return
	}

	if cfg.Language != "" {
		state.language = cfg.Language
	}
	if cfg.Voice != "" {
		state.voice = speechsvc.ResolveVoice(cfg.Voice, "")
	}
	if cfg.TTSEnabled != nil {
		state.ttsEnabled = *cfg.TTSEnabled && h.speechEnabled()
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":     "config",
		"language": state.language,
		"voice":    state.voice,
		"tts":      state.ttsEnabled,
	})
}

func (h *WebSocketHandler) sendTurn(conn *websocket.Conn, turn chatservice.TurnResult) {
	h.sendInfo(conn, turn.SessionID, map[string]any{
		"type":      "turn",
		"agent":     turn.Agent,
		"outcome":   turn.Outcome,
		"validated": turn.Validated,
		"stage":     turn.Stage,
		"replies":   turn.Replies,
	})
}

func (h *WebSocketHandler) sendAudio(conn *websocket.Conn, sessionID string, audio []byte, format string) {
	h.sendInfo(conn, sessionID, map[string]any{
		"type":      "tts",
		"audioData": base64.StdEncoding.EncodeToString(audio),
		"format":    format,
		"isFinal":   true,
	})
}

func (h *WebSocketHandler) sendInfo(conn *websocket.Conn, sessionID string, data map[string]any) {
	msg := outgoingMessage{
		Type:      "result",
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write info failed: %v", err)
	}
}

func (h *WebSocketHandler) sendError(conn *websocket.Conn, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write error failed: %v", err)
	}
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
