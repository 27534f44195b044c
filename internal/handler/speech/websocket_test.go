package speech

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	chatservice "github.com/zhouzirui/z-concierge/backend/internal/service/chat"
	speechsvc "github.com/zhouzirui/z-concierge/backend/internal/service/speech"
)

type countingConnections struct{ open atomic.Int32 }

func (c *countingConnections) ConnectionOpened() { c.open.Add(1) }
func (c *countingConnections) ConnectionClosed() { c.open.Add(-1) }

type wsFixture struct {
	server  *httptest.Server
	chatSvc *chatservice.Service
	speech  *fakeSpeechService
	manager *ConnectionManager
}

func newWSFixture(t *testing.T, fakeSvc *fakeSpeechService, observer ConnectionObserver) *wsFixture {
	t.Helper()
	chatSvc := newChatService()
	chain := speechsvc.NewVoiceChain(fakeSvc, fakeSvc, chatSvc)
	manager := NewConnectionManager(observer)

	r := chi.NewRouter()
	NewWebSocketHandler(fakeSvc, chain, chatSvc, manager, []string{"*"}, time.Second).RegisterWebSocketRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return &wsFixture{server: server, chatSvc: chatSvc, speech: fakeSvc, manager: manager}
}

func (f *wsFixture) dial(t *testing.T, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/sessions/" + sessionID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readResult(t *testing.T, conn *websocket.Conn) outgoingMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg outgoingMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func dataType(msg outgoingMessage) string {
	data, _ := msg.Data.(map[string]any)
	kind, _ := data["type"].(string)
	return kind
}

func TestWebSocketTextTurn(t *testing.T) {
	f := newWSFixture(t, &fakeSpeechService{}, nil)
	session, _ := f.chatSvc.CreateSession(context.Background())
	conn := f.dial(t, session.ID)

	if got := dataType(readResult(t, conn)); got != "connected" {
		t.Fatalf("expected connected, got %q", got)
	}

	if err := conn.WriteJSON(map[string]any{"type": "text", "data": map[string]string{"text": "opening hours?"}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	turn := readResult(t, conn)
	if dataType(turn) != "turn" {
		t.Fatalf("expected turn, got %+v", turn)
	}
	data := turn.Data.(map[string]any)
	if data["outcome"] != "answered" {
		t.Fatalf("unexpected outcome %v", data["outcome"])
	}
	replies := data["replies"].([]any)
	if len(replies) != 1 || replies[0].(map[string]any)["content"] != "echo: opening hours?" {
		t.Fatalf("unexpected replies %+v", replies)
	}

	if got := dataType(readResult(t, conn)); got != "tts" {
		t.Fatalf("expected tts, got %q", got)
	}
	if _, _, text, _ := f.speech.calls(); text != "echo: opening hours?" {
		t.Fatalf("unexpected synthesized text %q", text)
	}
}

func TestWebSocketAudioTurn(t *testing.T) {
	f := newWSFixture(t, &fakeSpeechService{transcript: "refund policy"}, nil)
	session, _ := f.chatSvc.CreateSession(context.Background())
	conn := f.dial(t, session.ID)
	readResult(t, conn)

	_ = conn.WriteJSON(map[string]any{"type": "config", "data": map[string]any{"ttsEnabled": false, "language": "en"}})
	if got := dataType(readResult(t, conn)); got != "config" {
		t.Fatalf("expected config, got %q", got)
	}

	// []byte fields travel as base64.
	_ = conn.WriteJSON(map[string]any{"type": "audio", "data": map[string]any{"audioData": "AAEC", "format": "webm"}})
	_ = conn.WriteJSON(map[string]any{"type": "audio", "data": map[string]any{"audioData": "AwQF", "isFinal": true}})

	if got := dataType(readResult(t, conn)); got != "asr" {
		t.Fatalf("expected asr, got %q", got)
	}
	if got := dataType(readResult(t, conn)); got != "turn" {
		t.Fatalf("expected turn, got %q", got)
	}
	format, language, text, _ := f.speech.calls()
	if format != "webm" || language != "en" {
		t.Fatalf("unexpected transcription request %q %q", format, language)
	}
	if text != "" {
		t.Fatalf("tts disabled but synthesized %q", text)
	}
}

func TestWebSocketRejectsUnknownSession(t *testing.T) {
	f := newWSFixture(t, &fakeSpeechService{}, nil)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/sessions/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %+v", resp)
	}
}

func TestWebSocketUnsupportedMessage(t *testing.T) {
	f := newWSFixture(t, &fakeSpeechService{}, nil)
	session, _ := f.chatSvc.CreateSession(context.Background())
	conn := f.dial(t, session.ID)
	readResult(t, conn)

	_ = conn.WriteJSON(map[string]any{"type": "dance"})
	if msg := readResult(t, conn); msg.Type != "error" {
		t.Fatalf("expected error, got %+v", msg)
	}
}

func TestConnectionManagerReplacesOlderSocket(t *testing.T) {
	observer := &countingConnections{}
	f := newWSFixture(t, &fakeSpeechService{}, observer)
	session, _ := f.chatSvc.CreateSession(context.Background())

	first := f.dial(t, session.ID)
	readResult(t, first)
	second := f.dial(t, session.ID)
	readResult(t, second)

	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
	if f.manager.Count() != 1 || observer.open.Load() != 1 {
		t.Fatalf("expected one registered connection, got %d", f.manager.Count())
	}

	f.manager.CloseAll()
	if f.manager.Count() != 0 || observer.open.Load() != 0 {
		t.Fatalf("expected no connections after CloseAll")
	}
}
