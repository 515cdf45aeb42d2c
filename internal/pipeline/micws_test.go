package pipeline

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHandleMicWS_ReframesIntoFixedChunks(t *testing.T) {
	cfg := sessionTestConfig()
	cfg.AudioBufferSize = 8192

	stt := newFakeSTT()
	session := NewSession(cfg, stt, &fakeResponder{}, &fakeTTS{}, &fakeSink{}, nil)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer session.Close()

	server := httptest.NewServer(HandleMicWS(cfg, session))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	// 1280 bytes split unevenly must come out as two 640-byte frames
	// (20ms at 16kHz).
	if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 480)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 800)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	// Text frames are keepalives and must not become audio.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return stt.sentCount() == 2
	})

	stt.mu.Lock()
	defer stt.mu.Unlock()
	for i, chunk := range stt.sent {
		if len(chunk) != 640 {
			t.Errorf("Chunk %d has %d bytes, want 640", i, len(chunk))
		}
	}
}
