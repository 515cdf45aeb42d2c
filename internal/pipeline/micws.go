package pipeline

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxkit/avatar-bridge/internal/audio"
	"github.com/voxkit/avatar-bridge/internal/config"
	"github.com/voxkit/avatar-bridge/internal/observability"
)

var micUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleMicWS accepts a microphone WebSocket carrying binary frames of
// 16-bit little-endian PCM at the mic rate. Incoming frames of any size are
// reframed through a ring buffer into fixed 20ms chunks before entering the
// session, so VAD sees uniform frames regardless of how the client chops
// its audio. Text frames are ignored so clients can send keepalives.
func HandleMicWS(cfg *config.Config, session *Session) http.HandlerFunc {
	logger := observability.GetLogger().With().Str("component", "mic_ws").Logger()

	// 20ms of 16-bit mono at the mic rate.
	frameBytes := cfg.MicSampleRate / 50 * 2

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := micUpgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error().Err(err).Msg("Mic WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		logger.Info().Str("remote", r.RemoteAddr).Msg("Mic stream connected")

		ring := audio.NewRingBuffer(cfg.AudioBufferSize)
		done := make(chan struct{})
		defer close(done)

		go func() {
			ticker := time.NewTicker(10 * time.Millisecond)
			defer ticker.Stop()
			frame := make([]byte, frameBytes)

			for {
				select {
				case <-ticker.C:
					for ring.Available() >= frameBytes {
						n := ring.Read(frame)
						chunk := make([]byte, n)
						copy(chunk, frame[:n])
						session.PushAudio(chunk)
					}
				case <-done:
					return
				}
			}
		}()

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn().Err(err).Msg("Mic stream read error")
				} else {
					logger.Info().Msg("Mic stream closed")
				}
				return
			}
			if msgType != websocket.BinaryMessage || len(data) == 0 {
				continue
			}
			if written := ring.Write(data); written < len(data) {
				logger.Warn().
					Int("dropped", len(data)-written).
					Msg("Mic buffer overflow, dropping audio")
			}
		}
	}
}
