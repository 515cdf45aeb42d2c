package avatar

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voxkit/avatar-bridge/internal/config"
	"github.com/voxkit/avatar-bridge/internal/observability"
	"github.com/voxkit/avatar-bridge/internal/resilience"
)

// SpeechSender is the subset of the speech socket the pipeline needs.
// Satisfied by *SpeechChannel.
type SpeechSender interface {
	SendSpeak(eventID string, pcm []byte) error
	SendSpeakEnd(eventID string) error
	SendInterrupt(eventID string) error
}

// SpeechChannel is a WebSocket connection to one session's speech endpoint.
// All writes are serialized; a chunk belongs to exactly one utterance
// event ID at a time.
type SpeechChannel struct {
	endpoint string
	metrics  *observability.Metrics
	logger   zerolog.Logger

	reconnectCfg *resilience.ReconnectConfig

	mu          sync.Mutex
	conn        *websocket.Conn
	openEventID string
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc
}

// DialSpeechChannel connects to a session's realtime speech endpoint.
func DialSpeechChannel(ctx context.Context, cfg *config.Config, session *Session, metrics *observability.Metrics) (*SpeechChannel, error) {
	if session.RealtimeEndpoint == "" {
		return nil, fmt.Errorf("session %s has no realtime endpoint", session.SessionID)
	}

	chanCtx, cancel := context.WithCancel(context.Background())
	sc := &SpeechChannel{
		endpoint: session.RealtimeEndpoint,
		metrics:  metrics,
		logger: observability.GetLogger().With().
			Str("component", "speech_channel").
			Str("session_id", session.SessionID).
			Logger(),
		reconnectCfg: &resilience.ReconnectConfig{
			MaxAttempts: cfg.ReconnectMaxAttempts,
			Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
			Multiplier:  2.0,
			MaxBackoff:  30 * time.Second,
		},
		ctx:    chanCtx,
		cancel: cancel,
	}

	if err := sc.dial(ctx); err != nil {
		cancel()
		return nil, err
	}

	return sc, nil
}

func (sc *SpeechChannel) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, sc.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial speech endpoint: %w", err)
	}

	sc.mu.Lock()
	sc.conn = conn
	sc.mu.Unlock()

	go sc.readLoop(conn)

	sc.logger.Info().Str("endpoint", sc.endpoint).Msg("Speech channel connected")
	return nil
}

// readLoop drains server acks and errors. The platform sends status frames
// we only log; a read error ends the loop and the next write reconnects.
func (sc *SpeechChannel) readLoop(conn *websocket.Conn) {
	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sc.logger.Warn().Err(err).Msg("Speech channel read error")
			}
			return
		}
		sc.logger.Debug().Interface("message", msg).Msg("Speech channel server message")
	}
}

// SendSpeak sends one PCM chunk under the given utterance event ID. Starting
// a new event ID while another is open closes the previous utterance first.
func (sc *SpeechChannel) SendSpeak(eventID string, pcm []byte) error {
	sc.mu.Lock()
	if sc.openEventID != "" && sc.openEventID != eventID {
		prev := sc.openEventID
		sc.mu.Unlock()
		sc.logger.Warn().
			Str("open_event_id", prev).
			Str("new_event_id", eventID).
			Msg("New utterance started before previous ended, closing previous")
		if err := sc.SendSpeakEnd(prev); err != nil {
			return err
		}
		sc.mu.Lock()
	}
	sc.openEventID = eventID
	sc.mu.Unlock()

	event := SpeechEvent{
		Type:    EventSpeak,
		EventID: eventID,
		Audio:   base64.StdEncoding.EncodeToString(pcm),
	}
	if err := sc.writeEvent(event); err != nil {
		return err
	}

	if sc.metrics != nil {
		sc.metrics.RecordSpeechEvent(EventSpeak)
		sc.metrics.RecordAudioBytes("out", int64(len(pcm)))
	}
	return nil
}

// SendSpeakEnd closes the utterance identified by eventID.
func (sc *SpeechChannel) SendSpeakEnd(eventID string) error {
	sc.mu.Lock()
	if sc.openEventID == eventID {
		sc.openEventID = ""
	}
	sc.mu.Unlock()

	if err := sc.writeEvent(SpeechEvent{Type: EventSpeakEnd, EventID: eventID}); err != nil {
		return err
	}
	if sc.metrics != nil {
		sc.metrics.RecordSpeechEvent(EventSpeakEnd)
	}
	return nil
}

// SendInterrupt cancels avatar playback for the given utterance.
func (sc *SpeechChannel) SendInterrupt(eventID string) error {
	sc.mu.Lock()
	if sc.openEventID == eventID {
		sc.openEventID = ""
	}
	sc.mu.Unlock()

	if err := sc.writeEvent(SpeechEvent{Type: EventInterrupt, EventID: eventID}); err != nil {
		return err
	}
	if sc.metrics != nil {
		sc.metrics.RecordSpeechEvent(EventInterrupt)
	}
	return nil
}

// writeEvent serializes one envelope onto the socket, reconnecting once with
// backoff when the write fails.
func (sc *SpeechChannel) writeEvent(event SpeechEvent) error {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return fmt.Errorf("speech channel is closed")
	}
	conn := sc.conn
	sc.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("speech channel is not connected")
	}

	sc.mu.Lock()
	err := conn.WriteJSON(event)
	sc.mu.Unlock()
	if err == nil {
		return nil
	}

	sc.logger.Warn().Err(err).Str("type", event.Type).Msg("Speech event write failed, reconnecting")
	conn.Close()

	if rerr := resilience.Reconnect(sc.ctx, func() error {
		return sc.dial(sc.ctx)
	}, sc.reconnectCfg); rerr != nil {
		return fmt.Errorf("write speech event: %w (reconnect failed: %v)", err, rerr)
	}

	sc.mu.Lock()
	conn = sc.conn
	err = conn.WriteJSON(event)
	sc.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write speech event after reconnect: %w", err)
	}
	return nil
}

// OpenEventID returns the utterance currently accepting chunks, if any.
func (sc *SpeechChannel) OpenEventID() string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.openEventID
}

// Close closes the channel. An utterance still open is ended first so the
// avatar does not wait on a dangling event ID.
func (sc *SpeechChannel) Close() error {
	sc.mu.Lock()
	open := sc.openEventID
	sc.mu.Unlock()

	if open != "" {
		if err := sc.SendSpeakEnd(open); err != nil {
			sc.logger.Warn().Err(err).Str("event_id", open).Msg("Failed to end open utterance on close")
		}
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return nil
	}
	sc.closed = true
	sc.cancel()
	if sc.conn != nil {
		return sc.conn.Close()
	}
	return nil
}
