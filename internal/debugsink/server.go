// Package debugsink is a stand-in for the avatar platform's speech endpoint.
// It speaks the same event envelope, buffers PCM per utterance, and writes
// each finished utterance to a WAV file so captured audio can be inspected.
package debugsink

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voxkit/avatar-bridge/internal/audio"
	"github.com/voxkit/avatar-bridge/internal/avatar"
	"github.com/voxkit/avatar-bridge/internal/config"
	"github.com/voxkit/avatar-bridge/internal/observability"
)

// endedRetention is how long a finished event ID is remembered so late
// chunks for it can be told apart from unknown utterances.
const endedRetention = 60 * time.Second

type utterance struct {
	buf       []byte
	lastWrite time.Time
}

// Server accepts speech-event WebSocket connections and captures utterances.
type Server struct {
	outputDir  string
	sampleRate int
	timeout    time.Duration
	upgrader   websocket.Upgrader
	logger     zerolog.Logger

	mu         sync.Mutex
	utterances map[string]*utterance
	ended      map[string]time.Time
	captured   int

	done     chan struct{}
	stopOnce sync.Once
}

// NewServer creates the capture server and its output directory. The sweeper
// goroutine starts immediately; stop it with Close.
func NewServer(cfg *config.Config) (*Server, error) {
	if err := os.MkdirAll(cfg.SinkOutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	s := &Server{
		outputDir:  cfg.SinkOutputDir,
		sampleRate: cfg.AvatarSampleRate,
		timeout:    time.Duration(cfg.SinkUtteranceTimeout) * time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:     observability.GetLogger().With().Str("component", "debug_sink").Logger(),
		utterances: make(map[string]*utterance),
		ended:      make(map[string]time.Time),
		done:       make(chan struct{}),
	}

	go s.sweepLoop()
	return s, nil
}

// ServeWS upgrades the request and consumes speech events until the peer
// disconnects.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	s.logger.Info().Str("remote", r.RemoteAddr).Msg("Speech connection opened")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("Speech connection read error")
			}
			return
		}

		var event avatar.SpeechEvent
		if err := json.Unmarshal(data, &event); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed speech event")
			continue
		}
		s.handleEvent(&event)
	}
}

func (s *Server) handleEvent(event *avatar.SpeechEvent) {
	if event.EventID == "" {
		s.logger.Warn().Str("type", event.Type).Msg("Dropping event without event_id")
		return
	}

	switch event.Type {
	case avatar.EventSpeak:
		s.handleSpeak(event)
	case avatar.EventSpeakEnd:
		s.handleSpeakEnd(event.EventID)
	case avatar.EventInterrupt:
		s.handleInterrupt(event.EventID)
	default:
		// Unknown events are tolerated so the envelope can grow.
		s.logger.Debug().Str("type", event.Type).Str("event_id", event.EventID).Msg("Ignoring unknown event type")
	}
}

func (s *Server) handleSpeak(event *avatar.SpeechEvent) {
	pcm, err := base64.StdEncoding.DecodeString(event.Audio)
	if err != nil {
		s.logger.Warn().Err(err).Str("event_id", event.EventID).Msg("Dropping chunk with bad base64 audio")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, wasEnded := s.ended[event.EventID]; wasEnded {
		s.logger.Warn().Str("event_id", event.EventID).Msg("Dropping chunk for already ended utterance")
		return
	}

	utt, ok := s.utterances[event.EventID]
	if !ok {
		utt = &utterance{}
		s.utterances[event.EventID] = utt
		s.logger.Debug().Str("event_id", event.EventID).Msg("Utterance opened")
	}
	utt.buf = append(utt.buf, pcm...)
	utt.lastWrite = time.Now()
}

func (s *Server) handleSpeakEnd(eventID string) {
	s.mu.Lock()
	utt, ok := s.utterances[eventID]
	delete(s.utterances, eventID)
	s.ended[eventID] = time.Now()
	s.mu.Unlock()

	if !ok {
		s.logger.Warn().Str("event_id", eventID).Msg("speak_end for unknown utterance")
		return
	}

	if err := s.writeWAV(eventID, utt.buf); err != nil {
		s.logger.Error().Err(err).Str("event_id", eventID).Msg("Failed to write capture file")
		return
	}

	s.mu.Lock()
	s.captured++
	s.mu.Unlock()
}

func (s *Server) handleInterrupt(eventID string) {
	s.mu.Lock()
	_, ok := s.utterances[eventID]
	delete(s.utterances, eventID)
	s.ended[eventID] = time.Now()
	s.mu.Unlock()

	if ok {
		s.logger.Info().Str("event_id", eventID).Msg("Utterance interrupted, discarding buffered audio")
	}
}

func (s *Server) writeWAV(eventID string, pcm []byte) error {
	if len(pcm) == 0 {
		s.logger.Warn().Str("event_id", eventID).Msg("Utterance ended with no audio, skipping file")
		return nil
	}

	samples := audio.BytesToSamples(pcm)
	wav, err := audio.EncodeWAV(samples, s.sampleRate)
	if err != nil {
		return err
	}

	path := filepath.Join(s.outputDir, eventID+".wav")
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return err
	}

	seconds, _ := audio.WAVDuration(wav)
	s.logger.Info().
		Str("event_id", eventID).
		Str("path", path).
		Int("samples", len(samples)).
		Float64("seconds", seconds).
		Float64("rms", audio.CalculateRMS(samples)).
		Msg("Utterance captured")
	return nil
}

// sweepLoop drops utterances that stopped receiving chunks without ever
// ending, and forgets old ended IDs.
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.done:
			return
		}
	}
}

func (s *Server) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, utt := range s.utterances {
		if now.Sub(utt.lastWrite) > s.timeout {
			delete(s.utterances, id)
			s.logger.Warn().
				Str("event_id", id).
				Int("buffered_bytes", len(utt.buf)).
				Msg("Sweeping stale utterance that never ended")
		}
	}
	for id, endedAt := range s.ended {
		if now.Sub(endedAt) > endedRetention {
			delete(s.ended, id)
		}
	}
}

// OpenUtterances returns the number of utterances still receiving chunks.
func (s *Server) OpenUtterances() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.utterances)
}

// CapturedCount returns the number of WAV files written.
func (s *Server) CapturedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captured
}

// Close stops the sweeper.
func (s *Server) Close() error {
	s.stopOnce.Do(func() { close(s.done) })
	return nil
}
