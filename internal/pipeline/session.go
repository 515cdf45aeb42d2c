package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voxkit/avatar-bridge/internal/audio"
	"github.com/voxkit/avatar-bridge/internal/config"
	"github.com/voxkit/avatar-bridge/internal/observability"
)

// replyFlushTimeout is how long the response loop waits for more LLM text
// before handing the accumulated buffer to TTS.
const replyFlushTimeout = 500 * time.Millisecond

// Session ties one participant's audio to the STT -> LLM -> TTS chain. The
// TTS output stage is the injected AudioSink, so the same session drives an
// avatar speech channel in production and a capture sink in debugging.
type Session struct {
	sessionID string
	config    *config.Config
	logger    zerolog.Logger
	metrics   *observability.Metrics

	sttClient STTClient
	responder Responder
	ttsClient TTSClient
	sink      AudioSink

	vad *audio.VADDetector

	audioIn   chan []byte
	replyText chan string

	mu        sync.RWMutex
	isActive  bool
	isTalking bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSession wires the stages together. The sink is where synthesized audio
// goes; the session never writes audio anywhere else.
func NewSession(cfg *config.Config, stt STTClient, responder Responder, tts TTSClient, sink AudioSink, metrics *observability.Metrics) *Session {
	sessionID := uuid.New().String()

	vadCfg := audio.DefaultVADConfig()
	vadCfg.EnergyThreshold = cfg.VADEnergyThreshold
	vadCfg.SilenceFrames = cfg.VADSilenceFrames

	return &Session{
		sessionID: sessionID,
		config:    cfg,
		logger: observability.GetLogger().With().
			Str("component", "session").
			Str("session_id", sessionID).
			Logger(),
		metrics:   metrics,
		sttClient: stt,
		responder: responder,
		ttsClient: tts,
		sink:      sink,
		vad:       audio.NewVADDetector(vadCfg),
		audioIn:   make(chan []byte, 100),
		replyText: make(chan string, 50),
		done:      make(chan struct{}),
	}
}

// ID returns the session identifier used in logs and metrics.
func (s *Session) ID() string {
	return s.sessionID
}

// Start launches the processing goroutines. It returns once the STT stream
// is up; the goroutines run until Close.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isActive {
		s.mu.Unlock()
		return fmt.Errorf("session %s is already active", s.sessionID)
	}
	s.isActive = true
	s.mu.Unlock()

	if err := s.sttClient.Start(); err != nil {
		s.mu.Lock()
		s.isActive = false
		s.mu.Unlock()
		return fmt.Errorf("start STT: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSessionStart()
	}

	s.wg.Add(3)
	go s.processIncomingAudio()
	go s.processTranscriptions(ctx)
	go s.processReplies(ctx)

	s.logger.Info().Msg("Session started")
	return nil
}

// PushAudio queues one chunk of 16-bit PCM at the mic rate. It never blocks;
// a full queue drops the chunk.
func (s *Session) PushAudio(pcm []byte) {
	select {
	case s.audioIn <- pcm:
	case <-s.done:
	default:
		s.logger.Warn().Msg("Audio input queue full, dropping chunk")
		if s.metrics != nil {
			s.metrics.RecordError("audio_queue_full", "session")
		}
	}
}

// processIncomingAudio runs VAD for barge-in and feeds PCM to the STT stream.
func (s *Session) processIncomingAudio() {
	defer s.wg.Done()

	for {
		select {
		case chunk := <-s.audioIn:
			if s.metrics != nil {
				s.metrics.RecordAudioBytes("in", int64(len(chunk)))
			}

			s.runVAD(chunk)

			if err := s.sttClient.SendAudio(chunk); err != nil {
				s.logger.Error().Err(err).Msg("Error sending audio to STT")
				if s.metrics != nil {
					s.metrics.RecordError("stt_send_error", "stt")
				}
				// The STT client reconnects internally; keep feeding.
			}

		case <-s.done:
			return
		}
	}
}

// runVAD feeds the chunk through the detector frame by frame. The moment
// speech starts while the avatar is talking, synthesis stops and the open
// utterance is interrupted so the avatar cuts off naturally.
func (s *Session) runVAD(chunk []byte) {
	samples := audio.BytesToSamples(chunk)
	frameSize := s.vad.FrameSize()

	for off := 0; off < len(samples); off += frameSize {
		end := off + frameSize
		if end > len(samples) {
			end = len(samples)
		}

		speaking, started, ended := s.vad.ProcessFrame(samples[off:end])

		if started {
			s.logger.Debug().Msg("VAD: speech started")
			if s.metrics != nil {
				// The STT turn clock runs from first speech to the
				// final transcript.
				s.metrics.RecordSTTStart()
			}
			s.bargeIn()
		}
		if ended {
			s.logger.Debug().Msg("VAD: speech ended")
		}

		s.mu.Lock()
		s.isTalking = speaking
		s.mu.Unlock()
	}
}

// bargeIn stops active synthesis and abandons the in-flight utterance.
func (s *Session) bargeIn() {
	if s.ttsClient != nil && s.ttsClient.IsActive() {
		s.logger.Info().Msg("User speaking, interrupting synthesis")
		if err := s.ttsClient.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("Error stopping TTS")
		}
	}
	if err := s.sink.Interrupt(); err != nil {
		s.logger.Error().Err(err).Msg("Error interrupting sink")
		if s.metrics != nil {
			s.metrics.RecordError("sink_interrupt_error", "session")
		}
	}
}

// processTranscriptions turns final STT results into LLM turns.
func (s *Session) processTranscriptions(ctx context.Context) {
	defer s.wg.Done()

	transcriptChan := s.sttClient.GetTranscription()
	var lastFinalText string

	for {
		select {
		case result, ok := <-transcriptChan:
			if !ok || result == nil {
				s.logger.Debug().Msg("Transcription channel closed")
				return
			}

			if !result.IsFinal {
				s.logger.Debug().Str("text", result.Text).Msg("Interim transcription")
				continue
			}

			// Deepgram occasionally repeats a final result.
			if result.Text == "" || result.Text == lastFinalText {
				continue
			}
			lastFinalText = result.Text

			if s.metrics != nil {
				s.metrics.RecordSTTEnd(true)
			}
			s.handleUserTurn(ctx, result.Text)

		case <-s.done:
			return
		}
	}
}

// handleUserTurn streams the LLM reply into the replyText queue.
func (s *Session) handleUserTurn(ctx context.Context, userText string) {
	s.logger.Info().Str("text", userText).Msg("User turn complete")

	if s.metrics != nil {
		s.metrics.RecordLLMStart()
	}

	deltas, err := s.responder.StreamReply(ctx, userText)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error starting LLM reply")
		if s.metrics != nil {
			s.metrics.RecordLLMEnd(false)
			s.metrics.RecordError("llm_start_error", "llm")
		}
		return
	}

	go func() {
		for delta := range deltas {
			select {
			case s.replyText <- delta:
			case <-s.done:
				return
			}
		}
		if s.metrics != nil {
			s.metrics.RecordLLMEnd(true)
		}
	}()
}

// processReplies accumulates LLM deltas and synthesizes them once the model
// pauses, so TTS gets sentence-sized text instead of word fragments.
func (s *Session) processReplies(ctx context.Context) {
	defer s.wg.Done()

	var textBuffer strings.Builder
	var lastChunkTime time.Time

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case delta := <-s.replyText:
			textBuffer.WriteString(delta)
			lastChunkTime = time.Now()

		case <-ticker.C:
			if textBuffer.Len() > 0 && time.Since(lastChunkTime) > replyFlushTimeout {
				text := textBuffer.String()
				textBuffer.Reset()
				s.synthesize(ctx, text)
			}

		case <-s.done:
			if textBuffer.Len() > 0 {
				s.synthesize(context.Background(), textBuffer.String())
			}
			return
		}
	}
}

func (s *Session) synthesize(ctx context.Context, text string) {
	s.logger.Info().Str("text", text).Msg("Sending text to TTS")

	if s.metrics != nil {
		s.metrics.RecordTTSStart()
	}
	if err := s.ttsClient.Synthesize(ctx, text, s.sink); err != nil {
		s.logger.Error().Err(err).Msg("Error synthesizing reply")
		if s.metrics != nil {
			s.metrics.RecordTTSEnd(false)
			s.metrics.RecordError("tts_error", "tts")
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTTSEnd(true)
	}
}

// IsActive reports whether the session is running.
func (s *Session) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isActive
}

// Close stops the goroutines and the STT stream. Safe to call twice.
func (s *Session) Close() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.isActive = false
		s.mu.Unlock()

		close(s.done)
		s.wg.Wait()

		if cerr := s.sttClient.Close(); cerr != nil {
			err = cerr
		}
		if s.ttsClient != nil {
			if cerr := s.ttsClient.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}

		if s.metrics != nil {
			s.metrics.RecordSessionEnd()
		}
		s.logger.Info().Msg("Session closed")
	})
	return err
}
