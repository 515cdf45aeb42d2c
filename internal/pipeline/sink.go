package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voxkit/avatar-bridge/internal/audio"
	"github.com/voxkit/avatar-bridge/internal/avatar"
	"github.com/voxkit/avatar-bridge/internal/config"
	"github.com/voxkit/avatar-bridge/internal/observability"
)

// maxSpeakAmplitude is the peak the sink clamps outgoing audio to. Some TTS
// voices come in hot and the avatar playback path clips hard at full scale.
const maxSpeakAmplitude = 32000

// AvatarSink is the synthesis output stage that feeds the avatar platform
// instead of a phone call. PCM arrives at the TTS rate, is resampled to the
// avatar rate, peak-limited, and leaves as fixed-size speak events under one
// utterance event ID. Flush ends the utterance; Interrupt abandons it.
type AvatarSink struct {
	sender     avatar.SpeechSender
	inputRate  int
	outputRate int
	chunkBytes int
	logger     zerolog.Logger

	mu      sync.Mutex
	eventID string // empty between utterances
	pending []byte // resampled bytes below one chunk
	carry   []byte // odd input byte held back for sample alignment
}

// NewAvatarSink builds a sink for one session's speech channel.
func NewAvatarSink(cfg *config.Config, sender avatar.SpeechSender) *AvatarSink {
	chunkBytes := cfg.SpeakChunkBytes
	if chunkBytes <= 0 {
		chunkBytes = 4800
	}
	return &AvatarSink{
		sender:     sender,
		inputRate:  cfg.TTSSampleRate,
		outputRate: cfg.AvatarSampleRate,
		chunkBytes: chunkBytes,
		logger:     observability.GetLogger().With().Str("component", "avatar_sink").Logger(),
	}
}

// WriteChunk implements AudioSink. The first write of an utterance assigns
// a fresh event ID that all chunks until the next Flush share.
func (s *AvatarSink) WriteChunk(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eventID == "" {
		s.eventID = uuid.New().String()
		s.logger.Debug().Str("event_id", s.eventID).Msg("Starting utterance")
	}

	// Samples are 2 bytes; an odd trailing byte waits for the next write.
	data := pcm
	if len(s.carry) > 0 {
		data = append(s.carry, pcm...)
		s.carry = nil
	}
	if len(data)%2 != 0 {
		s.carry = []byte{data[len(data)-1]}
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		return nil
	}

	start := time.Now()
	samples := audio.BytesToSamples(data)
	resampled := audio.Resample(samples, s.inputRate, s.outputRate)
	resampled = audio.NormalizeAudio(resampled, maxSpeakAmplitude)
	observability.ObserveResampleDuration(time.Since(start))

	s.pending = append(s.pending, audio.SamplesToBytes(resampled)...)
	return s.drainLocked(false)
}

// drainLocked sends full chunks from the pending buffer; with final set it
// also sends the short tail.
func (s *AvatarSink) drainLocked(final bool) error {
	for len(s.pending) >= s.chunkBytes {
		chunk := s.pending[:s.chunkBytes]
		if err := s.sender.SendSpeak(s.eventID, chunk); err != nil {
			return fmt.Errorf("send speak chunk: %w", err)
		}
		s.pending = s.pending[s.chunkBytes:]
	}
	if final && len(s.pending) > 0 {
		if err := s.sender.SendSpeak(s.eventID, s.pending); err != nil {
			return fmt.Errorf("send final speak chunk: %w", err)
		}
		s.pending = nil
	}
	return nil
}

// Flush implements AudioSink. It delivers any buffered tail and closes the
// utterance with a speak_end event. A Flush with no prior writes is a no-op.
func (s *AvatarSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eventID == "" {
		return nil
	}

	if err := s.drainLocked(true); err != nil {
		return err
	}

	eventID := s.eventID
	s.eventID = ""
	s.carry = nil

	if err := s.sender.SendSpeakEnd(eventID); err != nil {
		return fmt.Errorf("send speak end: %w", err)
	}
	s.logger.Debug().Str("event_id", eventID).Msg("Utterance flushed")
	return nil
}

// Interrupt implements AudioSink. Buffered audio is discarded and the avatar
// is told to cut playback for the open utterance.
func (s *AvatarSink) Interrupt() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eventID == "" {
		return nil
	}

	eventID := s.eventID
	s.eventID = ""
	s.pending = nil
	s.carry = nil

	if err := s.sender.SendInterrupt(eventID); err != nil {
		return fmt.Errorf("send interrupt: %w", err)
	}
	s.logger.Info().Str("event_id", eventID).Msg("Utterance interrupted")
	return nil
}

// CurrentEventID returns the open utterance ID, empty when idle.
func (s *AvatarSink) CurrentEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventID
}
