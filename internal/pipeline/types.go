// Package pipeline wires speech-to-text, the language model, and
// text-to-speech into one session, with the synthesis output stage exposed
// as a pluggable sink.
package pipeline

import "context"

// TranscriptionResult represents a transcription result from the STT service
type TranscriptionResult struct {
	// Text is the transcribed text
	Text string

	// IsFinal indicates if this is a final transcription (true) or interim (false)
	IsFinal bool

	// Confidence is the confidence score (0.0 to 1.0) if available
	Confidence float64

	// StartTime is the start time of the utterance in seconds
	StartTime float64

	// Duration is the duration of the utterance in seconds
	Duration float64
}

// STTClient is the interface for speech-to-text clients
type STTClient interface {
	// Start begins a new transcription session
	Start() error

	// SendAudio sends an audio chunk to the STT service
	SendAudio(audioData []byte) error

	// GetTranscription returns the channel of transcription results
	GetTranscription() <-chan *TranscriptionResult

	// Stop stops the transcription session
	Stop() error

	// Close closes the client and cleans up resources
	Close() error
}

// Responder produces a streamed text reply for one user turn.
type Responder interface {
	StreamReply(ctx context.Context, userText string) (<-chan string, error)
}

// AudioSink receives synthesized PCM from the TTS output stage. One
// utterance spans the writes between two Flush calls; implementations
// assign the utterance correlation ID.
type AudioSink interface {
	// WriteChunk accepts 16-bit little-endian PCM at the TTS output rate.
	WriteChunk(pcm []byte) error

	// Flush marks the end of the current utterance.
	Flush() error

	// Interrupt abandons the current utterance.
	Interrupt() error
}

// TTSClient synthesizes text into the given sink.
type TTSClient interface {
	// Synthesize converts text to audio and writes it to the sink
	Synthesize(ctx context.Context, text string, sink AudioSink) error

	// Stop stops any ongoing synthesis
	Stop() error

	// IsActive returns whether the client is currently synthesizing
	IsActive() bool

	// Close closes the client and cleans up resources
	Close() error
}
