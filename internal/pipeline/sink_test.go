package pipeline

import (
	"sync"
	"testing"

	"github.com/voxkit/avatar-bridge/internal/audio"
	"github.com/voxkit/avatar-bridge/internal/config"
)

// fakeSender records speech events instead of writing to a socket.
type fakeSender struct {
	mu         sync.Mutex
	speaks     []fakeSpeak
	speakEnds  []string
	interrupts []string
}

type fakeSpeak struct {
	eventID string
	pcm     []byte
}

func (f *fakeSender) SendSpeak(eventID string, pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	f.speaks = append(f.speaks, fakeSpeak{eventID: eventID, pcm: buf})
	return nil
}

func (f *fakeSender) SendSpeakEnd(eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speakEnds = append(f.speakEnds, eventID)
	return nil
}

func (f *fakeSender) SendInterrupt(eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupts = append(f.interrupts, eventID)
	return nil
}

func sinkTestConfig(inRate, outRate, chunkBytes int) *config.Config {
	return &config.Config{
		TTSSampleRate:    inRate,
		AvatarSampleRate: outRate,
		SpeakChunkBytes:  chunkBytes,
	}
}

func pcmBytes(n int) []byte {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i * 10)
	}
	return audio.SamplesToBytes(samples)
}

func TestAvatarSink_AssignsOneEventIDPerUtterance(t *testing.T) {
	sender := &fakeSender{}
	sink := NewAvatarSink(sinkTestConfig(24000, 24000, 8), sender)

	if sink.CurrentEventID() != "" {
		t.Error("Expected no open event before first write")
	}

	if err := sink.WriteChunk(pcmBytes(8)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	first := sink.CurrentEventID()
	if first == "" {
		t.Fatal("Expected an event ID after first write")
	}

	if err := sink.WriteChunk(pcmBytes(8)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	if sink.CurrentEventID() != first {
		t.Error("Event ID must be stable across writes of one utterance")
	}

	if err := sink.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if sink.CurrentEventID() != "" {
		t.Error("Expected no open event after Flush")
	}

	for _, sp := range sender.speaks {
		if sp.eventID != first {
			t.Errorf("Chunk sent under event %s, want %s", sp.eventID, first)
		}
	}
	if len(sender.speakEnds) != 1 || sender.speakEnds[0] != first {
		t.Errorf("Expected one speak_end for %s, got %v", first, sender.speakEnds)
	}

	// A new utterance gets a new ID.
	if err := sink.WriteChunk(pcmBytes(4)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	if second := sink.CurrentEventID(); second == "" || second == first {
		t.Errorf("Expected a fresh event ID, got %q", second)
	}
}

func TestAvatarSink_ChunksToConfiguredSize(t *testing.T) {
	sender := &fakeSender{}
	chunkBytes := 8
	sink := NewAvatarSink(sinkTestConfig(24000, 24000, chunkBytes), sender)

	// 20 samples = 40 bytes at identity rate: 5 full chunks, no tail.
	if err := sink.WriteChunk(pcmBytes(20)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	if len(sender.speaks) != 5 {
		t.Fatalf("Expected 5 chunks, got %d", len(sender.speaks))
	}
	for i, sp := range sender.speaks {
		if len(sp.pcm) != chunkBytes {
			t.Errorf("Chunk %d has %d bytes, want %d", i, len(sp.pcm), chunkBytes)
		}
	}
}

func TestAvatarSink_FlushSendsShortTail(t *testing.T) {
	sender := &fakeSender{}
	sink := NewAvatarSink(sinkTestConfig(24000, 24000, 100), sender)

	if err := sink.WriteChunk(pcmBytes(10)); err != nil { // 20 bytes, below one chunk
		t.Fatalf("WriteChunk failed: %v", err)
	}
	if len(sender.speaks) != 0 {
		t.Fatalf("Expected no chunks before Flush, got %d", len(sender.speaks))
	}

	if err := sink.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(sender.speaks) != 1 {
		t.Fatalf("Expected the tail chunk on Flush, got %d chunks", len(sender.speaks))
	}
	if len(sender.speaks[0].pcm) != 20 {
		t.Errorf("Tail chunk has %d bytes, want 20", len(sender.speaks[0].pcm))
	}
	if len(sender.speakEnds) != 1 {
		t.Errorf("Expected one speak_end, got %d", len(sender.speakEnds))
	}
}

func TestAvatarSink_ResamplesToAvatarRate(t *testing.T) {
	sender := &fakeSender{}
	// Large chunk size so everything arrives as the Flush tail.
	sink := NewAvatarSink(sinkTestConfig(22050, 24000, 1<<20), sender)

	inSamples := 2205 // 100ms at 22050 Hz
	if err := sink.WriteChunk(pcmBytes(inSamples)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	if err := sink.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if len(sender.speaks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(sender.speaks))
	}
	wantSamples := inSamples * 24000 / 22050 // 2400
	if got := len(sender.speaks[0].pcm) / 2; got != wantSamples {
		t.Errorf("Resampled utterance has %d samples, want %d", got, wantSamples)
	}
}

func TestAvatarSink_CarriesOddByte(t *testing.T) {
	sender := &fakeSender{}
	sink := NewAvatarSink(sinkTestConfig(24000, 24000, 1<<20), sender)

	data := pcmBytes(2) // 4 bytes
	if err := sink.WriteChunk(data[:3]); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	if err := sink.WriteChunk(data[3:]); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	if err := sink.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if len(sender.speaks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(sender.speaks))
	}
	if got := sender.speaks[0].pcm; len(got) != 4 {
		t.Fatalf("Expected 4 bytes reassembled across writes, got %d", len(got))
	}
	gotSamples := audio.BytesToSamples(sender.speaks[0].pcm)
	if gotSamples[0] != 0 || gotSamples[1] != 10 {
		t.Errorf("Split write corrupted samples: got %v", gotSamples)
	}
}

func TestAvatarSink_ClampsHotAudio(t *testing.T) {
	sender := &fakeSender{}
	sink := NewAvatarSink(sinkTestConfig(24000, 24000, 1<<20), sender)

	hot := make([]int16, 100)
	for i := range hot {
		hot[i] = 16000
	}
	hot[50] = 32767 // full-scale spike

	if err := sink.WriteChunk(audio.SamplesToBytes(hot)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	if err := sink.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if len(sender.speaks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(sender.speaks))
	}
	out := audio.BytesToSamples(sender.speaks[0].pcm)
	for i, sample := range out {
		if sample > maxSpeakAmplitude || sample < -maxSpeakAmplitude {
			t.Fatalf("Sample %d is %d, beyond the %d peak limit", i, sample, maxSpeakAmplitude)
		}
	}
	// Quiet audio must pass through untouched.
	if out[0] >= 16000 {
		t.Error("Expected hot audio to be scaled down, not passed through")
	}
}

func TestAvatarSink_InterruptDiscardsPending(t *testing.T) {
	sender := &fakeSender{}
	sink := NewAvatarSink(sinkTestConfig(24000, 24000, 1<<20), sender)

	if err := sink.WriteChunk(pcmBytes(100)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	eventID := sink.CurrentEventID()

	if err := sink.Interrupt(); err != nil {
		t.Fatalf("Interrupt failed: %v", err)
	}

	if len(sender.speaks) != 0 {
		t.Errorf("Expected buffered audio to be discarded, got %d chunks", len(sender.speaks))
	}
	if len(sender.interrupts) != 1 || sender.interrupts[0] != eventID {
		t.Errorf("Expected one interrupt for %s, got %v", eventID, sender.interrupts)
	}
	if sink.CurrentEventID() != "" {
		t.Error("Expected no open event after Interrupt")
	}
}

func TestAvatarSink_IdleFlushAndInterruptAreNoOps(t *testing.T) {
	sender := &fakeSender{}
	sink := NewAvatarSink(sinkTestConfig(24000, 24000, 8), sender)

	if err := sink.Flush(); err != nil {
		t.Fatalf("Idle Flush failed: %v", err)
	}
	if err := sink.Interrupt(); err != nil {
		t.Fatalf("Idle Interrupt failed: %v", err)
	}
	if len(sender.speaks)+len(sender.speakEnds)+len(sender.interrupts) != 0 {
		t.Error("Idle Flush/Interrupt must not emit events")
	}
}
