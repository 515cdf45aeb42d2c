package config

import (
	"os"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LIVEKIT_API_KEY", "test-lk-key")
	t.Setenv("LIVEKIT_API_SECRET", "test-lk-secret")
	t.Setenv("AVATAR_API_KEY", "test-avatar-key")
	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	t.Setenv("OPENAI_API_KEY", "test-openai-key")
	t.Setenv("CARTESIA_API_KEY", "test-cartesia-key")
}

func TestLoad(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LiveKitAPIKey != "test-lk-key" {
		t.Errorf("Expected LiveKitAPIKey 'test-lk-key', got '%s'", cfg.LiveKitAPIKey)
	}
	if cfg.AvatarAPIKey != "test-avatar-key" {
		t.Errorf("Expected AvatarAPIKey 'test-avatar-key', got '%s'", cfg.AvatarAPIKey)
	}
	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	for _, key := range []string{
		"LIVEKIT_API_KEY", "LIVEKIT_API_SECRET", "AVATAR_API_KEY",
		"DEEPGRAM_API_KEY", "OPENAI_API_KEY", "CARTESIA_API_KEY",
	} {
		os.Unsetenv(key)
	}

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error when required keys are missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}
	if cfg.LiveKitURL != "ws://localhost:7880" {
		t.Errorf("Expected default LiveKitURL 'ws://localhost:7880', got '%s'", cfg.LiveKitURL)
	}
	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Errorf("Expected default OpenAIModel 'gpt-4o-mini', got '%s'", cfg.OpenAIModel)
	}
	if cfg.CartesiaVoiceID != "sonic-english" {
		t.Errorf("Expected default CartesiaVoiceID 'sonic-english', got '%s'", cfg.CartesiaVoiceID)
	}
	if cfg.AvatarQuality != "medium" {
		t.Errorf("Expected default AvatarQuality 'medium', got '%s'", cfg.AvatarQuality)
	}
}

func TestLoad_AudioDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.MicSampleRate != 16000 {
		t.Errorf("Expected default MicSampleRate 16000, got %d", cfg.MicSampleRate)
	}
	if cfg.TTSSampleRate != 22050 {
		t.Errorf("Expected default TTSSampleRate 22050, got %d", cfg.TTSSampleRate)
	}
	if cfg.AvatarSampleRate != 24000 {
		t.Errorf("Expected default AvatarSampleRate 24000, got %d", cfg.AvatarSampleRate)
	}
	if cfg.SpeakChunkBytes != 4800 {
		t.Errorf("Expected default SpeakChunkBytes 4800, got %d", cfg.SpeakChunkBytes)
	}
	if cfg.AudioBufferSize != 8192 {
		t.Errorf("Expected default AudioBufferSize 8192, got %d", cfg.AudioBufferSize)
	}
	if cfg.VADEnergyThreshold != 500.0 {
		t.Errorf("Expected default VADEnergyThreshold 500.0, got %f", cfg.VADEnergyThreshold)
	}
	if cfg.VADSilenceFrames != 10 {
		t.Errorf("Expected default VADSilenceFrames 10, got %d", cfg.VADSilenceFrames)
	}
}

func TestLoad_InvalidSampleRate(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TTS_SAMPLE_RATE", "-1")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error for negative TTS sample rate")
	}
}

func TestLoad_ResilienceDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}
	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("Expected default RetryMaxAttempts 3, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.ReconnectMaxAttempts != 5 {
		t.Errorf("Expected default ReconnectMaxAttempts 5, got %d", cfg.ReconnectMaxAttempts)
	}
	if cfg.ReconnectBackoff != 1000 {
		t.Errorf("Expected default ReconnectBackoff 1000, got %d", cfg.ReconnectBackoff)
	}
}

func TestLoad_ObservabilityDefaults(t *testing.T) {
	setRequiredEnv(t)
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_KEY", "test-value")

	if value := GetEnv("TEST_KEY", "default"); value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}
	if value := GetEnv("NON_EXISTENT_KEY", "default"); value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}
