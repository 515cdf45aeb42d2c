package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the avatar bridge
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// LiveKit room platform
	LiveKitURL       string `envconfig:"LIVEKIT_URL" default:"ws://localhost:7880"`
	LiveKitAPIKey    string `envconfig:"LIVEKIT_API_KEY" required:"true"`
	LiveKitAPISecret string `envconfig:"LIVEKIT_API_SECRET" required:"true"`
	RoomName         string `envconfig:"ROOM_NAME" default:"avatar-bridge-demo"`

	// Avatar platform API
	AvatarAPIKey  string `envconfig:"AVATAR_API_KEY" required:"true"`
	AvatarBaseURL string `envconfig:"AVATAR_BASE_URL" default:"https://api.avatar.example.com"`
	AvatarID      string `envconfig:"AVATAR_ID" default:"default"`
	AvatarQuality string `envconfig:"AVATAR_QUALITY" default:"medium"` // low, medium, high

	// Deepgram STT API configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" required:"true"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`  // Language code (en, es, fr, etc.)

	// OpenAI LLM configuration
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY" required:"true"`
	OpenAIModel  string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	SystemPrompt string `envconfig:"SYSTEM_PROMPT" default:"You are a friendly realtime assistant. Keep answers short enough to speak aloud."`

	// Cartesia TTS API configuration
	CartesiaAPIKey  string `envconfig:"CARTESIA_API_KEY" required:"true"`
	CartesiaVoiceID string `envconfig:"CARTESIA_VOICE_ID" default:"sonic-english"` // Voice ID for Cartesia
	CartesiaModelID string `envconfig:"CARTESIA_MODEL_ID" default:"sonic"`         // Model ID (sonic, etc.)

	// Audio processing configuration
	MicSampleRate      int     `envconfig:"MIC_SAMPLE_RATE" default:"16000"`      // Linear16 rate fed to STT
	TTSSampleRate      int     `envconfig:"TTS_SAMPLE_RATE" default:"22050"`      // PCM rate emitted by TTS
	AvatarSampleRate   int     `envconfig:"AVATAR_SAMPLE_RATE" default:"24000"`   // PCM rate the avatar speech API accepts
	AudioBufferSize    int     `envconfig:"AUDIO_BUFFER_SIZE" default:"8192"`     // Ring buffer size in bytes
	SpeakChunkBytes    int     `envconfig:"SPEAK_CHUNK_BYTES" default:"4800"`     // Bytes per speech-event chunk (100ms at 24kHz)
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"` // RMS energy threshold for VAD
	VADSilenceFrames   int     `envconfig:"VAD_SILENCE_FRAMES" default:"10"`      // Frames of silence to mark speech end

	// Debug sink configuration
	SinkOutputDir        string `envconfig:"SINK_OUTPUT_DIR" default:"./captures"` // Directory for captured utterance WAVs
	SinkUtteranceTimeout int    `envconfig:"SINK_UTTERANCE_TIMEOUT" default:"30"`  // Seconds before an open utterance is swept

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.LiveKitAPIKey == "" || cfg.LiveKitAPISecret == "" {
		return nil, fmt.Errorf("LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required")
	}
	if cfg.AvatarAPIKey == "" {
		return nil, fmt.Errorf("AVATAR_API_KEY is required")
	}
	if cfg.TTSSampleRate <= 0 || cfg.AvatarSampleRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive (tts=%d avatar=%d)", cfg.TTSSampleRate, cfg.AvatarSampleRate)
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
