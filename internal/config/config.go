package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/healthpilot/internal/views"
)

// Config contains all runtime settings for the voice orchestration service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string
	LogFormat        string

	AllowAnyOrigin bool

	GeminiAPIKey string

	LiveTransport string
	LiveModel     string
	LiveVoice     string
	AuxFrameRate  float64

	IntentMode    string
	IntentHTTPURL string
	IntentModel   string
	AnalysisModel string
	IntentTimeout time.Duration

	SpeechWatchdog time.Duration
	VoiceLocale    string
	VoiceLanguage  string

	CaptureSampleRate   int
	CaptureFrameSamples int
	PlaybackSampleRate  int

	BookingTargetView views.View

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "healthpilot"),
		LogLevel:         envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("APP_LOG_FORMAT", "json"),
		GeminiAPIKey:     trimmed("GEMINI_API_KEY"),
		LiveTransport:    strings.ToLower(envOrDefault("LIVE_TRANSPORT", "auto")),
		LiveModel:        envOrDefault("LIVE_MODEL", "gemini-2.5-flash-native-audio-preview-09-2025"),
		LiveVoice:        envOrDefault("LIVE_VOICE_NAME", "Zephyr"),
		IntentMode:       strings.ToLower(envOrDefault("INTENT_MODE", "auto")),
		IntentHTTPURL:    trimmed("INTENT_HTTP_URL"),
		IntentModel:      envOrDefault("INTENT_MODEL", "gemini-3-flash-preview"),
		AnalysisModel:    envOrDefault("ANALYSIS_MODEL", "gemini-3-pro-preview"),
		VoiceLocale:      envOrDefault("VOICE_LOCALE", "en-US"),
		VoiceLanguage:    envOrDefault("VOICE_LANGUAGE", "English"),
		DatabaseURL:      trimmed("DATABASE_URL"),

		ShutdownTimeout:     15 * time.Second,
		IntentTimeout:       12 * time.Second,
		SpeechWatchdog:      45 * time.Second,
		AuxFrameRate:        2,
		CaptureSampleRate:   16000,
		CaptureFrameSamples: 2048,
		PlaybackSampleRate:  24000,
	}
	if cfg.GeminiAPIKey == "" {
		// Older deployments only set the generic name.
		cfg.GeminiAPIKey = trimmed("API_KEY")
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.IntentTimeout, err = durationFromEnv("INTENT_TIMEOUT", cfg.IntentTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SpeechWatchdog, err = durationFromEnv("SPEECH_WATCHDOG", cfg.SpeechWatchdog); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return Config{}, err
	}
	if cfg.AuxFrameRate, err = floatFromEnv("AUX_FRAME_RATE", cfg.AuxFrameRate); err != nil {
		return Config{}, err
	}
	if cfg.CaptureSampleRate, err = intFromEnv("CAPTURE_SAMPLE_RATE", cfg.CaptureSampleRate); err != nil {
		return Config{}, err
	}
	if cfg.CaptureFrameSamples, err = intFromEnv("CAPTURE_FRAME_SAMPLES", cfg.CaptureFrameSamples); err != nil {
		return Config{}, err
	}
	if cfg.PlaybackSampleRate, err = intFromEnv("PLAYBACK_SAMPLE_RATE", cfg.PlaybackSampleRate); err != nil {
		return Config{}, err
	}

	booking, ok := views.Normalize(envOrDefault("BOOKING_TARGET_VIEW", string(views.ResourceFinder)))
	if !ok {
		return Config{}, fmt.Errorf("BOOKING_TARGET_VIEW must name a known view")
	}
	cfg.BookingTargetView = booking

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.BindAddr) == "" {
		return fmt.Errorf("APP_BIND_ADDR must not be empty")
	}
	if c.CaptureSampleRate <= 0 || c.PlaybackSampleRate <= 0 {
		return fmt.Errorf("CAPTURE_SAMPLE_RATE and PLAYBACK_SAMPLE_RATE must be positive")
	}
	if c.CaptureFrameSamples <= 0 {
		return fmt.Errorf("CAPTURE_FRAME_SAMPLES must be positive")
	}
	if c.AuxFrameRate <= 0 {
		return fmt.Errorf("AUX_FRAME_RATE must be positive")
	}
	if c.SpeechWatchdog < time.Second || c.SpeechWatchdog > 5*time.Minute {
		return fmt.Errorf("SPEECH_WATCHDOG must be between 1s and 5m")
	}
	if c.IntentTimeout <= 0 {
		return fmt.Errorf("INTENT_TIMEOUT must be positive")
	}
	switch c.LiveTransport {
	case "auto", "gemini", "mock":
	default:
		return fmt.Errorf("LIVE_TRANSPORT must be one of auto, gemini, mock")
	}
	switch c.IntentMode {
	case "auto", "gemini", "http", "mock":
	default:
		return fmt.Errorf("INTENT_MODE must be one of auto, gemini, http, mock")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func trimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmed(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
