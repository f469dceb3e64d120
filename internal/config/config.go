/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// STT backends
const (
	STTBackendHTTP    = "http"
	STTBackendWhisper = "whisper"
)

// Config holds all configuration for the voice chat gateway
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Generation GenerationConfig `yaml:"generation"`
	STT        STTConfig        `yaml:"stt"`
	TTS        TTSConfig        `yaml:"tts"`
	Storage    StorageConfig    `yaml:"storage"`
	NATS       NATSConfig       `yaml:"nats"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// WriteReserve is the part of Server.WriteTimeout kept back for writing the
// reply after every backend call has finished or been cut off
const WriteReserve = 5 * time.Second

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes"`
	MaxAudioBytes int           `yaml:"max_audio_bytes"` // Decoded size cap per audio payload
}

// GenerationConfig holds the text-generation backend configuration
type GenerationConfig struct {
	URL       string        `yaml:"url"` // OpenAI-compatible base URL
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// STTConfig holds Speech-to-Text service configuration
type STTConfig struct {
	Backend   string        `yaml:"backend"`    // "http" or "whisper"
	URL       string        `yaml:"url"`        // REST API URL for OpenAI-compatible STT service
	Model     string        `yaml:"model"`      // Model name sent to the REST service
	ModelPath string        `yaml:"model_path"` // ggml model for the local whisper backend
	Language  string        `yaml:"language"`
	TempDir   string        `yaml:"temp_dir"` // Staging directory, empty = os.TempDir()
	Timeout   time.Duration `yaml:"timeout"`
}

// TTSConfig holds speech synthesis configuration
type TTSConfig struct {
	Target        string        `yaml:"target"`         // gRPC target of the speech generation service
	MaxConcurrent int           `yaml:"max_concurrent"` // 1 serializes access to the backend
	QueueTimeout  time.Duration `yaml:"queue_timeout"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxNewTokens  int           `yaml:"max_new_tokens"`
	Temperature   float32       `yaml:"temperature"`
	TopK          int           `yaml:"top_k"`
	TopP          float32       `yaml:"top_p"`
	SampleRate    int           `yaml:"sample_rate"` // Used when the backend reports none
}

// StorageConfig holds completion event storage configuration
type StorageConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"` // 0 keeps events forever
}

// NATSConfig holds NATS messaging configuration
type NATSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Subject       string        `yaml:"subject"`
	MaxReconnect  int           `yaml:"max_reconnect"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8000,
			ReadTimeout:   60 * time.Second,
			WriteTimeout:  300 * time.Second,
			MaxBodyBytes:  32 << 20,
			MaxAudioBytes: 10 << 20,
		},
		Generation: GenerationConfig{
			URL:       "https://text.pollinations.ai/openai",
			Model:     "openai",
			MaxTokens: 1000,
			Timeout:   30 * time.Second,
		},
		STT: STTConfig{
			Backend:   STTBackendHTTP,
			URL:       "http://stt:8000",
			Model:     "small",
			ModelPath: "./models/ggml-small.bin",
			Timeout:   60 * time.Second,
		},
		TTS: TTSConfig{
			Target:        "localhost:50061",
			MaxConcurrent: 1,
			QueueTimeout:  30 * time.Second,
			Timeout:       120 * time.Second,
			MaxNewTokens:  1024,
			Temperature:   0.7,
			TopK:          50,
			TopP:          0.95,
			SampleRate:    24000,
		},
		Storage: StorageConfig{
			Enabled: true,
			Path:    "./data/loqa-voice.db",
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			Subject:       "loqa.chat.completions",
			MaxReconnect:  10,
			ReconnectWait: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from defaults, an optional YAML file named by
// LOQA_CONFIG_FILE, and environment variables, in that order
func Load() (*Config, error) {
	config := Defaults()

	if path := os.Getenv("LOQA_CONFIG_FILE"); path != "" {
		if err := config.ReadFromYAML(path); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config.applyEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// ReadFromYAML overlays the values present in a YAML file
func (c *Config) ReadFromYAML(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return yaml.NewDecoder(f).Decode(c)
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnvString("LOQA_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("LOQA_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("LOQA_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("LOQA_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.MaxBodyBytes = int64(getEnvInt("LOQA_MAX_BODY_BYTES", int(c.Server.MaxBodyBytes)))
	c.Server.MaxAudioBytes = getEnvInt("LOQA_MAX_AUDIO_BYTES", c.Server.MaxAudioBytes)

	c.Generation.URL = getEnvString("GENERATION_URL", c.Generation.URL)
	c.Generation.Model = getEnvString("GENERATION_MODEL", c.Generation.Model)
	c.Generation.APIKey = getEnvString("GENERATION_API_KEY", c.Generation.APIKey)
	c.Generation.MaxTokens = getEnvInt("GENERATION_MAX_TOKENS", c.Generation.MaxTokens)
	c.Generation.Timeout = getEnvDuration("GENERATION_TIMEOUT", c.Generation.Timeout)

	c.STT.Backend = strings.ToLower(getEnvString("STT_BACKEND", c.STT.Backend))
	c.STT.URL = getEnvString("STT_URL", c.STT.URL)
	c.STT.Model = getEnvString("STT_MODEL", c.STT.Model)
	c.STT.ModelPath = getEnvString("STT_MODEL_PATH", c.STT.ModelPath)
	c.STT.Language = getEnvString("STT_LANGUAGE", c.STT.Language)
	c.STT.TempDir = getEnvString("STT_TEMP_DIR", c.STT.TempDir)
	c.STT.Timeout = getEnvDuration("STT_TIMEOUT", c.STT.Timeout)

	c.TTS.Target = getEnvString("TTS_TARGET", c.TTS.Target)
	c.TTS.MaxConcurrent = getEnvInt("TTS_MAX_CONCURRENT", c.TTS.MaxConcurrent)
	c.TTS.QueueTimeout = getEnvDuration("TTS_QUEUE_TIMEOUT", c.TTS.QueueTimeout)
	c.TTS.Timeout = getEnvDuration("TTS_TIMEOUT", c.TTS.Timeout)
	c.TTS.MaxNewTokens = getEnvInt("TTS_MAX_NEW_TOKENS", c.TTS.MaxNewTokens)
	c.TTS.Temperature = getEnvFloat32("TTS_TEMPERATURE", c.TTS.Temperature)
	c.TTS.TopK = getEnvInt("TTS_TOP_K", c.TTS.TopK)
	c.TTS.TopP = getEnvFloat32("TTS_TOP_P", c.TTS.TopP)
	c.TTS.SampleRate = getEnvInt("TTS_SAMPLE_RATE", c.TTS.SampleRate)

	c.Storage.Enabled = getEnvBool("STORAGE_ENABLED", c.Storage.Enabled)
	c.Storage.Path = getEnvString("DB_PATH", c.Storage.Path)
	c.Storage.Retention = getEnvDuration("STORAGE_RETENTION", c.Storage.Retention)

	c.NATS.Enabled = getEnvBool("NATS_ENABLED", c.NATS.Enabled)
	c.NATS.URL = getEnvString("NATS_URL", c.NATS.URL)
	c.NATS.Subject = getEnvString("NATS_SUBJECT", c.NATS.Subject)
	c.NATS.MaxReconnect = getEnvInt("NATS_MAX_RECONNECT", c.NATS.MaxReconnect)
	c.NATS.ReconnectWait = getEnvDuration("NATS_RECONNECT_WAIT", c.NATS.ReconnectWait)

	c.Logging.Level = getEnvString("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvString("LOG_FORMAT", c.Logging.Format)
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive: %d", c.Server.MaxBodyBytes)
	}

	if c.Generation.URL == "" {
		return fmt.Errorf("generation URL must be provided")
	}

	if c.Generation.Timeout <= 0 {
		return fmt.Errorf("generation timeout must be positive: %s", c.Generation.Timeout)
	}

	switch c.STT.Backend {
	case STTBackendHTTP:
		if c.STT.URL == "" {
			return fmt.Errorf("STT URL must be provided")
		}
	case STTBackendWhisper:
		if c.STT.ModelPath == "" {
			return fmt.Errorf("STT model path must be provided for the whisper backend")
		}
	default:
		return fmt.Errorf("unknown STT backend: %q", c.STT.Backend)
	}

	if c.TTS.Target == "" {
		return fmt.Errorf("TTS target must be provided")
	}

	if c.TTS.MaxConcurrent <= 0 {
		return fmt.Errorf("TTS max concurrent must be positive: %d", c.TTS.MaxConcurrent)
	}

	if c.TTS.SampleRate <= 0 {
		return fmt.Errorf("TTS sample rate must be positive: %d", c.TTS.SampleRate)
	}

	if c.TTS.TopP <= 0 || c.TTS.TopP > 1 {
		return fmt.Errorf("TTS top_p must be in (0, 1]: %f", c.TTS.TopP)
	}

	if c.Server.WriteTimeout > 0 {
		if need := c.RequestBudget() + WriteReserve; c.Server.WriteTimeout < need {
			return fmt.Errorf("server write timeout %s is shorter than the backend budget plus reserve %s", c.Server.WriteTimeout, need)
		}
	}

	if c.Storage.Enabled && c.Storage.Path == "" {
		return fmt.Errorf("storage path must be provided when storage is enabled")
	}

	if c.Storage.Retention < 0 {
		return fmt.Errorf("storage retention cannot be negative: %s", c.Storage.Retention)
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("NATS URL must be provided when NATS is enabled")
	}

	return nil
}

// RequestBudget is the longest a completion can spend in backends: one
// transcription, generation, and a queued synthesis call
func (c *Config) RequestBudget() time.Duration {
	return c.STT.Timeout + c.Generation.Timeout + c.TTS.QueueTimeout + c.TTS.Timeout
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatValue)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
