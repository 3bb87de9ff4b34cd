// Package config holds the shared configuration for the dialer and the AGI
// bridge. Values come from an optional YAML file with environment variables
// layered on top, matching the variable names the deployment scripts export.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Asterisk Asterisk `yaml:"asterisk"`
	Dialer   Dialer   `yaml:"dialer"`
	Speech   Speech   `yaml:"speech"`
	Paths    Paths    `yaml:"paths"`
	Notify   Notify   `yaml:"notify"`
}

// Asterisk covers the AMI connection and the dialplan entry point.
type Asterisk struct {
	Host     string `yaml:"host"`
	AMIPort  int    `yaml:"ami_port"`
	Username string `yaml:"username"`
	Secret   string `yaml:"secret"`

	Trunk    string `yaml:"trunk"`
	Context  string `yaml:"context"`
	Exten    string `yaml:"exten"`
	Priority int    `yaml:"priority"`
}

// Dialer covers pacing, retry and business-hour policy.
type Dialer struct {
	MaxConcurrent      int           `yaml:"max_concurrent"`
	CallTimeout        time.Duration `yaml:"call_timeout"`
	RetryDelay         time.Duration `yaml:"retry_delay"`
	MaxRetries         int           `yaml:"max_retries"`
	MaxCallDuration    time.Duration `yaml:"max_call_duration"`
	HoraInicio         int           `yaml:"hora_inicio"`
	HoraFin            int           `yaml:"hora_fin"`
	OriginationsPerMin int           `yaml:"originations_per_min"`

	// MaxConsecutiveFailures trips the circuit breaker: that many
	// origination failures in a row abort the run.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
}

// Speech covers the STT/TTS collaborators.
type Speech struct {
	OpenAIAPIKey     string `yaml:"openai_api_key"`
	ElevenLabsAPIKey string `yaml:"elevenlabs_api_key"`
	VoiceID          string `yaml:"voice_id"`
	TTSModel         string `yaml:"tts_model"`
	Language         string `yaml:"language"`
}

// Notify covers the optional end-of-campaign Slack summary. Both fields set
// enables it.
type Notify struct {
	SlackToken   string `yaml:"slack_token"`
	SlackChannel string `yaml:"slack_channel"`
}

// Paths covers filesystem locations.
type Paths struct {
	AudioDir   string `yaml:"audio_dir"`
	CacheDir   string `yaml:"cache_dir"`
	ResultsCSV string `yaml:"results_csv"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		Asterisk: Asterisk{
			Host:     "localhost",
			AMIPort:  5038,
			Username: "voicebot",
			Secret:   "voicebot123",
			Trunk:    "PJSIP/trunk-salida",
			Context:  "voicebot-cobranzas",
			Exten:    "s",
			Priority: 1,
		},
		Dialer: Dialer{
			MaxConcurrent:          5,
			CallTimeout:            30 * time.Second,
			RetryDelay:             5 * time.Minute,
			MaxRetries:             3,
			MaxCallDuration:        5 * time.Minute,
			HoraInicio:             8,
			HoraFin:                20,
			OriginationsPerMin:     30,
			MaxConsecutiveFailures: 5,
		},
		Speech: Speech{
			VoiceID:  "EXAVITQu4vr4xnSDxMaL", // Bella, clear Spanish
			TTSModel: "eleven_multilingual_v2",
			Language: "es",
		},
		Paths: Paths{
			AudioDir:   "/var/lib/asterisk/sounds/voicebot",
			CacheDir:   "./audio_cache",
			ResultsCSV: "./resultados_llamadas.csv",
		},
	}
}

// Load reads the YAML file at path (when non-empty) over the defaults and
// then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr(&c.Asterisk.Host, "ASTERISK_HOST")
	setInt(&c.Asterisk.AMIPort, "ASTERISK_AMI_PORT")
	setStr(&c.Asterisk.Username, "ASTERISK_AMI_USER")
	setStr(&c.Asterisk.Secret, "ASTERISK_AMI_SECRET")
	setStr(&c.Asterisk.Trunk, "ASTERISK_TRUNK")
	setStr(&c.Speech.OpenAIAPIKey, "OPENAI_API_KEY")
	setStr(&c.Speech.ElevenLabsAPIKey, "ELEVENLABS_API_KEY")
	setStr(&c.Speech.VoiceID, "ELEVENLABS_VOICE_ID")
	setStr(&c.Notify.SlackToken, "SLACK_BOT_TOKEN")
	setStr(&c.Notify.SlackChannel, "SLACK_CHANNEL")
}

func (c *Config) validate() error {
	if c.Asterisk.Host == "" {
		return fmt.Errorf("config: asterisk host is required")
	}
	if c.Asterisk.AMIPort <= 0 {
		return fmt.Errorf("config: invalid AMI port %d", c.Asterisk.AMIPort)
	}
	if c.Dialer.HoraInicio < 0 || c.Dialer.HoraFin > 24 || c.Dialer.HoraInicio >= c.Dialer.HoraFin {
		return fmt.Errorf("config: invalid hour window %d-%d", c.Dialer.HoraInicio, c.Dialer.HoraFin)
	}
	if c.Dialer.MaxConcurrent <= 0 {
		return fmt.Errorf("config: max_concurrent must be positive")
	}
	return nil
}

func setStr(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
