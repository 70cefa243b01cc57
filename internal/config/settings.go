package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// UpstreamConfig describes the single process-wide connection to the
// ecosystem messaging backend.
type UpstreamConfig struct {
	URL           string        `mapstructure:"url"`
	TenantID      string        `mapstructure:"tenant_id"`
	SigningSecret string        `mapstructure:"signing_secret"`
	AppName       string        `mapstructure:"app_name"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

type ProviderConfig struct {
	WhisperURL       string        `mapstructure:"whisper_url"`
	OpenAIApiKey     string        `mapstructure:"open_ai_api_key"`
	ElevenLabsApiKey string        `mapstructure:"eleven_labs_api_key"`
	ElevenLabsVoice  string        `mapstructure:"eleven_labs_voice"`
	STTTimeout       time.Duration `mapstructure:"stt_timeout"`
	LLMTimeout       time.Duration `mapstructure:"llm_timeout"`
	TTSTimeout       time.Duration `mapstructure:"tts_timeout"`
}

type Settings struct {
	Server    ServerConfig   `mapstructure:"server"`
	Upstream  UpstreamConfig `mapstructure:"upstream"`
	Providers ProviderConfig `mapstructure:"providers"`
	Env       string         `mapstructure:"env"`
	Debug     bool           `mapstructure:"debug" default:"false"`
}

func Load() (*Settings, error) {
	viper.SetConfigName("config_" + genEnv())
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var settings Settings
	if err := viper.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	settings.ApplyDefaults()

	return &settings, nil
}

// ApplyDefaults fills the knobs that have sensible fixed values so a
// minimal config file still yields a working system.
func (s *Settings) ApplyDefaults() {
	if s.Server.Port == 0 {
		s.Server.Port = 8080
	}
	if s.Upstream.MaxRetries == 0 {
		s.Upstream.MaxRetries = 5
	}
	if s.Upstream.RetryDelay == 0 {
		s.Upstream.RetryDelay = 3 * time.Second
	}
	if s.Providers.STTTimeout == 0 {
		s.Providers.STTTimeout = 30 * time.Second
	}
	if s.Providers.LLMTimeout == 0 {
		s.Providers.LLMTimeout = 60 * time.Second
	}
	if s.Providers.TTSTimeout == 0 {
		s.Providers.TTSTimeout = 60 * time.Second
	}
}

func genEnv() string {
	env := viper.GetString("ENV")
	if env == "" {
		return "dev"
	}
	return env
}
