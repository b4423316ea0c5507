package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/ekisa-team/ttsd/internal/model"
)

// Config holds the main configuration for the application.
type Config struct {
	Server ServerConfig  `json:"server"           yaml:"server"`
	Log    LogConfig     `json:"log"              yaml:"log"`
	Voices VoicesConfig  `json:"voices"           yaml:"voices"`
	Piper  PiperConfig   `json:"piper"            yaml:"piper"`
	XTTS   XTTSConfig    `json:"xtts"             yaml:"xtts"`
	Models []ModelConfig `json:"models,omitempty" yaml:"models,omitempty"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host         string        `json:"host"          yaml:"host"          env:"TTSD_HOST"`
	Port         int           `json:"port"          yaml:"port"          env:"PORT"`
	ReadTimeout  time.Duration `json:"read_timeout"  yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	CORSOrigins  []string      `json:"cors_origins"  yaml:"cors_origins"  env:"CORS_ORIGINS" envSeparator:","`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `json:"level"   yaml:"level"   env:"TTSD_LOG_LEVEL"`
	File   string `json:"file"    yaml:"file"    env:"TTSD_LOG_FILE"`
	ToFile bool   `json:"to_file" yaml:"to_file" env:"TTSD_LOG_TO_FILE"`
}

// VoicesConfig holds the piper voice directory settings.
type VoicesConfig struct {
	Dir     string `json:"dir"     yaml:"dir"     env:"PIPER_VOICE_DIR"`
	Default string `json:"default" yaml:"default" env:"PIPER_DEFAULT_VOICE"`
	Watch   bool   `json:"watch"   yaml:"watch"   env:"PIPER_WATCH_VOICES"`
}

// PiperConfig holds settings of the piper executable.
type PiperConfig struct {
	Bin     string        `json:"bin"     yaml:"bin"     env:"PIPER_BIN"`
	Timeout time.Duration `json:"timeout" yaml:"timeout" env:"PIPER_TIMEOUT"`
}

// XTTSConfig holds settings of the voice-cloning engine.
type XTTSConfig struct {
	Enabled        bool          `json:"enabled"         yaml:"enabled"         env:"XTTS_ENABLED"`
	ServerURL      string        `json:"server_url"      yaml:"server_url"      env:"XTTS_SERVER_URL"`
	ServerBin      string        `json:"server_bin"      yaml:"server_bin"      env:"XTTS_SERVER_BIN"`
	ServerArgs     []string      `json:"server_args"     yaml:"server_args"`
	Port           int           `json:"port"            yaml:"port"            env:"XTTS_PORT"`
	Preload        bool          `json:"preload"         yaml:"preload"         env:"XTTS_PRELOAD"`
	LoadTimeout    time.Duration `json:"load_timeout"    yaml:"load_timeout"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

// ModelConfig describes one registry entry.
type ModelConfig struct {
	ID         string `json:"id"                    yaml:"id"`
	Engine     string `json:"engine"                yaml:"engine"`
	Model      string `json:"model"                 yaml:"model"`
	SpeakerWav string `json:"speaker_wav,omitempty" yaml:"speaker_wav,omitempty"`
	Language   string `json:"language"              yaml:"language"`
	Quality    string `json:"quality,omitempty"     yaml:"quality,omitempty"`
	Gender     string `json:"gender,omitempty"      yaml:"gender,omitempty"`
}

// Entries converts the configured models into registry entries, falling
// back to the built-in table when none are configured.
func (c *Config) Entries() []model.Entry {
	if len(c.Models) == 0 {
		return model.DefaultEntries(c.Voices.Dir)
	}

	entries := make([]model.Entry, 0, len(c.Models))
	for _, m := range c.Models {
		entries = append(entries, model.Entry{
			ID:         m.ID,
			Engine:     backend.Engine(m.Engine),
			Model:      m.Model,
			SpeakerWav: m.SpeakerWav,
			Language:   m.Language,
			Quality:    m.Quality,
			Gender:     m.Gender,
		})
	}
	return entries
}

// Validate checks invariants the schema cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Voices.Dir == "" {
		errs = append(errs, errors.New("voices.dir is required"))
	}
	if c.Piper.Timeout <= 0 {
		errs = append(errs, errors.New("piper.timeout must be positive"))
	}
	if c.Server.WriteTimeout > 0 && c.Piper.Timeout >= c.Server.WriteTimeout {
		errs = append(errs, fmt.Errorf("piper.timeout (%s) must stay below server.write_timeout (%s)", c.Piper.Timeout, c.Server.WriteTimeout))
	}
	if c.XTTS.Enabled && c.XTTS.RequestTimeout <= 0 {
		errs = append(errs, errors.New("xtts.request_timeout must be positive"))
	}
	if c.XTTS.Enabled && c.Server.WriteTimeout > 0 && c.XTTS.RequestTimeout >= c.Server.WriteTimeout {
		errs = append(errs, fmt.Errorf("xtts.request_timeout (%s) must stay below server.write_timeout (%s)", c.XTTS.RequestTimeout, c.Server.WriteTimeout))
	}
	if c.XTTS.Enabled && c.XTTS.ServerBin == "" && c.XTTS.ServerURL == "" {
		errs = append(errs, errors.New("xtts needs server_url or server_bin"))
	}
	if c.XTTS.Enabled && c.XTTS.ServerBin != "" && (c.XTTS.Port <= 0 || c.XTTS.Port > 65535) {
		errs = append(errs, fmt.Errorf("xtts.port out of range: %d", c.XTTS.Port))
	}

	return errors.Join(errs...)
}
