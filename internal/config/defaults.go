package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/ekisa-team/ttsd/internal/service"
	"github.com/ekisa-team/ttsd/internal/xfs"
)

// Default values.
const (
	DefaultPort          = 8082
	DefaultVoiceDir      = "/models"
	DefaultPiperBin      = "piper"
	DefaultPiperTimeout  = 30 * time.Second
	DefaultWriteTimeout  = 60 * time.Second
	DefaultXTTSServerURL = "http://127.0.0.1:8020"
	DefaultXTTSPort      = 8020
	DefaultXTTSTimeout   = 45 * time.Second
)

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultPort,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: DefaultWriteTimeout,
			CORSOrigins:  []string{"*"},
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join("logs", "ttsd.log"),
		},
		Voices: VoicesConfig{
			Dir:     DefaultVoiceDir,
			Default: service.DefaultVoice,
			Watch:   true,
		},
		Piper: PiperConfig{
			Bin:     DefaultPiperBin,
			Timeout: DefaultPiperTimeout,
		},
		XTTS: XTTSConfig{
			Enabled:        true,
			ServerURL:      DefaultXTTSServerURL,
			Port:           DefaultXTTSPort,
			Preload:        true,
			LoadTimeout:    5 * time.Minute,
			RequestTimeout: DefaultXTTSTimeout,
		},
	}
}

// DefaultConfigPath returns the config file looked up when none is given.
func DefaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		if p := filepath.Join(dir, "ttsd", "config.yaml"); xfs.Exists(p) {
			return p
		}
	}
	return "config.yaml"
}
