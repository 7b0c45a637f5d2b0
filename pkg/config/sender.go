package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/sfts-dev/sfts/internal/bytesize"
)

// SenderSettings are the client-side settings shared by the send and
// receive commands. They come from the environment only; CLI flags
// override them at the command layer.
//
// Environment variables:
//
//	SFTS_SERVER      coordinator base URL (default http://127.0.0.1:8080)
//	SFTS_TIMEOUT     control-plane request timeout (default 30s)
//	SFTS_CHUNK_SIZE  initial chunk size (default 256KiB)
//	SFTS_MAX_RETRIES per-chunk retry budget (default 10)
type SenderSettings struct {
	Server     string            `mapstructure:"server"`
	Timeout    time.Duration     `mapstructure:"timeout"`
	ChunkSize  bytesize.ByteSize `mapstructure:"chunk_size"`
	MaxRetries int               `mapstructure:"max_retries"`
}

// LoadSenderSettings reads the sender settings from the environment.
func LoadSenderSettings() (*SenderSettings, error) {
	v := viper.New()
	v.SetEnvPrefix("SFTS")
	v.AutomaticEnv()

	v.SetDefault("server", "http://127.0.0.1:8080")
	v.SetDefault("timeout", "30s")
	v.SetDefault("chunk_size", "256KiB")
	v.SetDefault("max_retries", 10)

	var settings SenderSettings
	if err := v.Unmarshal(&settings, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, err
	}
	return &settings, nil
}
