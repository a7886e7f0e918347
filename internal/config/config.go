package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"go2tv.app/go2cast/media"
	"go2tv.app/go2cast/resolver"
	"go2tv.app/go2cast/utils"
)

// EnvPrefix is prepended to every configuration key.
const EnvPrefix = "GO2CAST_"

// Config is the runtime configuration. It is read from the environment
// only and never written anywhere.
type Config struct {
	DiscoveryTimeout time.Duration `mapstructure:"DISCOVERY_TIMEOUT"`
	StatusInterval   time.Duration `mapstructure:"STATUS_INTERVAL"`
	YtDlpPath        string        `mapstructure:"YTDLP_PATH"`
	MimeType         string        `mapstructure:"MIME_TYPE"`
	HTTPHost         string        `mapstructure:"HTTP_HOST"`
	HTTPPort         int           `mapstructure:"HTTP_PORT"`
	HTTPDir          string        `mapstructure:"HTTP_DIR"`
	HTTPRetries      int           `mapstructure:"HTTP_RETRIES"`
	LogFile          string        `mapstructure:"LOG_FILE"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`

	unknown []string
}

var outboundIP = utils.GetOutboundIP

// Default returns the configuration used when no variable is set.
func Default() Config {
	dir, _ := os.Getwd()

	return Config{
		DiscoveryTimeout: 3 * time.Second,
		StatusInterval:   time.Second,
		YtDlpPath:        resolver.DefaultYtDlpPath,
		MimeType:         media.DefaultMimeType,
		HTTPHost:         outboundIP(),
		HTTPPort:         8000,
		HTTPDir:          dir,
		HTTPRetries:      1,
		LogLevel:         "info",
	}
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return FromEnviron(os.Environ())
}

// FromEnviron decodes GO2CAST_ variables from environ, in KEY=VALUE form,
// on top of the defaults.
func FromEnviron(environ []string) (*Config, error) {
	input := make(map[string]any)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if name, ok := strings.CutPrefix(key, EnvPrefix); ok && name != "" {
			input[name] = value
		}
	}

	conf := Default()

	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           &conf,
	})
	if err != nil {
		return nil, fmt.Errorf("FromEnviron: failed to build decoder: %w", err)
	}

	if err := dec.Decode(input); err != nil {
		return nil, fmt.Errorf("FromEnviron: failed to decode environment: %w", err)
	}

	for _, k := range md.Unused {
		conf.unknown = append(conf.unknown, EnvPrefix+k)
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}

	return &conf, nil
}

func (c *Config) validate() error {
	if c.DiscoveryTimeout <= 0 {
		return fmt.Errorf("config: %sDISCOVERY_TIMEOUT must be positive", EnvPrefix)
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("config: %sSTATUS_INTERVAL must be positive", EnvPrefix)
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("config: %sHTTP_PORT %d out of range", EnvPrefix, c.HTTPPort)
	}
	if c.HTTPRetries < 0 {
		return fmt.Errorf("config: %sHTTP_RETRIES must not be negative", EnvPrefix)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("config: %sLOG_LEVEL: %w", EnvPrefix, err)
	}
	return nil
}

// Unknown lists prefixed variables that match no key.
func (c *Config) Unknown() []string {
	return c.unknown
}

// Level returns the parsed log level.
func (c *Config) Level() zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}
