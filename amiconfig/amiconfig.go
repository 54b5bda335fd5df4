// Package amiconfig loads AMI session configuration the way the
// teacher repo's richer sibling plugin (plugins/vpn-server/config)
// does: a typed struct, github.com/spf13/viper for file + environment
// layering, defaults, and a Validate pass -- generalized from VPN
// server settings to AMI connection settings.
package amiconfig

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/stumpf-works/asterisk-ami/amiconf"
	"github.com/stumpf-works/asterisk-ami/pkg/amierr"
)

// Config holds everything needed to open and operate an AMI session.
type Config struct {
	Host                  string `mapstructure:"host"`
	Port                  int    `mapstructure:"port"`
	Username              string `mapstructure:"username"`
	Secret                string `mapstructure:"secret"`
	SecretFromManagerConf bool   `mapstructure:"secretFromManagerConf"`
	ConnectTimeoutSeconds int    `mapstructure:"connectTimeoutSeconds"`
	ActionTimeoutSeconds  int    `mapstructure:"actionTimeoutSeconds"`
	DiscardOnFailure      bool   `mapstructure:"discardOnFailure"`
	DebugLevel            int    `mapstructure:"debugLevel"`
	LogFormat             string `mapstructure:"logFormat"` // "json" or "pretty"
}

// Load reads configuration from configPath (if non-empty), otherwise
// from the first ami.yaml found in /etc/asterisk-ami/,
// $HOME/.asterisk-ami/ or the current directory; environment
// variables prefixed AMI_ override file values, and the defaults set
// below fill in anything left unset. Mirrors
// plugins/vpn-server/config.Load's SetDefault/AutomaticEnv/
// ReadInConfig sequence.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("ami")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/asterisk-ami/")
		v.AddConfigPath("$HOME/.asterisk-ami/")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("AMI")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Secret == "" && cfg.SecretFromManagerConf {
		secret, err := amiconf.DetectPassword(cfg.Username)
		if err != nil {
			return nil, fmt.Errorf("failed to auto-detect AMI secret: %w", err)
		}
		cfg.Secret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 5038)
	v.SetDefault("connectTimeoutSeconds", 10)
	v.SetDefault("actionTimeoutSeconds", 1)
	v.SetDefault("discardOnFailure", false)
	v.SetDefault("debugLevel", 0)
	v.SetDefault("logFormat", "json")
}

// Validate checks the invariants a usable session needs: a reachable
// host, a username to log in with, and a debug level within the
// library's documented 0-10 range.
func (c *Config) Validate() error {
	if c.Host == "" {
		return amierr.Usage("host is required", nil)
	}
	if c.Username == "" {
		return amierr.Usage("username is required", nil)
	}
	if c.DebugLevel < 0 || c.DebugLevel > 10 {
		return amierr.Usage("debugLevel must be between 0 and 10", nil)
	}
	return nil
}
