// Package config provides a reusable loader for fabricd configuration files
// and environment variables.
//
// Version: v0.1.0
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/meshfabric/fabricd/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a fabricd node. It mirrors the
// structure of the YAML files under cmd/fabricd/config.
type Config struct {
	Node struct {
		ID         string `mapstructure:"id" json:"id"`
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"node" json:"node"`

	Sigpool struct {
		Workers int `mapstructure:"workers" json:"workers"`
	} `mapstructure:"sigpool" json:"sigpool"`

	CRDT struct {
		MaxColdKeys       int `mapstructure:"max_cold_keys" json:"max_cold_keys"`
		DeleteGraceMillis int `mapstructure:"delete_grace_millis" json:"delete_grace_millis"`
	} `mapstructure:"crdt" json:"crdt"`

	P2P struct {
		SessionTimeoutSeconds int      `mapstructure:"session_timeout_seconds" json:"session_timeout_seconds"`
		MaxClockSkewMillis    int64    `mapstructure:"max_clock_skew_millis" json:"max_clock_skew_millis"`
		PreferredFormat       int      `mapstructure:"preferred_format" json:"preferred_format"`
		BootstrapPeers        []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		DiscoveryTag          string   `mapstructure:"discovery_tag" json:"discovery_tag"`
	} `mapstructure:"p2p" json:"p2p"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment-specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge additional
// config files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/fabricd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("fabricd")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // picks up FABRICD_* overrides

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the FABRICD_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("FABRICD_ENV", ""))
}
