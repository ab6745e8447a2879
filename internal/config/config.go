// Package config loads snapkeeper settings from a config file, SNAPKEEPER_*
// environment variables and command line flags, in increasing order of priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/younsl/snapkeeper/internal/models"
	"github.com/younsl/snapkeeper/pkg/aws"
	"github.com/younsl/snapkeeper/pkg/lifecycle"
	"github.com/younsl/snapkeeper/pkg/utils"
)

// Configuration keys
const (
	KeyAccessKey       = "access_key"
	KeySecretKey       = "secret_key"
	KeyRegion          = "region"
	KeyKeep            = "keep"
	KeyBackupRegion    = "backup_region"
	KeyLogFile         = "log_file"
	KeyLogLevel        = "log_level"
	KeyWaitInterval    = "wait_interval"
	KeyMetadataTimeout = "metadata_timeout"
)

const (
	envPrefix      = "SNAPKEEPER"
	configName     = "snapkeeper"
	defaultLogFile = "snapkeeper.log"
)

// Config holds every externally supplied setting
type Config struct {
	AccessKey       string
	SecretKey       string
	Region          string
	Keep            int
	BackupRegion    string
	LogFile         string
	LogLevel        string
	WaitInterval    time.Duration
	MetadataTimeout time.Duration
}

// NewViper returns a viper instance with defaults and environment binding applied
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyRegion, utils.GetDefaultRegion())
	v.SetDefault(KeyKeep, models.DefaultKeep)
	v.SetDefault(KeyBackupRegion, utils.GetDefaultRegion())
	v.SetDefault(KeyLogFile, defaultLogFile)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyWaitInterval, lifecycle.DefaultWaitInterval)
	v.SetDefault(KeyMetadataTimeout, aws.DefaultMetadataTimeout)

	// SNAPKEEPER_ACCESS_KEY -> access_key, etc.
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file, if any, and returns the validated configuration.
// An explicit path must exist; otherwise snapkeeper.{yaml,json,toml} is searched for in
// /etc/snapkeeper, $HOME/.snapkeeper and the working directory, and may be absent.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath("/etc/snapkeeper")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".snapkeeper"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		AccessKey:       v.GetString(KeyAccessKey),
		SecretKey:       v.GetString(KeySecretKey),
		Region:          v.GetString(KeyRegion),
		Keep:            v.GetInt(KeyKeep),
		BackupRegion:    v.GetString(KeyBackupRegion),
		LogFile:         v.GetString(KeyLogFile),
		LogLevel:        v.GetString(KeyLogLevel),
		WaitInterval:    v.GetDuration(KeyWaitInterval),
		MetadataTimeout: v.GetDuration(KeyMetadataTimeout),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the tool cannot work with
func (c *Config) Validate() error {
	var problems []error

	if (c.AccessKey == "") != (c.SecretKey == "") {
		problems = append(problems, errors.New("access_key and secret_key must be set together"))
	}
	if c.Keep < 0 {
		problems = append(problems, fmt.Errorf("keep must be zero or greater, got %d", c.Keep))
	}
	if c.WaitInterval < 0 {
		problems = append(problems, fmt.Errorf("wait_interval must not be negative, got %s", c.WaitInterval))
	}
	if c.MetadataTimeout <= 0 {
		problems = append(problems, fmt.Errorf("metadata_timeout must be positive, got %s", c.MetadataTimeout))
	}
	if c.BackupRegion == "" {
		problems = append(problems, errors.New("backup_region must not be empty"))
	}
	if c.LogFile == "" {
		problems = append(problems, errors.New("log_file must not be empty"))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(problems...))
	}
	return nil
}

// Credentials returns the configured static key pair, empty when the default chain should be used
func (c *Config) Credentials() aws.Credentials {
	return aws.Credentials{
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
	}
}

// RetentionPolicy returns the default retention policy
func (c *Config) RetentionPolicy() models.RetentionPolicy {
	return models.RetentionPolicy{Keep: c.Keep}
}
