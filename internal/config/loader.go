package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "WERCHAT_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix("WERCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("save_debounce", cfg.SaveDebounce)
	v.SetDefault("jwt_secret", cfg.JWTSecret)
	v.SetDefault("admin_username", cfg.AdminUsername)
	v.SetDefault("admin_password", cfg.AdminPassword)
	v.SetDefault("default_channel", cfg.DefaultChannel)
	v.SetDefault("auto_join_default", cfg.AutoJoinDefault)
	v.SetDefault("show_join_leave_messages", cfg.ShowJoinLeaveMessages)
	v.SetDefault("enforce_channel_permissions", cfg.EnforceChannelPermissions)
	v.SetDefault("cooldown.enabled", cfg.Cooldown.Enabled)
	v.SetDefault("cooldown.seconds", cfg.Cooldown.Seconds)
	v.SetDefault("cooldown.message", cfg.Cooldown.Message)
	v.SetDefault("word_filter.enabled", cfg.WordFilter.Enabled)
	v.SetDefault("word_filter.mode", cfg.WordFilter.Mode)
	v.SetDefault("word_filter.replacement", cfg.WordFilter.Replacement)
	v.SetDefault("word_filter.words", cfg.WordFilter.Words)
	v.SetDefault("word_filter.notify_player", cfg.WordFilter.NotifyPlayer)
	v.SetDefault("word_filter.warning_message", cfg.WordFilter.WarningMessage)
	v.SetDefault("mentions.enabled", cfg.Mentions.Enabled)
	v.SetDefault("mentions.color", cfg.Mentions.Color)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
