package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Storage selects the persistence backend: "json" or "sqlite".
	Storage      string        `mapstructure:"storage" yaml:"storage"`
	DataDir      string        `mapstructure:"data_dir" yaml:"data_dir"`
	SaveDebounce time.Duration `mapstructure:"save_debounce" yaml:"save_debounce"`

	JWTSecret     string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	AdminUsername string `mapstructure:"admin_username" yaml:"admin_username"`
	AdminPassword string `mapstructure:"admin_password" yaml:"admin_password"`

	DefaultChannel            string `mapstructure:"default_channel" yaml:"default_channel"`
	AutoJoinDefault           bool   `mapstructure:"auto_join_default" yaml:"auto_join_default"`
	ShowJoinLeaveMessages     bool   `mapstructure:"show_join_leave_messages" yaml:"show_join_leave_messages"`
	EnforceChannelPermissions bool   `mapstructure:"enforce_channel_permissions" yaml:"enforce_channel_permissions"`

	Cooldown   CooldownConfig   `mapstructure:"cooldown" yaml:"cooldown"`
	WordFilter WordFilterConfig `mapstructure:"word_filter" yaml:"word_filter"`
	Mentions   MentionsConfig   `mapstructure:"mentions" yaml:"mentions"`
}

// CooldownConfig throttles how often a player may chat.
type CooldownConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Seconds int    `mapstructure:"seconds" yaml:"seconds"`
	Message string `mapstructure:"message" yaml:"message"`
}

// WordFilterConfig configures the chat word filter.
type WordFilterConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	Mode           string   `mapstructure:"mode" yaml:"mode"` // censor or block
	Replacement    string   `mapstructure:"replacement" yaml:"replacement"`
	Words          []string `mapstructure:"words" yaml:"words"`
	NotifyPlayer   bool     `mapstructure:"notify_player" yaml:"notify_player"`
	WarningMessage string   `mapstructure:"warning_message" yaml:"warning_message"`
}

// MentionsConfig configures @name highlighting.
type MentionsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Color   string `mapstructure:"color" yaml:"color"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                  ":8080",
		LogLevel:              "info",
		ReadHeaderTimeout:     5 * time.Second,
		ShutdownTimeout:       5 * time.Second,
		Storage:               "json",
		DataDir:               "data",
		SaveDebounce:          20 * time.Second,
		JWTSecret:             "change-me",
		AdminUsername:         "admin",
		DefaultChannel:        "Global",
		AutoJoinDefault:       true,
		ShowJoinLeaveMessages: false,
		Cooldown: CooldownConfig{
			Enabled: false,
			Seconds: 3,
			Message: "Please wait {seconds}s before chatting again.",
		},
		WordFilter: WordFilterConfig{
			Enabled:        false,
			Mode:           "censor",
			Replacement:    "***",
			NotifyPlayer:   false,
			WarningMessage: "Watch your language.",
		},
		Mentions: MentionsConfig{
			Enabled: true,
			Color:   "#FFFF55",
		},
	}
}
