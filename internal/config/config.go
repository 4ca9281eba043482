package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/raythurman2386/claudegram/internal/formatter"
)

const (
	DefaultClaudeBinary     = "claude"
	DefaultClaudeTimeout    = 300 * time.Second
	DefaultDBPath           = "data/claudegram.db"
	DefaultHistoryRetention = 30 * 24 * time.Hour
)

// ConfigFile is read from the working directory when present.
const ConfigFile = "config.json"

type ClaudeConfig struct {
	Binary  string
	Args    []string
	Timeout time.Duration
}

// fileConfig is the subset of settings config.json may carry. Credentials,
// admins and limits only come from the environment.
type fileConfig struct {
	ClaudeBinary string   `json:"claudeBinary"`
	ClaudeArgs   []string `json:"claudeArgs"`
}

type Config struct {
	TelegramBotToken string
	AdminIDs         []int64
	DiscordBotToken  string
	DiscordChannelID string
	DBPath           string
	MaxMessageLength int
	HistoryRetention time.Duration
	Claude           ClaudeConfig
}

// IsAdmin reports whether the Telegram user is allowed to talk to the bot.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func LoadConfig() (*Config, error) {
	return load(ConfigFile)
}

func load(path string) (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is not set")
	}

	rawIDs := os.Getenv("ADMIN_IDS")
	if rawIDs == "" {
		return nil, fmt.Errorf("ADMIN_IDS environment variable is not set")
	}
	adminIDs, err := parseAdminIDs(rawIDs)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		TelegramBotToken: token,
		AdminIDs:         adminIDs,
		DiscordBotToken:  os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordChannelID: os.Getenv("DISCORD_CHANNEL_ID"),
		DBPath:           envOr("DB_PATH", DefaultDBPath),
		MaxMessageLength: formatter.MaxMessageLength,
		HistoryRetention: DefaultHistoryRetention,
		Claude: ClaudeConfig{
			Binary:  DefaultClaudeBinary,
			Timeout: DefaultClaudeTimeout,
		},
	}

	if fc, ok := readFile(path); ok {
		if fc.ClaudeBinary != "" {
			cfg.Claude.Binary = fc.ClaudeBinary
		}
		cfg.Claude.Args = fc.ClaudeArgs
	}

	if v := os.Getenv("CLAUDE_BIN"); v != "" {
		cfg.Claude.Binary = v
	}
	if cfg.Claude.Binary == "" {
		cfg.Claude.Binary = DefaultClaudeBinary
	}

	if v := os.Getenv("CLAUDE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid CLAUDE_TIMEOUT %q", v)
		}
		cfg.Claude.Timeout = d
	}

	if v := os.Getenv("HISTORY_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid HISTORY_RETENTION %q", v)
		}
		cfg.HistoryRetention = d
	}

	if v := os.Getenv("MAX_MESSAGE_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_MESSAGE_LENGTH %q: %w", v, err)
		}
		cfg.MaxMessageLength = n
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks the merged result of every source.
func (c *Config) validate() error {
	if c.MaxMessageLength < formatter.MinMessageLength || c.MaxMessageLength > formatter.MaxMessageLength {
		return fmt.Errorf("invalid MAX_MESSAGE_LENGTH %d: must be between %d and %d",
			c.MaxMessageLength, formatter.MinMessageLength, formatter.MaxMessageLength)
	}
	if len(c.AdminIDs) == 0 {
		return fmt.Errorf("no administrators configured: at least one administrator is required")
	}
	return nil
}

func readFile(path string) (fileConfig, bool) {
	var fc fileConfig
	file, err := os.Open(path)
	if err != nil {
		return fc, false
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&fc); err != nil {
		slog.Warn("Failed to parse config file", "path", path, "error", err)
		return fileConfig{}, false
	}
	return fc, true
}

func parseAdminIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("ADMIN_IDS is empty: at least one administrator is required")
	}
	return ids, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
