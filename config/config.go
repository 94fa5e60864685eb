// ABOUTME: Application configuration loading
// ABOUTME: Merges defaults, an XDG YAML file, .env and environment overrides
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const appName = "dealboard"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Timezone  string          `yaml:"timezone"`
	Templates TemplatesConfig `yaml:"templates"`
	Line      LineConfig      `yaml:"line"`
	Slack     SlackConfig     `yaml:"slack"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Redis     RedisConfig     `yaml:"redis"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Sheets    SheetsConfig    `yaml:"sheets"`
	Reminders RemindersConfig `yaml:"reminders"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TemplatesConfig struct {
	Dir string `yaml:"dir"`
}

type LineConfig struct {
	ChannelAccessToken string        `yaml:"channel_access_token"`
	ChannelSecret      string        `yaml:"channel_secret"`
	BotID              string        `yaml:"bot_id"`
	APIBase            string        `yaml:"api_base"`
	PendingTTL         time.Duration `yaml:"pending_ttl"`
}

type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
	APIBase   string `yaml:"api_base"`
}

type LedgerConfig struct {
	BaseURL string        `yaml:"base_url"`
	Delay   time.Duration `yaml:"delay"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	CredentialsFile string `yaml:"credentials_file"`
	SheetName       string `yaml:"sheet_name"`
}

type RemindersConfig struct {
	Times      []string      `yaml:"times"`
	DaysAhead  int           `yaml:"days_ahead"`
	Delay      time.Duration `yaml:"delay"`
	RunOnStart bool          `yaml:"run_on_start"`
}

// Dir returns the XDG config directory for dealboard.
func Dir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// DataDir returns the XDG data directory for dealboard.
func DataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":5000"},
		Database: DatabaseConfig{Driver: "sqlite3", DSN: filepath.Join(DataDir(), "dealboard.db")},
		Log:      LogConfig{Level: "info"},
		Timezone: "Asia/Tokyo",
		Templates: TemplatesConfig{
			Dir: filepath.Join(DataDir(), "templates"),
		},
		Line: LineConfig{
			APIBase:    "https://api.line.me",
			PendingTTL: 30 * time.Minute,
		},
		Slack:  SlackConfig{APIBase: "https://slack.com/api"},
		Ledger: LedgerConfig{BaseURL: "http://localhost:3001", Delay: 100 * time.Millisecond},
		Gemini: GeminiConfig{Model: "gemini-2.5-flash"},
		Sheets: SheetsConfig{SheetName: "Sheet1"},
		Reminders: RemindersConfig{
			Times:     []string{"09:00", "15:00"},
			DaysAhead: 2,
			Delay:     500 * time.Millisecond,
		},
	}
}

// Load reads configuration. A missing file, at path or the default path, is
// not an error. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	applyEnvOverrides(cfg)

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Addr, "DEALBOARD_ADDR")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("DEALBOARD_ADDR") == "" {
		cfg.Server.Addr = ":" + port
	}

	setString(&cfg.Database.Driver, "DEALBOARD_DB_DRIVER")
	setString(&cfg.Database.DSN, "DEALBOARD_DB_PATH")
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.DSN = url
		if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
			cfg.Database.Driver = "postgres"
		}
	}

	setString(&cfg.Log.Level, "DEALBOARD_LOG_LEVEL")
	setString(&cfg.Log.Format, "DEALBOARD_LOG_FORMAT")
	setString(&cfg.Timezone, "DEALBOARD_TIMEZONE")
	setString(&cfg.Templates.Dir, "DEALBOARD_TEMPLATES_DIR")

	setString(&cfg.Line.ChannelAccessToken, "LINE_CHANNEL_ACCESS_TOKEN")
	setString(&cfg.Line.ChannelSecret, "LINE_CHANNEL_SECRET")
	setString(&cfg.Line.BotID, "LINE_BOT_ID")

	setString(&cfg.Slack.BotToken, "SLACK_BOT_TOKEN")
	setString(&cfg.Slack.ChannelID, "SLACK_CHANNEL_ID")

	setString(&cfg.Ledger.BaseURL, "LEDGER_API_BASE")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	if db := os.Getenv("REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.Redis.DB = n
		}
	}

	setString(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Sheets.SpreadsheetID, "GOOGLE_SHEET_ID")
	setString(&cfg.Sheets.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")

	if times := os.Getenv("DEALBOARD_REMINDER_TIMES"); times != "" {
		var parsed []string
		for _, t := range strings.Split(times, ",") {
			if t = strings.TrimSpace(t); t != "" {
				parsed = append(parsed, t)
			}
		}
		cfg.Reminders.Times = parsed
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Location resolves the configured time zone used for calendar-date math.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Save writes the configuration as YAML, creating the directory.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
