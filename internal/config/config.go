package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultMembers is the family registered on first start.
var DefaultMembers = map[string]string{
	"15260416":   "Papa",
	"441113371":  "Mama",
	"1059153162": "Danya",
	"5678069063": "Vlad",
	"5863747570": "Tima",
}

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken        string `yaml:"bot_token"`
		AdminID         string `yaml:"admin_id"`
		BroadcastChatID string `yaml:"broadcast_chat_id"`
		APIBase         string `yaml:"api_base"`
	} `yaml:"telegram"`
	Members  map[string]string `yaml:"members"`
	GoalPool struct {
		ID             string `yaml:"id"`
		Name           string `yaml:"name"`
		Debitable      bool   `yaml:"debitable"`
		TransferSource bool   `yaml:"transfer_source"`
	} `yaml:"goal_pool"`
	Ledger struct {
		StateFile  string `yaml:"state_file"`
		BackupDir  string `yaml:"backup_dir"`
		BackupKeep int    `yaml:"backup_keep"`
	} `yaml:"ledger"`
	History struct {
		Retention   time.Duration `yaml:"retention"`
		RecentLimit int           `yaml:"recent_limit"`
	} `yaml:"history"`
	Schedule struct {
		PruneCron      string `yaml:"prune_cron"`
		SummaryWeekday string `yaml:"summary_weekday"`
		SummaryTime    string `yaml:"summary_time"`
	} `yaml:"schedule"`
	Dialogue struct {
		SessionTTL time.Duration `yaml:"session_ttl"`
	} `yaml:"dialogue"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	HTTP struct {
		Listen string `yaml:"listen"`
	} `yaml:"http"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_ADMIN_ID"); v != "" {
		cfg.Telegram.AdminID = v
	}
	if v := os.Getenv("TELEGRAM_BROADCAST_CHAT_ID"); v != "" {
		cfg.Telegram.BroadcastChatID = v
	}
	if v := os.Getenv("STATE_FILE"); v != "" {
		cfg.Ledger.StateFile = v
	}
	if v := os.Getenv("HISTORY_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("HISTORY_RETENTION: %w", err)
		}
		cfg.History.Retention = d
	}
	if v := os.Getenv("SUMMARY_WEEKDAY"); v != "" {
		cfg.Schedule.SummaryWeekday = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("HTTP_LISTEN"); v != "" {
		cfg.HTTP.Listen = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	// Defaults
	if cfg.Telegram.APIBase == "" {
		cfg.Telegram.APIBase = "https://api.telegram.org"
	}
	if len(cfg.Members) == 0 {
		cfg.Members = make(map[string]string, len(DefaultMembers))
		for id, name := range DefaultMembers {
			cfg.Members[id] = name
		}
	}
	if cfg.GoalPool.ID == "" {
		cfg.GoalPool.ID = "goal"
	}
	if cfg.GoalPool.Name == "" {
		cfg.GoalPool.Name = "Goal Pool"
	}
	if cfg.Ledger.StateFile == "" {
		cfg.Ledger.StateFile = "data/points_data.json"
	}
	if cfg.Ledger.BackupDir == "" {
		cfg.Ledger.BackupDir = "data/backups"
	}
	if cfg.Ledger.BackupKeep == 0 {
		cfg.Ledger.BackupKeep = 30
	}
	if cfg.History.Retention == 0 {
		cfg.History.Retention = 90 * 24 * time.Hour
	}
	if cfg.History.RecentLimit == 0 {
		cfg.History.RecentLimit = 10
	}
	if cfg.Schedule.PruneCron == "" {
		cfg.Schedule.PruneCron = "0 0 3 * * *"
	}
	if cfg.Schedule.SummaryWeekday == "" {
		cfg.Schedule.SummaryWeekday = "sunday"
	}
	if cfg.Schedule.SummaryTime == "" {
		cfg.Schedule.SummaryTime = "19:00"
	}
	if cfg.Dialogue.SessionTTL == 0 {
		cfg.Dialogue.SessionTTL = 30 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Telegram.AdminID == "" {
		return fmt.Errorf("telegram.admin_id is required")
	}
	if _, err := strconv.ParseInt(c.Telegram.AdminID, 10, 64); err != nil {
		return fmt.Errorf("telegram.admin_id must be a numeric Telegram id")
	}
	if c.History.Retention <= 0 {
		return fmt.Errorf("history.retention must be positive")
	}
	if c.Ledger.BackupKeep < 0 {
		return fmt.Errorf("ledger.backup_keep must not be negative")
	}
	if _, err := c.SummaryWeekday(); err != nil {
		return err
	}
	if _, _, err := c.SummaryClock(); err != nil {
		return err
	}
	if _, ok := c.Members[c.GoalPool.ID]; ok {
		return fmt.Errorf("goal_pool.id %q collides with a member id", c.GoalPool.ID)
	}
	for id, name := range c.Members {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("members.%s: name is required", id)
		}
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// SummaryWeekday parses schedule.summary_weekday, by name or as 0-6 with
// Sunday as 0.
func (c *Config) SummaryWeekday() (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(c.Schedule.SummaryWeekday))
	if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if v == name || v == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("schedule.summary_weekday: unknown weekday %q", c.Schedule.SummaryWeekday)
}

// SummaryClock parses schedule.summary_time as HH:MM.
func (c *Config) SummaryClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(c.Schedule.SummaryTime))
	if err != nil {
		return 0, 0, fmt.Errorf("schedule.summary_time must be HH:MM: %w", err)
	}
	return t.Hour(), t.Minute(), nil
}
