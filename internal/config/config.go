package config

import (
	"errors"
	"fmt"
	"os"

	"luybot/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig        `yaml:"app"`
	Telegram      TelegramConfig   `yaml:"telegram"`
	Database      DatabaseConfig   `yaml:"database"`
	Redis         RedisConfig      `yaml:"redis"`
	Backup        BackupConfig     `yaml:"backup"`
	Monitoring    MonitoringConfig `yaml:"monitoring"`
	Logging       LoggingConfig    `yaml:"logging"`
	API           APIConfig        `yaml:"api"`
	Bot           BotConfig        `yaml:"bot"`
	Course        CourseConfig     `yaml:"course"`
	Google        GoogleConfig     `yaml:"google"`
	Exports       ExportConfig     `yaml:"exports"`
	Admins        []int64          `yaml:"admins"`
	AdminContacts []string         `yaml:"admin_contacts"`
	Blocked       []int64          `yaml:"blocked"`
	Tiers         []TierConfig     `yaml:"tiers"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Interval      string `yaml:"interval"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BotConfig struct {
	RateLimitMessages int     `yaml:"rate_limit_messages"`
	RateLimitWindow   int     `yaml:"rate_limit_window"`
	SendRatePerSecond float64 `yaml:"send_rate_per_second"`
	SendBurst         int     `yaml:"send_burst"`
}

// CourseConfig describes the drip calendar: core days are advanced by
// the user, extended days by the scheduler.
type CourseConfig struct {
	MaxDay           int    `yaml:"max_day"`
	ExtendedMaxDay   int    `yaml:"extended_max_day"`
	Timezone         string `yaml:"timezone"`
	DeliveryTime     string `yaml:"delivery_time"`
	MotivationTime   string `yaml:"motivation_time"`
	ReviewWeekday    string `yaml:"review_weekday"`
	ReviewTime       string `yaml:"review_time"`
	LessonsPath      string `yaml:"lessons_path"`
	StuckAfterDays   int    `yaml:"stuck_after_days"`
	ActiveWindowDays int    `yaml:"active_window_days"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	RosterSpreadSheetID   string `yaml:"roster_spreadsheet_id"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type TierConfig struct {
	Name  string  `yaml:"name"`
	Price float64 `yaml:"price"`
}

func Load(configPath string) (*Config, error) {
	// .env не обязателен: в проде переменные приходят из окружения
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		return errors.New("telegram bot token is required")
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Course.MaxDay < 1 {
		return errors.New("course.max_day must be at least 1")
	}

	if c.Course.ExtendedMaxDay < c.Course.MaxDay {
		return fmt.Errorf("course.extended_max_day %d is before course.max_day %d",
			c.Course.ExtendedMaxDay, c.Course.MaxDay)
	}

	return ValidateTiers(c.Tiers)
}

// ValidateTiers checks tier names against the known levels and rejects
// duplicates.
func ValidateTiers(tiers []TierConfig) error {
	seen := make(map[string]bool)
	for _, tier := range tiers {
		if !models.ValidTier(tier.Name) {
			return fmt.Errorf("unknown tier name: %q", tier.Name)
		}
		if seen[tier.Name] {
			return fmt.Errorf("duplicate tier: %q", tier.Name)
		}
		if tier.Name != models.TierFree && tier.Price <= 0 {
			return fmt.Errorf("tier %q must have a positive price", tier.Name)
		}
		seen[tier.Name] = true
	}
	return nil
}

// TierPrice returns the configured price for a tier, 0 when unknown.
func (c *Config) TierPrice(name string) float64 {
	for _, tier := range c.Tiers {
		if tier.Name == name {
			return tier.Price
		}
	}
	return 0
}

func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Enabled && !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}

	// Bot defaults
	if c.Bot.RateLimitMessages == 0 {
		c.Bot.RateLimitMessages = models.RateLimitMessages
	}
	if c.Bot.RateLimitWindow == 0 {
		c.Bot.RateLimitWindow = models.RateLimitWindow
	}
	if c.Bot.SendRatePerSecond == 0 {
		c.Bot.SendRatePerSecond = models.SendRatePerSecond
	}
	if c.Bot.SendBurst == 0 {
		c.Bot.SendBurst = 1
	}

	// Course defaults: 7 core days, drip until day 30, Phnom Penh time.
	if c.Course.MaxDay == 0 {
		c.Course.MaxDay = models.DefaultCourseDays
	}
	if c.Course.ExtendedMaxDay == 0 {
		c.Course.ExtendedMaxDay = models.DefaultExtendedDays
	}
	if c.Course.Timezone == "" {
		c.Course.Timezone = "Asia/Phnom_Penh"
	}
	if c.Course.DeliveryTime == "" {
		c.Course.DeliveryTime = fmt.Sprintf("%02d:00", models.DeliveryHour)
	}
	if c.Course.MotivationTime == "" {
		c.Course.MotivationTime = fmt.Sprintf("%02d:00", models.MotivationHour)
	}
	if c.Course.ReviewWeekday == "" {
		c.Course.ReviewWeekday = "Sunday"
	}
	if c.Course.ReviewTime == "" {
		c.Course.ReviewTime = "17:00"
	}
	if c.Course.LessonsPath == "" {
		c.Course.LessonsPath = "configs/lessons.yaml"
	}
	if c.Course.StuckAfterDays == 0 {
		c.Course.StuckAfterDays = models.DefaultStuckDays
	}
	if c.Course.ActiveWindowDays == 0 {
		c.Course.ActiveWindowDays = 30
	}
}
