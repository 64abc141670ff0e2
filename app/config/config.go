package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      Log      `yaml:"log"`
	Telegram Telegram `yaml:"telegram"`
	OpenAI   OpenAI   `yaml:"openai"`
	DB       DB       `yaml:"db"`
	Redis    Redis    `yaml:"redis"`
	Budget   Budget   `yaml:"budget"`
	Policy   Policy   `yaml:"policy"`
	Server   Server   `yaml:"server"`
	MCP      MCP      `yaml:"mcp"`
}

type OpenAI struct {
	// OpenAI base url
	BaseURL string `yaml:"base_url" example:"https://api.openai.com/v1" validate:"required"`
	// OpenAI token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// Model used for tool proposals and reply phrasing
	Model string `yaml:"model" example:"gpt-4o-mini" validate:"required"`
	// Model used for receipt image extraction
	VisionModel string `yaml:"vision_model" example:"gpt-4o"`
	// Model used for voice note transcription
	TranscribeModel string `yaml:"transcribe_model" example:"whisper-1"`
}

type Telegram struct {
	// Bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789" validate:"required"`
	// User IDs permitted to talk to the bot
	AllowedUserIDs []int64 `yaml:"allowed_user_ids" validate:"min=1"`
	// Long-poll getUpdates instead of serving a webhook
	UsePolling bool `yaml:"use_polling" example:"true"`
	// Public webhook URL, registered on startup when polling is off
	WebhookURL string `yaml:"webhook_url" example:"https://bot.example.com/webhook"`
	// Pause between empty poll cycles
	PollingInterval time.Duration `yaml:"polling_interval" example:"1s"`
	// How long fragmented text messages are buffered before processing
	BufferDelay time.Duration `yaml:"buffer_delay" example:"3s"`
}

type Log struct {
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

type DB struct {
	// Postgres username
	User string `yaml:"user" example:"postgres" validate:"required"`
	// Postgres password
	Pass string `yaml:"pass" validate:"required"`
	// Postgres host
	Host string `yaml:"host"  example:"localhost:5432" validate:"required"`
	// Postgres database name
	Database string `yaml:"database" example:"gastobot" validate:"required"`
}

type Redis struct {
	// Back the conversation window with Redis; off keeps it in process
	Enabled bool `yaml:"enabled" example:"true"`
	// Redis connection URL
	URL string `yaml:"url" example:"redis://localhost:6379"`
}

type Budget struct {
	// HTTP endpoint returning [{"category": "...", "limit": 123}]; empty uses static limits
	URL string `yaml:"url" example:"https://sheets.example.com/budgets.json"`
	// Bearer token for the budget endpoint
	Token string `yaml:"token"`
	// Static monthly limits per category, used when url is empty
	Limits map[string]float64 `yaml:"limits"`
}

type Policy struct {
	// Registrations above this amount get a confirmation notice
	HighExpenseThreshold float64 `yaml:"high_expense_threshold" example:"500000"`
	// Turns kept per conversation window
	WindowSize int `yaml:"window_size" example:"20"`
	// Window lifetime from creation
	WindowTTL time.Duration `yaml:"window_ttl" example:"25h"`
	// Gap after which the conversation is framed as stale
	IdleGap time.Duration `yaml:"idle_gap" example:"2h"`
	// Messages per minute per user
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" example:"30"`
}

type Server struct {
	// Webhook/health listen address
	Addr string `yaml:"addr" example:":8000"`
}

type MCP struct {
	// Serve the tool surface over MCP stdio instead of running the bot
	Enabled bool `yaml:"enabled" example:"false"`
	// Ledger identity used for MCP-originated invocations
	User string `yaml:"user" example:"mcp"`
}

func Load() (*Config, error) {
	var result Config

	data, err := os.ReadFile("config.yaml")
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	result.applyDefaults()

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

func (c *Config) applyDefaults() {
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.OpenAI.VisionModel == "" {
		c.OpenAI.VisionModel = "gpt-4o"
	}
	if c.OpenAI.TranscribeModel == "" {
		c.OpenAI.TranscribeModel = "whisper-1"
	}
	if c.Telegram.PollingInterval == 0 {
		c.Telegram.PollingInterval = time.Second
	}
	if c.Telegram.BufferDelay == 0 {
		c.Telegram.BufferDelay = 3 * time.Second
	}
	if c.DB.User == "" {
		c.DB.User = "postgres"
	}
	if c.DB.Pass == "" {
		c.DB.Pass = "postgres"
	}
	if c.DB.Host == "" {
		c.DB.Host = "localhost:5432"
	}
	if c.DB.Database == "" {
		c.DB.Database = "gastobot"
	}
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379"
	}
	if c.Policy.HighExpenseThreshold == 0 {
		c.Policy.HighExpenseThreshold = 500_000
	}
	if c.Policy.WindowSize == 0 {
		c.Policy.WindowSize = 20
	}
	if c.Policy.WindowTTL == 0 {
		c.Policy.WindowTTL = 25 * time.Hour
	}
	if c.Policy.IdleGap == 0 {
		c.Policy.IdleGap = 2 * time.Hour
	}
	if c.Policy.RateLimitPerMinute == 0 {
		c.Policy.RateLimitPerMinute = 30
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.MCP.User == "" {
		c.MCP.User = "mcp"
	}
}

func (c *Config) IsUserAllowed(userID int64) bool {
	for _, id := range c.Telegram.AllowedUserIDs {
		if id == userID {
			return true
		}
	}

	return false
}
