package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type FilesConfig struct {
	RootDir string `yaml:"root_dir"`
	// PublicURL — префикс URL для файлов из локального хранилища.
	PublicURL string `yaml:"public_url"`
}

type MobizonConfig struct {
	APIKey   string `yaml:"api_key"`
	SenderID string `yaml:"sender_id"`
	DryRun   bool   `yaml:"dry_run"`
}

type TelegramConfig struct {
	BotToken    string `yaml:"bot_token"`
	AdminChatID int64  `yaml:"admin_chat_id"`
}

type CloudinaryConfig struct {
	CloudName string `yaml:"cloud_name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Folder    string `yaml:"folder"`
}

type OTPConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	MaxAttempts int           `yaml:"max_attempts"`
	MaxSends    int           `yaml:"max_sends"`
	SendWindow  time.Duration `yaml:"send_window"`
}

type VerificationConfig struct {
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

type Config struct {
	Env    string `yaml:"env"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"` // postgres | memory
		DSN    string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Email struct {
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUser     string `yaml:"smtp_user"`
		SMTPPassword string `yaml:"smtp_password"`
		FromEmail    string `yaml:"from_email"`
	} `yaml:"email"`
	Files        FilesConfig        `yaml:"files"`
	Mobizon      MobizonConfig      `yaml:"mobizon"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Cloudinary   CloudinaryConfig   `yaml:"cloudinary"`
	OTP          OTPConfig          `yaml:"otp"`
	Verification VerificationConfig `yaml:"verification"`
	PDF          struct {
		FontPath string `yaml:"font_path"`
	} `yaml:"pdf"`
}

// LoadConfig reads config/config.yaml (or $CONFIG_PATH), then applies .env and
// environment overrides and defaults.
func LoadConfig() *Config {
	_ = godotenv.Load() // .env не обязателен

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := Load(path)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		// только env + defaults
	default:
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Env, "ENV")
	setInt(&c.Server.Port, "PORT")
	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Database.DSN, "DATABASE_URL")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Email.SMTPHost, "SMTP_HOST")
	setInt(&c.Email.SMTPPort, "SMTP_PORT")
	setString(&c.Email.SMTPUser, "SMTP_USER")
	setString(&c.Email.SMTPPassword, "SMTP_PASSWORD")
	setString(&c.Email.FromEmail, "SMTP_FROM")
	setString(&c.Mobizon.APIKey, "MOBIZON_API_KEY")
	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("TELEGRAM_ADMIN_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.AdminChatID = id
		}
	}
	setString(&c.Cloudinary.CloudName, "CLOUDINARY_CLOUD_NAME")
	setString(&c.Cloudinary.APIKey, "CLOUDINARY_API_KEY")
	setString(&c.Cloudinary.APISecret, "CLOUDINARY_API_SECRET")
}

func (c *Config) applyDefaults() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Files.RootDir == "" {
		c.Files.RootDir = "./files"
	}
	if c.Files.PublicURL == "" {
		c.Files.PublicURL = "/files"
	}
	if c.Cloudinary.Folder == "" {
		c.Cloudinary.Folder = "kyc"
	}
	if c.OTP.TTL <= 0 {
		c.OTP.TTL = 10 * time.Minute
	}
	if c.OTP.MaxAttempts <= 0 {
		c.OTP.MaxAttempts = 5
	}
	if c.OTP.MaxSends <= 0 {
		c.OTP.MaxSends = 3
	}
	if c.OTP.SendWindow <= 0 {
		c.OTP.SendWindow = 10 * time.Minute
	}
	if c.Verification.Workers <= 0 {
		c.Verification.Workers = 4
	}
	if c.Verification.QueueSize <= 0 {
		c.Verification.QueueSize = 256
	}
	if c.Verification.FetchTimeout <= 0 {
		c.Verification.FetchTimeout = 15 * time.Second
	}
	if c.PDF.FontPath == "" {
		c.PDF.FontPath = "assets/fonts/DejaVuSans.ttf"
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
