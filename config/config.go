package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel          string `env:"LOG_LEVEL"`
	Telegram          Telegram
	Redis             Redis
	API               API
	Cache             Cache
	Jobs              Jobs
	GoogleDrive       GoogleDrive
	SessionExpiration time.Duration `env:"SESSION_EXPIRATION"`
	AccountsPerPage   int           `env:"ACCOUNTS_PER_PAGE"`
}

type Telegram struct {
	Token            string        `env:"TELEGRAM_TOKEN"`
	UpdTimeout       time.Duration `env:"TELEGRAM_UPD_TIMEOUT"`
	FileLimitInBytes int           `env:"TELEGRAM_FILE_LIMIT_IN_BYTES"`
}

type Redis struct {
	Host     string `env:"REDIS_HOST"`
	Port     int    `env:"REDIS_PORT"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"`
}

type API struct {
	Debug        bool          `env:"API_DEBUG"`
	Timeout      time.Duration `env:"API_TIMEOUT"`
	DashboardApi DashboardApi
}

type DashboardApi struct {
	Url string `env:"DASHBOARD_API_URL"`
}

type Cache struct {
	SessionVerifyExpiration time.Duration `env:"CACHE_SESSION_VERIFY_EXPIRATION"`
}

type Jobs struct {
	SessionRevalidateInterval time.Duration `env:"SESSION_REVALIDATE_JOB_INTERVAL"`
	DriveCleanupInterval      time.Duration `env:"DRIVE_CLEANUP_JOB_INTERVAL"`
}

type GoogleDrive struct {
	CredentialsFile string        `env:"GOOGLE_DRIVE_CREDENTIALS_FILE"`
	FileTTL         time.Duration `env:"GOOGLE_DRIVE_FILE_TTL"`
}

func MustLoad() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	opts := env.Options{RequiredIfNoDef: true}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		log.Fatalf("parse config error: %s", err)
	}

	return cfg
}
