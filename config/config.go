package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"outreach/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

type IMAPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	Mailbox  string `json:"mailbox"`
}

// Enabled reports whether enough IMAP settings are present to poll for replies
func (c IMAPConfig) Enabled() bool {
	return c.Host != "" && c.Username != ""
}

type Config struct {
	Environment       string        `json:"environment"`
	ServerPort        string        `json:"server_port"`
	JWTSecret         string        `json:"-"`
	DBDriver          string        `json:"db_driver"`
	DBHost            string        `json:"db_host"`
	DBPort            string        `json:"db_port"`
	DBUser            string        `json:"db_user"`
	DBPassword        string        `json:"-"`
	DBName            string        `json:"db_name"`
	DBSSLMode         string        `json:"db_ssl_mode"`
	DBMaxIdleConns    int           `json:"db_max_idle_conns"`
	DBMaxOpenConns    int           `json:"db_max_open_conns"`
	Redis             RedisConfig   `json:"redis"`
	SMTP              SMTPConfig    `json:"smtp"`
	IMAP              IMAPConfig    `json:"imap"`
	SentryDSN         string        `json:"-"`
	SendRateLimit     int           `json:"send_rate_limit"`
	ReplyPollInterval time.Duration `json:"reply_poll_interval"`
	CORSOrigins       []string      `json:"cors_origins"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		DBDriver:       getEnv("DB_DRIVER", "postgres"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "outreach"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", ""),
			FromName:  getEnv("SMTP_FROM_NAME", ""),
		},
		IMAP: IMAPConfig{
			Host:     getEnv("IMAP_HOST", ""),
			Port:     getEnvAsInt("IMAP_PORT", 993),
			Username: getEnv("IMAP_USERNAME", ""),
			Password: getEnv("IMAP_PASSWORD", ""),
			Mailbox:  getEnv("IMAP_MAILBOX", "INBOX"),
		},
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		SendRateLimit:     getEnvAsInt("SEND_RATE_LIMIT", 20),
		ReplyPollInterval: getEnvAsDuration("REPLY_POLL_INTERVAL", 5*time.Minute),
		CORSOrigins:       getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000"}),
	}

	return validate(AppConfig)
}

func validate(cfg Config) error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch cfg.DBDriver {
	case "postgres":
		if cfg.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.Environment == "production" && cfg.SMTP.Host == "" {
		return fmt.Errorf("SMTP_HOST is required in production")
	}
	if cfg.SendRateLimit <= 0 {
		return fmt.Errorf("SEND_RATE_LIMIT must be positive")
	}

	logConfig(cfg)
	return nil
}

func ConnectDB() error {
	log := logrus.WithField("component", "database")
	log.Info("Attempting to connect to database...")

	dialector, err := openDialector(AppConfig)
	if err != nil {
		return err
	}

	DB, err = gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Info("Successfully connected to the database")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Info("Database migration completed")
	return nil
}

func openDialector(cfg Config) (gorm.Dialector, error) {
	switch cfg.DBDriver {
	case "sqlite":
		// DB_NAME is the file path, or ":memory:"
		return sqlite.Open(cfg.DBName), nil
	case "postgres":
		dsn := postgresDSN(cfg)
		logrus.WithField("dsn", maskPassword(dsn)).Debug("Using connection string")
		return postgres.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
}

func postgresDSN(cfg Config) string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
		cfg.DBSSLMode,
	)
}

// MigrateDB creates or updates every table the service owns
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Connection{},
		&models.Timeline{},
		&models.Stage{},
		&models.Draft{},
	)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		logrus.Warnf("Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig(cfg Config) {
	logrus.WithFields(logrus.Fields{
		"environment":   cfg.Environment,
		"server_port":   cfg.ServerPort,
		"db_driver":     cfg.DBDriver,
		"database":      fmt.Sprintf("%s@%s:%s/%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName),
		"redis_enabled": cfg.Redis.Enabled,
		"smtp":          cfg.SMTP.Host != "",
		"imap":          cfg.IMAP.Enabled(),
		"sentry":        cfg.SentryDSN != "",
	}).Info("Loaded configuration")
}
