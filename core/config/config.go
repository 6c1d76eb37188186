package config

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Host     string
	Port     int
	BaseURL  string
	LogLevel string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type GoogleAPIConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type SyncConfig struct {
	// EncryptionKey is the 32-byte AEAD key for token storage, hex encoded
	// in the environment. Missing or malformed key is a startup failure.
	EncryptionKey          []byte
	Timezone               string
	QuotaDailyLimit        int
	DuplicateWindowMinutes int
}

type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

type JWTConfig struct {
	Secret string
}

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	GoogleAPI GoogleAPIConfig
	Sync      SyncConfig
	S3        S3Config
	JWT       JWTConfig
}

var (
	instance *Config
	mu       sync.RWMutex
)

// Load reads .env (if present) and the environment, validates required
// material and installs the process-wide config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 7070)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("BUSINESS_TIMEZONE", "America/Los_Angeles")
	v.SetDefault("QUOTA_DAILY_LIMIT", 10000)
	v.SetDefault("IMPORT_DUPLICATE_WINDOW_MINUTES", 60)

	keyHex := v.GetString("SYNC_ENCRYPTION_KEY")
	if keyHex == "" {
		return nil, fmt.Errorf("SYNC_ENCRYPTION_KEY is required")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("SYNC_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("SYNC_ENCRYPTION_KEY must be 32 bytes, got %d", len(key))
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:     v.GetString("SERVER_HOST"),
			Port:     v.GetInt("SERVER_PORT"),
			BaseURL:  v.GetString("SERVER_BASE_URL"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		GoogleAPI: GoogleAPIConfig{
			ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
		},
		Sync: SyncConfig{
			EncryptionKey:          key,
			Timezone:               v.GetString("BUSINESS_TIMEZONE"),
			QuotaDailyLimit:        v.GetInt("QUOTA_DAILY_LIMIT"),
			DuplicateWindowMinutes: v.GetInt("IMPORT_DUPLICATE_WINDOW_MINUTES"),
		},
		S3: S3Config{
			Region:          v.GetString("S3_REGION"),
			Bucket:          v.GetString("S3_BUCKET"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
		},
	}

	mu.Lock()
	instance = cfg
	mu.Unlock()
	return cfg, nil
}

// Get returns the loaded config; it panics before Load succeeds.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		panic("config: Get called before Load")
	}
	return instance
}

// GetSafe returns the loaded config and whether Load has run.
func GetSafe() (*Config, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return instance, instance != nil
}

// Set installs a config directly. Test hook.
func Set(cfg *Config) {
	mu.Lock()
	instance = cfg
	mu.Unlock()
}
