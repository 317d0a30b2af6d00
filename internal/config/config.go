package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	StorageBackend string // "postgres" или "file"
	DatabaseURL    string
	FileStorePath  string

	TokenSecret       string
	IdentityVerifyURL string

	AdminUser         string
	AdminPasswordHash string

	MetricsUser     string
	MetricsPassword string

	GeminiAPIKey string
}

func Load() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found")
	}

	cfg := &Config{
		Port:              getenv("PORT", "8080"),
		StorageBackend:    getenv("STORAGE_BACKEND", "postgres"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		FileStorePath:     getenv("FILE_STORE_PATH", "./data/meishi.json"),
		TokenSecret:       os.Getenv("TOKEN_SECRET"),
		IdentityVerifyURL: os.Getenv("IDENTITY_VERIFY_URL"),
		AdminUser:         os.Getenv("ADMIN_USER"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		MetricsUser:       getenv("METRICS_USER", "metrics"),
		MetricsPassword:   os.Getenv("METRICS_PASSWORD"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
	}

	// Без секрета подписи сессий сервис работать не может
	if cfg.TokenSecret == "" {
		log.Fatal("TOKEN_SECRET is not set")
	}

	switch cfg.StorageBackend {
	case "postgres":
		if cfg.DatabaseURL == "" {
			log.Fatal("DATABASE_URL is required for the postgres backend")
		}
	case "file":
		// file-бэкенд только для одиночного инстанса
	default:
		log.Fatalf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
