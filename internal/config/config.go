package config

import (
	"os"

	"github.com/pkg/errors"
)

// Backends selectable through the environment.
const (
	StorageMemory    = "memory"
	StorageSQLite    = "sqlite"
	StorageFirestore = "firestore"

	ExchangeMock   = "mock"
	ExchangeGemini = "gemini"
	ExchangeOpenAI = "openai"

	IdentityStatic   = "static"
	IdentityFirebase = "firebase"
)

type Config struct {
	Port     string
	LogLevel string

	StorageBackend string // memory | sqlite | firestore
	SQLitePath     string
	GCPProjectID   string

	ExchangeBackend string // mock | gemini | openai
	ModelName       string
	// The exchange credential is the one secret the core depends on. It is
	// treated as opaque and only ever handed to the exchange adapter.
	GeminiAPIKey string
	OpenAIAPIKey string

	IdentityBackend string // static | firebase
	StaticUserID    string
	StaticUserEmail string
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load reads all env vars and builds the config.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("MINDSHIFT_PORT", "8080"),
		LogLevel: getEnv("MINDSHIFT_LOG_LEVEL", "info"),

		StorageBackend: getEnv("MINDSHIFT_STORAGE_BACKEND", StorageMemory),
		SQLitePath:     getEnv("MINDSHIFT_SQLITE_PATH", "mindshift.db"),
		GCPProjectID:   getEnv("MINDSHIFT_GCP_PROJECT", ""),

		ExchangeBackend: getEnv("MINDSHIFT_EXCHANGE_BACKEND", ExchangeMock),
		ModelName:       getEnv("MINDSHIFT_MODEL_NAME", "gemini-2.5-flash"),
		GeminiAPIKey:    getEnv("MINDSHIFT_GEMINI_API_KEY", ""),
		OpenAIAPIKey:    getEnv("MINDSHIFT_OPENAI_API_KEY", ""),

		IdentityBackend: getEnv("MINDSHIFT_IDENTITY_BACKEND", IdentityStatic),
		StaticUserID:    getEnv("MINDSHIFT_STATIC_USER_ID", "local-user"),
		StaticUserEmail: getEnv("MINDSHIFT_STATIC_USER_EMAIL", "local@mindshift.dev"),
	}

	switch cfg.StorageBackend {
	case StorageMemory, StorageSQLite:
	case StorageFirestore:
		if cfg.GCPProjectID == "" {
			return nil, errors.New("MINDSHIFT_GCP_PROJECT must be set for the firestore backend")
		}
	default:
		return nil, errors.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	switch cfg.ExchangeBackend {
	case ExchangeMock:
	case ExchangeGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, errors.New("MINDSHIFT_GEMINI_API_KEY must be set for the gemini backend")
		}
	case ExchangeOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("MINDSHIFT_OPENAI_API_KEY must be set for the openai backend")
		}
	default:
		return nil, errors.Errorf("unknown exchange backend %q", cfg.ExchangeBackend)
	}

	switch cfg.IdentityBackend {
	case IdentityStatic:
	case IdentityFirebase:
		if cfg.GCPProjectID == "" {
			return nil, errors.New("MINDSHIFT_GCP_PROJECT must be set for firebase identity")
		}
	default:
		return nil, errors.Errorf("unknown identity backend %q", cfg.IdentityBackend)
	}

	return cfg, nil
}
