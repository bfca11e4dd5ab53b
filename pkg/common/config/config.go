package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	PostgresMaxConns int

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers        []string
	KafkaGroupID        string
	AnalysisEventsTopic string

	// Auth
	JWTSecret string
	JWTIssuer string

	// GigaChat
	GigaChatAuthURL          string
	GigaChatAPIURL           string
	GigaChatAuthorizationKey string
	GigaChatScope            string
	GigaChatModel            string
	GigaChatModelVersion     string
	GigaChatInsecureTLS      bool
	GigaChatTokenTTL         time.Duration
	GigaChatTokenStore       string
	GigaChatConnectTimeout   time.Duration
	AnalysisTimeout          time.Duration

	// Files
	MediaRoot     string
	MaxUploadSize int64

	// OCR
	TesseractPath string
	OCRLanguages  string

	// Catalogs
	TerminologyCatalogPath string
	PromptsSeedPath        string
	RedactionRulesPath     string
	RedactionEnabled       bool

	// Dashboard
	DashboardCacheTTL time.Duration

	// Rate limiting of analysis requests
	AnalysisRateLimit float64
	AnalysisRateBurst int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 60*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 90*time.Second),
		MaxRequestBody: getInt64Env("MAX_REQUEST_BODY_BYTES", 52*1024*1024),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "medtriage"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "medtriage"),
		PostgresDB:       getEnv("POSTGRES_DB", "medtriage"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresMaxConns: getIntEnv("POSTGRES_MAX_CONNS", 20),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:        getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:        getEnv("KAFKA_GROUP_ID", "medtriage-platform"),
		AnalysisEventsTopic: getEnv("ANALYSIS_EVENTS_TOPIC", "analysis-events"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "medtriage"),

		GigaChatAuthURL:          getEnv("GIGACHAT_AUTH_URL", "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"),
		GigaChatAPIURL:           getEnv("GIGACHAT_API_URL", "https://gigachat.devices.sberbank.ru/api/v1"),
		GigaChatAuthorizationKey: getEnv("GIGACHAT_AUTHORIZATION_KEY", ""),
		GigaChatScope:            getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
		GigaChatModel:            getEnv("GIGACHAT_MODEL", "GigaChat"),
		GigaChatModelVersion:     getEnv("GIGACHAT_MODEL_VERSION", "GigaChat-v1.0"),
		GigaChatInsecureTLS:      getBoolEnv("GIGACHAT_INSECURE_TLS", false),
		GigaChatTokenTTL:         getDuration("GIGACHAT_TOKEN_TTL", 25*time.Minute),
		GigaChatTokenStore:       getEnv("GIGACHAT_TOKEN_STORE", "memory"),
		GigaChatConnectTimeout:   getDuration("GIGACHAT_CONNECT_TIMEOUT", 5*time.Second),
		AnalysisTimeout:          getDuration("ANALYSIS_TIMEOUT", 20*time.Second),

		MediaRoot:     getEnv("MEDIA_ROOT", "./media"),
		MaxUploadSize: getInt64Env("MAX_UPLOAD_SIZE_BYTES", 50*1024*1024),

		TesseractPath: getEnv("TESSERACT_PATH", "tesseract"),
		OCRLanguages:  getEnv("OCR_LANGUAGES", "rus+eng"),

		TerminologyCatalogPath: getEnv("TERMINOLOGY_CATALOG_PATH", ""),
		PromptsSeedPath:        getEnv("PROMPTS_SEED_PATH", ""),
		RedactionRulesPath:     getEnv("REDACTION_RULES_PATH", ""),
		RedactionEnabled:       getBoolEnv("REDACTION_ENABLED", true),

		DashboardCacheTTL: getDuration("DASHBOARD_CACHE_TTL", time.Minute),

		AnalysisRateLimit: getFloatEnv("ANALYSIS_RATE_LIMIT", 2),
		AnalysisRateBurst: getIntEnv("ANALYSIS_RATE_BURST", 10),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
