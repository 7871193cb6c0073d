package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DSN        string
	HTTPPort   string
	FilterWord string

	KafkaBrokers []string
	KafkaGroupID string
	KafkaTopic   string

	APIKey      string
	GeminiModel string
	LLMTimeout  time.Duration

	WAToken     string
	WAPhoneID   string
	WABridgeURL string
	WAAPIBase   string

	DefaultCountry string
	SeedDemo       bool
	SessionTTL     time.Duration

	AuditBatchSize     int
	AuditTimeout       time.Duration
	AuditWorkers       int
	OutboxPollInterval time.Duration
}

func LoadConfig() *Config {
	apiKey := getEnv("API_KEY", "")
	if apiKey == "" {
		apiKey = getEnv("GEMINI_API_KEY", "")
	}
	return &Config{
		DSN:                getEnv("APP_DSN", ""),
		HTTPPort:           getEnv("APP_PORT", "9000"),
		FilterWord:         getEnv("APP_FILTER", ""),
		KafkaBrokers:       splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "audit-group"),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "cod-audit"),
		APIKey:             apiKey,
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-3-flash-preview"),
		LLMTimeout:         getDuration("LLM_TIMEOUT", 30*time.Second),
		WAToken:            getEnv("WA_TOKEN", ""),
		WAPhoneID:          getEnv("WA_PHONE_ID", ""),
		WABridgeURL:        getEnv("WA_BRIDGE_URL", "http://localhost:3001/send"),
		WAAPIBase:          getEnv("WA_API_BASE", "https://graph.facebook.com/v18.0"),
		DefaultCountry:     getEnv("DEFAULT_COUNTRY", "Morocco"),
		SeedDemo:           getBool("SEED_DEMO", true),
		SessionTTL:         getDuration("SESSION_TTL", 30*time.Minute),
		AuditBatchSize:     getInt("AUDIT_BATCH_SIZE", 5),
		AuditTimeout:       getDuration("AUDIT_TIMEOUT", 500*time.Millisecond),
		AuditWorkers:       getInt("AUDIT_WORKERS", 2),
		OutboxPollInterval: getDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
	}
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("config: bad %s=%q, using %s", key, raw, defaultVal)
		return defaultVal
	}
	return d
}

func getInt(key string, defaultVal int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("config: bad %s=%q, using %d", key, raw, defaultVal)
		return defaultVal
	}
	return n
}

func getBool(key string, defaultVal bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config: bad %s=%q, using %t", key, raw, defaultVal)
		return defaultVal
	}
	return b
}

func splitList(s string) []string {
	var res []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, part)
		}
	}
	return res
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%s", c.HTTPPort)
}

// CloudCredentials reports whether both the token and the phone number id are set.
func (c *Config) CloudCredentials() bool {
	return c.WAToken != "" && c.WAPhoneID != ""
}
