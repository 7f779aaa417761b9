package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	HTTPAddr string
	GRPCAddr string

	RedisAddr string
	RedisPass string

	KafkaBrokers []string
	KafkaTopic   string

	BankName        string
	DefaultCurrency string

	JWTPublicKeyPath string
	JWTIssuer        string
	JWTAudience      string
	JWTRotatedKeys   map[string]string

	SignedPathPrefixes  []string
	SignatureMaxSkew    time.Duration
	TransferMaxAttempts int

	RateLimit          int
	CORSAllowedOrigins []string
}

func Load() AppConfig {
	return AppConfig{
		HTTPAddr: getEnv("HTTP_ADDR", ":8000"),
		GRPCAddr: getEnv("GRPC_ADDR", ":8001"),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		RedisPass: getEnv("REDIS_PASS", ""),

		KafkaBrokers: getEnvSlice("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "bank.transfers"),

		BankName:        getEnv("BANK_NAME", "Secure Cipher Bank"),
		DefaultCurrency: getEnv("DEFAULT_CURRENCY", "NGN"),

		JWTPublicKeyPath: getEnv("JWT_PUBLIC_KEY_PATH", "secrets/jwt_public.pem"),
		JWTIssuer:        getEnv("JWT_ISSUER", ""),
		JWTAudience:      getEnv("JWT_AUDIENCE", ""),
		JWTRotatedKeys:   getEnvMap("JWT_ROTATED_KEYS"),

		SignedPathPrefixes:  getEnvSlice("SIGNED_PATH_PREFIXES", nil),
		SignatureMaxSkew:    getEnvDuration("SIGNATURE_MAX_SKEW", 0),
		TransferMaxAttempts: getEnvInt("TRANSFER_MAX_ATTEMPTS", 3),

		RateLimit:          getEnvInt("RATE_LIMIT", 100),
		CORSAllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvMap reads "k1=v1,k2=v2". Entries without "=" are ignored.
func getEnvMap(key string) map[string]string {
	out := map[string]string{}
	for _, pair := range getEnvSlice(key, nil) {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if ok && k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// bare numbers are seconds
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
