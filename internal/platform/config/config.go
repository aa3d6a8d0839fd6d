package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr           string
	DatabaseURL    string
	Redis          RedisConfig
	BusinessTZ     string
	JWTSigningKey  string
	JWTIssuer      string
	JWTAudience    string
	Profile        ProfileConfig
	TransitionCron string
}

// RedisConfig configures the optional Redis connection.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ProfileConfig configures the profile-directory collaborator.
type ProfileConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := getenv("JWT_SIGNING_KEY", "")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          getenv("QUIZDECK_ADDR", ":8080"),
		DatabaseURL:   getenv("QUIZDECK_DATABASE_URL", ""),
		BusinessTZ:    getenv("QUIZDECK_BUSINESS_TZ", "Asia/Seoul"),
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     getenv("QUIZDECK_JWT_ISSUER", "quizdeck"),
		JWTAudience:   getenv("QUIZDECK_JWT_AUDIENCE", "quizdeck-api"),
		// Business-midnight in the configured timezone; the cron engine runs
		// in that location, so "0 0 * * *" means local midnight there.
		TransitionCron: getenv("QUIZDECK_TRANSITION_CRON", "0 0 * * *"),
		Redis: RedisConfig{
			URL:          getenv("QUIZDECK_REDIS_URL", ""),
			PoolSize:     getint("QUIZDECK_REDIS_POOL_SIZE", 10),
			MinIdleConns: getint("QUIZDECK_REDIS_MIN_IDLE", 2),
			DialTimeout:  getduration("QUIZDECK_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getduration("QUIZDECK_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getduration("QUIZDECK_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Profile: ProfileConfig{
			BaseURL:  getenv("QUIZDECK_PROFILE_URL", ""),
			Timeout:  getduration("QUIZDECK_PROFILE_TIMEOUT", 2*time.Second),
			CacheTTL: getduration("QUIZDECK_PROFILE_CACHE_TTL", 10*time.Minute),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
