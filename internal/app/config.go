package app

import (
	"github.com/yungbote/memstream-backend/internal/platform/envutil"
)

type Config struct {
	Port    string
	LogMode string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	VectorProvider string

	PGQIntakeEnabled bool
}

func LoadConfig() Config {
	return Config{
		Port:    envutil.Str("PORT", "8080"),
		LogMode: envutil.Str("LOG_MODE", "development"),

		RedisAddr:     envutil.Str("REDIS_ADDR", "localhost:6379"),
		RedisPassword: envutil.Str("REDIS_PASSWORD", ""),
		RedisDB:       envutil.Int("REDIS_DB", 0),

		VectorProvider: envutil.Str("VECTOR_PROVIDER", "pinecone"),

		PGQIntakeEnabled: envutil.Bool("PGQ_INTAKE_ENABLED", false),
	}
}
