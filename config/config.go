package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	StoreDriver   string // postgres | memory
	DatabaseURL   string
	AutoMigrate   bool

	DBMaxOpenConns int
	DBMaxIdleConns int
	DBSlowQuery    time.Duration

	RedisURL      string
	RedisPassword string
	RedisDB       int
	JWTSecret     string
	CORSOrigins   []string

	MaxConnectionsPerUser int // 每个用户最多 WebSocket 设备数
}

func Load() *Config {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	maxConns, _ := strconv.Atoi(getEnv("MAX_CONNECTIONS_PER_USER", "18"))
	autoMigrate, _ := strconv.ParseBool(getEnv("AUTO_MIGRATE", "true"))
	maxOpen, _ := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "100"))
	maxIdle, _ := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "20"))
	slowMS, _ := strconv.Atoi(getEnv("DB_SLOW_QUERY_MS", "100"))

	return &Config{
		Port:                  getEnv("PORT", "8080"),
		StoreDriver:           getEnv("STORE_DRIVER", "postgres"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		AutoMigrate:           autoMigrate,
		DBMaxOpenConns:        maxOpen,
		DBMaxIdleConns:        maxIdle,
		DBSlowQuery:           time.Duration(slowMS) * time.Millisecond,
		RedisURL:              getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		JWTSecret:             os.Getenv("JWT_SECRET"),
		CORSOrigins:           splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		MaxConnectionsPerUser: maxConns,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
