package main

import (
	"log"
	"time"

	"barzo_social/config"
	"barzo_social/handler"
	"barzo_social/middleware"
	"barzo_social/store"
	"barzo_social/utils"
)

func init() {
	// 服务端统一使用 UTC
	time.Local = time.UTC
}

func main() {
	cfg := config.Load()

	st := openStore(cfg)
	defer utils.CloseDB()
	defer utils.CloseRedis()

	middleware.InitAuth(cfg.JWTSecret)

	hub := handler.NewHub(st, cfg.MaxConnectionsPerUser)
	defer hub.Close()

	r := handler.NewRouter(handler.RouterConfig{
		Store:       st,
		Hub:         hub,
		CORSOrigins: cfg.CORSOrigins,
	})

	log.Printf("🚀 barzo_social service starting on port %s (store: %s)", cfg.Port, cfg.StoreDriver)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// openStore 根据 STORE_DRIVER 选择存储实现
func openStore(cfg *config.Config) store.DataStore {
	if cfg.StoreDriver == "memory" {
		log.Println("[INFO] Using in-memory store, data is lost on restart")
		return store.NewMemoryStore()
	}

	db, err := utils.InitDB(utils.DBOptions{
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: 30 * time.Minute,
		SlowThreshold:   cfg.DBSlowQuery,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	rdb, err := utils.InitRedis(utils.RedisOptions{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	pg := store.NewPostgresStore(db, rdb)
	if cfg.AutoMigrate {
		if err := pg.AutoMigrate(); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}
	return pg
}
