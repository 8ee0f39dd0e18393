package utils

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// DBOptions Postgres 连接参数
type DBOptions struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowThreshold   time.Duration // 超过该耗时的 SQL 记为慢查询
}

// QueryLogger GORM 日志：关系表的读未命中很常见，只保留慢查询和真实错误
type QueryLogger struct {
	SlowThreshold time.Duration
}

func (l *QueryLogger) LogMode(logger.LogLevel) logger.Interface {
	return l
}

func (l *QueryLogger) Info(context.Context, string, ...interface{}) {}

func (l *QueryLogger) Warn(context.Context, string, ...interface{}) {}

func (l *QueryLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if msg != gorm.ErrRecordNotFound.Error() {
		log.Printf("[ERROR] gorm: "+msg, data...)
	}
}

func (l *QueryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		log.Printf("[ERROR] sql failed after %v (rows: %d): %v | %s", elapsed, rows, err, sql)
	case l.SlowThreshold > 0 && elapsed >= l.SlowThreshold:
		sql, rows := fc()
		log.Printf("[WARN] slow sql %v (rows: %d) | %s", elapsed, rows, sql)
	}
}

// InitDB 连接 Postgres；唯一约束冲突翻译为 gorm.ErrDuplicatedKey
func InitDB(opts DBOptions) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
		Logger:         &QueryLogger{SlowThreshold: opts.SlowThreshold},
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	DB = db
	log.Printf("✅ Postgres connected (max open: %d, slow sql: %v)", opts.MaxOpenConns, opts.SlowThreshold)
	return db, nil
}

// CloseDB 未初始化时直接返回
func CloseDB() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
