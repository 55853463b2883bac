package db

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"CrateFM/config"
)

var (
	gormDB   *gorm.DB
	gormOnce sync.Once
	gormErr  error
)

// ConnectGormDB 建立 GORM 数据库连接。
// 连接按进程缓存：重复调用返回同一个连接而不会重新打开，
// 并发首次调用由 sync.Once 保证不会竞争出多个连接。
func ConnectGormDB(cfg *config.Config) (*gorm.DB, error) {
	gormOnce.Do(func() {
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

		db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
			// 禁用外键约束，songIds 与 playlist_id 的一致性由上层协议维护
			DisableForeignKeyConstraintWhenMigrating: true,
		})
		if err != nil {
			gormErr = fmt.Errorf("failed to connect database with GORM: %w", err)
			return
		}

		sqlDB, err := db.DB()
		if err != nil {
			gormErr = fmt.Errorf("failed to get underlying sql.DB: %w", err)
			return
		}

		// 设置连接池参数
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)

		gormDB = db
	})
	return gormDB, gormErr
}

// CloseGormDB 关闭 GORM 数据库连接
func CloseGormDB() error {
	if gormDB == nil {
		return nil
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
