package db

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	DB      *gorm.DB
	once    sync.Once
	initErr error
)

type Config struct {
	User      string
	Password  string
	Host      string
	Port      string
	DBName    string
	Charset   string // optional
	Loc       string // optional
	ParseTime bool   // optional

	// 连接池，0 取默认值
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

func NewConfig(user, password, host, port, dbName string) Config {
	return Config{
		User:      user,
		Password:  password,
		Host:      host,
		Port:      port,
		DBName:    dbName,
		Charset:   "utf8mb4",
		Loc:       "Local",
		ParseTime: true,

		MaxIdleConns:    4,
		MaxOpenConns:    16,
		ConnMaxLifetime: time.Hour,
	}
}

func (cfg Config) pool() (idle, open int, lifetime time.Duration) {
	idle, open, lifetime = cfg.MaxIdleConns, cfg.MaxOpenConns, cfg.ConnMaxLifetime
	if idle <= 0 {
		idle = 4
	}
	if open <= 0 {
		open = 16
	}
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	return idle, open, lifetime
}

func (cfg Config) DSN() string {
	charset := cfg.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	loc := cfg.Loc
	if loc == "" {
		loc = "Local"
	}
	addr := cfg.Host
	if cfg.Port != "" {
		addr = fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	}
	return fmt.Sprintf(
		"%s:%s@tcp(%s)/%s?charset=%s&parseTime=%t&loc=%s",
		cfg.User, cfg.Password, addr, cfg.DBName, charset, cfg.ParseTime, loc,
	)
}

// Init 只初始化一次，后续调用返回同一个连接；models 非空时自动建表。
func Init(cfg Config, models ...any) (*gorm.DB, error) {
	once.Do(func() {
		DB, initErr = gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if initErr != nil {
			initErr = fmt.Errorf("failed to connect to database: %w", initErr)
			return
		}

		sqlDB, dbErr := DB.DB()
		if dbErr != nil {
			initErr = dbErr
			return
		}
		idle, open, lifetime := cfg.pool()
		sqlDB.SetMaxIdleConns(idle)
		sqlDB.SetMaxOpenConns(open)
		sqlDB.SetConnMaxLifetime(lifetime)
		if initErr = sqlDB.Ping(); initErr != nil {
			initErr = fmt.Errorf("ping database %s: %w", cfg.DBName, initErr)
			return
		}

		if len(models) > 0 {
			initErr = DB.AutoMigrate(models...)
		}
	})
	return DB, initErr
}
