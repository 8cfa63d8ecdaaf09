package logger

import (
	"os"
	"time"

	"tradectl/conf"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Field = zap.Field

var (
	log   = zap.NewNop()
	sugar = log.Sugar()
)

// InitLogger 按配置初始化全局日志，文件按大小切割
func InitLogger(cfg *conf.LogConfig, appName string) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeFormat)
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var cores []zapcore.Core
	if cfg.FileName != "" {
		writer := &lumberjack.Logger{
			Filename:   cfg.FileName,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  cfg.LocalTime,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(writer), level))
	}
	if cfg.Console || len(cores) == 0 {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stdout), level))
	}

	log = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("app", appName))
	sugar = log.Sugar()
}

// Named 返回带模块名的子 logger，给需要大量结构化字段的组件使用
func Named(name string) *zap.Logger {
	return log.Named(name)
}

func Pair(key string, val any) Field {
	return zap.Any(key, val)
}

func Debug(msg string, fields ...Field) { log.Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { log.Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { log.Warn(msg, fields...) }
func Error(msg string, fields ...Field) { log.Error(msg, fields...) }
func Fatal(msg string, fields ...Field) { log.Fatal(msg, fields...) }

func Debugf(template string, args ...any) { sugar.Debugf(template, args...) }
func Infof(template string, args ...any)  { sugar.Infof(template, args...) }
func Warnf(template string, args ...any)  { sugar.Warnf(template, args...) }
func Errorf(template string, args ...any) { sugar.Errorf(template, args...) }
func Fatalf(template string, args ...any) { sugar.Fatalf(template, args...) }

func Sync() {
	_ = log.Sync()
}
