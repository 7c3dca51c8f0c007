// Package logger 提供统一的日志框架
package logger

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

// Config 日志配置
type Config struct {
	Level      string `json:"level"`
	Format     string `json:"format"` // json/console
	Output     string `json:"output"` // stdout/stderr/file
	FilePath   string `json:"file_path,omitempty"`
	TimeFormat string `json:"time_format,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// Init 初始化日志器
func Init(cfg Config) {
	once.Do(func() {
		zerolog.SetGlobalLevel(parseLevel(cfg.Level))

		var output io.Writer
		switch cfg.Output {
		case "stderr":
			output = os.Stderr
		case "file":
			output = os.Stdout
			if cfg.FilePath != "" {
				if f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
					output = f
				}
			}
		default:
			output = os.Stdout
		}

		if cfg.Format == "console" {
			output = zerolog.ConsoleWriter{
				Out:        output,
				TimeFormat: cfg.TimeFormat,
			}
		}

		logger = zerolog.New(output).With().Timestamp().Logger()
	})
}

// parseLevel 解析日志级别
func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get 获取日志器
func Get() *zerolog.Logger {
	if logger.GetLevel() == zerolog.Disabled {
		Init(DefaultConfig())
	}
	return &logger
}

// WithContext 从上下文创建日志器
func WithContext(ctx context.Context) *zerolog.Logger {
	l := Get().With().Logger()
	if reqID, ok := ctx.Value("request_id").(string); ok {
		l = l.With().Str("request_id", reqID).Logger()
	}
	return &l
}

// Debug 记录调试日志
func Debug() *zerolog.Event {
	return Get().Debug()
}

// Info 记录信息日志
func Info() *zerolog.Event {
	return Get().Info()
}

// Warn 记录警告日志
func Warn() *zerolog.Event {
	return Get().Warn()
}

// Error 记录错误日志
func Error() *zerolog.Event {
	return Get().Error()
}

// Fatal 记录致命错误日志
func Fatal() *zerolog.Event {
	return Get().Fatal()
}

// WithError 添加错误信息
func WithError(err error) *zerolog.Event {
	return Get().Error().Err(err)
}

// SolveLogger 求解引擎专用日志器
type SolveLogger struct {
	base *zerolog.Logger
}

// NewSolveLogger 创建求解引擎日志器
func NewSolveLogger() *SolveLogger {
	l := Get().With().Str("component", "scheduler").Logger()
	return &SolveLogger{base: &l}
}

// StartSolve 记录求解开始
func (l *SolveLogger) StartSolve(employees, days, duties int) {
	l.base.Info().
		Int("employees", employees).
		Int("days", days).
		Int("duties", duties).
		Msg("开始生成值班表")
}

// Attempt 记录单层级求解尝试的归类结果
func (l *SolveLogger) Attempt(level int, outcome string, duration time.Duration) {
	l.base.Info().
		Int("relax_level", level).
		Str("outcome", outcome).
		Dur("duration", duration).
		Msg("求解尝试")
}

// Relaxed 记录缓和动作
func (l *SolveLogger) Relaxed(level int, note string) {
	l.base.Warn().
		Int("relax_level", level).
		Str("note", note).
		Msg("约束缓和")
}

// SolveComplete 记录求解完成
func (l *SolveLogger) SolveComplete(level int, objective int64, duration time.Duration) {
	l.base.Info().
		Int("relax_level", level).
		Int64("objective", objective).
		Dur("duration", duration).
		Msg("值班表生成完成")
}

// SolveFailed 记录终态失败
func (l *SolveLogger) SolveFailed(reason string, duration time.Duration) {
	l.base.Error().
		Str("reason", reason).
		Dur("duration", duration).
		Msg("值班表生成失败")
}
