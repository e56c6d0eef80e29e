package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

var (
	// Logger 默认的全局日志实例，应用中其他地方可以直接使用
	Logger = zlog.Logger
)

// Config 日志配置结构体
type Config struct {
	Level        string `json:"level" yaml:"level"`                 // debug, info, warn, error
	Format       string `json:"format" yaml:"format"`               // json 或 pretty
	TimeFormat   string `json:"time_format" yaml:"time_format"`     // 时间戳格式
	ReportCaller bool   `json:"report_caller" yaml:"report_caller"` // 是否记录调用位置
	// FilePath 非空时同时写入该文件
	FilePath string `json:"file_path" yaml:"file_path"`
	// Output 为测试预留，非空时替代标准输出
	Output io.Writer `json:"-" yaml:"-"`
}

// Init 初始化日志系统。返回的 closer 用于关闭日志文件，没有文件时为空操作
func Init(config Config) (io.Closer, error) {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if config.TimeFormat == "" {
		zerolog.TimeFieldFormat = time.RFC3339
	} else {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	var out io.Writer = os.Stdout
	if config.Output != nil {
		out = config.Output
	}
	if config.Format == "pretty" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: config.TimeFormat,
			NoColor:    config.Output != nil,
		}
	}

	var closer io.Closer = nopCloser{}
	if config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
		f, err := os.OpenFile(config.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("无法打开日志文件 %s: %w", config.FilePath, err)
		}
		out = zerolog.MultiLevelWriter(out, f)
		closer = f
	}

	ctxLogger := zerolog.New(out).Level(level).With().Timestamp()
	if config.ReportCaller {
		ctxLogger = ctxLogger.Caller()
	}

	Logger = ctxLogger.Logger()
	zlog.Logger = Logger
	return closer, nil
}

// SetupHertz 让 Hertz 的 hlog 输出到同一个 zerolog 实例
func SetupHertz() {
	glog.SetLogger(hertzadapter.From(Logger))
	glog.SetLevel(hertzLevel(Logger.GetLevel()))
}

func hertzLevel(level zerolog.Level) glog.Level {
	switch level {
	case zerolog.TraceLevel:
		return glog.LevelTrace
	case zerolog.DebugLevel:
		return glog.LevelDebug
	case zerolog.WarnLevel:
		return glog.LevelWarn
	case zerolog.ErrorLevel:
		return glog.LevelError
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return glog.LevelFatal
	default:
		return glog.LevelInfo
	}
}

// StdLogger 返回写入全局 zerolog 的标准库 *log.Logger，供只接受 *log.Logger 的组件使用
func StdLogger(component string) *log.Logger {
	l := Logger.With().Str("component", component).Logger()
	return log.New(l, "", 0)
}

// Debug 开始一条调试级别的日志事件
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Info 开始一条信息级别的日志事件
func Info() *zerolog.Event {
	return Logger.Info()
}

// Warn 开始一条警告级别的日志事件
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Error 开始一条错误级别的日志事件
func Error() *zerolog.Event {
	return Logger.Error()
}

// Fatal 记录后程序将退出
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}

// Ctx 从上下文中获取日志记录器，没有时返回全局实例
func Ctx(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &Logger
}

// WithContext 将全局日志记录器放入上下文
func WithContext(ctx context.Context) context.Context {
	return Logger.WithContext(ctx)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
