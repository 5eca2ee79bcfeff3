// Package utils provides utilities that are used in all sub-packages of edgetunnel
package utils

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	Log_debug = iota
	Log_info
	Log_warning
	Log_error //error一般用于输出一些 连接错误或者客户端协议错误之类的, 但不致命
	Log_fatal

	DefaultLL = Log_info
)

// LogLevel 值越小越唠叨, 废话越多，值越大打印的越少，见log_开头的常量;
// 默认是 info级别.
var (
	LogLevel       int = DefaultLL
	LogOutFileName string
	ZapLogger      *zap.Logger
)

func init() {
	//在InitLog之前就可能有人打日志 (比如测试), 所以先给一个不输出的logger, 避免nil
	ZapLogger = zap.NewNop()
}

// InitLog 初始化 ZapLogger. 我们的loglevel就是zap的loglevel+1.
// 若 fn 不为空, 则同时输出到 fn 文件中, 文件由 lumberjack 负责切割.
func InitLog(fn string) {
	atomicLevel := zap.NewAtomicLevel()
	atomicLevel.SetLevel(zapcore.Level(LogLevel - 1))

	consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:  "msg",
		LevelKey:    "level",
		TimeKey:     "time",
		FunctionKey: "func",
		EncodeLevel: zapcore.CapitalColorLevelEncoder,
		EncodeTime:  zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
		EncodeName:  zapcore.FullNameEncoder,
		LineEnding:  zapcore.DefaultLineEnding,
	}), zapcore.AddSync(os.Stdout), atomicLevel)

	if fn == "" {
		ZapLogger = zap.New(consoleCore)
	} else {
		//文件里就不要颜色了
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			MessageKey:  "msg",
			LevelKey:    "level",
			TimeKey:     "time",
			EncodeLevel: zapcore.CapitalLevelEncoder,
			EncodeTime:  zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
			LineEnding:  zapcore.DefaultLineEnding,
		}), zapcore.AddSync(&lumberjack.Logger{
			Filename:   fn,
			MaxSize:    16, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
		}), atomicLevel)

		ZapLogger = zap.New(zapcore.NewTee(consoleCore, fileCore))
	}

	ZapLogger.Info("log 初始化成功")
}

func CanLogLevel(l int, msg string) *zapcore.CheckedEntry {
	return ZapLogger.Check(zapcore.Level(l-1), msg)

}

func canLogLevel(l zapcore.Level, msg string) *zapcore.CheckedEntry {
	return ZapLogger.Check(l, msg)

}

func CanLogErr(msg string) *zapcore.CheckedEntry {
	return canLogLevel(zap.ErrorLevel, msg)

}

func CanLogInfo(msg string) *zapcore.CheckedEntry {
	return canLogLevel(zap.InfoLevel, msg)

}
func CanLogWarn(msg string) *zapcore.CheckedEntry {
	return canLogLevel(zap.WarnLevel, msg)

}
func CanLogDebug(msg string) *zapcore.CheckedEntry {
	return canLogLevel(zap.DebugLevel, msg)

}

// Info 直接打印一条 info 日志.
func Info(msg string) {
	ZapLogger.Info(msg)
}
