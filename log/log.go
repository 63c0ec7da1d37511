package log

import (
	"github.com/hatlonely/rdbx/log/logger"
)

var defaultLogger logger.Logger

func init() {
	// 默认向终端输出 text 格式日志
	l, err := logger.NewSLogWithOptions(&logger.SLogOptions{
		Level:  "info",
		Format: "text",
	})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger = l
}

func Default() logger.Logger {
	return defaultLogger
}

// SetDefault 替换默认日志器，nil 时不做任何事
func SetDefault(l logger.Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// NewLoggerWithOptions options 为 nil 时返回默认日志器
func NewLoggerWithOptions(options *logger.SLogOptions) (logger.Logger, error) {
	if options == nil {
		return Default(), nil
	}
	return logger.NewSLogWithOptions(options)
}
