package writer

import (
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Writer 日志输出器接口
type Writer interface {
	io.Writer
	io.Closer
}

// Options 输出器配置，Type 决定使用哪一项子配置
type Options struct {
	// Type 输出类型：console, file, multi
	Type    string                `cfg:"type" def:"console" validate:"omitempty,oneof=console file multi"`
	Console *ConsoleWriterOptions `cfg:"console"`
	File    *FileWriterOptions    `cfg:"file"`
	Writers []*Options            `cfg:"writers"`
}

// NewWriterWithOptions 按类型创建输出器，options 为 nil 时输出到标准输出
func NewWriterWithOptions(options *Options) (Writer, error) {
	if options == nil {
		return NewConsoleWriterWithOptions(nil)
	}
	switch strings.ToLower(options.Type) {
	case "", "console":
		return NewConsoleWriterWithOptions(options.Console)
	case "file":
		return NewFileWriterWithOptions(options.File)
	case "multi":
		return NewMultiWriterWithOptions(options.Writers)
	}
	return nil, errors.Errorf("unsupported writer type: %s", options.Type)
}
