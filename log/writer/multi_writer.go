package writer

import (
	"github.com/pkg/errors"
)

// MultiWriter 同时写入多个输出器
type MultiWriter struct {
	writers []Writer
}

func NewMultiWriterWithOptions(options []*Options) (*MultiWriter, error) {
	if len(options) == 0 {
		return nil, errors.New("at least one writer is required")
	}

	writers := make([]Writer, 0, len(options))
	for i, o := range options {
		w, err := NewWriterWithOptions(o)
		if err != nil {
			for _, created := range writers {
				_ = created.Close()
			}
			return nil, errors.WithMessagef(err, "failed to create writer %d", i)
		}
		writers = append(writers, w)
	}
	return &MultiWriter{writers: writers}, nil
}

// NewMultiWriter 从已有的输出器创建
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write 依次写入所有输出器，任何一个失败立即返回
func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for i, w := range m.writers {
		if _, err := w.Write(p); err != nil {
			return 0, errors.WithMessagef(err, "writer %d failed", i)
		}
	}
	return len(p), nil
}

// Close 关闭所有输出器，返回最后一个错误
func (m *MultiWriter) Close() error {
	var lastErr error
	for i, w := range m.writers {
		if err := w.Close(); err != nil {
			lastErr = errors.WithMessagef(err, "failed to close writer %d", i)
		}
	}
	return lastErr
}
