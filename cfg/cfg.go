// Package cfg 从 yaml/json/toml/ini 文件加载选项结构体
//
// 加载分三步：按格式解码为通用 map，再按 cfg tag 转换到目标结构体，
// 最后补齐 def tag 默认值并执行 validate tag 校验。
package cfg

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

type Format string

const (
	YAML Format = "yaml"
	JSON Format = "json"
	TOML Format = "toml"
	INI  Format = "ini"
)

// FormatOf 根据文件扩展名判断格式
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".json":
		return JSON, nil
	case ".toml":
		return TOML, nil
	case ".ini":
		return INI, nil
	}
	return "", errors.Errorf("unsupported config file extension %q", filepath.Ext(path))
}

// LoadFile 读取配置文件并填充 v，v 必须是结构体指针
func LoadFile(path string, v any) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config file %s", path)
	}
	return errors.WithMessagef(Unmarshal(data, format, v), "load config file %s", path)
}

// Unmarshal 按指定格式解析 data 并填充 v
func Unmarshal(data []byte, format Format, v any) error {
	src, err := decode(data, format)
	if err != nil {
		return err
	}
	return Decode(src, v)
}

// Decode 把已解析的通用数据转换到 v，随后设置默认值并校验
func Decode(src any, v any) error {
	if err := ConvertTo(src, v); err != nil {
		return err
	}
	if err := SetDefaults(v); err != nil {
		return errors.WithMessage(err, "set defaults failed")
	}
	return errors.WithMessage(Validate(v), "validate failed")
}
