package schema

import (
	"context"
	"strings"
)

// Column 数据库表中的一列
type Column struct {
	Name       string `msgpack:"name"`
	DBType     string `msgpack:"dbType"`
	Nullable   bool   `msgpack:"nullable"`
	PrimaryKey bool   `msgpack:"primaryKey"`
	Identity   bool   `msgpack:"identity"`
}

// Provider 表结构查询接口
type Provider interface {
	GetColumns(ctx context.Context, table string) ([]Column, error)
}

// ProviderFunc 函数适配 Provider
type ProviderFunc func(ctx context.Context, table string) ([]Column, error)

func (f ProviderFunc) GetColumns(ctx context.Context, table string) ([]Column, error) {
	return f(ctx, table)
}

// StaticProvider 固定表结构，用于测试或无法查询元数据的场景
type StaticProvider map[string][]Column

func (p StaticProvider) GetColumns(ctx context.Context, table string) ([]Column, error) {
	if columns, ok := p[table]; ok {
		return columns, nil
	}
	for name, columns := range p {
		if strings.EqualFold(name, table) {
			return columns, nil
		}
	}
	return nil, nil
}
