package mapping

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/hatlonely/rdbx/rdb/schema"
	"golang.org/x/sync/singleflight"
)

type cacheKey struct {
	t     reflect.Type
	table string
}

// Cache 缓存 (实体类型, 表) 到 Descriptor 的映射
// 命中时只有一次 sync.Map 读取；未命中时同一个 key 只构建一次，并发的调用方等待同一个结果
type Cache struct {
	models  sync.Map // reflect.Type -> *Model
	entries sync.Map // cacheKey -> *Descriptor
	group   singleflight.Group
}

func NewCache() *Cache {
	return &Cache{}
}

var defaultCache = NewCache()

// Default 进程级共享的缓存
func Default() *Cache {
	return defaultCache
}

// Model 获取实体类型的解析结果
func (c *Cache) Model(t reflect.Type) (*Model, error) {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if m, ok := c.models.Load(t); ok {
		return m.(*Model), nil
	}
	m, err := ParseModel(t)
	if err != nil {
		return nil, err
	}
	actual, _ := c.models.LoadOrStore(t, m)
	return actual.(*Model), nil
}

// Get 获取映射，table 为空时使用实体声明的表名，provider 为空时使用实体的全部字段
func (c *Cache) Get(ctx context.Context, t reflect.Type, table string, provider schema.Provider) (*Descriptor, error) {
	model, err := c.Model(t)
	if err != nil {
		return nil, err
	}
	if table == "" {
		table = model.Table
	}

	key := cacheKey{t: model.Type, table: strings.ToLower(table)}
	if d, ok := c.entries.Load(key); ok {
		return d.(*Descriptor), nil
	}

	v, err, _ := c.group.Do(fmt.Sprintf("%p|%s", model.Type, key.table), func() (any, error) {
		if d, ok := c.entries.Load(key); ok {
			return d, nil
		}
		var columns []schema.Column
		if provider != nil {
			var err error
			if columns, err = provider.GetColumns(ctx, table); err != nil {
				return nil, err
			}
		}
		d, err := Build(model, table, columns)
		if err != nil {
			return nil, err
		}
		c.entries.Store(key, d)
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Descriptor), nil
}

// Reset 清空全部缓存
func (c *Cache) Reset() {
	c.entries.Clear()
	c.models.Clear()
}

func (c *Cache) Len() int {
	var n int
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
