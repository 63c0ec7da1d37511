package schema

import (
	"context"
	"strings"
	"time"

	"github.com/coocood/freecache"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

type CachedProviderOptions struct {
	Size int           `cfg:"size" def:"1048576"`
	TTL  time.Duration `cfg:"ttl"`
}

// CachedProvider 在 Provider 前加一层 freecache 缓存，列信息以 msgpack 编码存储
type CachedProvider struct {
	provider Provider
	cache    *freecache.Cache
	ttl      time.Duration
}

func NewCachedProviderWithOptions(provider Provider, options *CachedProviderOptions) (*CachedProvider, error) {
	if provider == nil {
		return nil, errors.New("provider is required")
	}
	if options == nil {
		options = &CachedProviderOptions{}
	}
	size := options.Size
	if size <= 0 {
		size = 1024 * 1024
	}
	return &CachedProvider{
		provider: provider,
		cache:    freecache.NewCache(size),
		ttl:      options.TTL,
	}, nil
}

func (p *CachedProvider) GetColumns(ctx context.Context, table string) ([]Column, error) {
	key := []byte(strings.ToLower(table))
	if buf, err := p.cache.Get(key); err == nil {
		var columns []Column
		if err := msgpack.Unmarshal(buf, &columns); err == nil {
			return columns, nil
		}
	}

	columns, err := p.provider.GetColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	// 查不到表结构时不缓存，建表后可以重新获取
	if len(columns) == 0 {
		return columns, nil
	}

	buf, err := msgpack.Marshal(columns)
	if err != nil {
		return nil, errors.Wrap(err, "msgpack marshal columns")
	}
	if err := p.cache.Set(key, buf, int(p.ttl.Seconds())); err != nil {
		return nil, errors.Wrapf(err, "cache columns of %s", table)
	}
	return columns, nil
}

func (p *CachedProvider) Reset() {
	p.cache.Clear()
}

func (p *CachedProvider) Len() int64 {
	return p.cache.EntryCount()
}
