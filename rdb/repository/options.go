package repository

import (
	"github.com/hatlonely/rdbx/log/logger"
	"github.com/hatlonely/rdbx/rdb/batch"
	"github.com/hatlonely/rdbx/rdb/database"
	"github.com/hatlonely/rdbx/rdb/mapping"
	"github.com/hatlonely/rdbx/rdb/query"
	"github.com/hatlonely/rdbx/rdb/schema"
)

// Persistency 连接的持有方式
type Persistency string

const (
	// PerCall 每次调用从连接池取一个连接，调用结束归还，可以并发使用
	PerCall Persistency = "perCall"
	// Instance 构造时取一个连接一直持有到 Close，不能并发使用
	Instance Persistency = "instance"
)

const (
	SchemaProviderNative = "native"
	SchemaProviderGorm   = "gorm"
	SchemaProviderNone   = "none"
)

type Options struct {
	Database *database.Options `cfg:"database" validate:"required"`

	// Table 表名，为空时使用实体声明的表名
	Table string `cfg:"table"`

	Persistency Persistency `cfg:"persistency" def:"perCall" validate:"oneof=perCall instance"`
	BatchSize   int         `cfg:"batchSize" def:"0" validate:"gte=0"`

	// SchemaProvider 表结构来源：native 查询系统表，gorm 使用 gorm Migrator，none 直接使用实体字段
	SchemaProvider string                        `cfg:"schemaProvider" def:"native" validate:"oneof=native gorm none"`
	SchemaCache    *schema.CachedProviderOptions `cfg:"schemaCache"`

	// Logger 为空时使用默认日志器
	Logger *logger.SLogOptions `cfg:"logger"`

	// Observer 为空时不记录语句级的指标、日志和追踪
	Observer *database.ObservableOptions `cfg:"observer"`
}

type settings struct {
	table       string
	persistency Persistency
	batchSize   int
	provider    schema.Provider
	providerSet bool
	cache       *mapping.Cache
	logger      logger.Logger
	observer    *database.ObservableOptions
	progress    batch.ProgressFunc
}

type Option func(*settings)

func WithTable(table string) Option {
	return func(s *settings) {
		s.table = table
	}
}

func WithPersistency(p Persistency) Option {
	return func(s *settings) {
		s.persistency = p
	}
}

// WithBatchSize 批量操作未指定批大小时使用的默认值，0 表示全部实体一个批次
func WithBatchSize(size int) Option {
	return func(s *settings) {
		s.batchSize = size
	}
}

// WithSchemaProvider 替换表结构来源，nil 表示不查询表结构
func WithSchemaProvider(p schema.Provider) Option {
	return func(s *settings) {
		s.provider = p
		s.providerSet = true
	}
}

func WithCache(c *mapping.Cache) Option {
	return func(s *settings) {
		s.cache = c
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithObserver 为每条语句记录指标、日志和追踪
func WithObserver(options *database.ObservableOptions) Option {
	return func(s *settings) {
		s.observer = options
	}
}

// WithProgress 批量操作每完成一批回调一次
func WithProgress(fn batch.ProgressFunc) Option {
	return func(s *settings) {
		s.progress = fn
	}
}

// QueryOption 查询选项
type QueryOption func(*queryOptions)

type queryOptions struct {
	orderBy []query.OrderField
	top     int
	page    *query.Page
	hints   []string
	fields  []string
}

func OrderBy(fields ...query.OrderField) QueryOption {
	return func(o *queryOptions) {
		o.orderBy = append(o.orderBy, fields...)
	}
}

// Top 最多返回 n 行，与分页同时指定时取较小值
func Top(n int) QueryOption {
	return func(o *queryOptions) {
		o.top = n
	}
}

// Page 第 index 页（从 0 开始），每页 size 行
func Page(index, size int) QueryOption {
	return func(o *queryOptions) {
		o.page = &query.Page{Index: index, Size: size}
	}
}

// Hints 方言相关的查询提示，例如 sqlserver 的 NOLOCK
func Hints(hints ...string) QueryOption {
	return func(o *queryOptions) {
		o.hints = append(o.hints, hints...)
	}
}

// Fields 只查询指定的列
func Fields(fields ...string) QueryOption {
	return func(o *queryOptions) {
		o.fields = append(o.fields, fields...)
	}
}

// WriteOption 写入选项
type WriteOption func(*writeOptions)

type writeOptions struct {
	hints []string
}

// WriteHints 方言相关的写入提示，例如 sqlserver 的 TABLOCK、HOLDLOCK
// 原样拼在表名之后的提示（sqlite 的 INDEXED BY、mysql 的 USE INDEX）不会用在 INSERT 的目标表上
func WriteHints(hints ...string) WriteOption {
	return func(o *writeOptions) {
		o.hints = append(o.hints, hints...)
	}
}

func newWriteOptions(opts []WriteOption) *writeOptions {
	o := &writeOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func newQueryOptions(opts []QueryOption) *queryOptions {
	o := &queryOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
