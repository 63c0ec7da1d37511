// Package repository 面向实体类型的数据访问入口
//
// Repository 把过滤条件归一化为条件树，编译为方言 SQL，在连接上执行并把结果映射回实体。
// 表结构映射通过 mapping.Cache 缓存，批量写入通过 batch.Planner 分批执行。
package repository

import (
	"context"
	"database/sql"
	"io"
	"reflect"

	"github.com/hatlonely/rdbx/cfg"
	"github.com/hatlonely/rdbx/log"
	"github.com/hatlonely/rdbx/log/logger"
	"github.com/hatlonely/rdbx/rdb/batch"
	"github.com/hatlonely/rdbx/rdb/database"
	"github.com/hatlonely/rdbx/rdb/dialect"
	"github.com/hatlonely/rdbx/rdb/mapping"
	"github.com/hatlonely/rdbx/rdb/schema"
	"github.com/hatlonely/rdbx/rdb/statement"
	"github.com/pkg/errors"
)

// Repository 实体 T 的仓储
// PerCall 模式可以在多个 goroutine 中共享；Instance 模式和事务中的仓储只能在一个 goroutine 中使用
type Repository[T any] struct {
	db          *database.DB
	dialect     dialect.Dialect
	compiler    *statement.Compiler
	cache       *mapping.Cache
	provider    schema.Provider
	table       string
	persistency Persistency
	batchSize   int
	logger      logger.Logger
	baseLogger  logger.Logger
	observer    *database.ObservableOptions
	progress    batch.ProgressFunc

	conn    *database.Conn
	tx      *database.Tx
	closers []io.Closer
}

// NewRepositoryWithOptions 按选项创建连接池、日志器和表结构来源，Close 时一并释放
func NewRepositoryWithOptions[T any](options *Options) (*Repository[T], error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	opts := *options
	if err := cfg.SetDefaults(&opts); err != nil {
		return nil, errors.WithMessage(err, "cfg.SetDefaults failed")
	}
	if err := cfg.Validate(&opts); err != nil {
		return nil, errors.Wrap(err, "invalid repository options")
	}

	var closers []io.Closer
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}

	l := log.Default()
	if opts.Logger != nil {
		sl, err := logger.NewSLogWithOptions(opts.Logger)
		if err != nil {
			return nil, errors.WithMessage(err, "logger.NewSLogWithOptions failed")
		}
		closers = append(closers, sl)
		l = sl
	}

	db, err := database.NewDBWithOptions(opts.Database)
	if err != nil {
		closeAll()
		return nil, errors.WithMessage(err, "database.NewDBWithOptions failed")
	}
	closers = append(closers, db)

	provider, err := newSchemaProvider(opts.SchemaProvider, db)
	if err != nil {
		closeAll()
		return nil, err
	}
	if provider != nil {
		if provider, err = schema.NewCachedProviderWithOptions(provider, opts.SchemaCache); err != nil {
			closeAll()
			return nil, errors.WithMessage(err, "schema.NewCachedProviderWithOptions failed")
		}
	}

	repo, err := NewRepository[T](db,
		WithTable(opts.Table),
		WithPersistency(opts.Persistency),
		WithBatchSize(opts.BatchSize),
		WithSchemaProvider(provider),
		WithLogger(l),
		WithObserver(opts.Observer),
	)
	if err != nil {
		closeAll()
		return nil, err
	}
	repo.closers = closers
	return repo, nil
}

func newSchemaProvider(kind string, db *database.DB) (schema.Provider, error) {
	switch kind {
	case SchemaProviderNone:
		return nil, nil
	case SchemaProviderGorm:
		p, err := schema.NewGormProvider(db.Dialect(), db.SQL())
		if err != nil {
			return nil, errors.WithMessage(err, "schema.NewGormProvider failed")
		}
		return p, nil
	default:
		p, err := schema.NewProvider(db.Dialect(), db.SQL())
		if err != nil {
			return nil, errors.WithMessage(err, "schema.NewProvider failed")
		}
		return p, nil
	}
}

// NewRepository 在已有的连接池上创建仓储，连接池由调用方关闭
// 未指定表结构来源时使用带缓存的系统表查询，方言不支持时直接使用实体字段
func NewRepository[T any](db *database.DB, opts ...Option) (*Repository[T], error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	s := &settings{persistency: PerCall}
	for _, opt := range opts {
		opt(s)
	}
	if s.persistency != PerCall && s.persistency != Instance {
		return nil, errors.Errorf("unknown persistency %q", s.persistency)
	}
	if s.batchSize < 0 {
		return nil, errors.Errorf("invalid batch size %d", s.batchSize)
	}
	if s.cache == nil {
		s.cache = mapping.Default()
	}
	if s.logger == nil {
		s.logger = log.Default()
	}

	d, err := dialect.New(db.Dialect())
	if err != nil {
		return nil, errors.WithMessage(err, "dialect.New failed")
	}
	if _, err := s.cache.Model(entityType[T]()); err != nil {
		return nil, err
	}

	if !s.providerSet {
		if p, err := schema.NewProvider(db.Dialect(), db.SQL()); err == nil {
			cached, _ := schema.NewCachedProviderWithOptions(p, nil)
			s.provider = cached
		}
	}

	r := &Repository[T]{
		db:          db,
		dialect:     d,
		compiler:    statement.NewCompiler(d),
		cache:       s.cache,
		provider:    s.provider,
		table:       s.table,
		persistency: s.persistency,
		batchSize:   s.batchSize,
		logger:      s.logger.WithGroup("repository"),
		baseLogger:  s.logger,
		observer:    s.observer,
		progress:    s.progress,
	}

	if r.persistency == Instance {
		conn, err := db.Open(context.Background())
		if err != nil {
			return nil, errors.WithMessage(err, "open instance connection failed")
		}
		r.conn = conn
	}
	return r, nil
}

func entityType[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Descriptor 实体与表的映射，首次调用时查询表结构
func (r *Repository[T]) Descriptor(ctx context.Context) (*mapping.Descriptor, error) {
	return r.cache.Get(ctx, entityType[T](), r.table, r.provider)
}

// DB 底层连接池
func (r *Repository[T]) DB() *database.DB {
	return r.db
}

// session 返回本次调用使用的会话，release 必须在调用结束时执行
func (r *Repository[T]) session(ctx context.Context) (database.Session, func(), error) {
	var s database.Session
	release := func() {}
	switch {
	case r.tx != nil:
		s = r.tx
	case r.conn != nil:
		s = r.conn
	default:
		conn, err := r.db.Open(ctx)
		if err != nil {
			return nil, nil, err
		}
		s = conn
		release = func() {
			if err := conn.Close(); err != nil {
				r.logger.WarnContext(ctx, "close connection failed", "error", err)
			}
		}
	}

	if r.observer != nil {
		obs, err := database.NewObservableSession(s, r.db.Dialect(), r.observer, r.baseLogger)
		if err != nil {
			release()
			return nil, nil, errors.WithMessage(err, "database.NewObservableSession failed")
		}
		s = obs
	}
	return s, release, nil
}

// WithTx 在事务中执行 fn，fn 返回 nil 时提交，返回错误或 panic 时回滚
// 已经在事务中时直接复用当前事务
func (r *Repository[T]) WithTx(ctx context.Context, fn func(tx *Repository[T]) error) (err error) {
	if r.tx != nil {
		return fn(r)
	}

	conn := r.conn
	if conn == nil {
		if conn, err = r.db.Open(ctx); err != nil {
			return err
		}
		defer func() {
			if cerr := conn.Close(); cerr != nil {
				r.logger.WarnContext(ctx, "close connection failed", "error", cerr)
			}
		}()
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	child := *r
	child.conn = nil
	child.tx = tx
	child.closers = nil

	defer func() {
		if p := recover(); p != nil {
			if rerr := tx.Rollback(); rerr != nil {
				r.logger.ErrorContext(ctx, "rollback after panic failed", "error", rerr)
			}
			panic(p)
		}
	}()

	if err := fn(&child); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			r.logger.ErrorContext(ctx, "rollback failed", "error", rerr)
		}
		return err
	}
	return tx.Commit()
}

// Migrate 按实体 tag 建表，表和索引已存在时跳过
func (r *Repository[T]) Migrate(ctx context.Context) error {
	model, err := r.cache.Model(entityType[T]())
	if err != nil {
		return err
	}
	table := r.table
	if table == "" {
		table = model.Table
	}

	s, release, err := r.session(ctx)
	if err != nil {
		return err
	}
	defer release()

	for _, text := range r.dialect.CreateTable(model, table) {
		c, err := r.compiler.Compile(&statement.Request{Kind: statement.Raw, Text: text})
		if err != nil {
			return err
		}
		if _, err := s.Exec(ctx, c); err != nil {
			return errors.WithMessagef(err, "migrate %s", table)
		}
	}
	r.logger.InfoContext(ctx, "table migrated", "table", table, "dialect", r.db.Dialect())
	return nil
}

// Close 释放 Instance 模式持有的连接，以及 NewRepositoryWithOptions 创建的资源
// 事务中的仓储不持有资源，Close 什么也不做
func (r *Repository[T]) Close() error {
	var first error
	if r.conn != nil {
		if err := r.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			first = err
		}
		r.conn = nil
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}
