package repository

import (
	"context"
	"database/sql"
	"reflect"
	"strconv"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/database"
	"github.com/hatlonely/rdbx/rdb/mapping"
	"github.com/hatlonely/rdbx/rdb/statement"
	"github.com/hatlonely/rdbx/rdb/where"
	"github.com/pkg/errors"
)

// Query 查询满足条件的实体，filter 支持 where.Normalize 接受的全部形状
func (r *Repository[T]) Query(ctx context.Context, filter any, opts ...QueryOption) ([]*T, error) {
	d, err := r.Descriptor(ctx)
	if err != nil {
		return nil, err
	}
	g, err := where.Normalize(filter, d)
	if err != nil {
		return nil, err
	}
	o := newQueryOptions(opts)
	c, err := r.compiler.Compile(&statement.Request{
		Kind:       statement.Select,
		Descriptor: d,
		Where:      g,
		Fields:     o.fields,
		OrderBy:    o.orderBy,
		Top:        o.top,
		Page:       o.page,
		Hints:      o.hints,
	})
	if err != nil {
		return nil, err
	}
	return r.queryEntities(ctx, d, c)
}

func (r *Repository[T]) QueryAll(ctx context.Context, opts ...QueryOption) ([]*T, error) {
	return r.Query(ctx, nil, opts...)
}

// QueryOne 返回第一个满足条件的实体，没有时返回 rdb.ErrRecordNotFound
func (r *Repository[T]) QueryOne(ctx context.Context, filter any, opts ...QueryOption) (*T, error) {
	entities, err := r.Query(ctx, filter, append(opts, Top(1))...)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, errors.Wrapf(rdb.ErrRecordNotFound, "query one from %s", r.tableName(ctx))
	}
	return entities[0], nil
}

func (r *Repository[T]) Count(ctx context.Context, filter any, opts ...QueryOption) (int64, error) {
	v, err := r.Aggregate(ctx, statement.Count, "*", filter, opts...)
	if err != nil {
		return 0, err
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, errors.Wrap(rdb.ErrProviderExecution, err.Error())
	}
	return n, nil
}

// Aggregate 计算聚合值，没有匹配的行时 SUM、AVG、MIN、MAX 返回 nil
func (r *Repository[T]) Aggregate(ctx context.Context, fn statement.AggregateFunc, field string, filter any, opts ...QueryOption) (any, error) {
	d, err := r.Descriptor(ctx)
	if err != nil {
		return nil, err
	}
	g, err := where.Normalize(filter, d)
	if err != nil {
		return nil, err
	}
	o := newQueryOptions(opts)
	c, err := r.compiler.Compile(&statement.Request{
		Kind:           statement.Aggregate,
		Descriptor:     d,
		Where:          g,
		Hints:          o.hints,
		Aggregate:      fn,
		AggregateField: field,
	})
	if err != nil {
		return nil, err
	}

	s, release, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.Scalar(ctx, c)
}

func (r *Repository[T]) Exists(ctx context.Context, filter any) (bool, error) {
	d, err := r.Descriptor(ctx)
	if err != nil {
		return false, err
	}
	g, err := where.Normalize(filter, d)
	if err != nil {
		return false, err
	}
	c, err := r.compiler.Compile(&statement.Request{
		Kind:       statement.Select,
		Descriptor: d,
		Where:      g,
		Fields:     d.Names()[:1],
		Top:        1,
	})
	if err != nil {
		return false, err
	}

	s, release, err := r.session(ctx)
	if err != nil {
		return false, err
	}
	defer release()
	rows, err := s.Query(ctx, c)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, database.Classify(err, c.Text)
	}
	return found, nil
}

func (r *Repository[T]) queryEntities(ctx context.Context, d *mapping.Descriptor, c *statement.Compiled) ([]*T, error) {
	s, release, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.Query(ctx, c)
	if err != nil {
		return nil, err
	}
	return scanEntities[T](rows, d, c.Text)
}

// scanEntities 结果中没有映射的列被忽略
func scanEntities[T any](rows *sql.Rows, d *mapping.Descriptor, text string) ([]*T, error) {
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, database.Classify(err, text)
	}

	var entities []*T
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for rows.Next() {
		for i := range values {
			values[i] = nil
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, database.Classify(err, text)
		}
		entity := new(T)
		if err := d.Fill(reflect.ValueOf(entity), columns, values); err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err, text)
	}
	return entities, nil
}

func (r *Repository[T]) tableName(ctx context.Context) string {
	if d, err := r.Descriptor(ctx); err == nil {
		return d.Table
	}
	return r.table
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case []byte:
		return toInt64(string(x))
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, errors.Errorf("cannot read %q as integer", x)
		}
		return n, nil
	}
	return 0, errors.Errorf("cannot read %T as integer", v)
}
