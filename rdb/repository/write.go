package repository

import (
	"context"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/batch"
	"github.com/hatlonely/rdbx/rdb/mapping"
	"github.com/hatlonely/rdbx/rdb/param"
	"github.com/hatlonely/rdbx/rdb/statement"
	"github.com/hatlonely/rdbx/rdb/where"
	"github.com/pkg/errors"
)

// Insert 插入一个实体，有自增列时把生成的键写回实体并返回
func (r *Repository[T]) Insert(ctx context.Context, entity *T, opts ...WriteOption) (any, error) {
	d, err := r.Descriptor(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := r.execRows(ctx, d, statement.Insert, []*T{entity}, nil, 1, nil, newWriteOptions(opts)); err != nil {
		return nil, err
	}
	if id := d.Identity(); id != nil {
		return d.Value(entity, id)
	}
	return nil, nil
}

// InsertAll 分批插入，batchSize 不大于 0 时使用仓储的默认批大小，默认批大小为 0 时只有一个批次
func (r *Repository[T]) InsertAll(ctx context.Context, entities []*T, batchSize int, opts ...WriteOption) (int64, error) {
	return r.batchRows(ctx, statement.Insert, entities, nil, batchSize, opts)
}

// Update 按主键更新实体的其余列
func (r *Repository[T]) Update(ctx context.Context, entity *T, opts ...WriteOption) (int64, error) {
	d, err := r.Descriptor(ctx)
	if err != nil {
		return 0, err
	}
	return r.execRows(ctx, d, statement.Update, []*T{entity}, nil, 1, nil, newWriteOptions(opts))
}

// UpdateWhere 用实体的非主键列更新满足条件的所有行
func (r *Repository[T]) UpdateWhere(ctx context.Context, entity *T, filter any, opts ...WriteOption) (int64, error) {
	d, err := r.Descriptor(ctx)
	if err != nil {
		return 0, err
	}
	values, err := d.Values(entity)
	if err != nil {
		return 0, err
	}
	set := param.NewBag()
	for i, c := range d.Columns() {
		if c.Identity || c.PrimaryKey {
			continue
		}
		set.Set(c.Name, values[i])
	}
	return r.update(ctx, d, set, filter, newWriteOptions(opts))
}

// UpdateColumns 更新满足条件的行的指定列，set 可以是 *param.Bag、map 或结构体
func (r *Repository[T]) UpdateColumns(ctx context.Context, set any, filter any, opts ...WriteOption) (int64, error) {
	d, err := r.Descriptor(ctx)
	if err != nil {
		return 0, err
	}
	bag, err := param.From(set)
	if err != nil {
		return 0, err
	}
	return r.update(ctx, d, bag, filter, newWriteOptions(opts))
}

// UpdateAll 分批按 qualifiers 匹配已有行并更新其余列，qualifiers 为空时使用主键
func (r *Repository[T]) UpdateAll(ctx context.Context, entities []*T, qualifiers []string, batchSize int, opts ...WriteOption) (int64, error) {
	return r.batchRows(ctx, statement.Update, entities, qualifiers, batchSize, opts)
}

// Delete 删除满足条件的行，filter 为 nil 时删除全部
func (r *Repository[T]) Delete(ctx context.Context, filter any, opts ...WriteOption) (int64, error) {
	d, err := r.Descriptor(ctx)
	if err != nil {
		return 0, err
	}
	g, err := where.Normalize(filter, d)
	if err != nil {
		return 0, err
	}
	c, err := r.compiler.Compile(&statement.Request{Kind: statement.Delete, Descriptor: d, Where: g, Hints: newWriteOptions(opts).hints})
	if err != nil {
		return 0, err
	}
	return r.exec(ctx, c)
}

// DeleteAll 分批删除与实体在 qualifiers 上相等的行
func (r *Repository[T]) DeleteAll(ctx context.Context, entities []*T, qualifiers []string, batchSize int, opts ...WriteOption) (int64, error) {
	return r.batchRows(ctx, statement.Delete, entities, qualifiers, batchSize, opts)
}

// Merge 按 qualifiers 匹配，存在时更新，不存在时插入
// 需要写入提示时用 MergeAll
func (r *Repository[T]) Merge(ctx context.Context, entity *T, qualifiers ...string) (int64, error) {
	d, err := r.Descriptor(ctx)
	if err != nil {
		return 0, err
	}
	return r.execRows(ctx, d, statement.Merge, []*T{entity}, qualifiers, 1, nil, newWriteOptions(nil))
}

func (r *Repository[T]) MergeAll(ctx context.Context, entities []*T, qualifiers []string, batchSize int, opts ...WriteOption) (int64, error) {
	return r.batchRows(ctx, statement.Merge, entities, qualifiers, batchSize, opts)
}

func (r *Repository[T]) update(ctx context.Context, d *mapping.Descriptor, set *param.Bag, filter any, o *writeOptions) (int64, error) {
	g, err := where.Normalize(filter, d)
	if err != nil {
		return 0, err
	}
	c, err := r.compiler.Compile(&statement.Request{Kind: statement.Update, Descriptor: d, Set: set, Where: g, Hints: o.hints})
	if err != nil {
		return 0, err
	}
	return r.exec(ctx, c)
}

func (r *Repository[T]) exec(ctx context.Context, c *statement.Compiled) (int64, error) {
	s, release, err := r.session(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return s.Exec(ctx, c)
}

func (r *Repository[T]) batchRows(ctx context.Context, kind statement.Kind, entities []*T, qualifiers []string, batchSize int, opts []WriteOption) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = r.batchSize
	}
	d, err := r.Descriptor(ctx)
	if err != nil {
		return 0, err
	}
	return r.execRows(ctx, d, kind, entities, qualifiers, batchSize, r.progress, newWriteOptions(opts))
}

// execRows 先编译全部批次再取连接执行，编译失败时不会有语句发出
func (r *Repository[T]) execRows(ctx context.Context, d *mapping.Descriptor, kind statement.Kind, entities []*T, qualifiers []string, batchSize int, progress batch.ProgressFunc, o *writeOptions) (int64, error) {
	rows := make([]any, len(entities))
	for i, e := range entities {
		if e == nil {
			return 0, errors.Wrapf(rdb.ErrInvalidEntity, "nil entity at %d", i)
		}
		rows[i] = e
	}

	planner := batch.NewPlanner(r.compiler, d).WithProgress(progress).WithHints(o.hints...)
	plan, compiled, err := planner.Compile(kind, rows, qualifiers, batchSize)
	if err != nil {
		return 0, err
	}

	s, release, err := r.session(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return planner.Execute(ctx, s, plan, compiled, rows)
}
