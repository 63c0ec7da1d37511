// Package batch 把大批量实体按固定大小分批编译、执行，并把自增键按行号写回实体
package batch

import (
	"context"
	"fmt"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/database"
	"github.com/hatlonely/rdbx/rdb/mapping"
	"github.com/hatlonely/rdbx/rdb/statement"
	"github.com/pkg/errors"
)

// Batch 一个批次，覆盖实体下标 [Start, End)
type Batch struct {
	Index int
	Start int
	End   int
}

func (b Batch) Size() int {
	return b.End - b.Start
}

// Plan 分批计划，批次数为 ceil(Total/Size)，没有空批次
type Plan struct {
	Total   int
	Size    int
	Batches []Batch
}

// NewPlan size 不大于 0 或不小于 total 时只有一个批次
func NewPlan(total, size int) *Plan {
	if total <= 0 {
		return &Plan{Size: size}
	}
	if size <= 0 || size > total {
		size = total
	}
	p := &Plan{Total: total, Size: size}
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		p.Batches = append(p.Batches, Batch{Index: len(p.Batches), Start: start, End: end})
	}
	return p
}

// Prefix 行在批次内的参数名前缀
func Prefix(row int) string {
	return fmt.Sprintf("r%d_", row)
}

// ProgressFunc 每个批次执行完成后回调
type ProgressFunc func(done, total int)

type Planner struct {
	compiler   *statement.Compiler
	descriptor *mapping.Descriptor
	progress   ProgressFunc
	hints      []string
}

func NewPlanner(compiler *statement.Compiler, descriptor *mapping.Descriptor) *Planner {
	return &Planner{compiler: compiler, descriptor: descriptor}
}

func (p *Planner) WithProgress(fn ProgressFunc) *Planner {
	p.progress = fn
	return p
}

// WithHints 每个批次的语句都带上这些表提示
func (p *Planner) WithHints(hints ...string) *Planner {
	p.hints = hints
	return p
}

// Compile 在执行任何语句之前编译全部批次，任何一批编译失败都不会有语句发出
func (p *Planner) Compile(kind statement.Kind, entities []any, qualifiers []string, size int) (*Plan, []*statement.Compiled, error) {
	switch kind {
	case statement.Insert, statement.Update, statement.Delete, statement.Merge:
	default:
		return nil, nil, rdb.InvalidParameterShape("%s cannot run in batches", kind)
	}

	plan := NewPlan(len(entities), size)
	compiled := make([]*statement.Compiled, 0, len(plan.Batches))
	for _, b := range plan.Batches {
		c, err := p.compiler.Compile(&statement.Request{
			Kind:       kind,
			Descriptor: p.descriptor,
			Rows:       entities[b.Start:b.End],
			Qualifiers: qualifiers,
			Hints:      p.hints,
		})
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "batch %d", b.Index)
		}
		compiled = append(compiled, c)
	}
	return plan, compiled, nil
}

// Execute 在同一个会话上顺序执行，每个批次开始前检查 ctx，已经发出的批次不会被打断
// 返回累计的影响行数
func (p *Planner) Execute(ctx context.Context, s database.Session, plan *Plan, compiled []*statement.Compiled, entities []any) (int64, error) {
	if len(compiled) != len(plan.Batches) {
		return 0, rdb.InvalidParameterShape("%d statements for %d batches", len(compiled), len(plan.Batches))
	}

	var affected int64
	for i, b := range plan.Batches {
		if err := ctx.Err(); err != nil {
			return affected, errors.WithMessagef(err, "before batch %d of %d", b.Index, len(plan.Batches))
		}

		// 批次一旦发出就执行完，取消只在批次之间生效
		run := context.WithoutCancel(ctx)
		c := compiled[i]
		if c.Result != statement.GeneratedKeys {
			n, err := s.Exec(run, c)
			affected += n
			if err != nil {
				return affected, errors.WithMessagef(err, "batch %d", b.Index)
			}
		} else {
			keys, n, err := s.ExecuteReturningGeneratedKeys(run, c)
			affected += n
			if err != nil {
				return affected, errors.WithMessagef(err, "batch %d", b.Index)
			}
			if err := p.assignKeys(b, c.KeyColumn, keys, entities); err != nil {
				return affected, err
			}
		}

		if p.progress != nil {
			p.progress(i+1, len(plan.Batches))
		}
	}
	return affected, nil
}

// assignKeys 按行号而不是返回顺序写回
func (p *Planner) assignKeys(b Batch, column string, keys []database.GeneratedKey, entities []any) error {
	for _, k := range keys {
		if k.Token < 0 || k.Token >= b.Size() {
			return errors.Wrapf(rdb.ErrProviderExecution, "row token %d out of batch %d with %d rows", k.Token, b.Index, b.Size())
		}
		if err := p.descriptor.Assign(entities[b.Start+k.Token], column, k.Value); err != nil {
			return errors.WithMessagef(err, "assign key of row %d", b.Start+k.Token)
		}
	}
	return nil
}
