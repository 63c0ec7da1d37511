package database

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/statement"
	"github.com/pkg/errors"
)

// Executor *sql.DB、*sql.Conn、*sql.Tx 均满足
type Executor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Session 执行编译后的语句，所有驱动错误都包装为 rdb.ProviderError
type Session interface {
	Query(ctx context.Context, c *statement.Compiled) (*sql.Rows, error)
	Scalar(ctx context.Context, c *statement.Compiled) (any, error)
	Exec(ctx context.Context, c *statement.Compiled) (int64, error)
	ExecuteReturningGeneratedKeys(ctx context.Context, c *statement.Compiled) ([]GeneratedKey, int64, error)
}

// GeneratedKey 自增键，Token 是行在批次中的序号
type GeneratedKey struct {
	Token int
	Value any
}

type session struct {
	exec Executor
}

func NewSession(exec Executor) Session {
	return &session{exec: exec}
}

func (s *session) Query(ctx context.Context, c *statement.Compiled) (*sql.Rows, error) {
	if len(c.Units) > 1 {
		return nil, rdb.InvalidParameterShape("query with %d round trips", len(c.Units))
	}
	rows, err := s.exec.QueryContext(ctx, c.Text, c.Args()...)
	if err != nil {
		return nil, Classify(err, c.Text)
	}
	return rows, nil
}

// Scalar 返回第一行第一列，没有结果时返回 nil
func (s *session) Scalar(ctx context.Context, c *statement.Compiled) (any, error) {
	rows, err := s.Query(ctx, c)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, Classify(rows.Err(), c.Text)
	}
	columns, err := rows.Columns()
	if err != nil {
		return nil, Classify(err, c.Text)
	}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, Classify(err, c.Text)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}

func (s *session) Exec(ctx context.Context, c *statement.Compiled) (int64, error) {
	_, affected, err := s.ExecuteReturningGeneratedKeys(ctx, c)
	return affected, err
}

// ExecuteReturningGeneratedKeys 按顺序执行每次往返，累加影响行数并收集自增键
func (s *session) ExecuteReturningGeneratedKeys(ctx context.Context, c *statement.Compiled) ([]GeneratedKey, int64, error) {
	var keys []GeneratedKey
	var affected int64
	for _, u := range c.Steps() {
		args := statement.Args(u.Bindings, c.Named)
		switch u.Keys {
		case statement.KeyReturning, statement.KeySelect:
			unitKeys, err := s.queryKeys(ctx, u, args)
			if err != nil {
				return keys, affected, err
			}
			if u.Keys == statement.KeyReturning {
				affected += int64(len(unitKeys))
			}
			keys = append(keys, unitKeys...)

		default:
			res, err := s.exec.ExecContext(ctx, u.Text, args...)
			if err != nil {
				return keys, affected, Classify(err, u.Text)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return keys, affected, Classify(err, u.Text)
			}
			affected += n
			if u.Keys == statement.KeyLastInsertID && n > 0 {
				id, err := res.LastInsertId()
				if err != nil {
					return keys, affected, Classify(err, u.Text)
				}
				keys = append(keys, GeneratedKey{Token: u.Token, Value: id})
			}
		}
	}
	return keys, affected, nil
}

// queryKeys 两列结果为 (键, 行号)，一列时行号取 Unit.Token
func (s *session) queryKeys(ctx context.Context, u statement.Unit, args []any) ([]GeneratedKey, error) {
	rows, err := s.exec.QueryContext(ctx, u.Text, args...)
	if err != nil {
		return nil, Classify(err, u.Text)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, Classify(err, u.Text)
	}
	var keys []GeneratedKey
	for rows.Next() {
		var key, token any
		dest := []any{&key}
		if len(columns) >= 2 {
			dest = append(dest, &token)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, Classify(err, u.Text)
		}
		k := GeneratedKey{Token: u.Token, Value: key}
		if len(columns) >= 2 {
			if k.Token, err = toInt(token); err != nil {
				return nil, err
			}
		}
		keys = append(keys, k)
	}
	return keys, Classify(rows.Err(), u.Text)
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case int64:
		return int(x), nil
	case int32:
		return int(x), nil
	case int:
		return x, nil
	case []byte:
		return strconv.Atoi(string(x))
	case string:
		return strconv.Atoi(x)
	}
	return 0, errors.Errorf("row token %v (%T) is not an integer", v, v)
}
