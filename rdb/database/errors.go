package database

import (
	"context"

	"github.com/go-sql-driver/mysql"
	"github.com/hatlonely/rdbx/rdb"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Classify 把驱动错误包装为 ProviderError，唯一约束冲突标记为重复键
// 原始错误通过 Unwrap 保留，不重试
func Classify(err error, text string) error {
	if err == nil {
		return nil
	}
	// 调用方取消或超时不是驱动错误，原样返回
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pe *rdb.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &rdb.ProviderError{Err: err, Text: text, Duplicate: IsDuplicate(err)}
}

// IsDuplicate 判断是否为主键或唯一索引冲突
func IsDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqe *pq.Error
	if errors.As(err, &pqe) {
		return pqe.Code == "23505"
	}
	return false
}
