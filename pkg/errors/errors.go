// Package errors 提供统一错误辅助，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 常用哨兵错误（可按需扩展错误码）
var (
	// ErrNotFound 资源不存在：cache miss、job/lock 不存在（与后端不可用对调用方不可区分）
	ErrNotFound = errors.New("not found")
	// ErrInvalidArg 参数非法
	ErrInvalidArg = errors.New("invalid argument")
	// ErrTerminal Job 已进入终态，不允许再转移
	ErrTerminal = errors.New("job in terminal state")
)

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is 透传 errors.Is，调用方无需同时 import 标准库 errors
func Is(err, target error) bool {
	return errors.Is(err, target)
}
