// Package apperr 定义合成流程中对外可见的错误分类。
//
// 调用方通过 KindOf 判断错误类别；传输层只暴露 Kind 和 Msg，
// 被包装的底层错误仅用于日志。
package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误类别。
type Kind int

const (
	// KindInternal 未分类错误。
	KindInternal Kind = iota
	// KindValidation 请求参数非法，在任何后端工作之前立即失败。
	KindValidation
	// KindBackendUnavailable 重型后端缺失或加载失败，触发回退。
	KindBackendUnavailable
	// KindGeneration 合成调用失败。
	KindGeneration
	// KindEncoding 转码失败，降级但不致命。
	KindEncoding
	// KindIO 文件系统错误。
	KindIO
	// KindProbeTimeout 硬件检测超时，视为不可用。
	KindProbeTimeout
	// KindNotFound 请求的资源不存在。
	KindNotFound
)

var kindNames = [...]string{
	"internal",
	"validation",
	"backend_unavailable",
	"generation",
	"encoding",
	"io",
	"probe_timeout",
	"not_found",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Error 带类别的错误。
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, &Error{Kind: k}) 按类别匹配。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// New 创建指定类别的错误。
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap 以指定类别包装底层错误。
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Validation 创建参数校验错误。
func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

// Generation 创建合成失败错误。
func Generation(msg string, err error) *Error {
	return Wrap(KindGeneration, msg, err)
}

// BackendUnavailable 创建后端不可用错误。
func BackendUnavailable(msg string, err error) *Error {
	return Wrap(KindBackendUnavailable, msg, err)
}

// Encoding 创建转码错误。
func Encoding(msg string, err error) *Error {
	return Wrap(KindEncoding, msg, err)
}

// IO 创建文件系统错误。
func IO(msg string, err error) *Error {
	return Wrap(KindIO, msg, err)
}

// NotFound 创建资源不存在错误。
func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

// KindOf 返回错误链中第一个 *Error 的类别；没有则返回 KindInternal。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message 返回可以展示给用户的消息，不包含底层错误细节。
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "内部错误"
}
