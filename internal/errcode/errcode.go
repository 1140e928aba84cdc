package errcode

import (
	"errors"
	"fmt"
)

// Kind 划分业务错误类别，供 API 层映射 HTTP 状态码。
type Kind int

const (
	// KindNotFound 表示引用的模板/阶段/需求单/职位不存在。
	KindNotFound Kind = iota + 1
	// KindInvalidState 表示当前状态不允许所请求的流转。
	KindInvalidState
	// KindForbidden 表示角色权限不足。
	KindForbidden
	// KindInvalidOperation 表示违反结构性规则（如删除默认模板）。
	KindInvalidOperation
)

// Error 携带错误类别与面向调用方的描述信息。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New 构造带类别的业务错误。
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap 在保留底层错误的同时附加类别与描述。
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error         { return New(KindNotFound, message) }
func InvalidState(message string) *Error     { return New(KindInvalidState, message) }
func Forbidden(message string) *Error        { return New(KindForbidden, message) }
func InvalidOperation(message string) *Error { return New(KindInvalidOperation, message) }

// Is 判断错误链中是否存在指定类别的业务错误。
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf 返回错误链中的业务错误类别，未携带类别时返回 0。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
