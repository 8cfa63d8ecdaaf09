// Package errs 定义系统内统一的错误分类，调用方只根据 Kind 决定重试、放弃本轮还是退出进程。
package errs

import (
	"context"
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// 超时、交易所暂时不可用，本轮放弃，下一根K线自然重试
	KindTransient
	// 密钥/环境配置错误，进程必须退出并提示
	KindAuthentication
	// 配置或参数文件错误，启动阶段即退出
	KindConfiguration
	// 交易所拒单
	KindOrderRejection
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindAuthentication:
		return "authentication"
	case KindConfiguration:
		return "configuration"
	case KindOrderRejection:
		return "order rejected"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Hint string // 给运维看的提示，例如需要检查哪个环境变量
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

func Authentication(op, hint string, err error) error {
	return &Error{Kind: KindAuthentication, Op: op, Hint: hint, Err: err}
}

func Configuration(op string, err error) error {
	return &Error{Kind: KindConfiguration, Op: op, Err: err}
}

func Configurationf(op, format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Op: op, Err: fmt.Errorf(format, args...)}
}

func OrderRejection(op string, err error) error {
	return &Error{Kind: KindOrderRejection, Op: op, Err: err}
}

// KindOf 返回错误链上第一个分类，context 超时也算作 transient
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Fatal 认证和配置错误需要终止进程
func Fatal(err error) bool {
	k := KindOf(err)
	return k == KindAuthentication || k == KindConfiguration
}

// Hint 取出错误链上的提示信息
func Hint(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Hint
	}
	return ""
}
