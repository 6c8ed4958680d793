package gateway

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed classification set produced at the exchange
// adapter boundary. Retry policy is a pure function over these variants;
// no string matching on error text anywhere.
type ErrorKind int

const (
	KindRetryable ErrorKind = iota
	KindRateLimit
	KindTimeout
	KindAuth
	KindNotFound
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindRateLimit:
		return "rate_limit"
	case KindTimeout:
		return "timeout"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Retryable 返回该类错误是否允许重试。auth 视同 fatal：
// 凭证错误重试只会重复失败，必须立刻上抛。
func (k ErrorKind) Retryable() bool {
	return k != KindAuth && k != KindFatal
}

// ExchangeError 交易所调用失败，携带分类与底层错误。
type ExchangeError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// NewExchangeError 由适配器在边界处构造分类错误。
func NewExchangeError(kind ErrorKind, op string, err error) *ExchangeError {
	return &ExchangeError{Kind: kind, Op: op, Err: err}
}

// Classify 提取错误分类。未分类的错误按 retryable 处理。
func Classify(err error) ErrorKind {
	var xe *ExchangeError
	if errors.As(err, &xe) {
		return xe.Kind
	}
	return KindRetryable
}

// ErrCircuitOpen 熔断器处于冷却期。正常路径下调用方被阻塞而不是收到
// 本错误；只有阻塞等待被 context 取消时才会携带它返回。
var ErrCircuitOpen = errors.New("circuit breaker open")
