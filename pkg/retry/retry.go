// Package retry 为远程调用提供单次超时与有限次数的指数退避重试。
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy 描述一次远程调用的超时与重试次数。MaxRetries 为 0 时只调用一次。
type Policy struct {
	Timeout    time.Duration
	MaxRetries int
	// InitialInterval 为首次重试前的等待时间，默认 500ms。
	InitialInterval time.Duration
}

// Permanent 标记不应重试的错误，例如鉴权失败。
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// ForStatus 根据 HTTP 状态码判断是否值得重试：除 408 与 429 之外的 4xx 视为永久错误。
func ForStatus(status int, err error) error {
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
		return Permanent(fmt.Errorf("status %d: %w", status, err))
	}
	return err
}

// Do 按策略执行 op。每次尝试都会得到一个带超时的子 context。
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempt := func() error {
		callCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		return op(callCtx)
	}

	if p.MaxRetries <= 0 {
		err := attempt()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxRetries)), ctx)
	return backoff.Retry(attempt, b)
}
