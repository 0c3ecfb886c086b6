package session

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ceyewan/shenyu-register/registry/types"
)

const defaultMaxSleep = 30 * time.Second

// RetryPolicy 指数退避参数
type RetryPolicy struct {
	MaxRetry  int           // 最大重试次数，小于 0 表示不限次数
	BaseSleep time.Duration // 首次重试间隔
	MaxSleep  time.Duration // 重试间隔上限，0 使用 30s
}

// PolicyFrom 从连接参数构造重试策略
func PolicyFrom(opts types.SessionOptions) RetryPolicy {
	return RetryPolicy{
		MaxRetry:  opts.MaxRetry,
		BaseSleep: opts.OperatingTimeout,
		MaxSleep:  opts.MaxSleepTime,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.BaseSleep > 0 {
		eb.InitialInterval = p.BaseSleep
	}
	eb.MaxInterval = p.MaxSleep
	if eb.MaxInterval <= 0 {
		eb.MaxInterval = defaultMaxSleep
	}
	if eb.MaxInterval < eb.InitialInterval {
		eb.MaxInterval = eb.InitialInterval
	}
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = eb
	if p.MaxRetry >= 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxRetry))
	}
	return backoff.WithContext(b, ctx)
}

// Retry 执行 op，仅在返回 types.ErrConnectionLost 时按策略重试
func Retry(ctx context.Context, p RetryPolicy, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !errors.Is(err, types.ErrConnectionLost) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx))
}
