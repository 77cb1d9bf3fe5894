package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxRetries は、対象ページ読み込みの既定リトライ回数です。
	DefaultMaxRetries = 2

	InitialBackoffInterval = 500 * time.Millisecond
	MaxBackoffInterval     = 5 * time.Second
)

// Operation はリトライ可能な処理を表す関数です。成功時は nil を返します。
type Operation func() error

// ShouldRetryFunc はエラーがリトライ可能かどうかを判定する関数です。
type ShouldRetryFunc func(error) bool

// Config はリトライ動作の設定です。
type Config struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultConfig は既定のリトライ設定を返します。
func DefaultConfig() Config {
	return Config{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: InitialBackoffInterval,
		MaxInterval:     MaxBackoffInterval,
	}
}

// Always は、すべてのエラーをリトライ対象とする判定関数です。
func Always(error) bool { return true }

// Permanent は、リトライせずに即時終了させるエラーとしてラップします。
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// newBackOffPolicy は Config から指数バックオフのポリシーを構築します。
func newBackOffPolicy(ctx context.Context, cfg Config) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		b.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		b.MaxInterval = cfg.MaxInterval
	}

	return backoff.WithContext(backoff.WithMaxRetries(b, cfg.MaxRetries), ctx)
}

// Do は指数バックオフを使って op をリトライします。
// shouldRetryFn が false を返したエラー、または Permanent でラップされたエラーは即座に返されます。
func Do(ctx context.Context, cfg Config, operationName string, op Operation, shouldRetryFn ShouldRetryFunc) error {
	var lastErr error
	stopped := false

	retryableOp := func() error {
		err := op()
		if err == nil {
			return nil
		}

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			lastErr, stopped = permanent.Err, true
			return err
		}

		lastErr = err
		if shouldRetryFn != nil && shouldRetryFn(err) {
			return err
		}
		stopped = true
		return backoff.Permanent(err)
	}

	err := backoff.Retry(retryableOp, newBackOffPolicy(ctx, cfg))
	if err == nil {
		return nil
	}

	if stopped {
		return lastErr
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%sに失敗しました: コンテキストタイムアウト/キャンセル: %w", operationName, ctxErr)
	}

	return fmt.Errorf("%sに失敗しました: 最大リトライ回数 (%d回) に到達。最終エラー: %w", operationName, cfg.MaxRetries, lastErr)
}
