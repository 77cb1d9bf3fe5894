package audit

import (
	"errors"
	"fmt"

	"github.com/shouni/go-image-audit/pkg/candidate"
)

// 実行全体を中断させるエラーの分類です。
var (
	ErrUsage                = errors.New("usage error")
	ErrInvalidURL           = errors.New("invalid URL")
	ErrInvalidFilterPattern = candidate.ErrInvalidPattern
	ErrNoImagesFound        = errors.New("no potential images found")
	ErrEngine               = errors.New("browser engine error")
)

// 終了コード
const (
	ExitOK                   = 0
	ExitFailure              = 1
	ExitUsage                = 2
	ExitInvalidURL           = 3
	ExitInvalidFilterPattern = 4
	ExitNoImagesFound        = 5
	ExitEngine               = 6
)

// ExitCode は、エラーの分類に対応するプロセス終了コードを返します。
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage):
		return ExitUsage
	case errors.Is(err, ErrInvalidURL):
		return ExitInvalidURL
	case errors.Is(err, ErrInvalidFilterPattern):
		return ExitInvalidFilterPattern
	case errors.Is(err, ErrNoImagesFound):
		return ExitNoImagesFound
	case errors.Is(err, ErrEngine):
		return ExitEngine
	default:
		return ExitFailure
	}
}

// FetchError は、一つの候補URLの取得で発生した通信・ナビゲーションエラーです。
// 監査は継続され、この候補は集計に含まれません。
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s の取得に失敗しました: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
