package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shouni/go-image-audit/pkg/engine"
	"github.com/shouni/go-image-audit/pkg/urlcheck"
)

// ----------------------------------------------------------------------
// 抽出元の定義
// ----------------------------------------------------------------------

// directSources は、値をそのまま候補URLとして扱う抽出元です。この順序で連結されます。
var directSources = []engine.Property{
	{Attr: "src", Path: "src"},
	{Attr: "data-src", Path: "dataset.src"},
	{Attr: "content", Path: "content"},
	{Attr: "href", Path: "href"},
}

// srcsetSources は、値を SplitSrcset で展開する抽出元です。
var srcsetSources = []engine.Property{
	{Attr: "srcset", Path: "srcset"},
	{Attr: "data-srcset", Path: "dataset.srcset"},
}

// srcsetSeparator は、srcset 形式の値をカンマまたは空白で分割します。
var srcsetSeparator = regexp.MustCompile(`[,\s]`)

// Querier は、読み込み済みドキュメントにプロパティ値を問い合わせる機能です。
// engine.Session はこれを満たします。
type Querier interface {
	Query(ctx context.Context, prop engine.Property) ([]string, error)
}

// Extractor は、ドキュメントから画像の候補URLを取り出します。
type Extractor struct {
	querier Querier
}

// NewExtractor は、新しい Extractor を生成します。
func NewExtractor(querier Querier) (*Extractor, error) {
	if querier == nil {
		return nil, fmt.Errorf("extract.NewExtractor: Querier cannot be nil")
	}
	return &Extractor{querier: querier}, nil
}

// Candidates は、6つの抽出元から候補を集め、絶対URLとして妥当なものだけを出現順に返します。
// 重複は除去しません。
func (e *Extractor) Candidates(ctx context.Context) ([]string, error) {
	var raw []string

	for _, prop := range directSources {
		values, err := e.querier.Query(ctx, prop)
		if err != nil {
			return nil, fmt.Errorf("[%s] の抽出に失敗しました: %w", prop.Attr, err)
		}
		raw = append(raw, values...)
	}

	var srcsets []string
	for _, prop := range srcsetSources {
		values, err := e.querier.Query(ctx, prop)
		if err != nil {
			return nil, fmt.Errorf("[%s] の抽出に失敗しました: %w", prop.Attr, err)
		}
		srcsets = append(srcsets, values...)
	}
	for _, srcset := range srcsets {
		raw = append(raw, SplitSrcset(srcset)...)
	}

	return urlcheck.FilterValid(raw), nil
}

// SplitSrcset は、srcset 形式の値をカンマまたは空白で分割し、"//" を含むトークンのみを返します。
// 記述子リストの厳密なパーサーではなく、URLらしいトークンを拾うための簡易な処理です。
// カンマを含むURLは分断されます。
func SplitSrcset(srcset string) []string {
	var urls []string
	for _, token := range srcsetSeparator.Split(srcset, -1) {
		if !strings.Contains(token, "//") {
			continue
		}
		urls = append(urls, strings.TrimSpace(token))
	}
	return urls
}
