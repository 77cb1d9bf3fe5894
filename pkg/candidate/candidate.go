package candidate

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidPattern は、フィルターパターンが正規表現として不正であることを示します。
var ErrInvalidPattern = errors.New("invalid filter pattern")

// Dedup は、重複を取り除き、最初の出現順を保った新しいスライスを返します。
// 比較は文字列の完全一致のみで、大文字小文字や末尾スラッシュの正規化は行いません。
func Dedup(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	unique := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		unique = append(unique, u)
	}
	return unique
}

// Filter は、pattern に部分一致する URL のみを返します。
// pattern が空の場合は urls をそのまま返します。
func Filter(urls []string, pattern string) ([]string, error) {
	if pattern == "" {
		return urls, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
	}

	matched := make([]string, 0, len(urls))
	for _, u := range urls {
		if re.MatchString(u) {
			matched = append(matched, u)
		}
	}
	return matched, nil
}
