package urlcheck

import "regexp"

// absoluteURLPattern は、スキーム (ftp|http|https)、任意のユーザー情報、ホスト、任意のポート、
// 任意のパス/クエリからなる絶対URLの文法です。文字列全体に対して照合します。
var absoluteURLPattern = regexp.MustCompile(`^(ftp|http|https)://(\w+:?\w*@)?(\S+)(:[0-9]+)?(/|/([\w#!:.?+=&%@!\-/]))?$`)

// IsValid は、文字列が構文的に正しい絶対URLであるかを判定します。
// 副作用を持たない純粋な述語で、対象ページURLの検証と抽出候補の選別の両方に利用されます。
func IsValid(s string) bool {
	if s == "" {
		return false
	}
	return absoluteURLPattern.MatchString(s)
}

// FilterValid は、IsValid を満たす要素のみを元の順序で返します。
func FilterValid(candidates []string) []string {
	valid := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if IsValid(c) {
			valid = append(valid, c)
		}
	}
	return valid
}
