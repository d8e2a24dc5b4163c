// Package security はユーザー入力の無害化を提供する。
//
// ユーザー名はフロントエンドでそのまま表示されるため、
// 保存前にbluemondayのStrictPolicyで全てのHTMLタグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strictPolicy は全てのタグと属性を除去するポリシー。
// bluemonday.Policyは構築後の並行利用が安全。
var strictPolicy = bluemonday.StrictPolicy()

// PlainText はHTMLタグを除去したプレーンテキストを返す。
// StrictPolicyがエスケープした文字参照は元の文字に戻し、前後の空白を取り除く。
// script・styleタグは中身ごと除去される。
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}
