// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はLLMの出力やユーザーが入力した表示名からHTMLを取り除き、
// プレーンテキストとして保存・配信できる形に整える。
// bluemondayのStrictPolicyを使用し、すべてのタグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト化の機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はすべてのHTMLタグを除去し、前後の空白を取り除いた文字列を返す。
	// script, styleタグは中身ごと除去される。
	// エンティティは元の文字に戻すため、"Tom &amp; Jerry" は "Tom & Jerry" になる。
	Sanitize(s string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}
	cleaned := s.policy.Sanitize(text)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// SanitizeAll はスライスの各要素をサニタイズした新しいスライスを返す。
func SanitizeAll(s TextSanitizer, values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = s.Sanitize(v)
	}
	return out
}
