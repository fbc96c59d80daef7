package model

import "regexp"

// クイズ生成パラメータの範囲
const (
	MaxTopicLength   = 200
	MinQuestionCount = 1
	MaxQuestionCount = 20
)

var languagePattern = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)

// ValidLanguage は言語コードが "ja" や "pt-BR" の形式かどうかを返す。
func ValidLanguage(code string) bool {
	return languagePattern.MatchString(code)
}

// ValidQuestionCount は問題数が許容範囲内かどうかを返す。
func ValidQuestionCount(n int) bool {
	return n >= MinQuestionCount && n <= MaxQuestionCount
}
