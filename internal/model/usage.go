// Package model はドメインモデルを定義する。
package model

import "time"

// UsageRecord はクイズ生成1回あたりのLLMトークン消費量を表す。
type UsageRecord struct {
	ID               string
	UserID           string
	QuizID           string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CreatedAt        time.Time
}

// UsageSummary はユーザーごとのトークン消費量の集計。
type UsageSummary struct {
	Generations      int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
