// Package model はドメインモデルを定義する。
package model

import "time"

// Settings はユーザーごとのクイズ生成の既定値。
type Settings struct {
	UserID        string
	Language      string
	Difficulty    Difficulty
	QuestionCount int
	UpdatedAt     time.Time
}

// DefaultSettings は未設定ユーザーに適用する既定値を返す。
func DefaultSettings(userID string) *Settings {
	return &Settings{
		UserID:        userID,
		Language:      "en",
		Difficulty:    DifficultyMedium,
		QuestionCount: 5,
	}
}
