// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Difficulty はクイズの難易度を表す。
type Difficulty string

const (
	// DifficultyEasy は易しい難易度。
	DifficultyEasy Difficulty = "easy"
	// DifficultyMedium は標準の難易度。
	DifficultyMedium Difficulty = "medium"
	// DifficultyHard は難しい難易度。
	DifficultyHard Difficulty = "hard"
)

// Valid は難易度が定義済みの値かどうかを返す。
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

// Quiz はLLMで生成されたクイズを表す。
type Quiz struct {
	ID         string
	UserID     string
	Topic      string
	Difficulty Difficulty
	Language   string
	Questions  []Question
	CreatedAt  time.Time
}

// QuizCursor はクイズ履歴のキーセットページング位置。
// created_atが同じクイズはIDの降順で並ぶため、(CreatedAt, ID)の組で位置を一意に決める。
type QuizCursor struct {
	CreatedAt time.Time
	ID        string
}

// IsZero は先頭ページを表すかどうかを返す。
func (c QuizCursor) IsZero() bool {
	return c.CreatedAt.IsZero()
}

// String はcursorクエリパラメータ用の "RFC3339Nano_ID" 形式を返す。
func (c QuizCursor) String() string {
	return c.CreatedAt.UTC().Format(time.RFC3339Nano) + "_" + c.ID
}

// ParseQuizCursor はStringの出力をQuizCursorに戻す。
func ParseQuizCursor(s string) (QuizCursor, error) {
	ts, id, ok := strings.Cut(s, "_")
	if !ok {
		return QuizCursor{}, fmt.Errorf("cursor has no id: %q", s)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return QuizCursor{}, fmt.Errorf("invalid cursor time: %w", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		return QuizCursor{}, fmt.Errorf("invalid cursor id: %w", err)
	}
	return QuizCursor{CreatedAt: createdAt, ID: id}, nil
}

// Question はクイズの1問を表す。
// AnswerIndexはChoicesの中の正解の位置（0始まり）。
type Question struct {
	Prompt      string   `json:"prompt"`
	Choices     []string `json:"choices"`
	AnswerIndex int      `json:"answerIndex"`
	Explanation string   `json:"explanation"`
}

// Attempt はユーザーによるクイズの解答結果を表す。
type Attempt struct {
	ID        string
	QuizID    string
	UserID    string
	Answers   []int
	Score     int
	Total     int
	CreatedAt time.Time
}
