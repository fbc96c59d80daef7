// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, quiz, room, system
	Action   string // ユーザー向け対処方法

	// RetryAfterSeconds は0より大きい場合にRetry-Afterヘッダーとして返す秒数。
	RetryAfterSeconds int
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeQuizNotFound       = "QUIZ_NOT_FOUND"
	ErrCodeGenerationFailed   = "GENERATION_FAILED"
	ErrCodeTranslationFailed  = "TRANSLATION_FAILED"
	ErrCodeRoomNotFound       = "ROOM_NOT_FOUND"
	ErrCodeRoomFull           = "ROOM_FULL"
	ErrCodeRoomNotJoinable    = "ROOM_NOT_JOINABLE"
	ErrCodeRoomAlreadyStarted = "ROOM_ALREADY_STARTED"
	ErrCodeRoomNotPlaying     = "ROOM_NOT_PLAYING"
	ErrCodeNotRoomHost        = "NOT_ROOM_HOST"
	ErrCodeNotRoomPlayer      = "NOT_ROOM_PLAYER"
	ErrCodeRoomQuizRequired   = "ROOM_QUIZ_REQUIRED"
	ErrCodeEmailFailed        = "EMAIL_FAILED"
	ErrCodeEmailDisabled      = "EMAIL_DISABLED"
)

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
// fieldsには不正な項目名とその理由を渡す。
func NewValidationError(fields ...string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力値が不正です: %s", strings.Join(fields, ", ")),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewRateLimitedError はクイズ生成の利用上限エラーを生成する。
// retryAfterは上限がリセットされるまでの時間で、秒単位に切り上げる。
func NewRateLimitedError(retryAfter time.Duration) *APIError {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return &APIError{
		Code:              ErrCodeRateLimited,
		Message:           "クイズ生成の利用上限に達しました。",
		Category:          "system",
		Action:            "しばらく待ってから再度お試しください。",
		RetryAfterSeconds: seconds,
	}
}

// NewTooManyRequestsError はAPI全般のリクエスト頻度制限エラーを生成する。
func NewTooManyRequestsError(retryAfter time.Duration) *APIError {
	apiErr := NewRateLimitedError(retryAfter)
	apiErr.Message = "リクエストが多すぎます。"
	apiErr.Action = "しばらく待ってから再度お試しください。"
	return apiErr
}

// NewQuizNotFoundError はクイズ未検出エラーを生成する。
func NewQuizNotFoundError(quizID string) *APIError {
	return &APIError{
		Code:     ErrCodeQuizNotFound,
		Message:  fmt.Sprintf("指定されたクイズが見つかりません: %s", quizID),
		Category: "quiz",
		Action:   "クイズIDを確認してください。",
	}
}

// NewGenerationFailedError はLLMによるクイズ生成失敗エラーを生成する。
func NewGenerationFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeGenerationFailed,
		Message:  fmt.Sprintf("クイズの生成に失敗しました: %s", reason),
		Category: "quiz",
		Action:   "トピックを変えるか、しばらく待ってから再度お試しください。",
	}
}

// NewTranslationFailedError は翻訳失敗エラーを生成する。
func NewTranslationFailedError(language string) *APIError {
	return &APIError{
		Code:     ErrCodeTranslationFailed,
		Message:  fmt.Sprintf("クイズの翻訳に失敗しました: %s", language),
		Category: "quiz",
		Action:   "別の言語を指定するか、しばらく待ってから再度お試しください。",
	}
}

// NewRoomNotFoundError はルーム未検出エラーを生成する。
func NewRoomNotFoundError(code string) *APIError {
	return &APIError{
		Code:     ErrCodeRoomNotFound,
		Message:  fmt.Sprintf("指定されたルームが見つかりません: %s", code),
		Category: "room",
		Action:   "招待コードを確認してください。",
	}
}

// NewRoomFullError はルームの定員超過エラーを生成する。
func NewRoomFullError(maxPlayers int) *APIError {
	return &APIError{
		Code:     ErrCodeRoomFull,
		Message:  fmt.Sprintf("ルームが定員（%d人）に達しています。", maxPlayers),
		Category: "room",
		Action:   "別のルームに参加してください。",
	}
}

// NewRoomNotJoinableError は参加受付が終了しているルームへの参加エラーを生成する。
func NewRoomNotJoinableError(status RoomStatus) *APIError {
	return &APIError{
		Code:     ErrCodeRoomNotJoinable,
		Message:  fmt.Sprintf("このルームには参加できません（状態: %s）。", status),
		Category: "room",
		Action:   "ホストに新しいルームを作成してもらってください。",
	}
}

// NewRoomAlreadyStartedError は開始済みルームを再度開始しようとした場合のエラーを生成する。
func NewRoomAlreadyStartedError() *APIError {
	return &APIError{
		Code:     ErrCodeRoomAlreadyStarted,
		Message:  "ルームは既に開始されています。",
		Category: "room",
		Action:   "ルームの状態を再読み込みしてください。",
	}
}

// NewRoomNotPlayingError は進行中でないルームへのスコア送信エラーを生成する。
func NewRoomNotPlayingError() *APIError {
	return &APIError{
		Code:     ErrCodeRoomNotPlaying,
		Message:  "ルームは進行中ではありません。",
		Category: "room",
		Action:   "ホストがクイズを開始するまでお待ちください。",
	}
}

// NewNotRoomHostError はホスト以外がホスト専用操作を行った場合のエラーを生成する。
func NewNotRoomHostError() *APIError {
	return &APIError{
		Code:     ErrCodeNotRoomHost,
		Message:  "この操作はルームのホストのみ実行できます。",
		Category: "room",
		Action:   "ホストに操作を依頼してください。",
	}
}

// NewNotRoomPlayerError は参加者以外による操作のエラーを生成する。
func NewNotRoomPlayerError() *APIError {
	return &APIError{
		Code:     ErrCodeNotRoomPlayer,
		Message:  "このルームに参加していません。",
		Category: "room",
		Action:   "招待コードでルームに参加してください。",
	}
}

// NewRoomQuizRequiredError はクイズ未設定のルームを開始しようとした場合のエラーを生成する。
func NewRoomQuizRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeRoomQuizRequired,
		Message:  "ルームにクイズが設定されていません。",
		Category: "room",
		Action:   "クイズを設定してからルームを開始してください。",
	}
}

// NewEmailFailedError は招待メール送信失敗エラーを生成する。
func NewEmailFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailFailed,
		Message:  "招待メールの送信に失敗しました。",
		Category: "room",
		Action:   "メールアドレスを確認し、しばらく待ってから再度お試しください。",
	}
}

// NewEmailDisabledError はメール送信が未設定の場合のエラーを生成する。
func NewEmailDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailDisabled,
		Message:  "メール送信は有効化されていません。",
		Category: "system",
		Action:   "招待コードを直接共有してください。",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
