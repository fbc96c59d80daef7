// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/quizroom/internal/model"
)

// ErrRoomCodeConflict は招待コードが既存ルームと衝突した場合に返される。
// 呼び出し側は新しいコードで再試行する。
var ErrRoomCodeConflict = errors.New("room code already exists")

// RoomNotWaitingError は参加受付中でないルームに参加者を追加しようとした場合に返される。
// Statusはロック取得時点のルームの状態。
type RoomNotWaitingError struct {
	Status model.RoomStatus
}

// Error はerrorインターフェースを実装する。
func (e *RoomNotWaitingError) Error() string {
	return fmt.Sprintf("room is not waiting for players: %s", e.Status)
}

// QuizRepository はクイズデータの永続化インターフェース。
type QuizRepository interface {
	// Create はクイズを作成する。Questionsはjsonbとして保存する。
	Create(ctx context.Context, quiz *model.Quiz) error

	// FindByID は指定IDのクイズを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Quiz, error)

	// ListByUser はユーザーのクイズ履歴を(created_at, id)の降順で取得する。
	// cursorがゼロ値の場合は先頭から取得し、それ以外はcursorより後ろの位置から返す。
	ListByUser(ctx context.Context, userID string, cursor model.QuizCursor, limit int) ([]*model.Quiz, error)
}

// AttemptRepository はクイズ解答結果の永続化インターフェース。
type AttemptRepository interface {
	// Create は解答結果を作成する。
	Create(ctx context.Context, attempt *model.Attempt) error

	// ListByQuizAndUser はユーザーの解答結果をcreated_at降順で取得する。
	ListByQuizAndUser(ctx context.Context, quizID, userID string) ([]*model.Attempt, error)
}

// UsageRepository はLLMトークン使用量の永続化インターフェース。
type UsageRepository interface {
	// Create は使用量レコードを作成する。
	Create(ctx context.Context, record *model.UsageRecord) error

	// SummaryByUser はユーザーの使用量を集計する。レコードがない場合はゼロ値を返す。
	SummaryByUser(ctx context.Context, userID string) (*model.UsageSummary, error)
}

// RoomRepository はルームデータの永続化インターフェース。
type RoomRepository interface {
	// CreateWithHost はルームとホストの参加者レコードを同一トランザクションで作成する。
	// 招待コードが衝突した場合はErrRoomCodeConflictを返す。
	CreateWithHost(ctx context.Context, room *model.Room, host *model.Player) error

	// FindByCode は招待コードでルームを検索する。見つからない場合はnilを返す。
	FindByCode(ctx context.Context, code string) (*model.Room, error)

	// TransitionStatus は現在の状態がfromのいずれかである場合のみ状態をtoに更新し、
	// updated_atを現在時刻にする。状態が一致せず更新しなかった場合はfalseを返す。
	TransitionStatus(ctx context.Context, id string, to model.RoomStatus, from ...model.RoomStatus) (bool, error)

	// DeleteStaleBefore はupdated_atがbeforeより古いルームを削除し、削除件数を返す。
	// 参加者はCASCADE削除される。
	DeleteStaleBefore(ctx context.Context, before time.Time) (int64, error)
}

// PlayerRepository はルーム参加者の永続化インターフェース。
type PlayerRepository interface {
	// AddWithinCapacity は参加者数がmaxPlayers未満の場合のみ参加者を追加する。
	// 定員に達していた場合、または同じユーザーが既に参加済みの場合はfalseを返す。
	// ルームが参加受付中でない場合は*RoomNotWaitingErrorを返す。
	AddWithinCapacity(ctx context.Context, player *model.Player, maxPlayers int) (bool, error)

	// FindByRoomAndUser はルームIDとユーザーIDで参加者を取得する。見つからない場合はnilを返す。
	FindByRoomAndUser(ctx context.Context, roomID, userID string) (*model.Player, error)

	// ListByRoom はルームの参加者をjoined_at昇順で取得する。
	ListByRoom(ctx context.Context, roomID string) ([]model.Player, error)

	// Remove は参加者を削除する。削除した場合はtrueを返す。
	Remove(ctx context.Context, roomID, userID string) (bool, error)

	// UpdateScore は参加者のスコアを更新する。
	UpdateScore(ctx context.Context, roomID, userID string, score int) error
}

// SettingsRepository はユーザー設定の永続化インターフェース。
type SettingsRepository interface {
	// FindByUserID はユーザー設定を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Settings, error)

	// Upsert はユーザー設定を作成または更新する。
	Upsert(ctx context.Context, settings *model.Settings) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
