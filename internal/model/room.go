// Package model はドメインモデルを定義する。
package model

import "time"

// RoomStatus はマルチプレイヤールームの状態を表す。
type RoomStatus string

const (
	// RoomStatusWaiting はロビーで参加者を待っている状態。
	RoomStatusWaiting RoomStatus = "waiting"
	// RoomStatusPlaying はクイズ進行中の状態。
	RoomStatusPlaying RoomStatus = "playing"
	// RoomStatusFinished は終了した状態。
	RoomStatusFinished RoomStatus = "finished"
)

// Room は招待コードで識別されるマルチプレイヤークイズのセッション。
type Room struct {
	ID         string
	Code       string
	HostID     string
	QuizID     string // 未設定の場合は空文字列
	Status     RoomStatus
	MaxPlayers int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Player はルームの参加者を表す。
type Player struct {
	ID          string
	RoomID      string
	UserID      string
	DisplayName string
	Score       int
	JoinedAt    time.Time
}

// RoomWithPlayers はルームと参加者一覧を結合したモデル。
type RoomWithPlayers struct {
	Room
	Players []Player
}

// HasPlayer は指定ユーザーが参加者に含まれるかどうかを返す。
func (r RoomWithPlayers) HasPlayer(userID string) bool {
	for _, p := range r.Players {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
