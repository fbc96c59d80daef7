package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/quizroom/internal/model"
	"github.com/hitoshi/quizroom/internal/room"
)

// RoomFinder はリアルタイム接続前の参加者確認に使うインターフェース。
type RoomFinder interface {
	Get(ctx context.Context, userID, code string) (*room.Detail, error)
}

// RealtimeServer はアップグレード済みのWebSocket接続をルームのチャネルで処理する。
type RealtimeServer interface {
	Serve(conn *websocket.Conn, roomCode, userID string)
}

// RealtimeHandler はルームのリアルタイムチャネルへの接続を受け付ける。
type RealtimeHandler struct {
	rooms    RoomFinder
	server   RealtimeServer
	upgrader *websocket.Upgrader
}

// NewRealtimeHandler はRealtimeHandlerを生成する。
func NewRealtimeHandler(rooms RoomFinder, server RealtimeServer, upgrader *websocket.Upgrader) *RealtimeHandler {
	return &RealtimeHandler{
		rooms:    rooms,
		server:   server,
		upgrader: upgrader,
	}
}

// Connect はWebSocketにアップグレードし、切断されるまで接続を保持する。
// GET /api/v1/rooms/{roomCode}/realtime?token=...
func (h *RealtimeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	detail, err := h.rooms.Get(r.Context(), userID, chi.URLParam(r, "roomCode"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !detail.HasPlayer(userID) {
		handleServiceError(w, model.NewNotRoomPlayerError())
		return
	}
	if detail.Status == model.RoomStatusFinished {
		handleServiceError(w, model.NewRoomNotJoinableError(detail.Status))
		return
	}

	// Upgrade失敗時はUpgrader自身がエラーレスポンスを書き込む
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed",
			slog.String("room_code", detail.Code),
			slog.String("error", err.Error()),
		)
		return
	}

	h.server.Serve(conn, detail.Code, userID)
}
