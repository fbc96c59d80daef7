package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/quizroom/internal/model"
	"github.com/hitoshi/quizroom/internal/room"
)

// RoomServiceInterface はルームハンドラーが必要とするサービスインターフェース。
type RoomServiceInterface interface {
	Create(ctx context.Context, userID string, params room.CreateParams) (*room.Detail, error)
	Get(ctx context.Context, userID, code string) (*room.Detail, error)
	Join(ctx context.Context, userID, code, displayName string) (*model.Player, bool, error)
	Leave(ctx context.Context, userID, code string) error
	Start(ctx context.Context, userID, code string) (*model.Room, error)
	SubmitScore(ctx context.Context, userID, code string, score int) error
	Finish(ctx context.Context, userID, code string) (*room.Detail, error)
	Invite(ctx context.Context, userID, code, email string) error
}

// RoomHandler はマルチプレイヤールームのHTTPハンドラー。
type RoomHandler struct {
	service RoomServiceInterface
}

// NewRoomHandler はRoomHandlerを生成する。
func NewRoomHandler(service RoomServiceInterface) *RoomHandler {
	return &RoomHandler{service: service}
}

type createRoomRequest struct {
	QuizID      string `json:"quizId"`
	MaxPlayers  int    `json:"maxPlayers"`
	DisplayName string `json:"displayName"`
}

type joinRoomRequest struct {
	DisplayName string `json:"displayName"`
}

type submitScoreRequest struct {
	Score *int `json:"score"`
}

type inviteRequest struct {
	Email string `json:"email"`
}

// CreateRoom はルームを作成する。
// POST /api/v1/rooms
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createRoomRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	detail, err := h.service.Create(r.Context(), userID, room.CreateParams{
		QuizID:      req.QuizID,
		MaxPlayers:  req.MaxPlayers,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toRoomDetailResponse(detail))
}

// GetRoom は招待コードでルームを取得する。
// GET /api/v1/rooms/{roomCode}
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	detail, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "roomCode"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRoomDetailResponse(detail))
}

// JoinRoom はルームに参加する。新規参加は201、参加済みの場合は200を返す。
// POST /api/v1/rooms/{roomCode}
func (h *RoomHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req joinRoomRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	player, created, err := h.service.Join(r.Context(), userID, chi.URLParam(r, "roomCode"), req.DisplayName)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toPlayerResponse(*player))
}

// LeaveRoom はルームから退出する。
// DELETE /api/v1/rooms/{roomCode}/players/me
func (h *RoomHandler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Leave(r.Context(), userID, chi.URLParam(r, "roomCode")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StartRoom はルームを開始する（ホストのみ）。
// POST /api/v1/rooms/{roomCode}/start
func (h *RoomHandler) StartRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	rm, err := h.service.Start(r.Context(), userID, chi.URLParam(r, "roomCode"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRoomResponse(*rm))
}

// SubmitScore は進行中のルームでスコアを記録する。
// POST /api/v1/rooms/{roomCode}/scores
func (h *RoomHandler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req submitScoreRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Score == nil {
		handleServiceError(w, model.NewValidationError("score"))
		return
	}

	if err := h.service.SubmitScore(r.Context(), userID, chi.URLParam(r, "roomCode"), *req.Score); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// FinishRoom はルームを終了する（ホストのみ）。
// POST /api/v1/rooms/{roomCode}/finish
func (h *RoomHandler) FinishRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	detail, err := h.service.Finish(r.Context(), userID, chi.URLParam(r, "roomCode"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRoomDetailResponse(detail))
}

// InviteToRoom は招待メールを送信する。
// POST /api/v1/rooms/{roomCode}/invite
func (h *RoomHandler) InviteToRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req inviteRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.service.Invite(r.Context(), userID, chi.URLParam(r, "roomCode"), req.Email); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// SetupRoomRoutes はルーム関連のルーティングを設定したchi.Routerを返す。
func SetupRoomRoutes(service RoomServiceInterface) http.Handler {
	r := chi.NewRouter()
	NewRoomHandler(service).routes(r, nil)
	return r
}

// routes はルームのルーティングを登録する。realtimeがnilでない場合はWebSocketのルートも登録する。
func (h *RoomHandler) routes(r chi.Router, realtime http.HandlerFunc) {
	r.Route("/api/v1/rooms", func(r chi.Router) {
		r.Post("/", h.CreateRoom)

		r.Route("/{roomCode}", func(r chi.Router) {
			r.Get("/", h.GetRoom)
			r.Post("/", h.JoinRoom)
			r.Delete("/players/me", h.LeaveRoom)
			r.Post("/start", h.StartRoom)
			r.Post("/scores", h.SubmitScore)
			r.Post("/finish", h.FinishRoom)
			r.Post("/invite", h.InviteToRoom)
			if realtime != nil {
				r.Get("/realtime", realtime)
			}
		})
	})
}
