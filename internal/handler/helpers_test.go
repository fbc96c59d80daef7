package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/quizroom/internal/middleware"
	"github.com/hitoshi/quizroom/internal/model"
	"github.com/hitoshi/quizroom/internal/quiz"
	"github.com/hitoshi/quizroom/internal/room"
	"github.com/hitoshi/quizroom/internal/settings"
)

// withUserID はテスト用に認証済みユーザーIDをコンテキストに注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// --- モック定義 ---

// mockQuizService はQuizServiceInterfaceのモック実装。
type mockQuizService struct {
	generateFn      func(ctx context.Context, userID string, params quiz.GenerateParams) (*quiz.GenerateResult, error)
	historyFn       func(ctx context.Context, userID string, cursor model.QuizCursor, limit int) (*quiz.HistoryPage, error)
	getFn           func(ctx context.Context, userID, quizID string) (*model.Quiz, error)
	submitAttemptFn func(ctx context.Context, userID, quizID string, answers []int) (*model.Attempt, error)
	listAttemptsFn  func(ctx context.Context, userID, quizID string) ([]*model.Attempt, error)
	usageFn         func(ctx context.Context, userID string) (*model.UsageSummary, error)
}

func (m *mockQuizService) Generate(ctx context.Context, userID string, params quiz.GenerateParams) (*quiz.GenerateResult, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx, userID, params)
	}
	return nil, nil
}

func (m *mockQuizService) History(ctx context.Context, userID string, cursor model.QuizCursor, limit int) (*quiz.HistoryPage, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID, cursor, limit)
	}
	return &quiz.HistoryPage{}, nil
}

func (m *mockQuizService) Get(ctx context.Context, userID, quizID string) (*model.Quiz, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, quizID)
	}
	return nil, model.NewQuizNotFoundError(quizID)
}

func (m *mockQuizService) SubmitAttempt(ctx context.Context, userID, quizID string, answers []int) (*model.Attempt, error) {
	if m.submitAttemptFn != nil {
		return m.submitAttemptFn(ctx, userID, quizID, answers)
	}
	return nil, nil
}

func (m *mockQuizService) ListAttempts(ctx context.Context, userID, quizID string) ([]*model.Attempt, error) {
	if m.listAttemptsFn != nil {
		return m.listAttemptsFn(ctx, userID, quizID)
	}
	return []*model.Attempt{}, nil
}

func (m *mockQuizService) Usage(ctx context.Context, userID string) (*model.UsageSummary, error) {
	if m.usageFn != nil {
		return m.usageFn(ctx, userID)
	}
	return &model.UsageSummary{}, nil
}

// mockRoomService はRoomServiceInterfaceのモック実装。
type mockRoomService struct {
	createFn      func(ctx context.Context, userID string, params room.CreateParams) (*room.Detail, error)
	getFn         func(ctx context.Context, userID, code string) (*room.Detail, error)
	joinFn        func(ctx context.Context, userID, code, displayName string) (*model.Player, bool, error)
	leaveFn       func(ctx context.Context, userID, code string) error
	startFn       func(ctx context.Context, userID, code string) (*model.Room, error)
	submitScoreFn func(ctx context.Context, userID, code string, score int) error
	finishFn      func(ctx context.Context, userID, code string) (*room.Detail, error)
	inviteFn      func(ctx context.Context, userID, code, email string) error
}

func (m *mockRoomService) Create(ctx context.Context, userID string, params room.CreateParams) (*room.Detail, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, params)
	}
	return nil, nil
}

func (m *mockRoomService) Get(ctx context.Context, userID, code string) (*room.Detail, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, code)
	}
	return nil, model.NewRoomNotFoundError(code)
}

func (m *mockRoomService) Join(ctx context.Context, userID, code, displayName string) (*model.Player, bool, error) {
	if m.joinFn != nil {
		return m.joinFn(ctx, userID, code, displayName)
	}
	return nil, false, nil
}

func (m *mockRoomService) Leave(ctx context.Context, userID, code string) error {
	if m.leaveFn != nil {
		return m.leaveFn(ctx, userID, code)
	}
	return nil
}

func (m *mockRoomService) Start(ctx context.Context, userID, code string) (*model.Room, error) {
	if m.startFn != nil {
		return m.startFn(ctx, userID, code)
	}
	return nil, nil
}

func (m *mockRoomService) SubmitScore(ctx context.Context, userID, code string, score int) error {
	if m.submitScoreFn != nil {
		return m.submitScoreFn(ctx, userID, code, score)
	}
	return nil
}

func (m *mockRoomService) Finish(ctx context.Context, userID, code string) (*room.Detail, error) {
	if m.finishFn != nil {
		return m.finishFn(ctx, userID, code)
	}
	return nil, nil
}

func (m *mockRoomService) Invite(ctx context.Context, userID, code, email string) error {
	if m.inviteFn != nil {
		return m.inviteFn(ctx, userID, code, email)
	}
	return nil
}

// mockSettingsService はSettingsServiceInterfaceのモック実装。
type mockSettingsService struct {
	getFn    func(ctx context.Context, userID string) (*model.Settings, error)
	updateFn func(ctx context.Context, userID string, params settings.UpdateParams) (*model.Settings, error)
}

func (m *mockSettingsService) Get(ctx context.Context, userID string) (*model.Settings, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return model.DefaultSettings(userID), nil
}

func (m *mockSettingsService) Update(ctx context.Context, userID string, params settings.UpdateParams) (*model.Settings, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, params)
	}
	return model.DefaultSettings(userID), nil
}

// mockRealtimeServer はRealtimeServerのモック実装。
type mockRealtimeServer struct {
	serveFn func(conn *websocket.Conn, roomCode, userID string)
}

func (m *mockRealtimeServer) Serve(conn *websocket.Conn, roomCode, userID string) {
	if m.serveFn != nil {
		m.serveFn(conn, roomCode, userID)
		return
	}
	conn.Close()
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// testRoomDetail はテスト用のルーム詳細を返す。
func testRoomDetail(status model.RoomStatus, playerIDs ...string) *room.Detail {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d := &room.Detail{RoomWithPlayers: model.RoomWithPlayers{
		Room: model.Room{
			ID:         "room-1",
			Code:       "ABC234",
			HostID:     "host",
			QuizID:     "quiz-1",
			Status:     status,
			MaxPlayers: 4,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}}
	for i, id := range playerIDs {
		d.Players = append(d.Players, model.Player{
			ID:          "player-" + id,
			RoomID:      "room-1",
			UserID:      id,
			DisplayName: "Player " + id,
			Score:       i,
			JoinedAt:    now,
		})
	}
	return d
}
