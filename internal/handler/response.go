package handler

import (
	"time"

	"github.com/hitoshi/quizroom/internal/model"
	"github.com/hitoshi/quizroom/internal/quiz"
	"github.com/hitoshi/quizroom/internal/room"
)

// quizResponse はクイズ本体のAPIレスポンス。
type quizResponse struct {
	ID         string           `json:"id"`
	Topic      string           `json:"topic"`
	Difficulty string           `json:"difficulty"`
	Language   string           `json:"language"`
	Questions  []model.Question `json:"questions"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// quizSummaryResponse は履歴一覧の1件分。問題本体は含めない。
type quizSummaryResponse struct {
	ID            string    `json:"id"`
	Topic         string    `json:"topic"`
	Difficulty    string    `json:"difficulty"`
	Language      string    `json:"language"`
	QuestionCount int       `json:"questionCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// usageResponse は生成1回分のトークン使用量。
type usageResponse struct {
	Model            string `json:"model"`
	PromptTokens     int    `json:"promptTokens"`
	CompletionTokens int    `json:"completionTokens"`
	TotalTokens      int    `json:"totalTokens"`
}

// generateResponse はクイズ生成のAPIレスポンス。
type generateResponse struct {
	Quiz  quizResponse  `json:"quiz"`
	Usage usageResponse `json:"usage"`
}

// historyResponse はクイズ履歴のAPIレスポンス。
// nextCursorは続きがある場合のみ設定する。
type historyResponse struct {
	Quizzes    []quizSummaryResponse `json:"quizzes"`
	NextCursor string                `json:"nextCursor,omitempty"`
}

// attemptResponse は解答結果のAPIレスポンス。
type attemptResponse struct {
	ID        string    `json:"id"`
	QuizID    string    `json:"quizId"`
	Answers   []int     `json:"answers"`
	Score     int       `json:"score"`
	Total     int       `json:"total"`
	CreatedAt time.Time `json:"createdAt"`
}

// usageSummaryResponse はユーザーごとの使用量集計のAPIレスポンス。
type usageSummaryResponse struct {
	Generations      int `json:"generations"`
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// playerResponse はルーム参加者のAPIレスポンス。
type playerResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Score       int       `json:"score"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// roomResponse はルームのAPIレスポンス。
type roomResponse struct {
	ID         string           `json:"id"`
	Code       string           `json:"code"`
	HostID     string           `json:"hostId"`
	QuizID     string           `json:"quizId,omitempty"`
	Status     string           `json:"status"`
	MaxPlayers int              `json:"maxPlayers"`
	Players    []playerResponse `json:"players,omitempty"`
	Quiz       *quizResponse    `json:"quiz,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// settingsResponse はユーザー設定のAPIレスポンス。
type settingsResponse struct {
	Language      string `json:"language"`
	Difficulty    string `json:"difficulty"`
	QuestionCount int    `json:"questionCount"`
}

// --- 変換ヘルパー ---

func toQuizResponse(q *model.Quiz) quizResponse {
	questions := q.Questions
	if questions == nil {
		questions = []model.Question{}
	}
	return quizResponse{
		ID:         q.ID,
		Topic:      q.Topic,
		Difficulty: string(q.Difficulty),
		Language:   q.Language,
		Questions:  questions,
		CreatedAt:  q.CreatedAt,
	}
}

func toGenerateResponse(result *quiz.GenerateResult) generateResponse {
	resp := generateResponse{Quiz: toQuizResponse(result.Quiz)}
	if u := result.Usage; u != nil {
		resp.Usage = usageResponse{
			Model:            u.Model,
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return resp
}

func toHistoryResponse(page *quiz.HistoryPage) historyResponse {
	resp := historyResponse{Quizzes: make([]quizSummaryResponse, len(page.Quizzes))}
	for i, q := range page.Quizzes {
		resp.Quizzes[i] = quizSummaryResponse{
			ID:            q.ID,
			Topic:         q.Topic,
			Difficulty:    string(q.Difficulty),
			Language:      q.Language,
			QuestionCount: len(q.Questions),
			CreatedAt:     q.CreatedAt,
		}
	}
	if !page.NextCursor.IsZero() {
		resp.NextCursor = page.NextCursor.String()
	}
	return resp
}

func toAttemptResponse(a *model.Attempt) attemptResponse {
	return attemptResponse{
		ID:        a.ID,
		QuizID:    a.QuizID,
		Answers:   a.Answers,
		Score:     a.Score,
		Total:     a.Total,
		CreatedAt: a.CreatedAt,
	}
}

func toPlayerResponse(p model.Player) playerResponse {
	return playerResponse{
		ID:          p.ID,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Score:       p.Score,
		JoinedAt:    p.JoinedAt,
	}
}

func toRoomResponse(r model.Room) roomResponse {
	return roomResponse{
		ID:         r.ID,
		Code:       r.Code,
		HostID:     r.HostID,
		QuizID:     r.QuizID,
		Status:     string(r.Status),
		MaxPlayers: r.MaxPlayers,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func toRoomDetailResponse(d *room.Detail) roomResponse {
	resp := toRoomResponse(d.Room)
	resp.Players = make([]playerResponse, len(d.Players))
	for i, p := range d.Players {
		resp.Players[i] = toPlayerResponse(p)
	}
	if d.Quiz != nil {
		q := toQuizResponse(d.Quiz)
		resp.Quiz = &q
	}
	return resp
}

func toSettingsResponse(s *model.Settings) settingsResponse {
	return settingsResponse{
		Language:      s.Language,
		Difficulty:    string(s.Difficulty),
		QuestionCount: s.QuestionCount,
	}
}
