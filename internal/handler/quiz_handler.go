package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/quizroom/internal/middleware"
	"github.com/hitoshi/quizroom/internal/model"
	"github.com/hitoshi/quizroom/internal/quiz"
)

// QuizServiceInterface はクイズハンドラーが必要とするサービスインターフェース。
type QuizServiceInterface interface {
	// Generate はLLMでクイズを生成して保存し、使用量を記録する。
	Generate(ctx context.Context, userID string, params quiz.GenerateParams) (*quiz.GenerateResult, error)
	// History はクイズ履歴をcursorより古いものから新しい順に返す。
	History(ctx context.Context, userID string, cursor model.QuizCursor, limit int) (*quiz.HistoryPage, error)
	// Get は自分のクイズを取得する。
	Get(ctx context.Context, userID, quizID string) (*model.Quiz, error)
	// SubmitAttempt は解答を採点して保存する。
	SubmitAttempt(ctx context.Context, userID, quizID string, answers []int) (*model.Attempt, error)
	// ListAttempts は自分のクイズの解答結果一覧を返す。
	ListAttempts(ctx context.Context, userID, quizID string) ([]*model.Attempt, error)
	// Usage はトークン使用量の集計を返す。
	Usage(ctx context.Context, userID string) (*model.UsageSummary, error)
}

// QuizHandler はクイズのHTTPハンドラー。
type QuizHandler struct {
	service QuizServiceInterface
}

// NewQuizHandler はQuizHandlerを生成する。
func NewQuizHandler(service QuizServiceInterface) *QuizHandler {
	return &QuizHandler{service: service}
}

// submitAttemptRequest は解答送信リクエストのボディ。
type submitAttemptRequest struct {
	Answers []int `json:"answers"`
}

// Generate はクイズを生成する。
// GET /api/v1/quizzes/generate?topic=...&difficulty=...&count=...&language=...
func (h *QuizHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	params := quiz.GenerateParams{
		Topic:      q.Get("topic"),
		Difficulty: q.Get("difficulty"),
		Language:   q.Get("language"),
	}
	if raw := q.Get("count"); raw != "" {
		count, err := strconv.Atoi(raw)
		if err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("count"))
			return
		}
		params.Count = count
	}

	result, err := h.service.Generate(r.Context(), userID, params)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGenerateResponse(result))
}

// ListQuizzes はクイズ履歴を返す。
// GET /api/v1/quizzes?cursor=<nextCursor>&limit=N
func (h *QuizHandler) ListQuizzes(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var invalid []string

	var cursor model.QuizCursor
	if raw := q.Get("cursor"); raw != "" {
		c, err := model.ParseQuizCursor(raw)
		if err != nil {
			invalid = append(invalid, "cursor")
		}
		cursor = c
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil {
			invalid = append(invalid, "limit")
		}
		limit = l
	}

	if len(invalid) > 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(invalid...))
		return
	}

	page, err := h.service.History(r.Context(), userID, cursor, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toHistoryResponse(page))
}

// GetQuiz はクイズ詳細を返す。
// GET /api/v1/quizzes/{id}
func (h *QuizHandler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	qz, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toQuizResponse(qz))
}

// SubmitAttempt は解答を採点して保存する。
// POST /api/v1/quizzes/{id}/attempts
func (h *QuizHandler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req submitAttemptRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	attempt, err := h.service.SubmitAttempt(r.Context(), userID, chi.URLParam(r, "id"), req.Answers)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAttemptResponse(attempt))
}

// ListAttempts は解答結果一覧を返す。
// GET /api/v1/quizzes/{id}/attempts
func (h *QuizHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	attempts, err := h.service.ListAttempts(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]attemptResponse, len(attempts))
	for i, a := range attempts {
		results[i] = toAttemptResponse(a)
	}
	writeJSON(w, http.StatusOK, results)
}

// GetUsage はトークン使用量の集計を返す。
// GET /api/v1/usage
func (h *QuizHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	summary, err := h.service.Usage(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, usageSummaryResponse{
		Generations:      summary.Generations,
		PromptTokens:     summary.PromptTokens,
		CompletionTokens: summary.CompletionTokens,
		TotalTokens:      summary.TotalTokens,
	})
}

// SetupQuizRoutes はクイズ関連のルーティングを設定したchi.Routerを返す。
func SetupQuizRoutes(service QuizServiceInterface) http.Handler {
	r := chi.NewRouter()
	h := NewQuizHandler(service)
	h.routes(r)
	return r
}

func (h *QuizHandler) routes(r chi.Router) {
	r.Route("/api/v1/quizzes", func(r chi.Router) {
		r.Get("/", h.ListQuizzes)
		r.Get("/generate", h.Generate)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetQuiz)
			r.Post("/attempts", h.SubmitAttempt)
			r.Get("/attempts", h.ListAttempts)
		})
	})
	r.Get("/api/v1/usage", h.GetUsage)
}
