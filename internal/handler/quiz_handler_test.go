package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/quizroom/internal/model"
	"github.com/hitoshi/quizroom/internal/quiz"
)

func testQuiz() *model.Quiz {
	return &model.Quiz{
		ID:         "quiz-1",
		UserID:     "user-123",
		Topic:      "Go言語",
		Difficulty: model.DifficultyEasy,
		Language:   "ja",
		Questions: []model.Question{
			{Prompt: "Q1", Choices: []string{"a", "b", "c", "d"}, AnswerIndex: 1, Explanation: "e1"},
			{Prompt: "Q2", Choices: []string{"a", "b", "c", "d"}, AnswerIndex: 2, Explanation: "e2"},
		},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// --- GET /api/v1/quizzes/generate テスト ---

func TestQuizHandler_Generate_Success(t *testing.T) {
	svc := &mockQuizService{
		generateFn: func(ctx context.Context, userID string, params quiz.GenerateParams) (*quiz.GenerateResult, error) {
			if userID != "user-123" {
				t.Errorf("userID = %q, want %q", userID, "user-123")
			}
			want := quiz.GenerateParams{Topic: "Go言語", Difficulty: "easy", Count: 2, Language: "ja"}
			if params != want {
				t.Errorf("params = %+v, want %+v", params, want)
			}
			return &quiz.GenerateResult{
				Quiz: testQuiz(),
				Usage: &model.UsageRecord{
					Model:            "gemini-1.5-flash",
					PromptTokens:     100,
					CompletionTokens: 200,
					TotalTokens:      300,
				},
			}, nil
		},
	}
	h := NewQuizHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/generate?topic=Go%E8%A8%80%E8%AA%9E&difficulty=easy&count=2&language=ja", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.Generate(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var result generateResponse
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Quiz.ID != "quiz-1" || len(result.Quiz.Questions) != 2 {
		t.Errorf("quiz = %+v", result.Quiz)
	}
	if result.Quiz.Questions[1].AnswerIndex != 2 {
		t.Errorf("answerIndex = %d, want 2", result.Quiz.Questions[1].AnswerIndex)
	}
	if result.Usage.TotalTokens != 300 || result.Usage.Model != "gemini-1.5-flash" {
		t.Errorf("usage = %+v", result.Usage)
	}
}

// TestQuizHandler_Generate_ResponseIsCamelCase はレスポンスのJSONキーがcamelCaseであることを検証する。
func TestQuizHandler_Generate_ResponseIsCamelCase(t *testing.T) {
	svc := &mockQuizService{
		generateFn: func(ctx context.Context, userID string, params quiz.GenerateParams) (*quiz.GenerateResult, error) {
			return &quiz.GenerateResult{Quiz: testQuiz(), Usage: &model.UsageRecord{TotalTokens: 1}}, nil
		},
	}
	h := NewQuizHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/generate?topic=x", nil), "user-123")
	w := httptest.NewRecorder()
	h.Generate(w, req)

	var raw map[string]map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if _, ok := raw["quiz"]["createdAt"]; !ok {
		t.Error("quiz.createdAt missing")
	}
	if _, ok := raw["usage"]["totalTokens"]; !ok {
		t.Error("usage.totalTokens missing")
	}
}

// TestQuizHandler_Generate_NonNumericCount_Returns400 はcountが数値でない場合に400になることを検証する。
func TestQuizHandler_Generate_NonNumericCount_Returns400(t *testing.T) {
	called := false
	svc := &mockQuizService{
		generateFn: func(ctx context.Context, userID string, params quiz.GenerateParams) (*quiz.GenerateResult, error) {
			called = true
			return nil, nil
		},
	}
	h := NewQuizHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/generate?topic=x&count=abc", nil), "user-123")
	w := httptest.NewRecorder()
	h.Generate(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if called {
		t.Error("service should not be called")
	}
	if got := parseAPIErrorResponse(t, w)["code"]; got != model.ErrCodeValidationFailed {
		t.Errorf("code = %q, want %q", got, model.ErrCodeValidationFailed)
	}
}

// TestQuizHandler_Generate_ServiceErrorStatus はサービスエラーがHTTPステータスに変換されることを検証する。
func TestQuizHandler_Generate_ServiceErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"検証エラー", model.NewValidationError("topic"), http.StatusBadRequest, model.ErrCodeValidationFailed},
		{"利用上限", model.NewRateLimitedError(90 * time.Second), http.StatusTooManyRequests, model.ErrCodeRateLimited},
		{"生成失敗", model.NewGenerationFailedError("timeout"), http.StatusBadGateway, model.ErrCodeGenerationFailed},
		{"翻訳失敗", model.NewTranslationFailedError("ja"), http.StatusBadGateway, model.ErrCodeTranslationFailed},
		{"予期しないエラー", errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockQuizService{
				generateFn: func(ctx context.Context, userID string, params quiz.GenerateParams) (*quiz.GenerateResult, error) {
					return nil, tt.err
				},
			}
			h := NewQuizHandler(svc)

			req := withUserID(httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/generate?topic=x", nil), "user-123")
			w := httptest.NewRecorder()
			h.Generate(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := parseAPIErrorResponse(t, w)["code"]; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

// TestQuizHandler_Generate_RetryAfterHeader は利用上限エラーでRetry-Afterヘッダーが付与されることを検証する。
func TestQuizHandler_Generate_RetryAfterHeader(t *testing.T) {
	svc := &mockQuizService{
		generateFn: func(ctx context.Context, userID string, params quiz.GenerateParams) (*quiz.GenerateResult, error) {
			return nil, model.NewRateLimitedError(90 * time.Second)
		},
	}
	h := NewQuizHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/generate?topic=x", nil), "user-123")
	w := httptest.NewRecorder()
	h.Generate(w, req)

	if got := w.Header().Get("Retry-After"); got != "90" {
		t.Errorf("Retry-After = %q, want %q", got, "90")
	}
}

// TestQuizHandler_Generate_Unauthenticated_Returns401 は未認証の場合に401になることを検証する。
func TestQuizHandler_Generate_Unauthenticated_Returns401(t *testing.T) {
	h := NewQuizHandler(&mockQuizService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/generate?topic=x", nil)
	w := httptest.NewRecorder()
	h.Generate(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- GET /api/v1/quizzes テスト ---

func TestQuizHandler_ListQuizzes_Success(t *testing.T) {
	cursor := model.QuizCursor{CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), ID: "aaaaaaaa-bbbb-4ccc-8ddd-eeeeeeeeeeee"}
	next := model.QuizCursor{CreatedAt: time.Date(2025, 12, 31, 12, 0, 0, 500, time.UTC), ID: "11111111-2222-3333-4444-555555555555"}
	svc := &mockQuizService{
		historyFn: func(ctx context.Context, userID string, c model.QuizCursor, limit int) (*quiz.HistoryPage, error) {
			if !c.CreatedAt.Equal(cursor.CreatedAt) || c.ID != cursor.ID {
				t.Errorf("cursor = %+v, want %+v", c, cursor)
			}
			if limit != 10 {
				t.Errorf("limit = %d, want 10", limit)
			}
			return &quiz.HistoryPage{Quizzes: []*model.Quiz{testQuiz()}, NextCursor: next}, nil
		},
	}
	h := NewQuizHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quizzes?cursor=2026-01-01T00:00:00Z_aaaaaaaa-bbbb-4ccc-8ddd-eeeeeeeeeeee&limit=10", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()
	h.ListQuizzes(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var result historyResponse
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(result.Quizzes) != 1 || result.Quizzes[0].QuestionCount != 2 {
		t.Errorf("quizzes = %+v", result.Quizzes)
	}
	if result.NextCursor != "2025-12-31T12:00:00.0000005Z_11111111-2222-3333-4444-555555555555" {
		t.Errorf("nextCursor = %q", result.NextCursor)
	}
}

// TestQuizHandler_ListQuizzes_Empty_ReturnsEmptyArray は履歴が空の場合にnullではなく空配列を返すことを検証する。
func TestQuizHandler_ListQuizzes_Empty_ReturnsEmptyArray(t *testing.T) {
	h := NewQuizHandler(&mockQuizService{})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/v1/quizzes", nil), "user-123")
	w := httptest.NewRecorder()
	h.ListQuizzes(w, req)

	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	quizzes, ok := raw["quizzes"].([]any)
	if !ok || len(quizzes) != 0 {
		t.Errorf("quizzes = %v, want []", raw["quizzes"])
	}
	if _, ok := raw["nextCursor"]; ok {
		t.Error("nextCursor should be omitted")
	}
}

// TestQuizHandler_ListQuizzes_InvalidQuery_Returns400 は不正なクエリをまとめて400で返すことを検証する。
func TestQuizHandler_ListQuizzes_InvalidQuery_Returns400(t *testing.T) {
	h := NewQuizHandler(&mockQuizService{})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/v1/quizzes?cursor=yesterday&limit=many", nil), "user-123")
	w := httptest.NewRecorder()
	h.ListQuizzes(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	body := parseAPIErrorResponse(t, w)
	if !bytes.Contains([]byte(body["message"]), []byte("cursor")) || !bytes.Contains([]byte(body["message"]), []byte("limit")) {
		t.Errorf("message = %q, want both fields", body["message"])
	}
}

// TestQuizHandler_ListQuizzes_TimestampOnlyCursor_Returns400 はIDを含まない古い形式のcursorを拒否することを検証する。
func TestQuizHandler_ListQuizzes_TimestampOnlyCursor_Returns400(t *testing.T) {
	h := NewQuizHandler(&mockQuizService{
		historyFn: func(ctx context.Context, userID string, c model.QuizCursor, limit int) (*quiz.HistoryPage, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/v1/quizzes?cursor=2026-01-01T00:00:00Z", nil), "user-123")
	w := httptest.NewRecorder()
	h.ListQuizzes(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// --- GET /api/v1/quizzes/{id} テスト ---

func TestQuizHandler_GetQuiz(t *testing.T) {
	svc := &mockQuizService{
		getFn: func(ctx context.Context, userID, quizID string) (*model.Quiz, error) {
			if quizID == "quiz-1" {
				return testQuiz(), nil
			}
			return nil, model.NewQuizNotFoundError(quizID)
		},
	}
	h := NewQuizHandler(svc)

	t.Run("存在するクイズ", func(t *testing.T) {
		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/quiz-1", nil), "id", "quiz-1")
		req = withUserID(req, "user-123")
		w := httptest.NewRecorder()
		h.GetQuiz(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("存在しないクイズ", func(t *testing.T) {
		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/missing", nil), "id", "missing")
		req = withUserID(req, "user-123")
		w := httptest.NewRecorder()
		h.GetQuiz(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

// --- POST /api/v1/quizzes/{id}/attempts テスト ---

func TestQuizHandler_SubmitAttempt_Success(t *testing.T) {
	svc := &mockQuizService{
		submitAttemptFn: func(ctx context.Context, userID, quizID string, answers []int) (*model.Attempt, error) {
			if quizID != "quiz-1" {
				t.Errorf("quizID = %q, want %q", quizID, "quiz-1")
			}
			if len(answers) != 2 || answers[0] != 1 || answers[1] != 0 {
				t.Errorf("answers = %v, want [1 0]", answers)
			}
			return &model.Attempt{ID: "attempt-1", QuizID: quizID, UserID: userID, Answers: answers, Score: 1, Total: 2}, nil
		},
	}
	h := NewQuizHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/quiz-1/attempts", bytes.NewBufferString(`{"answers":[1,0]}`))
	req = withChiURLParam(req, "id", "quiz-1")
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()
	h.SubmitAttempt(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	var result attemptResponse
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Score != 1 || result.Total != 2 {
		t.Errorf("score = %d/%d, want 1/2", result.Score, result.Total)
	}
}

// TestQuizHandler_SubmitAttempt_InvalidJSON_Returns400 は不正なJSONが400になることを検証する。
func TestQuizHandler_SubmitAttempt_InvalidJSON_Returns400(t *testing.T) {
	h := NewQuizHandler(&mockQuizService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/quiz-1/attempts", bytes.NewBufferString(`{"answers":`))
	req = withChiURLParam(req, "id", "quiz-1")
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()
	h.SubmitAttempt(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := parseAPIErrorResponse(t, w)["code"]; got != model.ErrCodeInvalidRequest {
		t.Errorf("code = %q, want %q", got, model.ErrCodeInvalidRequest)
	}
}

// --- GET /api/v1/quizzes/{id}/attempts テスト ---

func TestQuizHandler_ListAttempts(t *testing.T) {
	svc := &mockQuizService{
		listAttemptsFn: func(ctx context.Context, userID, quizID string) ([]*model.Attempt, error) {
			return []*model.Attempt{
				{ID: "a2", QuizID: quizID, Answers: []int{1, 2}, Score: 2, Total: 2},
				{ID: "a1", QuizID: quizID, Answers: []int{0, 0}, Score: 0, Total: 2},
			}, nil
		},
	}
	h := NewQuizHandler(svc)

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/quiz-1/attempts", nil), "id", "quiz-1")
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()
	h.ListAttempts(w, req)

	var result []attemptResponse
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(result) != 2 || result[0].ID != "a2" {
		t.Errorf("attempts = %+v", result)
	}
}

// --- GET /api/v1/usage テスト ---

func TestQuizHandler_GetUsage(t *testing.T) {
	svc := &mockQuizService{
		usageFn: func(ctx context.Context, userID string) (*model.UsageSummary, error) {
			return &model.UsageSummary{Generations: 3, PromptTokens: 30, CompletionTokens: 60, TotalTokens: 90}, nil
		},
	}
	h := NewQuizHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil), "user-123")
	w := httptest.NewRecorder()
	h.GetUsage(w, req)

	var result usageSummaryResponse
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	want := usageSummaryResponse{Generations: 3, PromptTokens: 30, CompletionTokens: 60, TotalTokens: 90}
	if result != want {
		t.Errorf("usage = %+v, want %+v", result, want)
	}
}

// --- SetupQuizRoutes テスト ---

// TestSetupQuizRoutes_GenerateTakesPrecedenceOverDetail は/generateが詳細ルートより優先されることを検証する。
func TestSetupQuizRoutes_GenerateTakesPrecedenceOverDetail(t *testing.T) {
	var generated bool
	svc := &mockQuizService{
		generateFn: func(ctx context.Context, userID string, params quiz.GenerateParams) (*quiz.GenerateResult, error) {
			generated = true
			return &quiz.GenerateResult{Quiz: testQuiz()}, nil
		},
	}
	router := SetupQuizRoutes(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/generate?topic=x", nil), "user-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !generated {
		t.Error("generate handler was not called")
	}
}
