// Package quiz はクイズ生成と履歴、解答のドメインロジックを提供する。
//
// 生成は「入力検証 → 利用上限チェック → LLM呼び出し1回 → 出力検証 → 翻訳 → 保存 → 使用量記録」
// の順に処理する。
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/quizroom/internal/llm"
	"github.com/hitoshi/quizroom/internal/metrics"
	"github.com/hitoshi/quizroom/internal/model"
	"github.com/hitoshi/quizroom/internal/quota"
	"github.com/hitoshi/quizroom/internal/repository"
	"github.com/hitoshi/quizroom/internal/security"
)

const (
	// choicesPerQuestion は1問あたりの選択肢数。
	choicesPerQuestion = 4
	// DefaultHistoryLimit は履歴取得の既定件数。
	DefaultHistoryLimit = 20
	// MaxHistoryLimit は履歴取得の最大件数。
	MaxHistoryLimit = 50
)

// SettingsProvider はユーザー設定の取得インターフェース。
type SettingsProvider interface {
	Get(ctx context.Context, userID string) (*model.Settings, error)
}

// QuestionTranslator は問題一覧の翻訳インターフェース。
type QuestionTranslator interface {
	Source() string
	NeedsTranslation(target string) bool
	TranslateQuestions(ctx context.Context, questions []model.Question, target string) ([]model.Question, error)
}

// GenerateParams はクイズ生成の入力。空のフィールドはユーザー設定の値で補完する。
type GenerateParams struct {
	Topic      string
	Difficulty string
	Count      int
	Language   string
}

// GenerateResult は生成されたクイズと使用量。
type GenerateResult struct {
	Quiz  *model.Quiz
	Usage *model.UsageRecord
}

// HistoryPage は履歴の1ページ分。NextCursorがゼロ値の場合は続きがない。
type HistoryPage struct {
	Quizzes    []*model.Quiz
	NextCursor model.QuizCursor
}

// Deps はServiceの依存関係。
type Deps struct {
	QuizRepo    repository.QuizRepository
	AttemptRepo repository.AttemptRepository
	UsageRepo   repository.UsageRepository
	Settings    SettingsProvider
	Generator   llm.Generator
	Translator  QuestionTranslator // nilの場合はLLMに対象言語で直接生成させる
	Limiter     quota.Limiter
	Sanitizer   security.TextSanitizer
	Metrics     metrics.MetricsCollector
	Logger      *slog.Logger
	Timeout     time.Duration
}

// Service はクイズのサービス層。
type Service struct {
	quizRepo    repository.QuizRepository
	attemptRepo repository.AttemptRepository
	usageRepo   repository.UsageRepository
	settings    SettingsProvider
	generator   llm.Generator
	translator  QuestionTranslator
	limiter     quota.Limiter
	sanitizer   security.TextSanitizer
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	timeout     time.Duration

	now   func() time.Time
	newID func() string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(deps Deps) *Service {
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		quizRepo:    deps.QuizRepo,
		attemptRepo: deps.AttemptRepo,
		usageRepo:   deps.UsageRepo,
		settings:    deps.Settings,
		generator:   deps.Generator,
		translator:  deps.Translator,
		limiter:     deps.Limiter,
		sanitizer:   deps.Sanitizer,
		metrics:     mc,
		logger:      logger,
		timeout:     deps.Timeout,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
}

// Generate はクイズを生成して保存し、使用量を記録する。
func (s *Service) Generate(ctx context.Context, userID string, params GenerateParams) (*GenerateResult, error) {
	req, err := s.resolveParams(ctx, userID, params)
	if err != nil {
		return nil, err
	}

	if err := s.checkQuota(ctx, userID); err != nil {
		return nil, err
	}

	// 翻訳が有効な場合は翻訳元言語で生成し、後段で対象言語に翻訳する
	target := req.Language
	translate := s.translator != nil && s.translator.NeedsTranslation(target)
	if translate {
		req.Language = s.translator.Source()
	}

	result, err := s.callGenerator(ctx, req)
	if err != nil {
		s.metrics.RecordGeneration(metrics.GenerationFailed)
		return nil, err
	}

	questions, err := s.normalizeQuestions(result.Questions, req.Count)
	if err != nil {
		s.metrics.RecordGeneration(metrics.GenerationFailed)
		s.logger.Warn("LLMの出力が不正です",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if translate {
		questions, err = s.translator.TranslateQuestions(ctx, questions, target)
		if err != nil {
			s.metrics.RecordGeneration(metrics.GenerationFailed)
			return nil, model.NewTranslationFailedError(target)
		}
	}

	now := s.now()
	quiz := &model.Quiz{
		ID:         s.newID(),
		UserID:     userID,
		Topic:      req.Topic,
		Difficulty: req.Difficulty,
		Language:   target,
		Questions:  questions,
		CreatedAt:  now,
	}
	if err := s.quizRepo.Create(ctx, quiz); err != nil {
		return nil, fmt.Errorf("クイズの保存に失敗しました: %w", err)
	}

	usage := &model.UsageRecord{
		ID:               s.newID(),
		UserID:           userID,
		QuizID:           quiz.ID,
		Model:            result.Model,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		TotalTokens:      result.TotalTokens,
		CreatedAt:        now,
	}
	// クイズは保存済みのため、使用量の記録失敗は応答を失敗させない
	if err := s.usageRepo.Create(ctx, usage); err != nil {
		s.logger.Error("使用量の記録に失敗しました",
			slog.String("user_id", userID),
			slog.String("quiz_id", quiz.ID),
			slog.Int("total_tokens", usage.TotalTokens),
			slog.String("error", err.Error()),
		)
	}

	s.metrics.RecordGeneration(metrics.GenerationSuccess)
	s.metrics.RecordTokens(result.PromptTokens, result.CompletionTokens)
	s.logger.Info("クイズを生成しました",
		slog.String("user_id", userID),
		slog.String("quiz_id", quiz.ID),
		slog.String("language", target),
		slog.Int("questions", len(questions)),
		slog.Int("total_tokens", usage.TotalTokens),
	)

	return &GenerateResult{Quiz: quiz, Usage: usage}, nil
}

// resolveParams はユーザー設定で既定値を補完し、入力を検証する。
func (s *Service) resolveParams(ctx context.Context, userID string, params GenerateParams) (llm.QuizRequest, error) {
	defaults := model.DefaultSettings(userID)
	if s.settings != nil && (params.Difficulty == "" || params.Count == 0 || params.Language == "") {
		stored, err := s.settings.Get(ctx, userID)
		if err != nil {
			return llm.QuizRequest{}, fmt.Errorf("設定の取得に失敗しました: %w", err)
		}
		defaults = stored
	}

	req := llm.QuizRequest{
		Topic:      strings.TrimSpace(params.Topic),
		Difficulty: model.Difficulty(params.Difficulty),
		Count:      params.Count,
		Language:   params.Language,
	}
	if req.Difficulty == "" {
		req.Difficulty = defaults.Difficulty
	}
	if req.Count == 0 {
		req.Count = defaults.QuestionCount
	}
	if req.Language == "" {
		req.Language = defaults.Language
	}
	if s.sanitizer != nil {
		req.Topic = s.sanitizer.Sanitize(req.Topic)
	}

	var invalid []string
	if n := utf8.RuneCountInString(req.Topic); n == 0 || n > model.MaxTopicLength {
		invalid = append(invalid, "topic")
	}
	if !req.Difficulty.Valid() {
		invalid = append(invalid, "difficulty")
	}
	if !model.ValidQuestionCount(req.Count) {
		invalid = append(invalid, "count")
	}
	if !model.ValidLanguage(req.Language) {
		invalid = append(invalid, "language")
	}
	if len(invalid) > 0 {
		return llm.QuizRequest{}, model.NewValidationError(invalid...)
	}
	return req, nil
}

// checkQuota は生成回数の上限を確認する。
// 上限ストアが利用できない場合は生成を止めず、警告ログのみ残す。
func (s *Service) checkQuota(ctx context.Context, userID string) error {
	if s.limiter == nil {
		return nil
	}
	decision, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		s.logger.Warn("利用上限の確認に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !decision.Allowed {
		s.metrics.RecordGeneration(metrics.GenerationRateLimited)
		return model.NewRateLimitedError(decision.RetryAfter)
	}
	return nil
}

func (s *Service) callGenerator(ctx context.Context, req llm.QuizRequest) (*llm.Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := s.now()
	result, err := s.generator.GenerateQuiz(ctx, req)
	s.metrics.RecordLLMLatency(s.now().Sub(start))
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, model.NewGenerationFailedError("timeout")
		case errors.Is(err, llm.ErrMalformedResponse), errors.Is(err, llm.ErrEmptyResponse):
			return nil, model.NewGenerationFailedError("invalid model output")
		default:
			return nil, model.NewGenerationFailedError("upstream error")
		}
	}
	return result, nil
}

// normalizeQuestions はLLMの出力からHTMLを取り除き、構造を検証する。
// 要求数を超えた問題は切り捨て、要求数に満たない場合は生成失敗とする。
func (s *Service) normalizeQuestions(questions []model.Question, count int) ([]model.Question, error) {
	if len(questions) > count {
		questions = questions[:count]
	}

	out := make([]model.Question, 0, len(questions))
	for i, q := range questions {
		if s.sanitizer != nil {
			q.Prompt = s.sanitizer.Sanitize(q.Prompt)
			q.Explanation = s.sanitizer.Sanitize(q.Explanation)
			q.Choices = security.SanitizeAll(s.sanitizer, q.Choices)
		}
		if q.Prompt == "" {
			return nil, model.NewGenerationFailedError(fmt.Sprintf("question %d has no prompt", i+1))
		}
		if len(q.Choices) != choicesPerQuestion {
			return nil, model.NewGenerationFailedError(fmt.Sprintf("question %d has %d choices", i+1, len(q.Choices)))
		}
		for _, c := range q.Choices {
			if c == "" {
				return nil, model.NewGenerationFailedError(fmt.Sprintf("question %d has an empty choice", i+1))
			}
		}
		if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Choices) {
			return nil, model.NewGenerationFailedError(fmt.Sprintf("question %d has answer index %d out of range", i+1, q.AnswerIndex))
		}
		out = append(out, q)
	}
	if len(out) < count {
		return nil, model.NewGenerationFailedError(fmt.Sprintf("got %d of %d questions", len(out), count))
	}
	return out, nil
}

// History はユーザーのクイズ履歴を新しい順に返す。
func (s *Service) History(ctx context.Context, userID string, cursor model.QuizCursor, limit int) (*HistoryPage, error) {
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if limit < 1 || limit > MaxHistoryLimit {
		return nil, model.NewValidationError("limit")
	}

	quizzes, err := s.quizRepo.ListByUser(ctx, userID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("クイズ履歴の取得に失敗しました: %w", err)
	}

	page := &HistoryPage{Quizzes: quizzes}
	if len(quizzes) == limit {
		last := quizzes[len(quizzes)-1]
		page.NextCursor = model.QuizCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return page, nil
}

// Get は自分のクイズを返す。他人のクイズは存在しないものとして扱う。
func (s *Service) Get(ctx context.Context, userID, quizID string) (*model.Quiz, error) {
	quiz, err := s.find(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.UserID != userID {
		return nil, model.NewQuizNotFoundError(quizID)
	}
	return quiz, nil
}

// FindByID は所有者を問わずクイズを返す。ルームの参加者への配信に使用する。
func (s *Service) FindByID(ctx context.Context, quizID string) (*model.Quiz, error) {
	return s.find(ctx, quizID)
}

func (s *Service) find(ctx context.Context, quizID string) (*model.Quiz, error) {
	if _, err := uuid.Parse(quizID); err != nil {
		return nil, model.NewQuizNotFoundError(quizID)
	}
	quiz, err := s.quizRepo.FindByID(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("クイズの取得に失敗しました: %w", err)
	}
	if quiz == nil {
		return nil, model.NewQuizNotFoundError(quizID)
	}
	return quiz, nil
}

// SubmitAttempt は解答を採点して保存する。
// answersの長さは問題数と一致する必要があり、未回答は-1で表す。
func (s *Service) SubmitAttempt(ctx context.Context, userID, quizID string, answers []int) (*model.Attempt, error) {
	quiz, err := s.Get(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}

	if len(answers) != len(quiz.Questions) {
		return nil, model.NewValidationError("answers")
	}

	score := 0
	for i, a := range answers {
		q := quiz.Questions[i]
		if a < -1 || a >= len(q.Choices) {
			return nil, model.NewValidationError(fmt.Sprintf("answers[%d]", i))
		}
		if a == q.AnswerIndex {
			score++
		}
	}

	attempt := &model.Attempt{
		ID:        s.newID(),
		QuizID:    quiz.ID,
		UserID:    userID,
		Answers:   answers,
		Score:     score,
		Total:     len(quiz.Questions),
		CreatedAt: s.now(),
	}
	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("解答結果の保存に失敗しました: %w", err)
	}
	return attempt, nil
}

// ListAttempts は自分のクイズに対する解答結果を返す。
func (s *Service) ListAttempts(ctx context.Context, userID, quizID string) ([]*model.Attempt, error) {
	if _, err := s.Get(ctx, userID, quizID); err != nil {
		return nil, err
	}
	attempts, err := s.attemptRepo.ListByQuizAndUser(ctx, quizID, userID)
	if err != nil {
		return nil, fmt.Errorf("解答結果の取得に失敗しました: %w", err)
	}
	return attempts, nil
}

// Usage はユーザーのトークン使用量の集計を返す。
func (s *Service) Usage(ctx context.Context, userID string) (*model.UsageSummary, error) {
	summary, err := s.usageRepo.SummaryByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("使用量の取得に失敗しました: %w", err)
	}
	return summary, nil
}
