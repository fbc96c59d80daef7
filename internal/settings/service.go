// Package settings はユーザーごとのクイズ生成既定値を管理する。
package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/quizroom/internal/model"
	"github.com/hitoshi/quizroom/internal/repository"
)

// UpdateParams は設定の部分更新パラメータ。nilのフィールドは変更しない。
type UpdateParams struct {
	Language      *string
	Difficulty    *string
	QuestionCount *int
}

// Service はユーザー設定のサービス層。
type Service struct {
	repo repository.SettingsRepository
	now  func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.SettingsRepository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// Get はユーザー設定を返す。未保存の場合は既定値を返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.Settings, error) {
	settings, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("設定の取得に失敗しました: %w", err)
	}
	if settings == nil {
		return model.DefaultSettings(userID), nil
	}
	return settings, nil
}

// Update はユーザー設定を部分更新する。
// すべての不正な項目をまとめてVALIDATION_FAILEDとして返す。
func (s *Service) Update(ctx context.Context, userID string, params UpdateParams) (*model.Settings, error) {
	var invalid []string
	if params.Language != nil && !model.ValidLanguage(*params.Language) {
		invalid = append(invalid, "language")
	}
	if params.Difficulty != nil && !model.Difficulty(*params.Difficulty).Valid() {
		invalid = append(invalid, "difficulty")
	}
	if params.QuestionCount != nil && !model.ValidQuestionCount(*params.QuestionCount) {
		invalid = append(invalid, "questionCount")
	}
	if len(invalid) > 0 {
		return nil, model.NewValidationError(invalid...)
	}

	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	updated := *current
	if params.Language != nil {
		updated.Language = *params.Language
	}
	if params.Difficulty != nil {
		updated.Difficulty = model.Difficulty(*params.Difficulty)
	}
	if params.QuestionCount != nil {
		updated.QuestionCount = *params.QuestionCount
	}
	updated.UpdatedAt = s.now()

	if err := s.repo.Upsert(ctx, &updated); err != nil {
		return nil, fmt.Errorf("設定の保存に失敗しました: %w", err)
	}
	return &updated, nil
}
