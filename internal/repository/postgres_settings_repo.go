package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/quizroom/internal/model"
)

// PostgresSettingsRepo はPostgreSQLを使用したユーザー設定リポジトリ。
type PostgresSettingsRepo struct {
	db *sql.DB
}

// NewPostgresSettingsRepo はPostgresSettingsRepoを生成する。
func NewPostgresSettingsRepo(db *sql.DB) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: db}
}

// FindByUserID はユーザー設定を取得する。見つからない場合はnilを返す。
func (r *PostgresSettingsRepo) FindByUserID(ctx context.Context, userID string) (*model.Settings, error) {
	s := &model.Settings{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, language, difficulty, question_count, updated_at
		 FROM user_settings WHERE user_id = $1`,
		userID,
	).Scan(&s.UserID, &s.Language, &s.Difficulty, &s.QuestionCount, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find settings: %w", err)
	}
	return s, nil
}

// Upsert はユーザー設定を作成または更新する。
func (r *PostgresSettingsRepo) Upsert(ctx context.Context, s *model.Settings) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, language, difficulty, question_count, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE SET
		     language = EXCLUDED.language,
		     difficulty = EXCLUDED.difficulty,
		     question_count = EXCLUDED.question_count,
		     updated_at = EXCLUDED.updated_at`,
		s.UserID, s.Language, s.Difficulty, s.QuestionCount, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SettingsRepository = (*PostgresSettingsRepo)(nil)
