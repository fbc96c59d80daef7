package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/quizroom/internal/model"
)

// PostgresUsageRepo はPostgreSQLを使用したトークン使用量リポジトリ。
type PostgresUsageRepo struct {
	db *sql.DB
}

// NewPostgresUsageRepo はPostgresUsageRepoを生成する。
func NewPostgresUsageRepo(db *sql.DB) *PostgresUsageRepo {
	return &PostgresUsageRepo{db: db}
}

// Create は使用量レコードを作成する。QuizIDが空の場合はNULLとして保存する。
func (r *PostgresUsageRepo) Create(ctx context.Context, record *model.UsageRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO usage (id, user_id, quiz_id, model, prompt_tokens, completion_tokens, total_tokens, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.UserID, nullString(record.QuizID), record.Model,
		record.PromptTokens, record.CompletionTokens, record.TotalTokens, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage: %w", err)
	}
	return nil
}

// SummaryByUser はユーザーの使用量を集計する。
func (r *PostgresUsageRepo) SummaryByUser(ctx context.Context, userID string) (*model.UsageSummary, error) {
	s := &model.UsageSummary{}
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*),
		        COALESCE(sum(prompt_tokens), 0),
		        COALESCE(sum(completion_tokens), 0),
		        COALESCE(sum(total_tokens), 0)
		 FROM usage WHERE user_id = $1`,
		userID,
	).Scan(&s.Generations, &s.PromptTokens, &s.CompletionTokens, &s.TotalTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	return s, nil
}

// compile-time interface check
var _ UsageRepository = (*PostgresUsageRepo)(nil)
