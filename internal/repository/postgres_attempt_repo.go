package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/quizroom/internal/model"
)

// PostgresAttemptRepo はPostgreSQLを使用した解答結果リポジトリ。
type PostgresAttemptRepo struct {
	db *sql.DB
}

// NewPostgresAttemptRepo はPostgresAttemptRepoを生成する。
func NewPostgresAttemptRepo(db *sql.DB) *PostgresAttemptRepo {
	return &PostgresAttemptRepo{db: db}
}

// Create は解答結果を作成する。
func (r *PostgresAttemptRepo) Create(ctx context.Context, attempt *model.Attempt) error {
	answers, err := json.Marshal(attempt.Answers)
	if err != nil {
		return fmt.Errorf("failed to encode answers: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO quiz_attempts (id, quiz_id, user_id, answers, score, total, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		attempt.ID, attempt.QuizID, attempt.UserID, answers,
		attempt.Score, attempt.Total, attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

// ListByQuizAndUser はユーザーの解答結果をcreated_at降順で取得する。
func (r *PostgresAttemptRepo) ListByQuizAndUser(ctx context.Context, quizID, userID string) ([]*model.Attempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, quiz_id, user_id, answers, score, total, created_at
		 FROM quiz_attempts
		 WHERE quiz_id = $1 AND user_id = $2
		 ORDER BY created_at DESC`,
		quizID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*model.Attempt
	for rows.Next() {
		a := &model.Attempt{}
		var answers []byte
		if err := rows.Scan(&a.ID, &a.QuizID, &a.UserID, &answers, &a.Score, &a.Total, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		if err := json.Unmarshal(answers, &a.Answers); err != nil {
			return nil, fmt.Errorf("failed to decode answers: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attempts: %w", err)
	}
	return attempts, nil
}

// compile-time interface check
var _ AttemptRepository = (*PostgresAttemptRepo)(nil)
