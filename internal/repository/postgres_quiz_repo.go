package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/quizroom/internal/model"
)

// PostgresQuizRepo はPostgreSQLを使用したクイズリポジトリ。
type PostgresQuizRepo struct {
	db *sql.DB
}

// NewPostgresQuizRepo はPostgresQuizRepoを生成する。
func NewPostgresQuizRepo(db *sql.DB) *PostgresQuizRepo {
	return &PostgresQuizRepo{db: db}
}

// Create はクイズを作成する。
func (r *PostgresQuizRepo) Create(ctx context.Context, quiz *model.Quiz) error {
	questions, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("failed to encode questions: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO quizzes (id, user_id, topic, difficulty, language, questions, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		quiz.ID, quiz.UserID, quiz.Topic, quiz.Difficulty, quiz.Language, questions, quiz.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert quiz: %w", err)
	}
	return nil
}

// FindByID は指定IDのクイズを取得する。見つからない場合はnilを返す。
func (r *PostgresQuizRepo) FindByID(ctx context.Context, id string) (*model.Quiz, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, topic, difficulty, language, questions, created_at
		 FROM quizzes WHERE id = $1`,
		id,
	)

	quiz, err := scanQuiz(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find quiz by ID: %w", err)
	}
	return quiz, nil
}

// ListByUser はユーザーのクイズ履歴を(created_at, id)の降順で取得する。
// 同一時刻のクイズがページ境界をまたいでも欠落しないよう、行値比較でキーセットを進める。
func (r *PostgresQuizRepo) ListByUser(ctx context.Context, userID string, cursor model.QuizCursor, limit int) ([]*model.Quiz, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if cursor.IsZero() {
		rows, err = r.db.QueryContext(ctx,
			`SELECT id, user_id, topic, difficulty, language, questions, created_at
			 FROM quizzes WHERE user_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			userID, limit,
		)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT id, user_id, topic, difficulty, language, questions, created_at
			 FROM quizzes WHERE user_id = $1 AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			userID, cursor.CreatedAt, cursor.ID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}
	defer rows.Close()

	var quizzes []*model.Quiz
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quizzes: %w", err)
	}
	return quizzes, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuiz(s rowScanner) (*model.Quiz, error) {
	quiz := &model.Quiz{}
	var questions []byte
	if err := s.Scan(
		&quiz.ID, &quiz.UserID, &quiz.Topic, &quiz.Difficulty,
		&quiz.Language, &questions, &quiz.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(questions, &quiz.Questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}
	return quiz, nil
}

// compile-time interface check
var _ QuizRepository = (*PostgresQuizRepo)(nil)
