package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/quizroom/internal/model"
)

// pgUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pgUniqueViolation = "23505"

// PostgresRoomRepo はPostgreSQLを使用したルームリポジトリ。
type PostgresRoomRepo struct {
	db *sql.DB
}

// NewPostgresRoomRepo はPostgresRoomRepoを生成する。
func NewPostgresRoomRepo(db *sql.DB) *PostgresRoomRepo {
	return &PostgresRoomRepo{db: db}
}

// CreateWithHost はルームとホストの参加者レコードを同一トランザクションで作成する。
func (r *PostgresRoomRepo) CreateWithHost(ctx context.Context, room *model.Room, host *model.Player) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rooms (id, code, host_id, quiz_id, status, max_players, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		room.ID, room.Code, room.HostID, nullString(room.QuizID),
		room.Status, room.MaxPlayers, room.CreatedAt, room.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRoomCodeConflict
		}
		return fmt.Errorf("failed to insert room: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO room_players (id, room_id, user_id, display_name, score, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		host.ID, host.RoomID, host.UserID, host.DisplayName, host.Score, host.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert host player: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByCode は招待コードでルームを検索する。見つからない場合はnilを返す。
func (r *PostgresRoomRepo) FindByCode(ctx context.Context, code string) (*model.Room, error) {
	room := &model.Room{}
	var quizID sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, host_id, quiz_id, status, max_players, created_at, updated_at
		 FROM rooms WHERE code = $1`,
		code,
	).Scan(
		&room.ID, &room.Code, &room.HostID, &quizID,
		&room.Status, &room.MaxPlayers, &room.CreatedAt, &room.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find room by code: %w", err)
	}

	room.QuizID = nullStringValue(quizID)
	return room, nil
}

// TransitionStatus はルームの状態がfromのいずれかである場合のみtoへ更新する。
// 同時に実行された開始・終了のうち、先に確定した遷移だけが有効になる。
func (r *PostgresRoomRepo) TransitionStatus(ctx context.Context, id string, to model.RoomStatus, from ...model.RoomStatus) (bool, error) {
	froms := make([]string, len(from))
	for i, f := range from {
		froms[i] = string(f)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET status = $2, updated_at = now()
		 WHERE id = $1 AND status = ANY($3)`,
		id, to, pq.Array(froms),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update room status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteStaleBefore はupdated_atがbeforeより古いルームを削除する。
func (r *PostgresRoomRepo) DeleteStaleBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM rooms WHERE updated_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale rooms: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// isUniqueViolation はerrがPostgreSQLの一意制約違反かどうかを返す。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// compile-time interface check
var _ RoomRepository = (*PostgresRoomRepo)(nil)
