package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/quizroom/internal/model"
)

// PostgresPlayerRepo はPostgreSQLを使用したルーム参加者リポジトリ。
type PostgresPlayerRepo struct {
	db *sql.DB
}

// NewPostgresPlayerRepo はPostgresPlayerRepoを生成する。
func NewPostgresPlayerRepo(db *sql.DB) *PostgresPlayerRepo {
	return &PostgresPlayerRepo{db: db}
}

// AddWithinCapacity は参加者数がmaxPlayers未満の場合のみ参加者を追加する。
// ルーム行をFOR UPDATEでロックし、同時参加による定員超過と開始後の参加を防ぐ。
func (r *PostgresPlayerRepo) AddWithinCapacity(ctx context.Context, player *model.Player, maxPlayers int) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status model.RoomStatus
	if err := tx.QueryRowContext(ctx,
		`SELECT status FROM rooms WHERE id = $1 FOR UPDATE`,
		player.RoomID,
	).Scan(&status); err != nil {
		return false, fmt.Errorf("failed to lock room: %w", err)
	}
	if status != model.RoomStatusWaiting {
		return false, &RoomNotWaitingError{Status: status}
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO room_players (id, room_id, user_id, display_name, score, joined_at)
		 SELECT $1, $2, $3, $4, $5, $6
		 WHERE (SELECT count(*) FROM room_players WHERE room_id = $2) < $7
		 ON CONFLICT (room_id, user_id) DO NOTHING`,
		player.ID, player.RoomID, player.UserID, player.DisplayName,
		player.Score, player.JoinedAt, maxPlayers,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert player: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE rooms SET updated_at = now() WHERE id = $1`,
		player.RoomID,
	); err != nil {
		return false, fmt.Errorf("failed to touch room: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// FindByRoomAndUser はルームIDとユーザーIDで参加者を取得する。見つからない場合はnilを返す。
func (r *PostgresPlayerRepo) FindByRoomAndUser(ctx context.Context, roomID, userID string) (*model.Player, error) {
	p := &model.Player{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, room_id, user_id, display_name, score, joined_at
		 FROM room_players WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	).Scan(&p.ID, &p.RoomID, &p.UserID, &p.DisplayName, &p.Score, &p.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find player: %w", err)
	}
	return p, nil
}

// ListByRoom はルームの参加者をjoined_at昇順で取得する。
func (r *PostgresPlayerRepo) ListByRoom(ctx context.Context, roomID string) ([]model.Player, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, room_id, user_id, display_name, score, joined_at
		 FROM room_players WHERE room_id = $1
		 ORDER BY joined_at ASC`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	players := []model.Player{}
	for rows.Next() {
		var p model.Player
		if err := rows.Scan(&p.ID, &p.RoomID, &p.UserID, &p.DisplayName, &p.Score, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate players: %w", err)
	}
	return players, nil
}

// Remove は参加者を削除する。
func (r *PostgresPlayerRepo) Remove(ctx context.Context, roomID, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM room_players WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete player: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		if _, err := r.db.ExecContext(ctx, `UPDATE rooms SET updated_at = now() WHERE id = $1`, roomID); err != nil {
			return true, fmt.Errorf("failed to touch room: %w", err)
		}
	}
	return n > 0, nil
}

// UpdateScore は参加者のスコアを更新する。
func (r *PostgresPlayerRepo) UpdateScore(ctx context.Context, roomID, userID string, score int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE room_players SET score = $3 WHERE room_id = $1 AND user_id = $2`,
		roomID, userID, score,
	)
	if err != nil {
		return fmt.Errorf("failed to update score: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("player not found: room=%s user=%s", roomID, userID)
	}
	return nil
}

// compile-time interface check
var _ PlayerRepository = (*PostgresPlayerRepo)(nil)
