// Package cleanup は期限切れルームの自動削除ジョブを提供する。
// updated_atがTTLより古いルームを定期的に削除する。
// 参加者（room_players）はCASCADE削除で自動的に処理される。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/quizroom/internal/metrics"
)

// RoomDeleter は期限切れルームの削除を抽象化するインターフェース。
// repository.RoomRepositoryがそのまま満たす。
type RoomDeleter interface {
	DeleteStaleBefore(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は期限切れルームの自動削除ジョブ。
// 冪等な削除処理で、削除対象がなくてもエラーにならない。
type CleanupJob struct {
	rooms   RoomDeleter
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	TTL     time.Duration // ルームの保持期間（デフォルト: 24時間）
	now     func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// ttlが0以下の場合は24時間を使用する。
func NewCleanupJob(rooms RoomDeleter, mc metrics.MetricsCollector, logger *slog.Logger, ttl time.Duration) *CleanupJob {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &CleanupJob{
		rooms:   rooms,
		metrics: mc,
		logger:  logger,
		TTL:     ttl,
		now:     time.Now,
	}
}

// Run はupdated_atがTTLより古いルームを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	before := j.now().Add(-j.TTL)

	deletedCount, err := j.rooms.DeleteStaleBefore(ctx, before)
	if err != nil {
		j.logger.Error("ルームクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("ttl", j.TTL),
		)
		return fmt.Errorf("ルームクリーンアップの実行に失敗: %w", err)
	}

	j.metrics.RecordRoomsCleaned(int(deletedCount))

	duration := time.Since(start)
	j.logger.Info("ルームクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.String("ttl", j.TTL.String()),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、その後intervalごとにRunを繰り返す。
// ctxがキャンセルされるまでブロックする。個々の実行の失敗はログに記録して継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	// Runの失敗はRun内でログ出力済み
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
