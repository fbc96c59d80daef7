// Package quota はユーザーごとのクイズ生成回数の上限を管理する。
//
// 固定ウィンドウ方式で、ウィンドウ開始時刻ごとにカウンタを持つ。
// REDIS_URLが設定されている場合はRedisで複数インスタンス間のカウンタを共有し、
// 未設定の場合はプロセス内のカウンタを使用する。
package quota

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix はRedisキーの接頭辞。
const keyPrefix = "quizroom:quota:"

// Decision は上限判定の結果。
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration // Allowed=falseの場合にウィンドウがリセットされるまでの時間
}

// Limiter は生成回数の上限判定のインターフェース。
// Allowは呼び出しごとにカウンタを1つ消費する。
type Limiter interface {
	Allow(ctx context.Context, userID string) (Decision, error)
}

// windowStart はtを含むウィンドウの開始時刻を返す。
func windowStart(t time.Time, window time.Duration) time.Time {
	return t.Truncate(window)
}

func decide(count int64, limit int, now, start time.Time, window time.Duration) Decision {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
	}
	if !d.Allowed {
		d.RetryAfter = start.Add(window).Sub(now)
	}
	return d
}

// redisCounter は*redis.Clientのうちカウンタ操作に使うメソッドのみを抽出したもの。
type redisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	ExpireNX(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisLimiter はRedisのINCRとEXPIRE NXによる固定ウィンドウ上限。
type RedisLimiter struct {
	client redisCounter
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter はRedisLimiterを生成する。
func NewRedisLimiter(client redisCounter, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// NewRedisClient はREDIS_URL形式の接続文字列からRedisクライアントを生成する。
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Allow はカウンタを1つ進め、上限内かどうかを返す。
// 有効期限は毎回EXPIRE NXで設定するため、既存の期限は延長されず、
// 前回の設定に失敗して期限のないキーが残っても次の呼び出しで補われる。
func (l *RedisLimiter) Allow(ctx context.Context, userID string) (Decision, error) {
	now := l.now()
	start := windowStart(now, l.window)
	key := keyPrefix + userID + ":" + strconv.FormatInt(start.Unix(), 10)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to increment quota counter: %w", err)
	}
	if err := l.client.ExpireNX(ctx, key, l.window).Err(); err != nil {
		return Decision{}, fmt.Errorf("failed to set quota counter expiry: %w", err)
	}

	return decide(count, l.limit, now, start, l.window), nil
}

// MemoryLimiter はプロセス内のカウンタによる固定ウィンドウ上限。
// 単一インスタンス構成やRedis未設定時に使用する。
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*memoryCounter
}

type memoryCounter struct {
	start time.Time
	count int64
}

// NewMemoryLimiter はMemoryLimiterを生成する。
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		counters: make(map[string]*memoryCounter),
	}
}

// Allow はカウンタを1つ進め、上限内かどうかを返す。
func (l *MemoryLimiter) Allow(ctx context.Context, userID string) (Decision, error) {
	now := l.now()
	start := windowStart(now, l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	// 過去のウィンドウのエントリは判定時にまとめて破棄する
	for id, c := range l.counters {
		if !c.start.Equal(start) {
			delete(l.counters, id)
		}
	}

	c, ok := l.counters[userID]
	if !ok {
		c = &memoryCounter{start: start}
		l.counters[userID] = c
	}
	c.count++

	return decide(c.count, l.limit, now, start, l.window), nil
}

// Len は現在保持しているカウンタ数を返す。テスト用。
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

var (
	_ Limiter = (*RedisLimiter)(nil)
	_ Limiter = (*MemoryLimiter)(nil)
)
