package mailer

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// sendResult はHTTPステータスコードに基づく送信結果の分類。
type sendResult int

const (
	// sendResultOK は送信成功（2xx）。
	sendResultOK sendResult = iota
	// sendResultRetry は一時的な失敗で再送すべきステータス（429/5xx）。
	sendResultRetry
	// sendResultFail は再送しても成功しないステータス（その他の4xxなど）。
	sendResultFail
)

const (
	// defaultMaxAttempts は1通あたりの最大送信試行回数。
	defaultMaxAttempts = 3
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 500 * time.Millisecond
	// maxBackoff は指数バックオフおよびRetry-Afterの上限。
	maxBackoff = 5 * time.Second
)

// classifyStatus はHTTPステータスコードを送信結果に分類する。
func classifyStatus(statusCode int) sendResult {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return sendResultOK
	case statusCode == http.StatusTooManyRequests:
		return sendResultRetry
	case statusCode >= 500:
		return sendResultRetry
	default:
		return sendResultFail
	}
}

// calculateBackoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回500ミリ秒、2倍ずつ増加、最大5秒。
func calculateBackoff(failures int) time.Duration {
	delay := initialBackoff
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// retryAfter はRetry-Afterヘッダー（秒数）を解釈する。
// 未指定・不正な値の場合はfallbackを返し、上限はmaxBackoffとする。
func retryAfter(header string, fallback time.Duration) time.Duration {
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return fallback
	}
	d := time.Duration(seconds) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// sleepContext はdだけ待機する。ctxがキャンセルされた場合はctx.Err()を返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
