// Package mailer はルーム招待メールの送信機能を提供する。
// Resend HTTP APIを使用する。
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// defaultEndpoint はResendのメール送信APIのエンドポイント。
	defaultEndpoint = "https://api.resend.com/emails"
	// defaultTimeout はHTTPクライアント未指定時のタイムアウト。
	defaultTimeout = 10 * time.Second
)

// sendRequest はResendのメール送信リクエスト。
type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

// sendResponse はResendのメール送信レスポンス。
type sendResponse struct {
	ID string `json:"id"`
}

// ResendClient はResend APIのクライアント。
type ResendClient struct {
	httpClient *http.Client
	apiKey     string
	from       string
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能

	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewResendClient はResendClientの新しいインスタンスを生成する。
// httpClientがnilの場合はタイムアウト付きのクライアントを使用する。
func NewResendClient(httpClient *http.Client, apiKey, from string, logger *slog.Logger) *ResendClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &ResendClient{
		httpClient: httpClient,
		apiKey:     apiKey,
		from:       from,
		logger:     logger,
		endpoint:   defaultEndpoint,

		maxAttempts: defaultMaxAttempts,
		sleep:       sleepContext,
	}
}

// SendRoomInvite はルームへの招待メールを送信する。
func (c *ResendClient) SendRoomInvite(ctx context.Context, to, hostName, roomCode, joinURL string) error {
	subject, htmlBody, textBody := renderInvite(hostName, roomCode, joinURL)
	id, err := c.send(ctx, sendRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
	})
	if err != nil {
		return err
	}

	c.logger.Info("招待メールを送信しました",
		slog.String("room_code", roomCode),
		slog.String("email_id", id),
	)
	return nil
}

// send はメールを送信する。429/5xxの場合は指数バックオフで最大maxAttempts回まで再送する。
func (c *ResendClient) send(ctx context.Context, payload sendRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("リクエストボディの作成に失敗しました: %w", err)
	}

	for attempt := 1; ; attempt++ {
		id, wait, err := c.sendOnce(ctx, body, attempt-1)
		if err == nil {
			return id, nil
		}
		if wait == 0 {
			return "", err
		}
		if attempt >= c.maxAttempts {
			c.logger.Error("Resend APIへの送信が再試行上限に達しました",
				slog.Int("attempts", attempt),
				slog.String("error", err.Error()),
			)
			return "", err
		}

		c.logger.Warn("Resend APIへの送信を再試行します",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
}

// sendOnce は1回だけ送信する。再送すべき失敗の場合は待機時間を0より大きい値で返す。
func (c *ResendClient) sendOnce(ctx context.Context, body []byte, failures int) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Resend APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", 0, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	switch classifyStatus(resp.StatusCode) {
	case sendResultOK:
	case sendResultRetry:
		wait := retryAfter(resp.Header.Get("Retry-After"), calculateBackoff(failures))
		return "", wait, fmt.Errorf("Resend APIがステータス %d を返しました", resp.StatusCode)
	default:
		c.logger.Error("Resend APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(respBody)),
		)
		return "", 0, fmt.Errorf("Resend APIがステータス %d を返しました", resp.StatusCode)
	}

	var result sendResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", 0, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return result.ID, 0, nil
}

// renderInvite は招待メールの件名と本文を組み立てる。
func renderInvite(hostName, roomCode, joinURL string) (subject, htmlBody, textBody string) {
	subject = fmt.Sprintf("%s invited you to a Quizroom game", hostName)

	var t strings.Builder
	fmt.Fprintf(&t, "%s invited you to join a quiz room.\n\n", hostName)
	fmt.Fprintf(&t, "Room code: %s\n", roomCode)
	fmt.Fprintf(&t, "Join here: %s\n", joinURL)
	textBody = t.String()

	var h strings.Builder
	fmt.Fprintf(&h, "<p><strong>%s</strong> invited you to join a quiz room.</p>", html.EscapeString(hostName))
	fmt.Fprintf(&h, "<p>Room code: <code>%s</code></p>", html.EscapeString(roomCode))
	fmt.Fprintf(&h, `<p><a href="%s">Join the room</a></p>`, html.EscapeString(joinURL))
	htmlBody = h.String()
	return subject, htmlBody, textBody
}
