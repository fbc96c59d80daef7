// Package realtime はルームごとのプレゼンスとイベント配信をWebSocketで提供する。
//
// ルームの招待コードをチャネル名とし、接続時にtrack、切断時にuntrackする。
// 参加状況が変わるたびにpresence_syncでオンラインのユーザー一覧を全員に通知する。
package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/quizroom/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// DefaultSendBuffer はクライアントごとの送信バッファのメッセージ数。
	DefaultSendBuffer = 64
)

// Manager はルームごとのHubを管理する。
// Hubは最初の接続時に生成し、最後の接続が切れたら破棄する。
type Manager struct {
	mu         sync.Mutex
	hubs       map[string]*Hub
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	sendBuffer int
}

// NewManager はManagerの新しいインスタンスを生成する。
func NewManager(mc metrics.MetricsCollector, logger *slog.Logger) *Manager {
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &Manager{
		hubs:       make(map[string]*Hub),
		metrics:    mc,
		logger:     logger,
		sendBuffer: DefaultSendBuffer,
	}
}

// NewUpgrader はallowedOriginsからの接続のみ許可するUpgraderを返す。
// allowedOriginsはCORS設定と同じくカンマ区切りで複数指定できる。
// Originヘッダーのない接続と同一オリジンからの接続は常に許可する。
func NewUpgrader(allowedOrigins string) *websocket.Upgrader {
	allowed := make(map[string]bool)
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed[strings.ToLower(o)] = true
		}
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowed[strings.ToLower(origin)] {
				return true
			}
			return origin == "http://"+r.Host || origin == "https://"+r.Host
		},
	}
}

// Serve はアップグレード済みの接続をルームのチャネルに登録し、切断されるまでブロックする。
func (m *Manager) Serve(conn *websocket.Conn, roomCode, userID string) {
	c := m.track(roomCode, userID, conn)
	go m.writePump(c)
	m.readPump(c)
}

// Broadcast はルームの全接続にイベントを配信する。接続がない場合は何もしない。
func (m *Manager) Broadcast(roomCode, eventType string, payload any) {
	m.mu.Lock()
	hub, ok := m.hubs[roomCode]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.broadcastTo(hub, eventType, payload, nil)
}

// Online はルームにオンラインのユーザーIDを返す。
func (m *Manager) Online(roomCode string) []string {
	m.mu.Lock()
	hub, ok := m.hubs[roomCode]
	m.mu.Unlock()
	if !ok {
		return []string{}
	}
	return hub.userIDs()
}

// HubCount は接続中のルーム数を返す。
func (m *Manager) HubCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hubs)
}

func (m *Manager) track(roomCode, userID string, conn *websocket.Conn) *Client {
	c := &Client{
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, m.sendBuffer),
	}

	m.mu.Lock()
	hub, ok := m.hubs[roomCode]
	if !ok {
		hub = newHub(roomCode)
		m.hubs[roomCode] = hub
	}
	c.hub = hub
	first := hub.add(c)
	m.mu.Unlock()

	m.metrics.AddRealtimeConnections(1)
	m.logger.Debug("リアルタイム接続を登録しました",
		slog.String("room_code", roomCode),
		slog.String("user_id", userID),
	)

	if first {
		m.broadcastTo(hub, TypePresenceJoin, PresenceChangePayload{UserID: userID}, nil)
	}
	m.broadcastTo(hub, TypePresenceSync, PresencePayload{UserIDs: hub.userIDs()}, nil)
	return c
}

func (m *Manager) untrack(c *Client) {
	hub := c.hub

	m.mu.Lock()
	removed, last := hub.remove(c)
	if removed && hub.len() == 0 && m.hubs[hub.code] == hub {
		delete(m.hubs, hub.code)
	}
	m.mu.Unlock()

	if !removed {
		return
	}

	m.metrics.AddRealtimeConnections(-1)
	m.logger.Debug("リアルタイム接続を解除しました",
		slog.String("room_code", hub.code),
		slog.String("user_id", c.UserID),
	)

	if last {
		m.broadcastTo(hub, TypePresenceLeave, PresenceChangePayload{UserID: c.UserID}, nil)
	}
	m.broadcastTo(hub, TypePresenceSync, PresencePayload{UserIDs: hub.userIDs()}, nil)
}

func (m *Manager) broadcastTo(hub *Hub, eventType string, payload any, except *Client) {
	var from string
	if except != nil {
		from = except.UserID
	}
	data, err := encodeMessage(eventType, payload, from)
	if err != nil {
		m.logger.Error("イベントのエンコードに失敗しました",
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, slow := range hub.broadcast(data, except) {
		m.logger.Warn("送信が追いつかないクライアントを切断します",
			slog.String("room_code", hub.code),
			slog.String("user_id", slow.UserID),
		)
		m.untrack(slow)
	}
}

// handleInbound はクライアントから受信したメッセージを処理する。
func (m *Manager) handleInbound(c *Client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		m.logger.Debug("不正なメッセージを無視しました",
			slog.String("user_id", c.UserID),
			slog.String("error", err.Error()),
		)
		return
	}

	switch msg.Type {
	case TypePing:
		pong, _ := encodeMessage(TypePong, nil, "")
		if !c.hub.sendTo(c, pong) {
			m.untrack(c)
		}
	case TypeBroadcast:
		if len(msg.Payload) == 0 {
			return
		}
		m.broadcastTo(c.hub, TypeBroadcast, msg.Payload, c)
	default:
		m.logger.Debug("未知のメッセージ種別を無視しました",
			slog.String("type", msg.Type),
			slog.String("user_id", c.UserID),
		)
	}
}

func (m *Manager) readPump(c *Client) {
	defer func() {
		m.untrack(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Warn("WebSocketが予期せず切断されました",
					slog.String("user_id", c.UserID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		m.handleInbound(c, data)
	}
}

func (m *Manager) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 登録解除済み
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
