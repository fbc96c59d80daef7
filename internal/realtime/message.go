package realtime

import (
	"encoding/json"
	"fmt"
)

// イベント種別
const (
	TypePresenceSync  = "presence_sync"
	TypePresenceJoin  = "presence_join"
	TypePresenceLeave = "presence_leave"
	TypePing          = "ping"
	TypePong          = "pong"
	TypeBroadcast     = "broadcast"
)

// Message はWebSocketで送受信するイベントのエンベロープ。
// Fromはクライアント発のbroadcastを中継する場合のみ送信者のユーザーIDを設定する。
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	From    string          `json:"from,omitempty"`
}

// PresencePayload はpresence_syncのペイロード。
type PresencePayload struct {
	UserIDs []string `json:"userIds"`
}

// PresenceChangePayload はpresence_join / presence_leaveのペイロード。
type PresenceChangePayload struct {
	UserID string `json:"userId"`
}

func encodeMessage(eventType string, payload any, from string) ([]byte, error) {
	msg := Message{Type: eventType, From: from}
	if payload != nil {
		raw, ok := payload.(json.RawMessage)
		if !ok {
			b, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("failed to encode %s payload: %w", eventType, err)
			}
			raw = b
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}
