package realtime

import (
	"sort"
	"sync"

	"github.com/gorilla/websocket"
)

// Client はルームのチャネルに接続した1本のWebSocket接続を表す。
// 同じユーザーが複数の接続を持つことがある。
type Client struct {
	UserID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub は1つのルームに接続中のクライアントを管理する。
// sendへの書き込みとcloseはすべてmuを保持して行う。
type Hub struct {
	code    string
	mu      sync.Mutex
	clients map[*Client]struct{}
}

func newHub(code string) *Hub {
	return &Hub{
		code:    code,
		clients: make(map[*Client]struct{}),
	}
}

// add はクライアントを登録し、そのユーザーの最初の接続であればtrueを返す。
func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	first := !h.hasUserLocked(c.UserID)
	h.clients[c] = struct{}{}
	return first
}

// remove はクライアントを登録解除して送信チャネルを閉じる。
// 登録されていなかった場合removedはfalse、ユーザーの最後の接続であった場合lastはtrueとなる。
func (h *Hub) remove(c *Client) (removed, last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false, false
	}
	delete(h.clients, c)
	close(c.send)
	return true, !h.hasUserLocked(c.UserID)
}

func (h *Hub) hasUserLocked(userID string) bool {
	for c := range h.clients {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// userIDs はオンラインのユーザーIDを重複なしで昇順に返す。
func (h *Hub) userIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[string]struct{}, len(h.clients))
	ids := make([]string, 0, len(h.clients))
	for c := range h.clients {
		if _, ok := seen[c.UserID]; ok {
			continue
		}
		seen[c.UserID] = struct{}{}
		ids = append(ids, c.UserID)
	}
	sort.Strings(ids)
	return ids
}

// broadcast はexcept以外の全クライアントへdataを送る。
// 送信バッファが満杯のクライアントを返す。
func (h *Hub) broadcast(data []byte, except *Client) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	var slow []*Client
	for c := range h.clients {
		if c == except {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	return slow
}

// sendTo は単一のクライアントへdataを送る。
// 登録解除済みの場合は何もしない。送信バッファが満杯の場合はfalseを返す。
func (h *Hub) sendTo(c *Client, data []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}
