package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"nexus-sale/internal/pkg/logger"
	"nexus-sale/internal/service/sale/domain"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 由网关做跨域控制
		return true
	},
}

// Hub 维护所有活跃的 WebSocket 连接，把订单状态变化推送给订单所属用户。
// 它实现了 port.EventPublisher。
type Hub struct {
	clients    map[uint64]map[*Client]struct{} // 使用 UserID 作为 Key，同一用户可以有多个连接
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // Run 退出后关闭
	lock       sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run 处理连接注册与注销，ctx 结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]struct{})
			}
			h.clients[client.userID][client] = struct{}{}
			h.lock.Unlock()
			logger.Logger.Debug().Msgf("Client of user %d registered.", client.userID)
		case client := <-h.unregister:
			h.remove(client)
		case <-ctx.Done():
			h.lock.Lock()
			for _, set := range h.clients {
				for client := range set {
					close(client.send)
				}
			}
			h.clients = make(map[uint64]map[*Client]struct{})
			h.lock.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.lock.Lock()
	defer h.lock.Unlock()
	set := h.clients[client.userID]
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
	close(client.send)
	logger.Logger.Debug().Msgf("Client of user %d unregistered.", client.userID)
}

// ClientCount 返回某个用户当前的连接数
func (h *Hub) ClientCount(userID uint64) int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients[userID])
}

// PublishStatusChanged 推送给订单所属用户的所有连接。
// 发送缓冲区满的慢连接直接跳过，不阻塞业务流程。
func (h *Hub) PublishStatusChanged(ctx context.Context, event *domain.OrderStatusChanged) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.lock.RLock()
	defer h.lock.RUnlock()
	for client := range h.clients[event.CustomerID] {
		select {
		case client.send <- payload:
		default:
			logger.Ctx(ctx).Warn().Msgf("WARN: [Order: %d] Push buffer of user %d is full, event dropped.", event.OrderID, event.CustomerID)
		}
	}
	return nil
}

// Client 是一个WebSocket连接的代表
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uint64
}

// writePump 负责将 send channel 中的消息写入 websocket，并定期发送心跳
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// readPump 只处理心跳与关闭，连接断开时注销
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ServeWS 把 HTTP 连接升级为 WebSocket，用户身份来自网关注入的 X-User-Id
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(r.Header.Get(headerUserID), 10, 64)
	if err != nil || userID == 0 {
		http.Error(w, "userID is required", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256), userID: userID}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
