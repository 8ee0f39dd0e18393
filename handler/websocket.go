package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"barzo_social/middleware"
	"barzo_social/model"
	"barzo_social/service"
	"barzo_social/store"
	"barzo_social/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 跨域已由 CORS 中间件限制
		return true
	},
}

// Client WebSocket 客户端（一个设备一个连接）
type Client struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	Session *service.Session
	Conn    *websocket.Conn
	Send    chan []byte
	Hub     *Hub
	mu      sync.Mutex
	closed  bool // Send channel 是否已关闭
}

// userSubscription 每个在线用户一条通知订阅，所有设备共享
type userSubscription struct {
	sub    store.Subscription
	cancel context.CancelFunc
}

// Hub WebSocket 连接管理中心
type Hub struct {
	// 在线用户 map[userID]map[clientID]*Client（支持多设备）
	Clients map[uuid.UUID]map[uuid.UUID]*Client
	mu      sync.RWMutex

	// 最大连接数限制（每个用户）
	MaxConnectionsPerUser int

	store         store.DataStore
	subscriptions map[uuid.UUID]*userSubscription
	subscribing   map[uuid.UUID]bool // 正在订阅中的用户
}

// WSMessage 客户端发来的消息
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewHub 创建 Hub
func NewHub(st store.DataStore, maxConnectionsPerUser int) *Hub {
	if maxConnectionsPerUser <= 0 {
		maxConnectionsPerUser = 18
	}
	return &Hub{
		Clients:               make(map[uuid.UUID]map[uuid.UUID]*Client),
		MaxConnectionsPerUser: maxConnectionsPerUser,
		store:                 st,
		subscriptions:         make(map[uuid.UUID]*userSubscription),
		subscribing:           make(map[uuid.UUID]bool),
	}
}

// Register 注册客户端，用户还没有通知订阅时为其订阅
//
// 订阅在锁外进行；失败时客户端保持在线，下一个设备上线时重试。
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()

	if h.Clients[client.UserID] == nil {
		h.Clients[client.UserID] = make(map[uuid.UUID]*Client)
	}

	// 检查连接数限制
	if len(h.Clients[client.UserID]) >= h.MaxConnectionsPerUser {
		h.mu.Unlock()

		log.Printf("[ERROR] User %s exceeds max connections (%d), rejecting client %s",
			client.UserID, h.MaxConnectionsPerUser, client.ID)

		client.sendDirect("error", map[string]interface{}{
			"code":    "too_many_devices",
			"message": fmt.Sprintf("Maximum %d devices allowed", h.MaxConnectionsPerUser),
		})
		client.Conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation,
				fmt.Sprintf("Maximum %d devices allowed", h.MaxConnectionsPerUser)))
		client.Conn.Close()
		return false
	}

	h.Clients[client.UserID][client.ID] = client
	deviceCount := len(h.Clients[client.UserID])

	needSubscribe := h.subscriptions[client.UserID] == nil && !h.subscribing[client.UserID]
	if needSubscribe {
		h.subscribing[client.UserID] = true
	}
	h.mu.Unlock()

	log.Printf("[INFO] User %s connected (client: %s), total devices: %d", client.UserID, client.ID, deviceCount)

	if needSubscribe {
		if err := h.subscribe(client); err != nil {
			log.Printf("[ERROR] Failed to subscribe notifications for user %s: %v", client.UserID, err)
			client.sendError("live notifications unavailable, reconnect to retry")
		}
	}
	return true
}

// subscribe 不持有 h.mu 调用；完成后用户已全部离线或已被其他设备订阅时关闭新订阅
func (h *Hub) subscribe(client *Client) error {
	userID := client.UserID
	sub, cancel, err := h.openSubscription(client)

	h.mu.Lock()
	delete(h.subscribing, userID)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	if len(h.Clients[userID]) == 0 || h.subscriptions[userID] != nil {
		h.mu.Unlock()
		cancel()
		return sub.Close()
	}
	h.subscriptions[userID] = &userSubscription{sub: sub, cancel: cancel}
	h.mu.Unlock()
	return nil
}

func (h *Hub) openSubscription(client *Client) (store.Subscription, context.CancelFunc, error) {
	svc, err := service.NewSocialService(h.store, client.Session)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	userID := client.UserID
	sub, err := svc.SubscribeToNotifications(ctx, func(n *model.Notification) {
		h.SendNotification(userID, n)
	})
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return sub, cancel, nil
}

// Unregister 注销客户端，最后一个设备离线时关闭订阅
func (h *Hub) Unregister(client *Client) {
	var closing *userSubscription

	h.mu.Lock()
	if userClients, exists := h.Clients[client.UserID]; exists {
		if _, found := userClients[client.ID]; found {
			delete(userClients, client.ID)

			if len(userClients) == 0 {
				delete(h.Clients, client.UserID)
				closing = h.subscriptions[client.UserID]
				delete(h.subscriptions, client.UserID)
				log.Printf("[INFO] User %s disconnected (client: %s), all devices offline", client.UserID, client.ID)
			} else {
				log.Printf("[INFO] User %s disconnected (client: %s), remaining devices: %d",
					client.UserID, client.ID, len(userClients))
			}
		}
	}
	h.mu.Unlock()

	// 不持有锁的情况下关闭订阅
	if closing != nil {
		closing.cancel()
		if err := closing.sub.Close(); err != nil {
			log.Printf("[ERROR] Failed to close notification subscription for user %s: %v", client.UserID, err)
		}
	}

	client.mu.Lock()
	if !client.closed {
		close(client.Send)
		client.closed = true
	}
	client.mu.Unlock()
}

// SendToUser 发送消息给指定用户的所有设备
func (h *Hub) SendToUser(userID uuid.UUID, message []byte) bool {
	h.mu.RLock()
	userClients, exists := h.Clients[userID]
	if !exists || len(userClients) == 0 {
		h.mu.RUnlock()
		return false
	}

	// 复制一份 client 列表，避免在遍历时发生并发修改
	clientsCopy := make([]*Client, 0, len(userClients))
	for _, client := range userClients {
		clientsCopy = append(clientsCopy, client)
	}
	h.mu.RUnlock()

	sentToAny := false
	for _, client := range clientsCopy {
		if client.enqueue(message) {
			sentToAny = true
			continue
		}
		// 发送通道满了，关闭该设备连接
		log.Printf("[ERROR] Send channel FULL: user=%s, client=%s, closing connection", userID, client.ID)
		go h.Unregister(client)
	}
	return sentToAny
}

// SendNotification 通过 WebSocket 推送通知
func (h *Hub) SendNotification(userID uuid.UUID, notification *model.Notification) bool {
	data, err := json.Marshal(map[string]interface{}{
		"type": "notification",
		"data": notification,
	})
	if err != nil {
		log.Printf("[ERROR] Failed to marshal notification: %v", err)
		return false
	}
	return h.SendToUser(userID, data)
}

// IsUserOnline 检查用户是否在线（至少有一个设备在线）
func (h *Hub) IsUserOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Clients[userID]) > 0
}

// HasSubscription 用户是否有活跃的通知订阅
func (h *Hub) HasSubscription(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.subscriptions[userID]
	return ok
}

// Close 关闭所有连接和订阅
func (h *Hub) Close() {
	h.mu.RLock()
	var clients []*Client
	for _, userClients := range h.Clients {
		for _, client := range userClients {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.Unregister(client)
	}
}

// HandleWebSocket 处理 WebSocket 连接
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从 query 参数获取 token
		tokenString := c.Query("token")
		if tokenString == "" {
			utils.Unauthorized(c, "missing token")
			return
		}

		session, err := middleware.ValidateToken(tokenString)
		if err != nil {
			utils.Unauthorized(c, "invalid token")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[ERROR] WebSocket upgrade failed for user %s: %v", session.UserID, err)
			return
		}

		client := &Client{
			ID:      uuid.New(),
			UserID:  session.UserID,
			Session: session,
			Conn:    conn,
			Send:    make(chan []byte, 256),
			Hub:     hub,
		}

		if !hub.Register(client) {
			return
		}

		go client.readPump()
		go client.writePump()
	}
}

// enqueue 非阻塞写入 Send，通道已关闭或已满时返回 false
func (c *Client) enqueue(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- message:
		return true
	default:
		return false
	}
}

// readPump 从 WebSocket 读取消息
func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				log.Printf("[ERROR] User %s WebSocket unexpected close error: %v", c.UserID, err)
			}
			break
		}

		var wsMsg WSMessage
		if err := json.Unmarshal(message, &wsMsg); err != nil {
			c.sendError("Invalid JSON format")
			continue
		}

		switch wsMsg.Type {
		case "heartbeat":
			c.reply("heartbeat", map[string]interface{}{"server_time": time.Now().UTC()})
		case "mark_read":
			c.handleMarkRead(wsMsg.Data)
		default:
			c.sendError("unknown message type: " + wsMsg.Type)
		}
	}
}

// writePump 向 WebSocket 写入消息
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	expired, stopExpiry := sessionExpiry(c.Session)
	defer func() {
		ticker.Stop()
		stopExpiry()
		c.Conn.Close()
	}()

	for {
		select {
		case <-expired:
			// token 过期后断开，客户端需要用新 token 重连
			log.Printf("[INFO] User %s session expired, closing client %s", c.UserID, c.ID)
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session expired"))
			return

		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			// 发送 ping 保持连接
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sessionExpiry 会话到期时触发，不过期的会话返回 nil channel
func sessionExpiry(session *service.Session) (<-chan time.Time, func()) {
	if session == nil || session.ExpiresAt.IsZero() {
		return nil, func() {}
	}
	timer := time.NewTimer(time.Until(session.ExpiresAt))
	return timer.C, func() { timer.Stop() }
}

// handleMarkRead 标记通知为已读
func (c *Client) handleMarkRead(data json.RawMessage) {
	var req struct {
		NotificationID uuid.UUID `json:"notification_id"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.NotificationID == uuid.Nil {
		c.sendError("invalid notification_id")
		return
	}

	svc, err := service.NewSocialService(c.Hub.store, c.Session)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	notification, err := svc.MarkNotificationRead(context.Background(), req.NotificationID)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.reply("notification_read", notification)
}

func (c *Client) reply(msgType string, data interface{}) {
	payload, err := json.Marshal(map[string]interface{}{"type": msgType, "data": data})
	if err != nil {
		log.Printf("[ERROR] Failed to marshal %s reply: %v", msgType, err)
		return
	}
	c.enqueue(payload)
}

func (c *Client) sendError(errMsg string) {
	c.reply("error", map[string]interface{}{"message": errMsg})
}

// sendDirect 直接写连接（writePump 启动前使用）
func (c *Client) sendDirect(msgType string, data interface{}) {
	payload, err := json.Marshal(map[string]interface{}{"type": msgType, "data": data})
	if err != nil {
		return
	}
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.Conn.WriteMessage(websocket.TextMessage, payload)
}
