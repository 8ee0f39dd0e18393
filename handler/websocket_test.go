package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"barzo_social/model"
	"barzo_social/service"
	"barzo_social/store"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocket_RejectsMissingToken(t *testing.T) {
	srv := newTestServer(t)

	_, resp, err := srv.connectWebSocket("")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = srv.connectWebSocket("garbage")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_ReceivesRelationshipNotification(t *testing.T) {
	srv := newTestServer(t)
	alice := createTestUser()
	bob := createTestUser()

	conn, _, err := srv.connectWebSocket(bob.Token)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return srv.Hub.HasSubscription(bob.ID)
	}, 2*time.Second, 10*time.Millisecond)

	status, resp := srv.httpRequest(t, http.MethodPost, "/api/v1/relationships", alice.Token, map[string]interface{}{
		"target_id": bob.ID,
		"kind":      "follower",
	})
	require.Equal(t, http.StatusOK, status, resp.Message)

	msg, err := wsReceive(conn, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "notification", msg["type"])

	data, ok := msg["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, alice.ID.String(), data["source_id"])
	assert.Equal(t, model.NotificationTypeRelationshipChange, data["notification_type"])

	// 通过 WebSocket 标记已读
	require.NoError(t, wsSend(conn, "mark_read", map[string]interface{}{"notification_id": data["id"]}))
	msg, err = wsReceive(conn, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "notification_read", msg["type"])
	read, ok := msg["data"].(map[string]interface{})
	require.True(t, ok)
	assert.NotNil(t, read["read_at"])
}

func TestWebSocket_HeartbeatAndUnknownType(t *testing.T) {
	srv := newTestServer(t)
	bob := createTestUser()

	conn, _, err := srv.connectWebSocket(bob.Token)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wsSend(conn, "heartbeat", nil))
	msg, err := wsReceive(conn, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "heartbeat", msg["type"])

	require.NoError(t, wsSend(conn, "dance", nil))
	msg, err = wsReceive(conn, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "error", msg["type"])

	require.NoError(t, wsSend(conn, "mark_read", map[string]interface{}{"notification_id": uuid.NewString()}))
	msg, err = wsReceive(conn, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "error", msg["type"])
}

func newFakeClient(hub *Hub, userID uuid.UUID) *Client {
	return &Client{
		ID:      uuid.New(),
		UserID:  userID,
		Session: &service.Session{UserID: userID},
		Send:    make(chan []byte, 8),
		Hub:     hub,
	}
}

func TestHub_SubscriptionFollowsDevices(t *testing.T) {
	st := store.NewMemoryStore()
	hub := NewHub(st, 5)
	userID := uuid.New()

	phone := newFakeClient(hub, userID)
	laptop := newFakeClient(hub, userID)
	require.True(t, hub.Register(phone))
	require.True(t, hub.Register(laptop))
	assert.True(t, hub.IsUserOnline(userID))
	assert.True(t, hub.HasSubscription(userID))

	actor, err := service.NewSocialService(st, &service.Session{UserID: uuid.New()})
	require.NoError(t, err)
	_, err = actor.SetRelationship(context.Background(), userID, model.TargetUser, model.KindFollower)
	require.NoError(t, err)

	// 两个设备都收到
	for _, client := range []*Client{phone, laptop} {
		select {
		case raw := <-client.Send:
			var msg map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(raw, &msg))
			assert.JSONEq(t, `"notification"`, string(msg["type"]))
		default:
			t.Fatalf("client %s received nothing", client.ID)
		}
	}

	hub.Unregister(phone)
	assert.True(t, hub.HasSubscription(userID))

	hub.Unregister(laptop)
	assert.False(t, hub.HasSubscription(userID))
	assert.False(t, hub.IsUserOnline(userID))

	_, err = actor.SetRelationship(context.Background(), userID, model.TargetUser, model.KindAcquaintance)
	require.NoError(t, err)
	assert.False(t, hub.SendToUser(userID, []byte("{}")))
}

func TestHub_UnregisterTwiceIsSafe(t *testing.T) {
	hub := NewHub(store.NewMemoryStore(), 0)
	client := newFakeClient(hub, uuid.New())
	require.True(t, hub.Register(client))

	hub.Unregister(client)
	hub.Unregister(client)
	assert.False(t, client.enqueue([]byte("late")))
	assert.Equal(t, 18, hub.MaxConnectionsPerUser)
}

// receiveType 从 Send 取出一条消息并返回 type
func receiveType(t *testing.T, client *Client) string {
	t.Helper()
	select {
	case raw := <-client.Send:
		var msg struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg.Type
	default:
		t.Fatalf("client %s received nothing", client.ID)
		return ""
	}
}

func TestHub_RetriesFailedSubscription(t *testing.T) {
	st := store.NewMemoryStore()
	hub := NewHub(st, 5)
	userID := uuid.New()

	st.FailOn(store.OpSubscribeNotification, errors.New("redis unavailable"))
	phone := newFakeClient(hub, userID)
	require.True(t, hub.Register(phone))
	assert.True(t, hub.IsUserOnline(userID))
	assert.False(t, hub.HasSubscription(userID))
	assert.Equal(t, "error", receiveType(t, phone))

	// 下一个设备上线时重新订阅
	st.FailOn(store.OpSubscribeNotification, nil)
	laptop := newFakeClient(hub, userID)
	require.True(t, hub.Register(laptop))
	assert.True(t, hub.HasSubscription(userID))

	actor, err := service.NewSocialService(st, &service.Session{UserID: uuid.New()})
	require.NoError(t, err)
	_, err = actor.SetRelationship(context.Background(), userID, model.TargetUser, model.KindFollower)
	require.NoError(t, err)

	assert.Equal(t, "notification", receiveType(t, phone))
	assert.Equal(t, "notification", receiveType(t, laptop))
}

// slowSubscribeStore 订阅阻塞直到 release 关闭
type slowSubscribeStore struct {
	*store.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *slowSubscribeStore) SubscribeNotifications(ctx context.Context, recipientID uuid.UUID, fn store.NotificationHandler) (store.Subscription, error) {
	close(s.entered)
	<-s.release
	return s.MemoryStore.SubscribeNotifications(ctx, recipientID, fn)
}

func TestHub_SubscribeDoesNotHoldLock(t *testing.T) {
	st := &slowSubscribeStore{MemoryStore: store.NewMemoryStore(), entered: make(chan struct{}), release: make(chan struct{})}
	hub := NewHub(st, 5)
	userID := uuid.New()
	client := newFakeClient(hub, userID)

	registered := make(chan bool, 1)
	go func() { registered <- hub.Register(client) }()
	<-st.entered

	// 订阅进行中，Hub 的其他操作不被阻塞
	done := make(chan bool, 1)
	go func() {
		done <- hub.IsUserOnline(userID) && hub.SendToUser(userID, []byte(`{"type":"ping"}`))
	}()
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("hub blocked while subscribing")
	}

	close(st.release)
	assert.True(t, <-registered)
	assert.True(t, hub.HasSubscription(userID))
}

func TestHub_DropsSubscriptionWhenUserLeftDuringSubscribe(t *testing.T) {
	st := &slowSubscribeStore{MemoryStore: store.NewMemoryStore(), entered: make(chan struct{}), release: make(chan struct{})}
	hub := NewHub(st, 5)
	userID := uuid.New()
	client := newFakeClient(hub, userID)

	registered := make(chan bool, 1)
	go func() { registered <- hub.Register(client) }()
	<-st.entered

	hub.Unregister(client)
	close(st.release)
	<-registered

	assert.False(t, hub.HasSubscription(userID))
	assert.False(t, hub.IsUserOnline(userID))

	hub.mu.RLock()
	pending := hub.subscribing[userID]
	hub.mu.RUnlock()
	assert.False(t, pending)
}

func TestWebSocket_ClosesOnSessionExpiry(t *testing.T) {
	srv := newTestServer(t)
	userID := uuid.New()
	token := generateJWTWithExpiry(userID, time.Now().Add(2*time.Second))

	conn, _, err := srv.connectWebSocket(token)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return srv.Hub.HasSubscription(userID)
	}, time.Second, 10*time.Millisecond)

	_, err = wsReceive(conn, 5*time.Second)
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)

	require.Eventually(t, func() bool {
		return !srv.Hub.IsUserOnline(userID) && !srv.Hub.HasSubscription(userID)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionExpiry(t *testing.T) {
	ch, stop := sessionExpiry(&service.Session{UserID: uuid.New()})
	defer stop()
	assert.Nil(t, ch)

	ch, stop = sessionExpiry(&service.Session{UserID: uuid.New(), ExpiresAt: time.Now().Add(-time.Second)})
	defer stop()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expired session did not fire")
	}
}
