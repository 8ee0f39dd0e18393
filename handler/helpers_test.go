package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"barzo_social/middleware"
	"barzo_social/store"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-jwt-secret"

// testServer 内存存储 + 完整路由
type testServer struct {
	*httptest.Server
	Store *store.MemoryStore
	Hub   *Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.InitAuth(testJWTSecret)

	st := store.NewMemoryStore()
	hub := NewHub(st, 3)
	srv := httptest.NewServer(NewRouter(RouterConfig{Store: st, Hub: hub}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testServer{Server: srv, Store: st, Hub: hub}
}

// TestUser 测试用户
type TestUser struct {
	ID    uuid.UUID
	Token string
}

// generateJWT 生成 JWT Token
func generateJWT(userID uuid.UUID) string {
	return generateJWTWithExpiry(userID, time.Now().Add(24*time.Hour))
}

func generateJWTWithExpiry(userID uuid.UUID, exp time.Time) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     exp.Unix(),
	})
	tokenString, _ := token.SignedString([]byte(testJWTSecret))
	return tokenString
}

func createTestUser() *TestUser {
	userID := uuid.New()
	return &TestUser{ID: userID, Token: generateJWT(userID)}
}

// apiResponse 与 utils.Response 对应，data 延迟解析
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// httpRequest HTTP 请求辅助函数
func (s *testServer) httpRequest(t *testing.T, method, path, token string, body interface{}) (int, *apiResponse) {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, s.URL+path, bodyReader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var result apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return resp.StatusCode, &result
}

// decodeData 解析响应中的 data
func decodeData(t *testing.T, resp *apiResponse, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// connectWebSocket WebSocket 连接辅助函数
func (s *testServer) connectWebSocket(token string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

// wsSend WebSocket 发送消息
func wsSend(conn *websocket.Conn, msgType string, data interface{}) error {
	return conn.WriteJSON(map[string]interface{}{
		"type": msgType,
		"data": data,
	})
}

// wsReceive WebSocket 接收消息（带超时）
func wsReceive(conn *websocket.Conn, timeout time.Duration) (map[string]interface{}, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	var msg map[string]interface{}
	err := conn.ReadJSON(&msg)
	return msg, err
}
