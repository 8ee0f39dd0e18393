package handler

import (
	"errors"
	"net/http"
	"testing"

	"barzo_social/model"
	"barzo_social/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	status, resp := srv.httpRequest(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, resp.Code)
}

func TestAPI_RequiresAuth(t *testing.T) {
	srv := newTestServer(t)

	status, resp := srv.httpRequest(t, http.MethodGet, "/api/v1/relationships/target/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestRelationshipLifecycle(t *testing.T) {
	srv := newTestServer(t)
	alice := createTestUser()
	bob := createTestUser()

	// 默认 public
	status, resp := srv.httpRequest(t, http.MethodGet, "/api/v1/relationships/target/"+bob.ID.String(), alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var current struct {
		Kind    model.RelationshipKind   `json:"kind"`
		Level   int                      `json:"level"`
		Allowed []model.RelationshipKind `json:"allowed"`
	}
	decodeData(t, resp, &current)
	assert.Equal(t, model.KindPublic, current.Kind)
	assert.Equal(t, -1, current.Level)
	assert.ElementsMatch(t, []model.RelationshipKind{model.KindFollower, model.KindBlocked, model.KindMuted}, current.Allowed)

	// public -> follower
	status, resp = srv.httpRequest(t, http.MethodPost, "/api/v1/relationships", alice.Token, map[string]interface{}{
		"target_id": bob.ID,
		"kind":      "follower",
	})
	require.Equal(t, http.StatusOK, status, resp.Message)

	status, resp = srv.httpRequest(t, http.MethodGet, "/api/v1/relationships/target/"+bob.ID.String(), alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	decodeData(t, resp, &current)
	assert.Equal(t, model.KindFollower, current.Kind)
	assert.Equal(t, 2, current.Level)

	// follower -> owner 被拒绝
	status, resp = srv.httpRequest(t, http.MethodPost, "/api/v1/relationships", alice.Token, map[string]interface{}{
		"target_id": bob.ID,
		"kind":      "owner",
	})
	require.Equal(t, http.StatusConflict, status)
	var rejected struct {
		From    model.RelationshipKind   `json:"from"`
		To      model.RelationshipKind   `json:"to"`
		Allowed []model.RelationshipKind `json:"allowed"`
	}
	decodeData(t, resp, &rejected)
	assert.Equal(t, model.KindFollower, rejected.From)
	assert.Equal(t, model.KindOwner, rejected.To)
	assert.Contains(t, rejected.Allowed, model.KindAcquaintance)

	assert.Equal(t, 1, srv.Store.NotificationCount())
}

func TestSetRelationship_BadRequests(t *testing.T) {
	srv := newTestServer(t)
	alice := createTestUser()
	target := uuid.New()

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"unknown kind", map[string]interface{}{"target_id": target, "kind": "bestie"}},
		{"unknown target type", map[string]interface{}{"target_id": target, "kind": "follower", "target_type": "group"}},
		{"missing kind", map[string]interface{}{"target_id": target}},
		{"self", map[string]interface{}{"target_id": alice.ID, "kind": "follower"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := srv.httpRequest(t, http.MethodPost, "/api/v1/relationships", alice.Token, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
	assert.Equal(t, 0, srv.Store.RelationshipCount())
}

func TestSetRelationship_StorageFailure(t *testing.T) {
	srv := newTestServer(t)
	alice := createTestUser()

	srv.Store.FailOn(store.OpTxCreateNotification, errors.New("connection reset"))
	status, resp := srv.httpRequest(t, http.MethodPost, "/api/v1/relationships", alice.Token, map[string]interface{}{
		"target_id": uuid.New(),
		"kind":      "follower",
	})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "storage error", resp.Message)
	assert.Equal(t, 1, srv.Store.Rollbacks())
	assert.Equal(t, 0, srv.Store.RelationshipCount())
}

func TestCheckTransition(t *testing.T) {
	srv := newTestServer(t)
	alice := createTestUser()

	status, resp := srv.httpRequest(t, http.MethodGet, "/api/v1/relationships/transitions?from=friend&to=member", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var result struct {
		Valid   bool `json:"valid"`
		Upgrade bool `json:"upgrade"`
	}
	decodeData(t, resp, &result)
	assert.True(t, result.Valid)
	assert.True(t, result.Upgrade)

	status, resp = srv.httpRequest(t, http.MethodGet, "/api/v1/relationships/transitions?to=owner", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	decodeData(t, resp, &result)
	assert.False(t, result.Valid)

	status, _ = srv.httpRequest(t, http.MethodGet, "/api/v1/relationships/transitions?to=bestie", alice.Token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCheckPermission(t *testing.T) {
	srv := newTestServer(t)
	alice := createTestUser()
	persona := uuid.New()
	path := "/api/v1/relationships/target/" + persona.String() + "/permission?target_type=persona&required="

	for _, kind := range []string{"follower", "acquaintance", "friend"} {
		status, resp := srv.httpRequest(t, http.MethodPost, "/api/v1/relationships", alice.Token, map[string]interface{}{
			"target_id":   persona,
			"target_type": "persona",
			"kind":        kind,
		})
		require.Equal(t, http.StatusOK, status, resp.Message)
	}

	var result struct {
		Allowed bool `json:"allowed"`
	}
	status, resp := srv.httpRequest(t, http.MethodGet, path+"acquaintance", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	decodeData(t, resp, &result)
	assert.True(t, result.Allowed)

	status, resp = srv.httpRequest(t, http.MethodGet, path+"moderator", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	decodeData(t, resp, &result)
	assert.False(t, result.Allowed)

	status, _ = srv.httpRequest(t, http.MethodGet, path+"bestie", alice.Token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestBlockUnblock(t *testing.T) {
	srv := newTestServer(t)
	alice := createTestUser()
	bob := createTestUser()

	status, _ := srv.httpRequest(t, http.MethodPost, "/api/v1/relationships/block", alice.Token, map[string]interface{}{
		"target_user_id": bob.ID,
		"reason":         "spam",
	})
	require.Equal(t, http.StatusOK, status)

	status, resp := srv.httpRequest(t, http.MethodGet, "/api/v1/relationships/blocked", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		BlockedUsers []model.UserBlock `json:"blocked_users"`
	}
	decodeData(t, resp, &list)
	require.Len(t, list.BlockedUsers, 1)
	assert.Equal(t, bob.ID, list.BlockedUsers[0].BlockedID)
	require.NotNil(t, list.BlockedUsers[0].Reason)
	assert.Equal(t, "spam", *list.BlockedUsers[0].Reason)

	status, _ = srv.httpRequest(t, http.MethodPost, "/api/v1/relationships/unblock", alice.Token, map[string]interface{}{"target_user_id": bob.ID})
	require.Equal(t, http.StatusOK, status)

	status, _ = srv.httpRequest(t, http.MethodPost, "/api/v1/relationships/unblock", alice.Token, map[string]interface{}{"target_user_id": bob.ID})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = srv.httpRequest(t, http.MethodPost, "/api/v1/relationships/block", alice.Token, map[string]interface{}{"target_user_id": alice.ID})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMuteUnmute(t *testing.T) {
	srv := newTestServer(t)
	alice := createTestUser()
	bob := createTestUser()

	status, _ := srv.httpRequest(t, http.MethodPost, "/api/v1/relationships/mute", alice.Token, map[string]interface{}{"target_user_id": bob.ID})
	require.Equal(t, http.StatusOK, status)

	status, resp := srv.httpRequest(t, http.MethodGet, "/api/v1/relationships/target/"+bob.ID.String(), alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var current struct {
		Kind model.RelationshipKind `json:"kind"`
	}
	decodeData(t, resp, &current)
	assert.Equal(t, model.KindMuted, current.Kind)

	status, _ = srv.httpRequest(t, http.MethodPost, "/api/v1/relationships/unmute", alice.Token, map[string]interface{}{"target_user_id": bob.ID})
	require.Equal(t, http.StatusOK, status)

	status, _ = srv.httpRequest(t, http.MethodPost, "/api/v1/relationships/unmute", alice.Token, map[string]interface{}{"target_user_id": bob.ID})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 0, srv.Store.NotificationCount())
}
