package replica_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json/v2"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readwellapp/readwell-sync/internal/auth"
	"github.com/readwellapp/readwell-sync/internal/domain"
	"github.com/readwellapp/readwell-sync/internal/errors"
	"github.com/readwellapp/readwell-sync/internal/gateway"
	"github.com/readwellapp/readwell-sync/internal/ratelimit"
	"github.com/readwellapp/readwell-sync/internal/replica"
	"github.com/readwellapp/readwell-sync/internal/store"
)

type fixture struct {
	server *httptest.Server
	tokens *auth.TokenService
	store  *store.Store
}

func setupTestServer(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	testStore, err := store.NewInMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() { testStore.Close() })

	key := make([]byte, 32)
	_, err = rand.Read(key)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(key, time.Hour)
	require.NoError(t, err)

	srv := replica.NewServer(testStore, tokens, ratelimit.New(100, 100), logger)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &fixture{server: ts, tokens: tokens, store: testStore}
}

func (f *fixture) tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := f.tokens.GenerateAccessToken(&domain.User{ID: userID, Email: userID + "@example.com"})
	require.NoError(t, err)
	return token
}

func (f *fixture) request(t *testing.T, method, userID, token string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+"/api/v1/replica/"+userID, bytes.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func testSnapshot(userID string) *domain.Snapshot {
	return &domain.Snapshot{
		UserID: userID,
		ReadingHistory: []domain.ReadingHistoryEntry{
			{BookID: "book-1", BookTitle: "The Hobbit", LastReadTime: 1000},
		},
		ReadingProgress: map[string]domain.ReadingProgress{},
		LastModified:    1000,
		Version:         1,
	}
}

func TestHealthCheck(t *testing.T) {
	f := setupTestServer(t)

	resp, err := http.Get(f.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadDownload_RoundTrip(t *testing.T) {
	f := setupTestServer(t)
	token := f.tokenFor(t, "user-1")

	body, err := json.Marshal(testSnapshot("user-1"))
	require.NoError(t, err)

	resp := f.request(t, http.MethodPut, "user-1", token, body)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.request(t, http.MethodGet, "user-1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Data    *domain.Snapshot `json:"data"`
		Success bool             `json:"success"`
	}
	require.NoError(t, json.UnmarshalRead(resp.Body, &envelope))
	require.NotNil(t, envelope.Data)
	assert.True(t, envelope.Success)
	assert.Equal(t, int64(1), envelope.Data.Version)
	require.Len(t, envelope.Data.ReadingHistory, 1)
	assert.Equal(t, "book-1", envelope.Data.ReadingHistory[0].BookID)
}

func TestDelete_ResetsReplicaState(t *testing.T) {
	f := setupTestServer(t)
	token := f.tokenFor(t, "user-1")

	body, err := json.Marshal(testSnapshot("user-1"))
	require.NoError(t, err)
	resp := f.request(t, http.MethodPut, "user-1", token, body)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.request(t, http.MethodDelete, "user-1", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.request(t, http.MethodGet, "user-1", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Deleting again is still a 204; there is nothing to conflict with.
	resp = f.request(t, http.MethodDelete, "user-1", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestDelete_CrossUserForbidden(t *testing.T) {
	f := setupTestServer(t)
	token := f.tokenFor(t, "user-2")

	resp := f.request(t, http.MethodDelete, "user-1", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDownload_NeverUploaded(t *testing.T) {
	f := setupTestServer(t)
	token := f.tokenFor(t, "user-1")

	resp := f.request(t, http.MethodGet, "user-1", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuth_MissingToken(t *testing.T) {
	f := setupTestServer(t)

	resp := f.request(t, http.MethodGet, "user-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_GarbageToken(t *testing.T) {
	f := setupTestServer(t)

	resp := f.request(t, http.MethodGet, "user-1", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_CannotTouchAnotherUsersSnapshot(t *testing.T) {
	f := setupTestServer(t)
	token := f.tokenFor(t, "user-1")

	resp := f.request(t, http.MethodGet, "user-2", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	body, err := json.Marshal(testSnapshot("user-2"))
	require.NoError(t, err)
	resp = f.request(t, http.MethodPut, "user-2", token, body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUpload_MismatchedBody(t *testing.T) {
	f := setupTestServer(t)
	token := f.tokenFor(t, "user-1")

	// Path says user-1, body says user-2.
	body, err := json.Marshal(testSnapshot("user-2"))
	require.NoError(t, err)

	resp := f.request(t, http.MethodPut, "user-1", token, body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_MalformedBody(t *testing.T) {
	f := setupTestServer(t)
	token := f.tokenFor(t, "user-1")

	resp := f.request(t, http.MethodPut, "user-1", token, []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	testStore, err := store.NewInMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() { testStore.Close() })

	key := make([]byte, 32)
	_, err = rand.Read(key)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(key, time.Hour)
	require.NoError(t, err)

	srv := replica.NewServer(testStore, tokens, ratelimit.New(0.001, 2), logger)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	token, err := tokens.GenerateAccessToken(&domain.User{ID: "user-1", Email: "u@example.com"})
	require.NoError(t, err)

	statuses := make([]int, 0, 3)
	for range 3 {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/replica/user-1", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}

	assert.Equal(t, http.StatusTooManyRequests, statuses[2], "third request exceeds the burst")
}

// staticToken satisfies gateway.TokenSource with a fixed token.
type staticToken string

func (s staticToken) AccessToken() (string, error) { return string(s), nil }

func TestHTTPGateway_AgainstServer(t *testing.T) {
	f := setupTestServer(t)
	ctx := context.Background()

	gw := gateway.NewHTTP(f.server.URL, staticToken(f.tokenFor(t, "user-1")))

	_, err := gw.Download(ctx, "user-1")
	assert.ErrorIs(t, err, errors.ErrNotFound, "empty replica yields not-found")

	require.NoError(t, gw.Upload(ctx, testSnapshot("user-1")))

	got, err := gw.Download(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, int64(1), got.Version)
}
