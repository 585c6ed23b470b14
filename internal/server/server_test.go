package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notespresence/internal/metrics"
	"notespresence/internal/models"
	"notespresence/internal/profiles"
	"notespresence/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	profileStore, err := storage.NewProfileStorage(filepath.Join(dir, "profiles.json"))
	require.NoError(t, err)
	presenceStore, err := storage.NewPresenceStorage(filepath.Join(dir, "presence.json"), 100)
	require.NoError(t, err)
	svc := profiles.NewService(profileStore, presenceStore, time.Minute, time.Minute, zap.NewNop().Sugar())

	s := New(":0", svc, time.Hour, zap.NewNop().Sugar())
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func do(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func register(t *testing.T, base, name string) models.UserProfile {
	t.Helper()
	resp := do(t, http.MethodPost, base+"/api/users", "", map[string]string{"name": name, "email": strings.ToLower(name) + "@example.com"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var p models.UserProfile
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	require.NotEmpty(t, p.Token)
	return p
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/healthz", "", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterValidation(t *testing.T) {
	_, ts := newTestServer(t)
	resp := do(t, http.MethodPost, ts.URL+"/api/users", "", map[string]string{"name": "Ari"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPresenceFlow(t *testing.T) {
	_, ts := newTestServer(t)
	p := register(t, ts.URL, "Arihant")

	resp := do(t, http.MethodPatch, ts.URL+"/api/presence", p.Token, map[string]any{
		"is_online":   false,
		"observed_at": time.Now().UTC(),
	})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/api/profile", p.Token, nil)
	var got models.UserProfile
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	require.Equal(t, p.UID, got.UID)
	require.False(t, got.IsOnline)
	require.Empty(t, got.Token)

	resp = do(t, http.MethodGet, ts.URL+"/api/presence/uptime", "", nil)
	var uptime []metrics.UserUptime
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uptime))
	resp.Body.Close()
	require.Len(t, uptime, 1)
	require.Equal(t, 0.0, uptime[0].OnlinePercent)

	resp = do(t, http.MethodGet, ts.URL+"/api/presence/timeline?points=4&hours=1&uid="+p.UID, "", nil)
	var timelines []models.UserTimeline
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&timelines))
	resp.Body.Close()
	require.Len(t, timelines, 1)
	require.Len(t, timelines[0].Timeline, 4)
	require.Equal(t, "state-error", timelines[0].Timeline[3].ClassName)

	resp = do(t, http.MethodGet, ts.URL+"/api/users", "", nil)
	var users []models.UserProfile
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	resp.Body.Close()
	require.Len(t, users, 1)
	require.Empty(t, users[0].Token)
}

func TestPresenceErrors(t *testing.T) {
	_, ts := newTestServer(t)
	p := register(t, ts.URL, "Ari")

	resp := do(t, http.MethodPatch, ts.URL+"/api/presence", "", map[string]bool{"is_online": true})
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodPatch, ts.URL+"/api/presence", "unknown", map[string]bool{"is_online": true})
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPatch, ts.URL+"/api/presence", p.Token, map[string]string{})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/api/profile", "unknown", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Equal(t, "", bearerToken(r))
	r.Header.Set("Authorization", "bearer  abc ")
	require.Equal(t, "abc", bearerToken(r))
	r.Header.Set("Authorization", "Basic abc")
	require.Equal(t, "", bearerToken(r))
}

func TestWebsocketPushesOnChange(t *testing.T) {
	_, ts := newTestServer(t)
	p := register(t, ts.URL, "Ari")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var snap overviewSnapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&snap))
	require.Equal(t, 1, snap.Total)
	require.Equal(t, 1, snap.Online)

	resp := do(t, http.MethodPatch, ts.URL+"/api/presence", p.Token, map[string]bool{"is_online": false})
	resp.Body.Close()

	require.NoError(t, conn.ReadJSON(&snap))
	require.Equal(t, 0, snap.Online)
}
