package webserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ichi0g0y/wheel-overlay/internal/localdb"
	"github.com/ichi0g0y/wheel-overlay/internal/lottery"
	"github.com/ichi0g0y/wheel-overlay/internal/settings"
	"github.com/ichi0g0y/wheel-overlay/internal/status"
	"github.com/ichi0g0y/wheel-overlay/internal/wheel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	if localdb.DBClient != nil {
		_ = localdb.DBClient.Close()
		localdb.DBClient = nil
	}
	db, err := localdb.SetupDB(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("SetupDB failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
		localdb.DBClient = nil
	})

	sm := settings.NewStore(db)
	m := wheel.NewMachine(wheel.Config{
		Random:   lottery.NewSeededSource(7),
		Store:    sm,
		Recorder: localdb.SaveSpinHistory,
		After:    func(time.Duration, func()) {},
	})
	svc := wheel.NewService(m, status.NewFeed("relay"), nil)
	s := NewServer(svc, sm, nil)

	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func doJSON(t *testing.T, method, url, body string) (int, map[string]interface{}) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestWheelStateEndpoint(t *testing.T) {
	_, ts := setupTestServer(t)

	code, body := doJSON(t, http.MethodGet, ts.URL+"/api/wheel/state", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "joins", body["mode"])
	assert.Equal(t, false, body["isSpinning"])
	assert.Equal(t, "Getting ready...", body["wheelUiStatus"])
}

func TestSpinWithEmptyPoolIsRejected(t *testing.T) {
	_, ts := setupTestServer(t)

	code, body := doJSON(t, http.MethodPost, ts.URL+"/api/wheel/spin", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No entries to spin", body["error"])
}

func TestSetModeValidation(t *testing.T) {
	s, ts := setupTestServer(t)

	code, body := doJSON(t, http.MethodPost, ts.URL+"/api/wheel/mode", `{"mode":"follows"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	fields, ok := body["fields"].(map[string]interface{})
	require.True(t, ok, "expected field errors, got %v", body)
	assert.Contains(t, fields["mode"], "Must be one of")

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/api/wheel/mode", `{"mode":"likes"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "likes", string(s.machine().Snapshot().Mode))

	got, err := s.settings.GetSetting(settings.KeyWheelMode)
	require.NoError(t, err)
	assert.Equal(t, "likes", got)
}

func TestTestEntriesThenSpin(t *testing.T) {
	s, ts := setupTestServer(t)

	code, _ := doJSON(t, http.MethodPost, ts.URL+"/api/wheel/entries/test", `{"count":0}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := doJSON(t, http.MethodPost, ts.URL+"/api/wheel/entries/test", `{"count":3}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Len(t, s.machine().Snapshot().Entries, 3)

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/api/wheel/spin", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, s.machine().Snapshot().IsSpinning)

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/api/wheel/spin", "")
	assert.Equal(t, http.StatusConflict, code)

	code, _ = doJSON(t, http.MethodPut, ts.URL+"/api/wheel/entries", `{"entries":[{"name":"alice"}]}`)
	assert.Equal(t, http.StatusConflict, code)
}

func TestSetEntries(t *testing.T) {
	s, ts := setupTestServer(t)

	code, _ := doJSON(t, http.MethodPut, ts.URL+"/api/wheel/entries", `{"entries":[{"name":"alice"},{"name":"bob","isSubscriber":true}]}`)
	require.Equal(t, http.StatusOK, code)

	entries := s.machine().Snapshot().Entries
	require.Len(t, entries, 2)
	assert.Equal(t, "bob", entries[1].Name)
	assert.True(t, entries[1].IsSubscriber)

	code, _ = doJSON(t, http.MethodPut, ts.URL+"/api/wheel/entries", `{"entries":[{"name":""}]}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLayoutEndpoint(t *testing.T) {
	s, ts := setupTestServer(t)
	require.NoError(t, s.machine().AddTestEntries(4))

	code, body := doJSON(t, http.MethodGet, ts.URL+"/api/wheel/layout", "")
	require.Equal(t, http.StatusOK, code)
	segments, ok := body["segments"].([]interface{})
	require.True(t, ok)
	assert.Len(t, segments, 4)
}

func TestPutSettingsRoutesWheelKeys(t *testing.T) {
	s, ts := setupTestServer(t)

	code, body := doJSON(t, http.MethodPut, ts.URL+"/api/settings/", `{"settings":{"COINS_PER_ENTRY":"250","RELAY_URL":"ws://localhost:21213"}}`)
	require.Equal(t, http.StatusOK, code, "body=%v", body)

	assert.EqualValues(t, 250, s.machine().Snapshot().Settings.CoinsPerEntry)
	got, err := s.settings.GetSetting("RELAY_URL")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:21213", got)

	code, _ = doJSON(t, http.MethodPut, ts.URL+"/api/settings/", `{"settings":{"COINS_PER_ENTRY":"0"}}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.EqualValues(t, 250, s.machine().Snapshot().Settings.CoinsPerEntry)

	code, _ = doJSON(t, http.MethodPut, ts.URL+"/api/settings/", `{"settings":{"NOT_A_KEY":"1"}}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetSettingsMasksSecrets(t *testing.T) {
	s, ts := setupTestServer(t)
	require.NoError(t, s.settings.Save("TWITCH_ACCESS_TOKEN", "super-secret"))

	code, body := doJSON(t, http.MethodGet, ts.URL+"/api/settings/", "")
	require.Equal(t, http.StatusOK, code)

	token, ok := body["TWITCH_ACCESS_TOKEN"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "********", token["value"])
	assert.Equal(t, true, token["has_value"])
}

func TestInjectEventAddsEntry(t *testing.T) {
	s, ts := setupTestServer(t)
	require.NoError(t, s.machine().StartCollecting())

	code, _ := doJSON(t, http.MethodPost, ts.URL+"/api/feed/event", `{"event":"member","data":{"userId":"1","uniqueId":"alice","nickname":"Alice"}}`)
	require.Equal(t, http.StatusOK, code)

	entries := s.machine().Snapshot().Entries
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Name)

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/api/feed/event", `{"event":"share","data":{}}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestFeedStatusEndpoint(t *testing.T) {
	s, ts := setupTestServer(t)
	s.service.Feed().SetConnected(true)

	code, body := doJSON(t, http.MethodGet, ts.URL+"/api/feed/status", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "relay", body["source"])
	assert.Equal(t, true, body["connected"])
	assert.True(t, s.machine().Snapshot().IsConnected)
}

func TestHistoryEndpoints(t *testing.T) {
	_, ts := setupTestServer(t)
	require.NoError(t, localdb.SaveSpinHistory(localdb.SpinHistory{
		ID:           "spin-1",
		WinnerName:   "alice",
		Mode:         "joins",
		TotalEntries: 2,
		WinnerIndex:  1,
		SpunAt:       time.Now(),
	}))

	code, body := doJSON(t, http.MethodGet, ts.URL+"/api/wheel/history?limit=5", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])

	code, _ = doJSON(t, http.MethodGet, ts.URL+"/api/wheel/history?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/wheel/history/missing", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/wheel/history/spin-1", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestErrorReportAndReset(t *testing.T) {
	s, ts := setupTestServer(t)

	code, _ := doJSON(t, http.MethodPost, ts.URL+"/api/wheel/error", `{"error":"render","message":"canvas lost"}`)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, s.machine().Snapshot().HasError)

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/api/wheel/error/reset", "")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, s.machine().Snapshot().HasError)
}

func TestWebSocketGreetingAndBroadcast(t *testing.T) {
	s, ts := setupTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.hub.Run(ctx)
	unsubscribe := s.machine().Subscribe(func(n wheel.Notification) {
		s.hub.Broadcast(string(n.Type), n.Data)
	})
	t.Cleanup(unsubscribe)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?clientId=overlay-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() Message {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	first := read()
	assert.Equal(t, "connected", first.Type)
	assert.JSONEq(t, `{"clientId":"overlay-1"}`, string(first.Data))

	greeting := read()
	assert.Equal(t, string(wheel.NotifyStateChanged), greeting.Type)

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.machine().StartCollecting())

	seen := map[string]bool{}
	for i := 0; i < 4 && !seen[string(wheel.NotifyStateChanged)]; i++ {
		seen[read().Type] = true
	}
	assert.True(t, seen[string(wheel.NotifyStateChanged)])
}
