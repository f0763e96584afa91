package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/nofus-backend/internal/hub"
	"github.com/DoyleJ11/nofus-backend/internal/ws"
	"github.com/DoyleJ11/nofus-backend/pkg/types"
)

type relay struct {
	srv *httptest.Server
	hub *hub.Hub
}

func newRelay(t *testing.T, opts ws.Options) *relay {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := hub.NewHub(ctx, hub.Options{})
	srv := httptest.NewServer(SetupRoutes(h, opts, zap.NewNop()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &relay{srv: srv, hub: h}
}

func (r *relay) createRoom(t *testing.T) types.CreateRoomResponse {
	t.Helper()
	resp, err := http.Post(r.srv.URL+"/api/v1/rooms", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out types.CreateRoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (r *relay) wsURL(code string, q url.Values) string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/api/v1/rooms/" + code + "/ws?" + q.Encode()
}

type peer struct {
	t    *testing.T
	conn *websocket.Conn
}

func (r *relay) dial(t *testing.T, code string, q url.Values) *peer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, r.wsURL(code, q), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return &peer{t: t, conn: conn}
}

func (r *relay) dialStatus(t *testing.T, code string, q url.Values) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, resp, err := websocket.Dial(ctx, r.wsURL(code, q), nil)
	require.Error(t, err)
	if conn != nil {
		conn.CloseNow()
	}
	require.NotNil(t, resp)
	return resp.StatusCode
}

func (p *peer) recv() types.Envelope {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := p.conn.Read(ctx)
	require.NoError(p.t, err)
	var env types.Envelope
	require.NoError(p.t, json.Unmarshal(data, &env))
	return env
}

func (p *peer) send(env types.Envelope) {
	p.t.Helper()
	data, err := json.Marshal(env)
	require.NoError(p.t, err)
	p.sendRaw(data)
}

func (p *peer) sendRaw(data []byte) {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(p.t, p.conn.Write(ctx, websocket.MessageText, data))
}

func decode[T any](t *testing.T, env types.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, env.Decode(&v))
	return v
}

func hostQuery(token string) url.Values { return url.Values{"token": {token}} }

func TestHealthAndNotFound(t *testing.T) {
	r := newRelay(t, ws.Options{})

	resp, err := http.Get(r.srv.URL + "/health")
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, err = http.Get(r.srv.URL + "/nowhere")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestCORSPreflight(t *testing.T) {
	r := newRelay(t, ws.Options{})
	req, err := http.NewRequest(http.MethodOptions, r.srv.URL+"/api/v1/rooms", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCreateRoom(t *testing.T) {
	r := newRelay(t, ws.Options{})
	created := r.createRoom(t)
	assert.Regexp(t, `^[A-Z0-9]{6}$`, created.RoomCode)
	assert.Regexp(t, `^[0-9a-f]{32}$`, created.HostToken)
	assert.NotNil(t, r.hub.Get(created.RoomCode))
}

func TestUpgradeRejections(t *testing.T) {
	r := newRelay(t, ws.Options{})
	created := r.createRoom(t)

	assert.Equal(t, http.StatusNotFound, r.dialStatus(t, "ZZZZZZ", hostQuery(created.HostToken)))
	assert.Equal(t, http.StatusUnauthorized, r.dialStatus(t, created.RoomCode, hostQuery("bad")))
	assert.Equal(t, http.StatusBadRequest, r.dialStatus(t, created.RoomCode, url.Values{"name": {"early"}}), "host not connected yet")
	assert.Equal(t, http.StatusBadRequest, r.dialStatus(t, created.RoomCode, url.Values{}))

	r.dial(t, created.RoomCode, hostQuery(created.HostToken)).recv()
	assert.Equal(t, http.StatusUnauthorized, r.dialStatus(t, created.RoomCode, url.Values{"name": {"x"}, "playerId": {"p"}, "token": {"t"}}))
}

func TestFailedUpgradeLeavesNoPlayer(t *testing.T) {
	r := newRelay(t, ws.Options{})
	created := r.createRoom(t)
	host := r.dial(t, created.RoomCode, hostQuery(created.HostToken))
	host.recv()

	// A plain GET passes the join check but cannot be upgraded.
	resp, err := http.Get(r.srv.URL + "/api/v1/rooms/" + created.RoomCode + "/ws?name=ghost")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEqual(t, http.StatusSwitchingProtocols, resp.StatusCode)

	rm := r.hub.Get(created.RoomCode)
	require.NotNil(t, rm)
	assert.Eventually(t, func() bool {
		v, err := rm.Snapshot()
		return err == nil && len(v.Players) == 0
	}, 2*time.Second, 10*time.Millisecond)

	host.conn.Close(websocket.StatusNormalClosure, "restart")
	host2 := r.dial(t, created.RoomCode, hostQuery(created.HostToken))
	hello := host2.recv()
	require.Equal(t, types.MsgHostConnected, hello.Type)
	assert.Empty(t, decode[types.HostConnectedPayload](t, hello).Players)
}

func TestRelayFlow(t *testing.T) {
	r := newRelay(t, ws.Options{})
	created := r.createRoom(t)

	// Lowercase codes resolve to the same room.
	host := r.dial(t, strings.ToLower(created.RoomCode), hostQuery(created.HostToken))
	hello := host.recv()
	require.Equal(t, types.MsgHostConnected, hello.Type)
	assert.Empty(t, decode[types.HostConnectedPayload](t, hello).Players)

	alice := r.dial(t, created.RoomCode, url.Values{"name": {"alice"}})
	joined := decode[types.RoomJoinedPayload](t, alice.recv())
	require.NotEmpty(t, joined.PlayerID)

	note := host.recv()
	require.Equal(t, types.MsgPlayerConnected, note.Type)
	assert.Equal(t, joined.PlayerID, note.SenderID)
	assert.Equal(t, "alice", decode[types.PlayerConnectedPayload](t, note).PlayerName)

	bob := r.dial(t, created.RoomCode, url.Values{"name": {"bob"}})
	bobID := decode[types.RoomJoinedPayload](t, bob.recv()).PlayerID
	host.recv()

	// Player to host, with a forged sender id.
	alice.send(types.Envelope{Type: types.MsgStartGame, Target: types.TargetHost, SenderID: "HOST"})
	got := host.recv()
	assert.Equal(t, types.MsgStartGame, got.Type)
	assert.Equal(t, joined.PlayerID, got.SenderID)

	// Host to one player.
	env, err := types.NewEnvelope(types.MsgSyncState, bobID, map[string]int{"n": 1})
	require.NoError(t, err)
	host.send(env)
	got = bob.recv()
	assert.Equal(t, types.MsgSyncState, got.Type)
	assert.Equal(t, types.TargetHost, got.SenderID)
	assert.JSONEq(t, `{"n":1}`, string(got.Payload))

	// Malformed JSON gets a local error and the connection stays usable.
	alice.sendRaw([]byte("{not json"))
	errEnv := alice.recv()
	require.Equal(t, types.MsgError, errEnv.Type)
	assert.Equal(t, types.ErrCodeInvalidJSON, decode[types.ErrorPayload](t, errEnv).Code)

	alice.send(types.Envelope{Type: "HELLO", Target: types.TargetAll})
	assert.Equal(t, "HELLO", bob.recv().Type)

	// Player disconnect notifies the host; the token brings them back.
	alice.conn.Close(websocket.StatusNormalClosure, "bye")
	gone := host.recv()
	require.Equal(t, types.MsgPlayerDisconnected, gone.Type)
	assert.Equal(t, joined.PlayerID, decode[types.PlayerDisconnectedPayload](t, gone).PlayerID)

	again := r.dial(t, created.RoomCode, url.Values{"name": {"alice"}, "playerId": {joined.PlayerID}, "token": {joined.ReconnectToken}})
	assert.Equal(t, joined, decode[types.RoomJoinedPayload](t, again.recv()))
	back := host.recv()
	assert.Equal(t, types.MsgPlayerConnected, back.Type)
	assert.Equal(t, joined.PlayerID, back.SenderID)
}

func TestHostRestartSeesRoster(t *testing.T) {
	r := newRelay(t, ws.Options{})
	created := r.createRoom(t)

	host := r.dial(t, created.RoomCode, hostQuery(created.HostToken))
	host.recv()
	alice := r.dial(t, created.RoomCode, url.Values{"name": {"alice"}})
	alice.recv()
	host.recv()

	host.conn.Close(websocket.StatusNormalClosure, "restart")

	host2 := r.dial(t, created.RoomCode, hostQuery(created.HostToken))
	hello := host2.recv()
	require.Equal(t, types.MsgHostConnected, hello.Type)
	roster := decode[types.HostConnectedPayload](t, hello).Players
	require.Len(t, roster, 1)
	assert.Equal(t, "alice", roster[0].Name)
	assert.True(t, roster[0].IsConnected)

	// The recovery round trip is plain relaying.
	req, err := types.NewEnvelope(types.MsgRequestStateRecovery, roster[0].ID, nil)
	require.NoError(t, err)
	host2.send(req)
	assert.Equal(t, types.MsgRequestStateRecovery, alice.recv().Type)

	reply, err := types.NewEnvelope(types.MsgProvideStateRecovery, types.TargetHost, types.StateRecoveryPayload{Recovery: "sealed"})
	require.NoError(t, err)
	alice.send(reply)
	got := host2.recv()
	assert.Equal(t, roster[0].ID, got.SenderID)
	assert.Equal(t, "sealed", decode[types.StateRecoveryPayload](t, got).Recovery)
}

func TestRateLimit(t *testing.T) {
	r := newRelay(t, ws.Options{MsgRate: rate.Every(time.Hour), MsgBurst: 1})
	created := r.createRoom(t)
	host := r.dial(t, created.RoomCode, hostQuery(created.HostToken))
	host.recv()

	host.send(types.Envelope{Type: "A", Target: types.TargetAll})
	host.send(types.Envelope{Type: "B", Target: types.TargetAll})
	errEnv := host.recv()
	require.Equal(t, types.MsgError, errEnv.Type)
	assert.Equal(t, types.ErrCodeRateLimited, decode[types.ErrorPayload](t, errEnv).Code)
}
