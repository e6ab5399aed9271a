package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/radiolink/radiolink/internal/config"
	"github.com/radiolink/radiolink/internal/events"
	"github.com/radiolink/radiolink/internal/models"
	"github.com/radiolink/radiolink/internal/storage"
	"github.com/radiolink/radiolink/pkg/crypto"
	"github.com/radiolink/radiolink/pkg/radio"
)

var testDevice = radio.Address{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

type testEnv struct {
	srv   *RESTServer
	radio *radio.Radio
	store *storage.MemoryStore
	bus   *events.Bus
	admin string
	user  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Name: "radiod", Version: "test"},
		API:    config.APIConfig{Enabled: true, RequestTimeout: 5 * time.Second},
		JWT: config.JWTConfig{
			Secret:          "test-secret",
			AccessTokenTTL:  time.Minute,
			RefreshTokenTTL: time.Hour,
		},
	}

	r := radio.New(
		radio.WithChannelModel(radio.NewSimulatedChannel(radio.SimulationParams{
			Seed:          1,
			BaseRSSI:      -70,
			RSSIVariation: 5,
			MaxNetworks:   3,
		})),
		radio.WithLogger(zerolog.Nop()),
		radio.WithPollInterval(5*time.Millisecond),
	)
	rcfg := radio.DefaultConfig()
	rcfg.DeviceAddress = testDevice
	if err := r.Init(rcfg); err != nil {
		t.Fatalf("Init: %v", err)
	}

	store := storage.NewMemoryStore(100)
	bus := events.NewBus(16)
	journal := events.NewJournal(store, testDevice)
	bus.Subscribe("journal", journal)
	r.SetRxListener(bus)
	r.SetEventListener(bus)

	t.Cleanup(func() {
		bus.Close()
		if r.Initialized() {
			_ = r.Deinit()
		}
	})

	ctx := context.Background()
	if err := EnsureAdminUser(ctx, store, "admin", "secret"); err != nil {
		t.Fatalf("EnsureAdminUser: %v", err)
	}
	hash, _ := crypto.HashPassword("viewer-pass")
	if err := store.CreateUser(ctx, &models.User{Username: "viewer", PasswordHash: hash, IsActive: true}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	env := &testEnv{
		srv:   NewRESTServer(cfg, store, r, journal, bus),
		radio: r,
		store: store,
		bus:   bus,
	}
	env.admin = env.login(t, "admin", "secret")
	env.user = env.login(t, "viewer", "viewer-pass")
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", username, rec.Code, rec.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, rec, &resp)
	return resp.AccessToken
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]interface{}
	decode(t, rec, &resp)
	if resp["initialized"] != true || resp["state"] != "IDLE" {
		t.Errorf("health = %v", resp)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodGet, "/api/v1/radio/power", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/radio/power", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin", "password": "wrong",
	}); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status = %d", rec.Code)
	}
}

func TestRefreshToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin", "password": "secret",
	})
	var tokens struct {
		RefreshToken string `json:"refresh_token"`
	}
	decode(t, rec, &tokens)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": tokens.RefreshToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": env.admin,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("access token used as refresh: status = %d", rec.Code)
	}
}

func TestCurrentUser(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/me", env.user, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var user models.User
	decode(t, rec, &user)
	if user.Username != "viewer" || user.IsAdmin {
		t.Errorf("user = %+v", user)
	}
}

func TestPowerStateAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{"state": "rx"}

	if rec := env.do(t, http.MethodPut, "/api/v1/radio/power", env.user, body); rec.Code != http.StatusForbidden {
		t.Errorf("non-admin: status = %d", rec.Code)
	}

	rec := env.do(t, http.MethodPut, "/api/v1/radio/power", env.admin, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin: status = %d: %s", rec.Code, rec.Body.String())
	}
	if state, _ := env.radio.PowerState(); state != radio.PowerRx {
		t.Errorf("state = %s, want RX", state)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/radio/power", env.user, nil)
	var resp map[string]string
	decode(t, rec, &resp)
	if resp["state"] != "RX" {
		t.Errorf("GET power = %v", resp)
	}

	if rec := env.do(t, http.MethodPut, "/api/v1/radio/power", env.admin, map[string]string{"state": "warp"}); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown state: status = %d", rec.Code)
	}
}

func TestConfigure(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/radio/config", env.user, nil)
	var view ConfigView
	decode(t, rec, &view)
	if view.DeviceAddress != testDevice || view.DataRate != radio.DataRate50K {
		t.Fatalf("config = %+v", view)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/radio/config", env.admin, map[string]interface{}{
		"channel":  20,
		"dataRate": "250k",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("configure: status = %d: %s", rec.Code, rec.Body.String())
	}
	cfg, _ := env.radio.Config()
	if cfg.Channel != 20 || cfg.DataRate != radio.DataRate250K || cfg.Modulation != radio.ModulationGFSK {
		t.Errorf("config after update = %+v", cfg)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/radio/config", env.admin, map[string]interface{}{"channel": 200})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("channel 200: status = %d", rec.Code)
	}
}

func TestSendPacket(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/radio/packets", env.user, map[string]interface{}{
		"destination": "aabbccddeeff0011",
		"payload":     []byte("hello"),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("send: status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]interface{}
	decode(t, rec, &resp)
	if resp["status"] != "SUCCEEDED" {
		t.Errorf("send response = %v", resp)
	}

	stats, _ := env.radio.Statistics()
	if stats.PacketsSent != 1 {
		t.Errorf("PacketsSent = %d", stats.PacketsSent)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/packets?direction=TX", env.user, nil)
	var list struct {
		Packets []models.PacketRecord `json:"packets"`
		Total   int64                 `json:"total"`
	}
	decode(t, rec, &list)
	if list.Total != 1 || list.Packets[0].Direction != models.DirectionTX {
		t.Errorf("packet log = %+v", list)
	}
}

func TestSendPacketValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := map[string]map[string]interface{}{
		"missing destination": {"payload": []byte("x")},
		"short destination":   {"destination": "aabb"},
		"bad priority":        {"destination": "aabbccddeeff0011", "priority": "urgent"},
		"oversized":           {"destination": "aabbccddeeff0011", "payload": make([]byte, radio.MaxPayloadSize+1)},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/radio/packets", env.user, body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSendAsyncAndWait(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/radio/packets", env.user, map[string]interface{}{
		"destination": "aabbccddeeff0011",
		"payload":     []byte("async"),
		"priority":    "high",
		"async":       true,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("send async: status = %d: %s", rec.Code, rec.Body.String())
	}
	var reply models.TxReply
	decode(t, rec, &reply)
	if reply.TxID == 0 || reply.Status != "PENDING" {
		t.Fatalf("reply = %+v", reply)
	}

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/radio/tx/%d?wait_ms=2000", reply.TxID), env.user, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("tx status: %d: %s", rec.Code, rec.Body.String())
	}
	var status map[string]interface{}
	decode(t, rec, &status)
	if status["state"] != "SUCCEEDED" {
		t.Errorf("tx status = %v", status)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/radio/tx/999", env.user, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown tx: status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/radio/tx/0", env.user, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("tx 0: status = %d", rec.Code)
	}
}

func TestReceivePacket(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodGet, "/api/v1/radio/packets", env.user, nil); rec.Code != http.StatusNoContent {
		t.Errorf("empty buffer: status = %d", rec.Code)
	}

	in := radio.Packet{
		Destination: testDevice,
		Source:      radio.Address{9, 9, 9, 9, 9, 9, 9, 9},
		ID:          42,
		Payload:     []byte("ping"),
	}
	if err := env.radio.Deliver(in); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/radio/packets/pending", env.user, nil)
	var pending map[string]int
	decode(t, rec, &pending)
	if pending["pending"] != 1 || pending["capacity"] != radio.RxBufferCapacity {
		t.Errorf("pending = %v", pending)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/radio/packets?timeout_ms=100", env.user, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("receive: status = %d", rec.Code)
	}
	var got radio.Packet
	decode(t, rec, &got)
	if got.ID != 42 || string(got.Payload) != "ping" || got.Source != in.Source {
		t.Errorf("received %+v", got)
	}
}

func TestNetworkLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/radio/networks?max=2&scan_ms=10", env.user, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("scan: status = %d: %s", rec.Code, rec.Body.String())
	}
	var scan struct {
		Networks []radio.NetworkInfo `json:"networks"`
		Total    int                 `json:"total"`
	}
	decode(t, rec, &scan)
	if scan.Total == 0 || scan.Total > 2 {
		t.Errorf("scan total = %d", scan.Total)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/radio/network/join", env.user, map[string]interface{}{
		"networkId": 1000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("join: status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/radio/network", env.user, nil); rec.Code != http.StatusOK {
		t.Errorf("network info: status = %d", rec.Code)
	}

	if rec := env.do(t, http.MethodDelete, "/api/v1/radio/network", env.user, nil); rec.Code != http.StatusNoContent {
		t.Errorf("leave: status = %d", rec.Code)
	}
	// leaving twice is harmless
	if rec := env.do(t, http.MethodDelete, "/api/v1/radio/network", env.user, nil); rec.Code != http.StatusNoContent {
		t.Errorf("second leave: status = %d", rec.Code)
	}
}

func TestTelemetryEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/radio/rssi", env.user, nil)
	var rssi map[string]int
	decode(t, rec, &rssi)
	if rssi["rssi"] < radio.RSSIMin || rssi["rssi"] > radio.RSSIMax {
		t.Errorf("rssi = %v", rssi)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/radio/utilization", env.user, nil); rec.Code != http.StatusOK {
		t.Errorf("utilization: status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/radio/statistics", env.user, nil); rec.Code != http.StatusOK {
		t.Errorf("statistics: status = %d", rec.Code)
	}

	if rec := env.do(t, http.MethodDelete, "/api/v1/radio/statistics", env.user, nil); rec.Code != http.StatusForbidden {
		t.Errorf("reset as viewer: status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/v1/radio/statistics", env.admin, nil); rec.Code != http.StatusNoContent {
		t.Errorf("reset as admin: status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/radio/selftest", env.admin, nil)
	var st map[string]interface{}
	decode(t, rec, &st)
	if rec.Code != http.StatusOK || st["passed"] != true {
		t.Errorf("selftest: %d %v", rec.Code, st)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/radio/firmware", env.user, nil)
	var fw map[string]string
	decode(t, rec, &fw)
	if fw["version"] != radio.FirmwareVersion {
		t.Errorf("firmware = %v", fw)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/radio/firmware?capacity=4", env.user, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("firmware capacity 4: status = %d", rec.Code)
	}
	var body map[string]interface{}
	decode(t, rec, &body)
	if body["kind"] != "INVALID_PARAM" || int(body["code"].(float64)) != radio.ErrorCode(radio.ErrInvalidParameter) {
		t.Errorf("error body = %v", body)
	}
}

func TestStatisticsHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stats, _ := env.radio.Statistics()
	for i := 0; i < 3; i++ {
		if err := env.store.CreateStatsSnapshot(ctx, models.NewStatsSnapshot(testDevice, radio.PowerIdle, stats)); err != nil {
			t.Fatalf("CreateStatsSnapshot: %v", err)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/v1/radio/statistics/history?limit=2", env.user, nil)
	var resp struct {
		Snapshots []models.StatsSnapshot `json:"snapshots"`
		Total     int64                  `json:"total"`
	}
	decode(t, rec, &resp)
	if resp.Total != 3 || len(resp.Snapshots) != 2 {
		t.Errorf("history total=%d len=%d", resp.Total, len(resp.Snapshots))
	}
}

func TestListEvents(t *testing.T) {
	env := newTestEnv(t)

	if err := env.radio.SetPowerState(radio.PowerRx); err != nil {
		t.Fatalf("SetPowerState: %v", err)
	}

	// the journal writes asynchronously through the bus
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := env.do(t, http.MethodGet, "/api/v1/events?type=STATE_CHANGED", env.user, nil)
		var resp struct {
			Events []models.EventLog `json:"events"`
			Total  int64             `json:"total"`
		}
		decode(t, rec, &resp)
		if resp.Total > 0 {
			if resp.Events[0].Device != testDevice.String() {
				t.Errorf("event device = %q", resp.Events[0].Device)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("state change never journaled")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/events?start=yesterday", env.user, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad start time: status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/packets?direction=SIDEWAYS", env.user, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad direction: status = %d", rec.Code)
	}
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?access_token=" + env.user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	got := make(chan streamMessage, 1)
	go func() {
		var msg streamMessage
		for {
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Kind == "rx" {
				got <- msg
				return
			}
		}
	}()

	// the subscription is registered just after the upgrade completes, so
	// keep delivering until the stream picks a packet up
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case msg := <-got:
			if msg.Packet == nil || string(msg.Packet.Payload) != "stream" {
				t.Errorf("stream message = %+v", msg)
			}
			return
		case <-tick.C:
			err := env.radio.Deliver(radio.Packet{Destination: testDevice, Payload: []byte("stream")})
			if err != nil && !errors.Is(err, radio.ErrBufferFull) {
				t.Fatalf("Deliver: %v", err)
			}
		case <-timeout:
			t.Fatal("no packet on event stream")
		}
	}
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{radio.ErrInvalidParameter, http.StatusBadRequest},
		{radio.ErrOversizedPacket, http.StatusRequestEntityTooLarge},
		{radio.ErrNotFound, http.StatusNotFound},
		{radio.ErrNotConnected, http.StatusConflict},
		{radio.ErrBufferFull, http.StatusServiceUnavailable},
		{radio.ErrTimeout, http.StatusGatewayTimeout},
		{radio.ErrNoAck, http.StatusBadGateway},
		{radio.ErrHardware, http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", radio.ErrRateLimited), http.StatusTooManyRequests},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusForError(tc.err); got != tc.want {
			t.Errorf("statusForError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestEnsureAdminUserGeneratesPassword(t *testing.T) {
	store := storage.NewMemoryStore(0)
	ctx := context.Background()

	if err := EnsureAdminUser(ctx, store, "root", ""); err != nil {
		t.Fatalf("EnsureAdminUser: %v", err)
	}
	user, err := store.GetUserByUsername(ctx, "root")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if !user.IsAdmin || user.PasswordHash == "" {
		t.Errorf("user = %+v", user)
	}

	// existing accounts are left alone
	if err := EnsureAdminUser(ctx, store, "root", "other"); err != nil {
		t.Fatalf("second EnsureAdminUser: %v", err)
	}
	again, _ := store.GetUserByUsername(ctx, "root")
	if again.PasswordHash != user.PasswordHash {
		t.Error("password hash changed")
	}
}
