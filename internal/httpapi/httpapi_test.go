package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"reminderd/internal/channel"
	"reminderd/internal/clock"
	"reminderd/internal/notifier"
	"reminderd/internal/scheduler"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

const (
	testSecret = "test-secret"
	testAdmin  = "admin-token"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeDevices struct {
	registered []string
	deleted    []string
}

func (f *fakeDevices) RegisterDevice(_ context.Context, token string) (string, error) {
	f.registered = append(f.registered, token)
	return "arn:aws:sns:endpoint/" + token, nil
}

func (f *fakeDevices) UnregisterDevice(_ context.Context, endpoint string) error {
	f.deleted = append(f.deleted, endpoint)
	return nil
}

type fixture struct {
	router  *gin.Engine
	store   *storage.Memory
	sched   *scheduler.Service
	notif   *notifier.Service
	devices *fakeDevices
}

func newFixture(t *testing.T, adminToken string) *fixture {
	t.Helper()
	store := storage.NewMemory()
	fc := clock.NewFake(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	sock := channel.Func{ChannelName: channel.Socket, Fn: func(context.Context, channel.Recipient, channel.Message) error { return nil }}
	notif := notifier.New(notifier.Config{Channels: notifier.Flags{Socket: true}}, []channel.Adapter{sock}, notifier.Deps{Users: store, Clock: fc})
	sched := scheduler.New(scheduler.Config{Location: time.UTC}, scheduler.Deps{Store: store, Dispatcher: notif, Clock: fc})
	t.Cleanup(func() { sched.Stop(context.Background()) })
	devices := &fakeDevices{}
	r := NewRouter(Deps{
		Reminders:  sched,
		Dispatch:   notif,
		Users:      store,
		Devices:    devices,
		Metrics:    http.NotFoundHandler(),
		JWTSecret:  testSecret,
		AdminToken: adminToken,
	})
	return &fixture{router: r, store: store, sched: sched, notif: notif, devices: devices}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := IssueUserToken([]byte(testSecret), userID, time.Hour)
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}
	return tok
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestReminderRoutesRequireToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	for _, bearer := range []string{"", "not-a-jwt"} {
		rec, _ := f.do(t, http.MethodGet, "/api/water-reminder/status", bearer, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("bearer %q: status = %d", bearer, rec.Code)
		}
	}

	wrong, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"userId": "u1"}).SignedString([]byte("other"))
	if rec, _ := f.do(t, http.MethodGet, "/api/water-reminder/status", wrong, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("foreign signature: status = %d", rec.Code)
	}
}

func TestReminderLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	tok := token(t, "u1")

	rec, body := f.do(t, http.MethodGet, "/api/water-reminder/status", tok, nil)
	if rec.Code != http.StatusOK || body["isActive"] != false || body["message"] == nil {
		t.Fatalf("empty status = %d %v", rec.Code, body)
	}

	for _, bad := range []any{0, 1441, "ten"} {
		rec, _ := f.do(t, http.MethodPost, "/api/water-reminder/set", tok, map[string]any{"intervalMinutes": bad})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("set %v: status = %d", bad, rec.Code)
		}
	}

	rec, body = f.do(t, http.MethodPost, "/api/water-reminder/set", tok, map[string]any{"intervalMinutes": 45})
	if rec.Code != http.StatusOK {
		t.Fatalf("set: %d %s", rec.Code, rec.Body)
	}
	rem, _ := body["reminder"].(map[string]any)
	if rem["intervalMinutes"] != float64(45) || rem["isActive"] != true {
		t.Fatalf("reminder = %v", rem)
	}

	rec, body = f.do(t, http.MethodGet, "/api/water-reminder/status", tok, nil)
	if rec.Code != http.StatusOK || body["minutesUntilNext"] != float64(45) {
		t.Fatalf("status = %d %v", rec.Code, body)
	}

	rec, body = f.do(t, http.MethodPatch, "/api/water-reminder/toggle", tok, nil)
	if rec.Code != http.StatusOK || body["isActive"] != false || body["message"] != "Water reminder paused" {
		t.Fatalf("toggle = %d %v", rec.Code, body)
	}
	if f.sched.ArmedCount() != 0 {
		t.Fatalf("paused reminder still armed")
	}

	rec, body = f.do(t, http.MethodPost, "/api/water-reminder/drink", tok, nil)
	if rec.Code != http.StatusOK || body["nextNotificationTime"] == nil {
		t.Fatalf("drink = %d %v", rec.Code, body)
	}

	if rec, _ := f.do(t, http.MethodDelete, "/api/water-reminder/remove", tok, nil); rec.Code != http.StatusOK {
		t.Fatalf("remove = %d", rec.Code)
	}
	if rec, _ := f.do(t, http.MethodDelete, "/api/water-reminder/remove", tok, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second remove = %d", rec.Code)
	}
	if rec, _ := f.do(t, http.MethodPatch, "/api/water-reminder/toggle", tok, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("toggle missing = %d", rec.Code)
	}
}

func TestDrinkWithoutReminder(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	rec, body := f.do(t, http.MethodPost, "/api/water-reminder/drink", token(t, "u2"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("drink = %d", rec.Code)
	}
	if _, ok := body["nextNotificationTime"]; ok {
		t.Fatalf("unexpected next time: %v", body)
	}
}

func TestNumericUserIDClaim(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"userId": 42}).SignedString([]byte(testSecret))
	if rec, _ := f.do(t, http.MethodPost, "/api/water-reminder/set", tok, map[string]any{"intervalMinutes": 5}); rec.Code != http.StatusOK {
		t.Fatalf("set = %d", rec.Code)
	}
	if _, err := f.store.FindReminder(context.Background(), "42"); err != nil {
		t.Fatalf("reminder for numeric id: %v", err)
	}
}

func TestContactAndPushSubscription(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	tok := token(t, "u3")

	rec, _ := f.do(t, http.MethodPut, "/api/me/contact", tok, map[string]any{"email": "not-an-email"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad email = %d", rec.Code)
	}
	rec, _ = f.do(t, http.MethodPut, "/api/me/contact", tok, map[string]any{"username": "Rin", "email": "rin@example.com", "phone": "+15550100"})
	if rec.Code != http.StatusOK {
		t.Fatalf("contact = %d %s", rec.Code, rec.Body)
	}

	if rec, _ := f.do(t, http.MethodPost, "/api/push/subscribe", tok, map[string]any{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("subscribe without token = %d", rec.Code)
	}
	rec, _ = f.do(t, http.MethodPost, "/api/push/subscribe", tok, map[string]any{"token": "dev-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("subscribe = %d %s", rec.Code, rec.Body)
	}
	u, err := f.store.GetUser(context.Background(), "u3")
	if err != nil || u.PushEndpoint != "arn:aws:sns:endpoint/dev-1" || u.Email != "rin@example.com" {
		t.Fatalf("user = %+v, %v", u, err)
	}

	if rec, _ := f.do(t, http.MethodPost, "/api/push/unsubscribe", tok, nil); rec.Code != http.StatusOK {
		t.Fatalf("unsubscribe = %d", rec.Code)
	}
	u, _ = f.store.GetUser(context.Background(), "u3")
	if u.PushEndpoint != "" || len(f.devices.deleted) != 1 {
		t.Fatalf("endpoint not cleared: %+v %v", u, f.devices.deleted)
	}
}

func TestSubscribeCreatesUnknownUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	rec, _ := f.do(t, http.MethodPost, "/api/push/subscribe", token(t, "fresh"), map[string]any{"token": "dev-9"})
	if rec.Code != http.StatusOK {
		t.Fatalf("subscribe = %d %s", rec.Code, rec.Body)
	}
	if u, err := f.store.GetUser(context.Background(), "fresh"); err != nil || u.PushEndpoint == "" {
		t.Fatalf("user = %+v, %v", u, err)
	}
}

func TestAdminGuard(t *testing.T) {
	t.Parallel()
	disabled := newFixture(t, "")
	req := httptest.NewRequest(http.MethodGet, "/api/admin/channels", nil)
	req.Header.Set("X-Admin-Token", "anything")
	rec := httptest.NewRecorder()
	disabled.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("disabled admin = %d", rec.Code)
	}

	f := newFixture(t, testAdmin)
	req = httptest.NewRequest(http.MethodGet, "/api/admin/channels", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong admin token = %d", rec.Code)
	}
}

func TestAdminChannels(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testAdmin)

	send := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		_ = json.NewEncoder(&buf).Encode(body)
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("X-Admin-Token", testAdmin)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(http.MethodPut, "/api/admin/channels", map[string]bool{"pager": true}); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown channel = %d", rec.Code)
	}
	if rec := send(http.MethodPut, "/api/admin/channels", map[string]bool{"email": true, "socket": false}); rec.Code != http.StatusOK {
		t.Fatalf("update = %d %s", rec.Code, rec.Body)
	}
	if fl := f.notif.Flags(); !fl.Email || fl.Socket {
		t.Fatalf("flags = %+v", fl)
	}

	rec := send(http.MethodPost, "/api/admin/channels/test", map[string]string{"userId": "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("test = %d", rec.Code)
	}
	var rep notifier.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !rep.Event.Test || rep.Results[channel.Socket] || rep.Errors[channel.Socket] != "disabled" {
		t.Fatalf("report = %+v", rep)
	}
	if rec := send(http.MethodPost, "/api/admin/channels/test", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("test without user = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	rec, body := f.do(t, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", rec.Code, body)
	}
}

func TestParseUserTokenRejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"userId": "u1"}).SignedString([]byte(testSecret))
	if _, err := ParseUserToken([]byte(testSecret), tok); err == nil {
		t.Fatalf("HS512 token accepted")
	}
	noExpiry, _ := IssueUserToken([]byte(testSecret), "u1", 0)
	if uid, err := ParseUserToken([]byte(testSecret), noExpiry); err != nil || uid != "u1" {
		t.Fatalf("non-expiring token = %q, %v", uid, err)
	}
}

func TestServerStartStop(t *testing.T) {
	t.Parallel()
	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0", ReadTimeout: time.Second, WriteTimeout: time.Second}, newFixture(t, "").router, logx.Nop())
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://" + srv.Addr() + "/api/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if srv.Addr() != "" {
		t.Fatalf("Addr after Stop = %q", srv.Addr())
	}
}
