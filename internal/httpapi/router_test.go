package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/praxishq/dashboard-core/internal/appointment"
	"github.com/praxishq/dashboard-core/internal/bridge"
	"github.com/praxishq/dashboard-core/internal/chat"
	"github.com/praxishq/dashboard-core/internal/notify"
	"github.com/praxishq/dashboard-core/internal/realtime"
	"github.com/praxishq/dashboard-core/internal/schedule"
	"github.com/praxishq/dashboard-core/internal/timeslot"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fakeWorld struct {
	mu           sync.Mutex
	def          schedule.Definition
	appointments map[string][]appointment.Appointment
	convs        []chat.Conversation
}

func (f *fakeWorld) GetSchedule(ctx context.Context) (schedule.Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.def.Clone(), nil
}

func (f *fakeWorld) PutSchedule(ctx context.Context, def schedule.Definition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.def = def.Clone()
	return nil
}

func (f *fakeWorld) ListAppointments(ctx context.Context, start, end time.Time) ([]appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []appointment.Appointment
	for _, appts := range f.appointments {
		out = append(out, appts...)
	}
	return out, nil
}

func (f *fakeWorld) CreateAppointment(ctx context.Context, appt appointment.Appointment) (appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := appointment.DateKey(appt.Date)
	f.appointments[key] = append(f.appointments[key], appt)
	return appt, nil
}

func (f *fakeWorld) UpdateAppointment(ctx context.Context, appt appointment.Appointment) (appointment.Appointment, error) {
	return appt, nil
}

func (f *fakeWorld) DeleteAppointment(ctx context.Context, id string) error { return nil }

func (f *fakeWorld) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Conversation(nil), f.convs...), nil
}

func (f *fakeWorld) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.convs {
		if c.ID == id {
			return c.Clone(), nil
		}
	}
	return chat.Conversation{ID: id}, nil
}

type fakeRealtime struct {
	mu      sync.Mutex
	intents []realtime.Intent
	state   realtime.State
}

func (f *fakeRealtime) Send(intent realtime.Intent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, intent)
}

func (f *fakeRealtime) State() realtime.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == "" {
		return realtime.StateOpen
	}
	return f.state
}

type fakeBridge struct {
	status bridge.Status
}

func (f *fakeBridge) Status(ctx context.Context) (bridge.Status, error) { return f.status, nil }
func (f *fakeBridge) QR(ctx context.Context) (string, error)           { return "qr-blob", nil }
func (f *fakeBridge) Logout(ctx context.Context) error                 { return nil }

type env struct {
	server    *httptest.Server
	world     *fakeWorld
	realtime  *fakeRealtime
	handler   *Handler
	schedules *schedule.Store
	appts     *appointment.Store
	chats     *chat.Store
	hub       *notify.Hub
}

func newEnv(t *testing.T) *env {
	t.Helper()
	world := &fakeWorld{
		def:          schedule.Definition{Weekly: schedule.Weekly{time.Monday: timeslot.Range{Start: 540, End: 1080}}},
		appointments: map[string][]appointment.Appointment{},
	}
	schedules := schedule.NewStore(world, time.Second, 1, time.Millisecond, nil)
	appts := appointment.NewStore(world, schedules, time.Second, 1, time.Millisecond, nil)
	chats := chat.NewStore(world, 1, time.Millisecond, nil)
	rt := &fakeRealtime{}
	hub := notify.NewHub(10, nil)

	h := NewHandler(schedules, appts, chats, nil, world, rt, &fakeBridge{status: bridge.Status{InstanceStatus: bridge.StatusReady}}, hub, nil, nil)
	router := NewRouter(RouterConfig{Handler: h, SessionSecret: testSecret})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &env{server: server, world: world, realtime: rt, handler: h, schedules: schedules, appts: appts, chats: chats, hub: hub}
}

func signToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "operator",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func (e *env) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestAPIRequiresToken(t *testing.T) {
	e := newEnv(t)

	resp, err := http.Get(e.server.URL + "/api/schedule")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, e.server.URL+"/api/schedule", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "wrong-secret"))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestHealthIsPublic(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Get(e.server.URL + "/health")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	require.Equal(t, "ok", body["status"])
}

func TestScheduleRoundTrip(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/api/schedule", nil)
	body := decodeBody(t, resp)
	require.Equal(t, "miss", body["cacheStatus"], "first read renders empty and schedules a fetch")

	e.schedules.WaitForFetches()
	resp = e.do(t, http.MethodGet, "/api/schedule", nil)
	body = decodeBody(t, resp)
	require.Equal(t, "hit", body["cacheStatus"])

	put := scheduleJSON{
		Weekly: map[string]windowJSON{
			"monday":  {StartMinute: 540, EndMinute: 1080},
			"tuesday": {StartMinute: 600, EndMinute: 900},
		},
	}
	resp = e.do(t, http.MethodPut, "/api/schedule", put)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	def, ok := e.schedules.Current()
	require.True(t, ok)
	require.Contains(t, def.Weekly, time.Tuesday)
}

func TestAvailabilityAndBookingFlow(t *testing.T) {
	e := newEnv(t)
	e.schedules.Get(context.Background())
	e.schedules.WaitForFetches()

	// 2024-07-01 is a Monday.
	resp := e.do(t, http.MethodPost, "/api/appointments", appointmentRequest{
		ClientID:    "client-1",
		Date:        "2024-07-01",
		StartMinute: 600,
		EndMinute:   660,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/api/availability?date=2024-07-01", nil)
	body := decodeBody(t, resp)
	windows := body["windows"].([]any)
	first := windows[0].(map[string]any)
	require.Equal(t, float64(540), first["startMinute"])
	require.Equal(t, float64(600), first["endMinute"])

	resp = e.do(t, http.MethodPost, "/api/availability/check", checkRequest{
		Date: "2024-07-01", StartMinute: 630, EndMinute: 690,
	})
	body = decodeBody(t, resp)
	require.Equal(t, false, body["bookable"])

	resp = e.do(t, http.MethodPost, "/api/availability/check", checkRequest{
		Date: "2024-07-01", StartMinute: 660, EndMinute: 720,
	})
	body = decodeBody(t, resp)
	require.Equal(t, true, body["bookable"])
}

func TestCreateRejectedLocallyReturns422(t *testing.T) {
	e := newEnv(t)
	e.schedules.Get(context.Background())
	e.schedules.WaitForFetches()

	// 2024-07-02 is a Tuesday, not in the weekly schedule.
	resp := e.do(t, http.MethodPost, "/api/appointments", appointmentRequest{
		ClientID:    "client-1",
		Date:        "2024-07-02",
		StartMinute: 600,
		EndMinute:   660,
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Contains(t, body, "rejection")
}

func TestSendMessageQueuesIntent(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/api/chats/c1/messages", sendMessageRequest{Content: "hello"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, "pending", body["status"])
	require.NotEmpty(t, body["messageId"])

	e.realtime.mu.Lock()
	defer e.realtime.mu.Unlock()
	require.Len(t, e.realtime.intents, 1)
	require.Equal(t, realtime.IntentNewBusinessMessage, e.realtime.intents[0].Event)

	conv, _ := e.chats.Get(context.Background(), "c1")
	require.Len(t, conv.Messages, 1)
	require.Equal(t, chat.StatusPending, conv.Messages[0].Status)
}

func TestUnackedMessageMarkedFailed(t *testing.T) {
	e := newEnv(t)
	e.handler.WithAckTimeout(100 * time.Millisecond)

	resp := e.do(t, http.MethodPost, "/api/chats/c1/messages", sendMessageRequest{Content: "anyone there?"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody(t, resp)
	msgID := body["messageId"].(string)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conv, _ := e.chats.Get(context.Background(), "c1")
		if len(conv.Messages) == 1 && conv.Messages[0].Status == chat.StatusFailed {
			require.Equal(t, msgID, conv.Messages[0].ID)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("message the server never acknowledged was not marked failed")
}

func TestListChatsPrimesFromRoster(t *testing.T) {
	e := newEnv(t)
	e.world.mu.Lock()
	e.world.convs = []chat.Conversation{{ID: "c1"}, {ID: "c2"}}
	e.world.mu.Unlock()

	resp := e.do(t, http.MethodGet, "/api/chats", nil)
	body := decodeBody(t, resp)
	require.Len(t, body["conversations"].([]any), 2)
}

func TestBridgeAndAlerts(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/api/bridge/status", nil)
	body := decodeBody(t, resp)
	require.Equal(t, bridge.StatusReady, body["instanceStatus"])

	resp = e.do(t, http.MethodGet, "/api/bridge/qr", nil)
	body = decodeBody(t, resp)
	require.Equal(t, "qr-blob", body["qr"])

	resp = e.do(t, http.MethodPost, "/api/bridge/logout", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	e.hub.Publish(notify.Alert{Kind: notify.KindBridgeReady})
	resp = e.do(t, http.MethodGet, "/api/alerts", nil)
	body = decodeBody(t, resp)
	require.Len(t, body["alerts"].([]any), 1)
}

func TestConnectionState(t *testing.T) {
	e := newEnv(t)
	e.realtime.mu.Lock()
	e.realtime.state = realtime.StateDegraded
	e.realtime.mu.Unlock()

	resp := e.do(t, http.MethodGet, "/api/connection", nil)
	body := decodeBody(t, resp)
	require.Equal(t, string(realtime.StateDegraded), body["state"])
}
