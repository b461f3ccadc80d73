// Package httpapi is the local surface the dashboard UI talks to. It
// renders cached store state synchronously and funnels every mutation
// through the stores' optimistic-write paths.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/praxishq/dashboard-core/internal/appointment"
	"github.com/praxishq/dashboard-core/internal/availability"
	"github.com/praxishq/dashboard-core/internal/backend"
	"github.com/praxishq/dashboard-core/internal/bridge"
	"github.com/praxishq/dashboard-core/internal/chat"
	"github.com/praxishq/dashboard-core/internal/notify"
	"github.com/praxishq/dashboard-core/internal/observability/metrics"
	"github.com/praxishq/dashboard-core/internal/realtime"
	"github.com/praxishq/dashboard-core/internal/schedule"
	"github.com/praxishq/dashboard-core/internal/timeslot"
	"github.com/praxishq/dashboard-core/pkg/logging"
)

// Realtime is the slice of the connection manager the API uses.
type Realtime interface {
	Send(intent realtime.Intent)
	State() realtime.State
}

// Roster lists conversations from the authoritative backend.
type Roster interface {
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
}

// Bridge is the WhatsApp-bridge surface exposed to the UI.
type Bridge interface {
	Status(ctx context.Context) (bridge.Status, error)
	QR(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
}

// Handler serves the dashboard API on top of the local stores.
type Handler struct {
	schedules    *schedule.Store
	appointments *appointment.Store
	chats        *chat.Store
	archive      *chat.Archive
	roster       Roster
	conn         Realtime
	bridge       Bridge
	alerts       *notify.Hub
	metrics      *metrics.SyncMetrics
	logger       *logging.Logger
	ackTimeout   time.Duration
}

// NewHandler wires the API to its collaborators.
func NewHandler(schedules *schedule.Store, appointments *appointment.Store, chats *chat.Store, archive *chat.Archive, roster Roster, conn Realtime, bridgeClient Bridge, alerts *notify.Hub, m *metrics.SyncMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		schedules:    schedules,
		appointments: appointments,
		chats:        chats,
		archive:      archive,
		roster:       roster,
		conn:         conn,
		bridge:       bridgeClient,
		alerts:       alerts,
		metrics:      m,
		logger:       logger,
		ackTimeout:   10 * time.Second,
	}
}

// WithAckTimeout bounds how long a sent message may stay pending before
// it is marked failed.
func (h *Handler) WithAckTimeout(d time.Duration) *Handler {
	if d > 0 {
		h.ackTimeout = d
	}
	return h
}

// ---- schedule ----

type windowJSON struct {
	StartMinute int `json:"startMinute"`
	EndMinute   int `json:"endMinute"`
}

type nonWorkDateJSON struct {
	Date      string `json:"date"`
	Reason    string `json:"reason,omitempty"`
	Recurrent bool   `json:"recurrent"`
}

type scheduleJSON struct {
	Weekly       map[string]windowJSON `json:"weekly"`
	NonWorkDates []nonWorkDateJSON     `json:"nonWorkDates"`
}

var weekdayByName = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

func encodeScheduleJSON(def schedule.Definition) scheduleJSON {
	out := scheduleJSON{Weekly: map[string]windowJSON{}, NonWorkDates: []nonWorkDateJSON{}}
	for day, win := range def.Weekly {
		out.Weekly[strings.ToLower(day.String())] = windowJSON{StartMinute: win.Start, EndMinute: win.End}
	}
	for _, n := range def.NonWorkDates {
		out.NonWorkDates = append(out.NonWorkDates, nonWorkDateJSON{
			Date:      n.Date.Format("2006-01-02"),
			Reason:    n.Reason,
			Recurrent: n.Recurrent,
		})
	}
	return out
}

func decodeScheduleJSON(in scheduleJSON) (schedule.Definition, error) {
	def := schedule.Definition{Weekly: schedule.Weekly{}}
	for name, win := range in.Weekly {
		day, ok := weekdayByName[strings.ToLower(name)]
		if !ok {
			return schedule.Definition{}, errors.New("unknown weekday " + name)
		}
		r, err := timeslot.New(win.StartMinute, win.EndMinute)
		if err != nil {
			return schedule.Definition{}, err
		}
		def.Weekly[day] = r
	}
	for _, n := range in.NonWorkDates {
		date, err := time.Parse("2006-01-02", n.Date)
		if err != nil {
			return schedule.Definition{}, err
		}
		def.NonWorkDates = append(def.NonWorkDates, schedule.NonWorkDate{
			Date:      date,
			Reason:    n.Reason,
			Recurrent: n.Recurrent,
		})
	}
	return def, nil
}

// GetSchedule returns the cached schedule, triggering a refetch on miss.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	def, status := h.schedules.Get(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"schedule":    encodeScheduleJSON(def),
		"cacheStatus": status.String(),
	})
}

// PutSchedule optimistically replaces the schedule.
func (h *Handler) PutSchedule(w http.ResponseWriter, r *http.Request) {
	var in scheduleJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	def, err := decodeScheduleJSON(in)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	start := time.Now()
	if err := h.schedules.Update(r.Context(), def); err != nil {
		h.writeCommandError(w, err)
		return
	}
	h.metrics.ObserveCommandLatency("update_schedule", time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, map[string]any{"schedule": encodeScheduleJSON(def)})
}

// ---- availability ----

// GetAvailability lists the open windows for one date.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	date, err := appointment.ParseDateKey(r.URL.Query().Get("date"))
	if err != nil {
		jsonError(w, "date parameter required as YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	def, ok := h.schedules.Current()
	if !ok {
		h.schedules.Get(r.Context())
		jsonError(w, "schedule not loaded yet", http.StatusServiceUnavailable)
		return
	}
	appts, status := h.appointments.On(r.Context(), date)
	windows := availability.OpenWindows(def, appointment.Slots(appts, ""), date)
	writeJSON(w, http.StatusOK, map[string]any{
		"date":        appointment.DateKey(date),
		"windows":     windows,
		"cacheStatus": status.String(),
	})
}

type checkRequest struct {
	Date        string `json:"date"`
	StartMinute int    `json:"startMinute"`
	EndMinute   int    `json:"endMinute"`
	ExcludeID   string `json:"excludeId,omitempty"`
}

// CheckAvailability answers whether a candidate slot is bookable,
// without any network round trip.
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	date, err := appointment.ParseDateKey(req.Date)
	if err != nil {
		jsonError(w, "date required as YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	slot, err := timeslot.New(req.StartMinute, req.EndMinute)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	rejection := h.appointments.Validate(appointment.Appointment{Date: date, Slot: slot}, req.ExcludeID)
	if rejection != nil {
		writeJSON(w, http.StatusOK, map[string]any{"bookable": false, "rejection": rejection})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookable": true})
}

// ---- appointments ----

// ListAppointments renders cached appointments for a date or date range.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	startKey := q.Get("startDate")
	endKey := q.Get("endDate")
	if startKey == "" {
		startKey = q.Get("date")
		endKey = startKey
	}
	start, err := appointment.ParseDateKey(startKey)
	if err != nil {
		jsonError(w, "date or startDate/endDate required as YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	end, err := appointment.ParseDateKey(endKey)
	if err != nil || end.Before(start) || end.Sub(start) > 62*24*time.Hour {
		jsonError(w, "invalid date range", http.StatusBadRequest)
		return
	}

	if q.Get("prime") == "true" {
		if err := h.appointments.PrimeWindow(r.Context(), start, end); err != nil {
			h.writeCommandError(w, err)
			return
		}
	}

	out := make([]appointment.Appointment, 0)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		appts, _ := h.appointments.On(r.Context(), d)
		out = append(out, appts...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

type appointmentRequest struct {
	ClientID    string `json:"clientId"`
	ClientName  string `json:"clientName,omitempty"`
	Date        string `json:"date"`
	StartMinute int    `json:"startMinute"`
	EndMinute   int    `json:"endMinute"`
	Notes       string `json:"notes,omitempty"`
}

func (req appointmentRequest) toModel() (appointment.Appointment, error) {
	date, err := appointment.ParseDateKey(req.Date)
	if err != nil {
		return appointment.Appointment{}, errors.New("date required as YYYY-MM-DD")
	}
	slot, err := timeslot.New(req.StartMinute, req.EndMinute)
	if err != nil {
		return appointment.Appointment{}, err
	}
	return appointment.Appointment{
		ClientID:   req.ClientID,
		ClientName: req.ClientName,
		Date:       date,
		Slot:       slot,
		Notes:      req.Notes,
	}, nil
}

// CreateAppointment books a slot: local validation first, then the
// optimistic write settles against the backend.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	appt, err := req.toModel()
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	start := time.Now()
	created, err := h.appointments.Create(r.Context(), appt)
	if err != nil {
		h.writeCommandError(w, err)
		return
	}
	h.metrics.ObserveCommandLatency("create_appointment", time.Since(start).Seconds())
	writeJSON(w, http.StatusCreated, created)
}

// UpdateAppointment reschedules or edits an appointment.
func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appointmentID")
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	appt, err := req.toModel()
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	appt.ID = id
	start := time.Now()
	updated, err := h.appointments.Update(r.Context(), appt)
	if err != nil {
		h.writeCommandError(w, err)
		return
	}
	h.metrics.ObserveCommandLatency("update_appointment", time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, updated)
}

// DeleteAppointment cancels an appointment.
func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appointmentID")
	start := time.Now()
	if err := h.appointments.Delete(r.Context(), id); err != nil {
		h.writeCommandError(w, err)
		return
	}
	h.metrics.ObserveCommandLatency("delete_appointment", time.Since(start).Seconds())
	w.WriteHeader(http.StatusNoContent)
}

// ---- chats ----

// ListChats renders the conversation roster, fetching it from the
// backend when the cache is empty or a refresh is requested.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	convs := h.chats.List()
	if len(convs) == 0 || r.URL.Query().Get("refresh") == "true" {
		fetched, err := h.roster.ListConversations(r.Context())
		if err != nil {
			h.writeCommandError(w, err)
			return
		}
		h.chats.Prime(fetched)
		convs = h.chats.List()
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

// GetChat renders one conversation from cache, refetching when stale.
func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	conv, status := h.chats.Get(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"cacheStatus":  status.String(),
	})
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage applies an optimistic business message and hands the
// intent to the realtime channel; it queues while the channel is not
// open.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		jsonError(w, "content is required", http.StatusBadRequest)
		return
	}
	msg := chat.Message{
		ID:        uuid.NewString(),
		Content:   req.Content,
		Role:      chat.RoleBusiness,
		Timestamp: time.Now().UTC(),
	}
	h.chats.AppendLocal(id, msg)
	h.conn.Send(realtime.NewBusinessMessageIntent(id, msg))
	go h.settleSend(id, msg.ID)
	if h.archive != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.archive.Append(ctx, id, msg); err != nil {
				h.logger.Warn("archive append failed", "conversation_id", id, "error", err)
			}
		}()
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"messageId":  msg.ID,
		"status":     string(chat.StatusPending),
		"connection": string(h.conn.State()),
	})
}

// settleSend enforces the command timeout: a message the server has not
// acknowledged within the window is marked failed so the operator can
// re-issue it.
func (h *Handler) settleSend(conversationID, messageID string) {
	timer := time.NewTimer(h.ackTimeout)
	defer timer.Stop()
	<-timer.C
	if h.chats.SettleTimeout(conversationID, messageID) {
		h.logger.Warn("message not acknowledged within the command window, marked failed",
			"conversation_id", conversationID, "message_id", messageID)
	}
}

// MarkChatRead clears the unread counter for a conversation.
func (h *Handler) MarkChatRead(w http.ResponseWriter, r *http.Request) {
	h.chats.ResetUnread(chi.URLParam(r, "conversationID"))
	w.WriteHeader(http.StatusNoContent)
}

type assistantRequest struct {
	Enabled bool   `json:"enabled"`
	UserID  string `json:"userId,omitempty"`
}

// SetChatAssistant toggles the assistant for one conversation.
func (h *Handler) SetChatAssistant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	var req assistantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.chats.SetAssistant(id, req.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"enabled": req.Enabled})
}

// SetAllAssistants applies the bulk toggle optimistically and asks the
// server to confirm over the realtime channel.
func (h *Handler) SetAllAssistants(w http.ResponseWriter, r *http.Request) {
	var req assistantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.chats.SetAllAssistants(req.Enabled)
	h.conn.Send(realtime.AssistantsIntent(req.UserID, req.Enabled))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"enabled":    req.Enabled,
		"connection": string(h.conn.State()),
	})
}

// GetChatHistory reads archived history for a conversation.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	limit := int64(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	msgs, err := h.archive.History(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("archive history failed", "conversation_id", id, "error", err)
		jsonError(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// ---- connection, bridge, alerts ----

// GetConnection reports realtime channel state.
func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"state": string(h.conn.State())})
}

// GetBridgeStatus proxies the pairing status.
func (h *Handler) GetBridgeStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.bridge.Status(r.Context())
	if err != nil {
		jsonError(w, "bridge unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetBridgeQR proxies the pairing QR blob.
func (h *Handler) GetBridgeQR(w http.ResponseWriter, r *http.Request) {
	qr, err := h.bridge.QR(r.Context())
	if err != nil {
		jsonError(w, "bridge unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"qr": qr})
}

// BridgeLogout unpairs the WhatsApp session.
func (h *Handler) BridgeLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.bridge.Logout(r.Context()); err != nil {
		jsonError(w, "bridge unavailable", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAlerts returns recent side-channel alerts.
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": h.alerts.Recent(limit)})
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"connection": string(h.conn.State()),
	})
}

// ---- helpers ----

// writeCommandError maps the error taxonomy onto status codes: local
// rejections are 422, conflicts 409, auth 401, transport 502.
func (h *Handler) writeCommandError(w http.ResponseWriter, err error) {
	var rejection *availability.Rejection
	if errors.As(err, &rejection) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"rejection": rejection})
		return
	}
	if errors.Is(err, timeslot.ErrInvalidFormat) {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var conflict *backend.ConflictError
	if errors.As(err, &conflict) {
		jsonError(w, conflict.Error(), http.StatusConflict)
		return
	}
	var auth *backend.AuthError
	if errors.As(err, &auth) {
		jsonError(w, "session expired", http.StatusUnauthorized)
		return
	}
	var transport *backend.TransportError
	if errors.As(err, &transport) {
		jsonError(w, "backend unreachable", http.StatusBadGateway)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		jsonError(w, "request canceled", 499)
		return
	}
	h.logger.Error("command failed", "error", err)
	jsonError(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
