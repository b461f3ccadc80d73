package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/praxishq/dashboard-core/pkg/logging"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	Handler        *Handler
	Logger         *logging.Logger
	SessionSecret  string
	MetricsHandler http.Handler
}

// NewRouter creates the chi router with all dashboard routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(RequestLogger(cfg.Logger))
	}

	h := cfg.Handler

	r.Group(func(public chi.Router) {
		public.Get("/health", h.Health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(SessionJWT(cfg.SessionSecret))

		api.Get("/schedule", h.GetSchedule)
		api.Put("/schedule", h.PutSchedule)

		api.Get("/availability", h.GetAvailability)
		api.Post("/availability/check", h.CheckAvailability)

		api.Route("/appointments", func(appts chi.Router) {
			appts.Get("/", h.ListAppointments)
			appts.Post("/", h.CreateAppointment)
			appts.Patch("/{appointmentID}", h.UpdateAppointment)
			appts.Delete("/{appointmentID}", h.DeleteAppointment)
		})

		api.Route("/chats", func(chats chi.Router) {
			chats.Get("/", h.ListChats)
			chats.Get("/{conversationID}", h.GetChat)
			chats.Get("/{conversationID}/history", h.GetChatHistory)
			chats.Post("/{conversationID}/messages", h.SendMessage)
			chats.Post("/{conversationID}/read", h.MarkChatRead)
			chats.Post("/{conversationID}/assistant", h.SetChatAssistant)
		})

		api.Post("/assistants", h.SetAllAssistants)

		api.Get("/connection", h.GetConnection)

		api.Route("/bridge", func(br chi.Router) {
			br.Get("/status", h.GetBridgeStatus)
			br.Get("/qr", h.GetBridgeQR)
			br.Post("/logout", h.BridgeLogout)
		})

		api.Get("/alerts", h.GetAlerts)
	})

	return r
}
