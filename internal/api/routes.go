package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/me", s.HandleGetCurrentUser)

		r.Route("/radio", func(r chi.Router) {
			r.Get("/power", s.HandleGetPowerState)
			r.Get("/config", s.HandleGetConfig)

			r.Group(func(r chi.Router) {
				r.Use(s.adminOnly)
				r.Put("/power", s.HandleSetPowerState)
				r.Put("/config", s.HandleConfigure)
				r.Post("/selftest", s.HandleSelfTest)
				r.Delete("/statistics", s.HandleResetStatistics)
			})

			// Packets
			r.Post("/packets", s.HandleSendPacket)
			r.Get("/packets", s.HandleReceivePacket)
			r.Get("/packets/pending", s.HandlePendingPackets)
			r.Get("/tx/{id}", s.HandleGetTxStatus)

			// Network
			r.Get("/networks", s.HandleScanNetworks)
			r.Route("/network", func(r chi.Router) {
				r.Get("/", s.HandleGetNetworkInfo)
				r.Post("/join", s.HandleJoinNetwork)
				r.Delete("/", s.HandleLeaveNetwork)
			})

			// Telemetry
			r.Get("/rssi", s.HandleMeasureRSSI)
			r.Get("/utilization", s.HandleChannelUtilization)
			r.Get("/statistics", s.HandleGetStatistics)
			r.Get("/statistics/history", s.HandleStatisticsHistory)
			r.Get("/firmware", s.HandleFirmwareVersion)
		})

		// Logs
		r.Get("/events", s.HandleListEvents)
		r.Get("/packets", s.HandleListPackets)

		// Live event stream
		r.Get("/ws", s.HandleEventStream)
	})
}
