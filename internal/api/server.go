package api

import (
	"log/slog"
	"net/http"
	"time"

	"trackback/pkg/version"
)

// Handlers groups the endpoint handlers. Nil handlers leave their routes out.
type Handlers struct {
	Telemetry *TelemetryHandler
	Navigator *NavigatorHandler
	Flights   *FlightHandler
	Config    *ConfigHandler
	Stream    *StreamHandler
}

// NewServer creates and configures the HTTP server.
// shutdown is called from POST /api/shutdown.
func NewServer(addr string, h Handlers, shutdown func()) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      NewMux(h, shutdown),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewMux registers all routes.
func NewMux(h Handlers, shutdown func()) *http.ServeMux {
	mux := http.NewServeMux()

	// 1. Health and version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Telemetry
	if h.Telemetry != nil {
		mux.HandleFunc("GET /api/telemetry", h.Telemetry.handleTelemetry)
	}

	// 3. Path and return control
	if h.Navigator != nil {
		mux.HandleFunc("GET /api/path", h.Navigator.HandlePath)
		mux.HandleFunc("GET /api/path/stats", h.Navigator.HandleStats)
		mux.HandleFunc("GET /api/navigator", h.Navigator.HandleSnapshot)
		mux.HandleFunc("POST /api/return", h.Navigator.HandleReturn)
		mux.HandleFunc("POST /api/reset", h.Navigator.HandleReset)
	}

	// 4. Flight log
	if h.Flights != nil {
		mux.HandleFunc("GET /api/flights", h.Flights.HandleList)
		mux.HandleFunc("GET /api/flights/{id}", h.Flights.HandleGet)
		mux.HandleFunc("GET /api/flights/{id}/events", h.Flights.HandleEvents)
		mux.HandleFunc("GET /api/flights/{id}/path/{kind}", h.Flights.HandlePath)
	}

	// 5. Config
	if h.Config != nil {
		mux.HandleFunc("/api/config", h.Config.HandleConfig)
	}

	// 6. Logs
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	mux.HandleFunc("GET /api/log/events", handleEventLog)

	// 7. Live stream
	if h.Stream != nil {
		mux.HandleFunc("GET /api/stream", h.Stream.HandleStream)
	}

	// 8. Shutdown
	if shutdown != nil {
		mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
			slog.Info("Graceful shutdown initiated via API")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("Shutting down...")); err != nil {
				slog.Error("Failed to write shutdown response", "error", err)
			}
			// Let the response flush first.
			go func() {
				time.Sleep(100 * time.Millisecond)
				shutdown()
			}()
		})
	}

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}
