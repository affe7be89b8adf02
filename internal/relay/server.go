package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Browser peers join from the web client on another origin.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs returns the websocket endpoint for hub.
func ServeWs(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		client := newClient(hub, conn)
		if !hub.registerClient(client) {
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
}

// healthHandler reports liveness and the number of stored rooms.
func healthHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		n, err := store.Count()
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(healthResponse{Status: "unavailable"})
			return
		}
		json.NewEncoder(w).Encode(healthResponse{Status: "ok", Rooms: n})
	}
}

// NewMux registers /ws and /health.
func NewMux(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(hub.store))
	mux.HandleFunc("/ws", ServeWs(hub))
	return mux
}

// ListenAndServe runs hub and an HTTP server on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr string, hub *Hub, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stopHub()
	return srv.Shutdown(shutdownCtx)
}
