package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Checker lists the dependency checks reported by /healthz.
type Checker struct {
	DBPing  func(ctx context.Context) error
	RPCPing func(ctx context.Context) error
}

// NewMux builds the /metrics and /healthz routes.
func NewMux(m *Metrics, checker Checker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK

		check := func(key string, ping func(context.Context) error) {
			if ping == nil {
				return
			}
			if err := ping(ctx); err != nil {
				status[key] = "fail"
				code = http.StatusServiceUnavailable
				return
			}
			status[key] = "ok"
		}
		check("db", checker.DBPing)
		check("rpc", checker.RPCPing)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
	return mux
}

// Serve binds addr and serves in the background. Bind errors are returned;
// errors after that are logged. srv.Addr holds the bound address.
func Serve(addr string, m *Metrics, checker Checker, logger zerolog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           NewMux(m, checker),
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("listen", srv.Addr).Msg("metrics endpoint stopped")
		}
	}()
	return srv, nil
}
