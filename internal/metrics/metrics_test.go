package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestCounters(t *testing.T) {
	m := New()
	m.TickCompleted(150 * time.Millisecond)
	m.TickCompleted(50 * time.Millisecond)
	m.AlertEmitted("spike")
	m.AlertEmitted("spike")
	m.AlertEmitted("deployment")
	m.RPCFailed()
	m.NotifyFailed("slack")
	m.PersistFailed()
	m.SetAccountValue("treasury", "addr", 12.5)

	if got := testutil.ToFloat64(m.ticks); got != 2 {
		t.Fatalf("ticks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.alerts.WithLabelValues("spike")); got != 2 {
		t.Fatalf("spike alerts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.notifyFailures.WithLabelValues("slack")); got != 1 {
		t.Fatalf("slack failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.accountValue.WithLabelValues("treasury", "addr")); got != 12.5 {
		t.Fatalf("account value = %v, want 12.5", got)
	}
	if got := testutil.CollectAndCount(m.tickDuration); got != 1 {
		t.Fatalf("histogram series = %d, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.TickCompleted(time.Second)
	m.AlertEmitted("spike")
	m.RPCFailed()
	m.NotifyFailed("slack")
	m.PersistFailed()
	m.SetAccountValue("a", "b", 1)
}

func TestMetricsEndpoint(t *testing.T) {
	m := New()
	m.AlertEmitted("low_balance")
	mux := NewMux(m, Checker{})

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `vaultwatcher_alerts_total{kind="low_balance"} 1`) {
		t.Fatalf("alert counter missing from exposition:\n%s", w.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		checker  Checker
		wantCode int
		wantDB   string
		wantRPC  string
	}{
		{
			name: "all_ok",
			checker: Checker{
				DBPing:  func(ctx context.Context) error { return nil },
				RPCPing: func(ctx context.Context) error { return nil },
			},
			wantCode: http.StatusOK,
			wantDB:   "ok",
			wantRPC:  "ok",
		},
		{
			name: "db_fail",
			checker: Checker{
				DBPing:  func(ctx context.Context) error { return errors.New("down") },
				RPCPing: func(ctx context.Context) error { return nil },
			},
			wantCode: http.StatusServiceUnavailable,
			wantDB:   "fail",
			wantRPC:  "ok",
		},
		{
			name:     "no_checkers",
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := NewMux(New(), tt.checker)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			var resp map[string]string
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp["status"] != "ok" {
				t.Errorf("status = %q, want ok", resp["status"])
			}
			if tt.wantDB != "" && resp["db"] != tt.wantDB {
				t.Errorf("db = %q, want %q", resp["db"], tt.wantDB)
			}
			if tt.wantRPC != "" && resp["rpc"] != tt.wantRPC {
				t.Errorf("rpc = %q, want %q", resp["rpc"], tt.wantRPC)
			}
		})
	}
}

func TestServeReportsBindError(t *testing.T) {
	srv, err := Serve("127.0.0.1:0", New(), Checker{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	defer srv.Close()

	resp, err := http.Get("http://" + srv.Addr + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	// 端口已被占用时必须立即返回错误
	if _, err := Serve(srv.Addr, New(), Checker{}, zerolog.Nop()); err == nil {
		t.Fatal("expected bind error on an occupied port")
	}
}
