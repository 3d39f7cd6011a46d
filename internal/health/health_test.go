package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func get(t *testing.T, h http.Handler, path string) (int, result) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func mux(h *Handler) *http.ServeMux {
	m := http.NewServeMux()
	h.Register(m)
	return m
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	code, body := get(t, mux(New(PingCheck("store", fakePinger{errors.New("down")}))), "/healthz")
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz = %d %q", code, body.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		checkers []Checker
		wantCode int
		wantFail string
	}{
		{"no checkers", nil, http.StatusOK, ""},
		{
			"all pass",
			[]Checker{PingCheck("store", fakePinger{}), CountCheck("stickers", func() int { return 3 })},
			http.StatusOK, "",
		},
		{
			"store down",
			[]Checker{PingCheck("store", fakePinger{errors.New("connection refused")}), CountCheck("stickers", func() int { return 3 })},
			http.StatusServiceUnavailable, "store",
		},
		{
			"no stickers",
			[]Checker{PingCheck("store", fakePinger{}), CountCheck("stickers", func() int { return 0 })},
			http.StatusServiceUnavailable, "stickers",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, body := get(t, mux(New(tc.checkers...)), "/readyz")
			if code != tc.wantCode {
				t.Errorf("status = %d, want %d", code, tc.wantCode)
			}
			if len(body.Checks) != len(tc.checkers) {
				t.Errorf("checks = %v", body.Checks)
			}
			for name, res := range body.Checks {
				failed := strings.HasPrefix(res, "fail: ")
				if failed != (name == tc.wantFail) {
					t.Errorf("check %s = %q", name, res)
				}
			}
		})
	}
}

func TestRun_Parallel(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int32
	slow := func(context.Context) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		running.Add(-1)
		return nil
	}
	h := New(Checker{"a", slow}, Checker{"b", slow}, Checker{"c", slow})

	if _, ok := h.Run(context.Background()); !ok {
		t.Fatal("Run reported failure")
	}
	if peak.Load() < 2 {
		t.Errorf("peak concurrency = %d, want checks to overlap", peak.Load())
	}
}

func TestRun_CheckDeadline(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}})
	if checks, ok := h.Run(context.Background()); !ok {
		t.Errorf("checks = %v", checks)
	}
}
