// SPDX-License-Identifier: MPL-2.0

package entry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestTCPProbe(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()

	if err := (TCPProbe{Addr: addr}).Ready(context.Background()); err != nil {
		t.Errorf("Ready() on listening port = %v", err)
	}

	_ = ln.Close()
	if err := (TCPProbe{Addr: addr, Timeout: 100 * time.Millisecond}).Ready(context.Background()); err == nil {
		t.Error("Ready() on closed port must fail")
	}
}

func TestHTTPProbe(t *testing.T) {
	t.Parallel()
	status := http.StatusServiceUnavailable
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.WriteHeader(status)
	}))
	defer srv.Close()

	probe := HTTPProbe{URL: srv.URL + "/api/3/action/status_show"}
	if err := probe.Ready(context.Background()); err == nil {
		t.Error("Ready() must fail on 503")
	}

	mu.Lock()
	status = http.StatusOK
	mu.Unlock()
	if err := probe.Ready(context.Background()); err != nil {
		t.Errorf("Ready() on 200 = %v", err)
	}
}

func TestHTTPProbe_OnlySuccessIsReady(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		ready  bool
	}{
		{status: http.StatusOK, ready: true},
		{status: http.StatusNoContent, ready: true},
		{status: http.StatusNotModified, ready: false},
		{status: http.StatusNotFound, ready: false},
		{status: http.StatusBadGateway, ready: false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := (HTTPProbe{URL: srv.URL}).Ready(context.Background())
			if (err == nil) != tt.ready {
				t.Errorf("Ready() on %d = %v, want ready=%v", tt.status, err, tt.ready)
			}
		})
	}
}

func TestDelayProbe_Canceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (DelayProbe{Delay: time.Hour}).Ready(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Ready() = %v, want context.Canceled", err)
	}
}
