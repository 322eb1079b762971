package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/funko-orders/internal/health"
	"github.com/vladislavdragonenkov/funko-orders/internal/version"
)

func TestOpsRouter_Endpoints(t *testing.T) {
	healthHandler := health.NewHandler(version.GetVersion())
	srv := httptest.NewServer(newOpsRouter(healthHandler))
	defer srv.Close()

	cases := []struct {
		path string
		code int
		body string
	}{
		{path: "/metrics", code: http.StatusOK},
		{path: "/healthz", code: http.StatusOK},
		{path: "/livez", code: http.StatusOK, body: "ok"},
		{path: "/readyz", code: http.StatusOK, body: "ready"},
		{path: "/orders", code: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tc.path)
			if err != nil {
				t.Fatalf("get %s: %v", tc.path, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tc.code {
				t.Fatalf("expected status %d for %s, got %d", tc.code, tc.path, resp.StatusCode)
			}
			if tc.body != "" {
				body, _ := io.ReadAll(resp.Body)
				if string(body) != tc.body {
					t.Fatalf("expected body %q, got %q", tc.body, body)
				}
			}
		})
	}
}

func TestOpsRouter_NotReady(t *testing.T) {
	healthHandler := health.NewHandler("test")
	healthHandler.RegisterChecker("postgres", health.NewSimpleChecker("postgres", func(context.Context) error {
		return errors.New("connection refused")
	}))
	srv := httptest.NewServer(newOpsRouter(healthHandler))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("get /readyz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestStartOpsServer_Shutdown(t *testing.T) {
	logger := log.WithField("test", "ops-shutdown")

	srv, addr, err := startOpsServer("127.0.0.1:0", logger, newOpsRouter(health.NewHandler("test")))
	if err != nil {
		t.Fatalf("start ops server: %v", err)
	}

	url := "http://" + addr.String() + "/livez"
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("server should be running: %v", err)
	}
	resp.Body.Close()

	shutdownHTTP(srv, logger)

	if _, err := http.Get(url); err == nil {
		t.Fatal("server should be stopped after shutdown")
	}
}

func TestStartOpsServer_BadAddr(t *testing.T) {
	if _, _, err := startOpsServer("bad-address", log.WithField("test", "bad"), http.NotFoundHandler()); err == nil {
		t.Fatal("expected listen error")
	}
}

func TestShutdownHTTP_NilServer(_ *testing.T) {
	// Не должно паниковать
	shutdownHTTP(nil, log.WithField("test", "http-nil"))
}
