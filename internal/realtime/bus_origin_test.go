package realtime

import (
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func newTestBus(cfg Config) *Bus {
	return &Bus{cfg: cfg, logger: zap.NewNop().Sugar()}
}

func TestCheckOriginAllowsEmptyOrigin(t *testing.T) {
	b := newTestBus(Config{})
	req := httptest.NewRequest("GET", "/ws", nil)
	if !b.checkOrigin(req) {
		t.Fatalf("expected a request with no Origin header to be allowed")
	}
}

func TestCheckOriginAllowsConfiguredOrigin(t *testing.T) {
	b := newTestBus(Config{AllowedOrigins: []string{"https://dicehall.example"}})
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "https://dicehall.example")
	if !b.checkOrigin(req) {
		t.Fatalf("expected an explicitly-allowed origin to pass")
	}
}

func TestCheckOriginRejectsUnlistedOrigin(t *testing.T) {
	b := newTestBus(Config{AllowedOrigins: []string{"https://dicehall.example"}})
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "https://evil.example")
	if b.checkOrigin(req) {
		t.Fatalf("expected an unlisted origin to be rejected")
	}
}

func TestCheckOriginAllowsLoopbackOnlyWithDevAllowAll(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "http://localhost:5173")

	strict := newTestBus(Config{})
	if strict.checkOrigin(req) {
		t.Fatalf("expected a loopback origin to be rejected without DevAllowAll")
	}

	dev := newTestBus(Config{DevAllowAll: true})
	if !dev.checkOrigin(req) {
		t.Fatalf("expected a loopback origin to be allowed with DevAllowAll")
	}
}
