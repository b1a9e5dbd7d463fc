package transport

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorHandlerLogLevels(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.DebugLevel)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.New(core))})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "no such thing")
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusInternalServerError, "boom")
	})

	req, err := http.NewRequest(http.MethodGet, "/missing", nil)
	if err != nil {
		t.Fatalf("new request error = %v", err)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	req, err = http.NewRequest(http.MethodGet, "/boom", nil)
	if err != nil {
		t.Fatalf("new request error = %v", err)
	}
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}

	entries := recorded.All()
	if len(entries) != 2 {
		t.Fatalf("log entries = %d, want 2", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("4xx logged at %s, want warn", entries[0].Level)
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Errorf("5xx logged at %s, want error", entries[1].Level)
	}
}

func TestCorrelationMiddleware(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Use(CorrelationMiddleware())
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	t.Run("generates an id when absent", func(t *testing.T) {
		t.Parallel()

		req, err := http.NewRequest(http.MethodGet, "/ping", nil)
		if err != nil {
			t.Fatalf("new request error = %v", err)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		_ = resp.Body.Close()
		if resp.Header.Get(CorrelationHeader) == "" {
			t.Fatal("expected a generated correlation id header")
		}
	})

	t.Run("echoes the caller id", func(t *testing.T) {
		t.Parallel()

		req, err := http.NewRequest(http.MethodGet, "/ping", nil)
		if err != nil {
			t.Fatalf("new request error = %v", err)
		}
		req.Header.Set(CorrelationHeader, "cid-from-caller")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		_ = resp.Body.Close()
		if got := resp.Header.Get(CorrelationHeader); got != "cid-from-caller" {
			t.Fatalf("correlation header = %q, want cid-from-caller", got)
		}
	})
}
