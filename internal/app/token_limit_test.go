package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"

	u "paystubs/internal/utils"
)

func TestTokenRateLimitMiddleware(t *testing.T) {
	token := "test-token"
	limit := 2

	u.LoadTokensFromMap(map[string]int{token: limit})

	u.AppConfig.RateLimiter.Interval = u.Duration{Duration: time.Hour}

	rateLimitStore = newMemStore()
	tokenLimiterCache.Lock()
	tokenLimiterCache.handlers = nil
	tokenLimiterCache.Unlock()

	app := fiber.New()
	app.Use(keyauth.New(keyauth.Config{
		KeyLookup:  "header:X-API-Key",
		ContextKey: "api_key",
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			return u.ValidateToken(key), nil
		},
	}))
	app.Use(rateLimitMiddleware())
	app.Post("/v1/process", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "success"})
	})

	makeReq := func() *http.Request {
		req := httptest.NewRequest("POST", "/v1/process", nil)
		req.Header.Set("X-API-Key", token)
		return req
	}

	for i := 0; i < limit; i++ {
		resp, err := app.Test(makeReq(), -1)
		if err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected 200 but got %d", resp.StatusCode)
		}
	}

	resp, err := app.Test(makeReq(), -1)
	if err != nil {
		t.Fatalf("exceed request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 but got %d", resp.StatusCode)
	}
}
