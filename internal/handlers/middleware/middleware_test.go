package middleware

import (
	"net/http/httptest"
	"testing"

	"healthcompanion/config"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(m Middleware) *fiber.App {
	app := fiber.New()
	app.Use(m.TraceID())
	app.Post("/admin", m.RequireAdminToken(), func(c *fiber.Ctx) error {
		return c.SendString(GetTraceID(c))
	})
	return app
}

func TestTraceID(t *testing.T) {
	app := newTestApp(New(config.Config{}))

	incoming := uuid.New().String()
	req := httptest.NewRequest(fiber.MethodPost, "/admin", nil)
	req.Header.Set(TraceIDHeader, incoming)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, incoming, resp.Header.Get(TraceIDHeader))

	req = httptest.NewRequest(fiber.MethodPost, "/admin", nil)
	req.Header.Set(TraceIDHeader, "not-a-uuid")
	resp, err = app.Test(req)
	require.NoError(t, err)
	generated := resp.Header.Get(TraceIDHeader)
	assert.NotEqual(t, "not-a-uuid", generated)
	_, err = uuid.Parse(generated)
	assert.NoError(t, err)
}

func TestRequireAdminToken(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		provided   string
		expected   int
	}{
		{name: "open when unconfigured", configured: "", provided: "", expected: fiber.StatusOK},
		{name: "matching token", configured: "s3cret", provided: "s3cret", expected: fiber.StatusOK},
		{name: "missing token", configured: "s3cret", provided: "", expected: fiber.StatusForbidden},
		{name: "wrong token", configured: "s3cret", provided: "guess", expected: fiber.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(New(config.Config{AdminToken: tt.configured}))

			req := httptest.NewRequest(fiber.MethodPost, "/admin", nil)
			if tt.provided != "" {
				req.Header.Set(AdminTokenHeader, tt.provided)
			}
			resp, err := app.Test(req)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, resp.StatusCode)
		})
	}
}
