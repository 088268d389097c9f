package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localnerve/proposaldb/internal/services"
	"github.com/localnerve/proposaldb/internal/types"
	"github.com/localnerve/proposaldb/internal/utils"
)

type fakeSessions map[string]*types.Actor

func (f fakeSessions) ValidateSession(_ context.Context, cookie string) (*types.Actor, error) {
	if actor, ok := f[cookie]; ok {
		return actor, nil
	}
	return nil, errors.New("unknown session")
}

func newApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		return utils.ServiceErrorResponse(c, err)
	}})
	handlers = append(handlers, func(c *fiber.Ctx) error {
		actor := Actor(c)
		if actor == nil {
			return c.SendString("anonymous")
		}
		return c.SendString(actor.ID)
	})
	app.Get("/", handlers...)
	return app
}

func TestAuthActor(t *testing.T) {
	verifier := services.NewJWTVerifier("mw-secret")
	sessions := fakeSessions{"good-cookie": {ID: "cookie-user"}}
	app := newApp(AuthActor(Authenticator{JWT: verifier, Sessions: sessions}))

	token, err := verifier.Issue(&types.Actor{ID: "token-user"}, time.Minute)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		cookie string
		status int
	}{
		{"bearer", "Bearer " + token, "", http.StatusOK},
		{"bearer wins over cookie", "Bearer " + token, "good-cookie", http.StatusOK},
		{"cookie", "", "good-cookie", http.StatusOK},
		{"bad cookie", "", "stale", http.StatusUnauthorized},
		{"bad scheme", "Basic dXNlcjpwYXNz", "", http.StatusUnauthorized},
		{"nothing", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tc.cookie})
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestAuthActor_DisabledSources(t *testing.T) {
	app := newApp(AuthActor(Authenticator{}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer abc")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "x"})
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRoles(t *testing.T) {
	sessions := fakeSessions{
		"reviewer": {ID: "rev-1", Roles: []string{"reviewer"}},
		"user":     {ID: "user-1", Roles: []string{"user"}},
	}
	app := newApp(AuthActor(Authenticator{Sessions: sessions}), AuthRoles("reviewer", "admin"))

	for cookie, status := range map[string]int{"reviewer": http.StatusOK, "user": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: cookie})
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, status, resp.StatusCode, cookie)
	}
}

func TestVersionMiddleware(t *testing.T) {
	app := newApp(VersionMiddleware())

	cases := map[string]int{
		"":      http.StatusOK,
		"1":     http.StatusOK,
		"v1.0":  http.StatusOK,
		"1.2.0": http.StatusOK,
		"2":     http.StatusBadRequest,
		"0.9":   http.StatusBadRequest,
	}
	for version, status := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if version != "" {
			req.Header.Set("X-Api-Version", version)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, status, resp.StatusCode, version)
		if status == http.StatusOK {
			assert.Equal(t, APIVersion, resp.Header.Get("X-Api-Version"))
		}
	}
}
