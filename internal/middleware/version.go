package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/localnerve/proposaldb/internal/types"
)

// APIVersion is the version served when a client does not ask for one.
const APIVersion = "1.0.0"

// VersionMiddleware parses the X-Api-Version header, rejects unsupported major
// versions and echoes the served version back.
func VersionMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		version := strings.TrimPrefix(strings.TrimSpace(c.Get("X-Api-Version", APIVersion)), "v")

		// Support version aliases
		switch version {
		case "1", "1.0":
			version = APIVersion
		}
		if major, _, _ := strings.Cut(version, "."); major != "1" {
			return &types.CustomError{
				Code:    fiber.StatusBadRequest,
				Message: "unsupported API version " + version,
				Type:    "version",
			}
		}

		c.Locals("apiVersion", version)
		c.Set("X-Api-Version", APIVersion)
		return c.Next()
	}
}
