// auth.go
//
// Draft identity and hybrid persistence service for event proposals
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of proposaldb.
// proposaldb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// proposaldb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with proposaldb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/localnerve/proposaldb/internal/services"
	"github.com/localnerve/proposaldb/internal/types"
)

// SessionCookie is the authorizer session cookie name.
const SessionCookie = "cookie_session"

const actorKey = "actor"

// Authenticator resolves the acting user. Either source may be nil.
type Authenticator struct {
	JWT      *services.JWTVerifier
	Sessions services.SessionValidator
}

// AuthActor requires an acting user from a bearer token or a session cookie
// and stores it for handlers.
func AuthActor(auth Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.resolve(c)
		if err != nil {
			return &types.CustomError{
				Code:    fiber.StatusUnauthorized,
				Message: err.Error(),
				Type:    "authorization.actor",
			}
		}
		c.Locals(actorKey, actor)
		return c.Next()
	}
}

// AuthRoles rejects actors holding none of roles. Use after AuthActor.
func AuthRoles(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := Actor(c)
		for _, r := range roles {
			if actor.HasRole(r) {
				return c.Next()
			}
		}
		return &types.CustomError{
			Code:    fiber.StatusForbidden,
			Message: fmt.Sprintf("requires one of the roles: %s", strings.Join(roles, ", ")),
			Type:    "authorization.role",
		}
	}
}

// Actor returns the acting user stored by AuthActor, or nil.
func Actor(c *fiber.Ctx) *types.Actor {
	actor, _ := c.Locals(actorKey).(*types.Actor)
	return actor
}

func (a Authenticator) resolve(c *fiber.Ctx) (*types.Actor, error) {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return nil, fmt.Errorf("unsupported authorization scheme")
		}
		if a.JWT == nil {
			return nil, fmt.Errorf("bearer tokens are not accepted")
		}
		return a.JWT.Verify(token)
	}

	session := c.Cookies(SessionCookie)
	if session == "" {
		return nil, fmt.Errorf("no bearer token and no %q cookie", SessionCookie)
	}
	if a.Sessions == nil {
		return nil, fmt.Errorf("session cookies are not accepted")
	}
	actor, err := a.Sessions.ValidateSession(c.UserContext(), session)
	if err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}
	return actor, nil
}
