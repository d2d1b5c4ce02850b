// Package middleware holds the gin guards that sit in front of the arena endpoints.
package middleware

import (
	"context"
	"strings"

	"github.com/createarena/arena/database/model"
	"github.com/createarena/arena/logger"
	"github.com/createarena/arena/util/common"
	"github.com/createarena/arena/web/entity"
	"github.com/createarena/arena/web/identity"
	"github.com/createarena/arena/web/session"

	"github.com/gin-gonic/gin"
)

// UserLookup loads the role-store record of an email.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

func abort(c *gin.Context, err *common.Error) {
	c.AbortWithStatusJSON(err.Kind.HTTPStatus(), entity.Msg{Success: false, Msg: err.Msg, Code: err.Code})
}

func bearerToken(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// RequireAuthenticated verifies the bearer token and records the subject email
// for the handlers behind it.
func RequireAuthenticated(v identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abort(c, common.Unauthenticated("missing bearer token"))
			return
		}
		email, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			logger.Debug("token rejected:", err)
			abort(c, common.Unauthenticated("invalid token"))
			return
		}
		session.SetSubject(c, email)
		c.Next()
	}
}

// RequireRole admits subjects whose stored role has one of the given
// capabilities. It must run after RequireAuthenticated.
func RequireRole(users UserLookup, roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := session.GetSubject(c)
		if email == "" {
			abort(c, common.Unauthenticated("missing bearer token"))
			return
		}
		user, err := users.GetByEmail(c.Request.Context(), email)
		if err != nil {
			if !common.IsKind(err, common.KindNotFound) {
				logger.Warning("role lookup failed:", err)
				abort(c, common.AsError(err))
				return
			}
			abort(c, common.Forbidden("forbidden"))
			return
		}
		if !model.HasCapability(user.Role, roles...) {
			abort(c, common.Forbidden("forbidden"))
			return
		}
		session.SetUser(c, user)
		c.Next()
	}
}

func RequireAdmin(users UserLookup) gin.HandlerFunc {
	return RequireRole(users, model.RoleAdmin)
}

func RequireCreatorOrAdmin(users UserLookup) gin.HandlerFunc {
	return RequireRole(users, model.RoleCreator, model.RoleAdmin)
}
