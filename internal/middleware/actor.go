package middleware

import (
	"net/http" // HTTP status codes

	"settlement_ledger/internal/authz"  // Authorization context
	"settlement_ledger/internal/domain" // Importing domain models

	"github.com/gin-gonic/gin" // Gin web framework
	"gorm.io/gorm"             // GORM ORM library
)

const actorKey = "actor"

// ActorMiddleware loads the authenticated user on each request and stores their
// authorization context. Role changes take effect without a new token.
func ActorMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, domain.Result{Message: "Unauthorized"})
			return
		}
		var user domain.User
		if err := db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, domain.Result{Message: "Unknown user"})
			return
		}
		c.Set(actorKey, authz.FromUser(user))
		c.Next()
	}
}

// StaffOnlyMiddleware admits admins and users holding at least one administrative permission.
// Each operation still checks the specific permission it needs.
func StaffOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := Actor(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, domain.Result{Message: "Unauthorized"})
			return
		}
		for _, p := range authz.All {
			if actor.Can(p) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, domain.Result{Message: "Admin access required", Kind: domain.KindForbidden})
	}
}

// Actor returns the authorization context stored by ActorMiddleware.
func Actor(c *gin.Context) (authz.Context, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return authz.Context{}, false
	}
	actor, ok := v.(authz.Context)
	return actor, ok
}
