// Package session carries the verified subject of a request in the gin context.
package session

import (
	"github.com/createarena/arena/database/model"

	"github.com/gin-gonic/gin"
)

const (
	subjectEmail = "SUBJECT_EMAIL"
	subjectUser  = "SUBJECT_USER"
)

func SetSubject(c *gin.Context, email string) {
	c.Set(subjectEmail, email)
}

// GetSubject returns the verified email of the caller, or "" when the request
// did not pass authentication.
func GetSubject(c *gin.Context) string {
	return c.GetString(subjectEmail)
}

func SetUser(c *gin.Context, user *model.User) {
	c.Set(subjectUser, user)
}

// GetUser returns the role-store record loaded by a role guard, if any.
func GetUser(c *gin.Context) *model.User {
	if obj, ok := c.Get(subjectUser); ok {
		if user, ok := obj.(*model.User); ok {
			return user
		}
	}
	return nil
}
