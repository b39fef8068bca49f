package common

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gokselkaptan/takas-app-sub005/internal/http/middleware"
	"github.com/gokselkaptan/takas-app-sub005/internal/pkg/apperror"
)

// CurrentUserID extracts the authenticated user id from the gin context.
func CurrentUserID(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return uuid.Nil, apperror.New(apperror.ErrCodeUnauthorizedActor, "no authenticated user in context")
	}

	userID, ok := raw.(uuid.UUID)
	if !ok {
		return uuid.Nil, apperror.New(apperror.ErrCodeUnauthorizedActor, "no authenticated user in context")
	}
	return userID, nil
}

// CurrentUserRole extracts the role claim from the gin context.
func CurrentUserRole(c *gin.Context) string {
	raw, exists := c.Get(middleware.ContextRoleKey)
	if !exists {
		return ""
	}
	role, _ := raw.(string)
	return role
}

// ParseUUIDParam parses a UUID path parameter.
func ParseUUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperror.New(apperror.ErrCodeValidation, "parameter "+name+" must be a valid UUID")
	}
	return id, nil
}

// Pagination reads limit/offset query parameters with sane bounds.
func Pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Fail hands the error to the centralized error middleware and aborts.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
