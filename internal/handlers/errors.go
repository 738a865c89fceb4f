package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"chromechat-service/internal/models"
	"chromechat-service/internal/repositories"
	"chromechat-service/internal/services"
)

// errorStatus maps domain errors to an HTTP status and a client message.
// Permission failures get a generic notice; details travel on the error channel.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrPermissionDenied):
		return http.StatusForbidden, "you do not have permission to do that"
	case errors.Is(err, repositories.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, repositories.ErrChatNotFound):
		return http.StatusNotFound, "chat not found"
	case errors.Is(err, repositories.ErrFriendRequestNotFound):
		return http.StatusNotFound, "friend request not found"
	case errors.Is(err, repositories.ErrDuplicateFriendRequest),
		errors.Is(err, services.ErrAlreadyFriends),
		errors.Is(err, services.ErrReversePending),
		errors.Is(err, services.ErrNotFriends):
		return http.StatusConflict, err.Error()
	case errors.Is(err, services.ErrChatIDConflict):
		return http.StatusConflict, "chat id conflicts with another pair"
	case errors.Is(err, services.ErrSelfRequest),
		errors.Is(err, services.ErrSelfChat),
		errors.Is(err, services.ErrEmptyMessage):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrInvalidDocument):
		return http.StatusBadRequest, "invalid document"
	case errors.Is(err, services.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "service temporarily unavailable, please retry"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("request failed: method=%s path=%s user_id=%s err=%v", c.Request.Method, c.FullPath(), c.GetString("userID"), err)
	}
	c.JSON(status, gin.H{"error": msg})
}

// bindOptionalJSON binds a body that may be absent. An empty body is not
// an error; malformed JSON is.
func bindOptionalJSON(c *gin.Context, obj any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
