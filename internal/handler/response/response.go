package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thatlq1812/user-agreement/internal/domain"
)

type Response struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListData struct {
	Items interface{} `json:"items"`
	Total int         `json:"total"`
}

// Success codes
const (
	CodeSuccess = "000"
)

// Error codes
const (
	CodeBadRequest    = "400"
	CodeUnauthorized  = "401"
	CodeForbidden     = "403"
	CodeNotFound      = "404"
	CodeConflict      = "409"
	CodeGone          = "410"
	CodeTooMany       = "429"
	CodeInternalError = "500"
)

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "created",
		Data:    data,
	})
}

func SuccessList(c *gin.Context, items interface{}, total int) {
	Success(c, ListData{Items: items, Total: total})
}

func Error(c *gin.Context, statusCode int, code, message string) {
	c.AbortWithStatusJSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeBadRequest, message)
}

// FromError maps domain errors to HTTP responses
func FromError(c *gin.Context, err error) {
	statusCode, code := MapError(err)
	message := err.Error()
	if statusCode == http.StatusInternalServerError {
		// Internal details stay in the logs
		_ = c.Error(err)
		message = "internal server error"
	}
	Error(c, statusCode, code, message)
}

// MapError converts a sentinel error to an HTTP status and envelope code
func MapError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidRevision):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrAccountBlocked):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrCannotDeleteDefault),
		errors.Is(err, domain.ErrRevisionLocked),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, domain.ErrSessionExpired):
		return http.StatusGone, CodeGone
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}
