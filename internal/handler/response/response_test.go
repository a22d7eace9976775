package response

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/thatlq1812/user-agreement/internal/domain"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest, CodeBadRequest},
		{fmt.Errorf("revision 3: %w", domain.ErrInvalidRevision), http.StatusBadRequest, CodeBadRequest},
		{domain.ErrUnauthorized, http.StatusUnauthorized, CodeUnauthorized},
		{domain.ErrForbidden, http.StatusForbidden, CodeForbidden},
		{fmt.Errorf("user u2: %w", domain.ErrAccountBlocked), http.StatusForbidden, CodeForbidden},
		{fmt.Errorf("agreement 9: %w", domain.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{domain.ErrCannotDeleteDefault, http.StatusConflict, CodeConflict},
		{domain.ErrRevisionLocked, http.StatusConflict, CodeConflict},
		{domain.ErrConflict, http.StatusConflict, CodeConflict},
		{domain.ErrSessionExpired, http.StatusGone, CodeGone},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, code := MapError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestFromError_HidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	FromError(c, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":"500","message":"internal server error"}`, w.Body.String())
	assert.Len(t, c.Errors, 1)
}
