package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/thatlq1812/user-agreement/internal/handler/response"
	"github.com/thatlq1812/user-agreement/internal/service"
)

type SettingsHandler struct {
	service service.SettingsService
}

func NewSettingsHandler(svc service.SettingsService) *SettingsHandler {
	return &SettingsHandler{service: svc}
}

type settingsBody struct {
	RedirectURL string `json:"redirect_url"`
}

// Get handles GET /settings
func (h *SettingsHandler) Get(c *gin.Context) {
	url, err := h.service.RedirectURL(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, settingsBody{RedirectURL: url})
}

// Update handles PUT /settings
func (h *SettingsHandler) Update(c *gin.Context) {
	var req settingsBody
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.service.SetRedirectURL(c.Request.Context(), req.RedirectURL); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, req)
}
