package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/handler/middleware"
	"github.com/thatlq1812/user-agreement/internal/handler/response"
	"github.com/thatlq1812/user-agreement/internal/service"
)

// AgreementHandler serves agreement administration and revision history
type AgreementHandler struct {
	service         service.AgreementService
	defaultLangcode string
}

func NewAgreementHandler(svc service.AgreementService, defaultLangcode string) *AgreementHandler {
	if defaultLangcode == "" {
		defaultLangcode = "en"
	}
	return &AgreementHandler{service: svc, defaultLangcode: defaultLangcode}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func actor(c *gin.Context) string {
	uid, _ := middleware.UserID(c)
	return uid
}

// Create handles POST /agreements
func (h *AgreementHandler) Create(c *gin.Context) {
	var req struct {
		Langcode          string                    `json:"langcode"`
		Title             string                    `json:"title" binding:"required"`
		Body              string                    `json:"body"`
		SupplementaryInfo string                    `json:"supplementary_info"`
		Translations      map[string]domain.Content `json:"translations"`
		Published         bool                      `json:"published"`
		OwnerID           string                    `json:"owner_id"`
		Log               string                    `json:"log"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Langcode == "" {
		req.Langcode = h.defaultLangcode
	}
	if req.OwnerID == "" {
		req.OwnerID = actor(c)
	}

	rev, err := h.service.Create(c.Request.Context(), service.CreateAgreementParams{
		Langcode:          req.Langcode,
		Title:             req.Title,
		Body:              req.Body,
		SupplementaryInfo: req.SupplementaryInfo,
		Translations:      req.Translations,
		Published:         req.Published,
		OwnerID:           req.OwnerID,
		Log:               req.Log,
		Actor:             actor(c),
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, toRevision(rev))
}

// List handles GET /agreements?published=true
func (h *AgreementHandler) List(c *gin.Context) {
	publishedOnly, _ := strconv.ParseBool(c.Query("published"))

	agreements, err := h.service.List(c.Request.Context(), publishedOnly)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if agreements == nil {
		agreements = []*domain.Agreement{}
	}
	response.SuccessList(c, agreements, len(agreements))
}

// Get handles GET /agreements/:id
func (h *AgreementHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	agreement, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	rev, err := h.service.GetRevision(c.Request.Context(), id, agreement.DefaultRevisionID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"agreement": agreement,
		"revision":  toRevision(rev),
	})
}

// Edit handles PUT /agreements/:id
func (h *AgreementHandler) Edit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		RevisionID        int64  `json:"revision_id"`
		Langcode          string `json:"langcode"`
		Title             string `json:"title" binding:"required"`
		Body              string `json:"body"`
		SupplementaryInfo string `json:"supplementary_info"`
		Published         *bool  `json:"published"`
		NewRevision       bool   `json:"new_revision"`
		Log               string `json:"log"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	rev, err := h.service.Edit(c.Request.Context(), service.EditAgreementParams{
		AgreementID:       id,
		RevisionID:        req.RevisionID,
		Langcode:          req.Langcode,
		Title:             req.Title,
		Body:              req.Body,
		SupplementaryInfo: req.SupplementaryInfo,
		Published:         req.Published,
		NewRevision:       req.NewRevision,
		Log:               req.Log,
		Actor:             actor(c),
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toRevision(rev))
}

// Delete handles DELETE /agreements/:id
func (h *AgreementHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, actor(c)); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, nil)
}

// Revisions handles GET /agreements/:id/revisions
func (h *AgreementHandler) Revisions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	summaries, err := h.service.Revisions(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessList(c, toSummaries(summaries), len(summaries))
}

func (h *AgreementHandler) ids(c *gin.Context) (int64, int64, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return 0, 0, false
	}
	vid, ok := pathID(c, "vid")
	if !ok {
		return 0, 0, false
	}
	return id, vid, true
}

// GetRevision handles GET /agreements/:id/revisions/:vid
func (h *AgreementHandler) GetRevision(c *gin.Context) {
	id, vid, ok := h.ids(c)
	if !ok {
		return
	}
	rev, err := h.service.GetRevision(c.Request.Context(), id, vid)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toRevision(rev))
}

type transition func(ctx *gin.Context, agreementID, revisionID int64) (*domain.Revision, error)

func (h *AgreementHandler) transition(fn transition) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, vid, ok := h.ids(c)
		if !ok {
			return
		}
		rev, err := fn(c, id, vid)
		if err != nil {
			response.FromError(c, err)
			return
		}
		response.Success(c, toRevision(rev))
	}
}

// Publish handles POST /agreements/:id/revisions/:vid/publish
func (h *AgreementHandler) Publish(c *gin.Context) {
	h.transition(func(c *gin.Context, id, vid int64) (*domain.Revision, error) {
		return h.service.Publish(c.Request.Context(), id, vid, actor(c))
	})(c)
}

// Revert handles POST /agreements/:id/revisions/:vid/revert
func (h *AgreementHandler) Revert(c *gin.Context) {
	h.transition(func(c *gin.Context, id, vid int64) (*domain.Revision, error) {
		return h.service.Revert(c.Request.Context(), id, vid, actor(c))
	})(c)
}

// SetActive handles POST /agreements/:id/revisions/:vid/set-active
func (h *AgreementHandler) SetActive(c *gin.Context) {
	h.transition(func(c *gin.Context, id, vid int64) (*domain.Revision, error) {
		return h.service.SetActive(c.Request.Context(), id, vid, actor(c))
	})(c)
}

// RevertTranslation handles POST /agreements/:id/revisions/:vid/revert-translation
func (h *AgreementHandler) RevertTranslation(c *gin.Context) {
	var req struct {
		Langcode     string `json:"langcode" binding:"required"`
		RevertShared bool   `json:"revert_shared"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	h.transition(func(c *gin.Context, id, vid int64) (*domain.Revision, error) {
		return h.service.RevertTranslation(c.Request.Context(), service.RevertTranslationParams{
			AgreementID:  id,
			RevisionID:   vid,
			Langcode:     req.Langcode,
			RevertShared: req.RevertShared,
			Actor:        actor(c),
		})
	})(c)
}

// DeleteRevision handles DELETE /agreements/:id/revisions/:vid
func (h *AgreementHandler) DeleteRevision(c *gin.Context) {
	id, vid, ok := h.ids(c)
	if !ok {
		return
	}
	if err := h.service.DeleteRevision(c.Request.Context(), id, vid, actor(c)); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, nil)
}

// Submissions handles GET /agreements/:id/submissions and
// GET /agreements/:id/revisions/:vid/submissions
func (h *AgreementHandler) Submissions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var vid int64
	if c.Param("vid") != "" {
		if vid, ok = pathID(c, "vid"); !ok {
			return
		}
	}

	subs, total, err := h.service.Submissions(c.Request.Context(), id, vid)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessList(c, toSubmissions(subs), total)
}
