package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/handler/middleware"
	"github.com/thatlq1812/user-agreement/internal/handler/response"
	"github.com/thatlq1812/user-agreement/internal/repository"
	"github.com/thatlq1812/user-agreement/internal/service"
)

// ConsentHandler serves the interactive consent flow and direct decisions
type ConsentHandler struct {
	consent   service.ConsentService
	evaluator service.ConsentEvaluator
	ledger    repository.SubmissionLedger
}

func NewConsentHandler(consent service.ConsentService, evaluator service.ConsentEvaluator, ledger repository.SubmissionLedger) *ConsentHandler {
	return &ConsentHandler{consent: consent, evaluator: evaluator, ledger: ledger}
}

func principal(c *gin.Context) (string, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "Authentication required")
	}
	return uid, ok
}

func (h *ConsentHandler) step(c *gin.Context, result *service.StepResult, err error) {
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toStep(result))
}

// Outstanding handles GET /consent/outstanding
func (h *ConsentHandler) Outstanding(c *gin.Context) {
	uid, ok := principal(c)
	if !ok {
		return
	}
	agreements, err := h.evaluator.OutstandingPublished(c.Request.Context(), uid)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessList(c, agreements, len(agreements))
}

// BeginLogin handles POST /consent/login
func (h *ConsentHandler) BeginLogin(c *gin.Context) {
	uid, ok := principal(c)
	if !ok {
		return
	}

	var req struct {
		Ticket            string            `json:"ticket" binding:"required"`
		Attributes        map[string]string `json:"attributes"`
		ServiceParameters map[string]string `json:"service_parameters"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.consent.BeginLogin(c.Request.Context(), uid, &domain.LoginPayload{
		Ticket:            req.Ticket,
		Attributes:        req.Attributes,
		ServiceParameters: req.ServiceParameters,
	})
	h.step(c, result, err)
}

// BeginVisit handles GET /consent/visit?destination=
func (h *ConsentHandler) BeginVisit(c *gin.Context) {
	uid, ok := principal(c)
	if !ok {
		return
	}
	result, err := h.consent.BeginVisit(c.Request.Context(), uid, c.Query("destination"))
	h.step(c, result, err)
}

// Current handles GET /consent/sessions/:sid
func (h *ConsentHandler) Current(c *gin.Context) {
	uid, ok := principal(c)
	if !ok {
		return
	}
	result, err := h.consent.Current(c.Request.Context(), c.Param("sid"), uid)
	h.step(c, result, err)
}

// Decide handles POST /consent/sessions/:sid/decision
func (h *ConsentHandler) Decide(c *gin.Context) {
	uid, ok := principal(c)
	if !ok {
		return
	}

	var req struct {
		AgreementID int64  `json:"agreement_id" binding:"required"`
		RevisionID  int64  `json:"revision_id" binding:"required"`
		Decision    string `json:"decision" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	decision, err := domain.ParseDecision(req.Decision)
	if err != nil {
		response.FromError(c, err)
		return
	}

	result, err := h.consent.Decide(c.Request.Context(), c.Param("sid"), uid, req.AgreementID, req.RevisionID, decision)
	h.step(c, result, err)
}

// Cancel handles POST /consent/sessions/:sid/cancel
func (h *ConsentHandler) Cancel(c *gin.Context) {
	uid, ok := principal(c)
	if !ok {
		return
	}
	result, err := h.consent.Cancel(c.Request.Context(), c.Param("sid"), uid)
	h.step(c, result, err)
}

// DecideDirect handles POST /agreements/:id/decision
func (h *ConsentHandler) DecideDirect(c *gin.Context) {
	uid, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Decision string `json:"decision" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	decision, err := domain.ParseDecision(req.Decision)
	if err != nil {
		response.FromError(c, err)
		return
	}

	sub, err := h.consent.DecideDirect(c.Request.Context(), uid, id, decision)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, submissionResponse{Submission: sub, Decision: sub.Decision.String()})
}

// History handles GET /me/submissions
func (h *ConsentHandler) History(c *gin.Context) {
	uid, ok := principal(c)
	if !ok {
		return
	}
	subs, err := h.ledger.ListByUser(c.Request.Context(), uid)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessList(c, toSubmissions(subs), len(subs))
}
