package handler

import (
	"github.com/bitfantasy/nimo-hr/internal/hr/service"
	"github.com/gin-gonic/gin"
)

// CommitteeHandler 委员会共享评分处理器
type CommitteeHandler struct {
	svc *service.CommitteeService
}

// NewCommitteeHandler 创建委员会处理器
func NewCommitteeHandler(svc *service.CommitteeService) *CommitteeHandler {
	return &CommitteeHandler{svc: svc}
}

// LockQuestion 锁定题目
// POST /api/v1/appraisals/:id/questions/:questionId/lock
func (h *CommitteeHandler) LockQuestion(c *gin.Context) {
	err := h.svc.LockQuestion(c.Request.Context(), c.Param("id"), c.Param("questionId"), GetUserID(c), GetRoles(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, nil)
}

// UnlockQuestion 释放题目锁
// POST /api/v1/appraisals/:id/questions/:questionId/unlock
func (h *CommitteeHandler) UnlockQuestion(c *gin.Context) {
	err := h.svc.UnlockQuestion(c.Request.Context(), c.Param("id"), c.Param("questionId"), GetUserID(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, nil)
}

// SaveReview 保存委员会评分（增量）
// PUT /api/v1/appraisals/:id/committee-review
func (h *CommitteeHandler) SaveReview(c *gin.Context) {
	var req service.SaveCommitteeReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	appraisal, err := h.svc.SaveCommitteeReview(c.Request.Context(), c.Param("id"), GetUserID(c), GetRoles(c), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, appraisal)
}

// SaveCommendation 保存委员评语
// PUT /api/v1/appraisals/:id/commendations
func (h *CommitteeHandler) SaveCommendation(c *gin.Context) {
	var req service.CommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	appraisal, err := h.svc.SaveCommendation(c.Request.Context(), c.Param("id"), GetUserID(c), GetRoles(c), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, appraisal)
}

// Finalize 委员会评审定稿
// POST /api/v1/appraisals/:id/committee-review/finalize
func (h *CommitteeHandler) Finalize(c *gin.Context) {
	appraisal, err := h.svc.FinalizeCommitteeReview(c.Request.Context(), c.Param("id"), GetUserID(c), GetRoles(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, appraisal)
}
