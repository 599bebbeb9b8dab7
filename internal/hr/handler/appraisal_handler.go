package handler

import (
	"github.com/bitfantasy/nimo-hr/internal/hr/service"
	"github.com/gin-gonic/gin"
)

// AppraisalHandler 考核实例处理器
type AppraisalHandler struct {
	svc *service.AppraisalService
}

// NewAppraisalHandler 创建考核实例处理器
func NewAppraisalHandler(svc *service.AppraisalService) *AppraisalHandler {
	return &AppraisalHandler{svc: svc}
}

// Initiate 发起考核
// POST /api/v1/appraisals
func (h *AppraisalHandler) Initiate(c *gin.Context) {
	var req service.InitiateAppraisalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	appraisal, err := h.svc.Initiate(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, appraisal)
}

// List 考核实例列表
// GET /api/v1/appraisals
func (h *AppraisalHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := queryFilters(c, "period", "employee_id", "status")

	result, err := h.svc.List(c.Request.Context(), GetUserID(c), GetRoles(c), page, pageSize, filters)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, result)
}

// Get 考核实例详情
// GET /api/v1/appraisals/:id
func (h *AppraisalHandler) Get(c *gin.Context) {
	appraisal, err := h.svc.Get(c.Request.Context(), c.Param("id"), GetUserID(c), GetRoles(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, appraisal)
}

// History 考核流转历史
// GET /api/v1/appraisals/:id/history
func (h *AppraisalHandler) History(c *gin.Context) {
	history, err := h.svc.History(c.Request.Context(), c.Param("id"), GetUserID(c), GetRoles(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, gin.H{"history": history})
}

// SubmitReview 提交当前环节评审
// POST /api/v1/appraisals/:id/reviews
func (h *AppraisalHandler) SubmitReview(c *gin.Context) {
	var req service.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	appraisal, err := h.svc.SubmitReview(c.Request.Context(), c.Param("id"), GetUserID(c), GetRoles(c), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, appraisal)
}

// Accept 确认评审结果
// POST /api/v1/appraisals/:id/accept
func (h *AppraisalHandler) Accept(c *gin.Context) {
	appraisal, err := h.svc.Accept(c.Request.Context(), c.Param("id"), GetUserID(c), GetRoles(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, appraisal)
}

// Reject 驳回评审结果
// POST /api/v1/appraisals/:id/reject
func (h *AppraisalHandler) Reject(c *gin.Context) {
	var req service.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	appraisal, err := h.svc.Reject(c.Request.Context(), c.Param("id"), GetUserID(c), GetRoles(c), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, appraisal)
}

// UpdateAdminVersion 管理员修订已完结考核
// PUT /api/v1/appraisals/:id/admin-version
func (h *AppraisalHandler) UpdateAdminVersion(c *gin.Context) {
	var req service.AdminEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	appraisal, err := h.svc.UpdateAdminVersion(c.Request.Context(), c.Param("id"), GetUserID(c), GetRoles(c), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, appraisal)
}

// BulkDelete 批量删除考核实例
// POST /api/v1/appraisals/bulk-delete
func (h *AppraisalHandler) BulkDelete(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	deleted, err := h.svc.BulkDelete(c.Request.Context(), GetUserID(c), GetRoles(c), req.IDs)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, gin.H{"deleted": deleted})
}
