package handler

import (
	"fmt"
	"net/url"

	"github.com/bitfantasy/nimo-hr/internal/hr/service"
	"github.com/gin-gonic/gin"
)

// PeriodHandler 考核周期处理器
type PeriodHandler struct {
	svc       *service.PeriodService
	exportSvc *service.ExportService
}

// NewPeriodHandler 创建周期处理器
func NewPeriodHandler(svc *service.PeriodService, exportSvc *service.ExportService) *PeriodHandler {
	return &PeriodHandler{svc: svc, exportSvc: exportSvc}
}

// List 周期列表
// GET /api/v1/periods
func (h *PeriodHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := queryFilters(c, "status")

	result, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, result)
}

// Get 周期详情
// GET /api/v1/periods/:id
func (h *PeriodHandler) Get(c *gin.Context) {
	period, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, period)
}

// Create 创建周期
// POST /api/v1/periods
func (h *PeriodHandler) Create(c *gin.Context) {
	var req service.CreatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	period, err := h.svc.Create(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, period)
}

// Update 更新周期
// PUT /api/v1/periods/:id
func (h *PeriodHandler) Update(c *gin.Context) {
	var req service.UpdatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	period, err := h.svc.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, period)
}

// Delete 删除周期
// DELETE /api/v1/periods/:id
func (h *PeriodHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, nil)
}

// ListAssignments 周期参评名单
// GET /api/v1/periods/:id/assignments
func (h *PeriodHandler) ListAssignments(c *gin.Context) {
	assignments, err := h.svc.ListAssignments(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, gin.H{"assignments": assignments})
}

// AddAssignment 添加参评人员
// POST /api/v1/periods/:id/assignments
func (h *PeriodHandler) AddAssignment(c *gin.Context) {
	var req service.AddAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	assignment, err := h.svc.AddAssignment(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, assignment)
}

// RemoveAssignment 移除参评人员
// DELETE /api/v1/periods/:id/assignments/:userId
func (h *PeriodHandler) RemoveAssignment(c *gin.Context) {
	if err := h.svc.RemoveAssignment(c.Request.Context(), c.Param("id"), c.Param("userId")); err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, nil)
}

// Export 导出周期考核结果xlsx
// GET /api/v1/periods/:id/export
func (h *PeriodHandler) Export(c *gin.Context) {
	period, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	f, filename, err := h.exportSvc.ExportPeriodResults(c.Request.Context(), period.Label)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename*=UTF-8''%s`, url.PathEscape(filename)))
	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "写出文件失败: "+err.Error())
	}
}
