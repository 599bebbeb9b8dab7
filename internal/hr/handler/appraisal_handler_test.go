package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"github.com/bitfantasy/nimo-hr/internal/hr/repository"
	"github.com/bitfantasy/nimo-hr/internal/hr/service"
	"github.com/bitfantasy/nimo-hr/internal/hr/testutil"
	"github.com/bitfantasy/nimo-hr/internal/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func setupAppraisalTest(t *testing.T) (*gin.Engine, *testutil.TestEnv) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	logger := zap.NewNop()

	auditSvc := service.NewAuditService(repos.AuditLog, logger)
	notificationSvc := service.NewNotificationService(repos.Notification, repos.User, nil, logger)
	appraisalSvc := service.NewAppraisalService(repos.Appraisal, repos.Workflow, repos.Template, repos.User, repos.Period, auditSvc, notificationSvc)
	committeeSvc := service.NewCommitteeService(repos.Appraisal, repos.Workflow, repos.Template, auditSvc, notificationSvc)

	appraisalHandler := NewAppraisalHandler(appraisalSvc)
	committeeHandler := NewCommitteeHandler(committeeSvc)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")

	appraisals := api.Group("/appraisals")
	appraisals.POST("", middleware.RequireRole(entity.RoleHR), appraisalHandler.Initiate)
	appraisals.GET("", appraisalHandler.List)
	appraisals.GET("/:id", appraisalHandler.Get)
	appraisals.GET("/:id/history", appraisalHandler.History)
	appraisals.POST("/:id/reviews", appraisalHandler.SubmitReview)
	appraisals.POST("/:id/accept", appraisalHandler.Accept)
	appraisals.POST("/:id/reject", appraisalHandler.Reject)
	appraisals.PUT("/:id/admin-version", middleware.RequireRole(entity.RoleHR), appraisalHandler.UpdateAdminVersion)
	appraisals.POST("/bulk-delete", middleware.RequireRole(entity.RoleHRAdmin), appraisalHandler.BulkDelete)
	appraisals.POST("/:id/questions/:questionId/lock", committeeHandler.LockQuestion)
	appraisals.POST("/:id/questions/:questionId/unlock", committeeHandler.UnlockQuestion)
	appraisals.PUT("/:id/committee-review", committeeHandler.SaveReview)
	appraisals.POST("/:id/committee-review/finalize", committeeHandler.Finalize)

	// 测试数据：上级、员工、两步工作流、模板
	testutil.SeedTestUser(t, db, "sup-1", "王主管", "", entity.RoleSupervisor)
	testutil.SeedTestUser(t, db, "emp-1", "李员工", "sup-1", entity.RoleEmployee)
	testutil.SeedWorkflow(t, db, "wf1", true, entity.RoleEmployee, entity.RoleSupervisor)
	testutil.SeedTemplate(t, db, "tpl1")

	return router, &testutil.TestEnv{DB: db, Router: router, T: t}
}

func reviewBody(score float64) map[string]interface{} {
	return map[string]interface{}{
		"responses": []map[string]interface{}{
			{"question_id": "tpl1_q1", "kind": "rating", "score": score},
			{"question_id": "tpl1_q2", "kind": "text", "text": "按期完成目标"},
		},
	}
}

func initiateViaHTTP(t *testing.T, router *gin.Engine, hrToken string) string {
	t.Helper()
	w := testutil.DoRequest(router, "POST", "/api/v1/appraisals", map[string]interface{}{
		"employee_id": "emp-1",
		"period":      "2026-Q1",
		"workflow_id": "wf1",
		"template_id": "tpl1",
	}, hrToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	return data["id"].(string)
}

func TestInitiateRequiresHRRole(t *testing.T) {
	router, _ := setupAppraisalTest(t)
	empToken := testutil.RoleTestToken("emp-1", "李员工", entity.RoleEmployee)

	w := testutil.DoRequest(router, "POST", "/api/v1/appraisals", map[string]interface{}{
		"employee_id": "emp-1",
		"period":      "2026-Q1",
		"template_id": "tpl1",
	}, empToken)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for employee initiating, got %d: %s", w.Code, w.Body.String())
	}

	// 未认证请求被拦截
	w = testutil.DoRequest(router, "GET", "/api/v1/appraisals", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}
}

func TestAppraisalLifecycleOverHTTP(t *testing.T) {
	router, _ := setupAppraisalTest(t)
	hrToken := testutil.RoleTestToken("hr-1", "HR专员", entity.RoleHR)
	empToken := testutil.RoleTestToken("emp-1", "李员工", entity.RoleEmployee)
	supToken := testutil.RoleTestToken("sup-1", "王主管", entity.RoleSupervisor)

	id := initiateViaHTTP(t, router, hrToken)
	base := fmt.Sprintf("/api/v1/appraisals/%s", id)

	// 员工自评 → 直接推进
	w := testutil.DoRequest(router, "POST", base+"/reviews", reviewBody(8), empToken)
	if w.Code != http.StatusOK {
		t.Fatalf("Employee review expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["status"] != entity.AppraisalStatusInProgress {
		t.Errorf("Expected in_progress, got %v", data["status"])
	}
	if data["current_step"].(float64) != 1 {
		t.Errorf("Expected current_step 1, got %v", data["current_step"])
	}

	// 上级评审 → 员工确认门
	w = testutil.DoRequest(router, "POST", base+"/reviews", reviewBody(6), supToken)
	if w.Code != http.StatusOK {
		t.Fatalf("Supervisor review expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data = testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["status"] != entity.AppraisalStatusPendingEmployeeReview {
		t.Errorf("Expected pending_employee_review, got %v", data["status"])
	}

	// 确认只能由员工本人发起
	w = testutil.DoRequest(router, "POST", base+"/accept", nil, supToken)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for supervisor accept, got %d", w.Code)
	}

	w = testutil.DoRequest(router, "POST", base+"/accept", nil, empToken)
	if w.Code != http.StatusOK {
		t.Fatalf("Accept expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data = testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["status"] != entity.AppraisalStatusCompleted {
		t.Errorf("Expected completed, got %v", data["status"])
	}
	if data["overall_score"].(float64) != 7 {
		t.Errorf("Expected overall_score 7, got %v", data["overall_score"])
	}

	// 流转历史可查
	w = testutil.DoRequest(router, "GET", base+"/history", nil, empToken)
	if w.Code != http.StatusOK {
		t.Fatalf("History expected 200, got %d", w.Code)
	}
	history := testutil.ParseResponse(w)["data"].(map[string]interface{})["history"].([]interface{})
	if len(history) < 4 {
		t.Errorf("Expected at least 4 history entries, got %d", len(history))
	}
}

func TestRejectOverHTTP(t *testing.T) {
	router, _ := setupAppraisalTest(t)
	hrToken := testutil.RoleTestToken("hr-1", "HR专员", entity.RoleHR)
	empToken := testutil.RoleTestToken("emp-1", "李员工", entity.RoleEmployee)
	supToken := testutil.RoleTestToken("sup-1", "王主管", entity.RoleSupervisor)

	id := initiateViaHTTP(t, router, hrToken)
	base := fmt.Sprintf("/api/v1/appraisals/%s", id)

	testutil.DoRequest(router, "POST", base+"/reviews", reviewBody(8), empToken)
	testutil.DoRequest(router, "POST", base+"/reviews", reviewBody(6), supToken)

	// 缺少reason被参数校验拦截
	w := testutil.DoRequest(router, "POST", base+"/reject", map[string]interface{}{}, empToken)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without reason, got %d", w.Code)
	}

	w = testutil.DoRequest(router, "POST", base+"/reject", map[string]interface{}{"reason": "评分偏低"}, empToken)
	if w.Code != http.StatusOK {
		t.Fatalf("Reject expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["status"] != entity.AppraisalStatusInProgress {
		t.Errorf("Expected in_progress after reject, got %v", data["status"])
	}
	if data["rejection_reason"] != "评分偏低" {
		t.Errorf("Expected rejection_reason recorded, got %v", data["rejection_reason"])
	}

	// 进行中状态下只有当前环节负责人或管理员可驳回
	w = testutil.DoRequest(router, "POST", base+"/reject", map[string]interface{}{"reason": "再驳回"}, empToken)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-assignee reject, got %d", w.Code)
	}
}

func TestAdminVersionOverHTTP(t *testing.T) {
	router, _ := setupAppraisalTest(t)
	hrToken := testutil.RoleTestToken("hr-1", "HR专员", entity.RoleHR)
	empToken := testutil.RoleTestToken("emp-1", "李员工", entity.RoleEmployee)
	supToken := testutil.RoleTestToken("sup-1", "王主管", entity.RoleSupervisor)

	id := initiateViaHTTP(t, router, hrToken)
	base := fmt.Sprintf("/api/v1/appraisals/%s", id)

	testutil.DoRequest(router, "POST", base+"/reviews", reviewBody(8), empToken)
	testutil.DoRequest(router, "POST", base+"/reviews", reviewBody(6), supToken)
	testutil.DoRequest(router, "POST", base+"/accept", nil, empToken)

	w := testutil.DoRequest(router, "PUT", base+"/admin-version", map[string]interface{}{
		"overall_score": 9,
	}, hrToken)
	if w.Code != http.StatusOK {
		t.Fatalf("Admin edit expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// 员工视角看不到修订版本
	w = testutil.DoRequest(router, "GET", base, nil, empToken)
	if w.Code != http.StatusOK {
		t.Fatalf("Get expected 200, got %d", w.Code)
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if _, present := data["admin_edited_version"]; present {
		t.Error("Expected admin_edited_version hidden from employee")
	}
	if data["is_admin_edited"] != true {
		t.Errorf("Expected is_admin_edited true, got %v", data["is_admin_edited"])
	}
	// 原始分数不变
	if data["overall_score"].(float64) != 7 {
		t.Errorf("Expected original score 7, got %v", data["overall_score"])
	}

	// HR视角可见修订版本
	w = testutil.DoRequest(router, "GET", base, nil, hrToken)
	data = testutil.ParseResponse(w)["data"].(map[string]interface{})
	version, present := data["admin_edited_version"].(map[string]interface{})
	if !present {
		t.Fatal("Expected admin_edited_version visible to hr")
	}
	if version["overall_score"].(float64) != 9 {
		t.Errorf("Expected overlay score 9, got %v", version["overall_score"])
	}
}
